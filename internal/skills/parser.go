package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// SkillFilename is the expected filename inside a skill directory.
	SkillFilename = "SKILL.md"

	// frontmatterDelimiter marks the beginning and end of YAML frontmatter.
	frontmatterDelimiter = "---"
)

// ParseFile parses a SKILL.md file.
func ParseFile(path string, source Source) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data, filepath.Dir(path), source)
}

// Parse parses SKILL.md content.
func Parse(data []byte, dir string, source Source) (*Skill, error) {
	frontmatter, body, err := SplitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	skill := Skill{Context: ContextInline, UserInvocable: true}
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	if skill.Name == "" {
		return nil, fmt.Errorf("skill name is required")
	}
	if !ValidName(skill.Name) {
		return nil, fmt.Errorf("invalid skill name %q", skill.Name)
	}
	if skill.Description == "" {
		return nil, fmt.Errorf("skill description is required")
	}
	switch skill.Context {
	case ContextInline, ContextFork:
	default:
		return nil, fmt.Errorf("invalid context %q", skill.Context)
	}

	skill.Body = strings.TrimSpace(string(body))
	skill.Path = dir
	skill.Source = source
	return &skill, nil
}

// SplitFrontmatter separates YAML frontmatter from the markdown body. The
// first line must be the opening delimiter.
func SplitFrontmatter(data []byte) (frontmatter, body []byte, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		frontLines = append(frontLines, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}

	return []byte(strings.Join(frontLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}
