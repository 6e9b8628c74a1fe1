package projects

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/internal/skills"
)

// Manager creates, loads, and transitions projects under a root directory.
// One subdirectory per project, each carrying PROJECT.md and the standard
// scaffold.
type Manager struct {
	root string
	log  *observability.Logger
}

// NewManager creates a project manager rooted at dir.
func NewManager(root string, log *observability.Logger) *Manager {
	if log == nil {
		log = observability.NewTestLogger()
	}
	return &Manager{root: root, log: log}
}

// Dir returns the directory a project lives in.
func (m *Manager) Dir(name string) string {
	return filepath.Join(m.root, name)
}

// Create scaffolds a new project in active status. Fails if the directory
// already exists.
func (m *Manager) Create(name, description string) (*Project, error) {
	if !skills.ValidName(name) {
		return nil, fmt.Errorf("invalid project name %q", name)
	}
	dir := m.Dir(name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("project %q already exists", name)
	}

	for _, sub := range scaffoldDirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("scaffold %s: %w", sub, err)
		}
	}

	project := &Project{
		Name:        name,
		Description: description,
		Status:      StatusActive,
		Path:        dir,
	}
	if err := m.Save(project); err != nil {
		return nil, err
	}
	return project, nil
}

// Load reads and parses a project's PROJECT.md.
func (m *Manager) Load(name string) (*Project, error) {
	path := filepath.Join(m.Dir(name), ProjectFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	return Parse(data, m.Dir(name))
}

// Parse parses PROJECT.md content.
func Parse(data []byte, dir string) (*Project, error) {
	frontmatter, body, err := skills.SplitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	var project Project
	if err := yaml.Unmarshal(frontmatter, &project); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if project.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if !skills.ValidName(project.Name) {
		return nil, fmt.Errorf("invalid project name %q", project.Name)
	}
	if project.Status == "" {
		project.Status = StatusActive
	}
	if !ValidStatus(project.Status) {
		return nil, fmt.Errorf("invalid project status %q", project.Status)
	}

	project.Body = strings.TrimSpace(string(body))
	project.Path = dir
	return &project, nil
}

// Save writes the project's PROJECT.md, round-tripping frontmatter and body.
func (m *Manager) Save(project *Project) error {
	frontmatter, err := yaml.Marshal(project)
	if err != nil {
		return fmt.Errorf("marshal frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(frontmatter)
	b.WriteString("---\n")
	if project.Body != "" {
		b.WriteString("\n")
		b.WriteString(project.Body)
		b.WriteString("\n")
	}

	path := filepath.Join(project.Path, ProjectFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

// SetStatus transitions a project's status, enforcing the legal table, and
// persists the change.
func (m *Manager) SetStatus(name string, to Status) (*Project, error) {
	project, err := m.Load(name)
	if err != nil {
		return nil, err
	}
	if !ValidStatus(to) {
		return nil, fmt.Errorf("invalid project status %q", to)
	}
	if !CanTransition(project.Status, to) {
		return nil, &InvalidStatusTransition{Project: name, From: project.Status, To: to}
	}
	project.Status = to
	if err := m.Save(project); err != nil {
		return nil, err
	}
	return project, nil
}

// List returns every parseable project under the root, sorted by name.
// Broken entries are logged and skipped.
func (m *Manager) List() []*Project {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("project root unreadable", "dir", m.root, "error", err)
		}
		return nil
	}

	var out []*Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		project, err := m.Load(entry.Name())
		if err != nil {
			m.log.Warn("project skipped", "name", entry.Name(), "error", err)
			continue
		}
		out = append(out, project)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
