// Package skills loads SKILL.md definitions that extend the agent with
// reusable prompts and workflows.
package skills

import (
	"regexp"
	"strings"
)

// Source indicates where a skill was discovered from. User skills shadow
// builtin skills of the same name.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceUser    Source = "user"
)

// nameRe is the skill/project name contract: lowercase alphanumeric with
// hyphens, at most 64 characters, starting with an alphanumeric.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ValidName reports whether a skill or project name satisfies the naming
// contract.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// ContextMode controls where a skill's body is injected.
type ContextMode string

const (
	ContextInline ContextMode = "inline"
	ContextFork   ContextMode = "fork"
)

// Skill is one parsed SKILL.md definition.
type Skill struct {
	// Name is the unique identifier, validated against the naming contract.
	Name string `yaml:"name"`

	// Description explains what the skill does and when to use it.
	Description string `yaml:"description"`

	// DisableModelInvocation hides the skill from the model's catalog; it
	// stays reachable through explicit user invocation.
	DisableModelInvocation bool `yaml:"disable-model-invocation"`

	// UserInvocable exposes the skill as a user command.
	UserInvocable bool `yaml:"user-invocable"`

	// AllowedTools is a comma-separated list restricting which tools the
	// skill may use. Empty means unrestricted.
	AllowedTools string `yaml:"allowed-tools"`

	// Context selects inline or fork injection.
	Context ContextMode `yaml:"context"`

	// Agent optionally names the sub-agent the skill runs under.
	Agent string `yaml:"agent"`

	// Model optionally overrides the model spec for this skill.
	Model string `yaml:"model"`

	// ArgumentHint is shown to users next to the skill name.
	ArgumentHint string `yaml:"argument-hint"`

	// Body is the markdown content after the frontmatter.
	Body string `yaml:"-"`

	// Path is the directory the skill was discovered in.
	Path string `yaml:"-"`

	// Source records the discovery origin.
	Source Source `yaml:"-"`
}

// AllowedToolList splits the allowed-tools field into trimmed names.
func (s *Skill) AllowedToolList() []string {
	if strings.TrimSpace(s.AllowedTools) == "" {
		return nil
	}
	parts := strings.Split(s.AllowedTools, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			out = append(out, name)
		}
	}
	return out
}
