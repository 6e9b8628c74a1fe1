// Package projects manages per-project workspaces described by PROJECT.md
// files with YAML frontmatter.
package projects

import (
	"fmt"
)

// ProjectFilename is the expected filename inside a project directory.
const ProjectFilename = "PROJECT.md"

// Status is a project's lifecycle position.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// statusTransitions is the legal transition table: active pauses and
// resumes, completes once, and only completed projects archive.
var statusTransitions = map[Status][]Status{
	StatusActive:    {StatusSuspended, StatusCompleted},
	StatusSuspended: {StatusActive},
	StatusCompleted: {StatusArchived},
}

// ValidStatus reports whether s is a known status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidStatusTransition is returned when a project status change is
// outside the legal table.
type InvalidStatusTransition struct {
	Project string
	From    Status
	To      Status
}

func (e *InvalidStatusTransition) Error() string {
	return fmt.Sprintf("project %s: invalid status transition %s -> %s", e.Project, e.From, e.To)
}

// Project is one parsed PROJECT.md definition.
type Project struct {
	// Name is the unique identifier, validated against the naming contract.
	Name string `yaml:"name"`

	// Description explains what the project is about.
	Description string `yaml:"description,omitempty"`

	// Status is the lifecycle position.
	Status Status `yaml:"status"`

	// Body is the markdown content after the frontmatter.
	Body string `yaml:"-"`

	// Path is the project directory.
	Path string `yaml:"-"`
}

// scaffoldDirs are the subdirectories created for every project.
var scaffoldDirs = []string{
	"session",
	"memory/facts",
	"memory/episodes",
	"tasks",
	"skills",
}
