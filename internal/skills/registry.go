package skills

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prismbot/prism/internal/observability"
)

// Registry indexes skills by name with source precedence: a user skill
// shadows a builtin skill of the same name regardless of registration order.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]map[Source]*Skill
	log    *observability.Logger
}

// NewRegistry creates an empty skill registry.
func NewRegistry(log *observability.Logger) *Registry {
	if log == nil {
		log = observability.NewTestLogger()
	}
	return &Registry{
		byName: make(map[string]map[Source]*Skill),
		log:    log,
	}
}

// Register adds a skill. Registering the same (name, source) pair replaces
// the previous entry.
func (r *Registry) Register(skill *Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.byName[skill.Name]
	if entries == nil {
		entries = make(map[Source]*Skill)
		r.byName[skill.Name] = entries
	}
	entries[skill.Source] = skill
}

// Get returns the effective skill for a name, preferring the user source.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.byName[name]
	if entries == nil {
		return nil, false
	}
	if skill, ok := entries[SourceUser]; ok {
		return skill, true
	}
	if skill, ok := entries[SourceBuiltin]; ok {
		return skill, true
	}
	return nil, false
}

// List returns the effective skills sorted by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]*Skill, 0, len(names))
	for _, name := range names {
		if skill, ok := r.Get(name); ok {
			out = append(out, skill)
		}
	}
	return out
}

// Count returns the number of distinct skill names.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// DiscoverDir scans a directory of per-skill subdirectories, each holding a
// SKILL.md, and registers what parses. Per-entry failures are logged and
// skipped; discovery never aborts startup.
func (r *Registry) DiscoverDir(dir string, source Source) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("skill directory unreadable", "dir", dir, "error", err)
		}
		return 0
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), SkillFilename)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		skill, err := ParseFile(path, source)
		if err != nil {
			r.log.Warn("skill skipped", "path", path, "error", err)
			continue
		}
		r.Register(skill)
		loaded++
	}
	return loaded
}
