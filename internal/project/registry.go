package project

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// ErrProjectNotFound is returned by Get for names that are not configured.
var ErrProjectNotFound = errors.New("project not found")

// Registry holds the loaded projects. It is built once and never
// modified, so it is safe for concurrent use without locking.
type Registry struct {
	projects map[string]*Project
	warnings []string
}

// NewRegistry creates a registry from a copy of projects.
func NewRegistry(projects map[string]*Project) *Registry {
	return &Registry{
		projects: maps.Clone(projects),
	}
}

// Get retrieves a project by name
func (r *Registry) Get(name string) (*Project, error) {
	project, exists := r.projects[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrProjectNotFound, name)
	}

	return project, nil
}

// List returns all project names in sorted order
func (r *Registry) List() []string {
	return slices.Sorted(maps.Keys(r.projects))
}

// Count returns the number of projects
func (r *Registry) Count() int {
	return len(r.projects)
}

// Warnings returns non-fatal problems noticed while loading the config.
func (r *Registry) Warnings() []string {
	return slices.Clone(r.warnings)
}

// MaxCommandTimeout returns the longest total time any project's command
// sequence may take.
func (r *Registry) MaxCommandTimeout() time.Duration {
	var longest time.Duration
	for _, p := range r.projects {
		total := time.Duration(len(p.Commands)) * p.CommandTimeout
		if total > longest {
			longest = total
		}
	}
	return longest
}
