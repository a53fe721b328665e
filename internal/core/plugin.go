package core

import (
	"fmt"

	"fitsync/pkg/domain"
)

// Plugin describes a fitting-routine module that contributes routines and
// rules to a session.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules    []Rule
	routines domain.Routines
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

// RegisterRule adds a rule evaluated when session state is validated or
// restored.
func (r *PluginRegistry) RegisterRule(rule Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// RegisterRoutines installs the plugin's fitting routines. A plugin provides
// at most one set.
func (r *PluginRegistry) RegisterRoutines(routines domain.Routines) error {
	if routines == nil {
		return fmt.Errorf("routines cannot be nil")
	}
	if r.routines != nil {
		return fmt.Errorf("routines %s already registered", r.routines.Name())
	}
	r.routines = routines
	return nil
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Routines returns the registered routines, or nil.
func (r *PluginRegistry) Routines() domain.Routines {
	return r.routines
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name     string
	Version  string
	Routines string
	Rules    []string
}
