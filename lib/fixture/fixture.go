// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fixture builds test records from named factories.
//
// A [Registry] maps a kind ("deployment", "team") to a defaults
// function and a constructor. [Registry.Build] calls the defaults
// function afresh for every build, overlays the caller's overrides and
// hands the merged attributes to the constructor, so builds never
// share mutable state.
//
//	registry := fixture.NewRegistry()
//	registry.Define("deployment",
//	    func() map[string]any { return map[string]any{"name": fixture.Sequence("deployment")} },
//	    func(attrs map[string]any) (any, error) { return Deployment{Name: attrs["name"].(string)}, nil },
//	)
//	record, err := registry.Build("deployment", map[string]any{"name": "dummy"})
package fixture

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrUnknownKind is returned when no factory is defined for a kind.
var ErrUnknownKind = errors.New("fixture: unknown kind")

// Factory builds one record of the named kind.
type Factory interface {
	Build(kind string, overrides map[string]any) (any, error)
}

type definition struct {
	defaults  func() map[string]any
	construct func(attributes map[string]any) (any, error)
}

// Registry is a [Factory] backed by per-kind definitions. It is safe
// for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]definition)}
}

// Define registers or replaces the factory for kind. A nil defaults
// function means no default attributes.
func (r *Registry) Define(kind string, defaults func() map[string]any, construct func(map[string]any) (any, error)) {
	if construct == nil {
		panic("fixture: Define " + kind + " with nil constructor")
	}
	if defaults == nil {
		defaults = func() map[string]any { return nil }
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[kind] = definition{defaults: defaults, construct: construct}
}

// Build merges overrides over fresh defaults and constructs a record.
func (r *Registry) Build(kind string, overrides map[string]any) (any, error) {
	r.mu.RLock()
	definition, ok := r.definitions[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	attributes := make(map[string]any)
	maps.Copy(attributes, definition.defaults())
	maps.Copy(attributes, overrides)

	record, err := definition.construct(attributes)
	if err != nil {
		return nil, fmt.Errorf("fixture: building %s: %w", kind, err)
	}
	return record, nil
}

// Kinds lists the defined kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.definitions))
}

var sequence atomic.Uint64

// Sequence returns "prefix-N" with N unique across the process, for
// attributes that must not collide between builds.
func Sequence(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, sequence.Add(1))
}
