// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fixture

import (
	"errors"
	"slices"
	"testing"
)

type deployment struct {
	Name     string
	Manifest string
}

func deploymentRegistry() *Registry {
	registry := NewRegistry()
	registry.Define("deployment",
		func() map[string]any {
			return map[string]any{"name": Sequence("deployment"), "manifest": "---\n{}"}
		},
		func(attributes map[string]any) (any, error) {
			name, ok := attributes["name"].(string)
			if !ok {
				return nil, errors.New("name must be a string")
			}
			manifest, _ := attributes["manifest"].(string)
			return deployment{Name: name, Manifest: manifest}, nil
		},
	)
	return registry
}

func TestBuildUsesFreshDefaults(t *testing.T) {
	registry := deploymentRegistry()
	first, err := registry.Build("deployment", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := registry.Build("deployment", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first.(deployment).Name == second.(deployment).Name {
		t.Errorf("two builds shared the name %q", first.(deployment).Name)
	}
}

func TestBuildOverridesWin(t *testing.T) {
	registry := deploymentRegistry()
	record, err := registry.Build("deployment", map[string]any{"name": "dummy"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := record.(deployment)
	if got.Name != "dummy" || got.Manifest != "---\n{}" {
		t.Errorf("record = %+v", got)
	}
}

func TestBuildErrors(t *testing.T) {
	registry := deploymentRegistry()
	if _, err := registry.Build("team", nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}
	if _, err := registry.Build("deployment", map[string]any{"name": 7}); err == nil {
		t.Error("constructor error not returned")
	}
}

func TestKinds(t *testing.T) {
	registry := deploymentRegistry()
	registry.Define("team", nil, func(map[string]any) (any, error) { return struct{}{}, nil })
	if got := registry.Kinds(); !slices.Equal(got, []string{"deployment", "team"}) {
		t.Errorf("Kinds = %v", got)
	}
}

var _ Factory = (*Registry)(nil)
