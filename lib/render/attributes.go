// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"errors"
	"fmt"
	"maps"
)

// ErrUnknownSlot is returned when an attribute set names a slot the
// renderer does not define.
var ErrUnknownSlot = errors.New("render: unknown attribute slot")

// Slot names one substitution point in the proxy template.
type Slot string

const (
	SlotSandboxRoot    Slot = "sandbox_root"
	SlotServicePort    Slot = "service_port"
	SlotUpstreamPort1  Slot = "upstream_port_1"
	SlotUpstreamPort2  Slot = "upstream_port_2"
	SlotTLSCertPath    Slot = "tls_cert_path"
	SlotTLSCertKeyPath Slot = "tls_cert_key_path"
)

var slotOrder = []Slot{
	SlotSandboxRoot,
	SlotServicePort,
	SlotUpstreamPort1,
	SlotUpstreamPort2,
	SlotTLSCertPath,
	SlotTLSCertKeyPath,
}

// Slots returns every slot in a fixed order.
func Slots() []Slot {
	return append([]Slot(nil), slotOrder...)
}

// Known reports whether s is a defined slot.
func (s Slot) Known() bool {
	for _, known := range slotOrder {
		if s == known {
			return true
		}
	}
	return false
}

// Attributes maps slots to their rendered values.
type Attributes map[Slot]string

// Clone returns an independent copy. Cloning nil returns an empty,
// non-nil set.
func (a Attributes) Clone() Attributes {
	clone := make(Attributes, len(a))
	maps.Copy(clone, a)
	return clone
}

// Validate checks that every slot is present with a non-empty value
// and that no unknown slot is set. All problems are reported together.
func (a Attributes) Validate() error {
	var errs []error
	for _, slot := range slotOrder {
		if a[slot] == "" {
			errs = append(errs, fmt.Errorf("slot %s is empty", slot))
		}
	}
	for slot := range a {
		if !slot.Known() {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownSlot, slot))
		}
	}
	return errors.Join(errs...)
}

// Merge returns the attribute set produced by applying overrides to
// current. A slot takes its override when the override is present and
// non-empty, and keeps the current value otherwise. Neither input is
// modified.
func Merge(current, overrides Attributes) (Attributes, error) {
	merged := current.Clone()
	for slot, value := range overrides {
		if !slot.Known() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
		}
		if value == "" {
			continue
		}
		merged[slot] = value
	}
	return merged, nil
}

// templateData converts the set to the map handed to the template.
func (a Attributes) templateData() map[string]string {
	data := make(map[string]string, len(a))
	for slot, value := range a {
		data[string(slot)] = value
	}
	return data
}
