// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"errors"
	"strings"
	"testing"
)

func defaultAttributes() Attributes {
	return Attributes{
		SlotSandboxRoot:    "/tmp/sandbox",
		SlotServicePort:    "8443",
		SlotUpstreamPort1:  "9001",
		SlotUpstreamPort2:  "9002",
		SlotTLSCertPath:    "/certs/server.crt",
		SlotTLSCertKeyPath: "/certs/server.key",
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		overrides Attributes
		want      map[Slot]string
	}{
		{
			name:      "nil overrides keep current",
			overrides: nil,
			want:      map[Slot]string{SlotServicePort: "8443"},
		},
		{
			name:      "override replaces",
			overrides: Attributes{SlotServicePort: "9443"},
			want:      map[Slot]string{SlotServicePort: "9443", SlotUpstreamPort1: "9001"},
		},
		{
			name:      "empty override falls back",
			overrides: Attributes{SlotTLSCertPath: ""},
			want:      map[Slot]string{SlotTLSCertPath: "/certs/server.crt"},
		},
		{
			name: "credential pair",
			overrides: Attributes{
				SlotTLSCertPath:    "/certs/serverWithWrongCA.crt",
				SlotTLSCertKeyPath: "/certs/serverWithWrongCA.key",
			},
			want: map[Slot]string{
				SlotTLSCertPath:    "/certs/serverWithWrongCA.crt",
				SlotTLSCertKeyPath: "/certs/serverWithWrongCA.key",
				SlotSandboxRoot:    "/tmp/sandbox",
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			current := defaultAttributes()
			merged, err := Merge(current, test.overrides)
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			for slot, want := range test.want {
				if merged[slot] != want {
					t.Errorf("%s = %q, want %q", slot, merged[slot], want)
				}
			}
			if len(merged) != len(slotOrder) {
				t.Errorf("merged has %d slots, want %d", len(merged), len(slotOrder))
			}
			if current[SlotServicePort] != "8443" || current[SlotTLSCertPath] != "/certs/server.crt" {
				t.Error("Merge modified its input")
			}
		})
	}
}

func TestMergeUnknownSlot(t *testing.T) {
	_, err := Merge(defaultAttributes(), Attributes{"worker_count": "4"})
	if !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("error = %v, want ErrUnknownSlot", err)
	}
}

func TestValidate(t *testing.T) {
	if err := defaultAttributes().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	incomplete := defaultAttributes()
	delete(incomplete, SlotUpstreamPort2)
	incomplete[SlotServicePort] = ""
	incomplete["bogus"] = "x"
	err := incomplete.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	if !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("error %v should include ErrUnknownSlot", err)
	}
	for _, want := range []string{"upstream_port_2", "service_port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should name %s", err, want)
		}
	}
}

func TestSlotsFixedOrder(t *testing.T) {
	slots := Slots()
	slots[0] = "mutated"
	if Slots()[0] != SlotSandboxRoot {
		t.Error("Slots returned a shared slice")
	}
}
