// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The readiness prober and the service process stop path wait on
// wall-clock deadlines. They take a [Clock] so tests can drive those
// waits deterministically with [Fake]:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go prober.WaitUntilConnectable(ctx, "localhost", port, time.Second)
//	c.WaitForTimers(1)            // the prober is parked on its retry delay
//	c.Advance(100 * time.Millisecond)
//
// This package has no dependencies on other packages in this module.
package clock
