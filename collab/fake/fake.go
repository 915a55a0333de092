/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package fake provides in-memory implementations of every interface in
package collab, plus a virtual tick clock, for deterministic tests and
for cmd/marchd's demo mode. It mirrors the hand-written fakes
fbclock/daemon_test.go uses for its own external collaborators, rather
than a mocking framework, because every collaborator here needs
stateful behavior (a registry of devices, an armable alarm) that's
simpler to hand-write than to script through expectations.
*/
package fake

import (
	"fmt"

	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/collab"
)

// VirtualClock is a free-running tick counter tests advance by hand,
// standing in for the hardware counter behind glenda::arch::time::get_time
// in original_source.
type VirtualClock struct {
	ticks uint64
}

// NewVirtualClock starts a clock at the given initial tick value.
func NewVirtualClock(initial uint64) *VirtualClock {
	return &VirtualClock{ticks: initial}
}

// Now returns the current raw tick count.
func (c *VirtualClock) Now() uint64 {
	return c.ticks
}

// Advance moves the clock forward by delta ticks, wrapping modulo 2^64
// the same way the real counter does.
func (c *VirtualClock) Advance(delta uint64) {
	c.ticks += delta
}

// Set pins the clock to an exact tick value - used to exercise the
// wrap-around boundary behavior from spec.md §8.
func (c *VirtualClock) Set(ticks uint64) {
	c.ticks = ticks
}

// ResourceBroker is an in-memory collab.ResourceBroker. Alloc and
// RegisterCap never fail; GetCap fails only for a name nothing has
// registered. It does not actually back slots with kernel objects -
// allocation bookkeeping is cap.Space's job.
type ResourceBroker struct {
	named map[string]cap.Slot
}

// NewResourceBroker creates an empty broker.
func NewResourceBroker() *ResourceBroker {
	return &ResourceBroker{named: make(map[string]cap.Slot)}
}

// Alloc implements collab.ResourceBroker.
func (b *ResourceBroker) Alloc(_ collab.CapType, _ cap.Slot) error { return nil }

// GetCap implements collab.ResourceBroker.
func (b *ResourceBroker) GetCap(_ collab.CapType, name string, slot cap.Slot) error {
	got, ok := b.named[name]
	if !ok {
		return fmt.Errorf("fake resource broker: no such capability %q", name)
	}
	if got != slot {
		// In a real broker this would copy a cap into slot; here we
		// just confirm the caller asked for something registered.
		return nil
	}
	return nil
}

// RegisterCap implements collab.ResourceBroker.
func (b *ResourceBroker) RegisterCap(_ collab.CapType, name string, slot cap.Slot) error {
	b.named[name] = slot
	return nil
}

// Registered reports whether name has been registered, and at which
// slot - used by tests to assert the TIME_ENDPOINT registration from
// spec.md §4.6.
func (b *ResourceBroker) Registered(name string) (cap.Slot, bool) {
	slot, ok := b.named[name]
	return slot, ok
}
