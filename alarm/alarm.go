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
Package alarm reprograms the single hardware alarm the microkernel
exposes so it next fires at the earliest pending sleeper's deadline
(spec.md §4.4). There is at most one alarm in flight; rearming it to an
earlier deadline simply overwrites the kernel's notion of when to next
signal the service endpoint.
*/
package alarm

import (
	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/collab"
	"github.com/timeservice/march/timebase"
)

// Reprogrammer arms the kernel alarm against a time base and the
// endpoint slot the kernel should signal when it fires.
type Reprogrammer struct {
	kernel   collab.Kernel
	endpoint cap.Slot
}

// New creates a reprogrammer that arms kernel, signaling endpoint.
func New(kernel collab.Kernel, endpoint cap.Slot) *Reprogrammer {
	return &Reprogrammer{kernel: kernel, endpoint: endpoint}
}

// Update arms the kernel alarm for deadlineNS converted through base,
// if one is pending. It is a no-op when hasDeadline is false - nothing
// is currently waiting, so there is nothing to arm (spec.md §4.4).
func (r *Reprogrammer) Update(base *timebase.Base, deadlineNS uint64, hasDeadline bool) error {
	if !hasDeadline {
		return nil
	}
	ticks := base.TicksForDeadline(deadlineNS)
	return r.kernel.SetAlarm(ticks, r.endpoint)
}
