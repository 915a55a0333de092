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

package fake

import (
	"fmt"

	"github.com/timeservice/march/cap"
)

// Kernel is an in-memory collab.Kernel. SetAlarm just records the last
// arming so tests can assert update_alarm's behavior; nothing actually
// fires it - tests simulate firing by advancing a VirtualClock and
// pushing a KERNEL/NOTIFY message into the endpoint themselves, the
// same way the original firmware's own alarm just queues a message for
// the next recv (spec.md §9).
type Kernel struct {
	freqHz     uint64
	failFreq   bool
	armedTicks uint64
	armedEP    cap.Slot
	armedCount int
}

// NewKernel creates a kernel reporting freqHz from GetFreq.
func NewKernel(freqHz uint64) *Kernel {
	return &Kernel{freqHz: freqHz}
}

// FailFreq makes GetFreq fail, exercising the "falls back to
// 10_000_000 Hz" path in service.March.Init (spec.md §3, §4.6).
func (k *Kernel) FailFreq(fail bool) { k.failFreq = fail }

// GetFreq implements collab.Kernel.
func (k *Kernel) GetFreq() (uint64, error) {
	if k.failFreq {
		return 0, fmt.Errorf("fake kernel: get_freq failed")
	}
	return k.freqHz, nil
}

// SetAlarm implements collab.Kernel.
func (k *Kernel) SetAlarm(ticks uint64, endpoint cap.Slot) error {
	k.armedTicks = ticks
	k.armedEP = endpoint
	k.armedCount++
	return nil
}

// ArmedTicks returns the tick value of the most recent SetAlarm call.
func (k *Kernel) ArmedTicks() uint64 { return k.armedTicks }

// ArmedCount returns how many times SetAlarm has been called.
func (k *Kernel) ArmedCount() int { return k.armedCount }
