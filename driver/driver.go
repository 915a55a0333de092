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
Package driver adapts march's one real (non-simulated) dependency - the
host OS clock - into a collab.TimerDriver. cmd/marchd reads the host
wall clock through it once at startup to seed its demo timer source;
the timer driver march's registry actually binds, there and in tests,
is the collab/fake one.

HostHandle only ever reads the clock and steps it to an absolute value,
so this package keeps just that slice of CLOCK_ADJTIME plumbing rather
than the teacher clock package's full frequency-adjustment surface
(march's drift handling lives entirely in package timebase's software
slew; nothing here ever calls clock_adjtime to change a frequency).
*/
package driver

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// adjtime modes from usr/include/linux/timex.h - only the two bits
// stepClock needs.
const (
	adjSetOffset uint32 = 0x0100 // add 'time' to current time
	adjNano      uint32 = 0x2000 // select nanosecond resolution
)

// HostHandle implements collab.TimerDriver against CLOCK_REALTIME on
// the host running marchd, the nearest thing to a physical reference
// timer available outside a real microkernel build.
type HostHandle struct {
	clockID int32
}

// NewHostHandle creates a handle bound to CLOCK_REALTIME.
func NewHostHandle() *HostHandle {
	return &HostHandle{clockID: unix.CLOCK_REALTIME}
}

// GetTime implements collab.TimerDriver.
func (h *HostHandle) GetTime() (uint64, error) {
	return uint64(time.Now().UnixNano()), nil
}

// SetTime implements collab.TimerDriver by stepping the host clock to
// the given absolute wall-clock nanosecond value.
func (h *HostHandle) SetTime(ns uint64) error {
	target := time.Unix(0, int64(ns))
	return stepClock(h.clockID, time.Until(target))
}

// stepClock issues a CLOCK_ADJTIME step, adapted from the teacher's
// clock.Step/clock.Adjtime pair down to the one mode march's HostHandle
// actually drives (man(2) clock_adjtime).
func stepClock(clockid int32, step time.Duration) error {
	sign := time.Duration(1)
	if step < 0 {
		sign = -1
		step = -step
	}
	tx := &unix.Timex{
		Modes: adjSetOffset | adjNano,
		Time: unix.Timeval{
			Sec:  int64(sign * (step / time.Second)),
			Usec: int64(sign) * int64(step%time.Second),
		},
	}
	// The value of a timeval is the sum of its fields, but tv_usec must
	// always be non-negative.
	if tx.Time.Usec < 0 {
		tx.Time.Sec--
		tx.Time.Usec += 1_000_000_000
	}
	_, _, errno := unix.Syscall(unix.SYS_CLOCK_ADJTIME, uintptr(clockid), uintptr(unsafe.Pointer(tx)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
