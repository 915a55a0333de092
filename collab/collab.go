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
Package collab defines the interfaces march's core consumes from every
external collaborator named out of scope in spec.md §1: the microkernel
itself, the resource broker, the device broker, driver-side timer
clients, and the init/service-state bus.

Nothing in this package talks to a real microkernel. Production
bindings for these interfaces would live in a separate binding layer
that this module never needs to see; package collab/fake provides
in-memory implementations for tests, and package driver adapts march's
one real dependency (the host OS clock) to TimerDriver.
*/
package collab

import "github.com/timeservice/march/cap"

// CapType identifies the kind of kernel object a capability refers to,
// for broker Alloc/GetCap/RegisterCap calls.
type CapType uint8

// Capability types the broker protocol exchanges.
const (
	CapEndpoint CapType = iota
	CapReply
	CapKernel
	CapTimer
)

// LogicDeviceType identifies a device broker entry's logical kind.
// Timer is the only one this service cares about; others pass through
// Query/GetLogicDesc untouched.
type LogicDeviceType int

// Timer marks a device broker entry as a hardware timer source.
const Timer LogicDeviceType = 11

// LogicDescriptor is what the device broker reports for one device
// name via GetLogicDesc.
type LogicDescriptor struct {
	DevType LogicDeviceType
	FreqHz  uint64 // meaningful only when DevType == Timer
}

// DeviceFilter narrows a device broker Query.
type DeviceFilter struct {
	DevType LogicDeviceType
}

// HookTarget selects which device-broker events Hook subscribes to.
type HookTarget struct {
	DevType LogicDeviceType
}

// ServiceState is reported to the init/service-state bus.
type ServiceState int

// States march reports over its lifetime (spec.md §4.6).
const (
	Stopped ServiceState = iota
	Running
)

func (s ServiceState) String() string {
	if s == Running {
		return "Running"
	}
	return "Stopped"
}

// ResourceBroker issues and registers capabilities (spec.md §6).
type ResourceBroker interface {
	// Alloc creates a fresh kernel object of type t and installs it
	// into slot.
	Alloc(t CapType, slot cap.Slot) error
	// GetCap fetches the well-known capability name of type t into
	// slot.
	GetCap(t CapType, name string, slot cap.Slot) error
	// RegisterCap publishes slot under name so other services can
	// GetCap it.
	RegisterCap(t CapType, name string, slot cap.Slot) error
}

// DeviceBroker enumerates and binds hardware devices (spec.md §6).
type DeviceBroker interface {
	// Query returns the names of devices matching filter.
	Query(filter DeviceFilter) ([]string, error)
	// GetLogicDesc fetches name's logical descriptor.
	GetLogicDesc(name string) (LogicDescriptor, error)
	// AllocLogic binds a driver endpoint for name's device of type t
	// into slot and returns the client handle bound to it.
	AllocLogic(t CapType, name string, slot cap.Slot) (TimerDriver, error)
	// Hook subscribes endpoint to notifications for target.
	Hook(target HookTarget, endpoint cap.Slot) error
}

// TimerDriver is the per-device interface exposed by a bound timer
// driver endpoint (spec.md §6). Implementations are the "driver-side
// timer clients" spec.md §1 places out of scope; march only consumes
// this interface.
type TimerDriver interface {
	// GetTime returns the driver's current wall-clock reading in ns.
	GetTime() (uint64, error)
	// SetTime pushes an absolute wall-clock value to the driver.
	SetTime(ns uint64) error
}

// Kernel is the microkernel's own capability surface: reporting its
// tick frequency and arming the single hardware alarm.
type Kernel interface {
	// GetFreq returns the reference tick counter's frequency in Hz.
	GetFreq() (uint64, error)
	// SetAlarm arms the kernel alarm for the given tick count,
	// signaling endpoint when it fires.
	SetAlarm(ticks uint64, endpoint cap.Slot) error
}

// TickSource reads the raw hardware tick counter directly. Unlike
// Kernel, this is not a capability invocation - it mirrors
// glenda::arch::time::get_time(), a direct architecture-level read
// with no IPC round trip and no failure mode.
type TickSource interface {
	Now() uint64
}

// ServiceBus is the init/service-state bus march reports readiness to.
type ServiceBus interface {
	ReportService(state ServiceState) error
}
