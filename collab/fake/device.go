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
	"github.com/timeservice/march/collab"
)

// TimerDriver is an in-memory collab.TimerDriver backed by a wall-clock
// value tests set directly, independent of any VirtualClock - it
// models the hardware timer's own notion of wall time, the thing
// registry.Rescan reads via GetTime to set march's base.
type TimerDriver struct {
	ns      uint64
	failGet bool
	failSet bool
}

// NewTimerDriver creates a driver reporting initialNS until SetTime or
// SetNS changes it.
func NewTimerDriver(initialNS uint64) *TimerDriver {
	return &TimerDriver{ns: initialNS}
}

// GetTime implements collab.TimerDriver.
func (d *TimerDriver) GetTime() (uint64, error) {
	if d.failGet {
		return 0, fmt.Errorf("fake timer driver: get_time failed")
	}
	return d.ns, nil
}

// SetTime implements collab.TimerDriver.
func (d *TimerDriver) SetTime(ns uint64) error {
	if d.failSet {
		return fmt.Errorf("fake timer driver: set_time failed")
	}
	d.ns = ns
	return nil
}

// SetNS directly sets the value the next GetTime call will return,
// without going through SetTime's failure injection.
func (d *TimerDriver) SetNS(ns uint64) { d.ns = ns }

// FailGet makes the next GetTime calls fail, modeling a transient
// external failure (spec.md §7, error kind 1).
func (d *TimerDriver) FailGet(fail bool) { d.failGet = fail }

// FailSet makes the next SetTime calls fail.
func (d *TimerDriver) FailSet(fail bool) { d.failSet = fail }

type device struct {
	desc   collab.LogicDescriptor
	driver *TimerDriver
}

// DeviceBroker is an in-memory collab.DeviceBroker. Devices are added
// with AddTimer at any point, including after a Hook subscription has
// been recorded, to simulate hot-plug (spec.md §4.3 scenario 3).
type DeviceBroker struct {
	devices          map[string]*device
	order            []string
	hooks            []hookSub
	failGetLogicDesc map[string]bool
}

type hookSub struct {
	target   collab.HookTarget
	endpoint cap.Slot
}

// NewDeviceBroker creates an empty device broker.
func NewDeviceBroker() *DeviceBroker {
	return &DeviceBroker{
		devices:          make(map[string]*device),
		failGetLogicDesc: make(map[string]bool),
	}
}

// AddTimer registers a new timer device named name, advertising freqHz
// and reporting initialNS from its driver. It returns the driver so
// the test can move its clock independently of march's own base.
func (b *DeviceBroker) AddTimer(name string, freqHz uint64, initialNS uint64) *TimerDriver {
	d := &device{
		desc:   collab.LogicDescriptor{DevType: collab.Timer, FreqHz: freqHz},
		driver: NewTimerDriver(initialNS),
	}
	b.devices[name] = d
	b.order = append(b.order, name)
	return d.driver
}

// FailGetLogicDesc makes GetLogicDesc fail for name, modeling a
// transient external failure during rescan (spec.md §7, error kind 1).
func (b *DeviceBroker) FailGetLogicDesc(name string, fail bool) {
	b.failGetLogicDesc[name] = fail
}

// Query implements collab.DeviceBroker.
func (b *DeviceBroker) Query(filter collab.DeviceFilter) ([]string, error) {
	var names []string
	for _, name := range b.order {
		if b.devices[name].desc.DevType == filter.DevType {
			names = append(names, name)
		}
	}
	return names, nil
}

// GetLogicDesc implements collab.DeviceBroker.
func (b *DeviceBroker) GetLogicDesc(name string) (collab.LogicDescriptor, error) {
	if b.failGetLogicDesc[name] {
		return collab.LogicDescriptor{}, fmt.Errorf("fake device broker: get_logic_desc(%q) failed", name)
	}
	d, ok := b.devices[name]
	if !ok {
		return collab.LogicDescriptor{}, fmt.Errorf("fake device broker: no such device %q", name)
	}
	return d.desc, nil
}

// AllocLogic implements collab.DeviceBroker.
func (b *DeviceBroker) AllocLogic(_ collab.CapType, name string, _ cap.Slot) (collab.TimerDriver, error) {
	d, ok := b.devices[name]
	if !ok {
		return nil, fmt.Errorf("fake device broker: no such device %q", name)
	}
	return d.driver, nil
}

// Hook implements collab.DeviceBroker.
func (b *DeviceBroker) Hook(target collab.HookTarget, endpoint cap.Slot) error {
	b.hooks = append(b.hooks, hookSub{target: target, endpoint: endpoint})
	return nil
}

// Hooked reports whether Hook has been called for devType.
func (b *DeviceBroker) Hooked(devType collab.LogicDeviceType) bool {
	for _, h := range b.hooks {
		if h.target.DevType == devType {
			return true
		}
	}
	return false
}
