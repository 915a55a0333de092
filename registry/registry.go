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
Package registry discovers timer hardware through collab.DeviceBroker
and picks which discovered source acts as the wall-clock reference:
the one currently advertising the highest frequency (spec.md §4.3).
*/
package registry

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/collab"
)

// Source is one discovered timer device: its name, advertised
// frequency, and the bound driver handle used to read/set its clock.
type Source struct {
	Name   string
	FreqHz uint64
	Driver collab.TimerDriver
}

// Registry tracks every timer source discovered so far and which one
// (if any) is currently serving as the wall-clock reference.
type Registry struct {
	devices collab.DeviceBroker
	space   *cap.Space

	sources  []Source
	refIndex int
	hasRef   bool
}

// New creates a registry backed by devices, drawing capability slots
// for newly-discovered devices from space.
func New(devices collab.DeviceBroker, space *cap.Space) *Registry {
	return &Registry{devices: devices, space: space, refIndex: -1}
}

// Sources returns every timer source discovered so far, in discovery
// order.
func (r *Registry) Sources() []Source {
	return r.sources
}

// Reference returns the current reference source and whether one has
// been selected yet.
func (r *Registry) Reference() (Source, bool) {
	if !r.hasRef {
		return Source{}, false
	}
	return r.sources[r.refIndex], true
}

// Rescan queries devices for newly-attached timer hardware, binds any
// it hasn't seen before, and reselects the reference source if a
// higher-frequency one is now available. It returns the newly selected
// reference and whether the reference changed, so the caller can
// re-anchor the time base (spec.md §4.3, §4.5 NOTIFY handling).
func (r *Registry) Rescan() (Source, bool, error) {
	names, err := r.devices.Query(collab.DeviceFilter{DevType: collab.Timer})
	if err != nil {
		return Source{}, false, err
	}

	for _, name := range names {
		if r.has(name) {
			continue
		}
		desc, err := r.devices.GetLogicDesc(name)
		if err != nil {
			log.WithError(err).WithField("device", name).Warn("failed to read logic descriptor during rescan")
			continue
		}
		slot, err := r.space.Alloc()
		if err != nil {
			log.WithError(err).Warn("capability space exhausted while binding timer source")
			continue
		}
		driver, err := r.devices.AllocLogic(collab.CapTimer, name, slot)
		if err != nil {
			r.space.Free(slot)
			log.WithError(err).WithField("device", name).Warn("failed to bind timer device")
			continue
		}
		log.WithFields(log.Fields{"device": name, "freq_hz": desc.FreqHz}).Info("discovered timer source")
		r.sources = append(r.sources, Source{Name: name, FreqHz: desc.FreqHz, Driver: driver})
	}

	return r.reselect()
}

func (r *Registry) has(name string) bool {
	for _, s := range r.sources {
		if s.Name == name {
			return true
		}
	}
	return false
}

// reselect applies "highest frequency wins", breaking ties by the
// first-discovered source so reselection is deterministic even when
// two sources advertise equal frequency (spec.md §4.3).
func (r *Registry) reselect() (Source, bool, error) {
	if len(r.sources) == 0 {
		return Source{}, false, nil
	}
	ranked := slices.Clone(r.sources)
	// A stable sort on descending frequency keeps first-discovered the
	// winner of any tie, since slices.SortStableFunc preserves input
	// order among equal elements.
	slices.SortStableFunc(ranked, func(a, b Source) bool { return a.FreqHz > b.FreqHz })
	best := ranked[0]

	bestIdx := -1
	for i, s := range r.sources {
		if s.Name == best.Name {
			bestIdx = i
			break
		}
	}

	changed := !r.hasRef || r.refIndex != bestIdx
	r.refIndex = bestIdx
	r.hasRef = true
	if changed {
		log.WithFields(log.Fields{"device": best.Name, "freq_hz": best.FreqHz}).Info("selected reference timer source")
	}
	return best, changed, nil
}
