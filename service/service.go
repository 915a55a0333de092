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
Package service implements March, the high-precision time service
core: a single-threaded dispatch loop over a capability endpoint,
serving TIME_NOW, MONO_NOW, SLEEP, and ADJ_TIME, and reacting to
KERNEL/NOTIFY for device hot-plug and deadline expiry (spec.md §4-§7).
*/
package service

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/timeservice/march/alarm"
	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/collab"
	"github.com/timeservice/march/deadline"
	"github.com/timeservice/march/ipc"
	"github.com/timeservice/march/registry"
	"github.com/timeservice/march/stats"
	"github.com/timeservice/march/timebase"
)

// defaultFreqHz is used when the kernel's own GetFreq call fails,
// matching the original's init() fallback (spec.md §4.6).
const defaultFreqHz = 10_000_000

// timeEndpointName is the well-known resource name march registers its
// endpoint capability under (spec.md §4.6).
const timeEndpointName = "TIME_ENDPOINT"

// errNotify signals the dispatcher that a message was a one-way
// notification, already fully handled, and must not receive a reply -
// the Go analogue of original_source's Error::Success sentinel
// returned from the NOTIFY arm of dispatch() (spec.md §4.5).
var errNotify = errors.New("service: handled as notification, no reply due")

// Collaborators bundles every external dependency March consumes, all
// of which are out of this module's scope per spec.md §1 and exist
// only as the collab interfaces plus package ipc's Endpoint.
type Collaborators struct {
	Resource collab.ResourceBroker
	Devices  collab.DeviceBroker
	Kernel   collab.Kernel
	Ticks    collab.TickSource
	Bus      collab.ServiceBus
	Endpoint ipc.Endpoint
}

// March is the time service core. It owns no goroutines of its own;
// Run drives one cooperative dispatch loop on the caller's goroutine,
// so all state below is touched without locking (spec.md §7).
type March struct {
	collab Collaborators

	space *cap.Space
	base  timebase.Base
	heap  *deadline.Heap
	reg   *registry.Registry
	prog  *alarm.Reprogrammer
	stats *stats.Counters

	endpointSlot cap.Slot
	running      bool
}

// New constructs a March core with a capability space bounded to
// capacity slots. The space is shared by outstanding SLEEP calls and by
// the slots bound to discovered timer sources; a SLEEP that finds it
// full is answered with ResourceExhausted (spec.md §7, error kind 2).
func New(c Collaborators, capacity int, endpointSlot cap.Slot) *March {
	space := cap.NewSpace(capacity)
	return &March{
		collab:       c,
		space:        space,
		heap:         deadline.New(),
		reg:          registry.New(c.Devices, space),
		prog:         alarm.New(c.Kernel, endpointSlot),
		stats:        stats.New(),
		endpointSlot: endpointSlot,
	}
}

// Stats returns the counters this core maintains, for a stats reporter
// to expose (spec.md §10).
func (m *March) Stats() *stats.Counters {
	return m.stats
}

// Init performs one-time bootstrap: reads the kernel tick frequency
// (falling back to defaultFreqHz on failure), establishes the initial
// time base, discovers timer sources, subscribes to device hot-plug
// notifications, and registers the service endpoint under its
// well-known resource name (spec.md §4.6).
func (m *March) Init() error {
	freqHz, err := m.collab.Kernel.GetFreq()
	if err != nil {
		log.WithError(err).Warnf("kernel get_freq failed, falling back to %d Hz", defaultFreqHz)
		freqHz = defaultFreqHz
	}
	m.base.FreqHz = freqHz
	m.base.InitialTicks = m.collab.Ticks.Now()

	if _, _, err := m.reg.Rescan(); err != nil {
		log.WithError(err).Warn("initial device rescan failed")
	}
	if ref, ok := m.reg.Reference(); ok {
		m.adoptReference(ref)
	}

	log.Info("hooking device broker for timer hot-plug notifications")
	if err := m.collab.Devices.Hook(collab.HookTarget{DevType: collab.Timer}, m.endpointSlot); err != nil {
		return err
	}

	log.WithField("name", timeEndpointName).Info("registering time service endpoint")
	return m.collab.Resource.RegisterCap(collab.CapEndpoint, timeEndpointName, m.endpointSlot)
}

// adoptReference re-anchors the time base to ref's own clock reading,
// the same re-anchoring original_source's rescan_devices performs the
// moment it selects a new reference timer (spec.md §4.3).
func (m *March) adoptReference(ref registry.Source) {
	rtcNS, err := ref.Driver.GetTime()
	if err != nil {
		log.WithError(err).WithField("device", ref.Name).Warn("failed to read reference timer, keeping previous time base")
		return
	}
	ticks := m.collab.Ticks.Now()
	m.base.Reset(rtcNS, ticks)
	log.WithFields(log.Fields{"device": ref.Name, "ns": rtcNS}).Info("time base updated")
}

// Run reports Running to the service bus and drives the dispatch loop
// until Stop is called (spec.md §4.6). It returns nil only after Stop.
func (m *March) Run() error {
	if err := m.collab.Bus.ReportService(collab.Running); err != nil {
		log.WithError(err).Warn("failed to report running state")
	}
	m.running = true

	for m.running {
		msg, err := m.collab.Endpoint.Recv()
		if err != nil {
			log.WithError(err).Error("recv error")
			m.stats.RecvErrors.Add(1)
			continue
		}
		log.Trace(ipc.Dump(msg))

		if err := m.dispatch(msg); err != nil {
			if errors.Is(err, errNotify) {
				continue
			}
			m.replyError(err)
		}
	}
	return nil
}

// Stop ends the dispatch loop after the current iteration and reports
// Stopped to the service bus (spec.md §4.6).
func (m *March) Stop() {
	m.running = false
	if err := m.collab.Bus.ReportService(collab.Stopped); err != nil {
		log.WithError(err).Warn("failed to report stopped state")
	}
}

// dispatch routes msg to its handler by (protocol, method), a tagged
// switch standing in for original_source's ipc_dispatch! macro table
// (spec.md §4.5, Design Notes "Polymorphism").
func (m *March) dispatch(msg ipc.Msg) error {
	switch msg.ProtoMethod() {
	case ipc.ProtoMethod{Proto: ipc.TimeProto, Method: ipc.TimeNow}:
		return m.handleTimeNow(msg)
	case ipc.ProtoMethod{Proto: ipc.TimeProto, Method: ipc.MonoNow}:
		return m.handleMonoNow(msg)
	case ipc.ProtoMethod{Proto: ipc.TimeProto, Method: ipc.Sleep}:
		return m.handleSleep(msg)
	case ipc.ProtoMethod{Proto: ipc.TimeProto, Method: ipc.AdjTime}:
		return m.handleAdjTime(msg)
	case ipc.ProtoMethod{Proto: ipc.KernelProto, Method: ipc.Notify}:
		return m.handleNotify(msg)
	default:
		log.WithFields(log.Fields{"proto": msg.Proto, "method": msg.Method}).Error("unhandled message")
		m.stats.InvalidMethod.Add(1)
		return m.collab.Endpoint.Reply(ipc.ErrReply(ipc.InvalidMethod))
	}
}

// replyError logs a dispatch failure. Every handler path that wants a
// caller to see an error code replies inline before returning it
// (default's InvalidMethod, handleSleep's ResourceExhausted); by the
// time an error reaches here it is a
// failure of that very Reply call, so there is no well-formed reply
// left to send - attempting one would just relabel a transport error
// as a method error on a capability already known to be bad.
func (m *March) replyError(err error) {
	log.WithError(err).Error("dispatch error")
}

// handleTimeNow implements TIME_NOW (spec.md §4.1).
func (m *March) handleTimeNow(_ ipc.Msg) error {
	now := m.base.WallNow(m.collab.Ticks.Now())
	m.stats.TimeNow.Add(1)
	return m.collab.Endpoint.Reply(ipc.OKUint64(now))
}

// handleMonoNow implements MONO_NOW (spec.md §4.1).
func (m *March) handleMonoNow(_ ipc.Msg) error {
	now := m.base.MonoNow(m.collab.Ticks.Now())
	m.stats.MonoNow.Add(1)
	return m.collab.Endpoint.Reply(ipc.OKUint64(now))
}

// handleSleep implements SLEEP (spec.md §4.4, §7). The duration in
// milliseconds arrives in MR0. It allocates a fresh capability-space
// slot to hold the reply capability long-term, deferring the actual
// reply until the deadline expires; if the capability space is
// exhausted it replies with ResourceExhausted immediately instead
// (spec.md §7, error kind 2). There is no cancellation path for a
// pending sleep (spec.md §9's recorded Open Question): once enqueued,
// a sleeper can only be woken by its deadline expiring.
func (m *March) handleSleep(msg ipc.Msg) error {
	ms := msg.MR[0]
	now := m.base.WallNow(m.collab.Ticks.Now())
	deadlineNS := now + ms*1_000_000

	bookSlot, err := m.space.Alloc()
	if err != nil {
		m.stats.ResourceExhausted.Add(1)
		return m.collab.Endpoint.Reply(ipc.ErrReply(ipc.ResourceExhausted))
	}

	reply := m.collab.Endpoint.CurrentReplyCap()
	reply.BindSpace(m.space, bookSlot)
	m.heap.Push(deadline.Entry{DeadlineNS: deadlineNS, Reply: reply})
	m.stats.SleepsEnqueued.Add(1)

	earliest, ok := m.heap.PeekDeadline()
	if err := m.prog.Update(&m.base, earliest, ok); err != nil {
		log.WithError(err).Warn("failed to arm alarm for new sleeper")
	}
	return errNotify
}

// handleAdjTime implements ADJ_TIME (spec.md §4.1, §6). An absolute_ns
// of 0 leaves the time base untouched; a drift_ppb of 0 leaves drift
// untouched - each field is independently optional, matching
// original_source's adj_time.
func (m *March) handleAdjTime(msg ipc.Msg) error {
	absoluteNS := msg.MR[0]
	driftPPB := int64(msg.MR[1])

	if absoluteNS != 0 {
		if ref, ok := m.reg.Reference(); ok {
			if err := ref.Driver.SetTime(absoluteNS); err != nil {
				log.WithError(err).WithField("device", ref.Name).Warn("failed to push time to reference device")
			}
		}
		m.base.Reset(absoluteNS, m.collab.Ticks.Now())
	}
	if driftPPB != 0 {
		m.base.DriftPPB = driftPPB
	}
	m.stats.AdjTime.Add(1)
	return m.collab.Endpoint.Reply(ipc.OKEmpty())
}

// handleNotify implements the KERNEL/NOTIFY arm (spec.md §4.5, §6): a
// hot-plug badge triggers a device rescan, and every notification
// checks for and wakes expired sleepers, then reprograms the alarm.
// It always returns errNotify - a notification is never replied to.
func (m *March) handleNotify(msg ipc.Msg) error {
	if msg.Badge&ipc.NotifyHook != 0 {
		if ref, changed, err := m.reg.Rescan(); err != nil {
			log.WithError(err).Error("device rescan failed")
		} else if changed {
			m.adoptReference(ref)
		}
	}

	m.wakeExpired()
	if deadlineNS, ok := m.heap.PeekDeadline(); ok {
		if err := m.prog.Update(&m.base, deadlineNS, true); err != nil {
			log.WithError(err).Warn("failed to reprogram alarm")
		}
	}
	return errNotify
}

// wakeExpired pops and replies to every sleeper whose deadline has
// passed (spec.md §4.4's check_timers), recording how late each wake
// landed past its deadline - this only ever runs on a NOTIFY, so the
// observed jitter reflects how promptly the kernel alarm actually fired.
func (m *March) wakeExpired() {
	now := m.base.WallNow(m.collab.Ticks.Now())
	for _, entry := range m.heap.PopExpired(now) {
		reply := entry.Reply
		if err := reply.Invoke(ipc.OKEmpty()); err != nil {
			log.WithError(err).Error("failed to wake sleeper")
		}
		m.stats.SleepsWoken.Add(1)
		m.stats.ObserveSleepJitter(float64(now - entry.DeadlineNS))
	}
}
