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
Package stats tracks March's operational counters and sleep-wake
jitter, and exposes them over JSON and Prometheus, mirroring
fbclock/daemon's string-keyed counter map and sptp/stats' JSON-then-
Prometheus scrape chain.
*/
package stats

import (
	"sync"

	"github.com/eclesh/welford"
)

// Counter names march reports. Named constants instead of ad-hoc
// strings keep service.go's Add calls and any dashboard built against
// this JSON in sync.
const (
	CounterTimeNow           = "time_now"
	CounterMonoNow           = "mono_now"
	CounterAdjTime           = "adj_time"
	CounterSleepsEnqueued    = "sleeps_enqueued"
	CounterSleepsWoken       = "sleeps_woken"
	CounterResourceExhausted = "resource_exhausted"
	CounterInvalidMethod     = "invalid_method"
	CounterRecvErrors        = "recv_errors"

	counterSleepJitterMeanNS   = "sleep_jitter_mean_ns"
	counterSleepJitterStddevNS = "sleep_jitter_stddev_ns"
)

// Counter is one named, independently addable counter within Counters.
type Counter struct {
	name string
	c    *Counters
}

// Add increments this counter by delta.
func (c Counter) Add(delta int64) {
	c.c.add(c.name, delta)
}

// Counters is a thread-safe string-keyed counter map, grounded on
// fbclock/daemon's Stats type. march's dispatch loop is single
// threaded, but the stats HTTP/Prometheus handlers read concurrently
// with it, so the mutex still earns its keep.
type Counters struct {
	mu       sync.Mutex
	counters map[string]int64

	jitter *welford.Stats

	TimeNow           Counter
	MonoNow           Counter
	AdjTime           Counter
	SleepsEnqueued    Counter
	SleepsWoken       Counter
	ResourceExhausted Counter
	InvalidMethod     Counter
	RecvErrors        Counter
}

// New creates an empty counter set with every named counter wired.
func New() *Counters {
	c := &Counters{
		counters: make(map[string]int64),
		jitter:   welford.New(),
	}
	c.TimeNow = Counter{CounterTimeNow, c}
	c.MonoNow = Counter{CounterMonoNow, c}
	c.AdjTime = Counter{CounterAdjTime, c}
	c.SleepsEnqueued = Counter{CounterSleepsEnqueued, c}
	c.SleepsWoken = Counter{CounterSleepsWoken, c}
	c.ResourceExhausted = Counter{CounterResourceExhausted, c}
	c.InvalidMethod = Counter{CounterInvalidMethod, c}
	c.RecvErrors = Counter{CounterRecvErrors, c}
	return c
}

func (c *Counters) add(key string, delta int64) {
	c.mu.Lock()
	c.counters[key] += delta
	c.mu.Unlock()
}

// Get returns a snapshot copy of every counter, plus the current
// sleep-jitter mean and standard deviation truncated to whole
// nanoseconds, so a
// JSON or Prometheus scrape sees jitter without a second code path.
func (c *Counters) Get() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make(map[string]int64, len(c.counters)+2)
	for k, v := range c.counters {
		ret[k] = v
	}
	ret[counterSleepJitterMeanNS] = int64(c.jitter.Mean())
	ret[counterSleepJitterStddevNS] = int64(c.jitter.Stddev())
	return ret
}

// Reset zeroes every counter, for tests that need a clean baseline. The
// sleep-jitter statistics Get reports are not reset.
func (c *Counters) Reset() {
	c.mu.Lock()
	for k := range c.counters {
		c.counters[k] = 0
	}
	c.mu.Unlock()
}

// ObserveSleepJitter records the difference, in nanoseconds, between a
// sleeper's requested and actual wake time, feeding eclesh/welford's
// running variance the same way fbclock/daemon/math.go tracks phase
// error without keeping every sample.
func (c *Counters) ObserveSleepJitter(jitterNS float64) {
	c.mu.Lock()
	c.jitter.Add(jitterNS)
	c.mu.Unlock()
}

// SleepJitter returns the mean and standard deviation of observed
// sleep jitter in nanoseconds.
func (c *Counters) SleepJitter() (mean, stddev float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jitter.Mean(), c.jitter.Stddev()
}
