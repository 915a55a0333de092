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

package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAddAndGet(t *testing.T) {
	c := New()
	c.TimeNow.Add(1)
	c.TimeNow.Add(2)
	c.SleepsWoken.Add(1)

	got := c.Get()
	assert.Equal(t, int64(3), got[CounterTimeNow])
	assert.Equal(t, int64(1), got[CounterSleepsWoken])
}

func TestCountersReset(t *testing.T) {
	c := New()
	c.AdjTime.Add(5)
	c.Reset()
	assert.Equal(t, int64(0), c.Get()[CounterAdjTime])
}

func TestSleepJitterTracksMeanAndStddev(t *testing.T) {
	c := New()
	c.ObserveSleepJitter(100)
	c.ObserveSleepJitter(200)
	c.ObserveSleepJitter(300)

	mean, stddev := c.SleepJitter()
	assert.InDelta(t, 200, mean, 0.001)
	assert.Greater(t, stddev, 0.0)
}

func TestJSONReporterServesCounters(t *testing.T) {
	c := New()
	c.TimeNow.Add(42)
	r := NewJSONReporter(c)

	srv := httptest.NewServer(http.HandlerFunc(r.handleCounters))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int64(42), got[CounterTimeNow])
}

func TestFetchCountersRoundTrips(t *testing.T) {
	c := New()
	c.MonoNow.Add(7)
	r := NewJSONReporter(c)

	mux := http.NewServeMux()
	mux.HandleFunc("/counters", r.handleCounters)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := FetchCounters(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got[CounterMonoNow])
}
