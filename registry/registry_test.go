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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/collab/fake"
)

func TestRescanDiscoversAndSelectsHighestFrequency(t *testing.T) {
	devices := fake.NewDeviceBroker()
	devices.AddTimer("rtc0", 32_768, 1_000)
	devices.AddTimer("hpet0", 10_000_000, 2_000)

	r := New(devices, cap.NewSpace(4))
	ref, changed, err := r.Rescan()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "hpet0", ref.Name)
	assert.Len(t, r.Sources(), 2)
}

func TestRescanHotPlugReselectsOnHigherFrequency(t *testing.T) {
	devices := fake.NewDeviceBroker()
	devices.AddTimer("rtc0", 32_768, 1_000)

	r := New(devices, cap.NewSpace(4))
	ref, changed, err := r.Rescan()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "rtc0", ref.Name)

	devices.AddTimer("hpet0", 10_000_000, 2_000)
	ref, changed, err = r.Rescan()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "hpet0", ref.Name)
}

func TestRescanIdempotentWhenNoNewDevices(t *testing.T) {
	devices := fake.NewDeviceBroker()
	devices.AddTimer("hpet0", 10_000_000, 2_000)

	r := New(devices, cap.NewSpace(4))
	_, _, err := r.Rescan()
	require.NoError(t, err)

	_, changed, err := r.Rescan()
	require.NoError(t, err)
	assert.False(t, changed, "reselecting the same reference must not report a change")
}

func TestRescanSkipsDeviceWhenCapSpaceExhausted(t *testing.T) {
	devices := fake.NewDeviceBroker()
	devices.AddTimer("rtc0", 32_768, 1_000)
	devices.AddTimer("hpet0", 10_000_000, 2_000)

	r := New(devices, cap.NewSpace(1))
	ref, changed, err := r.Rescan()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, r.Sources(), 1, "only one source should bind before the capability space is exhausted")
	assert.Equal(t, "rtc0", ref.Name)
}

func TestRescanSkipsDeviceWhenGetLogicDescFails(t *testing.T) {
	devices := fake.NewDeviceBroker()
	devices.AddTimer("rtc0", 32_768, 1_000)
	devices.FailGetLogicDesc("rtc0", true)

	r := New(devices, cap.NewSpace(4))
	_, changed, err := r.Rescan()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, r.Sources())
}

func TestReferenceEmptyBeforeAnyRescan(t *testing.T) {
	r := New(fake.NewDeviceBroker(), cap.NewSpace(4))
	_, ok := r.Reference()
	assert.False(t, ok)
}
