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

package timebase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWallNowNoDrift(t *testing.T) {
	b := &Base{InitialNS: 1_000_000_000, InitialTicks: 100, FreqHz: 10_000_000}
	// 1 second of ticks at 10MHz = 10_000_000 ticks
	got := b.WallNow(100 + 10_000_000)
	assert.Equal(t, uint64(2_000_000_000), got)
}

func TestWallNowPositiveDrift(t *testing.T) {
	b := &Base{InitialNS: 0, InitialTicks: 0, FreqHz: 10_000_000, DriftPPB: 1_000_000}
	// 1 second elapsed, drift of 1000ppm speeds the clock up by 1ms
	got := b.WallNow(10_000_000)
	assert.Equal(t, uint64(1_001_000_000), got)
}

func TestWallNowNegativeDriftNeverGoesBackwards(t *testing.T) {
	b := &Base{InitialNS: 0, InitialTicks: 0, FreqHz: 10_000_000, DriftPPB: -2_000_000_000}
	got := b.WallNow(10_000_000)
	assert.Equal(t, uint64(0), got, "drift that would push elapsed negative clamps at the anchor")
}

func TestWallNowTickWraparound(t *testing.T) {
	b := &Base{InitialNS: 5_000_000_000, InitialTicks: math.MaxUint64 - 9, FreqHz: 10_000_000}
	// current ticks wraps past 2^64 by 10 ticks past initialTicks+10 = wraps to 10
	got := b.WallNow(0) // 0 - (MaxUint64-9) wraps to 10
	assert.Equal(t, uint64(5_000_001_000), got)
}

func TestMonoNowIgnoresAnchorAndDrift(t *testing.T) {
	b := &Base{InitialNS: 999, InitialTicks: 999, FreqHz: 1_000_000_000, DriftPPB: 500_000}
	assert.Equal(t, uint64(42), b.MonoNow(42))
}

func TestMulDiv1e9HighFrequencyNoOverflow(t *testing.T) {
	// A multi-GHz counter run for a very long time must not overflow the
	// 64-bit intermediate product.
	b := &Base{InitialNS: 0, InitialTicks: 0, FreqHz: 3_000_000_000}
	got := b.MonoNow(math.MaxUint64)
	want := mulDivBig(math.MaxUint64, 1_000_000_000, 3_000_000_000)
	assert.Equal(t, want, got)
}

func TestMulDiv1e9LowFrequencyFallsBackToBig(t *testing.T) {
	// A slow reference counter near tick wraparound forces hi >= freqHz
	// in the bits.Div64 fast path, which must fall back instead of
	// panicking.
	b := &Base{InitialNS: 0, InitialTicks: 0, FreqHz: 32_768}
	got := b.MonoNow(math.MaxUint64)
	want := mulDivBig(math.MaxUint64, 1_000_000_000, 32_768)
	assert.Equal(t, want, got)
}

func TestTicksForDeadlineBeforeAnchorClampsToAnchorTick(t *testing.T) {
	b := &Base{InitialNS: 10_000_000_000, InitialTicks: 500, FreqHz: 10_000_000}
	got := b.TicksForDeadline(1_000_000_000)
	assert.Equal(t, uint64(500), got)
}

func TestTicksForDeadlineRoundTripsWallNow(t *testing.T) {
	b := &Base{InitialNS: 1_000_000_000, InitialTicks: 1_000, FreqHz: 10_000_000}
	deadline := uint64(1_500_000_000)
	ticks := b.TicksForDeadline(deadline)
	assert.Equal(t, deadline, b.WallNow(ticks))
}

func TestResetReanchorsWithoutTouchingDrift(t *testing.T) {
	b := &Base{InitialNS: 1, InitialTicks: 1, FreqHz: 1, DriftPPB: 5}
	b.Reset(100, 200)
	assert.Equal(t, uint64(100), b.InitialNS)
	assert.Equal(t, uint64(200), b.InitialTicks)
	assert.Equal(t, int64(5), b.DriftPPB, "Reset must not clear drift")
}
