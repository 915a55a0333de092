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
Package timebase converts a raw hardware tick count into wall-clock and
monotonic nanoseconds, the one piece of march's core that has to get
wide-integer arithmetic right: at a multi-GHz counter frequency,
elapsed_ticks * 1e9 overflows a 64-bit intermediate long before a
service has been running a day (spec.md §9).
*/
package timebase

import (
	"math/big"
	"math/bits"
)

// Base anchors a tick counter to wall-clock time: at tick initialTicks
// the wall clock read initialNS, and the counter advances at freqHz
// ticks per second. DriftPPB lets an external synchronization daemon
// slew the wall-clock rate without touching the anchor itself
// (spec.md §4.1, §6).
type Base struct {
	InitialNS    uint64
	InitialTicks uint64
	FreqHz       uint64
	DriftPPB     int64
}

// Reset re-anchors the base to (ns, ticks), clearing no drift - a fresh
// anchor is established without restating slew (spec.md §4.2's
// update_time_base).
func (b *Base) Reset(ns, ticks uint64) {
	b.InitialNS = ns
	b.InitialTicks = ticks
}

// mulDiv1e9 computes ticks * 1e9 / freqHz without overflowing a 64-bit
// intermediate, using the full 128-bit product of the multiplication
// (spec.md §9). bits.Div64 panics if the quotient would not fit in 64
// bits (hi >= freqHz); that can happen for a slow reference counter
// near its wraparound, so fall back to math/big there instead of
// risking a crash on a perfectly valid tick value.
func mulDiv1e9(ticks, freqHz uint64) uint64 {
	if freqHz == 0 {
		return 0
	}
	hi, lo := bits.Mul64(ticks, 1_000_000_000)
	if hi >= freqHz {
		return mulDivBig(ticks, 1_000_000_000, freqHz)
	}
	q, _ := bits.Div64(hi, lo, freqHz)
	return q
}

func mulDivBig(a, b, c uint64) uint64 {
	prod := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	prod.Quo(prod, new(big.Int).SetUint64(c))
	return prod.Uint64()
}

// WallNow returns the wall-clock nanosecond reading at the given raw
// tick count, applying any configured drift. Tick wraparound is
// modeled with wrapping subtraction, matching the hardware counter's
// own 2^64 wraparound (spec.md §8).
func (b *Base) WallNow(currentTicks uint64) uint64 {
	elapsedTicks := currentTicks - b.InitialTicks // wraps mod 2^64, as intended
	elapsedNS := mulDiv1e9(elapsedTicks, b.FreqHz)
	if b.DriftPPB != 0 {
		elapsedNS = applyDrift(elapsedNS, b.DriftPPB)
	}
	return b.InitialNS + elapsedNS
}

// MonoNow returns monotonic nanoseconds since tick 0, undisciplined by
// drift or anchor - a pure function of the counter frequency
// (spec.md §4.1).
func (b *Base) MonoNow(currentTicks uint64) uint64 {
	return mulDiv1e9(currentTicks, b.FreqHz)
}

// applyDrift adds elapsedNS*driftPPB/1e9 to elapsedNS, using
// math/big.Int to keep the signed intermediate product exact however
// large elapsedNS has grown.
func applyDrift(elapsedNS uint64, driftPPB int64) uint64 {
	adj := new(big.Int).Mul(new(big.Int).SetUint64(elapsedNS), big.NewInt(driftPPB))
	adj.Quo(adj, big.NewInt(1_000_000_000))
	result := new(big.Int).Add(new(big.Int).SetUint64(elapsedNS), adj)
	if result.Sign() < 0 {
		return 0
	}
	return result.Uint64()
}

// TicksForDeadline converts a wall-clock deadline back into the raw
// tick value the kernel alarm should fire at, the inverse direction
// update_alarm needs (spec.md §4.4). Deadlines at or before the anchor
// map to the anchor tick itself.
func (b *Base) TicksForDeadline(deadlineNS uint64) uint64 {
	var deltaNS uint64
	if deadlineNS > b.InitialNS {
		deltaNS = deadlineNS - b.InitialNS
	}
	deltaTicks := uint64MulDiv(deltaNS, b.FreqHz)
	return b.InitialTicks + deltaTicks
}

// uint64MulDiv computes ns * freqHz / 1e9 without overflow, the
// companion conversion to mulDiv1e9 (tick count instead of nanosecond
// count as the numerator's other factor).
func uint64MulDiv(ns, freqHz uint64) uint64 {
	hi, lo := bits.Mul64(ns, freqHz)
	const billion = 1_000_000_000
	if hi >= billion {
		return mulDivBig(ns, freqHz, billion)
	}
	q, _ := bits.Div64(hi, lo, billion)
	return q
}
