// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Position and velocity estimation.

package encoder

import (
	"math"

	"github.com/aamcrae/litexenc/hal"
)

// HistorySize is the number of velocity samples averaged.
const HistorySize = 8

// Scales closer to zero than this are replaced with 1.0.
const minScale = 1e-20

// Range of the 32 bit counter.
const modulus = int64(1) << 32

// instance holds the pins and the estimator state of one encoder.
type instance struct {
	rawCounts   hal.S32
	counts      hal.S32
	reset       hal.Bit
	indexEnable hal.Bit
	indexPulse  hal.Bit
	position    hal.Float
	velocity    hal.Float
	velocityRPM hal.Float
	overflow    hal.Bit
	scale       hal.Float // Counts per unit
	x4          hal.Bit

	scaleMemo     float64 // Last scale seen, NaN until the first cycle
	scaleRecip    float64
	positionReset int32 // Counts at the last reset
	history       [HistorySize]float64
	cursor        int // Next history slot to replace
}

// modeCounts applies the x4 mode to a count. When not in x4 mode
// the count is divided by 4, truncating towards zero.
func modeCounts(raw int32, x4 bool) int32 {
	if x4 {
		return raw
	}
	return raw / 4
}

// difference returns the change in counts from old to raw, adjusted for
// the x4 mode. If the change cannot have happened without the counter
// wrapping, the change is corrected for a single wrap and wrapped is true.
func difference(raw, old int32, x4 bool) (d int64, wrapped bool) {
	d = int64(raw) - int64(old)
	if d < math.MinInt32 || d > math.MaxInt32 {
		if d < 0 {
			d += modulus
		} else {
			d -= modulus
		}
		if !x4 {
			d /= 4
		}
		return d, true
	}
	if !x4 {
		d = int64(modeCounts(raw, false)) - int64(modeCounts(old, false))
	}
	return d, false
}

// updateScale recalculates the reciprocal of the scale when it changes.
func (in *instance) updateScale() {
	s := in.scale.Get()
	if s == in.scaleMemo {
		return
	}
	if s > -minScale && s < minScale {
		s = 1.0
		in.scale.Set(s)
	}
	in.scaleRecip = 1.0 / s
	in.scaleMemo = s
}

// estimate updates the derived pins once the raw counts and the index
// pulse for this cycle are set. old is the raw count of the previous cycle.
//
// While no overflow has been seen the position is calculated from the
// absolute counts. Once the counter wraps the position is tracked
// incrementally until an index pulse or a reset is seen.
func (in *instance) estimate(old int32, recipDt float64) {
	in.updateScale()
	raw := in.rawCounts.Get()
	x4 := in.x4.Get()
	counts := modeCounts(raw, x4)
	if in.reset.Get() {
		in.overflow.Set(false)
		in.positionReset = counts
		// No wrap can be seen in the cycle of the reset.
		old = raw
		in.reset.Set(false)
	}
	counts -= in.positionReset
	in.counts.Set(counts)

	prev := in.position.Get()
	if in.indexPulse.Get() {
		// The index is an absolute reference, and the jump in
		// position is not a real velocity, so the history is left alone.
		in.position.Set(float64(counts) * in.scaleRecip)
		in.overflow.Set(false)
		return
	}
	d, wrapped := difference(raw, old, x4)
	if wrapped {
		in.overflow.Set(true)
	}
	if in.overflow.Get() {
		in.position.Set(prev + float64(d)*in.scaleRecip)
	} else {
		in.position.Set(float64(counts) * in.scaleRecip)
	}
	in.history[in.cursor] = (in.position.Get() - prev) * recipDt
	in.cursor++
	if in.cursor >= HistorySize {
		in.cursor = 0
	}
	var sum float64
	for _, v := range in.history {
		sum += v
	}
	v := sum / HistorySize
	in.velocity.Set(v)
	in.velocityRPM.Set(v * 60.0)
}
