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

// Package simulator provides a simulated FPGA encoder counter array that
// can be used in place of a board transport.

package simulator

import (
	"math"
	"time"

	"github.com/aamcrae/litexenc/encoder"
	"github.com/pkg/errors"
)

var ErrShortBuffer = errors.New("simulator: buffer too short")

// Channel simulates one quadrature counter, driven at a constant rate.
// The counter is a 32 bit value that wraps. When the index is enabled,
// the next index mark resets the counter to zero (plus any counts past
// the mark) and latches the index pulse until it is acknowledged.
type Channel struct {
	Rate       float64 // Counts per second
	IndexEvery int64   // Counts between index marks, 0 for none
	count      int32   // Counter as seen by the driver
	pos        int64   // Absolute position in counts
	frac       float64 // Fraction of a count carried to the next cycle
	enabled    bool    // Index enable
	pulse      bool    // Latched index pulse
}

// FPGA simulates the encoder module of an FPGA.
type FPGA struct {
	Name     string
	period   time.Duration
	channels []*Channel
	Cycles   int
}

// New creates a simulated FPGA with n counters, updated every period.
func New(name string, n int, period time.Duration) *FPGA {
	f := new(FPGA)
	f.Name = name
	f.period = period
	f.channels = make([]*Channel, n)
	for i := range f.channels {
		f.channels[i] = new(Channel)
	}
	return f
}

// Channel returns counter i.
func (f *FPGA) Channel(i int) *Channel {
	return f.channels[i]
}

// Transfer accepts the write buffer from the driver, moves all the
// counters on by one period and fills in the read buffer.
func (f *FPGA) Transfer(w, r []byte) error {
	n := len(f.channels)
	if len(w) < encoder.WriteBufferSize(n) || len(r) < encoder.ReadBufferSize(n) {
		return errors.Wrapf(ErrShortBuffer, "%s: write %d, read %d", f.Name, len(w), len(r))
	}
	off := encoder.DecodeShared(w, n, func(i int, v bool) {
		f.channels[i].enabled = v
	})
	encoder.DecodeShared(w[off:], n, func(i int, v bool) {
		if v {
			f.channels[i].pulse = false
		}
	})
	dt := f.period.Seconds()
	for _, c := range f.channels {
		c.advance(dt)
	}
	off = encoder.EncodeShared(r, n, func(i int) bool {
		return f.channels[i].pulse
	})
	for _, c := range f.channels {
		off += encoder.EncodeRecord(r[off:], c.count)
	}
	f.Cycles++
	return nil
}

// Count returns the current counter value.
func (c *Channel) Count() int32 {
	return c.count
}

// Pulse returns true if an index pulse is latched.
func (c *Channel) Pulse() bool {
	return c.pulse
}

// Preset sets the counter, e.g to start close to a wrap.
func (c *Channel) Preset(v int32) {
	c.count = v
}

// advance moves the counter on by the counts for dt seconds, checking
// whether an index mark is crossed.
func (c *Channel) advance(dt float64) {
	d := c.Rate*dt + c.frac
	whole := math.Trunc(d)
	// Absorb rounding error in the period.
	if r := math.Round(d); math.Abs(d-r) < 1e-9 {
		whole = r
	}
	c.frac = d - whole
	steps := int64(whole)
	if steps == 0 {
		return
	}
	old := c.pos
	c.pos += steps
	c.count = int32(int64(c.count) + steps)
	if c.IndexEvery <= 0 {
		return
	}
	om := floorDiv(old, c.IndexEvery)
	nm := floorDiv(c.pos, c.IndexEvery)
	if om == nm || !c.enabled {
		return
	}
	// The mark crossed is the last one before the new position.
	mark := nm * c.IndexEvery
	if steps < 0 {
		mark = om * c.IndexEvery
	}
	c.count = int32(c.pos - mark)
	c.pulse = true
	c.enabled = false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
