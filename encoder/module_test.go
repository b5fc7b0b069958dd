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

package encoder

import (
	"testing"

	"github.com/aamcrae/litexenc/hal"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	board  = "test"
	period = 1_000_000 // 1ms
)

type fixture struct {
	t     *testing.T
	store *hal.Store
	m     *Module
}

func newFixture(t *testing.T, n int) *fixture {
	f := &fixture{t: t, store: hal.NewStore()}
	var rest []byte
	var err error
	cfg := AppendConfig(nil, n)
	cfg = append(cfg, 0xAB)
	f.m, rest, err = New(f.store, board, cfg)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAB}, rest)
	for i := 0; i < n; i++ {
		f.float(i, "position-scale").Set(1.0)
		f.bit(i, "x4-mode").Set(true)
	}
	return f
}

func (f *fixture) bit(i int, pin string) hal.Bit {
	b, err := f.store.Bit(PinName(board, i, pin))
	require.NoError(f.t, err)
	return b
}

func (f *fixture) s32(i int, pin string) hal.S32 {
	s, err := f.store.S32(PinName(board, i, pin))
	require.NoError(f.t, err)
	return s
}

func (f *fixture) float(i int, pin string) hal.Float {
	v, err := f.store.Float(PinName(board, i, pin))
	require.NoError(f.t, err)
	return v
}

// cycle runs ProcessRead with the given index pulses and counts.
func (f *fixture) cycle(pulses []int, counts ...int32) {
	n := f.m.Count()
	require.Len(f.t, counts, n)
	buf := make([]byte, ReadBufferSize(n))
	off := EncodeShared(buf, n, func(i int) bool {
		for _, p := range pulses {
			if p == i {
				return true
			}
		}
		return false
	})
	for _, c := range counts {
		off += EncodeRecord(buf[off:], c)
	}
	require.Equal(f.t, off, f.m.ProcessRead(buf, period))
}

func TestNewErrors(t *testing.T) {
	s := hal.NewStore()
	_, rest, err := New(s, board, []byte{0, 0, 1})
	require.True(t, errors.Is(err, ErrShortConfig))
	require.Len(t, rest, 3)

	_, _, err = New(s, board, AppendConfig(nil, MaxInstances+1))
	require.True(t, errors.Is(err, ErrTooMany))

	_, _, err = New(s, board, AppendConfig(nil, 2))
	require.NoError(t, err)
	// Same names a second time.
	_, _, err = New(s, board, AppendConfig(nil, 2))
	require.True(t, errors.Is(err, hal.ErrExists))
}

func TestPinNames(t *testing.T) {
	f := newFixture(t, 1)
	names := map[string]bool{}
	for _, v := range f.store.Snapshot() {
		names[v.Name] = true
	}
	for _, p := range []string{"raw-counts", "counts", "reset", "index-enable", "index-pulse",
		"position", "velocity", "velocity-rpm", "overflow-occurred", "position-scale", "x4-mode"} {
		require.True(t, names["test.encoder.00."+p], p)
	}
	require.Len(t, names, 11)
}

func TestNoInstances(t *testing.T) {
	f := newFixture(t, 0)
	require.Equal(t, 0, f.m.RequiredReadBuffer())
	require.Equal(t, 0, f.m.RequiredWriteBuffer())
	require.Equal(t, 0, f.m.PrepareWrite(nil, period))
	require.Equal(t, 0, f.m.ProcessRead(nil, period))
}

func TestRequiredBuffers(t *testing.T) {
	f := newFixture(t, 33)
	require.Equal(t, 16, f.m.RequiredWriteBuffer())
	require.Equal(t, 8+33*4, f.m.RequiredReadBuffer())
}

func TestModeCounts(t *testing.T) {
	require.Equal(t, int32(-1), modeCounts(-7, false))
	require.Equal(t, int32(1), modeCounts(7, false))
	require.Equal(t, int32(-7), modeCounts(-7, true))

	f := newFixture(t, 1)
	f.bit(0, "x4-mode").Set(false)
	f.cycle(nil, -7)
	require.Equal(t, int32(-7), f.s32(0, "raw-counts").Get())
	require.Equal(t, int32(-1), f.s32(0, "counts").Get())
	require.Equal(t, -1.0, f.float(0, "position").Get())
}

func TestDifference(t *testing.T) {
	d, w := difference(-2147483000, 2147483000, true)
	require.True(t, w)
	require.Equal(t, int64(1296), d)

	d, w = difference(2147483000, -2147483000, true)
	require.True(t, w)
	require.Equal(t, int64(-1296), d)

	d, w = difference(-2147483000, 2147483000, false)
	require.True(t, w)
	require.Equal(t, int64(324), d)

	d, w = difference(100, -100, true)
	require.False(t, w)
	require.Equal(t, int64(200), d)

	// Mode adjusted counts: 1 - (-1)
	d, w = difference(7, -7, false)
	require.False(t, w)
	require.Equal(t, int64(2), d)
}

func TestOverflow(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 1)
	overflow := f.bit(0, "overflow-occurred")
	position := f.float(0, "position")

	f.cycle(nil, 2147483000)
	require.False(overflow.Get())
	require.Equal(2147483000.0, position.Get())

	f.cycle(nil, -2147483000)
	require.True(overflow.Get())
	require.Equal(2147483000.0+1296, position.Get())

	// Incremental tracking continues without a further wrap.
	f.cycle(nil, -2147482000)
	require.True(overflow.Get())
	require.Equal(2147483000.0+2296, position.Get())
}

func TestOverflowNotX4(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 1)
	f.bit(0, "x4-mode").Set(false)
	overflow := f.bit(0, "overflow-occurred")
	position := f.float(0, "position")

	f.cycle(nil, 2147483000)
	require.Equal(536870750.0, position.Get())

	// The wrap cycle adds the corrected difference divided by 4.
	f.cycle(nil, -2147483000)
	require.True(overflow.Get())
	require.Equal(536870750.0+324, position.Get())

	// Later cycles add raw/4 - old/4 rather than the undivided raw - old,
	// keeping incremental and absolute positions in the same units.
	f.cycle(nil, -2147482000)
	require.True(overflow.Get())
	require.Equal(536870750.0+324+250, position.Get())
}

func TestIndexPulseClearsOverflow(t *testing.T) {
	require := require.New(t)
	// Encoder 0 of 2 is the one addressed in the shared register.
	f := newFixture(t, 2)
	f.float(0, "position-scale").Set(4.0)
	overflow := f.bit(0, "overflow-occurred")
	enable := f.bit(0, "index-enable")

	f.cycle(nil, 2147483000, 0)
	f.cycle(nil, -2147483000, 0)
	require.True(overflow.Get())

	enable.Set(true)
	f.cycle([]int{0}, 40, 0)
	require.False(overflow.Get())
	require.True(f.bit(0, "index-pulse").Get())
	require.False(enable.Get())
	require.Equal(10.0, f.float(0, "position").Get())

	f.cycle(nil, 44, 0)
	require.False(f.bit(0, "index-pulse").Get())
	require.Equal(11.0, f.float(0, "position").Get())
}

func TestReset(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 1)
	reset := f.bit(0, "reset")
	counts := f.s32(0, "counts")
	overflow := f.bit(0, "overflow-occurred")

	f.cycle(nil, 2147483000)
	reset.Set(true)
	// A jump that would otherwise be seen as a wrap.
	f.cycle(nil, -2147483000)
	require.False(reset.Get())
	require.False(overflow.Get())
	require.Equal(int32(0), counts.Get())
	require.Equal(0.0, f.float(0, "position").Get())

	f.cycle(nil, -2147482900)
	require.Equal(int32(100), counts.Get())
	require.Equal(100.0, f.float(0, "position").Get())
}

func TestResetClearsOverflow(t *testing.T) {
	f := newFixture(t, 1)
	f.cycle(nil, 2147483000)
	f.cycle(nil, -2147483000)
	require.True(t, f.bit(0, "overflow-occurred").Get())
	f.bit(0, "reset").Set(true)
	f.cycle(nil, -2147483000)
	require.False(t, f.bit(0, "overflow-occurred").Get())
	f.cycle(nil, -2147482990)
	require.Equal(t, 10.0, f.float(0, "position").Get())
}

func TestVelocity(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 1)
	f.float(0, "position-scale").Set(2.0)
	const d = 20 // counts per cycle
	var c int32
	for i := 0; i < HistorySize*3; i++ {
		f.cycle(nil, c)
		c += d
	}
	// 10 units per 1ms
	require.InDelta(10000.0, f.float(0, "velocity").Get(), 1e-6)
	require.InDelta(600000.0, f.float(0, "velocity-rpm").Get(), 1e-4)
}

func TestVelocitySkippedOnIndex(t *testing.T) {
	f := newFixture(t, 2)
	for i := int32(0); i < 20; i++ {
		f.cycle(nil, i*5, 0)
	}
	v := f.float(0, "velocity").Get()
	require.InDelta(t, 5000.0, v, 1e-6)
	f.cycle([]int{0}, 100000, 0)
	require.Equal(t, v, f.float(0, "velocity").Get())
	require.Equal(t, 100000.0, f.float(0, "position").Get())
}

func TestScaleClamp(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 1)
	scale := f.float(0, "position-scale")
	scale.Set(1e-25)
	f.cycle(nil, 250)
	require.Equal(1.0, scale.Get())
	require.Equal(250.0, f.float(0, "position").Get())

	scale.Set(-5.0)
	f.cycle(nil, 250)
	require.Equal(-50.0, f.float(0, "position").Get())
}

func TestZeroScaleOnFirstCycle(t *testing.T) {
	f := newFixture(t, 1)
	f.float(0, "position-scale").Set(0)
	f.cycle(nil, 3)
	require.Equal(t, 1.0, f.float(0, "position-scale").Get())
	require.Equal(t, 3.0, f.float(0, "position").Get())
}

func TestPrepareWrite(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	for i := 0; i < 3; i++ {
		f.bit(i, "index-enable").Set(true)
	}
	f.bit(1, "index-pulse").Set(true)
	buf := make([]byte, f.m.RequiredWriteBuffer())
	for i := range buf {
		buf[i] = 0xff
	}
	require.Equal(len(buf), f.m.PrepareWrite(buf, period))
	require.Equal([]byte{0, 0, 0, 0x03, 0, 0, 0, 0x02}, buf)
}

func TestPeriodChange(t *testing.T) {
	f := newFixture(t, 1)
	buf := make([]byte, ReadBufferSize(1))
	EncodeRecord(buf[4:], 0)
	f.m.ProcessRead(buf, 0)
	EncodeRecord(buf[4:], 10)
	f.m.ProcessRead(buf, 0)
	require.Equal(t, 0.0, f.float(0, "velocity").Get())

	EncodeRecord(buf[4:], 20)
	f.m.ProcessRead(buf, 2_000_000)
	require.InDelta(t, 5000.0/HistorySize, f.float(0, "velocity").Get(), 1e-9)
}
