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

// Package encoder converts the pulse counts of an array of FPGA quadrature
// encoder counters into position, velocity and status pins, and assembles
// the index control bits sent back to the FPGA.
//
// A Module is driven once per control cycle by a single caller: PrepareWrite
// before the write buffer is sent to the FPGA, and ProcessRead after the
// read buffer is received. Neither call blocks or allocates.
package encoder

import (
	"fmt"
	"log"
	"math"

	"github.com/aamcrae/litexenc/hal"
	"github.com/pkg/errors"
)

// Registration identity of the module.
const (
	ID   = 0x656e635f // "enc_"
	Name = "encoder"
)

// MaxInstances is the largest number of encoders accepted from a config.
const MaxInstances = 1024

var (
	ErrShortConfig = errors.New("encoder: config too short")
	ErrTooMany     = errors.New("encoder: too many instances")
)

// Binder creates the named pins and parameters used by the module.
// The storage is owned by the Binder, the module only holds handles.
type Binder interface {
	NewBit(name string, d hal.Dir) (hal.Bit, error)
	NewS32(name string, d hal.Dir) (hal.S32, error)
	NewFloat(name string, d hal.Dir) (hal.Float, error)
}

// Module is the set of encoders on one board.
type Module struct {
	Board     string
	instances []instance
	period    int     // Last period seen (ns)
	recipDt   float64 // 1 / period in seconds
	// Bound once so the cycle functions do not allocate.
	setPulse  func(int, bool)
	getEnable func(int) bool
	getPulse  func(int) bool
}

// State is a copy of the outputs of one encoder.
type State struct {
	RawCounts   int32
	Counts      int32
	Position    float64
	Velocity    float64
	VelocityRPM float64
	IndexPulse  bool
	Overflow    bool
}

// PinName returns the full name of a pin or parameter of an encoder.
func PinName(board string, index int, pin string) string {
	return fmt.Sprintf("%s.%s.%02d.%s", board, Name, index, pin)
}

// New creates a Module from the configuration stream, which starts with the
// number of encoders as a 4 byte big-endian value. The remainder of the
// stream after the consumed bytes is returned.
func New(b Binder, board string, config []byte) (*Module, []byte, error) {
	if len(config) < 4 {
		return nil, config, ErrShortConfig
	}
	n := wire.Uint32(config)
	config = config[4:]
	if n > MaxInstances {
		return nil, config, errors.Wrapf(ErrTooMany, "%s: %d", board, n)
	}
	m := new(Module)
	m.Board = board
	m.period = -1
	m.instances = make([]instance, n)
	m.setPulse = m.indexPulse
	m.getEnable = func(i int) bool { return m.instances[i].indexEnable.Get() }
	m.getPulse = func(i int) bool { return m.instances[i].indexPulse.Get() }
	for i := range m.instances {
		if err := m.bind(b, i); err != nil {
			return nil, config, err
		}
	}
	log.Printf("%s: %s module with %d instances", board, Name, n)
	return m, config, nil
}

func (m *Module) bind(b Binder, i int) error {
	in := &m.instances[i]
	in.scaleMemo = math.NaN()
	var err error
	name := func(pin string) string {
		return PinName(m.Board, i, pin)
	}
	s32s := []struct {
		pin string
		h   *hal.S32
	}{
		{"raw-counts", &in.rawCounts},
		{"counts", &in.counts},
	}
	for _, p := range s32s {
		if *p.h, err = b.NewS32(name(p.pin), hal.OUT); err != nil {
			return errors.Wrap(err, p.pin)
		}
	}
	bits := []struct {
		pin string
		dir hal.Dir
		h   *hal.Bit
	}{
		{"reset", hal.IO, &in.reset},
		{"index-enable", hal.IN, &in.indexEnable},
		{"index-pulse", hal.OUT, &in.indexPulse},
		{"overflow-occurred", hal.OUT, &in.overflow},
		{"x4-mode", hal.RW, &in.x4},
	}
	for _, p := range bits {
		if *p.h, err = b.NewBit(name(p.pin), p.dir); err != nil {
			return errors.Wrap(err, p.pin)
		}
	}
	floats := []struct {
		pin string
		dir hal.Dir
		h   *hal.Float
	}{
		{"position", hal.OUT, &in.position},
		{"velocity", hal.OUT, &in.velocity},
		{"velocity-rpm", hal.OUT, &in.velocityRPM},
		{"position-scale", hal.RW, &in.scale},
	}
	for _, p := range floats {
		if *p.h, err = b.NewFloat(name(p.pin), p.dir); err != nil {
			return errors.Wrap(err, p.pin)
		}
	}
	return nil
}

// Count returns the number of encoders.
func (m *Module) Count() int {
	return len(m.instances)
}

// State returns the current outputs of encoder i.
func (m *Module) State(i int) State {
	in := &m.instances[i]
	return State{
		RawCounts:   in.rawCounts.Get(),
		Counts:      in.counts.Get(),
		Position:    in.position.Get(),
		Velocity:    in.velocity.Get(),
		VelocityRPM: in.velocityRPM.Get(),
		IndexPulse:  in.indexPulse.Get(),
		Overflow:    in.overflow.Get(),
	}
}

// RequiredWriteBuffer is the number of bytes PrepareWrite uses.
func (m *Module) RequiredWriteBuffer() int {
	return WriteBufferSize(len(m.instances))
}

// RequiredReadBuffer is the number of bytes ProcessRead uses.
func (m *Module) RequiredReadBuffer() int {
	return ReadBufferSize(len(m.instances))
}

// PrepareWrite assembles the index enable register followed by the
// reset index pulse register, and returns the number of bytes written.
// The index pulse is acknowledged as soon as it has been read, so the
// FPGA clears it for the next cycle.
func (m *Module) PrepareWrite(buf []byte, period int) int {
	n := len(m.instances)
	if n == 0 {
		return 0
	}
	off := EncodeShared(buf, n, m.getEnable)
	off += EncodeShared(buf[off:], n, m.getPulse)
	return off
}

// ProcessRead decodes the index pulse register and the count records,
// updates the estimates of all encoders, and returns the number of bytes read.
func (m *Module) ProcessRead(buf []byte, period int) int {
	n := len(m.instances)
	if n == 0 {
		return 0
	}
	if period != m.period {
		m.recipDt = 0
		if period > 0 {
			m.recipDt = 1.0 / (float64(period) * 1e-9)
		}
		m.period = period
	}
	off := DecodeShared(buf, n, m.setPulse)
	for i := range m.instances {
		in := &m.instances[i]
		old := in.rawCounts.Get()
		in.rawCounts.Set(decodeRecord(buf[off:]))
		off += RecordSize
		in.estimate(old, m.recipDt)
	}
	return off
}

// indexPulse sets the index pulse of encoder i. The FPGA only reports
// a pulse on the first index after it is enabled, so the enable is
// cleared when a pulse arrives.
func (m *Module) indexPulse(i int, v bool) {
	in := &m.instances[i]
	if v {
		in.indexEnable.Set(false)
	}
	in.indexPulse.Set(v)
}
