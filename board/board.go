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

// Package board drives the modules of an FPGA board once per control cycle.

package board

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/aamcrae/litexenc/hal"
	"github.com/pkg/errors"
)

// Size of queue for pin requests
const injectQueueSize = 20

var ErrQueueFull = errors.New("request queue full")

// Transport exchanges the write and read buffers with the FPGA.
type Transport interface {
	Transfer(w, r []byte) error
}

// Recorder is called with the buffers of each completed cycle.
type Recorder interface {
	Record(cycle uint64, period int, w, r []byte) error
}

// ModuleConfig selects a module type and holds its configuration stream.
type ModuleConfig struct {
	ID     uint32
	Config []byte
}

type request struct {
	name  string
	value bool
}

// Board holds the modules of a board and the buffers exchanged with the FPGA.
// Cycle must only be called from one goroutine. Other goroutines may
// use Inject and Snapshot.
type Board struct {
	Name     string
	Recorder Recorder
	store    *hal.Store
	modules  []Module
	xfer     Transport
	wbuf     []byte
	rbuf     []byte
	cycles   uint64
	requests chan request
	snap     atomic.Value // []hal.Value
	Errors   int          // Number of failed transfers
}

// New creates a board, initialising each of the configured modules in order.
func New(name string, reg *Registry, store *hal.Store, mods []ModuleConfig, xfer Transport) (*Board, error) {
	b := new(Board)
	b.Name = name
	b.store = store
	b.xfer = xfer
	b.requests = make(chan request, injectQueueSize)
	var wsize, rsize int
	for _, mc := range mods {
		r, err := reg.Lookup(mc.ID)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		m, rest, err := r.Init(store, name, mc.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: %s", name, r.Name)
		}
		if len(rest) != 0 {
			log.Printf("%s: %s: %d unused config bytes", name, r.Name, len(rest))
		}
		wsize += m.RequiredWriteBuffer()
		rsize += m.RequiredReadBuffer()
		b.modules = append(b.modules, m)
	}
	b.wbuf = make([]byte, wsize)
	b.rbuf = make([]byte, rsize)
	b.snap.Store(store.Snapshot())
	log.Printf("%s: %d modules, write buffer %d bytes, read buffer %d bytes", name, len(b.modules), wsize, rsize)
	return b, nil
}

// Cycles returns the number of completed cycles.
func (b *Board) Cycles() uint64 {
	return b.cycles
}

// Inject queues a write to a bit pin, which is applied at the start
// of the next cycle.
func (b *Board) Inject(name string, v bool) error {
	select {
	case b.requests <- request{name, v}:
		return nil
	default:
		return errors.Wrap(ErrQueueFull, name)
	}
}

// Snapshot returns the values of all pins at the end of the last cycle.
func (b *Board) Snapshot() []hal.Value {
	return b.snap.Load().([]hal.Value)
}

func (b *Board) applyRequests() {
	for {
		select {
		case r := <-b.requests:
			p, err := b.store.Bit(r.name)
			if err != nil {
				log.Printf("%s: %v", b.Name, err)
				continue
			}
			p.Set(r.value)
		default:
			return
		}
	}
}

// Cycle runs one control cycle: the modules assemble the write buffer,
// the buffers are exchanged with the FPGA, and the modules process
// the read buffer. period is the cycle period in nanoseconds.
func (b *Board) Cycle(period int) error {
	b.applyRequests()
	for i := range b.wbuf {
		b.wbuf[i] = 0
	}
	off := 0
	for _, m := range b.modules {
		off += m.PrepareWrite(b.wbuf[off:], period)
	}
	if err := b.xfer.Transfer(b.wbuf, b.rbuf); err != nil {
		b.Errors++
		return errors.Wrapf(err, "%s: cycle %d", b.Name, b.cycles)
	}
	off = 0
	for _, m := range b.modules {
		off += m.ProcessRead(b.rbuf[off:], period)
	}
	if b.Recorder != nil {
		if err := b.Recorder.Record(b.cycles, period, b.wbuf, b.rbuf); err != nil {
			log.Printf("%s: recorder: %v", b.Name, err)
		}
	}
	b.cycles++
	b.snap.Store(b.store.Snapshot())
	return nil
}

// Run runs a cycle every period until the context is done.
// Failed cycles are logged, and the board carries on.
func (b *Board) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	ns := int(period.Nanoseconds())
	log.Printf("%s: Period %s, ticker started", b.Name, period.String())
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: stopped after %d cycles (%d errors)", b.Name, b.cycles, b.Errors)
			return ctx.Err()
		case <-ticker.C:
			if err := b.Cycle(ns); err != nil {
				log.Printf("%v", err)
			}
		}
	}
}
