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

// Trace replay utility.
// The trace holds the FPGA buffers only. Encoder parameters come from
// the board config (-config) or the -scale and -x4 flags, and resets
// injected by the homing switch are not recorded, so positions replayed
// after a homing reset are relative to the start of the trace.

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aamcrae/config"

	"github.com/aamcrae/litexenc/board"
	"github.com/aamcrae/litexenc/encoder"
	"github.com/aamcrae/litexenc/hal"
	"github.com/aamcrae/litexenc/trace"
)

var traceFile = flag.String("trace", "", "Trace file to replay")
var configFile = flag.String("config", "", "Board configuration file for the encoder parameters")
var every = flag.Int("every", 1, "Print the encoder state every N cycles")
var scale = flag.Float64("scale", 1.0, "Position scale applied to all encoders, if no config")
var x4 = flag.Bool("x4", true, "Replay encoders in x4 mode, if no config")

func main() {
	flag.Parse()
	f, err := os.Open(*traceFile)
	if err != nil {
		log.Fatalf("%s: %v", *traceFile, err)
	}
	defer f.Close()
	r, err := trace.NewReader(f)
	if err != nil {
		log.Fatalf("%s: %v", *traceFile, err)
	}
	store := hal.NewStore()
	var enc *encoder.Module
	for _, mc := range r.Header.Modules {
		if mc.ID != encoder.ID {
			log.Printf("%s: skipping module %s", *traceFile, board.IDString(mc.ID))
			continue
		}
		m, _, err := board.EncoderModule.Init(store, r.Header.Board, mc.Config)
		if err != nil {
			log.Fatalf("%s: %v", *traceFile, err)
		}
		enc = m.(*encoder.Module)
	}
	if enc == nil {
		log.Fatalf("%s: no encoder module in trace", *traceFile)
	}
	if len(*configFile) != 0 {
		if err := applyConfig(*configFile, store, r.Header.Board, enc.Count()); err != nil {
			log.Fatalf("%s: %v", *configFile, err)
		}
	} else {
		for i := 0; i < enc.Count(); i++ {
			s, _ := store.Float(encoder.PinName(r.Header.Board, i, "position-scale"))
			s.Set(*scale)
			b, _ := store.Bit(encoder.PinName(r.Header.Board, i, "x4-mode"))
			b.Set(*x4)
		}
	}
	fmt.Printf("Board %s, %d encoders, codec %s\n", r.Header.Board, enc.Count(), r.Header.Codec)
	frames := 0
	for {
		fr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("%s: frame %d: %v", *traceFile, frames, err)
		}
		// The encoder module is the only one, so its read data starts the buffer.
		enc.ProcessRead(fr.Read, fr.Period)
		frames++
		if *every > 0 && fr.Cycle%uint64(*every) == 0 {
			for i := 0; i < enc.Count(); i++ {
				s := enc.State(i)
				fmt.Printf("%8d %02d: count %11d pos %12.4f vel %12.4f overflow %v index %v\n",
					fr.Cycle, i, s.Counts, s.Position, s.Velocity, s.Overflow, s.IndexPulse)
			}
		}
	}
	fmt.Printf("%d frames\n", frames)
}

// applyConfig sets the per encoder parameters from the board config
// the trace was recorded with.
func applyConfig(file string, store *hal.Store, name string, count int) error {
	conf, err := config.ParseFile(file)
	if err != nil {
		return err
	}
	bc, err := board.LoadConfig(conf)
	if err != nil {
		return err
	}
	if bc.Name != name || len(bc.Channels) != count {
		return fmt.Errorf("config is for %s with %d encoders, trace is %s with %d", bc.Name, len(bc.Channels), name, count)
	}
	return bc.Apply(store)
}
