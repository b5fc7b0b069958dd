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

// Encoder daemon

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aamcrae/config"

	"github.com/aamcrae/litexenc/board"
	"github.com/aamcrae/litexenc/encoder"
	"github.com/aamcrae/litexenc/hal"
	"github.com/aamcrae/litexenc/io"
	"github.com/aamcrae/litexenc/simulator"
	"github.com/aamcrae/litexenc/status"
	"github.com/aamcrae/litexenc/trace"
)

var configFile = flag.String("config", "", "Configuration file")
var traceFile = flag.String("trace", "", "File to record the FPGA buffers to")
var codec = flag.String("codec", "s2", "Trace compression (none, s2, zstd, lz4)")
var port = flag.Int("port", 0, "Port for status server, 0 for none")
var resetGpio = flag.Int("reset-gpio", -1, "GPIO pin of homing switch, -1 for none")
var resetEdge = flag.String("reset-edge", "rising", "Edge of homing switch")
var resetEncoder = flag.Int("reset-encoder", 0, "Encoder reset by the homing switch")
var rate = flag.Float64("rate", 4000, "Simulated counts per second")
var indexEvery = flag.Int64("index", 0, "Simulated counts between index marks, 0 for none")

func main() {
	flag.Parse()
	conf, err := config.ParseFile(*configFile)
	if err != nil {
		log.Fatalf("%s: %v", *configFile, err)
	}
	bc, err := board.LoadConfig(conf)
	if err != nil {
		log.Fatalf("%s: %v", *configFile, err)
	}
	reg := board.NewRegistry()
	if err := reg.Register(board.EncoderModule); err != nil {
		log.Fatalf("%v", err)
	}
	fpga := simulator.New(bc.Name, len(bc.Channels), bc.Period)
	for i := range bc.Channels {
		ch := fpga.Channel(i)
		ch.Rate = *rate * float64(i+1)
		ch.IndexEvery = *indexEvery
	}
	store := hal.NewStore()
	mods := bc.Modules()
	b, err := board.New(bc.Name, reg, store, mods, fpga)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := bc.Apply(store); err != nil {
		log.Fatalf("%s: %v", bc.Name, err)
	}
	var tw *trace.Writer
	var tf *os.File
	if len(*traceFile) != 0 {
		tw, tf, err = openTrace(*traceFile, bc.Name, mods)
		if err != nil {
			log.Fatalf("%s: %v", *traceFile, err)
		}
		b.Recorder = tw
	}
	if *port != 0 {
		s := status.NewServer(bc.Name, b)
		go func() {
			log.Fatal(s.ListenAndServe(*port))
		}()
	}
	if *resetGpio >= 0 {
		if err := homing(b, *resetGpio, encoder.PinName(bc.Name, *resetEncoder, "reset")); err != nil {
			log.Fatalf("gpio %d: %v", *resetGpio, err)
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	b.Run(ctx, bc.Period)
	if tw != nil {
		if err := tw.Flush(); err != nil {
			log.Printf("%s: %v", *traceFile, err)
		}
		if err := tf.Close(); err != nil {
			log.Printf("%s: %v", *traceFile, err)
		}
		log.Printf("%s: %d frames recorded", *traceFile, tw.Frames)
	}
}

func openTrace(file, name string, mods []board.ModuleConfig) (*trace.Writer, *os.File, error) {
	c, err := trace.ParseCodec(*codec)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Create(file)
	if err != nil {
		return nil, nil, err
	}
	tw, err := trace.NewWriter(f, trace.Header{Board: name, Codec: c, Modules: mods})
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return tw, f, nil
}

// homing resets the encoder position each time the switch is triggered.
func homing(b *board.Board, pin int, reset string) error {
	e, err := io.ParseEdge(*resetEdge)
	if err != nil {
		return err
	}
	p, err := io.Pin(pin)
	if err != nil {
		return err
	}
	if err := p.Edge(e); err != nil {
		p.Close()
		return err
	}
	go func() {
		defer p.Close()
		for {
			v, err := p.Get()
			if err != nil {
				log.Printf("gpio %d: %v", pin, err)
				return
			}
			if v == 0 && e != io.FALLING {
				continue
			}
			if err := b.Inject(reset, true); err != nil {
				log.Printf("gpio %d: %v", pin, err)
			}
		}
	}()
	log.Printf("gpio %d: homing switch resets %s", pin, reset)
	return nil
}
