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

package simulator_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aamcrae/litexenc/board"
	"github.com/aamcrae/litexenc/encoder"
	"github.com/aamcrae/litexenc/hal"
	"github.com/aamcrae/litexenc/simulator"
)

const name = "sim"

var _ = Describe("Simulated FPGA", func() {
	var (
		store *hal.Store
		fpga  *simulator.FPGA
		b     *board.Board
	)

	value := func(i int, pin string) hal.Value {
		full := encoder.PinName(name, i, pin)
		for _, v := range b.Snapshot() {
			if v.Name == full {
				return v
			}
		}
		Fail("no pin " + full)
		return hal.Value{}
	}

	cycles := func(n int) {
		for i := 0; i < n; i++ {
			Expect(b.Cycle(int(time.Millisecond))).To(Succeed())
		}
	}

	BeforeEach(func() {
		store = hal.NewStore()
		reg := board.NewRegistry()
		Expect(reg.Register(board.EncoderModule)).To(Succeed())
		fpga = simulator.New(name, 3, time.Millisecond)
		cfg := &board.Config{
			Name:     name,
			Period:   time.Millisecond,
			Channels: []board.Channel{{Scale: 1, X4: true}, {Scale: 1, X4: true}, {Scale: 1, X4: true}},
		}
		var err error
		b, err = board.New(name, reg, store, cfg.Modules(), fpga)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Apply(store)).To(Succeed())
	})

	Context("with a constant rate", func() {
		It("should track position and velocity", func() {
			fpga.Channel(0).Rate = 100000
			cycles(10)
			Expect(fpga.Channel(0).Count()).To(Equal(int32(1000)))
			Expect(value(0, "position").Float).To(Equal(1000.0))
			Expect(value(0, "velocity").Float).To(BeNumerically("~", 100000.0, 1e-3))
			Expect(value(0, "velocity-rpm").Float).To(BeNumerically("~", 6000000.0, 1e-1))
			Expect(value(0, "overflow-occurred").Bit).To(BeFalse())
		})

		It("should run backwards", func() {
			fpga.Channel(1).Rate = -4000
			cycles(5)
			Expect(value(1, "counts").S32).To(Equal(int32(-20)))
			Expect(value(1, "position").Float).To(Equal(-20.0))
		})
	})

	Context("when the counter wraps", func() {
		It("should switch to incremental tracking", func() {
			c := fpga.Channel(1)
			c.Preset(2147483000)
			c.Rate = 500000
			cycles(1)
			Expect(value(1, "position").Float).To(Equal(2147483500.0))
			Expect(value(1, "overflow-occurred").Bit).To(BeFalse())
			cycles(1)
			Expect(c.Count()).To(BeNumerically("<", 0))
			Expect(value(1, "overflow-occurred").Bit).To(BeTrue())
			Expect(value(1, "position").Float).To(Equal(2147484000.0))
			cycles(1)
			Expect(value(1, "position").Float).To(Equal(2147484500.0))
		})
	})

	Context("with the index enabled", func() {
		It("should reset the counter at the index mark", func() {
			c := fpga.Channel(0)
			c.Rate = 100000
			c.IndexEvery = 1000
			Expect(b.Inject(encoder.PinName(name, 0, "index-enable"), true)).To(Succeed())
			cycles(9)
			Expect(value(0, "index-enable").Bit).To(BeTrue())
			Expect(value(0, "position").Float).To(Equal(900.0))
			velocity := value(0, "velocity").Float

			cycles(1)
			Expect(c.Pulse()).To(BeTrue())
			Expect(value(0, "index-pulse").Bit).To(BeTrue())
			Expect(value(0, "index-enable").Bit).To(BeFalse())
			Expect(value(0, "position").Float).To(Equal(0.0))
			Expect(value(0, "velocity").Float).To(Equal(velocity))

			// The pulse is acknowledged in the next write.
			cycles(1)
			Expect(c.Pulse()).To(BeFalse())
			Expect(value(0, "index-pulse").Bit).To(BeFalse())
			Expect(value(0, "position").Float).To(Equal(100.0))
		})

		It("should never address the last encoder", func() {
			c := fpga.Channel(2)
			c.Rate = 100000
			c.IndexEvery = 100
			Expect(b.Inject(encoder.PinName(name, 2, "index-enable"), true)).To(Succeed())
			cycles(5)
			Expect(c.Pulse()).To(BeFalse())
			Expect(value(2, "index-enable").Bit).To(BeTrue())
			Expect(value(2, "position").Float).To(Equal(500.0))
		})
	})

	It("should reject short buffers", func() {
		err := fpga.Transfer(make([]byte, 2), make([]byte, encoder.ReadBufferSize(3)))
		Expect(err).To(MatchError(ContainSubstring("too short")))
	})
})
