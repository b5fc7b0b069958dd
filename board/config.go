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

package board

import (
	"fmt"
	"time"

	"github.com/aamcrae/config"
	"github.com/aamcrae/litexenc/encoder"
	"github.com/aamcrae/litexenc/hal"
	"github.com/pkg/errors"
)

// EncoderModule registers the encoder module.
var EncoderModule = Registration{
	ID:   encoder.ID,
	Name: encoder.Name,
	Init: func(store *hal.Store, board string, config []byte) (Module, []byte, error) {
		m, rest, err := encoder.New(store, board, config)
		if err != nil {
			return nil, rest, err
		}
		return m, rest, nil
	},
}

// Channel holds the parameters of one encoder.
type Channel struct {
	Scale float64 // Counts per unit
	X4    bool
}

// Config is the board configuration, read from a configuration file.
type Config struct {
	Name     string
	Period   time.Duration
	Channels []Channel
}

var defaultChannel = Channel{Scale: 1.0, X4: true}

// LoadConfig reads and validates a board config.
// Sample config (comments must be on their own line):
//  [board]
//  # board name, used as the prefix of pin names
//  name=fpga0
//  period=1ms
//  [encoder]
//  count=3
//  # position scale (counts per unit), x4 mode
//  channel0=2000.0,1
//  # channels not listed use a scale of 1 in x4 mode
//  channel1=512.0,0
func LoadConfig(conf *config.Config) (*Config, error) {
	s := conf.GetSection("board")
	if s == nil {
		return nil, fmt.Errorf("no config for board")
	}
	var c Config
	var err error
	c.Name, err = s.GetArg("name")
	if err != nil {
		return nil, errors.Wrap(err, "name")
	}
	p, err := s.GetArg("period")
	if err != nil {
		return nil, errors.Wrap(err, "period")
	}
	c.Period, err = time.ParseDuration(p)
	if err != nil {
		return nil, errors.Wrap(err, "period")
	}
	if c.Period <= 0 {
		return nil, fmt.Errorf("period: %s is not positive", p)
	}
	e := conf.GetSection("encoder")
	if e == nil {
		// A board without encoders.
		return &c, nil
	}
	var count int
	n, err := e.Parse("count", "%d", &count)
	if err != nil {
		return nil, errors.Wrap(err, "count")
	}
	if n != 1 {
		return nil, fmt.Errorf("count: argument count")
	}
	if count < 0 || count > encoder.MaxInstances {
		return nil, fmt.Errorf("count: %d out of range", count)
	}
	c.Channels = make([]Channel, count)
	for i := range c.Channels {
		key := fmt.Sprintf("channel%d", i)
		c.Channels[i] = defaultChannel
		if !e.Has(key) {
			continue
		}
		var x4 int
		n, err = e.Parse(key, "%f,%d", &c.Channels[i].Scale, &x4)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		if n != 2 {
			return nil, fmt.Errorf("%s: argument count", key)
		}
		c.Channels[i].X4 = x4 != 0
	}
	return &c, nil
}

// Modules returns the module configuration for the board.
func (c *Config) Modules() []ModuleConfig {
	return []ModuleConfig{
		{ID: encoder.ID, Config: encoder.AppendConfig(nil, len(c.Channels))},
	}
}

// Apply sets the parameters of the encoders once the modules are created.
func (c *Config) Apply(store *hal.Store) error {
	for i, ch := range c.Channels {
		scale, err := store.Float(encoder.PinName(c.Name, i, "position-scale"))
		if err != nil {
			return err
		}
		scale.Set(ch.Scale)
		x4, err := store.Bit(encoder.PinName(c.Name, i, "x4-mode"))
		if err != nil {
			return err
		}
		x4.Set(ch.X4)
	}
	return nil
}
