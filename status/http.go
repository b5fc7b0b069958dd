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

// HTTP server for encoder status
package status

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/fogleman/gg"

	"github.com/aamcrae/litexenc/encoder"
	"github.com/aamcrae/litexenc/hal"
)

const dialSize = 200
const labelHeight = 40

// Source provides a copy of the current pin values.
type Source interface {
	Snapshot() []hal.Value
}

// Server serves the state of the encoders of a board.
type Server struct {
	Name string
	src  Source
}

// dial is the displayed state of one encoder.
type dial struct {
	name     string
	position float64
	velocity float64
	overflow bool
	index    bool
}

// NewServer creates a status server for the board.
func NewServer(name string, src Source) *Server {
	s := new(Server)
	s.Name = name
	s.src = src
	return s
}

// Handler returns the handler for the status pages.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/encoders.png", http.HandlerFunc(s.serveImage))
	mux.Handle("/status", http.HandlerFunc(s.serveText))
	return mux
}

// ListenAndServe starts the server on the port, and does not return
// unless the server fails.
func (s *Server) ListenAndServe(port int) error {
	url := fmt.Sprintf(":%d", port)
	log.Printf("%s: Starting status server on %s", s.Name, url)
	server := &http.Server{Addr: url, Handler: s.Handler()}
	return server.ListenAndServe()
}

func (s *Server) serveText(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	for _, v := range s.src.Snapshot() {
		fmt.Fprintln(w, v.String())
	}
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	c := drawDials(dials(s.src.Snapshot()))
	if err := c.EncodePNG(w); err != nil {
		log.Printf("%s: Error writing image: %v", s.Name, err)
	}
}

// dials groups the encoder pins by encoder.
func dials(vals []hal.Value) []dial {
	byName := make(map[string]*dial)
	for _, v := range vals {
		i := strings.LastIndexByte(v.Name, '.')
		if i < 0 || !strings.Contains(v.Name[:i], "."+encoder.Name+".") {
			continue
		}
		base, pin := v.Name[:i], v.Name[i+1:]
		d, ok := byName[base]
		if !ok {
			d = &dial{name: base}
			byName[base] = d
		}
		switch pin {
		case "position":
			d.position = v.Float
		case "velocity":
			d.velocity = v.Float
		case "overflow-occurred":
			d.overflow = v.Bit
		case "index-pulse":
			d.index = v.Bit
		}
	}
	var list []dial
	for _, d := range byName {
		list = append(list, *d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

// drawDials draws a dial per encoder, with a needle at the fractional part
// of the position, so that one unit is one turn of the dial. A needle drawn
// in red shows the position is being tracked incrementally.
func drawDials(list []dial) *gg.Context {
	cols := len(list)
	if cols == 0 {
		cols = 1
	}
	c := gg.NewContext(cols*dialSize, dialSize+labelHeight)
	c.SetRGB(1, 1, 1)
	c.Clear()
	radius := float64(dialSize/2 - 10)
	for i, d := range list {
		cx := float64(i*dialSize + dialSize/2)
		cy := float64(dialSize / 2)
		c.SetRGB(0, 0, 0)
		c.SetLineWidth(2)
		c.DrawCircle(cx, cy, radius)
		c.Stroke()
		if d.index {
			c.SetRGB(0, 1, 0)
			c.DrawCircle(cx, cy, 6)
			c.Fill()
		}
		turn := d.position - math.Floor(d.position)
		radians := turn * 2 * math.Pi
		x := radius*math.Sin(radians) + cx
		y := cy - radius*math.Cos(radians)
		if d.overflow {
			c.SetRGB(1, 0, 0)
		} else {
			c.SetRGB(0, 0, 1)
		}
		c.SetLineWidth(4)
		c.DrawLine(cx, cy, x, y)
		c.Stroke()
		c.SetRGB(0, 0, 0)
		c.DrawStringAnchored(d.name, cx, dialSize+10, 0.5, 0.5)
		c.DrawStringAnchored(fmt.Sprintf("%.3f @ %.1f/s", d.position, d.velocity), cx, dialSize+28, 0.5, 0.5)
	}
	return c
}
