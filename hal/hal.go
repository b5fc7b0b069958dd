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

// Package hal holds named interface values (pins and parameters)
// that are shared between the board runtime and the modules.

package hal

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Dir is the direction of a pin, as seen from the module.
type Dir int

// Directions
const (
	IN  Dir = iota // Written by the user, read by the module
	OUT            // Written by the module
	IO             // Read and written by both
	RW             // Read-write parameter
)

// Type of the stored value.
type Type int

const (
	TypeBit Type = iota
	TypeS32
	TypeFloat
)

var (
	ErrExists   = errors.New("name already exists")
	ErrNotFound = errors.New("name not found")
	ErrType     = errors.New("type mismatch")
)

// Bit is a handle to a boolean value held in a Store.
type Bit struct{ p *bool }

func (b Bit) Get() bool   { return *b.p }
func (b Bit) Set(v bool)  { *b.p = v }

// S32 is a handle to a signed 32 bit value held in a Store.
type S32 struct{ p *int32 }

func (s S32) Get() int32  { return *s.p }
func (s S32) Set(v int32) { *s.p = v }

// Float is a handle to a floating point value held in a Store.
type Float struct{ p *float64 }

func (f Float) Get() float64 { return *f.p }
func (f Float) Set(v float64) { *f.p = v }

type entry struct {
	name string
	typ  Type
	dir  Dir
	bit  *bool
	s32  *int32
	flt  *float64
}

// Value is a copy of a named value taken at a point in time.
type Value struct {
	Name  string
	Type  Type
	Dir   Dir
	Bit   bool
	S32   int32
	Float float64
}

// String formats the value for display.
func (v Value) String() string {
	switch v.Type {
	case TypeBit:
		return fmt.Sprintf("%s = %t", v.Name, v.Bit)
	case TypeS32:
		return fmt.Sprintf("%s = %d", v.Name, v.S32)
	default:
		return fmt.Sprintf("%s = %g", v.Name, v.Float)
	}
}

// Store owns the storage for all named values. Creating values is
// guarded, but access through the handles is not; handles must only
// be used from the thread running the control cycle.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := new(Store)
	s.entries = make(map[string]*entry)
	return s
}

func (s *Store) add(name string, t Type, d Dir) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return nil, errors.Wrap(ErrExists, name)
	}
	e := &entry{name: name, typ: t, dir: d}
	switch t {
	case TypeBit:
		e.bit = new(bool)
	case TypeS32:
		e.s32 = new(int32)
	case TypeFloat:
		e.flt = new(float64)
	}
	s.entries[name] = e
	return e, nil
}

// NewBit creates a named boolean value.
func (s *Store) NewBit(name string, d Dir) (Bit, error) {
	e, err := s.add(name, TypeBit, d)
	if err != nil {
		return Bit{}, err
	}
	return Bit{e.bit}, nil
}

// NewS32 creates a named signed 32 bit value.
func (s *Store) NewS32(name string, d Dir) (S32, error) {
	e, err := s.add(name, TypeS32, d)
	if err != nil {
		return S32{}, err
	}
	return S32{e.s32}, nil
}

// NewFloat creates a named floating point value.
func (s *Store) NewFloat(name string, d Dir) (Float, error) {
	e, err := s.add(name, TypeFloat, d)
	if err != nil {
		return Float{}, err
	}
	return Float{e.flt}, nil
}

func (s *Store) find(name string, t Type) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	if e.typ != t {
		return nil, errors.Wrap(ErrType, name)
	}
	return e, nil
}

// Bit returns a handle to an existing boolean value.
func (s *Store) Bit(name string) (Bit, error) {
	e, err := s.find(name, TypeBit)
	if err != nil {
		return Bit{}, err
	}
	return Bit{e.bit}, nil
}

// S32 returns a handle to an existing signed 32 bit value.
func (s *Store) S32(name string) (S32, error) {
	e, err := s.find(name, TypeS32)
	if err != nil {
		return S32{}, err
	}
	return S32{e.s32}, nil
}

// Float returns a handle to an existing floating point value.
func (s *Store) Float(name string) (Float, error) {
	e, err := s.find(name, TypeFloat)
	if err != nil {
		return Float{}, err
	}
	return Float{e.flt}, nil
}

// Snapshot copies all values, sorted by name.
func (s *Store) Snapshot() []Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := make([]Value, 0, len(s.entries))
	for _, e := range s.entries {
		v := Value{Name: e.name, Type: e.typ, Dir: e.dir}
		switch e.typ {
		case TypeBit:
			v.Bit = *e.bit
		case TypeS32:
			v.S32 = *e.s32
		case TypeFloat:
			v.Float = *e.flt
		}
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i].Name < vals[j].Name })
	return vals
}
