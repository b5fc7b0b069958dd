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
	"sync"

	"github.com/aamcrae/litexenc/hal"
	"github.com/pkg/errors"
)

var (
	ErrDuplicate     = errors.New("module already registered")
	ErrUnknownModule = errors.New("unknown module")
)

// Module is the per-cycle interface of a board module.
// The buffers passed start at the module's own region, and the
// number of bytes used is returned.
type Module interface {
	RequiredWriteBuffer() int
	RequiredReadBuffer() int
	PrepareWrite(buf []byte, period int) int
	ProcessRead(buf []byte, period int) int
}

// InitFunc creates a module from its configuration stream, returning
// the unconsumed part of the stream.
type InitFunc func(store *hal.Store, board string, config []byte) (Module, []byte, error)

// Registration describes a type of module that a board may contain.
type Registration struct {
	ID   uint32
	Name string
	Init InitFunc
}

// Registry maps module IDs to registrations.
type Registry struct {
	mu   sync.Mutex
	mods map[uint32]Registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	r := new(Registry)
	r.mods = make(map[uint32]Registration)
	return r
}

// Register adds a module type.
func (r *Registry) Register(reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.mods[reg.ID]; ok {
		return errors.Wrapf(ErrDuplicate, "%s: id 0x%08x used by %s", reg.Name, reg.ID, old.Name)
	}
	r.mods[reg.ID] = reg
	return nil
}

// Lookup finds the registration for a module ID.
func (r *Registry) Lookup(id uint32) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.mods[id]
	if !ok {
		return Registration{}, errors.Wrap(ErrUnknownModule, IDString(id))
	}
	return reg, nil
}

// IDString formats a module ID, which is usually 4 ASCII characters.
func IDString(id uint32) string {
	b := []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	for _, c := range b {
		if c < ' ' || c > '~' {
			return fmt.Sprintf("0x%08x", id)
		}
	}
	return string(b)
}
