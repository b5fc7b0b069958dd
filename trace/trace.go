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

// Package trace records the buffers exchanged with the FPGA each cycle,
// so that a run can be replayed through the modules later.
//
// A trace file is a header followed by frames, all little-endian:
//
//	header: "ENCT" version:u8 codec:u8 namelen:u16 name
//	        modules:u16 { id:u32 len:u32 config }
//	frame:  flags:u8 stored:u32 size:u32 xxhash64:u64 payload
//	payload (before compression): cycle:u64 period:u32
//	        wlen:u32 write rlen:u32 read
package trace

import (
	"bufio"
	"io"

	"github.com/aamcrae/litexenc/board"
	"github.com/arloliu/mebo/endian"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const (
	magic   = "ENCT"
	version = 1

	frameHeaderSize = 1 + 4 + 4 + 8
	flagCompressed  = 0x01

	// Limit on a single frame, to catch corrupt files.
	maxFrame = 16 * 1024 * 1024
)

var (
	ErrMagic    = errors.New("trace: not a trace file")
	ErrVersion  = errors.New("trace: unsupported version")
	ErrChecksum = errors.New("trace: frame checksum mismatch")
	ErrCorrupt  = errors.New("trace: corrupt frame")
)

var le = endian.GetLittleEndianEngine()

// Header describes the board the trace was taken from.
type Header struct {
	Board   string
	Codec   Codec
	Modules []board.ModuleConfig
}

// Frame holds the buffers of one cycle.
type Frame struct {
	Cycle  uint64
	Period int
	Write  []byte
	Read   []byte
}

// Writer writes a trace. It implements board.Recorder.
type Writer struct {
	w       *bufio.Writer
	c       compressor
	codec   Codec
	payload []byte
	packed  []byte
	hdr     [frameHeaderSize]byte
	Frames  int
}

// NewWriter writes the header to w and returns a Writer for the frames.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	c, err := newCompressor(h.Codec)
	if err != nil {
		return nil, err
	}
	tw := &Writer{w: bufio.NewWriter(w), c: c, codec: h.Codec}
	b := []byte(magic)
	b = append(b, version, byte(h.Codec))
	b = le.AppendUint16(b, uint16(len(h.Board)))
	b = append(b, h.Board...)
	b = le.AppendUint16(b, uint16(len(h.Modules)))
	for _, m := range h.Modules {
		b = le.AppendUint32(b, m.ID)
		b = le.AppendUint32(b, uint32(len(m.Config)))
		b = append(b, m.Config...)
	}
	if _, err := tw.w.Write(b); err != nil {
		return nil, errors.Wrap(err, "trace header")
	}
	return tw, nil
}

// Record writes a frame.
func (tw *Writer) Record(cycle uint64, period int, w, r []byte) error {
	p := tw.payload[:0]
	p = le.AppendUint64(p, cycle)
	p = le.AppendUint32(p, uint32(period))
	p = le.AppendUint32(p, uint32(len(w)))
	p = append(p, w...)
	p = le.AppendUint32(p, uint32(len(r)))
	p = append(p, r...)
	tw.payload = p

	var flags byte
	out := p
	if tw.codec != None {
		packed, err := tw.c.Compress(tw.packed, p)
		if err != nil {
			return errors.Wrapf(err, "trace: %s", tw.codec)
		}
		tw.packed = packed
		// Data that does not compress is stored as is.
		if len(packed) != 0 && len(packed) < len(p) {
			flags |= flagCompressed
			out = packed
		}
	}
	tw.hdr[0] = flags
	le.PutUint32(tw.hdr[1:], uint32(len(out)))
	le.PutUint32(tw.hdr[5:], uint32(len(p)))
	le.PutUint64(tw.hdr[9:], xxhash.Sum64(p))
	if _, err := tw.w.Write(tw.hdr[:]); err != nil {
		return err
	}
	if _, err := tw.w.Write(out); err != nil {
		return err
	}
	tw.Frames++
	return nil
}

// Flush writes any buffered frames.
func (tw *Writer) Flush() error {
	return tw.w.Flush()
}

// Reader reads the frames of a trace.
type Reader struct {
	Header Header
	r      *bufio.Reader
	c      compressor
	stored []byte
	raw    []byte
}

// NewReader reads the trace header from r.
func NewReader(r io.Reader) (*Reader, error) {
	tr := &Reader{r: bufio.NewReader(r)}
	var fixed [8]byte
	if _, err := io.ReadFull(tr.r, fixed[:]); err != nil {
		return nil, errors.Wrap(ErrMagic, err.Error())
	}
	if string(fixed[:4]) != magic {
		return nil, ErrMagic
	}
	if fixed[4] != version {
		return nil, errors.Wrapf(ErrVersion, "%d", fixed[4])
	}
	tr.Header.Codec = Codec(fixed[5])
	var err error
	if tr.c, err = newCompressor(tr.Header.Codec); err != nil {
		return nil, err
	}
	name := make([]byte, le.Uint16(fixed[6:]))
	if _, err := io.ReadFull(tr.r, name); err != nil {
		return nil, errors.Wrap(err, "trace header")
	}
	tr.Header.Board = string(name)
	var word [4]byte
	if _, err := io.ReadFull(tr.r, word[:2]); err != nil {
		return nil, errors.Wrap(err, "trace header")
	}
	n := int(le.Uint16(word[:]))
	for i := 0; i < n; i++ {
		var m board.ModuleConfig
		if _, err := io.ReadFull(tr.r, word[:]); err != nil {
			return nil, errors.Wrap(err, "trace header")
		}
		m.ID = le.Uint32(word[:])
		if _, err := io.ReadFull(tr.r, word[:]); err != nil {
			return nil, errors.Wrap(err, "trace header")
		}
		size := le.Uint32(word[:])
		if size > maxFrame {
			return nil, errors.Wrap(ErrCorrupt, "module config size")
		}
		m.Config = make([]byte, size)
		if _, err := io.ReadFull(tr.r, m.Config); err != nil {
			return nil, errors.Wrap(err, "trace header")
		}
		tr.Header.Modules = append(tr.Header.Modules, m)
	}
	return tr, nil
}

// Next returns the next frame, or io.EOF at the end of the trace.
// The buffers in the frame are only valid until the next call.
func (tr *Reader) Next() (*Frame, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(tr.r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrCorrupt, "short frame header")
		}
		return nil, err
	}
	flags := hdr[0]
	stored := le.Uint32(hdr[1:])
	size := le.Uint32(hdr[5:])
	sum := le.Uint64(hdr[9:])
	if stored > maxFrame || size > maxFrame {
		return nil, errors.Wrap(ErrCorrupt, "frame size")
	}
	if cap(tr.stored) < int(stored) {
		tr.stored = make([]byte, stored)
	}
	tr.stored = tr.stored[:stored]
	if _, err := io.ReadFull(tr.r, tr.stored); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	p := tr.stored
	if flags&flagCompressed != 0 {
		raw, err := tr.c.Decompress(tr.raw, tr.stored, int(size))
		if err != nil {
			return nil, errors.Wrapf(ErrCorrupt, "%s: %v", tr.Header.Codec, err)
		}
		tr.raw = raw
		p = raw
	}
	if len(p) != int(size) {
		return nil, errors.Wrap(ErrCorrupt, "frame length")
	}
	if xxhash.Sum64(p) != sum {
		return nil, ErrChecksum
	}
	return decodePayload(p)
}

func decodePayload(p []byte) (*Frame, error) {
	if len(p) < 16 {
		return nil, errors.Wrap(ErrCorrupt, "payload")
	}
	f := new(Frame)
	f.Cycle = le.Uint64(p)
	f.Period = int(int32(le.Uint32(p[8:])))
	p = p[12:]
	var err error
	if f.Write, p, err = lenPrefixed(p); err != nil {
		return nil, err
	}
	if f.Read, _, err = lenPrefixed(p); err != nil {
		return nil, err
	}
	return f, nil
}

func lenPrefixed(p []byte) ([]byte, []byte, error) {
	if len(p) < 4 {
		return nil, nil, errors.Wrap(ErrCorrupt, "payload")
	}
	n := int(le.Uint32(p))
	p = p[4:]
	if n > len(p) {
		return nil, nil, errors.Wrap(ErrCorrupt, "payload")
	}
	return p[:n], p[n:], nil
}
