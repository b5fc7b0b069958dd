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

package trace

import (
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Codec selects the compression used for frames.
type Codec uint8

const (
	None Codec = iota
	S2
	Zstd
	LZ4
)

var codecNames = []string{"none", "s2", "zstd", "lz4"}

var ErrCodec = errors.New("trace: unknown codec")

func (c Codec) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return "unknown"
}

// ParseCodec returns the codec with the given name.
func ParseCodec(s string) (Codec, error) {
	for i, n := range codecNames {
		if strings.EqualFold(s, n) {
			return Codec(i), nil
		}
	}
	return None, errors.Wrap(ErrCodec, s)
}

// compressor compresses single frames. Decompress is given the
// size of the original data.
type compressor interface {
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte, size int) ([]byte, error)
}

func newCompressor(c Codec) (compressor, error) {
	switch c {
	case None:
		return noop{}, nil
	case S2:
		return s2Codec{}, nil
	case Zstd:
		return newZstdCodec()
	case LZ4:
		return &lz4Codec{}, nil
	}
	return nil, errors.Wrapf(ErrCodec, "%d", c)
}

type noop struct{}

func (noop) Compress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (noop) Decompress(dst, src []byte, size int) ([]byte, error) {
	return append(dst[:0], src...), nil
}

type s2Codec struct{}

func (s2Codec) Compress(dst, src []byte) ([]byte, error) {
	return s2.Encode(dst[:cap(dst)], src), nil
}

func (s2Codec) Decompress(dst, src []byte, size int) ([]byte, error) {
	return s2.Decode(dst[:cap(dst)], src)
}

// zstdCodec keeps its encoder and decoder; the library is designed
// for them to be reused.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderCRC(false))
	if err != nil {
		return nil, errors.Wrap(err, "zstd encoder")
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, "zstd decoder")
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (z *zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z *zstdCodec) Decompress(dst, src []byte, size int) ([]byte, error) {
	return z.dec.DecodeAll(src, dst[:0])
}

type lz4Codec struct {
	c lz4.Compressor
}

func (l *lz4Codec) Compress(dst, src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:bound]
	n, err := l.c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func (l *lz4Codec) Decompress(dst, src []byte, size int) ([]byte, error) {
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
