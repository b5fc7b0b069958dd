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

// Shared bit registers

package encoder

// The shared registers hold one bit per encoder, packed into
// 32 bit words. The bits are walked from the highest ordinal
// (DWords(n)*32) down to 1, starting at the MSB of the first byte.
// An ordinal p is mapped to encoder p-1 only when p < n, so
// the encoder at n-1 is never addressed. This matches the
// FPGA and must not be changed on this side alone.

// EncodeShared packs one bit per encoder into dst, and returns the
// number of bytes used. The whole register region is overwritten.
func EncodeShared(dst []byte, n int, bit func(i int) bool) int {
	size := sharedSize(n)
	if size == 0 {
		return 0
	}
	dst = dst[:size]
	for i := range dst {
		dst[i] = 0
	}
	var mask uint8 = 0x80
	b := 0
	for p := size * 8; p > 0; p-- {
		if p < n && bit(p-1) {
			dst[b] |= mask
		}
		mask >>= 1
		if mask == 0 {
			mask = 0x80
			b++
		}
	}
	return size
}

// DecodeShared unpacks one bit per encoder from src, calling set for
// each encoder addressed. The number of bytes consumed is returned.
func DecodeShared(src []byte, n int, set func(i int, v bool)) int {
	size := sharedSize(n)
	if size == 0 {
		return 0
	}
	src = src[:size]
	var mask uint8 = 0x80
	b := 0
	for p := size * 8; p > 0; p-- {
		if p < n {
			set(p-1, src[b]&mask != 0)
		}
		mask >>= 1
		if mask == 0 {
			mask = 0x80
			b++
		}
	}
	return size
}

// addressed reports whether encoder i has a bit in the shared registers.
func addressed(i, n int) bool {
	return i >= 0 && i+1 < n
}
