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

package encoder

// RecordSize is the size in bytes of the per-encoder record in the
// read buffer (a single big-endian 32 bit count).
const RecordSize = 4

// DWords returns the number of 32 bit words needed to hold one bit
// for each of n encoders.
func DWords(n int) int {
	return (n >> 5) + boolInt(n&0x1F != 0)
}

// sharedSize is the size in bytes of one shared register.
func sharedSize(n int) int {
	return DWords(n) * 4
}

// WriteBufferSize is the number of bytes written to the FPGA for n encoders.
// Each encoder has one bit in both the index enable and the reset
// index pulse registers.
func WriteBufferSize(n int) int {
	return sharedSize(n) * 2
}

// ReadBufferSize is the number of bytes read from the FPGA for n encoders,
// being the index pulse register followed by a count record per encoder.
func ReadBufferSize(n int) int {
	return sharedSize(n) + n*RecordSize
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
