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

import (
	"github.com/arloliu/mebo/endian"
)

// The FPGA sends all multi-byte fields MSB first.
var wire = endian.GetBigEndianEngine()

// decodeRecord returns the count held in a single encoder record.
func decodeRecord(src []byte) int32 {
	return int32(wire.Uint32(src[:RecordSize]))
}

// EncodeRecord writes a count as a single encoder record, and returns
// the bytes used.
func EncodeRecord(dst []byte, counts int32) int {
	wire.PutUint32(dst[:RecordSize], uint32(counts))
	return RecordSize
}

// AppendConfig appends the configuration stream for a module with n
// encoders.
func AppendConfig(dst []byte, n int) []byte {
	return wire.AppendUint32(dst, uint32(n))
}
