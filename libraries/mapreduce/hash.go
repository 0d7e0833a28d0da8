// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mapreduce

import "github.com/cespare/xxhash/v2"

// HashBytes is the default HashFunc building block: a fast, well
// distributed 64-bit hash truncated to 32 bits for the mod-N routing
// the engine does at reduce time.
func HashBytes(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

// HashString is HashBytes for string-keyed engines, avoiding a copy.
func HashString(s string) uint32 {
	return uint32(xxhash.Sum64String(s))
}
