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

package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt32Set(t *testing.T) {
	s := NewInt32Set([]int32{31415, 1234567890})

	assert.True(t, s.Contains(31415))
	assert.True(t, s.Contains(1234567890))
	assert.False(t, s.Contains(123))
	assert.Equal(t, 2, s.Size())

	s.Add(7)
	assert.True(t, s.Contains(7))
	assert.Equal(t, 3, s.Size())

	s.Remove(7)
	assert.False(t, s.Contains(7))
}

func TestInt32SetDifference(t *testing.T) {
	a := NewInt32Set([]int32{1, 2, 3})
	b := NewInt32Set([]int32{2, 3, 4})

	diff := a.Difference(b)
	assert.ElementsMatch(t, []int32{1}, diff.AsSlice())

	// (A - B) union (B intersect A) == A
	var inAandB []int32
	for _, v := range b.AsSlice() {
		if a.Contains(v) {
			inAandB = append(inAandB, v)
		}
	}
	union := NewInt32Set(diff.AsSlice())
	for _, v := range inAandB {
		union.Add(v)
	}
	assert.ElementsMatch(t, a.AsSlice(), union.AsSlice())
}

func TestInt32SetDifferenceAgainstNil(t *testing.T) {
	a := NewInt32Set([]int32{1, 2})
	diff := a.Difference(NewInt32Set(nil))
	assert.ElementsMatch(t, []int32{1, 2}, diff.AsSlice())
}

func TestStrSet(t *testing.T) {
	s := NewStrSet([]string{"a", "b", "c", "c"})
	assert.Equal(t, 3, s.Size())
	assert.True(t, s.ContainsAll([]string{"a", "b", "c"}))
	assert.False(t, s.Contains("d"))

	s.Add("d")
	assert.True(t, s.Contains("d"))
}
