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

package heap

import "fmt"

// Ref is a handle to a value in a Heap.
//
//	0                        null
//	xxxx...xxx1              small integer (Smi), value in the upper 63 bits
//	gggg...gggiiii...iiii0   heap object, slot index i (32 bits) and
//	                         slot generation g (31 bits)
//
// A heap-object Ref stays valid until its slot is freed; after that the
// generation no longer matches and dereferencing it is a fatal error.
type Ref uint64

const (
	Null Ref = 0

	smiTag      = 1
	indexShift  = 1
	indexBits   = 32
	genShift    = indexShift + indexBits
	genMask     = (1 << 31) - 1
	maxSlotSize = 1<<indexBits - 1

	// SmiMin and SmiMax bound the integers representable as immediates.
	SmiMin = -(1 << 62)
	SmiMax = 1<<62 - 1
)

// IsSmiValue reports whether |v| can be represented as a Smi.
func IsSmiValue(v int64) bool {
	return v >= SmiMin && v <= SmiMax
}

// NewSmi returns the immediate Ref for |v|. It panics if |v| does not fit.
func NewSmi(v int64) Ref {
	if !IsSmiValue(v) {
		panic(fmt.Sprintf("%d does not fit in a Smi", v))
	}
	return Ref(uint64(v<<1) | smiTag)
}

func newObjectRef(index uint32, gen uint32) Ref {
	return Ref(uint64(index)<<indexShift | uint64(gen&genMask)<<genShift)
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == Null
}

// IsSmi reports whether r is an immediate small integer.
func (r Ref) IsSmi() bool {
	return r&smiTag == smiTag
}

// IsHeapObject reports whether r refers to an object stored in a heap slot.
func (r Ref) IsHeapObject() bool {
	return r != Null && !r.IsSmi()
}

// SmiValue returns the integer value of a Smi Ref.
func (r Ref) SmiValue() int64 {
	if !r.IsSmi() {
		panic(fmt.Sprintf("%s is not a Smi", r))
	}
	return int64(r) >> 1
}

func (r Ref) index() uint32 {
	return uint32(uint64(r) >> indexShift)
}

func (r Ref) generation() uint32 {
	return uint32(uint64(r)>>genShift) & genMask
}

func (r Ref) String() string {
	switch {
	case r.IsNull():
		return "null"
	case r.IsSmi():
		return fmt.Sprintf("smi(%d)", r.SmiValue())
	default:
		return fmt.Sprintf("@%d.%d", r.index(), r.generation())
	}
}
