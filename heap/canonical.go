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

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/dolthub/heapsnap/d"
)

// UnusedEntry marks an empty slot of a CanonicalSet. It is never a valid
// object Ref because slot index maxSlotSize is never allocated.
const UnusedEntry = Ref(uint64(maxSlotSize) << indexShift)

const minCanonicalCapacity = 8

// CanonicalCapacity returns the capacity a CanonicalSet needs to hold |n|
// members without growing.
func CanonicalCapacity(n int) int {
	c := minCanonicalCapacity
	for n*4 > c*3 {
		c *= 2
	}
	return c
}

// IsCanonicalizable reports whether objects of class |cid| are interned in a
// canonical set.
func IsCanonicalizable(cid ClassID) bool {
	return cid == StringCid || cid == TypeCid || cid == TypeArgumentsCid
}

// CanonicalSet is an open-addressed hash set of interned objects of one
// class. Capacity is a power of two and probing is linear.
type CanonicalSet struct {
	h     *Heap
	cid   ClassID
	slots []Ref
	used  int
}

// NewCanonicalSet returns an empty set of the given capacity, which must be
// a power of two.
func NewCanonicalSet(h *Heap, cid ClassID, capacity int) *CanonicalSet {
	d.PanicIfFalse(capacity > 0 && capacity&(capacity-1) == 0)
	s := &CanonicalSet{h: h, cid: cid, slots: make([]Ref, capacity)}
	for i := range s.slots {
		s.slots[i] = UnusedEntry
	}
	return s
}

// CanonicalSetFromSlots adopts a slot array built elsewhere.
func CanonicalSetFromSlots(h *Heap, cid ClassID, slots []Ref) *CanonicalSet {
	d.PanicIfFalse(len(slots) > 0 && len(slots)&(len(slots)-1) == 0)
	s := &CanonicalSet{h: h, cid: cid, slots: slots}
	for _, r := range slots {
		if r != UnusedEntry {
			s.used++
		}
	}
	return s
}

func (s *CanonicalSet) ClassID() ClassID { return s.cid }
func (s *CanonicalSet) Capacity() int    { return len(s.slots) }
func (s *CanonicalSet) Len() int         { return s.used }

// Slots returns a copy of the slot array.
func (s *CanonicalSet) Slots() []Ref {
	return append([]Ref(nil), s.slots...)
}

// Members returns the members in slot order.
func (s *CanonicalSet) Members() []Ref {
	out := make([]Ref, 0, s.used)
	for _, r := range s.slots {
		if r != UnusedEntry {
			out = append(out, r)
		}
	}
	return out
}

// Lookup returns the member structurally equal to |r|.
func (s *CanonicalSet) Lookup(r Ref) (Ref, bool) {
	mask := len(s.slots) - 1
	for i := int(s.h.CanonicalHash(r)) & mask; ; i = (i + 1) & mask {
		cur := s.slots[i]
		if cur == UnusedEntry {
			return Null, false
		}
		if cur == r || s.h.CanonicalEquals(cur, r) {
			return cur, true
		}
	}
}

// Insert adds |r|, which must not already have an equal member.
func (s *CanonicalSet) Insert(r Ref) {
	if (s.used+1)*4 > len(s.slots)*3 {
		s.rehash(len(s.slots) * 2)
	}
	s.place(r)
	s.used++
}

// LookupOrInsert returns the existing equal member, or inserts |r| and
// returns it. The second result is true when |r| was inserted.
func (s *CanonicalSet) LookupOrInsert(r Ref) (Ref, bool) {
	if found, ok := s.Lookup(r); ok {
		return found, false
	}
	s.Insert(r)
	return r, true
}

func (s *CanonicalSet) place(r Ref) {
	mask := len(s.slots) - 1
	i := int(s.h.CanonicalHash(r)) & mask
	for s.slots[i] != UnusedEntry {
		i = (i + 1) & mask
	}
	s.slots[i] = r
}

func (s *CanonicalSet) rehash(capacity int) {
	members := s.Members()
	s.slots = make([]Ref, capacity)
	for i := range s.slots {
		s.slots[i] = UnusedEntry
	}
	for _, r := range members {
		s.place(r)
	}
}

// CanonicalHash is the structural hash used by canonical sets.
func (h *Heap) CanonicalHash(r Ref) uint64 {
	if !r.IsHeapObject() {
		return mix(uint64(r))
	}
	switch o := h.Get(r).(type) {
	case *String:
		return o.Hash()
	case *Type:
		if !o.hashed {
			var b [8 + 8 + 8 + 1]byte
			binary.LittleEndian.PutUint64(b[0:], uint64(TypeCid))
			binary.LittleEndian.PutUint64(b[8:], uint64(o.TypeClass))
			binary.LittleEndian.PutUint64(b[16:], h.CanonicalHash(o.Arguments))
			b[24] = byte(o.Nullability)
			o.hash = xxhash.Sum64(b[:])
			o.hashed = true
		}
		return o.hash
	case *TypeArguments:
		if !o.hashed {
			b := make([]byte, 8+8*len(o.Types))
			binary.LittleEndian.PutUint64(b, uint64(TypeArgumentsCid))
			for i, t := range o.Types {
				binary.LittleEndian.PutUint64(b[8+8*i:], h.CanonicalHash(t))
			}
			o.hash = xxhash.Sum64(b)
			o.hashed = true
		}
		return o.hash
	}
	return h.KeyHash(r)
}

// CanonicalEquals is the structural equality matching CanonicalHash.
func (h *Heap) CanonicalEquals(a, b Ref) bool {
	if a == b {
		return true
	}
	if !a.IsHeapObject() || !b.IsHeapObject() {
		return false
	}
	switch x := h.Get(a).(type) {
	case *String:
		y, ok := h.Get(b).(*String)
		return ok && string(x.Data) == string(y.Data)
	case *Type:
		y, ok := h.Get(b).(*Type)
		return ok && x.TypeClass == y.TypeClass && x.Nullability == y.Nullability &&
			x.Declaration == y.Declaration && h.CanonicalEquals(x.Arguments, y.Arguments)
	case *TypeArguments:
		y, ok := h.Get(b).(*TypeArguments)
		if !ok || len(x.Types) != len(y.Types) {
			return false
		}
		for i := range x.Types {
			if !h.CanonicalEquals(x.Types[i], y.Types[i]) {
				return false
			}
		}
		return true
	}
	return h.KeyEquals(a, b)
}

// Canonicalize interns |r| in the store's canonical set for its class and
// returns the canonical instance.
func (h *Heap) Canonicalize(r Ref) Ref {
	obj := h.Get(r)
	if obj.IsCanonical() {
		return r
	}
	set := h.store.CanonicalSet(obj.ClassID())
	d.Chk.NotNil(set, "class %s is not canonicalizable", obj.ClassID())
	canon, inserted := set.LookupOrInsert(r)
	if inserted {
		obj.SetCanonical(true)
	}
	return canon
}
