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
	"sort"
)

// StoreSlot names one global slot of the ObjectStore.
type StoreSlot int

const (
	MainFunctionSlot StoreSlot = iota
	GlobalsSlot
	LoadingUnitsSlot
	ConstantsSlot
	WeakCachesSlot
	CoreTypesSlot
	CoreStringsSlot

	NumStoreSlots
)

// NumProgramSlots is the number of leading slots a program snapshot carries.
// The remaining slots belong to the core snapshot.
const NumProgramSlots = CoreTypesSlot

var slotNames = [NumStoreSlots]string{
	MainFunctionSlot: "main_function",
	GlobalsSlot:      "globals",
	LoadingUnitsSlot: "loading_units",
	ConstantsSlot:    "constants",
	WeakCachesSlot:   "weak_caches",
	CoreTypesSlot:    "core_types",
	CoreStringsSlot:  "core_strings",
}

func (s StoreSlot) String() string {
	return slotNames[s]
}

// StoreSlotByName returns the slot called |name|.
func StoreSlotByName(name string) (StoreSlot, bool) {
	for i, n := range slotNames {
		if n == name {
			return StoreSlot(i), true
		}
	}
	return 0, false
}

// InstructionsRange maps a range of code addresses to the stack maps of the
// code living there.
type InstructionsRange struct {
	Start     uint64
	Length    uint64
	StackMaps Ref
}

// ObjectStore holds the runtime's global roots.
type ObjectStore struct {
	h             *Heap
	slots         [NumStoreSlots]Ref
	canonical     map[ClassID]*CanonicalSet
	dispatchTable []Ref
	instructions  []InstructionsRange
}

func newObjectStore(h *Heap) *ObjectStore {
	s := &ObjectStore{h: h, canonical: map[ClassID]*CanonicalSet{}}
	for _, cid := range []ClassID{StringCid, TypeCid, TypeArgumentsCid} {
		s.canonical[cid] = NewCanonicalSet(h, cid, minCanonicalCapacity)
	}
	return s
}

func (s *ObjectStore) Get(slot StoreSlot) Ref {
	return s.slots[slot]
}

func (s *ObjectStore) Set(slot StoreSlot, r Ref) {
	s.slots[slot] = r
}

// SlotRefs returns a pointer to every store slot, for rewriting.
func (s *ObjectStore) SlotRefs() []*Ref {
	out := make([]*Ref, len(s.slots))
	for i := range s.slots {
		out[i] = &s.slots[i]
	}
	return out
}

// CanonicalSet returns the set for |cid|, or nil if the class is not
// canonicalizable.
func (s *ObjectStore) CanonicalSet(cid ClassID) *CanonicalSet {
	return s.canonical[cid]
}

// SetCanonicalSet replaces the set for the set's class.
func (s *ObjectStore) SetCanonicalSet(set *CanonicalSet) {
	s.canonical[set.ClassID()] = set
}

// CanonicalClasses returns the canonicalizable class ids in ascending order.
func (s *ObjectStore) CanonicalClasses() []ClassID {
	out := make([]ClassID, 0, len(s.canonical))
	for cid := range s.canonical {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DispatchTable returns the code refs of the dispatch table; Null entries
// are invalid.
func (s *ObjectStore) DispatchTable() []Ref {
	return s.dispatchTable
}

func (s *ObjectStore) SetDispatchTable(t []Ref) {
	s.dispatchTable = t
}

// AddInstructionsTable registers code ranges. Ranges are kept sorted by
// start address.
func (s *ObjectStore) AddInstructionsTable(ranges []InstructionsRange) {
	s.instructions = append(s.instructions, ranges...)
	sort.Slice(s.instructions, func(i, j int) bool {
		return s.instructions[i].Start < s.instructions[j].Start
	})
}

// InstructionsTable returns every registered code range.
func (s *ObjectStore) InstructionsTable() []InstructionsRange {
	return s.instructions
}

// StackMapsAt returns the stack maps of the code containing |pc|.
func (s *ObjectStore) StackMapsAt(pc uint64) (Ref, bool) {
	i := sort.Search(len(s.instructions), func(i int) bool {
		return s.instructions[i].Start+s.instructions[i].Length > pc
	})
	if i == len(s.instructions) || s.instructions[i].Start > pc {
		return Null, false
	}
	return s.instructions[i].StackMaps, true
}

// LoadingUnit returns the loading unit with id |id| from the LoadingUnits
// slot.
func (s *ObjectStore) LoadingUnit(id int32) (Ref, bool) {
	units := s.slots[LoadingUnitsSlot]
	if units.IsNull() {
		return Null, false
	}
	arr := s.h.Array(units)
	if id < 0 || int(id) >= len(arr.Elements) || arr.Elements[id].IsNull() {
		return Null, false
	}
	return arr.Elements[id], true
}

// VisitRoots calls |visit| for every Ref held by the store.
func (s *ObjectStore) VisitRoots(visit func(p *Ref)) {
	for i := range s.slots {
		visit(&s.slots[i])
	}
	for i := range s.dispatchTable {
		visit(&s.dispatchTable[i])
	}
	for i := range s.instructions {
		visit(&s.instructions[i].StackMaps)
	}
}
