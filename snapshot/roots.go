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

package snapshot

import (
	"github.com/dolthub/heapsnap/d"
	"github.com/dolthub/heapsnap/heap"
)

// A root policy parameterizes both drivers for one kind of snapshot. The
// same value serves the write and the read side; its base object lists
// name objects of whichever heap the driver works on.
type Roots interface {
	SerializationRoots
	DeserializationRoots
}

var (
	_ Roots = FullRoots{}
	_ Roots = ProgramRoots{}
	_ Roots = UnitRoots{}
)

// FullRoots writes the core heap: the canonical sets and the VM slots of the
// object store. Base objects are the heap singletons.
type FullRoots struct{}

func (FullRoots) Kind() Kind    { return FullKind }
func (FullRoots) Primary() bool { return true }

func (FullRoots) AddBaseObjects(s *Serializer) {
	for _, r := range s.Heap().Singletons() {
		s.AddBaseObject(r)
	}
}

func (FullRoots) PushRoots(s *Serializer) {
	store := s.Heap().Store()
	for _, cid := range store.CanonicalClasses() {
		for _, r := range store.CanonicalSet(cid).Members() {
			s.Push(r)
		}
	}
	for slot := heap.NumProgramSlots; slot < heap.NumStoreSlots; slot++ {
		s.Push(store.Get(slot))
	}
}

func (FullRoots) BindBaseObjects(ds *Deserializer) {
	for _, r := range ds.Heap().Singletons() {
		ds.AddBaseObject(r)
	}
}

func (FullRoots) WriteRoots(s *Serializer) {
	store := s.Heap().Store()
	for slot := heap.NumProgramSlots; slot < heap.NumStoreSlots; slot++ {
		s.WriteRef(store.Get(slot))
	}
}

func (FullRoots) ReadRoots(ds *Deserializer) {
	store := ds.Heap().Store()
	for slot := heap.NumProgramSlots; slot < heap.NumStoreSlots; slot++ {
		store.Set(slot, ds.ReadRef())
	}
}

func (FullRoots) PostLoad(ds *Deserializer) {}

// ProgramRoots writes the root unit of a program: the program slots of the
// object store and the dispatch table. Code owned by any other loading unit
// is written without its pool, stack maps and instructions.
type ProgramRoots struct {
	// Base lists the objects of the core snapshot the program builds on. When
	// empty the heap singletons are used.
	Base []heap.Ref
	// Undivided keeps every unit's code in the program stream.
	Undivided bool
}

func (ProgramRoots) Kind() Kind    { return ProgramKind }
func (ProgramRoots) Primary() bool { return true }

func (p ProgramRoots) IsDeferred(h *heap.Heap, code heap.Ref) bool {
	return !p.Undivided && h.Code(code).Unit() != heap.RootUnitID
}

func (p ProgramRoots) base(h *heap.Heap) []heap.Ref {
	if len(p.Base) > 0 {
		return p.Base
	}
	return h.Singletons()
}

func (p ProgramRoots) AddBaseObjects(s *Serializer) {
	for _, r := range p.base(s.Heap()) {
		s.AddBaseObject(r)
	}
}

func (ProgramRoots) PushRoots(s *Serializer) {
	store := s.Heap().Store()
	for slot := heap.StoreSlot(0); slot < heap.NumProgramSlots; slot++ {
		s.Push(store.Get(slot))
	}
	for _, code := range store.DispatchTable() {
		s.Push(code)
	}
}

func (ProgramRoots) WriteRoots(s *Serializer) {
	store := s.Heap().Store()
	for slot := heap.StoreSlot(0); slot < heap.NumProgramSlots; slot++ {
		s.WriteRef(store.Get(slot))
	}
	s.writeDispatchTable(store.DispatchTable())
}

func (p ProgramRoots) ReadRoots(ds *Deserializer) {
	store := ds.Heap().Store()
	for slot := heap.StoreSlot(0); slot < heap.NumProgramSlots; slot++ {
		store.Set(slot, ds.ReadRef())
	}
	store.SetDispatchTable(ds.readDispatchTable())
}

func (p ProgramRoots) BindBaseObjects(ds *Deserializer) {
	for _, r := range p.base(ds.Heap()) {
		ds.AddBaseObject(r)
	}
}

func (p ProgramRoots) PostLoad(ds *Deserializer) {
	markLoaded(ds.Heap(), heap.RootUnitID)
}

// UnitRoots writes one deferred loading unit of a program. Its base objects
// are every object of the parent stream, and its roots are the code of the
// unit, which the parent wrote without pool, stack maps or instructions.
type UnitRoots struct {
	// Parent lists the objects of the parent stream, as Snapshot.Objects or
	// LoadResult.Objects.
	Parent []heap.Ref
	ID     int32
}

func (UnitRoots) Kind() Kind    { return UnitKind }
func (UnitRoots) Primary() bool { return false }

func (u UnitRoots) AddBaseObjects(s *Serializer) {
	for _, r := range u.Parent {
		s.AddBaseObject(r)
	}
}

// codes returns the unit's code among the parent objects, in parent order.
func (u UnitRoots) codes(h *heap.Heap) []heap.Ref {
	var out []heap.Ref
	for _, r := range u.Parent {
		if !r.IsHeapObject() || h.ClassOf(r) != heap.CodeCid {
			continue
		}
		if h.Code(r).Unit() == u.ID {
			out = append(out, r)
		}
	}
	return out
}

func (u UnitRoots) PushRoots(s *Serializer) {
	h := s.Heap()
	for _, code := range u.codes(h) {
		c := h.Code(code)
		s.Push(c.Pool)
		s.Push(c.StackMaps)
		s.SupplyInstructions(code)
	}
}

func (u UnitRoots) WriteRoots(s *Serializer) {
	h := s.Heap()
	codes := u.codes(h)
	s.WriteUnsigned(uint64(len(codes)))
	for _, code := range codes {
		c := h.Code(code)
		s.WriteRef(code)
		s.WriteRef(c.Pool)
		s.WriteRef(c.StackMaps)
		s.WriteUnsigned(s.InstructionsOffset(code))
	}
}

func (u UnitRoots) BindBaseObjects(ds *Deserializer) {
	for _, r := range u.Parent {
		ds.AddBaseObject(r)
	}
}

// ReadRoots patches the unit's code in place. Code is never canonical, so
// the patched references are final.
func (u UnitRoots) ReadRoots(ds *Deserializer) {
	h := ds.Heap()
	n := ds.ReadUnsigned()
	for i := uint64(0); i < n; i++ {
		code := ds.ReadRef()
		c := h.Code(code)
		if c.Unit() != u.ID {
			d.Panic("unit %d stream supplies code of unit %d", u.ID, c.Unit())
		}
		c.Pool = ds.ReadRef()
		c.StackMaps = ds.ReadRef()
		c.Instructions = ds.InstructionsAt(ds.ReadUnsigned())
	}
}

// PostLoad refreshes the entry points cached by the unit's code, by the
// functions running it and by the closures over those functions.
func (u UnitRoots) PostLoad(ds *Deserializer) {
	h := ds.Heap()
	patched := map[heap.Ref]bool{}
	for _, code := range u.codes(h) {
		c := h.Code(code)
		c.EntryPoint = 0
		if !c.Instructions.IsNull() {
			c.EntryPoint = h.Instructions(c.Instructions).Address
		}
		patched[code] = true
	}

	functions := map[heap.Ref]bool{}
	h.Each(func(r heap.Ref, obj heap.Object) {
		if fn, ok := obj.(*heap.Function); ok && patched[fn.Code] {
			fn.EntryPoint = h.Code(fn.Code).EntryPoint
			functions[r] = true
		}
	})
	h.Each(func(r heap.Ref, obj heap.Object) {
		if cl, ok := obj.(*heap.Closure); ok && functions[cl.Function] {
			cl.EntryPoint = h.Function(cl.Function).EntryPoint
		}
	})
	markLoaded(h, u.ID)
}

func markLoaded(h *heap.Heap, id int32) {
	if r, ok := h.Store().LoadingUnit(id); ok {
		h.LoadingUnit(r).Loaded = true
	}
}
