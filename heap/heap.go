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

// Package heap is an in-memory managed heap: a class table, a tagged union
// of object kinds stored in a generation-tagged slot arena, the runtime's
// object store, and a mark-sweep collector.
package heap

import (
	"sync"

	"github.com/dolthub/heapsnap/d"
)

// Singleton indexes. Every fresh heap allocates these objects first, in this
// order.
const (
	TrueSingleton = iota
	FalseSingleton
	EmptyArraySingleton
	EmptyTypeArgumentsSingleton
	LazyStubSingleton

	NumSingletons
)

const (
	// codeAlignment is the alignment of every instructions address.
	codeAlignment = 16
	// codeSpaceStart is the first address handed out for instructions.
	codeSpaceStart = 0x10000
)

type slot struct {
	obj Object
	gen uint32
}

// Heap owns every object reachable through Refs it handed out.
type Heap struct {
	// mu is the region allocation lock.
	mu sync.Mutex
	// safepoints is held for reading by every NoSafepoints scope and for
	// writing by Collect.
	safepoints sync.RWMutex

	classes    *ClassTable
	slots      []slot
	free       []uint32
	live       int
	store      *ObjectStore
	singletons [NumSingletons]Ref

	nextCodeAddress uint64
}

// New returns a heap holding only the bootstrap singletons.
func New() *Heap {
	return NewWithClasses(NewClassTable())
}

// NewWithClasses returns a heap that resolves classes through |ct|.
func NewWithClasses(ct *ClassTable) *Heap {
	h := &Heap{
		classes:         ct,
		slots:           []slot{{}},
		nextCodeAddress: codeSpaceStart,
	}
	h.store = newObjectStore(h)

	h.singletons[TrueSingleton] = h.Allocate(BoolCid, 0)
	h.Bool(h.singletons[TrueSingleton]).Value = true
	h.singletons[FalseSingleton] = h.Allocate(BoolCid, 0)
	h.singletons[EmptyArraySingleton] = h.Allocate(ImmutableArrayCid, 0)
	h.singletons[EmptyTypeArgumentsSingleton] = h.Allocate(TypeArgumentsCid, 0)
	stub := h.NewInstructions([]byte{0xcc})
	h.singletons[LazyStubSingleton] = stub
	for _, r := range h.singletons {
		h.Get(r).SetCanonical(true)
	}
	return h
}

func (h *Heap) Classes() *ClassTable {
	return h.classes
}

func (h *Heap) Store() *ObjectStore {
	return h.store
}

// Singletons returns the bootstrap objects in their fixed order.
func (h *Heap) Singletons() []Ref {
	out := make([]Ref, NumSingletons)
	copy(out, h.singletons[:])
	return out
}

func (h *Heap) True() Ref               { return h.singletons[TrueSingleton] }
func (h *Heap) False() Ref              { return h.singletons[FalseSingleton] }
func (h *Heap) EmptyArray() Ref         { return h.singletons[EmptyArraySingleton] }
func (h *Heap) EmptyTypeArguments() Ref { return h.singletons[EmptyTypeArgumentsSingleton] }

// LazyStub returns the instructions every not-yet-loaded deferred code runs.
func (h *Heap) LazyStub() Ref { return h.singletons[LazyStubSingleton] }

// LazyStubAddress returns the entry point of the lazy-load stub.
func (h *Heap) LazyStubAddress() uint64 {
	return h.Instructions(h.LazyStub()).Address
}

// NumObjects returns the number of live slots.
func (h *Heap) NumObjects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// Lookup returns the object |r| refers to. The second result is false if |r|
// is not a heap object or its slot has been freed.
func (h *Heap) Lookup(r Ref) (Object, bool) {
	if !r.IsHeapObject() {
		return nil, false
	}
	idx := r.index()
	if int(idx) >= len(h.slots) {
		return nil, false
	}
	s := h.slots[idx]
	if s.obj == nil || s.gen != r.generation() {
		return nil, false
	}
	return s.obj, true
}

// Get returns the object |r| refers to. A stale or non-object Ref is fatal.
func (h *Heap) Get(r Ref) Object {
	obj, ok := h.Lookup(r)
	if !ok {
		d.Panic("dangling or non-object reference %s", r)
	}
	return obj
}

// ClassOf returns the class id of the value |r|. Smis report MintCid.
func (h *Heap) ClassOf(r Ref) ClassID {
	switch {
	case r.IsNull():
		return IllegalCid
	case r.IsSmi():
		return MintCid
	}
	return h.Get(r).ClassID()
}

// Each calls |cb| for every live object in slot order.
func (h *Heap) Each(cb func(r Ref, obj Object)) {
	for i := 1; i < len(h.slots); i++ {
		s := h.slots[i]
		if s.obj != nil {
			cb(newObjectRef(uint32(i), s.gen), s.obj)
		}
	}
}

// Allocate takes the region lock, allocates one object and releases it.
func (h *Heap) Allocate(cid ClassID, length int) Ref {
	reg := h.LockRegion()
	defer reg.Release()
	return reg.Allocate(cid, length)
}

func (h *Heap) allocateLocked(cid ClassID, length int) Ref {
	shape, ok := h.classes.ShapeOf(cid)
	if !ok {
		d.Panic("allocation of unknown class %d", uint16(cid))
	}
	obj := newUninitialized(shape, length)

	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		if len(h.slots) >= maxSlotSize {
			d.Panic("heap exhausted: %d slots in use", len(h.slots))
		}
		idx = uint32(len(h.slots))
		h.slots = append(h.slots, slot{})
	}
	h.slots[idx].obj = obj
	h.live++
	return newObjectRef(idx, h.slots[idx].gen)
}

func (h *Heap) freeLocked(r Ref) {
	idx := r.index()
	s := &h.slots[idx]
	d.PanicIfTrue(s.obj == nil || s.gen != r.generation())
	s.obj = nil
	s.gen = (s.gen + 1) & genMask
	h.live--
	h.free = append(h.free, idx)
}

// ReserveCode reserves |size| bytes of code address space and returns the
// start address.
func (h *Heap) ReserveCode(size int) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reserveCodeLocked(size)
}

func (h *Heap) reserveCodeLocked(size int) uint64 {
	addr := h.nextCodeAddress
	n := (uint64(size) + codeAlignment - 1) &^ (codeAlignment - 1)
	if n == 0 {
		n = codeAlignment
	}
	h.nextCodeAddress += n
	return addr
}

// Region is a held allocation lock. It is the only way to allocate several
// objects without another goroutine observing them half-initialized.
type Region struct {
	h         *Heap
	allocated []Ref
	released  bool
}

// LockRegion acquires the allocation lock.
func (h *Heap) LockRegion() *Region {
	h.mu.Lock()
	return &Region{h: h}
}

// Allocate returns a new uninitialized object of class |cid| sized for
// |length| elements.
func (reg *Region) Allocate(cid ClassID, length int) Ref {
	d.PanicIfTrue(reg.released)
	r := reg.h.allocateLocked(cid, length)
	reg.allocated = append(reg.allocated, r)
	return r
}

// AllocateInstructions returns an Instructions object mapped at |addr|.
func (reg *Region) AllocateInstructions(bytes []byte, addr uint64) Ref {
	r := reg.Allocate(InstructionsCid, 0)
	in := reg.h.Instructions(r)
	in.Bytes = bytes
	in.Address = addr
	return r
}

// ReserveCode reserves code address space while the region is held.
func (reg *Region) ReserveCode(size int) uint64 {
	d.PanicIfTrue(reg.released)
	return reg.h.reserveCodeLocked(size)
}

// Allocated returns every Ref allocated through this region, in order.
func (reg *Region) Allocated() []Ref {
	return reg.allocated
}

// Release drops the allocation lock. Releasing twice is a no-op.
func (reg *Region) Release() {
	if reg.released {
		return
	}
	reg.released = true
	reg.h.mu.Unlock()
}

// SafepointScope blocks collections until closed.
type SafepointScope struct {
	h      *Heap
	closed bool
}

// NoSafepoints opens a scope during which Collect cannot run.
func (h *Heap) NoSafepoints() *SafepointScope {
	h.safepoints.RLock()
	return &SafepointScope{h: h}
}

func (s *SafepointScope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.h.safepoints.RUnlock()
}
