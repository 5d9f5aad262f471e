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
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/dolthub/heapsnap/d"
)

// Typed accessors. Each one is fatal if |r| is not of the expected kind.

func (h *Heap) Bool(r Ref) *Bool                   { return h.Get(r).(*Bool) }
func (h *Heap) Mint(r Ref) *Mint                   { return h.Get(r).(*Mint) }
func (h *Heap) Double(r Ref) *Double               { return h.Get(r).(*Double) }
func (h *Heap) String(r Ref) *String               { return h.Get(r).(*String) }
func (h *Heap) Type(r Ref) *Type                   { return h.Get(r).(*Type) }
func (h *Heap) TypeArguments(r Ref) *TypeArguments { return h.Get(r).(*TypeArguments) }
func (h *Heap) Function(r Ref) *Function           { return h.Get(r).(*Function) }
func (h *Heap) Closure(r Ref) *Closure             { return h.Get(r).(*Closure) }
func (h *Heap) Context(r Ref) *Context             { return h.Get(r).(*Context) }
func (h *Heap) Code(r Ref) *Code                   { return h.Get(r).(*Code) }
func (h *Heap) Instructions(r Ref) *Instructions   { return h.Get(r).(*Instructions) }
func (h *Heap) StackMaps(r Ref) *CompressedStackMaps {
	return h.Get(r).(*CompressedStackMaps)
}
func (h *Heap) Array(r Ref) *Array                 { return h.Get(r).(*Array) }
func (h *Heap) GrowableArray(r Ref) *GrowableArray { return h.Get(r).(*GrowableArray) }
func (h *Heap) Map(r Ref) *Map                     { return h.Get(r).(*Map) }
func (h *Heap) WeakProperty(r Ref) *WeakProperty   { return h.Get(r).(*WeakProperty) }
func (h *Heap) WeakReference(r Ref) *WeakReference { return h.Get(r).(*WeakReference) }
func (h *Heap) WeakArray(r Ref) *WeakArray         { return h.Get(r).(*WeakArray) }
func (h *Heap) LoadingUnit(r Ref) *LoadingUnit     { return h.Get(r).(*LoadingUnit) }
func (h *Heap) Instance(r Ref) *Instance           { return h.Get(r).(*Instance) }

// NewInt returns a Smi when |v| fits and a boxed Mint otherwise.
func (h *Heap) NewInt(v int64) Ref {
	if IsSmiValue(v) {
		return NewSmi(v)
	}
	r := h.Allocate(MintCid, 0)
	h.Mint(r).Value = v
	return r
}

// IntValue returns the integer held by a Smi or Mint.
func (h *Heap) IntValue(r Ref) int64 {
	if r.IsSmi() {
		return r.SmiValue()
	}
	return h.Mint(r).Value
}

func (h *Heap) NewDouble(v float64) Ref {
	r := h.Allocate(DoubleCid, 0)
	h.Double(r).Value = v
	return r
}

// NewString returns a fresh, non-canonical string.
func (h *Heap) NewString(s string) Ref {
	r := h.Allocate(StringCid, len(s))
	copy(h.String(r).Data, s)
	return r
}

// Symbol returns the canonical string with contents |s|, creating it if
// needed.
func (h *Heap) Symbol(s string) Ref {
	return h.Canonicalize(h.NewString(s))
}

func (h *Heap) NewTypeArguments(types ...Ref) Ref {
	if len(types) == 0 {
		return h.EmptyTypeArguments()
	}
	r := h.Allocate(TypeArgumentsCid, len(types))
	copy(h.TypeArguments(r).Types, types)
	return r
}

func (h *Heap) NewType(class ClassID, args Ref, nullability Nullability) Ref {
	r := h.Allocate(TypeCid, 0)
	t := h.Type(r)
	t.TypeClass = class
	t.Arguments = args
	t.Nullability = nullability
	return r
}

// NewDeclarationType returns the declaration type of |class|. It is marked
// canonical but kept out of the canonical type set.
func (h *Heap) NewDeclarationType(class ClassID, args Ref) Ref {
	r := h.NewType(class, args, NonNullable)
	t := h.Type(r)
	t.Declaration = true
	t.SetCanonical(true)
	return r
}

func (h *Heap) NewArray(elems ...Ref) Ref {
	r := h.Allocate(ArrayCid, len(elems))
	copy(h.Array(r).Elements, elems)
	return r
}

func (h *Heap) NewImmutableArray(elems ...Ref) Ref {
	if len(elems) == 0 {
		return h.EmptyArray()
	}
	r := h.Allocate(ImmutableArrayCid, len(elems))
	copy(h.Array(r).Elements, elems)
	return r
}

// NewGrowableArray returns a growable array of |length| elements backed by
// an Array of |capacity| elements.
func (h *Heap) NewGrowableArray(capacity int, elems ...Ref) Ref {
	if capacity < len(elems) {
		capacity = len(elems)
	}
	data := h.Allocate(ArrayCid, capacity)
	copy(h.Array(data).Elements, elems)
	r := h.Allocate(GrowableArrayCid, 0)
	g := h.GrowableArray(r)
	g.Length = int64(len(elems))
	g.Data = data
	return r
}

func (h *Heap) NewContext(parent Ref, vars ...Ref) Ref {
	r := h.Allocate(ContextCid, len(vars))
	c := h.Context(r)
	c.Parent = parent
	copy(c.Variables, vars)
	return r
}

// NewInstructions allocates instructions holding |bytes| at a fresh code
// address.
func (h *Heap) NewInstructions(bytes []byte) Ref {
	reg := h.LockRegion()
	defer reg.Release()
	return reg.AllocateInstructions(append([]byte(nil), bytes...), reg.ReserveCode(len(bytes)))
}

func (h *Heap) NewStackMaps(payload []byte) Ref {
	r := h.Allocate(CompressedStackMapsCid, len(payload))
	copy(h.StackMaps(r).Payload, payload)
	return r
}

// NewCode returns a code object running |instructions|. Its entry point is
// the instructions address.
func (h *Heap) NewCode(owner, pool, stackMaps, instructions Ref, unit int32) Ref {
	r := h.Allocate(CodeCid, 0)
	c := h.Code(r)
	c.Owner = owner
	c.Pool = pool
	c.StackMaps = stackMaps
	c.Instructions = instructions
	c.UnitID = unit
	if !instructions.IsNull() {
		c.EntryPoint = h.Instructions(instructions).Address
	}
	return r
}

func (h *Heap) NewFunction(name, signature Ref, kind FunctionKind, owner ClassID) Ref {
	r := h.Allocate(FunctionCid, 0)
	f := h.Function(r)
	f.Name = name
	f.Signature = signature
	f.Kind = kind
	f.OwnerClass = owner
	return r
}

// AttachCode sets the code of |fn| and refreshes its cached entry point.
func (h *Heap) AttachCode(fn, code Ref) {
	f := h.Function(fn)
	f.Code = code
	f.EntryPoint = 0
	if !code.IsNull() {
		f.EntryPoint = h.Code(code).EntryPoint
	}
}

func (h *Heap) NewClosure(fn, ctx, instantiator Ref) Ref {
	r := h.Allocate(ClosureCid, 0)
	c := h.Closure(r)
	c.Function = fn
	c.Context = ctx
	c.InstantiatorTypeArguments = instantiator
	c.EntryPoint = h.Function(fn).EntryPoint
	return r
}

func (h *Heap) NewWeakProperty(key, value Ref) Ref {
	r := h.Allocate(WeakPropertyCid, 0)
	wp := h.WeakProperty(r)
	wp.Key = key
	wp.Value = value
	return r
}

func (h *Heap) NewWeakReference(target Ref) Ref {
	r := h.Allocate(WeakReferenceCid, 0)
	h.WeakReference(r).Target = target
	return r
}

func (h *Heap) NewWeakArray(elems ...Ref) Ref {
	r := h.Allocate(WeakArrayCid, len(elems))
	copy(h.WeakArray(r).Elements, elems)
	return r
}

func (h *Heap) NewLoadingUnit(parent Ref, id int32) Ref {
	r := h.Allocate(LoadingUnitCid, 0)
	lu := h.LoadingUnit(r)
	lu.Parent = parent
	lu.ID = id
	return r
}

// NewInstance allocates an instance of user class |cid| with every field
// null or zero.
func (h *Heap) NewInstance(cid ClassID) Ref {
	d.PanicIfFalse(cid.IsUserClass())
	return h.Allocate(cid, 0)
}

// NewMap returns an empty map.
func (h *Heap) NewMap() Ref {
	r := h.Allocate(MapCid, 0)
	h.Map(r).index = map[uint64][]int{}
	return r
}

// MapPut inserts or replaces the value for |key|.
func (h *Heap) MapPut(m, key, value Ref) {
	mp := h.Map(m)
	if mp.index == nil {
		h.RebuildMapIndex(m)
	}
	kh := h.KeyHash(key)
	for _, i := range mp.index[kh] {
		if h.KeyEquals(mp.Entries[2*i], key) {
			mp.Entries[2*i+1] = value
			return
		}
	}
	mp.index[kh] = append(mp.index[kh], mp.Len())
	mp.Entries = append(mp.Entries, key, value)
}

// MapGet returns the value stored for |key|.
func (h *Heap) MapGet(m, key Ref) (Ref, bool) {
	mp := h.Map(m)
	if mp.index == nil {
		h.RebuildMapIndex(m)
	}
	for _, i := range mp.index[h.KeyHash(key)] {
		if h.KeyEquals(mp.Entries[2*i], key) {
			return mp.Entries[2*i+1], true
		}
	}
	return Null, false
}

// RebuildMapIndex recomputes the lookup index of |m| from its entries.
func (h *Heap) RebuildMapIndex(m Ref) {
	mp := h.Map(m)
	mp.index = make(map[uint64][]int, mp.Len())
	for i := 0; i < mp.Len(); i++ {
		kh := h.KeyHash(mp.Entries[2*i])
		mp.index[kh] = append(mp.index[kh], i)
	}
}

// HasIndex reports whether the map's lookup index is built.
func (m *Map) HasIndex() bool {
	return m.index != nil
}

// KeyHash hashes |r| for map lookup. Numbers and strings hash by value,
// everything else by identity.
func (h *Heap) KeyHash(r Ref) uint64 {
	if !r.IsHeapObject() {
		return mix(uint64(r))
	}
	switch o := h.Get(r).(type) {
	case *Mint:
		return mix(uint64(NewSmiBits(o.Value)))
	case *Double:
		return mix(math.Float64bits(o.Value))
	case *String:
		return o.Hash()
	}
	return mix(uint64(r))
}

// KeyEquals is the equality matching KeyHash.
func (h *Heap) KeyEquals(a, b Ref) bool {
	if a == b {
		return true
	}
	if !a.IsHeapObject() || !b.IsHeapObject() {
		return false
	}
	switch x := h.Get(a).(type) {
	case *Mint:
		y, ok := h.Get(b).(*Mint)
		return ok && x.Value == y.Value
	case *Double:
		y, ok := h.Get(b).(*Double)
		return ok && x.Value == y.Value
	case *String:
		y, ok := h.Get(b).(*String)
		return ok && string(x.Data) == string(y.Data)
	}
	return false
}

// NewSmiBits returns the Smi encoding of |v| without range checking. Values
// outside the Smi range wrap.
func NewSmiBits(v int64) Ref {
	return Ref(uint64(v<<1) | smiTag)
}

func mix(v uint64) uint64 {
	var b [8]byte
	for i := range b {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return xxhash.Sum64(b[:])
}
