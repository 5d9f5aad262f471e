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
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/dolthub/heapsnap/d"
)

// Object is the closed set of heap object kinds. Only this package can add
// implementations.
type Object interface {
	ClassID() ClassID
	IsCanonical() bool
	SetCanonical(canonical bool)
	objectHeader() *ObjectHeader
}

// ObjectHeader carries the class id and header bits of every heap object.
type ObjectHeader struct {
	cid       ClassID
	canonical bool
}

func (h *ObjectHeader) ClassID() ClassID {
	return h.cid
}

// IsCanonical reports whether the object is the interned instance of its value.
func (h *ObjectHeader) IsCanonical() bool {
	return h.canonical
}

func (h *ObjectHeader) SetCanonical(canonical bool) {
	h.canonical = canonical
}

func (h *ObjectHeader) objectHeader() *ObjectHeader {
	return h
}

type Bool struct {
	ObjectHeader
	Value bool
}

// Mint is a boxed integer outside the Smi range.
type Mint struct {
	ObjectHeader
	Value int64
}

type Double struct {
	ObjectHeader
	Value float64
}

// String is an immutable byte sequence. Its hash is computed on first use.
type String struct {
	ObjectHeader
	Data   []byte
	hash   uint64
	hashed bool
}

// Hash returns the content hash of the string.
func (s *String) Hash() uint64 {
	if !s.hashed {
		s.hash = xxhash.Sum64(s.Data)
		s.hashed = true
	}
	return s.hash
}

// HasHash reports whether the hash has already been computed.
func (s *String) HasHash() bool {
	return s.hashed
}

func (s *String) String() string {
	return string(s.Data)
}

type Nullability uint8

const (
	NonNullable Nullability = iota
	Nullable
	Legacy
)

// Type is a type term: a class applied to type arguments.
type Type struct {
	ObjectHeader
	TypeClass   ClassID
	Arguments   Ref
	Nullability Nullability
	// Declaration marks the declaration type of TypeClass. Declaration types
	// are cached by their class and are never members of the canonical type
	// set.
	Declaration bool
	hash        uint64
	hashed      bool
}

// TypeArguments is a vector of types.
type TypeArguments struct {
	ObjectHeader
	Types  []Ref
	hash   uint64
	hashed bool
}

type FunctionKind uint8

const (
	RegularFunction FunctionKind = iota
	ClosureFunction
	GetterFunction
	SetterFunction
	ConstructorFunction
	StubFunction
)

type Function struct {
	ObjectHeader
	Name       Ref
	Signature  Ref
	Code       Ref
	Kind       FunctionKind
	OwnerClass ClassID
	// EntryPoint caches Code's entry point.
	EntryPoint uint64
}

type Closure struct {
	ObjectHeader
	Function                  Ref
	Context                   Ref
	InstantiatorTypeArguments Ref
	// EntryPoint caches Function's entry point.
	EntryPoint uint64
}

type Context struct {
	ObjectHeader
	Parent    Ref
	Variables []Ref
}

// RootUnitID is the id of the loading unit holding the main program.
const RootUnitID int32 = 1

type Code struct {
	ObjectHeader
	Owner        Ref
	Pool         Ref
	StackMaps    Ref
	Instructions Ref
	// UnitID is the loading unit whose snapshot supplies the instructions.
	// Zero means the root unit.
	UnitID     int32
	EntryPoint uint64
}

// Unit returns the effective loading unit id of the code.
func (c *Code) Unit() int32 {
	if c.UnitID == 0 {
		return RootUnitID
	}
	return c.UnitID
}

// Instructions are raw machine code bytes. Once mapped from an image they
// carry the address their entry point resolves to.
type Instructions struct {
	ObjectHeader
	Bytes   []byte
	Address uint64
}

type CompressedStackMaps struct {
	ObjectHeader
	Payload []byte
}

// Array is a fixed-length vector. ImmutableArrayCid shares this layout.
type Array struct {
	ObjectHeader
	TypeArguments Ref
	Elements      []Ref
}

type GrowableArray struct {
	ObjectHeader
	TypeArguments Ref
	Length        int64
	Data          Ref
}

// Map is an insertion-ordered hash map. Entries holds key/value pairs; the
// lookup index is derived from it.
type Map struct {
	ObjectHeader
	TypeArguments Ref
	Entries       []Ref
	index         map[uint64][]int
}

// Len returns the number of key/value pairs.
func (m *Map) Len() int {
	return len(m.Entries) / 2
}

// WeakProperty is an ephemeron: Value is kept alive only while Key is.
type WeakProperty struct {
	ObjectHeader
	Key   Ref
	Value Ref
}

// WeakReference does not keep Target alive.
type WeakReference struct {
	ObjectHeader
	Target        Ref
	TypeArguments Ref
}

// WeakArray does not keep its elements alive.
type WeakArray struct {
	ObjectHeader
	Elements []Ref
}

type LoadingUnit struct {
	ObjectHeader
	Parent Ref
	ID     int32
	Loaded bool
}

// Instance is an object of a user class. Field i lives in Fields[i] unless
// the class shape marks it unboxed, in which case it lives in Words[i].
type Instance struct {
	ObjectHeader
	Fields  []Ref
	Words   []uint64
	unboxed uint64
}

// IsUnboxed reports whether field |i| holds a raw word.
func (in *Instance) IsUnboxed(i int) bool {
	return i < 64 && in.unboxed&(1<<uint(i)) != 0
}

// NumFields returns the number of fields of the instance.
func (in *Instance) NumFields() int {
	return len(in.Fields)
}

// newUninitialized returns a zero object of class |shape| sized for |length|
// elements. Every Ref field is null until the owner fills it.
func newUninitialized(shape Shape, length int) Object {
	d.PanicIfTrue(length < 0)
	if !shape.Variable && length != 0 {
		d.Panic("class %s has a fixed size, got length %d", shape.Name, length)
	}

	hdr := ObjectHeader{cid: shape.ID}
	switch shape.ID {
	case BoolCid:
		return &Bool{ObjectHeader: hdr}
	case MintCid:
		return &Mint{ObjectHeader: hdr}
	case DoubleCid:
		return &Double{ObjectHeader: hdr}
	case StringCid:
		return &String{ObjectHeader: hdr, Data: make([]byte, length)}
	case TypeCid:
		return &Type{ObjectHeader: hdr}
	case TypeArgumentsCid:
		return &TypeArguments{ObjectHeader: hdr, Types: make([]Ref, length)}
	case FunctionCid:
		return &Function{ObjectHeader: hdr}
	case ClosureCid:
		return &Closure{ObjectHeader: hdr}
	case ContextCid:
		return &Context{ObjectHeader: hdr, Variables: make([]Ref, length)}
	case CodeCid:
		return &Code{ObjectHeader: hdr}
	case InstructionsCid:
		return &Instructions{ObjectHeader: hdr, Bytes: make([]byte, length)}
	case CompressedStackMapsCid:
		return &CompressedStackMaps{ObjectHeader: hdr, Payload: make([]byte, length)}
	case ArrayCid, ImmutableArrayCid:
		return &Array{ObjectHeader: hdr, Elements: make([]Ref, length)}
	case GrowableArrayCid:
		return &GrowableArray{ObjectHeader: hdr}
	case MapCid:
		return &Map{ObjectHeader: hdr, Entries: make([]Ref, 2*length)}
	case WeakPropertyCid:
		return &WeakProperty{ObjectHeader: hdr}
	case WeakReferenceCid:
		return &WeakReference{ObjectHeader: hdr}
	case WeakArrayCid:
		return &WeakArray{ObjectHeader: hdr, Elements: make([]Ref, length)}
	case LoadingUnitCid:
		return &LoadingUnit{ObjectHeader: hdr}
	}

	if shape.ID.IsUserClass() {
		return &Instance{
			ObjectHeader: hdr,
			Fields:       make([]Ref, shape.NumFields),
			Words:        make([]uint64, shape.NumFields),
			unboxed:      shape.Unboxed,
		}
	}
	panic(fmt.Sprintf("cannot allocate class %s", shape.ID))
}

// EdgeKind classifies an outgoing reference for reachability.
type EdgeKind uint8

const (
	StrongEdge EdgeKind = iota
	// WeakEdge does not keep its target alive.
	WeakEdge
	// EphemeronKeyEdge is the key of a WeakProperty.
	EphemeronKeyEdge
	// EphemeronValueEdge is alive only while the matching key is.
	EphemeronValueEdge
)

// RefVisitor is called with a pointer to every Ref field of an object.
type RefVisitor func(p *Ref, kind EdgeKind)

// VisitRefs calls |visit| for each Ref-typed field of |obj|, in field order.
func VisitRefs(obj Object, visit RefVisitor) {
	switch o := obj.(type) {
	case *Bool, *Mint, *Double, *String, *Instructions, *CompressedStackMaps:
	case *Type:
		visit(&o.Arguments, StrongEdge)
	case *TypeArguments:
		for i := range o.Types {
			visit(&o.Types[i], StrongEdge)
		}
	case *Function:
		visit(&o.Name, StrongEdge)
		visit(&o.Signature, StrongEdge)
		visit(&o.Code, StrongEdge)
	case *Closure:
		visit(&o.Function, StrongEdge)
		visit(&o.Context, StrongEdge)
		visit(&o.InstantiatorTypeArguments, StrongEdge)
	case *Context:
		visit(&o.Parent, StrongEdge)
		for i := range o.Variables {
			visit(&o.Variables[i], StrongEdge)
		}
	case *Code:
		visit(&o.Owner, StrongEdge)
		visit(&o.Pool, StrongEdge)
		visit(&o.StackMaps, StrongEdge)
		visit(&o.Instructions, StrongEdge)
	case *Array:
		visit(&o.TypeArguments, StrongEdge)
		for i := range o.Elements {
			visit(&o.Elements[i], StrongEdge)
		}
	case *GrowableArray:
		visit(&o.TypeArguments, StrongEdge)
		visit(&o.Data, StrongEdge)
	case *Map:
		visit(&o.TypeArguments, StrongEdge)
		for i := range o.Entries {
			visit(&o.Entries[i], StrongEdge)
		}
	case *WeakProperty:
		visit(&o.Key, EphemeronKeyEdge)
		visit(&o.Value, EphemeronValueEdge)
	case *WeakReference:
		visit(&o.Target, WeakEdge)
		visit(&o.TypeArguments, StrongEdge)
	case *WeakArray:
		for i := range o.Elements {
			visit(&o.Elements[i], WeakEdge)
		}
	case *LoadingUnit:
		visit(&o.Parent, StrongEdge)
	case *Instance:
		for i := range o.Fields {
			if !o.IsUnboxed(i) {
				visit(&o.Fields[i], StrongEdge)
			}
		}
	default:
		d.Panic("unknown object kind %T", obj)
	}
}
