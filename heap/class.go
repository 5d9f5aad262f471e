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
	"sync"
)

// ClassID identifies the class of a heap object.
type ClassID uint16

const (
	IllegalCid ClassID = iota
	BoolCid
	MintCid
	DoubleCid
	StringCid
	TypeCid
	TypeArgumentsCid
	FunctionCid
	ClosureCid
	ContextCid
	CodeCid
	InstructionsCid
	CompressedStackMapsCid
	ArrayCid
	ImmutableArrayCid
	GrowableArrayCid
	MapCid
	WeakPropertyCid
	WeakReferenceCid
	WeakArrayCid
	LoadingUnitCid

	// NumPredefinedCids is the first class id available to user classes.
	NumPredefinedCids
)

// MaxClassID bounds the class ids a ClassTable will hand out.
const MaxClassID ClassID = 1<<15 - 1

var predefinedNames = [NumPredefinedCids]string{
	IllegalCid:             "Illegal",
	BoolCid:                "Bool",
	MintCid:                "Mint",
	DoubleCid:              "Double",
	StringCid:              "String",
	TypeCid:                "Type",
	TypeArgumentsCid:       "TypeArguments",
	FunctionCid:            "Function",
	ClosureCid:             "Closure",
	ContextCid:             "Context",
	CodeCid:                "Code",
	InstructionsCid:        "Instructions",
	CompressedStackMapsCid: "CompressedStackMaps",
	ArrayCid:               "Array",
	ImmutableArrayCid:      "ImmutableArray",
	GrowableArrayCid:       "GrowableArray",
	MapCid:                 "Map",
	WeakPropertyCid:        "WeakProperty",
	WeakReferenceCid:       "WeakReference",
	WeakArrayCid:           "WeakArray",
	LoadingUnitCid:         "LoadingUnit",
}

// IsUserClass reports whether |cid| names a registered instance class.
func (cid ClassID) IsUserClass() bool {
	return cid >= NumPredefinedCids
}

// IsArray reports whether |cid| is one of the fixed-length array classes.
func (cid ClassID) IsArray() bool {
	return cid == ArrayCid || cid == ImmutableArrayCid
}

func (cid ClassID) String() string {
	if cid < NumPredefinedCids {
		return predefinedNames[cid]
	}
	return fmt.Sprintf("cid%d", uint16(cid))
}

// Shape is the layout descriptor of a class.
type Shape struct {
	ID   ClassID
	Name string
	// Variable is true for classes whose instances carry their own length
	// (strings, arrays, contexts, ...). Allocation takes that length.
	Variable bool
	// NumFields is the number of fields of a user instance class.
	NumFields int
	// Unboxed has bit i set when field i of a user instance holds a raw
	// 64-bit word instead of a Ref.
	Unboxed uint64
}

// IsUnboxed reports whether field |i| of a user instance is a raw word.
func (s Shape) IsUnboxed(i int) bool {
	return i < 64 && s.Unboxed&(1<<uint(i)) != 0
}

var variableSize = map[ClassID]bool{
	StringCid:              true,
	TypeArgumentsCid:       true,
	ContextCid:             true,
	InstructionsCid:        true,
	CompressedStackMapsCid: true,
	ArrayCid:               true,
	ImmutableArrayCid:      true,
	MapCid:                 true,
	WeakArrayCid:           true,
}

// ClassTable maps class ids to shapes. Predefined classes are always
// present; user classes are registered in id order.
type ClassTable struct {
	mu     sync.RWMutex
	shapes []Shape
	byName map[string]ClassID
}

// NewClassTable returns a table holding only the predefined classes.
func NewClassTable() *ClassTable {
	ct := &ClassTable{byName: map[string]ClassID{}}
	for cid := IllegalCid; cid < NumPredefinedCids; cid++ {
		s := Shape{ID: cid, Name: predefinedNames[cid], Variable: variableSize[cid]}
		ct.shapes = append(ct.shapes, s)
		ct.byName[s.Name] = cid
	}
	return ct
}

// Register adds a user instance class with |numFields| fields and returns
// its id. Registering an existing name with the same layout returns the
// existing id; a different layout is an error.
func (ct *ClassTable) Register(name string, numFields int, unboxed uint64) (ClassID, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if cid, ok := ct.byName[name]; ok {
		s := ct.shapes[cid]
		if !cid.IsUserClass() || s.NumFields != numFields || s.Unboxed != unboxed {
			return IllegalCid, fmt.Errorf("class %s already registered with a different layout", name)
		}
		return cid, nil
	}
	if numFields < 0 || (numFields < 64 && unboxed>>uint(numFields) != 0) {
		return IllegalCid, fmt.Errorf("class %s: unboxed mask %#x does not fit %d fields", name, unboxed, numFields)
	}

	cid := ClassID(len(ct.shapes))
	if cid > MaxClassID {
		return IllegalCid, fmt.Errorf("class table full")
	}
	ct.shapes = append(ct.shapes, Shape{ID: cid, Name: name, NumFields: numFields, Unboxed: unboxed})
	ct.byName[name] = cid
	return cid, nil
}

// ShapeOf returns the layout of |cid|. The second result is false when the
// class is unknown.
func (ct *ClassTable) ShapeOf(cid ClassID) (Shape, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if int(cid) >= len(ct.shapes) || cid == IllegalCid {
		return Shape{}, false
	}
	return ct.shapes[cid], true
}

// Lookup returns the id of the class called |name|.
func (ct *ClassTable) Lookup(name string) (ClassID, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	cid, ok := ct.byName[name]
	return cid, ok
}

// NumClasses returns one past the largest registered class id.
func (ct *ClassTable) NumClasses() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.shapes)
}
