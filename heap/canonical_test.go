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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalCapacity(t *testing.T) {
	assert.Equal(t, 8, CanonicalCapacity(0))
	assert.Equal(t, 8, CanonicalCapacity(6))
	assert.Equal(t, 16, CanonicalCapacity(7))
	assert.Equal(t, 64, CanonicalCapacity(48))
	assert.Equal(t, 128, CanonicalCapacity(49))
}

func TestSymbolInterning(t *testing.T) {
	h := New()
	a := h.Symbol("hello")
	b := h.Symbol("hello")
	c := h.Symbol("world")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, h.String(a).IsCanonical())
	assert.Equal(t, 2, h.Store().CanonicalSet(StringCid).Len())
}

func TestCanonicalSetGrows(t *testing.T) {
	h := New()
	set := NewCanonicalSet(h, StringCid, 8)
	var members []Ref
	for i := 0; i < 100; i++ {
		r := h.NewString(fmt.Sprintf("s%d", i))
		set.Insert(r)
		members = append(members, r)
	}
	assert.Equal(t, 100, set.Len())
	assert.Equal(t, 256, set.Capacity())
	for _, r := range members {
		found, ok := set.Lookup(h.NewString(h.String(r).String()))
		require.True(t, ok)
		assert.Equal(t, r, found)
	}
}

func TestCanonicalTypes(t *testing.T) {
	h := New()
	intType := h.Canonicalize(h.NewType(NumPredefinedCids, Null, NonNullable))
	args1 := h.Canonicalize(h.NewTypeArguments(intType))
	args2 := h.Canonicalize(h.NewTypeArguments(h.NewType(NumPredefinedCids, Null, NonNullable)))
	assert.Equal(t, args1, args2)

	nullable := h.Canonicalize(h.NewType(NumPredefinedCids, Null, Nullable))
	assert.NotEqual(t, intType, nullable)

	decl := h.NewDeclarationType(NumPredefinedCids, Null)
	assert.True(t, h.Type(decl).IsCanonical())
	_, ok := h.Store().CanonicalSet(TypeCid).Lookup(decl)
	assert.False(t, ok)
}

func TestCanonicalSetFromSlots(t *testing.T) {
	h := New()
	a, b := h.NewString("a"), h.NewString("b")
	built := NewCanonicalSet(h, StringCid, 8)
	built.Insert(a)
	built.Insert(b)

	adopted := CanonicalSetFromSlots(h, StringCid, built.Slots())
	assert.Equal(t, 2, adopted.Len())
	assert.Equal(t, built.Slots(), adopted.Slots())
	found, ok := adopted.Lookup(h.NewString("b"))
	assert.True(t, ok)
	assert.Equal(t, b, found)
}
