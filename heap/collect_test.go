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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectWeakReference(t *testing.T) {
	h := New()
	target := h.NewString("target")
	weak := h.NewWeakReference(target)
	h.Store().Set(GlobalsSlot, h.NewArray(weak))

	h.Collect()
	assert.True(t, h.WeakReference(weak).Target.IsNull())
	_, ok := h.Lookup(target)
	assert.False(t, ok)
}

func TestCollectWeakArrayKeepsStrongTargets(t *testing.T) {
	h := New()
	kept := h.NewString("kept")
	dropped := h.NewString("dropped")
	wa := h.NewWeakArray(kept, dropped)
	h.Store().Set(GlobalsSlot, h.NewArray(wa, kept))

	h.Collect()
	assert.Equal(t, []Ref{kept, Null}, h.WeakArray(wa).Elements)
}

func TestCollectEphemeronFixpoint(t *testing.T) {
	h := New()
	// k1 -> v1 holds k2, k2 -> v2. Only k1 is strongly reachable, so both
	// values survive, but only after a second ephemeron round.
	k1, k2 := h.NewString("k1"), h.NewString("k2")
	v2 := h.NewString("v2")
	v1 := h.NewArray(k2)
	wp2 := h.NewWeakProperty(k2, v2)
	wp1 := h.NewWeakProperty(k1, v1)
	orphanKey := h.NewString("orphan")
	orphanValue := h.NewString("orphan value")
	wp3 := h.NewWeakProperty(orphanKey, orphanValue)
	h.Store().Set(WeakCachesSlot, h.NewArray(wp2, wp3, wp1))

	h.Collect(k1)

	for _, r := range []Ref{k1, k2, v1, v2} {
		_, ok := h.Lookup(r)
		assert.True(t, ok, h.Describe(r))
	}
	_, ok := h.Lookup(orphanValue)
	assert.False(t, ok)
	assert.True(t, h.WeakProperty(wp3).Key.IsNull())
	assert.True(t, h.WeakProperty(wp3).Value.IsNull())
}

func TestWalkVisitsOnce(t *testing.T) {
	h := New()
	s := h.NewString("shared")
	a := h.NewArray(s, s)
	b := h.NewArray(a, s)
	ctx := h.NewContext(Null, b)
	ctxSelf := h.Context(ctx)
	ctxSelf.Variables = append(ctxSelf.Variables, ctx)

	counts := map[Ref]int{}
	All(h, []Ref{ctx, ctx}, func(r Ref, obj Object, from Ref) {
		counts[r]++
	})
	assert.Equal(t, map[Ref]int{ctx: 1, b: 1, a: 1, s: 1}, counts)

	var seen []Ref
	Some(h, []Ref{b}, func(r Ref, obj Object, from Ref) bool {
		seen = append(seen, r)
		return r == b
	})
	assert.Equal(t, []Ref{b}, seen)
}

func TestCompare(t *testing.T) {
	build := func(label string, canonical bool) (*Heap, Ref) {
		h := New()
		var s Ref
		if canonical {
			s = h.Symbol(label)
		} else {
			s = h.NewString(label)
		}
		a := h.NewArray(s, NewSmi(3), Null)
		b := h.NewArray(a, s)
		h.Array(a).Elements[2] = b
		return h, b
	}

	h1, r1 := build("x", true)
	h2, r2 := build("x", true)
	require.NoError(t, Compare(h1, []Ref{r1}, h2, []Ref{r2}))

	h3, r3 := build("y", true)
	assert.Error(t, Compare(h1, []Ref{r1}, h3, []Ref{r3}))

	h4, r4 := build("x", false)
	assert.Error(t, Compare(h1, []Ref{r1}, h4, []Ref{r4}))

	// Sharing is part of the shape.
	h5 := New()
	s1, s2 := h5.Symbol("x"), h5.NewString("x")
	h5.String(s2).SetCanonical(true)
	a5 := h5.NewArray(s1, NewSmi(3), Null)
	b5 := h5.NewArray(a5, s2)
	h5.Array(a5).Elements[2] = b5
	assert.Error(t, Compare(h1, []Ref{r1}, h5, []Ref{b5}))
}

func TestDescribe(t *testing.T) {
	h := New()
	assert.Equal(t, "null", h.Describe(Null))
	assert.Equal(t, "-4", h.Describe(NewSmi(-4)))
	assert.Contains(t, h.Describe(h.Symbol("abc")), `canonical String "abc"`)
	assert.Contains(t, h.Describe(h.NewArray(Null)), "Array[1]")
}
