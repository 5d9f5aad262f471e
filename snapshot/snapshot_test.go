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
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/heapsnap/heap"
)

func testOptions() Options {
	opts := DefaultOptions()
	log := logrus.New()
	log.SetOutput(io.Discard)
	opts.Logger = logrus.NewEntry(log)
	return opts
}

// programRoots returns the program slots followed by the dispatch table.
func programRoots(h *heap.Heap) []heap.Ref {
	var roots []heap.Ref
	for slot := heap.StoreSlot(0); slot < heap.NumProgramSlots; slot++ {
		roots = append(roots, h.Store().Get(slot))
	}
	return append(roots, h.Store().DispatchTable()...)
}

func coreRoots(h *heap.Heap) []heap.Ref {
	var roots []heap.Ref
	for slot := heap.NumProgramSlots; slot < heap.NumStoreSlots; slot++ {
		roots = append(roots, h.Store().Get(slot))
	}
	return roots
}

func panicMessage(f func()) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprint(r)
		}
	}()
	f()
	return ""
}

func serialize(t *testing.T, h *heap.Heap, roots SerializationRoots, opts Options) *Snapshot {
	snap, err := Serialize(context.Background(), h, roots, opts)
	require.NoError(t, err)
	return snap
}

func deserialize(t *testing.T, h *heap.Heap, snap *Snapshot, roots DeserializationRoots, opts Options) *LoadResult {
	res, err := Deserialize(context.Background(), h, snap.Data, snap.Image, roots, opts)
	require.NoError(t, err)
	return res
}

// buildMixedProgram populates the program slots of |h| with at least one
// object of every class the codec handles.
func buildMixedProgram(t *testing.T, h *heap.Heap) {
	point, err := h.Classes().Register("Point", 3, 1<<1)
	require.NoError(t, err)

	p := h.NewInstance(point)
	in := h.Instance(p)
	in.Fields[0] = h.Symbol("origin")
	in.Words[1] = 0xdeadbeef
	in.Fields[2] = h.NewDouble(-0.5)

	intType := h.Canonicalize(h.NewType(point, heap.Null, heap.NonNullable))
	args := h.Canonicalize(h.NewTypeArguments(intType))
	decl := h.NewDeclarationType(point, args)
	loose := h.NewType(point, args, heap.Nullable)

	m := h.NewMap()
	h.MapPut(m, h.Symbol("x"), h.NewInt(1))
	h.MapPut(m, h.NewInt(heap.SmiMax+1), h.NewDouble(2.5))
	h.MapPut(m, h.NewInt(-3), h.NewString("minus three"))

	backing := h.NewArray(h.NewInt(1), h.NewInt(2), heap.Null, heap.Null)
	grow := h.NewGrowableArray(4)
	g := h.GrowableArray(grow)
	g.Data = backing
	g.Length = 2

	ctx := h.NewContext(heap.Null, h.NewInt(10))
	inner := h.NewContext(ctx, p, h.True())

	ins := h.NewInstructions([]byte{0x90, 0x90, 0xc3})
	sm := h.NewStackMaps([]byte{1, 2, 3, 4})
	fn := h.NewFunction(h.Symbol("main"), loose, heap.RegularFunction, point)
	code := h.NewCode(fn, h.NewArray(h.NewInt(99), h.Symbol("pool")), sm, ins, 0)
	h.AttachCode(fn, code)
	closure := h.NewClosure(fn, inner, args)

	lu := h.NewLoadingUnit(heap.Null, heap.RootUnitID)

	globals := h.NewArray(p, intType, decl, loose, m, grow, closure,
		h.NewImmutableArray(h.Symbol("frozen"), h.False()), h.EmptyArray(), h.EmptyTypeArguments())
	h.Store().Set(heap.MainFunctionSlot, fn)
	h.Store().Set(heap.GlobalsSlot, globals)
	h.Store().Set(heap.LoadingUnitsSlot, h.NewArray(heap.Null, lu))
	h.Store().SetDispatchTable([]heap.Ref{code, code, heap.Null, code})
}

func TestProgramRoundTrip(t *testing.T) {
	src := heap.New()
	buildMixedProgram(t, src)
	opts := testOptions()

	snap := serialize(t, src, ProgramRoots{}, opts)
	assert.Equal(t, ProgramKind, snap.Kind)
	assert.Equal(t, heap.NumSingletons, snap.NumBaseObjects)
	assert.Len(t, snap.Objects, snap.NumBaseObjects+snap.NumObjects)

	dst := heap.New()
	res := deserialize(t, dst, snap, ProgramRoots{}, opts)
	assert.Equal(t, snap.NumObjects, res.NumObjects)
	assert.Len(t, res.Objects, len(snap.Objects))
	require.Len(t, res.Clusters, len(snap.Clusters))
	for i := range snap.Clusters {
		assert.Equal(t, snap.Clusters[i].Count, res.Clusters[i].Count, snap.Clusters[i].Name)
	}

	require.NoError(t, heap.Compare(src, programRoots(src), dst, programRoots(dst)))

	fn := dst.Store().Get(heap.MainFunctionSlot)
	code := dst.Function(fn).Code
	c := dst.Code(code)
	require.False(t, c.Instructions.IsNull())
	assert.Equal(t, []byte{0x90, 0x90, 0xc3}, dst.Instructions(c.Instructions).Bytes)
	assert.Equal(t, dst.Instructions(c.Instructions).Address, c.EntryPoint)
	assert.Equal(t, c.EntryPoint, dst.Function(fn).EntryPoint)
	sm, ok := dst.Store().StackMapsAt(c.EntryPoint + 1)
	require.True(t, ok)
	assert.Equal(t, c.StackMaps, sm)

	// The map index is rebuilt and value-keyed lookups work.
	globals := dst.Array(dst.Store().Get(heap.GlobalsSlot))
	m := globals.Elements[4]
	v, ok := dst.MapGet(m, dst.NewString("x"))
	require.True(t, ok)
	assert.Equal(t, int64(1), dst.IntValue(v))
	v, ok = dst.MapGet(m, dst.NewInt(heap.SmiMax+1))
	require.True(t, ok)
	assert.Equal(t, 2.5, dst.Double(v).Value)

	lu, ok := dst.Store().LoadingUnit(heap.RootUnitID)
	require.True(t, ok)
	assert.True(t, dst.LoadingUnit(lu).Loaded)

	// Loaded canonical objects intern against the rebuilt sets.
	assert.Equal(t, dst.Function(fn).Name, dst.Symbol("main"))
}

func TestSerializeIsDeterministic(t *testing.T) {
	src := heap.New()
	buildMixedProgram(t, src)

	a := serialize(t, src, ProgramRoots{}, testOptions())
	b := serialize(t, src, ProgramRoots{}, testOptions())
	assert.True(t, bytes.Equal(a.Data, b.Data))
	assert.True(t, bytes.Equal(a.Image, b.Image))
	assert.Equal(t, a.Objects, b.Objects)
}

func TestFullThenProgram(t *testing.T) {
	src := heap.New()
	a, b := src.Symbol("alpha"), src.Symbol("beta")
	obj, err := src.Classes().Register("Object", 0, 0)
	require.NoError(t, err)
	objType := src.Canonicalize(src.NewType(obj, heap.Null, heap.NonNullable))
	src.Store().Set(heap.CoreStringsSlot, src.NewArray(a, b))
	src.Store().Set(heap.CoreTypesSlot, src.NewArray(objType))

	opts := testOptions()
	full := serialize(t, src, FullRoots{}, opts)

	src.Store().Set(heap.GlobalsSlot, src.NewArray(a, src.Symbol("gamma"), objType, src.NewInstance(obj)))
	prog := serialize(t, src, ProgramRoots{Base: full.Objects}, opts)
	assert.Equal(t, len(full.Objects), prog.NumBaseObjects)

	dst := heap.New()
	fullRes := deserialize(t, dst, full, FullRoots{}, opts)
	require.NoError(t, heap.Compare(src, coreRoots(src), dst, coreRoots(dst)))

	strings := dst.Store().CanonicalSet(heap.StringCid)
	require.NotNil(t, strings)
	assert.Equal(t, 2, strings.Len())
	assert.Equal(t, heap.CanonicalCapacity(2+SpareCapacity), strings.Capacity())

	// A symbol already present in the consumer is shared with the stream.
	gamma := dst.Symbol("gamma")
	deserialize(t, dst, prog, ProgramRoots{Base: fullRes.Objects}, opts)
	require.NoError(t, heap.Compare(src, programRoots(src), dst, programRoots(dst)))

	globals := dst.Array(dst.Store().Get(heap.GlobalsSlot))
	assert.Equal(t, dst.Array(dst.Store().Get(heap.CoreStringsSlot)).Elements[0], globals.Elements[0])
	assert.Equal(t, gamma, globals.Elements[1])
	assert.Equal(t, dst.Array(dst.Store().Get(heap.CoreTypesSlot)).Elements[0], globals.Elements[2])
	assert.Equal(t, 3, strings.Len())
}

func TestMutuallyReferencingRecords(t *testing.T) {
	src := heap.New()
	record, err := src.Classes().Register("Record", 1, 0)
	require.NoError(t, err)
	r1 := src.NewInstance(record)
	r2 := src.NewInstance(record)
	src.Instance(r1).Fields[0] = r2
	src.Instance(r2).Fields[0] = r1
	sym := src.Symbol("shared")
	container := src.NewArray(r1, r2, sym)
	src.Store().Set(heap.GlobalsSlot, container)

	opts := testOptions()
	snap := serialize(t, src, ProgramRoots{}, opts)

	dst := heap.New()
	before := dst.NumObjects()

	corrupt := append([]byte(nil), snap.Data...)
	corrupt[0] ^= 0xff
	_, err = Deserialize(context.Background(), dst, corrupt, snap.Image, ProgramRoots{}, opts)
	require.Error(t, err)
	assert.True(t, ErrVersionMismatch.Is(err))
	assert.Equal(t, before, dst.NumObjects())
	assert.Equal(t, int(heap.NumPredefinedCids), dst.Classes().NumClasses())

	deserialize(t, dst, snap, ProgramRoots{}, opts)
	arr := dst.Array(dst.Store().Get(heap.GlobalsSlot))
	require.Len(t, arr.Elements, 3)
	d1, d2 := arr.Elements[0], arr.Elements[1]
	assert.Equal(t, d2, dst.Instance(d1).Fields[0])
	assert.Equal(t, d1, dst.Instance(d2).Fields[0])
	assert.True(t, dst.String(arr.Elements[2]).IsCanonical())
	assert.Equal(t, arr.Elements[2], dst.Symbol("shared"))
	require.NoError(t, heap.Compare(src, []heap.Ref{container}, dst, []heap.Ref{dst.Store().Get(heap.GlobalsSlot)}))
}

func TestHeaderRejection(t *testing.T) {
	src := heap.New()
	src.Store().Set(heap.GlobalsSlot, src.NewArray(src.NewString("x")))
	opts := testOptions()
	snap := serialize(t, src, ProgramRoots{}, opts)

	t.Run("features", func(t *testing.T) {
		other := testOptions()
		other.Features.Arch = "other"
		dst := heap.New()
		_, err := Deserialize(context.Background(), dst, snap.Data, snap.Image, ProgramRoots{}, other)
		require.Error(t, err)
		assert.True(t, ErrFeatureMismatch.Is(err))
		assert.Equal(t, heap.New().NumObjects(), dst.NumObjects())
	})

	t.Run("truncated", func(t *testing.T) {
		dst := heap.New()
		_, err := Deserialize(context.Background(), dst, snap.Data[:4], snap.Image, ProgramRoots{}, opts)
		require.Error(t, err)
		assert.True(t, ErrTruncated.Is(err))
	})

	t.Run("image", func(t *testing.T) {
		dst := heap.New()
		_, err := Deserialize(context.Background(), dst, snap.Data, []byte("garbage garbage garbage"), ProgramRoots{}, opts)
		require.Error(t, err)
		assert.True(t, ErrImage.Is(err))
		assert.Equal(t, heap.New().NumObjects(), dst.NumObjects())
	})

	t.Run("classes", func(t *testing.T) {
		withClass := heap.New()
		_, err := withClass.Classes().Register("Left", 1, 0)
		require.NoError(t, err)
		withClass.Store().Set(heap.GlobalsSlot, withClass.NewArray())
		snap := serialize(t, withClass, ProgramRoots{}, opts)

		dst := heap.New()
		_, err = dst.Classes().Register("Right", 2, 0)
		require.NoError(t, err)
		_, err = Deserialize(context.Background(), dst, snap.Data, snap.Image, ProgramRoots{}, opts)
		require.Error(t, err)
		assert.True(t, ErrClassMismatch.Is(err))
		assert.Equal(t, heap.New().NumObjects(), dst.NumObjects())
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Deserialize(ctx, heap.New(), snap.Data, snap.Image, ProgramRoots{}, opts)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDebugStreams(t *testing.T) {
	src := heap.New()
	buildMixedProgram(t, src)
	opts := testOptions()
	opts.Features.Debug = true

	snap := serialize(t, src, ProgramRoots{}, opts)
	plain := serialize(t, src, ProgramRoots{}, testOptions())
	assert.Greater(t, len(snap.Data), len(plain.Data))

	dst := heap.New()
	deserialize(t, dst, snap, ProgramRoots{}, opts)
	require.NoError(t, heap.Compare(src, programRoots(src), dst, programRoots(dst)))

	_, err := Deserialize(context.Background(), heap.New(), snap.Data, snap.Image, ProgramRoots{}, testOptions())
	assert.True(t, ErrFeatureMismatch.Is(err))

	// The stream ends with the roots sentinel.
	corrupt := append([]byte(nil), snap.Data...)
	corrupt[len(corrupt)-1] ^= 1
	msg := panicMessage(func() {
		_, _ = Deserialize(context.Background(), heap.New(), corrupt, snap.Image, ProgramRoots{}, opts)
	})
	assert.Contains(t, msg, "sentinel after roots")
}

func TestEphemerons(t *testing.T) {
	src := heap.New()
	k1, v1 := src.NewString("k1"), src.NewString("v1")
	k2 := src.NewString("k2")
	v2 := src.NewString("v2")
	lostKey, lostValue := src.NewString("lost key"), src.NewString("lost value")

	// k2 is reachable only through v1, which is reachable only through the
	// ephemeron keyed by k1.
	holder := src.NewArray(v1, k2)
	wp1 := src.NewWeakProperty(k1, holder)
	wp2 := src.NewWeakProperty(k2, v2)
	wp3 := src.NewWeakProperty(lostKey, lostValue)
	// Small integers are never collected, so their entry always survives.
	wp4 := src.NewWeakProperty(heap.NewSmi(7), src.NewString("smi value"))
	src.Store().Set(heap.GlobalsSlot, src.NewArray(wp2, wp3, wp1, k1, wp4))

	opts := testOptions()
	snap := serialize(t, src, ProgramRoots{}, opts)
	dst := heap.New()
	deserialize(t, dst, snap, ProgramRoots{}, opts)

	globals := dst.Array(dst.Store().Get(heap.GlobalsSlot)).Elements
	dwp2, dwp3, dwp1 := dst.WeakProperty(globals[0]), dst.WeakProperty(globals[1]), dst.WeakProperty(globals[2])
	assert.Equal(t, globals[3], dwp1.Key)
	require.False(t, dwp1.Value.IsNull())
	dholder := dst.Array(dwp1.Value)
	assert.Equal(t, "v1", dst.String(dholder.Elements[0]).String())
	assert.Equal(t, dholder.Elements[1], dwp2.Key)
	require.False(t, dwp2.Value.IsNull())
	assert.Equal(t, "v2", dst.String(dwp2.Value).String())

	assert.True(t, dwp3.Key.IsNull())
	assert.True(t, dwp3.Value.IsNull())
	dwp4 := dst.WeakProperty(globals[4])
	assert.Equal(t, heap.NewSmi(7), dwp4.Key)
	require.False(t, dwp4.Value.IsNull())
	assert.Equal(t, "smi value", dst.String(dwp4.Value).String())
	require.NoError(t, heap.Compare(src, []heap.Ref{wp4}, dst, []heap.Ref{globals[4]}))
	for _, r := range snap.Objects {
		assert.NotEqual(t, lostKey, r)
		assert.NotEqual(t, lostValue, r)
	}
}

func TestWeakReferences(t *testing.T) {
	src := heap.New()
	kept := src.NewString("kept")
	dropped := src.NewString("dropped")
	wr := src.NewWeakReference(dropped)
	wrKept := src.NewWeakReference(kept)
	wa := src.NewWeakArray(kept, dropped, src.NewInt(5))
	src.Store().Set(heap.GlobalsSlot, src.NewArray(wr, wrKept, wa, kept))

	opts := testOptions()
	opts.Profile = true
	snap := serialize(t, src, ProgramRoots{}, opts)
	dst := heap.New()
	deserialize(t, dst, snap, ProgramRoots{}, opts)

	globals := dst.Array(dst.Store().Get(heap.GlobalsSlot)).Elements
	assert.True(t, dst.WeakReference(globals[0]).Target.IsNull())
	assert.Equal(t, globals[3], dst.WeakReference(globals[1]).Target)
	elems := dst.WeakArray(globals[2]).Elements
	assert.Equal(t, []heap.Ref{globals[3], heap.Null, heap.NewSmi(5)}, elems)

	// The dropped target shows up in the profile as an artificial node.
	require.NotNil(t, snap.Profile)
	var artificial []ProfileNode
	for _, n := range snap.Profile.Nodes {
		if n.ID < 0 {
			artificial = append(artificial, n)
		}
	}
	require.Len(t, artificial, 1)
	assert.Contains(t, artificial[0].Name, "dropped")
	weakEdges := 0
	for _, e := range snap.Profile.Edges {
		if e.To == artificial[0].ID {
			assert.Equal(t, "weak", e.Type)
			weakEdges++
		}
	}
	assert.Equal(t, 2, weakEdges)
}

func TestProfile(t *testing.T) {
	src := heap.New()
	buildMixedProgram(t, src)
	opts := testOptions()
	opts.Profile = true
	snap := serialize(t, src, ProgramRoots{}, opts)

	prof := snap.Profile
	require.NotNil(t, prof)
	assert.Len(t, prof.Summary, len(snap.Clusters))
	for _, e := range prof.Edges {
		_, ok := prof.NodeByID(e.From)
		assert.True(t, ok, "edge from unknown node %d", e.From)
		if e.To < 0 || e.To > int64(snap.NumBaseObjects) {
			_, ok = prof.NodeByID(e.To)
			assert.True(t, ok, "edge to unknown node %d", e.To)
		}
	}
	var ints []string
	for _, n := range prof.Nodes {
		if n.Type == heap.MintCid.String() {
			ints = append(ints, n.Name)
		}
	}
	assert.Contains(t, ints, "10")
	total := 0
	for _, s := range prof.Summary {
		total += s.Count
		if s.Bytes > 0 {
			assert.LessOrEqual(t, s.P50, s.Max)
		}
	}
	assert.Equal(t, snap.NumObjects, total)

	var buf bytes.Buffer
	require.NoError(t, prof.WriteJSON(&buf))
	back, err := ReadProfile(&buf)
	require.NoError(t, err)
	assert.Equal(t, prof.Nodes, back.Nodes)
	assert.Equal(t, prof.Edges, back.Edges)
	assert.Equal(t, prof.Summary, back.Summary)

	assert.Nil(t, serialize(t, src, ProgramRoots{}, testOptions()).Profile)
}

func TestSerializerFatalErrors(t *testing.T) {
	t.Run("instructions outside code", func(t *testing.T) {
		h := heap.New()
		box, err := h.Classes().Register("Box", 1, 0)
		require.NoError(t, err)
		b := h.NewInstance(box)
		h.Instance(b).Fields[0] = h.NewInstructions([]byte{1})
		h.Store().Set(heap.GlobalsSlot, h.NewArray(b))

		opts := testOptions()
		opts.Backtrace = true
		msg := panicMessage(func() { _, _ = Serialize(context.Background(), h, ProgramRoots{}, opts) })
		assert.Contains(t, msg, "instructions reached outside their code")
		assert.Contains(t, msg, "reached from")
	})

	t.Run("boxed small integer", func(t *testing.T) {
		h := heap.New()
		r := h.Allocate(heap.MintCid, 0)
		h.Mint(r).Value = 5
		h.Store().Set(heap.GlobalsSlot, h.NewArray(r))
		assert.Panics(t, func() { _, _ = Serialize(context.Background(), h, ProgramRoots{}, testOptions()) })
	})

	t.Run("unknown class", func(t *testing.T) {
		h := heap.New()
		s := newSerializer(h, ProgramRoots{}, testOptions())
		str := h.NewString("orphan")
		msg := panicMessage(func() { newSerializationCluster(s, clusterKey{cid: heap.MaxClassID}, str) })
		assert.Contains(t, msg, "no cluster for unknown class")
		assert.Contains(t, msg, h.Describe(str))
	})

	t.Run("shared instructions", func(t *testing.T) {
		build := func(a, b []byte) *heap.Heap {
			h := heap.New()
			root := h.NewLoadingUnit(heap.Null, heap.RootUnitID)
			h.Store().Set(heap.LoadingUnitsSlot, h.NewArray(heap.Null, root))
			ins := h.NewInstructions([]byte{1, 2, 3})
			c1 := h.NewCode(heap.Null, heap.Null, h.NewStackMaps(a), ins, heap.RootUnitID)
			c2 := h.NewCode(heap.Null, heap.Null, h.NewStackMaps(b), ins, heap.RootUnitID)
			h.Store().Set(heap.GlobalsSlot, h.NewArray(c1, c2))
			return h
		}

		snap := serialize(t, build([]byte{5}, []byte{5}), ProgramRoots{}, testOptions())
		dst := heap.New()
		deserialize(t, dst, snap, ProgramRoots{}, testOptions())
		assert.Len(t, dst.Store().InstructionsTable(), 1)

		h := build([]byte{5}, []byte{6})
		msg := panicMessage(func() { _, _ = Serialize(context.Background(), h, ProgramRoots{}, testOptions()) })
		assert.Contains(t, msg, "not its stack maps")
	})

	t.Run("late instructions", func(t *testing.T) {
		h := heap.New()
		s := newSerializer(h, ProgramRoots{}, testOptions())
		s.planInstructions()
		assert.Panics(t, func() { s.SupplyInstructions(h.NewCode(heap.Null, heap.Null, heap.Null, heap.Null, 2)) })
	})
}

func TestBaseObjectCountMismatchIsFatal(t *testing.T) {
	src := heap.New()
	src.Store().Set(heap.GlobalsSlot, src.NewArray(src.NewString("x")))
	snap := serialize(t, src, ProgramRoots{}, testOptions())

	dst := heap.New()
	base := append(dst.Singletons(), dst.NewString("extra"))
	assert.Panics(t, func() {
		_, _ = Deserialize(context.Background(), dst, snap.Data, snap.Image, ProgramRoots{Base: base}, testOptions())
	})
}

func TestInspect(t *testing.T) {
	src := heap.New()
	buildMixedProgram(t, src)
	opts := testOptions()
	opts.Features.Debug = !opts.Features.Debug
	snap := serialize(t, src, ProgramRoots{}, opts)

	info, err := Inspect(snap.Data)
	require.NoError(t, err)
	assert.Equal(t, VersionTag, info.Version)
	assert.Equal(t, opts.Features.String(), info.Features)
	assert.Equal(t, int64(snap.NumBaseObjects), info.NumBaseObjects)
	assert.Equal(t, int64(snap.NumObjects), info.NumObjects)
	assert.Equal(t, int64(len(snap.Clusters)), info.NumClusters)
	point, ok := src.Classes().Lookup("Point")
	require.True(t, ok)
	assert.Equal(t, "Point", info.Classes[point])

	_, err = Inspect(snap.Data[:4])
	assert.True(t, ErrTruncated.Is(err))

	w := newBinaryStreamWriter()
	header{version: VersionTag, features: opts.Features.String(), numObjects: 2, numClusters: 9}.write(&w)
	_, err = Inspect(w.data())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more clusters than objects")
}

func TestFeatureStrings(t *testing.T) {
	debugProduct := DefaultFeatures()
	debugProduct.Debug, debugProduct.Product = true, true
	debug := DefaultFeatures()
	debug.Debug = true
	assert.NotEqual(t, debug.String(), debugProduct.String())

	for _, f := range []Features{DefaultFeatures(), debug, debugProduct, {Arch: "arm64", CompressedPointers: true}} {
		back, err := ParseFeatures(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, back)
	}

	_, err := ParseFeatures("release turbo")
	assert.True(t, ErrFeatureMismatch.Is(err))
}
