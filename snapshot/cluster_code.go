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

type functionSerializationCluster struct {
	clusterBase
}

func (c *functionSerializationCluster) trace(t tracer, r heap.Ref) {
	fn := t.s.h.Function(r)
	t.push(fn.Name)
	t.push(fn.Signature)
	t.push(fn.Code)
}

func (c *functionSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *functionSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		fn := s.h.Function(r)
		f := s.beginFill(r)
		f.ref("name", fn.Name)
		f.ref("signature", fn.Signature)
		f.ref("code", fn.Code)
		f.unsigned(uint64(fn.Kind))
		f.unsigned(uint64(fn.OwnerClass))
	}
}

type functionDeserializationCluster struct {
	deserializationBase
}

func (c *functionDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

func (c *functionDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		fn := ds.h.Function(r)
		fn.Name = ds.ReadRef()
		fn.Signature = ds.ReadRef()
		fn.Code = ds.ReadRef()
		fn.Kind = heap.FunctionKind(ds.stream.readUnsigned())
		fn.OwnerClass = heap.ClassID(ds.stream.readUnsigned())
	})
	return c
}

// Code entry points are set by the code cluster's post-load, which runs
// first.
func (c *functionDeserializationCluster) postLoad(ds *Deserializer) {
	c.each(ds, func(r heap.Ref) {
		fn := ds.h.Function(r)
		if !fn.Code.IsNull() {
			fn.EntryPoint = ds.h.Code(fn.Code).EntryPoint
		}
	})
}

type closureSerializationCluster struct {
	clusterBase
}

func (c *closureSerializationCluster) trace(t tracer, r heap.Ref) {
	cl := t.s.h.Closure(r)
	t.push(cl.Function)
	t.push(cl.Context)
	t.push(cl.InstantiatorTypeArguments)
}

func (c *closureSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *closureSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		cl := s.h.Closure(r)
		f := s.beginFill(r)
		f.ref("function", cl.Function)
		f.ref("context", cl.Context)
		f.ref("instantiator_type_arguments", cl.InstantiatorTypeArguments)
	}
}

type closureDeserializationCluster struct {
	deserializationBase
}

func (c *closureDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

func (c *closureDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		cl := ds.h.Closure(r)
		cl.Function = ds.ReadRef()
		cl.Context = ds.ReadRef()
		cl.InstantiatorTypeArguments = ds.ReadRef()
	})
	return c
}

func (c *closureDeserializationCluster) postLoad(ds *Deserializer) {
	c.each(ds, func(r heap.Ref) {
		cl := ds.h.Closure(r)
		if !cl.Function.IsNull() {
			cl.EntryPoint = ds.h.Function(cl.Function).EntryPoint
		}
	})
}

type contextSerializationCluster struct {
	clusterBase
}

func (c *contextSerializationCluster) trace(t tracer, r heap.Ref) {
	ctx := t.s.h.Context(r)
	t.push(ctx.Parent)
	for _, v := range ctx.Variables {
		t.push(v)
	}
}

func (c *contextSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.stream.writeUnsigned(uint64(len(s.h.Context(r).Variables)))
		s.assignRef(r)
	}
}

func (c *contextSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		ctx := s.h.Context(r)
		f := s.beginFill(r)
		f.ref("parent", ctx.Parent)
		for i, v := range ctx.Variables {
			f.element(i, v)
		}
	}
}

type contextDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *contextDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, int(ds.stream.readUnsigned()))
	}
	c.end(ds)
	return c
}

func (c *contextDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		ctx := ds.h.Context(r)
		ctx.Parent = ds.ReadRef()
		for i := range ctx.Variables {
			ctx.Variables[i] = ds.readDeltaRef()
		}
	})
	return c
}

// The instructions state of a code object.
const (
	// codeNoInstructions: pool and stack maps follow, no instructions.
	codeNoInstructions = iota
	// codeDeferred: a loading unit supplies pool, stack maps and
	// instructions. The code runs the lazy-load stub until then.
	codeDeferred
	// codeInstructions: pool, stack maps and an image offset follow.
	codeInstructions
)

type codeSerializationCluster struct {
	clusterBase
}

func (c *codeSerializationCluster) trace(t tracer, r heap.Ref) {
	code := t.s.h.Code(r)
	t.push(code.Owner)
	if t.isDeferred(r) {
		return
	}
	t.push(code.Pool)
	t.push(code.StackMaps)
}

// finalize makes codes sharing one instructions object adjacent, in order
// of first appearance, and numbers them for the dispatch table.
func (c *codeSerializationCluster) finalize(s *Serializer) {
	var order []heap.Ref
	groups := map[heap.Ref][]heap.Ref{}
	var ungrouped []heap.Ref
	for _, r := range c.objs {
		ins := s.h.Code(r).Instructions
		if ins.IsNull() || s.isDeferred(r) {
			ungrouped = append(ungrouped, r)
			continue
		}
		if _, ok := groups[ins]; !ok {
			order = append(order, ins)
		}
		groups[ins] = append(groups[ins], r)
	}

	objs := make([]heap.Ref, 0, len(c.objs))
	for _, ins := range order {
		objs = append(objs, groups[ins]...)
	}
	c.objs = append(objs, ungrouped...)

	if !c.k.canonical {
		for i, r := range c.objs {
			s.codeIndex[r] = i + 1
		}
	}
}

func (c *codeSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *codeSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		code := s.h.Code(r)
		f := s.beginFill(r)
		f.ref("owner", code.Owner)
		switch {
		case s.isDeferred(r):
			f.unsigned(codeDeferred)
		case code.Instructions.IsNull():
			f.unsigned(codeNoInstructions)
			f.ref("pool", code.Pool)
			f.ref("stack_maps", code.StackMaps)
		default:
			f.unsigned(codeInstructions)
			f.ref("pool", code.Pool)
			f.ref("stack_maps", code.StackMaps)
			f.unsigned(s.InstructionsOffset(r))
		}
		f.signed(int64(code.UnitID))
	}
}

type codeDeserializationCluster struct {
	deserializationBase
}

func (c *codeDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	if !c.k.canonical {
		ds.codeStart, ds.codeCount = c.start, c.stop-c.start
	}
	return c
}

func (c *codeDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		code := ds.h.Code(r)
		code.Owner = ds.ReadRef()
		switch state := ds.stream.readUnsigned(); state {
		case codeDeferred:
			code.Instructions = ds.h.LazyStub()
		case codeNoInstructions:
			code.Pool = ds.ReadRef()
			code.StackMaps = ds.ReadRef()
		case codeInstructions:
			code.Pool = ds.ReadRef()
			code.StackMaps = ds.ReadRef()
			code.Instructions = ds.InstructionsAt(ds.stream.readUnsigned())
		default:
			d.Panic("code %s has unknown instructions state %d", r, state)
		}
		code.UnitID = int32(ds.stream.readSigned())
	})
	return c
}

func (c *codeDeserializationCluster) postLoad(ds *Deserializer) {
	c.each(ds, func(r heap.Ref) {
		code := ds.h.Code(r)
		if !code.Instructions.IsNull() {
			code.EntryPoint = ds.h.Instructions(code.Instructions).Address
		}
	})
}

type stackMapsSerializationCluster struct {
	clusterBase
}

func (c *stackMapsSerializationCluster) trace(t tracer, r heap.Ref) {}

func (c *stackMapsSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.stream.writeUnsigned(uint64(len(s.h.StackMaps(r).Payload)))
		s.assignRef(r)
	}
}

func (c *stackMapsSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		f := s.beginFill(r)
		f.raw(s.h.StackMaps(r).Payload)
	}
}

type stackMapsDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *stackMapsDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, int(ds.stream.readUnsigned()))
	}
	c.end(ds)
	return c
}

func (c *stackMapsDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		sm := ds.h.StackMaps(r)
		copy(sm.Payload, ds.stream.readRaw(uint32(len(sm.Payload))))
	})
	return c
}
