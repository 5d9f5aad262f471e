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
	"fmt"

	"github.com/dolthub/heapsnap/heap"
)

// arraySerializationCluster serves both Array and ImmutableArray.
type arraySerializationCluster struct {
	clusterBase
}

func (c *arraySerializationCluster) trace(t tracer, r heap.Ref) {
	arr := t.s.h.Array(r)
	t.push(arr.TypeArguments)
	for _, e := range arr.Elements {
		t.push(e)
	}
}

func (c *arraySerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.stream.writeUnsigned(uint64(len(s.h.Array(r).Elements)))
		s.assignRef(r)
	}
}

func (c *arraySerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		arr := s.h.Array(r)
		f := s.beginFill(r)
		f.ref("type_arguments", arr.TypeArguments)
		for i, e := range arr.Elements {
			f.element(i, e)
		}
	}
}

type arrayDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *arrayDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, int(ds.stream.readUnsigned()))
	}
	c.end(ds)
	return c
}

func (c *arrayDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		arr := ds.h.Array(r)
		arr.TypeArguments = ds.ReadRef()
		for i := range arr.Elements {
			arr.Elements[i] = ds.readDeltaRef()
		}
	})
	return c
}

type growableArraySerializationCluster struct {
	clusterBase
}

func (c *growableArraySerializationCluster) trace(t tracer, r heap.Ref) {
	g := t.s.h.GrowableArray(r)
	t.push(g.TypeArguments)
	t.push(g.Data)
}

func (c *growableArraySerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *growableArraySerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		g := s.h.GrowableArray(r)
		f := s.beginFill(r)
		f.ref("type_arguments", g.TypeArguments)
		f.unsigned(uint64(g.Length))
		f.ref("data", g.Data)
	}
}

type growableArrayDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *growableArrayDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

func (c *growableArrayDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		g := ds.h.GrowableArray(r)
		g.TypeArguments = ds.ReadRef()
		g.Length = int64(ds.stream.readUnsigned())
		g.Data = ds.ReadRef()
	})
	return c
}

type mapSerializationCluster struct {
	clusterBase
}

func (c *mapSerializationCluster) trace(t tracer, r heap.Ref) {
	m := t.s.h.Map(r)
	t.push(m.TypeArguments)
	for _, e := range m.Entries {
		t.push(e)
	}
}

func (c *mapSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.stream.writeUnsigned(uint64(s.h.Map(r).Len()))
		s.assignRef(r)
	}
}

func (c *mapSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		m := s.h.Map(r)
		f := s.beginFill(r)
		f.ref("type_arguments", m.TypeArguments)
		for i, e := range m.Entries {
			f.element(i, e)
		}
	}
}

type mapDeserializationCluster struct {
	deserializationBase
}

func (c *mapDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, int(ds.stream.readUnsigned()))
	}
	c.end(ds)
	return c
}

func (c *mapDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		m := ds.h.Map(r)
		m.TypeArguments = ds.ReadRef()
		for i := range m.Entries {
			m.Entries[i] = ds.readDeltaRef()
		}
	})
	return c
}

// Key hashes may depend on other clusters' contents, so the index is only
// built once every cluster is filled.
func (c *mapDeserializationCluster) postLoad(ds *Deserializer) {
	c.each(ds, func(r heap.Ref) {
		ds.h.RebuildMapIndex(r)
	})
}

type weakPropertySerializationCluster struct {
	clusterBase
}

// The value is traced only once the key is known to be reachable. Until then
// the property waits in the serializer's ephemeron list. Immediate keys are
// never collected, so they are pushed and keep their value.
func (c *weakPropertySerializationCluster) trace(t tracer, r heap.Ref) {
	wp := t.s.h.WeakProperty(r)
	t.pushWeak(wp.Key)
	if t.s.IsReachable(wp.Key) {
		t.push(wp.Value)
		return
	}
	t.s.ephemerons = append(t.s.ephemerons, r)
}

func (c *weakPropertySerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *weakPropertySerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		wp := s.h.WeakProperty(r)
		f := s.beginFill(r)
		if s.IsReachable(wp.Key) {
			f.ref("key", wp.Key)
			f.ref("value", wp.Value)
			continue
		}
		f.weakRef("key", wp.Key)
		f.ref("value", heap.Null)
	}
}

type weakPropertyDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *weakPropertyDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

func (c *weakPropertyDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		wp := ds.h.WeakProperty(r)
		wp.Key = ds.ReadRef()
		wp.Value = ds.ReadRef()
	})
	return c
}

type weakReferenceSerializationCluster struct {
	clusterBase
}

func (c *weakReferenceSerializationCluster) trace(t tracer, r heap.Ref) {
	wr := t.s.h.WeakReference(r)
	t.pushWeak(wr.Target)
	t.push(wr.TypeArguments)
}

func (c *weakReferenceSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *weakReferenceSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		wr := s.h.WeakReference(r)
		f := s.beginFill(r)
		f.weakRef("target", wr.Target)
		f.ref("type_arguments", wr.TypeArguments)
	}
}

type weakReferenceDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *weakReferenceDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

func (c *weakReferenceDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		wr := ds.h.WeakReference(r)
		wr.Target = ds.ReadRef()
		wr.TypeArguments = ds.ReadRef()
	})
	return c
}

type weakArraySerializationCluster struct {
	clusterBase
}

func (c *weakArraySerializationCluster) trace(t tracer, r heap.Ref) {
	for _, e := range t.s.h.WeakArray(r).Elements {
		t.pushWeak(e)
	}
}

func (c *weakArraySerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.stream.writeUnsigned(uint64(len(s.h.WeakArray(r).Elements)))
		s.assignRef(r)
	}
}

func (c *weakArraySerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		f := s.beginFill(r)
		for i, e := range s.h.WeakArray(r).Elements {
			f.weakElement(i, e)
		}
	}
}

type weakArrayDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *weakArrayDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, int(ds.stream.readUnsigned()))
	}
	c.end(ds)
	return c
}

func (c *weakArrayDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		wa := ds.h.WeakArray(r)
		for i := range wa.Elements {
			wa.Elements[i] = ds.readDeltaRef()
		}
	})
	return c
}

type loadingUnitSerializationCluster struct {
	clusterBase
}

func (c *loadingUnitSerializationCluster) trace(t tracer, r heap.Ref) {
	t.push(t.s.h.LoadingUnit(r).Parent)
}

func (c *loadingUnitSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *loadingUnitSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		lu := s.h.LoadingUnit(r)
		f := s.beginFill(r)
		f.ref("parent", lu.Parent)
		f.signed(int64(lu.ID))
	}
}

type loadingUnitDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *loadingUnitDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

// Units always load as not yet loaded. Root policies mark the ones they
// bring in.
func (c *loadingUnitDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		lu := ds.h.LoadingUnit(r)
		lu.Parent = ds.ReadRef()
		lu.ID = int32(ds.stream.readSigned())
		lu.Loaded = false
	})
	return c
}

// instanceSerializationCluster writes instances of one user class. Unboxed
// fields are raw words.
type instanceSerializationCluster struct {
	clusterBase
	shape heap.Shape
}

func (c *instanceSerializationCluster) trace(t tracer, r heap.Ref) {
	in := t.s.h.Instance(r)
	for i, fld := range in.Fields {
		if !in.IsUnboxed(i) {
			t.push(fld)
		}
	}
}

func (c *instanceSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *instanceSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		in := s.h.Instance(r)
		f := s.beginFill(r)
		for i := 0; i < c.shape.NumFields; i++ {
			if c.shape.IsUnboxed(i) {
				f.word(in.Words[i])
			} else {
				f.ref(fmt.Sprintf("field%d", i), in.Fields[i])
			}
		}
	}
}

type instanceDeserializationCluster struct {
	deserializationBase
	noPostLoad
	shape heap.Shape
}

func (c *instanceDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

func (c *instanceDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		in := ds.h.Instance(r)
		for i := 0; i < c.shape.NumFields; i++ {
			if c.shape.IsUnboxed(i) {
				in.Words[i] = ds.stream.readWord()
			} else {
				in.Fields[i] = ds.ReadRef()
			}
		}
	})
	return c
}
