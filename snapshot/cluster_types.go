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
	"github.com/dolthub/heapsnap/heap"
)

type typeSerializationCluster struct {
	clusterBase
	layout *canonicalLayout
}

func (c *typeSerializationCluster) trace(t tracer, r heap.Ref) {
	t.push(t.s.h.Type(r).Arguments)
}

// Declaration types are cached by their class and stay out of the set.
func (c *typeSerializationCluster) finalize(s *Serializer) {
	if c.k.canonical {
		var l canonicalLayout
		c.objs, l = buildCanonicalLayout(s.h, c.k.cid, c.objs, func(r heap.Ref) bool {
			return s.h.Type(r).Declaration
		})
		c.layout = &l
	}
}

func (c *typeSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
	if c.layout != nil {
		c.layout.write(&s.stream)
	}
}

func (c *typeSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		t := s.h.Type(r)
		f := s.beginFill(r)
		f.unsigned(uint64(t.TypeClass))
		f.unsigned(uint64(t.Nullability))
		f.s.stream.writeBool(t.Declaration)
		f.ref("arguments", t.Arguments)
	}
}

type typeDeserializationCluster struct {
	deserializationBase
	canonical *canonicalLoader
}

func (c *typeDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	members := make([]heap.Ref, 0, n)
	for i := uint64(0); i < n; i++ {
		members = append(members, c.allocate(ds, 0))
	}
	c.end(ds)
	if c.k.canonical {
		c.canonical = ds.newCanonicalLoader(c.k.cid, members)
	}
	return c
}

func (c *typeDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		t := ds.h.Type(r)
		t.TypeClass = heap.ClassID(ds.stream.readUnsigned())
		t.Nullability = heap.Nullability(ds.stream.readUnsigned())
		t.Declaration = ds.stream.readBool()
		t.Arguments = ds.ReadRef()
	})
	return c
}

func (c *typeDeserializationCluster) postLoad(ds *Deserializer) {
	if c.canonical != nil {
		c.canonical.install(ds)
	}
}

type typeArgumentsSerializationCluster struct {
	clusterBase
	layout *canonicalLayout
}

func (c *typeArgumentsSerializationCluster) trace(t tracer, r heap.Ref) {
	for _, ty := range t.s.h.TypeArguments(r).Types {
		t.push(ty)
	}
}

func (c *typeArgumentsSerializationCluster) finalize(s *Serializer) {
	if c.k.canonical {
		var l canonicalLayout
		c.objs, l = buildCanonicalLayout(s.h, c.k.cid, c.objs, nil)
		c.layout = &l
	}
}

func (c *typeArgumentsSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.stream.writeUnsigned(uint64(len(s.h.TypeArguments(r).Types)))
		s.assignRef(r)
	}
	if c.layout != nil {
		c.layout.write(&s.stream)
	}
}

func (c *typeArgumentsSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		f := s.beginFill(r)
		for i, ty := range s.h.TypeArguments(r).Types {
			f.element(i, ty)
		}
	}
}

type typeArgumentsDeserializationCluster struct {
	deserializationBase
	canonical *canonicalLoader
}

func (c *typeArgumentsDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	members := make([]heap.Ref, 0, n)
	for i := uint64(0); i < n; i++ {
		members = append(members, c.allocate(ds, int(ds.stream.readUnsigned())))
	}
	c.end(ds)
	if c.k.canonical {
		c.canonical = ds.newCanonicalLoader(c.k.cid, members)
	}
	return c
}

func (c *typeArgumentsDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		ta := ds.h.TypeArguments(r)
		for i := range ta.Types {
			ta.Types[i] = ds.readDeltaRef()
		}
	})
	return c
}

func (c *typeArgumentsDeserializationCluster) postLoad(ds *Deserializer) {
	if c.canonical != nil {
		c.canonical.install(ds)
	}
}
