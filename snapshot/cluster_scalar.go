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

// Integers carry their value in the alloc section. Smis are assigned ids
// without allocating anything.

type mintSerializationCluster struct {
	clusterBase
}

func (c *mintSerializationCluster) trace(t tracer, r heap.Ref) {}

// Integers have no fill section. Their profile nodes cover the value written
// here.
func (c *mintSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		start := s.stream.pos()
		var v int64
		if r.IsSmi() {
			v = r.SmiValue()
		} else {
			v = s.h.Mint(r).Value
			if heap.IsSmiValue(v) {
				s.fatal(r, "boxed integer %d fits in a Smi", v)
			}
		}
		s.stream.writeSigned(v)
		s.profile.openNode(s.assignRef(r), r, start)
		s.profile.closeNode(s.stream.pos())
	}
}

func (c *mintSerializationCluster) writeFill(s *Serializer) {}

type mintDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *mintDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		v := ds.stream.readSigned()
		if heap.IsSmiValue(v) {
			if !c.k.canonical {
				d.Panic("Smi %d in a non-canonical integer cluster", v)
			}
			ds.assignRef(heap.NewSmi(v))
			continue
		}
		r := c.allocate(ds, 0)
		ds.h.Mint(r).Value = v
	}
	c.end(ds)
	return c
}

func (c *mintDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	return c
}

type doubleSerializationCluster struct {
	clusterBase
}

func (c *doubleSerializationCluster) trace(t tracer, r heap.Ref) {}

func (c *doubleSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.assignRef(r)
	}
}

func (c *doubleSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		f := s.beginFill(r)
		f.float(s.h.Double(r).Value)
	}
}

type doubleDeserializationCluster struct {
	deserializationBase
	noPostLoad
}

func (c *doubleDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
	c.begin(ds)
	n := ds.stream.readUnsigned()
	for i := uint64(0); i < n; i++ {
		c.allocate(ds, 0)
	}
	c.end(ds)
	return c
}

func (c *doubleDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		ds.h.Double(r).Value = ds.stream.readFloat()
	})
	return c
}

type stringSerializationCluster struct {
	clusterBase
	layout *canonicalLayout
}

func (c *stringSerializationCluster) trace(t tracer, r heap.Ref) {}

func (c *stringSerializationCluster) finalize(s *Serializer) {
	if c.k.canonical {
		var l canonicalLayout
		c.objs, l = buildCanonicalLayout(s.h, c.k.cid, c.objs, nil)
		c.layout = &l
	}
}

func (c *stringSerializationCluster) writeAlloc(s *Serializer) {
	c.writeCount(s)
	for _, r := range c.objs {
		s.stream.writeUnsigned(uint64(len(s.h.String(r).Data)))
		s.assignRef(r)
	}
	if c.layout != nil {
		c.layout.write(&s.stream)
	}
}

func (c *stringSerializationCluster) writeFill(s *Serializer) {
	for _, r := range c.objs {
		f := s.beginFill(r)
		f.raw(s.h.String(r).Data)
	}
}

type stringDeserializationCluster struct {
	deserializationBase
	canonical *canonicalLoader
}

func (c *stringDeserializationCluster) readAlloc(ds *Deserializer) fillStage {
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

func (c *stringDeserializationCluster) readFill(ds *Deserializer) postLoadStage {
	c.each(ds, func(r heap.Ref) {
		str := ds.h.String(r)
		copy(str.Data, ds.stream.readRaw(uint32(len(str.Data))))
		str.Hash()
	})
	return c
}

func (c *stringDeserializationCluster) postLoad(ds *Deserializer) {
	if c.canonical != nil {
		c.canonical.install(ds)
	}
}
