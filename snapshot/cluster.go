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

// clusterKey identifies a cluster: all objects of one class and one
// canonical bit.
type clusterKey struct {
	cid       heap.ClassID
	canonical bool
}

func (k clusterKey) tag() uint64 {
	t := uint64(k.cid) << 1
	if k.canonical {
		t |= 1
	}
	return t
}

func keyFromTag(tag uint64) clusterKey {
	return clusterKey{cid: heap.ClassID(tag >> 1), canonical: tag&1 == 1}
}

func (k clusterKey) String() string {
	if k.canonical {
		return "canonical " + k.cid.String()
	}
	return k.cid.String()
}

// clusterPriority orders clusters whose post-load steps depend on each
// other. Code entry points feed function entry points, which feed closure
// entry points.
func clusterPriority(cid heap.ClassID) int {
	switch cid {
	case heap.MintCid:
		return 0
	case heap.DoubleCid:
		return 1
	case heap.CodeCid:
		return 2
	case heap.FunctionCid:
		return 3
	case heap.ClosureCid:
		return 4
	}
	return 5
}

func clusterKeyLess(a, b clusterKey) bool {
	pa, pb := clusterPriority(a.cid), clusterPriority(b.cid)
	if pa != pb {
		return pa < pb
	}
	if a.cid != b.cid {
		return a.cid < b.cid
	}
	return a.canonical && !b.canonical
}

// serializationCluster is the write side of one cluster.
type serializationCluster interface {
	key() clusterKey
	members() []heap.Ref
	add(r heap.Ref)
	// trace pushes the outgoing references of |r|.
	trace(t tracer, r heap.Ref)
	// finalize runs once the closure is complete and before any id is
	// assigned. Clusters may reorder their members here.
	finalize(s *Serializer)
	writeAlloc(s *Serializer)
	writeFill(s *Serializer)
}

type clusterBase struct {
	k    clusterKey
	objs []heap.Ref
}

func (c *clusterBase) key() clusterKey          { return c.k }
func (c *clusterBase) members() []heap.Ref      { return c.objs }
func (c *clusterBase) add(r heap.Ref)           { c.objs = append(c.objs, r) }
func (c *clusterBase) finalize(s *Serializer)   {}
func (c *clusterBase) writeCount(s *Serializer) { s.stream.writeUnsigned(uint64(len(c.objs))) }

// newSerializationCluster returns the write side cluster for |k|. |r| is the
// object that opened it and is only used to describe failures.
func newSerializationCluster(s *Serializer, k clusterKey, r heap.Ref) serializationCluster {
	base := clusterBase{k: k}
	switch k.cid {
	case heap.MintCid:
		return &mintSerializationCluster{clusterBase: base}
	case heap.DoubleCid:
		return &doubleSerializationCluster{clusterBase: base}
	case heap.StringCid:
		return &stringSerializationCluster{clusterBase: base}
	case heap.TypeCid:
		return &typeSerializationCluster{clusterBase: base}
	case heap.TypeArgumentsCid:
		return &typeArgumentsSerializationCluster{clusterBase: base}
	case heap.FunctionCid:
		return &functionSerializationCluster{clusterBase: base}
	case heap.ClosureCid:
		return &closureSerializationCluster{clusterBase: base}
	case heap.ContextCid:
		return &contextSerializationCluster{clusterBase: base}
	case heap.CodeCid:
		return &codeSerializationCluster{clusterBase: base}
	case heap.CompressedStackMapsCid:
		return &stackMapsSerializationCluster{clusterBase: base}
	case heap.ArrayCid, heap.ImmutableArrayCid:
		return &arraySerializationCluster{clusterBase: base}
	case heap.GrowableArrayCid:
		return &growableArraySerializationCluster{clusterBase: base}
	case heap.MapCid:
		return &mapSerializationCluster{clusterBase: base}
	case heap.WeakPropertyCid:
		return &weakPropertySerializationCluster{clusterBase: base}
	case heap.WeakReferenceCid:
		return &weakReferenceSerializationCluster{clusterBase: base}
	case heap.WeakArrayCid:
		return &weakArraySerializationCluster{clusterBase: base}
	case heap.LoadingUnitCid:
		return &loadingUnitSerializationCluster{clusterBase: base}
	case heap.InstructionsCid:
		s.fatal(r, "instructions can only be reached through their code")
	case heap.BoolCid:
		s.fatal(r, "booleans are always base objects")
	case heap.IllegalCid:
		s.fatal(r, "object of illegal class")
	}
	if k.cid.IsUserClass() {
		shape, ok := s.h.Classes().ShapeOf(k.cid)
		if !ok {
			s.fatal(r, "no cluster for unknown class %d", uint16(k.cid))
		}
		return &instanceSerializationCluster{clusterBase: base, shape: shape}
	}
	s.fatal(r, "no cluster for class %s", k.cid)
	return nil
}

// The read side is staged. readAlloc returns the filler for the cluster and
// readFill returns its post-load step, so a cluster can only be filled after
// it was allocated and only post-loaded after it was filled.

type allocStage interface {
	readAlloc(ds *Deserializer) fillStage
}

type fillStage interface {
	readFill(ds *Deserializer) postLoadStage
}

type postLoadStage interface {
	postLoad(ds *Deserializer)
}

// noPostLoad is embedded by clusters without post-load work.
type noPostLoad struct{}

func (noPostLoad) postLoad(ds *Deserializer) {}

// deserializationBase records the refs a cluster allocated.
type deserializationBase struct {
	k     clusterKey
	start int64
	stop  int64
}

func (c *deserializationBase) begin(ds *Deserializer) { c.start = ds.nextRef() }
func (c *deserializationBase) end(ds *Deserializer)   { c.stop = ds.nextRef() }

// each calls |f| with every ref this cluster allocated.
func (c *deserializationBase) each(ds *Deserializer, f func(r heap.Ref)) {
	for id := c.start; id < c.stop; id++ {
		f(ds.refs[id])
	}
}

// allocate allocates one object of the cluster's class and assigns it the
// next ref id.
func (c *deserializationBase) allocate(ds *Deserializer, length int) heap.Ref {
	r := ds.region.Allocate(c.k.cid, length)
	if c.k.canonical {
		ds.h.Get(r).SetCanonical(true)
	}
	ds.assignRef(r)
	return r
}

// newDeserializationCluster returns the read side cluster for |k|.
func newDeserializationCluster(ds *Deserializer, k clusterKey) allocStage {
	base := deserializationBase{k: k}
	switch k.cid {
	case heap.MintCid:
		return &mintDeserializationCluster{deserializationBase: base}
	case heap.DoubleCid:
		return &doubleDeserializationCluster{deserializationBase: base}
	case heap.StringCid:
		return &stringDeserializationCluster{deserializationBase: base}
	case heap.TypeCid:
		return &typeDeserializationCluster{deserializationBase: base}
	case heap.TypeArgumentsCid:
		return &typeArgumentsDeserializationCluster{deserializationBase: base}
	case heap.FunctionCid:
		return &functionDeserializationCluster{deserializationBase: base}
	case heap.ClosureCid:
		return &closureDeserializationCluster{deserializationBase: base}
	case heap.ContextCid:
		return &contextDeserializationCluster{deserializationBase: base}
	case heap.CodeCid:
		return &codeDeserializationCluster{deserializationBase: base}
	case heap.CompressedStackMapsCid:
		return &stackMapsDeserializationCluster{deserializationBase: base}
	case heap.ArrayCid, heap.ImmutableArrayCid:
		return &arrayDeserializationCluster{deserializationBase: base}
	case heap.GrowableArrayCid:
		return &growableArrayDeserializationCluster{deserializationBase: base}
	case heap.MapCid:
		return &mapDeserializationCluster{deserializationBase: base}
	case heap.WeakPropertyCid:
		return &weakPropertyDeserializationCluster{deserializationBase: base}
	case heap.WeakReferenceCid:
		return &weakReferenceDeserializationCluster{deserializationBase: base}
	case heap.WeakArrayCid:
		return &weakArrayDeserializationCluster{deserializationBase: base}
	case heap.LoadingUnitCid:
		return &loadingUnitDeserializationCluster{deserializationBase: base}
	}
	if k.cid.IsUserClass() {
		shape, ok := ds.h.Classes().ShapeOf(k.cid)
		if !ok {
			d.Panic("stream has a cluster of unknown class %d", uint16(k.cid))
		}
		return &instanceDeserializationCluster{deserializationBase: base, shape: shape}
	}
	d.Panic("stream has a cluster of class %s, which is never serialized", k.cid)
	return nil
}
