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
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/heapsnap/d"
	"github.com/dolthub/heapsnap/heap"
	"github.com/dolthub/heapsnap/image"
)

// DeserializationRoots is the read side of a root policy.
type DeserializationRoots interface {
	Kind() Kind
	// BindBaseObjects registers, in order, the objects the stream assumes
	// to exist. It must not modify the heap.
	BindBaseObjects(ds *Deserializer)
	// ReadRoots reads what WriteRoots wrote. Every object is allocated and
	// filled when it runs.
	ReadRoots(ds *Deserializer)
	// PostLoad runs after every cluster's post-load step.
	PostLoad(ds *Deserializer)
	// Primary reports whether canonical sets may be rebuilt from their
	// layout instead of re-interned.
	Primary() bool
}

// Deserializer reads one snapshot stream into a heap. It lives for a single
// Deserialize call.
type Deserializer struct {
	h      *heap.Heap
	opts   Options
	log    *logrus.Entry
	kind   Kind
	stream binaryStreamReader
	img    *image.Reader
	region *heap.Region

	// refs is indexed by ref id. refs[0] is null.
	refs       []heap.Ref
	maxRefs    int64
	primary    bool
	codeBase   uint64
	codeStart  int64
	codeCount  int64
	forwarding map[heap.Ref]heap.Ref

	instructions map[uint64]heap.Ref
	infos        []ClusterInfo
}

// Deserialize loads the snapshot |data| with instructions image |img| into
// |h|. The header, the image and the class table are verified before the
// heap is touched; a mismatch is returned as an error and leaves |h|
// unchanged. Inconsistencies found later panic.
func Deserialize(ctx context.Context, h *heap.Heap, data, img []byte, roots DeserializationRoots, opts Options) (*LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds := &Deserializer{
		h:            h,
		opts:         opts,
		log:          opts.logger(),
		kind:         roots.Kind(),
		stream:       binaryStreamReader{buff: data},
		refs:         []heap.Ref{heap.Null},
		primary:      roots.Primary(),
		forwarding:   map[heap.Ref]heap.Ref{},
		instructions: map[uint64]heap.Ref{},
	}

	hdr, err := readHeader(&ds.stream, &opts.Features)
	if err != nil {
		return nil, err
	}
	ds.img, err = image.NewReader(img)
	if err != nil {
		return nil, ErrImage.Wrap(err)
	}
	table, err := ds.img.Table(hdr.instructionsData, int(hdr.instructionsLen))
	if err != nil {
		return nil, ErrImage.Wrap(err)
	}
	if err := checkClasses(h.Classes(), hdr.classes); err != nil {
		return nil, err
	}

	roots.BindBaseObjects(ds)
	if got := int64(len(ds.refs) - 1); got != hdr.numBaseObjects {
		d.Panic("stream has %d base objects, %s roots supplied %d", hdr.numBaseObjects, ds.kind, got)
	}
	if hdr.numBaseObjects+hdr.numObjects > MaxObjects {
		d.Panic("stream holds %d objects, more than %d", hdr.numBaseObjects+hdr.numObjects, MaxObjects)
	}
	ds.maxRefs = hdr.numBaseObjects + hdr.numObjects + 1

	registerClasses(h.Classes(), hdr.classes)
	postLoads := ds.load(hdr, table, roots)

	for _, p := range postLoads {
		p.postLoad(ds)
	}
	roots.PostLoad(ds)
	ds.applyForwarding()

	ds.log.WithFields(logrus.Fields{
		"kind":         ds.kind.String(),
		"clusters":     hdr.numClusters,
		"objects":      hdr.numObjects,
		"base_objects": hdr.numBaseObjects,
		"bytes":        len(data),
	}).Debug("snapshot loaded")

	return &LoadResult{
		Kind:           ds.kind,
		Objects:        append([]heap.Ref(nil), ds.refs[1:]...),
		NumBaseObjects: int(hdr.numBaseObjects),
		NumObjects:     int(hdr.numObjects),
		Clusters:       ds.infos,
	}, nil
}

// load runs the alloc and fill phases with collections blocked and the
// allocation region held. The safepoint scope is taken first, in the same
// order Collect takes its locks.
func (ds *Deserializer) load(hdr header, table []image.TableEntry, roots DeserializationRoots) []postLoadStage {
	scope := ds.h.NoSafepoints()
	defer scope.Close()
	ds.region = ds.h.LockRegion()
	defer ds.region.Release()
	ds.codeBase = ds.region.ReserveCode(ds.img.Size())

	fillers := make([]fillStage, 0, hdr.numClusters)
	ds.infos = make([]ClusterInfo, 0, hdr.numClusters)
	var prev clusterKey
	for i := int64(0); i < hdr.numClusters; i++ {
		start := ds.stream.pos()
		k := keyFromTag(ds.stream.readUnsigned())
		if i > 0 && !clusterKeyLess(prev, k) {
			d.Panic("cluster %s follows %s", k, prev)
		}
		prev = k

		first := ds.nextRef()
		fillers = append(fillers, newDeserializationCluster(ds, k).readAlloc(ds))
		if ds.opts.Features.Debug {
			if echo := int64(ds.stream.readUnsigned()); echo != ds.nextRef() {
				d.Panic("ref count after %s alloc is %d, stream says %d", k, ds.nextRef(), echo)
			}
		}
		ds.infos = append(ds.infos, ClusterInfo{
			ClassID:    k.cid,
			Name:       ds.className(k.cid),
			Canonical:  k.canonical,
			Count:      int(ds.nextRef() - first),
			AllocBytes: int(ds.stream.pos() - start),
		})
	}
	if ds.nextRef() != ds.maxRefs {
		d.Panic("allocated %d refs, stream declares %d", ds.nextRef()-1, ds.maxRefs-1)
	}

	postLoads := make([]postLoadStage, len(fillers))
	for i, f := range fillers {
		start := ds.stream.pos()
		ds.stream.resetDelta()
		postLoads[i] = f.readFill(ds)
		ds.checkSentinel("fill of " + ds.infos[i].Name)
		ds.infos[i].FillBytes = int(ds.stream.pos() - start)
	}

	roots.ReadRoots(ds)
	ds.checkSentinel("roots")
	if ds.stream.remaining() != 0 {
		d.Panic("%d bytes follow the roots", ds.stream.remaining())
	}
	ds.installInstructionsTable(table)
	return postLoads
}

func (ds *Deserializer) checkSentinel(what string) {
	if !ds.opts.Features.Debug {
		return
	}
	if v := ds.stream.readUint32(); v != sentinel {
		d.Panic("sentinel after %s is %#x", what, v)
	}
}

// Heap returns the heap being loaded.
func (ds *Deserializer) Heap() *heap.Heap {
	return ds.h
}

// AddBaseObject binds the next ref id to |r|, which already exists.
func (ds *Deserializer) AddBaseObject(r heap.Ref) {
	d.PanicIfTrue(ds.region != nil)
	ds.refs = append(ds.refs, r)
}

func (ds *Deserializer) nextRef() int64 {
	return int64(len(ds.refs))
}

func (ds *Deserializer) assignRef(r heap.Ref) {
	if ds.nextRef() >= ds.maxRefs {
		d.Panic("stream allocates more than the %d objects it declares", ds.maxRefs-1)
	}
	ds.refs = append(ds.refs, r)
}

func (ds *Deserializer) refAt(id int64) heap.Ref {
	if id < 0 || id >= int64(len(ds.refs)) {
		d.Panic("reference to unallocated id %d (%d allocated)", id, len(ds.refs)-1)
	}
	return ds.refs[id]
}

// ReadRef reads a ref id and returns the object bound to it.
func (ds *Deserializer) ReadRef() heap.Ref {
	return ds.refAt(ds.stream.readRefID())
}

func (ds *Deserializer) readDeltaRef() heap.Ref {
	return ds.refAt(ds.stream.readDeltaRef())
}

// ReadUnsigned reads a raw unsigned value.
func (ds *Deserializer) ReadUnsigned() uint64 {
	return ds.stream.readUnsigned()
}

// ReadSigned reads a raw signed value.
func (ds *Deserializer) ReadSigned() int64 {
	return ds.stream.readSigned()
}

// isPrimary reports whether the canonical set of |cid| can be rebuilt from
// its layout. Only a primary load into an empty set can.
func (ds *Deserializer) isPrimary(cid heap.ClassID) bool {
	if !ds.primary {
		return false
	}
	set := ds.h.Store().CanonicalSet(cid)
	return set == nil || set.Len() == 0
}

// forwardRef redirects every reference to |from| held by loaded objects to
// |to|.
func (ds *Deserializer) forwardRef(from, to heap.Ref) {
	ds.forwarding[from] = to
}

// applyForwarding rewrites the references held by every object allocated by
// this load, by the store and by the ref table. Maps whose entries changed
// get a fresh index.
func (ds *Deserializer) applyForwarding() {
	if len(ds.forwarding) == 0 {
		return
	}
	fwd := func(p *heap.Ref) bool {
		if to, ok := ds.forwarding[*p]; ok {
			*p = to
			return true
		}
		return false
	}

	for _, r := range ds.region.Allocated() {
		if _, dead := ds.forwarding[r]; dead {
			continue
		}
		obj := ds.h.Get(r)
		touched := false
		heap.VisitRefs(obj, func(p *heap.Ref, _ heap.EdgeKind) {
			if fwd(p) {
				touched = true
			}
		})
		if touched && obj.ClassID() == heap.MapCid {
			ds.h.RebuildMapIndex(r)
		}
	}
	ds.h.Store().VisitRoots(func(p *heap.Ref) { fwd(p) })
	for i := range ds.refs {
		fwd(&ds.refs[i])
	}
	ds.log.WithField("forwarded", len(ds.forwarding)).Debug("canonical duplicates forwarded")
}

func (ds *Deserializer) className(cid heap.ClassID) string {
	if shape, ok := ds.h.Classes().ShapeOf(cid); ok {
		return shape.Name
	}
	return cid.String()
}
