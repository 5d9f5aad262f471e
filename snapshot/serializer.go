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
	"fmt"
	"strings"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/heapsnap/d"
	"github.com/dolthub/heapsnap/heap"
	"github.com/dolthub/heapsnap/image"
)

const (
	// refPending marks a traced object that has no id yet.
	refPending int64 = -1

	// MaxObjects bounds the number of ref ids one stream can assign.
	MaxObjects = 1<<31 - 1

	maxBacktrace = 64
)

// SerializationRoots decides what one stream holds.
type SerializationRoots interface {
	Kind() Kind
	// AddBaseObjects registers the objects the reader already has.
	AddBaseObjects(s *Serializer)
	// PushRoots pushes the objects the stream must contain.
	PushRoots(s *Serializer)
	// WriteRoots writes the references the reader needs to find the roots.
	WriteRoots(s *Serializer)
}

// deferralPolicy is implemented by roots that withhold some code from the
// stream.
type deferralPolicy interface {
	IsDeferred(h *heap.Heap, code heap.Ref) bool
}

// Serializer writes one snapshot stream. It lives for a single Serialize
// call.
type Serializer struct {
	h      *heap.Heap
	opts   Options
	log    *logrus.Entry
	kind   Kind
	stream binaryStreamWriter

	refs           map[heap.Ref]int64
	nextID         int64
	numBaseObjects int64
	objects        []heap.Ref

	stack      []heap.Ref
	parents    map[heap.Ref]heap.Ref
	ephemerons []heap.Ref

	clusters map[clusterKey]serializationCluster
	ordered  []serializationCluster
	infos    []ClusterInfo

	deferral      deferralPolicy
	codeIndex     map[heap.Ref]int
	suppliedCodes []heap.Ref
	instructions  *instructionsPlan
	img           *image.Writer

	profile *profileBuilder
}

// Serialize writes the closure of the objects |roots| selects from |h|.
// Collections are blocked for the duration of the call. Internal
// consistency violations panic.
func Serialize(ctx context.Context, h *heap.Heap, roots SerializationRoots, opts Options) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scope := h.NoSafepoints()
	defer scope.Close()

	s := newSerializer(h, roots, opts)
	return s.serialize(roots), nil
}

func newSerializer(h *heap.Heap, roots SerializationRoots, opts Options) *Serializer {
	s := &Serializer{
		h:         h,
		opts:      opts,
		log:       opts.logger(),
		kind:      roots.Kind(),
		stream:    newBinaryStreamWriter(),
		refs:      map[heap.Ref]int64{},
		nextID:    1,
		clusters:  map[clusterKey]serializationCluster{},
		codeIndex: map[heap.Ref]int{},
		img:       image.NewWriter(),
	}
	if opts.Backtrace {
		s.parents = map[heap.Ref]heap.Ref{}
	}
	if dp, ok := roots.(deferralPolicy); ok {
		s.deferral = dp
	}
	if opts.Profile {
		s.profile = newProfileBuilder(h)
	}
	return s
}

func (s *Serializer) serialize(roots SerializationRoots) *Snapshot {
	roots.AddBaseObjects(s)
	s.numBaseObjects = s.nextID - 1

	roots.PushRoots(s)
	s.computeClosure()
	s.orderClusters()
	for _, c := range s.ordered {
		c.finalize(s)
	}
	s.planInstructions()

	numObjects := int64(len(s.refs)) - s.numBaseObjects
	header{
		version:          VersionTag,
		features:         s.opts.Features.String(),
		numBaseObjects:   s.numBaseObjects,
		numObjects:       numObjects,
		numClusters:      int64(len(s.ordered)),
		instructionsLen:  int64(len(s.instructions.order)),
		instructionsData: s.instructions.tableOffset,
		classes:          userClasses(s.h.Classes()),
	}.write(&s.stream)
	s.log.WithFields(logrus.Fields{
		"kind":         s.kind.String(),
		"clusters":     len(s.ordered),
		"objects":      numObjects,
		"base_objects": s.numBaseObjects,
	}).Debug("closure computed")

	s.infos = make([]ClusterInfo, len(s.ordered))
	for i, c := range s.ordered {
		start := s.stream.pos()
		s.stream.writeUnsigned(c.key().tag())
		c.writeAlloc(s)
		if s.opts.Features.Debug {
			s.stream.writeUnsigned(uint64(s.nextID))
		}
		k := c.key()
		s.infos[i] = ClusterInfo{
			ClassID:    k.cid,
			Name:       s.className(k.cid),
			Canonical:  k.canonical,
			Count:      len(c.members()),
			AllocBytes: int(s.stream.pos() - start),
		}
	}
	if s.nextID-1 != s.numBaseObjects+numObjects {
		d.Panic("allocated %d ids for %d traced objects", s.nextID-1-s.numBaseObjects, numObjects)
	}

	s.emitInstructions()

	for i, c := range s.ordered {
		start := s.stream.pos()
		s.stream.resetDelta()
		c.writeFill(s)
		s.profile.closeNode(s.stream.pos())
		if s.opts.Features.Debug {
			s.stream.writeUint32(sentinel)
		}
		s.infos[i].FillBytes = int(s.stream.pos() - start)
	}

	roots.WriteRoots(s)
	if s.opts.Features.Debug {
		s.stream.writeUint32(sentinel)
	}

	s.log.WithFields(logrus.Fields{
		"kind":         s.kind.String(),
		"clusters":     len(s.ordered),
		"objects":      numObjects,
		"base_objects": s.numBaseObjects,
		"bytes":        s.stream.pos(),
	}).Debug("snapshot written")

	return &Snapshot{
		Kind:           s.kind,
		Data:           append([]byte(nil), s.stream.data()...),
		Image:          s.img.Bytes(),
		Objects:        s.objects,
		NumBaseObjects: int(s.numBaseObjects),
		NumObjects:     int(numObjects),
		Clusters:       s.infos,
		Profile:        s.profile.build(s.infos),
	}
}

// Heap returns the heap being written.
func (s *Serializer) Heap() *heap.Heap {
	return s.h
}

// AddBaseObject assigns the next ref id to |r| without writing it.
func (s *Serializer) AddBaseObject(r heap.Ref) {
	if r.IsNull() {
		s.fatal(r, "null cannot be a base object")
	}
	if _, ok := s.refs[r]; ok {
		s.fatal(r, "duplicate base object")
	}
	s.refs[r] = refPending
	s.assignRef(r)
}

// Push makes |r| part of the closure.
func (s *Serializer) Push(r heap.Ref) {
	s.push(r, heap.Null)
}

// PushWeak pushes |r| only if it is an immediate. Weak slots holding heap
// objects are resolved after the closure is computed.
func (s *Serializer) PushWeak(r heap.Ref) {
	if r.IsSmi() {
		s.Push(r)
	}
}

func (s *Serializer) push(r, parent heap.Ref) {
	if r.IsNull() {
		return
	}
	if _, ok := s.refs[r]; ok {
		return
	}
	if r.IsHeapObject() {
		if _, ok := s.h.Lookup(r); !ok {
			s.fatal(parent, "dangling reference %s", r)
		}
	}
	s.refs[r] = refPending
	if s.parents != nil {
		s.parents[r] = parent
	}
	s.stack = append(s.stack, r)
}

// IsReachable reports whether |r| has been pushed or is a base object. Null
// is always reachable.
func (s *Serializer) IsReachable(r heap.Ref) bool {
	if r.IsNull() {
		return true
	}
	_, ok := s.refs[r]
	return ok
}

// tracer is handed to a cluster's trace. Every push is attributed to the
// object being traced.
type tracer struct {
	s    *Serializer
	from heap.Ref
}

func (t tracer) push(r heap.Ref) {
	t.s.push(r, t.from)
}

func (t tracer) pushWeak(r heap.Ref) {
	if r.IsSmi() {
		t.push(r)
	}
}

func (t tracer) isDeferred(code heap.Ref) bool {
	return t.s.isDeferred(code)
}

// computeClosure traces until neither the stack nor the ephemerons make
// progress. Reachability only grows.
func (s *Serializer) computeClosure() {
	for {
		for len(s.stack) > 0 {
			r := s.stack[len(s.stack)-1]
			s.stack = s.stack[:len(s.stack)-1]
			s.trace(r)
		}
		if !s.resolveEphemerons() {
			return
		}
	}
}

func (s *Serializer) trace(r heap.Ref) {
	c := s.clusterFor(r)
	c.add(r)
	c.trace(tracer{s: s, from: r}, r)
}

// resolveEphemerons pushes the value of every pending ephemeron whose key
// has become reachable. It reports whether anything was pushed.
func (s *Serializer) resolveEphemerons() bool {
	progress := false
	pending := s.ephemerons[:0]
	for _, r := range s.ephemerons {
		wp := s.h.WeakProperty(r)
		if s.IsReachable(wp.Key) {
			s.push(wp.Value, r)
			progress = true
		} else {
			pending = append(pending, r)
		}
	}
	s.ephemerons = pending
	return progress
}

func (s *Serializer) clusterFor(r heap.Ref) serializationCluster {
	var k clusterKey
	if r.IsSmi() {
		k = clusterKey{cid: heap.MintCid, canonical: true}
	} else {
		obj := s.h.Get(r)
		k = clusterKey{cid: obj.ClassID(), canonical: obj.IsCanonical()}
		switch k.cid {
		case heap.InstructionsCid:
			s.fatal(r, "instructions reached outside their code")
		case heap.BoolCid:
			s.fatal(r, "boolean that is not a base object")
		}
	}
	if c, ok := s.clusters[k]; ok {
		return c
	}
	c := newSerializationCluster(s, k, r)
	s.clusters[k] = c
	return c
}

func (s *Serializer) orderClusters() {
	tree := btree.NewG[serializationCluster](8, func(a, b serializationCluster) bool {
		return clusterKeyLess(a.key(), b.key())
	})
	for _, c := range s.clusters {
		tree.ReplaceOrInsert(c)
	}
	s.ordered = s.ordered[:0]
	tree.Ascend(func(c serializationCluster) bool {
		s.ordered = append(s.ordered, c)
		return true
	})
}

func (s *Serializer) isDeferred(code heap.Ref) bool {
	return s.deferral != nil && s.deferral.IsDeferred(s.h, code)
}

// assignRef gives |r| the next ref id.
func (s *Serializer) assignRef(r heap.Ref) int64 {
	if id := s.refs[r]; id != refPending {
		s.fatal(r, "ref id assigned twice or to an untraced object (%d)", id)
	}
	if s.nextID > MaxObjects {
		d.Panic("ref id space exhausted after %d objects", MaxObjects)
	}
	id := s.nextID
	s.nextID++
	s.refs[r] = id
	s.objects = append(s.objects, r)
	return id
}

// refID returns the id of an allocated object. Null is 0.
func (s *Serializer) refID(r heap.Ref) int64 {
	if r.IsNull() {
		return 0
	}
	id, ok := s.refs[r]
	if !ok || id <= 0 {
		s.fatal(r, "reference to an object that was never allocated")
	}
	return id
}

// WriteRef writes the id of |r|.
func (s *Serializer) WriteRef(r heap.Ref) {
	s.stream.writeRefID(s.refID(r))
}

// WriteUnsigned writes a raw unsigned value.
func (s *Serializer) WriteUnsigned(v uint64) {
	s.stream.writeUnsigned(v)
}

// WriteSigned writes a raw signed value.
func (s *Serializer) WriteSigned(v int64) {
	s.stream.writeSigned(v)
}

// fatal panics with a description of |r| and, when backtraces are on, the
// chain of objects that led the tracer to it.
func (s *Serializer) fatal(r heap.Ref, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !r.IsNull() {
		msg += ": " + s.h.Describe(r)
		if s.parents != nil {
			var chain []string
			for p := s.parents[r]; !p.IsNull() && len(chain) < maxBacktrace; p = s.parents[p] {
				chain = append(chain, s.h.Describe(p))
			}
			if len(chain) > 0 {
				msg += "\n  reached from " + strings.Join(chain, "\n  reached from ")
			}
		}
	}
	d.Panic("%s", msg)
}

func (s *Serializer) className(cid heap.ClassID) string {
	if shape, ok := s.h.Classes().ShapeOf(cid); ok {
		return shape.Name
	}
	return cid.String()
}

// fillScope attributes the fields written for one object.
type fillScope struct {
	s   *Serializer
	obj heap.Ref
}

func (s *Serializer) beginFill(r heap.Ref) fillScope {
	s.profile.openNode(s.refID(r), r, s.stream.pos())
	return fillScope{s: s, obj: r}
}

func (f fillScope) ref(name string, r heap.Ref) {
	id := f.s.refID(r)
	f.s.stream.writeRefID(id)
	f.s.profile.edge(id, r, "property", name)
}

// element writes an indexed reference delta-encoded against the previous
// element.
func (f fillScope) element(i int, r heap.Ref) {
	id := f.s.refID(r)
	f.s.stream.writeDeltaRef(id)
	f.s.profile.elementEdge(id, r, i)
}

// weakRef writes |r| if the closure reached it and null otherwise.
func (f fillScope) weakRef(name string, r heap.Ref) {
	if f.s.IsReachable(r) {
		id := f.s.refID(r)
		f.s.stream.writeRefID(id)
		f.s.profile.edge(id, r, "weak", name)
		return
	}
	f.s.stream.writeRefID(0)
	f.s.profile.edge(f.s.profile.artificialID(r), r, "weak", name)
}

func (f fillScope) weakElement(i int, r heap.Ref) {
	if f.s.IsReachable(r) {
		f.element(i, r)
		return
	}
	f.s.stream.writeDeltaRef(0)
	f.s.profile.edge(f.s.profile.artificialID(r), r, "weak", fmt.Sprint(i))
}

func (f fillScope) unsigned(v uint64) { f.s.stream.writeUnsigned(v) }
func (f fillScope) signed(v int64)    { f.s.stream.writeSigned(v) }
func (f fillScope) word(v uint64)     { f.s.stream.writeWord(v) }
func (f fillScope) float(v float64)   { f.s.stream.writeFloat(v) }
func (f fillScope) raw(b []byte)      { f.s.stream.writeRaw(b) }
