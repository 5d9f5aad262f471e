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

	"github.com/dolthub/heapsnap/d"
	"github.com/dolthub/heapsnap/heap"
	"github.com/dolthub/heapsnap/image"
)

// instructionsPlan records where every instructions blob of a stream will
// land in the image. It is computed before the header is written, since the
// header carries the table offset, and replayed when the blobs are emitted.
type instructionsPlan struct {
	// order holds one code per distinct instructions object, in emission
	// order.
	order       []heap.Ref
	offsets     map[heap.Ref]uint64
	owners      map[heap.Ref]heap.Ref
	tableOffset uint64
}

// SupplyInstructions makes |code|, a base object, carry its instructions in
// this stream. Unit snapshots use it for the code they materialize.
func (s *Serializer) SupplyInstructions(code heap.Ref) {
	if s.instructions != nil {
		s.fatal(code, "instructions supplied after planning")
	}
	s.suppliedCodes = append(s.suppliedCodes, code)
}

// InstructionsOffset returns the image offset of the instructions of |code|,
// or 0 if it has none in this stream.
func (s *Serializer) InstructionsOffset(code heap.Ref) uint64 {
	ins := s.h.Code(code).Instructions
	if ins.IsNull() {
		return 0
	}
	off, ok := s.instructions.offsets[ins]
	if !ok {
		s.fatal(code, "instructions were not planned")
	}
	return off
}

// CodeIndex returns the 1-based position of |code| in the code cluster.
func (s *Serializer) CodeIndex(code heap.Ref) int {
	i, ok := s.codeIndex[code]
	if !ok {
		s.fatal(code, "code is not written by this stream")
	}
	return i
}

func (s *Serializer) planInstructions() {
	plan := &instructionsPlan{offsets: map[heap.Ref]uint64{}, owners: map[heap.Ref]heap.Ref{}}
	layout := image.NewLayout()
	add := func(code heap.Ref) {
		ins := s.h.Code(code).Instructions
		if ins.IsNull() {
			return
		}
		// One table entry covers every code sharing the blob.
		if owner, ok := plan.owners[ins]; ok {
			if !sameStackMaps(s.h, s.h.Code(owner).StackMaps, s.h.Code(code).StackMaps) {
				s.fatal(code, "shares instructions with %s but not its stack maps", s.h.Describe(owner))
			}
			return
		}
		plan.owners[ins] = code
		plan.offsets[ins] = layout.Place(len(s.h.Instructions(ins).Bytes))
		plan.order = append(plan.order, code)
	}

	for _, c := range s.ordered {
		if c.key().cid != heap.CodeCid {
			continue
		}
		for _, code := range c.members() {
			if !s.isDeferred(code) {
				add(code)
			}
		}
	}
	for _, code := range s.suppliedCodes {
		add(code)
	}
	if len(plan.order) > 0 {
		plan.tableOffset = layout.TableOffset()
	}
	s.instructions = plan
}

// emitInstructions hands every planned blob to the image writer and appends
// the table mapping code ranges to stack maps. Ref ids must be assigned.
func (s *Serializer) emitInstructions() {
	plan := s.instructions
	entries := make([]image.TableEntry, 0, len(plan.order))
	for _, code := range plan.order {
		c := s.h.Code(code)
		blob := s.h.Instructions(c.Instructions).Bytes
		off := s.img.EmitInstructions(blob, code)
		d.Chk.Equal(plan.offsets[c.Instructions], off, "instructions of %s moved", s.h.Describe(code))
		entries = append(entries, image.TableEntry{
			Start:     off,
			Length:    uint64(len(blob)),
			StackMaps: uint64(s.refID(c.StackMaps)),
		})
	}
	if len(entries) > 0 {
		d.PanicIfError(s.img.WriteTable(plan.tableOffset, entries))
	}
}

// InstructionsAt maps the instructions blob at |offset| of the image into
// the heap. Every offset is mapped once.
func (ds *Deserializer) InstructionsAt(offset uint64) heap.Ref {
	if offset == 0 {
		return heap.Null
	}
	if r, ok := ds.instructions[offset]; ok {
		return r
	}
	blob, err := ds.img.InstructionsAt(offset)
	d.PanicIfError(err)
	r := ds.region.AllocateInstructions(append([]byte(nil), blob.Bytes...), ds.codeBase+offset)
	ds.instructions[offset] = r
	return r
}

// installInstructionsTable registers the code ranges of the image with the
// object store.
func (ds *Deserializer) installInstructionsTable(table []image.TableEntry) {
	if len(table) == 0 {
		return
	}
	ranges := make([]heap.InstructionsRange, len(table))
	for i, e := range table {
		ranges[i] = heap.InstructionsRange{
			Start:     ds.codeBase + e.Start,
			Length:    e.Length,
			StackMaps: ds.refAt(int64(e.StackMaps)),
		}
	}
	ds.h.Store().AddInstructionsTable(ranges)
}

func sameStackMaps(h *heap.Heap, a, b heap.Ref) bool {
	if a == b {
		return true
	}
	if a.IsNull() || b.IsNull() {
		return false
	}
	return bytes.Equal(h.StackMaps(a).Payload, h.StackMaps(b).Payload)
}
