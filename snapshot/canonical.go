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

// SpareCapacity is the number of insertions a reconstructed canonical set
// absorbs before it grows.
const SpareCapacity = 32

// canonicalLayout describes a canonical set by its capacity and, for each
// member in slot order, the number of unused slots before it.
type canonicalLayout struct {
	capacity int
	gaps     []int
}

// buildCanonicalLayout inserts |members| in order into a set sized for them
// plus SpareCapacity. It returns the members reordered into slot order,
// followed by the members kept out of the set, and the layout of the set.
// Members for which |exclude| returns true, or that duplicate an earlier
// member, are kept out.
func buildCanonicalLayout(h *heap.Heap, cid heap.ClassID, members []heap.Ref, exclude func(heap.Ref) bool) ([]heap.Ref, canonicalLayout) {
	var table, excluded []heap.Ref
	for _, r := range members {
		if exclude != nil && exclude(r) {
			excluded = append(excluded, r)
		} else {
			table = append(table, r)
		}
	}

	set := heap.NewCanonicalSet(h, cid, heap.CanonicalCapacity(len(table)+SpareCapacity))
	for _, r := range table {
		if _, inserted := set.LookupOrInsert(r); !inserted {
			excluded = append(excluded, r)
		}
	}

	layout := canonicalLayout{capacity: set.Capacity()}
	ordered := make([]heap.Ref, 0, len(members))
	gap := 0
	for _, r := range set.Slots() {
		if r == heap.UnusedEntry {
			gap++
			continue
		}
		layout.gaps = append(layout.gaps, gap)
		ordered = append(ordered, r)
		gap = 0
	}
	d.Chk.Equal(len(members), len(ordered)+len(excluded))
	return append(ordered, excluded...), layout
}

func (l canonicalLayout) write(w *binaryStreamWriter) {
	w.writeUnsigned(uint64(l.capacity))
	w.writeUnsigned(uint64(len(l.gaps)))
	for _, g := range l.gaps {
		w.writeUnsigned(uint64(g))
	}
}

func readCanonicalLayout(r *binaryStreamReader, numMembers int) canonicalLayout {
	l := canonicalLayout{capacity: int(r.readUnsigned())}
	n := int(r.readUnsigned())
	if n > numMembers || l.capacity <= 0 || l.capacity&(l.capacity-1) != 0 {
		d.Panic("corrupt canonical set layout: capacity %d, %d of %d members", l.capacity, n, numMembers)
	}
	l.gaps = make([]int, n)
	for i := range l.gaps {
		l.gaps[i] = int(r.readUnsigned())
	}
	return l
}

// slots places |table| into a slot array following the layout.
func (l canonicalLayout) slots(table []heap.Ref) []heap.Ref {
	d.Chk.Equal(len(l.gaps), len(table))
	out := make([]heap.Ref, l.capacity)
	for i := range out {
		out[i] = heap.UnusedEntry
	}
	pos := 0
	for i, g := range l.gaps {
		pos += g
		if pos >= len(out) {
			d.Panic("canonical set layout overflows capacity %d", l.capacity)
		}
		out[pos] = table[i]
		pos++
	}
	return out
}

// canonicalLoader finishes a canonical cluster on read. A primary load
// installs the set rebuilt from the layout; any other load interns every
// member into the live set and forwards the duplicates.
type canonicalLoader struct {
	cid     heap.ClassID
	layout  canonicalLayout
	table   []heap.Ref
	primary bool
}

func (ds *Deserializer) newCanonicalLoader(cid heap.ClassID, members []heap.Ref) *canonicalLoader {
	l := &canonicalLoader{cid: cid, layout: readCanonicalLayout(&ds.stream, len(members))}
	l.table = members[:len(l.layout.gaps)]
	l.primary = ds.isPrimary(cid)
	return l
}

func (l *canonicalLoader) install(ds *Deserializer) {
	store := ds.h.Store()
	if l.primary {
		store.SetCanonicalSet(heap.CanonicalSetFromSlots(ds.h, l.cid, l.layout.slots(l.table)))
		return
	}
	set := store.CanonicalSet(l.cid)
	for _, r := range l.table {
		if existing, inserted := set.LookupOrInsert(r); !inserted && existing != r {
			ds.forwardRef(r, existing)
		}
	}
}
