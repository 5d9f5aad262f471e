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

// Dispatch table entries are written as signed varints:
//
//	0            invalid entry
//	1..63        the previous entry repeated that many times
//	^i (< 0)     the code in slot i of the recent-values ring
//	index + 64   the code at 1-based |index| in the code cluster
const (
	dispatchInvalid   = 0
	maxDispatchRepeat = 63
	numRecentCodes    = 64
	codeIndexBias     = 64
)

// dispatchEncoder writes one dispatch table given each entry's code index
// (0 for invalid entries).
type dispatchEncoder struct {
	w      *binaryStreamWriter
	prev   int
	repeat int
	recent [numRecentCodes]int
	next   int
}

func newDispatchEncoder(w *binaryStreamWriter) *dispatchEncoder {
	return &dispatchEncoder{w: w, prev: -1}
}

func (e *dispatchEncoder) flush() {
	if e.repeat > 0 {
		e.w.writeSigned(int64(e.repeat))
		e.repeat = 0
	}
}

func (e *dispatchEncoder) add(index int) {
	if index == e.prev {
		if e.repeat == maxDispatchRepeat {
			e.flush()
		}
		e.repeat++
		return
	}
	e.flush()
	e.prev = index

	if index == dispatchInvalid {
		e.w.writeSigned(dispatchInvalid)
		return
	}
	for i, v := range e.recent {
		if v == index {
			e.w.writeSigned(int64(^i))
			return
		}
	}
	e.w.writeSigned(int64(index + codeIndexBias))
	e.recent[e.next] = index
	e.next = (e.next + 1) % numRecentCodes
}

// writeDispatchTable writes the length of |table| followed by its entries.
func (s *Serializer) writeDispatchTable(table []heap.Ref) {
	s.stream.writeUnsigned(uint64(len(table)))
	enc := newDispatchEncoder(&s.stream)
	for _, code := range table {
		if code.IsNull() {
			enc.add(dispatchInvalid)
		} else {
			enc.add(s.CodeIndex(code))
		}
	}
	enc.flush()
}

// readDispatchIndexes is the inverse of the encoder: it returns the code
// index of every entry.
func readDispatchIndexes(r *binaryStreamReader) []int {
	n := int(r.readUnsigned())
	out := make([]int, 0, n)
	var recent [numRecentCodes]int
	next := 0
	prev := -1
	for len(out) < n {
		v := r.readSigned()
		switch {
		case v == dispatchInvalid:
			prev = dispatchInvalid
		case v > 0 && v <= maxDispatchRepeat:
			if prev < 0 || len(out)+int(v) > n {
				d.Panic("corrupt dispatch table: repeat of %d at entry %d", v, len(out))
			}
			for i := int64(0); i < v; i++ {
				out = append(out, prev)
			}
			continue
		case v < 0:
			slot := int(^v)
			if slot >= numRecentCodes || recent[slot] == 0 {
				d.Panic("corrupt dispatch table: recent slot %d", slot)
			}
			prev = recent[slot]
		case v > codeIndexBias:
			prev = int(v - codeIndexBias)
			recent[next] = prev
			next = (next + 1) % numRecentCodes
		default:
			d.Panic("corrupt dispatch table: value %d", v)
		}
		out = append(out, prev)
	}
	return out
}

// readDispatchTable reads a table written by writeDispatchTable.
func (ds *Deserializer) readDispatchTable() []heap.Ref {
	indexes := readDispatchIndexes(&ds.stream)
	table := make([]heap.Ref, len(indexes))
	for i, idx := range indexes {
		if idx == dispatchInvalid {
			continue
		}
		if int64(idx) > ds.codeCount {
			d.Panic("dispatch table entry %d names code %d of %d", i, idx, ds.codeCount)
		}
		table[i] = ds.refs[ds.codeStart+int64(idx)-1]
	}
	return table
}
