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

package heap

// Collect frees every object not reachable from the singletons, the object
// store, the canonical sets and |extraRoots|. Weak references to freed
// objects are cleared, and an ephemeron whose key dies loses its value. It
// returns the number of objects freed.
//
// Collect waits for every open NoSafepoints scope to close.
func (h *Heap) Collect(extraRoots ...Ref) int {
	h.safepoints.Lock()
	defer h.safepoints.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	m := &marker{h: h, marked: make([]bool, len(h.slots))}
	for _, r := range h.singletons {
		m.mark(r)
	}
	h.store.VisitRoots(func(p *Ref) { m.mark(*p) })
	for _, cid := range h.store.CanonicalClasses() {
		for _, r := range h.store.CanonicalSet(cid).Members() {
			m.mark(r)
		}
	}
	for _, r := range extraRoots {
		m.mark(r)
	}
	m.run()

	// Clear weak slots before sweeping so no survivor holds a stale Ref.
	h.Each(func(r Ref, obj Object) {
		if !m.isMarked(r) {
			return
		}
		switch o := obj.(type) {
		case *WeakReference:
			if !m.isMarked(o.Target) {
				o.Target = Null
			}
		case *WeakArray:
			for i, e := range o.Elements {
				if !m.isMarked(e) {
					o.Elements[i] = Null
				}
			}
		case *WeakProperty:
			if !m.isMarked(o.Key) {
				o.Key = Null
				o.Value = Null
			}
		}
	})

	freed := 0
	h.Each(func(r Ref, obj Object) {
		if !m.isMarked(r) {
			h.freeLocked(r)
			freed++
		}
	})
	return freed
}

type marker struct {
	h          *Heap
	marked     []bool
	stack      []Ref
	ephemerons []*WeakProperty
}

func (m *marker) isMarked(r Ref) bool {
	if !r.IsHeapObject() {
		return true
	}
	return m.marked[r.index()]
}

func (m *marker) mark(r Ref) {
	if !r.IsHeapObject() || m.marked[r.index()] {
		return
	}
	m.h.Get(r)
	m.marked[r.index()] = true
	m.stack = append(m.stack, r)
}

// run marks to a fixpoint: draining the stack can make ephemeron keys live,
// which in turn makes their values live.
func (m *marker) run() {
	for {
		for len(m.stack) > 0 {
			r := m.stack[len(m.stack)-1]
			m.stack = m.stack[:len(m.stack)-1]
			obj := m.h.Get(r)
			if wp, ok := obj.(*WeakProperty); ok {
				if m.isMarked(wp.Key) {
					m.mark(wp.Value)
				} else {
					m.ephemerons = append(m.ephemerons, wp)
				}
				continue
			}
			VisitRefs(obj, func(p *Ref, kind EdgeKind) {
				if kind == StrongEdge {
					m.mark(*p)
				}
			})
		}

		pending := m.ephemerons[:0]
		progress := false
		for _, wp := range m.ephemerons {
			if m.isMarked(wp.Key) {
				m.mark(wp.Value)
				progress = true
			} else {
				pending = append(pending, wp)
			}
		}
		m.ephemerons = pending
		if !progress {
			return
		}
	}
}
