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

// SomeCallback takes an object and returns a bool indicating whether the
// current walk should skip the objects reachable from it. |from| is the
// object that referenced it, or Null for a root.
type SomeCallback func(r Ref, obj Object, from Ref) bool

// AllCallback takes an object and processes it.
type AllCallback func(r Ref, obj Object, from Ref)

// Some walks every object reachable from |roots| through any edge, strong or
// weak, and calls cb on each exactly once. If cb returns true the walk does
// not descend from that object.
func Some(h *Heap, roots []Ref, cb SomeCallback) {
	visited := map[Ref]bool{}
	type item struct{ r, from Ref }
	var queue []item
	for _, r := range roots {
		queue = append(queue, item{r, Null})
	}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if !it.r.IsHeapObject() || visited[it.r] {
			continue
		}
		visited[it.r] = true

		obj := h.Get(it.r)
		if cb(it.r, obj, it.from) {
			continue
		}
		VisitRefs(obj, func(p *Ref, _ EdgeKind) {
			if p.IsHeapObject() && !visited[*p] {
				queue = append(queue, item{*p, it.r})
			}
		})
	}
}

// All walks every object reachable from |roots| and calls cb on each.
func All(h *Heap, roots []Ref, cb AllCallback) {
	Some(h, roots, func(r Ref, obj Object, from Ref) bool {
		cb(r, obj, from)
		return false
	})
}

// StoreRoots returns the singletons, the store slots, the dispatch table and
// the canonical set members of |h|, in that order.
func StoreRoots(h *Heap) []Ref {
	roots := h.Singletons()
	h.store.VisitRoots(func(p *Ref) { roots = append(roots, *p) })
	for _, cid := range h.store.CanonicalClasses() {
		roots = append(roots, h.store.CanonicalSet(cid).Members()...)
	}
	return roots
}
