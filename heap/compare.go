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

import (
	"bytes"
	"math"

	"github.com/pkg/errors"
)

// Compare walks the graphs reachable from |aRoots| in |a| and |bRoots| in
// |b| in lockstep and returns an error describing the first difference.
// The graphs are equal when a bijection between their objects preserves
// class ids, canonical bits, scalar fields and references. Derived caches
// (entry points, hashes, map indexes, loaded flags, code addresses) are
// ignored.
func Compare(a *Heap, aRoots []Ref, b *Heap, bRoots []Ref) error {
	if len(aRoots) != len(bRoots) {
		return errors.Errorf("root counts differ: %d != %d", len(aRoots), len(bRoots))
	}
	c := &comparer{a: a, b: b, aToB: map[Ref]Ref{}, bToA: map[Ref]Ref{}}
	for i := range aRoots {
		if err := c.pair(aRoots[i], bRoots[i], "root"); err != nil {
			return err
		}
	}
	for len(c.queue) > 0 {
		p := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.compareObjects(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

type comparer struct {
	a, b  *Heap
	aToB  map[Ref]Ref
	bToA  map[Ref]Ref
	queue [][2]Ref
}

func (c *comparer) pair(x, y Ref, path string) error {
	switch {
	case x.IsNull() || y.IsNull():
		if x != y {
			return errors.Errorf("%s: %s vs %s", path, c.a.Describe(x), c.b.Describe(y))
		}
		return nil
	case x.IsSmi() || y.IsSmi():
		if x != y {
			return errors.Errorf("%s: %s vs %s", path, c.a.Describe(x), c.b.Describe(y))
		}
		return nil
	}

	if prev, ok := c.aToB[x]; ok {
		if prev != y {
			return errors.Errorf("%s: %s maps to two different objects", path, c.a.Describe(x))
		}
		return nil
	}
	if prev, ok := c.bToA[y]; ok && prev != x {
		return errors.Errorf("%s: %s is the image of two different objects", path, c.b.Describe(y))
	}
	c.aToB[x] = y
	c.bToA[y] = x
	c.queue = append(c.queue, [2]Ref{x, y})
	return nil
}

func (c *comparer) compareObjects(x, y Ref) error {
	ox, oy := c.a.Get(x), c.b.Get(y)
	desc := c.a.Describe(x)
	if ox.ClassID() != oy.ClassID() {
		return errors.Errorf("%s: class %s vs %s", desc, ox.ClassID(), oy.ClassID())
	}
	if ox.IsCanonical() != oy.IsCanonical() {
		return errors.Errorf("%s: canonical bit %t vs %t", desc, ox.IsCanonical(), oy.IsCanonical())
	}
	if err := c.compareScalars(desc, ox, oy); err != nil {
		return err
	}

	var xs, ys []Ref
	VisitRefs(ox, func(p *Ref, _ EdgeKind) { xs = append(xs, *p) })
	VisitRefs(oy, func(p *Ref, _ EdgeKind) { ys = append(ys, *p) })
	if len(xs) != len(ys) {
		return errors.Errorf("%s: %d references vs %d", desc, len(xs), len(ys))
	}
	for i := range xs {
		if err := c.pair(xs[i], ys[i], desc); err != nil {
			return err
		}
	}
	return nil
}

func (c *comparer) compareScalars(desc string, ox, oy Object) error {
	differ := false
	switch x := ox.(type) {
	case *Bool:
		differ = x.Value != oy.(*Bool).Value
	case *Mint:
		differ = x.Value != oy.(*Mint).Value
	case *Double:
		y := oy.(*Double)
		differ = math.Float64bits(x.Value) != math.Float64bits(y.Value)
	case *String:
		differ = !bytes.Equal(x.Data, oy.(*String).Data)
	case *Type:
		y := oy.(*Type)
		differ = x.TypeClass != y.TypeClass || x.Nullability != y.Nullability || x.Declaration != y.Declaration
	case *Function:
		y := oy.(*Function)
		differ = x.Kind != y.Kind || x.OwnerClass != y.OwnerClass
	case *Code:
		differ = x.Unit() != oy.(*Code).Unit()
	case *Instructions:
		differ = !bytes.Equal(x.Bytes, oy.(*Instructions).Bytes)
	case *CompressedStackMaps:
		differ = !bytes.Equal(x.Payload, oy.(*CompressedStackMaps).Payload)
	case *GrowableArray:
		differ = x.Length != oy.(*GrowableArray).Length
	case *LoadingUnit:
		differ = x.ID != oy.(*LoadingUnit).ID
	case *Instance:
		y := oy.(*Instance)
		if len(x.Fields) != len(y.Fields) || x.unboxed != y.unboxed {
			differ = true
			break
		}
		for i := range x.Words {
			if x.IsUnboxed(i) && x.Words[i] != y.Words[i] {
				differ = true
			}
		}
	}
	if differ {
		return errors.Errorf("%s: scalar fields differ from %s", desc, c.b.describeObject(oy))
	}
	return nil
}
