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

// Package heapdesc builds heaps from YAML descriptions.
//
// A description declares user classes, loading units and named objects, and
// then points the object store at them. Values inside an object are written
// as YAML scalars: null is the null reference, integers become Smis or
// boxed Mints, floats become Doubles, booleans the bool singletons, "@name"
// refers to a named object and any other string is a symbol.
//
//	classes:
//	  - {name: Point, fields: 2, unboxed: [1]}
//	units:
//	  - {id: 1}
//	  - {id: 2, parent: 1}
//	objects:
//	  - {name: origin, kind: instance, class: Point, fields: ["@label", 7]}
//	  - {name: label, kind: string, value: origin}
//	  - {name: all, kind: array, elements: ["@origin", 3, null]}
//	store:
//	  globals: "@all"
package heapdesc

import (
	"encoding/hex"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/dolthub/heapsnap/heap"
)

type Description struct {
	Classes  []ClassDesc            `yaml:"classes"`
	Units    []UnitDesc             `yaml:"units"`
	Objects  []ObjectDesc           `yaml:"objects"`
	Store    map[string]interface{} `yaml:"store"`
	Dispatch []interface{}          `yaml:"dispatch"`
}

type ClassDesc struct {
	Name    string `yaml:"name"`
	Fields  int    `yaml:"fields"`
	Unboxed []int  `yaml:"unboxed"`
}

type UnitDesc struct {
	ID     int32 `yaml:"id"`
	Parent int32 `yaml:"parent"`
}

// ObjectDesc describes one named object. Which fields apply depends on
// Kind.
type ObjectDesc struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	Value    interface{}     `yaml:"value"`
	Elements []interface{}   `yaml:"elements"`
	Entries  [][]interface{} `yaml:"entries"`
	Class    string          `yaml:"class"`
	Fields   []interface{}   `yaml:"fields"`
	Key      interface{}     `yaml:"key"`
	Parent   interface{}     `yaml:"parent"`

	// type
	Args        interface{} `yaml:"args"`
	Nullable    bool        `yaml:"nullable"`
	Canonical   bool        `yaml:"canonical"`
	Declaration bool        `yaml:"declaration"`

	// function and closure
	Function     interface{} `yaml:"function"`
	Context      interface{} `yaml:"context"`
	FunctionKind string      `yaml:"function_kind"`
	Code         interface{} `yaml:"code"`

	// code
	Owner        interface{} `yaml:"owner"`
	Pool         interface{} `yaml:"pool"`
	StackMaps    string      `yaml:"stack_maps"`
	Instructions string      `yaml:"instructions"`
	Unit         int32       `yaml:"unit"`
}

// Parse decodes a description. Unknown keys are an error.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := yaml.UnmarshalStrict(data, &d); err != nil {
		return nil, errors.Wrap(err, "parsing heap description")
	}
	return &d, nil
}

// ReadFile parses the description at |path|.
func ReadFile(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading heap description")
	}
	d, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return d, nil
}

var functionKinds = map[string]heap.FunctionKind{
	"":            heap.RegularFunction,
	"regular":     heap.RegularFunction,
	"closure":     heap.ClosureFunction,
	"getter":      heap.GetterFunction,
	"setter":      heap.SetterFunction,
	"constructor": heap.ConstructorFunction,
	"stub":        heap.StubFunction,
}

// builder holds the state of one Build call.
type builder struct {
	h     *heap.Heap
	names map[string]heap.Ref
}

// Build creates the described objects in |h| and installs the store slots,
// loading units and dispatch table. It returns the named objects.
func (d *Description) Build(h *heap.Heap) (map[string]heap.Ref, error) {
	b := &builder{h: h, names: map[string]heap.Ref{}}
	if err := d.RegisterClasses(h.Classes()); err != nil {
		return nil, err
	}
	if err := b.units(d.Units); err != nil {
		return nil, err
	}
	for i := range d.Objects {
		if err := b.allocate(&d.Objects[i]); err != nil {
			return nil, err
		}
	}
	for i := range d.Objects {
		if err := b.fill(&d.Objects[i]); err != nil {
			return nil, errors.Wrapf(err, "object %s", d.Objects[i].Name)
		}
	}
	b.refreshEntryPoints(d.Objects)

	for name, v := range d.Store {
		slot, ok := heap.StoreSlotByName(name)
		if !ok {
			return nil, errors.Errorf("unknown store slot %s", name)
		}
		r, err := b.value(v)
		if err != nil {
			return nil, errors.Wrapf(err, "store slot %s", name)
		}
		h.Store().Set(slot, r)
	}

	if len(d.Dispatch) > 0 {
		table := make([]heap.Ref, len(d.Dispatch))
		for i, v := range d.Dispatch {
			r, err := b.value(v)
			if err != nil {
				return nil, errors.Wrapf(err, "dispatch entry %d", i)
			}
			if !r.IsNull() && h.ClassOf(r) != heap.CodeCid {
				return nil, errors.Errorf("dispatch entry %d is not code", i)
			}
			table[i] = r
		}
		h.Store().SetDispatchTable(table)
	}
	return b.names, nil
}

// RegisterClasses adds the described classes to |ct|. A heap that loads a
// snapshot of the description needs the same class table.
func (d *Description) RegisterClasses(ct *heap.ClassTable) error {
	for _, c := range d.Classes {
		var mask uint64
		for _, i := range c.Unboxed {
			if i < 0 || i >= c.Fields || i >= 64 {
				return errors.Errorf("class %s: unboxed field %d out of range", c.Name, i)
			}
			mask |= 1 << uint(i)
		}
		if _, err := ct.Register(c.Name, c.Fields, mask); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) units(units []UnitDesc) error {
	if len(units) == 0 {
		return nil
	}
	maxID := int32(0)
	for _, u := range units {
		if u.ID <= 0 {
			return errors.Errorf("loading unit id %d must be positive", u.ID)
		}
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	table := make([]heap.Ref, maxID+1)
	for _, u := range units {
		if !table[u.ID].IsNull() {
			return errors.Errorf("loading unit %d declared twice", u.ID)
		}
		parent := heap.Null
		if u.Parent != 0 {
			if u.Parent < 0 || u.Parent > maxID || table[u.Parent].IsNull() {
				return errors.Errorf("loading unit %d: parent %d must be declared first", u.ID, u.Parent)
			}
			parent = table[u.Parent]
		}
		table[u.ID] = b.h.NewLoadingUnit(parent, u.ID)
	}
	b.h.Store().Set(heap.LoadingUnitsSlot, b.h.NewArray(table...))
	return nil
}

func (b *builder) class(name string) (heap.ClassID, error) {
	cid, ok := b.h.Classes().Lookup(name)
	if !ok {
		return heap.IllegalCid, errors.Errorf("unknown class %s", name)
	}
	return cid, nil
}

// allocate creates the object for |o| with its final length. Types and
// type arguments are built completely here, so they can only refer to
// objects declared before them.
func (b *builder) allocate(o *ObjectDesc) error {
	if o.Name == "" {
		return errors.Errorf("object without a name")
	}
	if _, dup := b.names[o.Name]; dup {
		return errors.Errorf("object %s declared twice", o.Name)
	}

	h := b.h
	var r heap.Ref
	switch o.Kind {
	case "string", "symbol":
		s, ok := o.Value.(string)
		if !ok {
			return errors.Errorf("object %s: %s value must be a string", o.Name, o.Kind)
		}
		if o.Kind == "symbol" {
			r = h.Symbol(s)
		} else {
			r = h.NewString(s)
		}
	case "int", "double":
		v, err := b.value(o.Value)
		if err != nil {
			return errors.Wrapf(err, "object %s", o.Name)
		}
		if o.Kind == "double" && !v.IsNull() && h.ClassOf(v) != heap.DoubleCid {
			v = h.NewDouble(float64(h.IntValue(v)))
		}
		r = v
	case "array":
		r = h.Allocate(heap.ArrayCid, len(o.Elements))
	case "immutable_array":
		if len(o.Elements) == 0 {
			r = h.EmptyArray()
		} else {
			r = h.Allocate(heap.ImmutableArrayCid, len(o.Elements))
		}
	case "growable_array":
		r = h.NewGrowableArray(len(o.Elements))
	case "weak_array":
		r = h.Allocate(heap.WeakArrayCid, len(o.Elements))
	case "context":
		r = h.Allocate(heap.ContextCid, len(o.Elements))
	case "map":
		r = h.NewMap()
	case "instance":
		cid, err := b.class(o.Class)
		if err != nil {
			return err
		}
		if !cid.IsUserClass() {
			return errors.Errorf("object %s: %s is not an instance class", o.Name, o.Class)
		}
		r = h.NewInstance(cid)
	case "weak_property":
		r = h.Allocate(heap.WeakPropertyCid, 0)
	case "weak_reference":
		r = h.Allocate(heap.WeakReferenceCid, 0)
	case "function":
		r = h.Allocate(heap.FunctionCid, 0)
	case "closure":
		r = h.Allocate(heap.ClosureCid, 0)
	case "code":
		r = h.Allocate(heap.CodeCid, 0)
	case "type":
		var err error
		if r, err = b.buildType(o); err != nil {
			return errors.Wrapf(err, "object %s", o.Name)
		}
	case "type_arguments":
		types, err := b.values(o.Elements)
		if err != nil {
			return errors.Wrapf(err, "object %s", o.Name)
		}
		r = h.NewTypeArguments(types...)
		if o.Canonical {
			r = h.Canonicalize(r)
		}
	default:
		return errors.Errorf("object %s: unknown kind %q", o.Name, o.Kind)
	}
	b.names[o.Name] = r
	return nil
}

func (b *builder) buildType(o *ObjectDesc) (heap.Ref, error) {
	cid, err := b.class(o.Class)
	if err != nil {
		return heap.Null, err
	}
	args, err := b.value(o.Args)
	if err != nil {
		return heap.Null, err
	}
	if !args.IsNull() && b.h.ClassOf(args) != heap.TypeArgumentsCid {
		return heap.Null, errors.Errorf("type arguments of a type must be type_arguments")
	}
	if o.Declaration {
		return b.h.NewDeclarationType(cid, args), nil
	}
	nullability := heap.NonNullable
	if o.Nullable {
		nullability = heap.Nullable
	}
	r := b.h.NewType(cid, args, nullability)
	if o.Canonical {
		r = b.h.Canonicalize(r)
	}
	return r, nil
}

func (b *builder) fill(o *ObjectDesc) error {
	h := b.h
	r := b.names[o.Name]
	switch o.Kind {
	case "array", "immutable_array":
		return b.fillRefs(h.Array(r).Elements, o.Elements)
	case "weak_array":
		return b.fillRefs(h.WeakArray(r).Elements, o.Elements)
	case "growable_array":
		g := h.GrowableArray(r)
		g.Length = int64(len(o.Elements))
		return b.fillRefs(h.Array(g.Data).Elements, o.Elements)
	case "context":
		c := h.Context(r)
		if err := b.fillRefs(c.Variables, o.Elements); err != nil {
			return err
		}
		return b.setRef(&c.Parent, o.Parent)
	case "map":
		for i, e := range o.Entries {
			if len(e) != 2 {
				return errors.Errorf("map entry %d is not a key/value pair", i)
			}
			kv, err := b.values(e)
			if err != nil {
				return err
			}
			h.MapPut(r, kv[0], kv[1])
		}
	case "instance":
		return b.fillInstance(h.Instance(r), o)
	case "weak_property":
		wp := h.WeakProperty(r)
		if err := b.setRef(&wp.Key, o.Key); err != nil {
			return err
		}
		return b.setRef(&wp.Value, o.Value)
	case "weak_reference":
		return b.setRef(&h.WeakReference(r).Target, o.Value)
	case "function":
		return b.fillFunction(h.Function(r), o)
	case "closure":
		c := h.Closure(r)
		if err := b.setRef(&c.Function, o.Function); err != nil {
			return err
		}
		if c.Function.IsNull() || h.ClassOf(c.Function) != heap.FunctionCid {
			return errors.Errorf("closure needs a function")
		}
		if err := b.setRef(&c.Context, o.Context); err != nil {
			return err
		}
		return b.setRef(&c.InstantiatorTypeArguments, o.Args)
	case "code":
		return b.fillCode(h.Code(r), o)
	}
	return nil
}

func (b *builder) fillInstance(in *heap.Instance, o *ObjectDesc) error {
	if len(o.Fields) > len(in.Fields) {
		return errors.Errorf("%d fields given, class %s has %d", len(o.Fields), o.Class, len(in.Fields))
	}
	for i, v := range o.Fields {
		if in.IsUnboxed(i) {
			w, err := word(v)
			if err != nil {
				return errors.Wrapf(err, "field %d", i)
			}
			in.Words[i] = w
			continue
		}
		if err := b.setRef(&in.Fields[i], v); err != nil {
			return errors.Wrapf(err, "field %d", i)
		}
	}
	return nil
}

func (b *builder) fillFunction(fn *heap.Function, o *ObjectDesc) error {
	kind, ok := functionKinds[o.FunctionKind]
	if !ok {
		return errors.Errorf("unknown function kind %q", o.FunctionKind)
	}
	fn.Kind = kind
	if o.Class != "" {
		cid, err := b.class(o.Class)
		if err != nil {
			return err
		}
		fn.OwnerClass = cid
	}
	if err := b.setRef(&fn.Name, o.Value); err != nil {
		return err
	}
	if err := b.setRef(&fn.Signature, o.Args); err != nil {
		return err
	}
	if err := b.setRef(&fn.Code, o.Code); err != nil {
		return err
	}
	if !fn.Code.IsNull() && b.h.ClassOf(fn.Code) != heap.CodeCid {
		return errors.Errorf("function code must be code")
	}
	return nil
}

func (b *builder) fillCode(c *heap.Code, o *ObjectDesc) error {
	if err := b.setRef(&c.Owner, o.Owner); err != nil {
		return err
	}
	if err := b.setRef(&c.Pool, o.Pool); err != nil {
		return err
	}
	c.UnitID = o.Unit
	if o.StackMaps != "" {
		payload, err := hex.DecodeString(o.StackMaps)
		if err != nil {
			return errors.Wrap(err, "stack_maps")
		}
		c.StackMaps = b.h.NewStackMaps(payload)
	}
	if o.Instructions != "" {
		bytes, err := hex.DecodeString(o.Instructions)
		if err != nil {
			return errors.Wrap(err, "instructions")
		}
		c.Instructions = b.h.NewInstructions(bytes)
		c.EntryPoint = b.h.Instructions(c.Instructions).Address
	}
	return nil
}

// refreshEntryPoints recomputes the entry points functions and closures
// cache from their code, which may have been filled after them.
func (b *builder) refreshEntryPoints(objects []ObjectDesc) {
	for _, o := range objects {
		if o.Kind == "function" {
			r := b.names[o.Name]
			b.h.AttachCode(r, b.h.Function(r).Code)
		}
	}
	for _, o := range objects {
		if o.Kind == "closure" {
			c := b.h.Closure(b.names[o.Name])
			c.EntryPoint = b.h.Function(c.Function).EntryPoint
		}
	}
}

func (b *builder) fillRefs(dst []heap.Ref, src []interface{}) error {
	for i, v := range src {
		if err := b.setRef(&dst[i], v); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	return nil
}

func (b *builder) setRef(dst *heap.Ref, v interface{}) error {
	r, err := b.value(v)
	if err != nil {
		return err
	}
	*dst = r
	return nil
}

func (b *builder) values(vs []interface{}) ([]heap.Ref, error) {
	out := make([]heap.Ref, len(vs))
	for i, v := range vs {
		r, err := b.value(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// value resolves one scalar of the description.
func (b *builder) value(v interface{}) (heap.Ref, error) {
	switch x := v.(type) {
	case nil:
		return heap.Null, nil
	case bool:
		if x {
			return b.h.True(), nil
		}
		return b.h.False(), nil
	case int:
		return b.h.NewInt(int64(x)), nil
	case int64:
		return b.h.NewInt(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return heap.Null, errors.Errorf("integer %d out of range", x)
		}
		return b.h.NewInt(int64(x)), nil
	case float64:
		return b.h.NewDouble(x), nil
	case string:
		if name, ok := strings.CutPrefix(x, "@"); ok {
			r, ok := b.names[name]
			if !ok {
				return heap.Null, errors.Errorf("reference to undeclared object %s", name)
			}
			return r, nil
		}
		return b.h.Symbol(x), nil
	}
	return heap.Null, errors.Errorf("unsupported value %v (%T)", v, v)
}

// word converts an unboxed field value.
func word(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return uint64(x), nil
	case int64:
		return uint64(x), nil
	case uint64:
		return x, nil
	case float64:
		return math.Float64bits(x), nil
	}
	return 0, errors.Errorf("unboxed value %v (%T) is not a number", v, v)
}
