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
	"fmt"
	"strconv"
)

const maxDescribedString = 40

// Describe returns a short human readable description of |r| for
// diagnostics.
func (h *Heap) Describe(r Ref) string {
	switch {
	case r.IsNull():
		return "null"
	case r.IsSmi():
		return strconv.FormatInt(r.SmiValue(), 10)
	}
	obj, ok := h.Lookup(r)
	if !ok {
		return fmt.Sprintf("<dangling %s>", r)
	}
	return h.describeObject(obj) + " " + r.String()
}

func (h *Heap) describeObject(obj Object) string {
	prefix := ""
	if obj.IsCanonical() {
		prefix = "canonical "
	}
	switch o := obj.(type) {
	case *Bool:
		return prefix + strconv.FormatBool(o.Value)
	case *Mint:
		return prefix + "Mint " + strconv.FormatInt(o.Value, 10)
	case *Double:
		return prefix + "Double " + strconv.FormatFloat(o.Value, 'g', -1, 64)
	case *String:
		s := string(o.Data)
		if len(s) > maxDescribedString {
			s = s[:maxDescribedString] + "..."
		}
		return prefix + "String " + strconv.Quote(s)
	case *Type:
		return fmt.Sprintf("%sType %s", prefix, h.className(o.TypeClass))
	case *TypeArguments:
		return fmt.Sprintf("%sTypeArguments[%d]", prefix, len(o.Types))
	case *Function:
		name := "<anonymous>"
		if s, ok := h.Lookup(o.Name); ok {
			if str, ok := s.(*String); ok {
				name = string(str.Data)
			}
		}
		return prefix + "Function " + name
	case *Context:
		return fmt.Sprintf("%sContext[%d]", prefix, len(o.Variables))
	case *Code:
		return fmt.Sprintf("%sCode unit=%d", prefix, o.Unit())
	case *Instructions:
		return fmt.Sprintf("%sInstructions[%d] @%#x", prefix, len(o.Bytes), o.Address)
	case *CompressedStackMaps:
		return fmt.Sprintf("%sCompressedStackMaps[%d]", prefix, len(o.Payload))
	case *Array:
		return fmt.Sprintf("%s%s[%d]", prefix, o.ClassID(), len(o.Elements))
	case *GrowableArray:
		return fmt.Sprintf("%sGrowableArray[%d]", prefix, o.Length)
	case *Map:
		return fmt.Sprintf("%sMap[%d]", prefix, o.Len())
	case *WeakArray:
		return fmt.Sprintf("%sWeakArray[%d]", prefix, len(o.Elements))
	case *LoadingUnit:
		return fmt.Sprintf("%sLoadingUnit %d", prefix, o.ID)
	case *Instance:
		return prefix + "Instance of " + h.className(o.ClassID())
	}
	return prefix + obj.ClassID().String()
}

func (h *Heap) className(cid ClassID) string {
	if s, ok := h.classes.ShapeOf(cid); ok {
		return s.Name
	}
	return cid.String()
}
