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
	"runtime"
	"strings"

	"gopkg.in/src-d/go-errors.v1"

	"github.com/dolthub/heapsnap/d"
	"github.com/dolthub/heapsnap/heap"
)

// VersionTag identifies the stream layout. It changes whenever the layout of
// any section or cluster changes.
const VersionTag = "5e1c0a7f93b24d8e6fa2c71d0b8e4935"

const versionTagLen = len(VersionTag)

// sentinel is written after every fill section and after the roots when the
// debug feature is on.
const sentinel uint32 = 0xBAADF00D

var (
	ErrVersionMismatch = errors.NewKind("snapshot version mismatch: stream has %q, expected %q")
	ErrFeatureMismatch = errors.NewKind("snapshot feature mismatch: stream has %q, expected %q")
	ErrTruncated       = errors.NewKind("snapshot truncated at offset %d (need %d more bytes)")
	ErrBadMagic        = errors.NewKind("not a snapshot: %s")
	ErrParentMismatch  = errors.NewKind("snapshot parent mismatch: %s")
	ErrClassMismatch   = errors.NewKind("snapshot class %d is %s, heap has %s")
	ErrImage           = errors.NewKind("bad instructions image")
)

// Features is the build configuration a stream is tied to. A stream only
// loads into a consumer with identical features.
type Features struct {
	// Debug adds reference-count echoes and sentinels to the stream.
	Debug              bool
	Product            bool
	Asserts            bool
	Arch               string
	CompressedPointers bool
	NullSafety         bool
}

// DefaultFeatures returns the features of this build.
func DefaultFeatures() Features {
	return Features{
		Asserts:            true,
		Arch:               runtime.GOARCH,
		CompressedPointers: false,
		NullSafety:         true,
	}
}

// String returns the space separated feature tokens.
func (f Features) String() string {
	var tokens []string
	if f.Debug {
		tokens = append(tokens, "debug")
	}
	if f.Product {
		tokens = append(tokens, "product")
	}
	if !f.Debug && !f.Product {
		tokens = append(tokens, "release")
	}
	tokens = append(tokens, flag("asserts", f.Asserts))
	tokens = append(tokens, "arch="+f.Arch)
	tokens = append(tokens, flag("compressed-pointers", f.CompressedPointers))
	tokens = append(tokens, flag("null-safety", f.NullSafety))
	return strings.Join(tokens, " ")
}

func flag(name string, on bool) string {
	if on {
		return name
	}
	return "no-" + name
}

// ParseFeatures is the inverse of Features.String.
func ParseFeatures(s string) (Features, error) {
	var f Features
	for _, tok := range strings.Fields(s) {
		switch {
		case tok == "debug":
			f.Debug = true
		case tok == "product":
			f.Product = true
		case tok == "release":
		case tok == "asserts":
			f.Asserts = true
		case tok == "no-asserts":
		case strings.HasPrefix(tok, "arch="):
			f.Arch = strings.TrimPrefix(tok, "arch=")
		case tok == "compressed-pointers":
			f.CompressedPointers = true
		case tok == "no-compressed-pointers":
		case tok == "null-safety":
			f.NullSafety = true
		case tok == "no-null-safety":
		default:
			return Features{}, ErrFeatureMismatch.New(s, "known tokens")
		}
	}
	return f, nil
}

// classInfo is the layout of one user class as recorded in the header.
type classInfo struct {
	id        heap.ClassID
	name      string
	numFields int
	unboxed   uint64
}

// header is everything before the first cluster.
type header struct {
	version          string
	features         string
	numBaseObjects   int64
	numObjects       int64
	numClusters      int64
	instructionsLen  int64
	instructionsData uint64
	classes          []classInfo
}

func (h header) write(w *binaryStreamWriter) {
	d.PanicIfFalse(len(h.version) == versionTagLen)
	w.writeRaw([]byte(h.version))
	w.writeRaw([]byte(h.features))
	w.writeUint8(0)
	w.writeUnsigned(uint64(h.numBaseObjects))
	w.writeUnsigned(uint64(h.numObjects))
	w.writeUnsigned(uint64(h.numClusters))
	w.writeUnsigned(uint64(h.instructionsLen))
	w.writeUnsigned(h.instructionsData)
	w.writeUnsigned(uint64(len(h.classes)))
	for _, c := range h.classes {
		w.writeUnsigned(uint64(c.id))
		w.writeString(c.name)
		w.writeUnsigned(uint64(c.numFields))
		w.writeWord(c.unboxed)
	}
}

// readHeader parses and verifies the header against |features|, or skips the
// feature check if |features| is nil. It returns only category (a) errors and
// never touches a heap.
func readHeader(r *binaryStreamReader, features *Features) (h header, err error) {
	err = d.Try(func() {
		if r.remaining() < versionTagLen {
			d.PanicRecoverable(ErrTruncated.New(r.pos(), versionTagLen))
		}
		h.version = string(r.readRaw(uint32(versionTagLen)))
		if h.version != VersionTag {
			d.PanicRecoverable(ErrVersionMismatch.New(h.version, VersionTag))
		}

		var sb strings.Builder
		for {
			c := r.readUint8()
			if c == 0 {
				break
			}
			sb.WriteByte(c)
		}
		h.features = sb.String()
		if features != nil && h.features != features.String() {
			d.PanicRecoverable(ErrFeatureMismatch.New(h.features, features.String()))
		}

		h.numBaseObjects = int64(r.readUnsigned())
		h.numObjects = int64(r.readUnsigned())
		h.numClusters = int64(r.readUnsigned())
		d.Exp.LessOrEqual(h.numClusters, h.numObjects, "header declares more clusters than objects")
		h.instructionsLen = int64(r.readUnsigned())
		h.instructionsData = r.readUnsigned()
		n := r.readUnsigned()
		for i := uint64(0); i < n; i++ {
			var c classInfo
			c.id = heap.ClassID(r.readUnsigned())
			c.name = r.readString()
			c.numFields = int(r.readUnsigned())
			c.unboxed = r.readWord()
			h.classes = append(h.classes, c)
		}
	})
	return h, err
}

// StreamInfo is what the header of a stream records.
type StreamInfo struct {
	Version        string
	Features       string
	NumBaseObjects int64
	NumObjects     int64
	NumClusters    int64
	// Classes names the user classes the stream needs, by class id.
	Classes map[heap.ClassID]string
}

// Inspect reads the header of the stream |data| without checking it against
// this build's features.
func Inspect(data []byte) (StreamInfo, error) {
	r := binaryStreamReader{buff: data}
	h, err := readHeader(&r, nil)
	if err != nil {
		return StreamInfo{}, err
	}
	info := StreamInfo{
		Version:        h.version,
		Features:       h.features,
		NumBaseObjects: h.numBaseObjects,
		NumObjects:     h.numObjects,
		NumClusters:    h.numClusters,
		Classes:        map[heap.ClassID]string{},
	}
	for _, c := range h.classes {
		info.Classes[c.id] = c.name
	}
	return info, nil
}

// userClasses returns the user class layouts of |ct|.
func userClasses(ct *heap.ClassTable) []classInfo {
	var out []classInfo
	for cid := heap.NumPredefinedCids; int(cid) < ct.NumClasses(); cid++ {
		s, _ := ct.ShapeOf(cid)
		out = append(out, classInfo{id: cid, name: s.Name, numFields: s.NumFields, unboxed: s.Unboxed})
	}
	return out
}

// checkClasses verifies that every class the stream needs either exists in
// |ct| with the same layout or can be registered at the same id. It does not
// modify |ct|.
func checkClasses(ct *heap.ClassTable, classes []classInfo) error {
	next := heap.ClassID(ct.NumClasses())
	for _, c := range classes {
		s, ok := ct.ShapeOf(c.id)
		if !ok {
			if c.id != next {
				return ErrClassMismatch.New(c.id, c.name, "no class at that id")
			}
			if other, dup := ct.Lookup(c.name); dup {
				return ErrClassMismatch.New(c.id, c.name, "it at id "+other.String())
			}
			next++
			continue
		}
		if s.Name != c.name || s.NumFields != c.numFields || s.Unboxed != c.unboxed {
			return ErrClassMismatch.New(c.id, c.name, s.Name)
		}
	}
	return nil
}

// registerClasses adds the classes checkClasses found missing.
func registerClasses(ct *heap.ClassTable, classes []classInfo) {
	for _, c := range classes {
		if _, ok := ct.ShapeOf(c.id); ok {
			continue
		}
		cid, err := ct.Register(c.name, c.numFields, c.unboxed)
		d.PanicIfError(err)
		d.Chk.Equal(c.id, cid, "class %s registered at the wrong id", c.name)
	}
}
