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
	"github.com/sirupsen/logrus"

	"github.com/dolthub/heapsnap/heap"
)

// Kind is the kind of a snapshot stream.
type Kind uint8

const (
	// FullKind is a core snapshot: canonical sets and runtime tables.
	FullKind Kind = iota + 1
	// ProgramKind is the root unit of a program.
	ProgramKind
	// UnitKind is one deferred loading unit of a program.
	UnitKind
)

func (k Kind) String() string {
	switch k {
	case FullKind:
		return "full"
	case ProgramKind:
		return "program"
	case UnitKind:
		return "unit"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{FullKind, ProgramKind, UnitKind} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Options configure one Serialize or Deserialize call.
type Options struct {
	Features Features
	// Backtrace records the discovery parent of every traced object so that
	// fatal tracer errors can print the path from a root.
	Backtrace bool
	// Profile builds a Profile of the written objects.
	Profile bool
	Logger  *logrus.Entry
}

// DefaultOptions returns options matching this build.
func DefaultOptions() Options {
	return Options{Features: DefaultFeatures()}
}

func (o Options) logger() *logrus.Entry {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// ClusterInfo summarizes one cluster of a stream.
type ClusterInfo struct {
	ClassID    heap.ClassID
	Name       string
	Canonical  bool
	Count      int
	AllocBytes int
	FillBytes  int
}

// Snapshot is the output of Serialize.
type Snapshot struct {
	Kind Kind
	// Data is the clustered stream.
	Data []byte
	// Image holds the instructions the stream refers to by offset.
	Image []byte
	// Objects lists every object by ref id, base objects first. Index i
	// holds ref id i+1. It is the base object list of child units.
	Objects        []heap.Ref
	NumBaseObjects int
	NumObjects     int
	Clusters       []ClusterInfo
	Profile        *Profile
}

// LoadResult is the output of Deserialize.
type LoadResult struct {
	Kind Kind
	// Objects lists every object by ref id, like Snapshot.Objects.
	Objects        []heap.Ref
	NumBaseObjects int
	NumObjects     int
	Clusters       []ClusterInfo
}
