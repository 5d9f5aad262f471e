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
	"io"
	"strconv"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/goccy/go-json"

	"github.com/dolthub/heapsnap/d"
	"github.com/dolthub/heapsnap/heap"
)

// Profile describes the objects written by one stream: one node per filled
// object and one edge per reference it wrote. Weak targets that were not
// written appear as nodes with negative ids.
type Profile struct {
	Nodes   []ProfileNode    `json:"nodes"`
	Edges   []ProfileEdge    `json:"edges"`
	Summary []ClusterSummary `json:"summary"`
}

type ProfileNode struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	SelfSize int    `json:"self_size"`
}

type ProfileEdge struct {
	From int64  `json:"from"`
	To   int64  `json:"to"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// ClusterSummary is the distribution of the fill sizes of one cluster.
type ClusterSummary struct {
	Cluster   string `json:"cluster"`
	Canonical bool   `json:"canonical"`
	Count     int    `json:"count"`
	Bytes     int    `json:"bytes"`
	P50       int64  `json:"p50"`
	P99       int64  `json:"p99"`
	Max       int64  `json:"max"`
}

// WriteJSON writes |p| as indented JSON.
func (p *Profile) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// ReadProfile parses a profile written by WriteJSON.
func ReadProfile(r io.Reader) (*Profile, error) {
	var p Profile
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// NodeByID returns the node with id |id|.
func (p *Profile) NodeByID(id int64) (ProfileNode, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return ProfileNode{}, false
}

// profileBuilder collects the profile while fill sections are written. A
// nil builder ignores every call.
type profileBuilder struct {
	h     *heap.Heap
	nodes []ProfileNode
	keys  []clusterKey
	edges []ProfileEdge

	open      int
	openStart uint32

	artificial     map[heap.Ref]int64
	nextArtificial int64
}

func newProfileBuilder(h *heap.Heap) *profileBuilder {
	return &profileBuilder{h: h, open: -1, artificial: map[heap.Ref]int64{}}
}

func (p *profileBuilder) openNode(id int64, r heap.Ref, pos uint32) {
	if p == nil {
		return
	}
	p.closeNode(pos)
	k := clusterKey{cid: heap.MintCid, canonical: true}
	if !r.IsSmi() {
		obj := p.h.Get(r)
		k = clusterKey{cid: obj.ClassID(), canonical: obj.IsCanonical()}
	}
	p.nodes = append(p.nodes, ProfileNode{ID: id, Type: k.cid.String(), Name: p.h.Describe(r)})
	p.keys = append(p.keys, k)
	p.open = len(p.nodes) - 1
	p.openStart = pos
}

func (p *profileBuilder) closeNode(pos uint32) {
	if p == nil || p.open < 0 {
		return
	}
	p.nodes[p.open].SelfSize = int(pos - p.openStart)
	p.open = -1
}

func (p *profileBuilder) edge(to int64, r heap.Ref, typ, name string) {
	if p == nil || p.open < 0 || r.IsNull() {
		return
	}
	p.edges = append(p.edges, ProfileEdge{From: p.nodes[p.open].ID, To: to, Type: typ, Name: name})
}

func (p *profileBuilder) elementEdge(to int64, r heap.Ref, i int) {
	p.edge(to, r, "element", strconv.Itoa(i))
}

// artificialID returns the negative id standing for |r|, which is not
// written.
func (p *profileBuilder) artificialID(r heap.Ref) int64 {
	if p == nil {
		return 0
	}
	if id, ok := p.artificial[r]; ok {
		return id
	}
	p.nextArtificial--
	id := p.nextArtificial
	p.artificial[r] = id
	node := ProfileNode{ID: id, Type: p.h.ClassOf(r).String(), Name: p.h.Describe(r)}
	p.nodes = append(p.nodes, node)
	p.keys = append(p.keys, clusterKey{})
	return id
}

func (p *profileBuilder) build(infos []ClusterInfo) *Profile {
	if p == nil {
		return nil
	}
	hists := map[clusterKey]*hdrhistogram.Histogram{}
	bytes := map[clusterKey]int{}
	for i, n := range p.nodes {
		if n.ID <= 0 {
			continue
		}
		k := p.keys[i]
		h, ok := hists[k]
		if !ok {
			h = hdrhistogram.New(1, 1<<32, 3)
			hists[k] = h
		}
		size := int64(n.SelfSize)
		if size < 1 {
			size = 1
		}
		d.PanicIfError(h.RecordValue(size))
		bytes[k] += n.SelfSize
	}

	prof := &Profile{Nodes: p.nodes, Edges: p.edges}
	for _, info := range infos {
		s := ClusterSummary{Cluster: info.Name, Canonical: info.Canonical, Count: info.Count}
		k := clusterKey{cid: info.ClassID, canonical: info.Canonical}
		if h, ok := hists[k]; ok {
			s.Bytes = bytes[k]
			s.P50 = h.ValueAtQuantile(50)
			s.P99 = h.ValueAtQuantile(99)
			s.Max = h.Max()
		}
		prof.Summary = append(prof.Summary, s)
	}
	return prof
}
