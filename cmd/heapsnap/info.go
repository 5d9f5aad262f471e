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
package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	flag "github.com/juju/gnuflag"

	"github.com/dolthub/heapsnap/cmd/heapsnap/util"
	"github.com/dolthub/heapsnap/heap"
	"github.com/dolthub/heapsnap/snapfile"
	"github.com/dolthub/heapsnap/snapshot"
)

var infoArgs struct {
	config configFlags
	color  int
}

var heapsnapInfo = &util.Command{
	Run:       runInfo,
	UsageLine: "info [options] <file.snap>...",
	Short:     "Describe snapshot files",
	Long:      "info prints the file header and the stream header of each snapshot file, and whether the stream loads with the features of the active config.",
	Flags:     setupInfoFlags,
	Nargs:     1,
}

func setupInfoFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.IntVar(&infoArgs.color, "color", -1, "value of 1 forces color on, 0 forces color off")
	infoArgs.config.register(fs)
	return fs
}

func applyColorFlag(force int) {
	switch force {
	case 0:
		color.NoColor = true
	case 1:
		color.NoColor = false
	default:
		color.NoColor = !isTerminal(stdout)
	}
}

func runInfo(ctx context.Context, args []string) int {
	applyColorFlag(infoArgs.color)
	cfg, err := infoArgs.config.load()
	if err != nil {
		return fail(err)
	}
	want := cfg.SnapshotFeatures()
	failed := false
	for i, path := range args {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		if err := describeFile(stdout, path, want); err != nil {
			logger.Errorf("%s: %v", path, err)
			failed = true
		}
	}
	if failed {
		return 1
	}
	return 0
}

func describeFile(w io.Writer, path string, want snapshot.Features) error {
	m, err := snapfile.Open(path)
	if err != nil {
		return err
	}
	defer m.Close()

	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	key := color.New(color.Faint).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	good := color.New(color.FgGreen).SprintFunc()
	row := func(k string, format string, args ...interface{}) {
		fmt.Fprintf(w, "  %s %s\n", key(fmt.Sprintf("%-10s", k)), fmt.Sprintf(format, args...))
	}

	fmt.Fprintln(w, title(path))
	row("kind", "%s", m.Kind)
	if m.Kind == snapshot.UnitKind {
		row("unit", "%d", m.Unit)
	}
	row("id", "%s", m.ID)
	if m.HasParent() {
		row("parent", "%s", m.Parent)
	} else {
		row("parent", "-")
	}
	stored := "raw"
	if m.Compressed {
		stored = "snappy"
	}
	row("stored", "%s", stored)
	row("data", "%s", humanize.Bytes(uint64(len(m.Data))))
	row("image", "%s", humanize.Bytes(uint64(len(m.Image))))

	info, err := snapshot.Inspect(m.Data)
	if err != nil {
		return err
	}
	row("version", "%s", info.Version)
	row("features", "%s", info.Features)
	switch got, err := snapshot.ParseFeatures(info.Features); {
	case err != nil:
		row("loadable", "%s", warn("no, unknown feature tokens"))
	case got != want:
		row("loadable", "%s", warn("no, config expects "+want.String()))
	default:
		row("loadable", "%s", good("yes"))
	}
	row("objects", "%s (%s base)", humanize.Comma(info.NumObjects), humanize.Comma(info.NumBaseObjects))
	row("clusters", "%d", info.NumClusters)
	if len(info.Classes) > 0 {
		ids := make([]heap.ClassID, 0, len(info.Classes))
		for id := range info.Classes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = fmt.Sprintf("%s(%d)", info.Classes[id], id)
		}
		row("classes", "%s", strings.Join(names, " "))
	}
	return nil
}
