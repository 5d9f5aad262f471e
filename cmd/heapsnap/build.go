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
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	flag "github.com/juju/gnuflag"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dolthub/heapsnap/cmd/heapsnap/util"
	"github.com/dolthub/heapsnap/heap"
	"github.com/dolthub/heapsnap/heapdesc"
	"github.com/dolthub/heapsnap/snapfile"
	"github.com/dolthub/heapsnap/snapshot"
)

const (
	fullFileName    = "full.snap"
	programFileName = "program.snap"
)

func unitFileName(id int32) string {
	return fmt.Sprintf("unit-%d.snap", id)
}

var buildArgs struct {
	config    configFlags
	full      bool
	undivided bool
}

var heapsnapBuild = &util.Command{
	Run:       runBuild,
	UsageLine: "build [options] <description.yaml> <outdir>",
	Short:     "Write snapshot files for a heap description",
	Long: `build creates the heap described by <description.yaml> and writes its
program snapshot to <outdir>/` + programFileName + ` and one unit-<id>.snap for
each deferred loading unit. With --full the core snapshot is written to
<outdir>/` + fullFileName + ` and the program is written over it.`,
	Flags: setupBuildFlags,
	Nargs: 2,
}

func setupBuildFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	buildArgs.config.register(fs)
	fs.BoolVar(&buildArgs.full, "full", false, "also write the core snapshot")
	fs.BoolVar(&buildArgs.undivided, "undivided", false, "keep the code of every loading unit in the program snapshot")
	return fs
}

type outputFile struct {
	name string
	snap *snapshot.Snapshot
	file *snapfile.File
}

func runBuild(ctx context.Context, args []string) int {
	cfg, err := buildArgs.config.load()
	if err != nil {
		return fail(err)
	}
	desc, err := heapdesc.ReadFile(args[0])
	if err != nil {
		return fail(err)
	}
	h := heap.New()
	if _, err := desc.Build(h); err != nil {
		return fail(errors.Wrap(err, args[0]))
	}

	outDir := args[1]
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fail(errors.Wrap(err, "creating output directory"))
	}

	opts := cfg.Options()
	opts.Logger = logger.WithField("cmd", "build")
	files, err := serializeDescription(ctx, h, desc, opts)
	if err != nil {
		return fail(err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, out := range files {
		out := out
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return snapfile.WriteFile(filepath.Join(outDir, out.name), out.file, cfg.Output.Compress)
		})
	}
	if err := eg.Wait(); err != nil {
		return fail(err)
	}

	for _, out := range files {
		logger.WithFields(logrus.Fields{
			"kind":    out.file.Kind,
			"objects": out.snap.NumObjects,
			"data":    humanize.Bytes(uint64(len(out.file.Data))),
			"image":   humanize.Bytes(uint64(len(out.file.Image))),
		}).Infof("wrote %s", filepath.Join(outDir, out.name))
	}

	if cfg.Serializer.Profile != "" {
		if err := writeProfile(cfg.Serializer.Profile, files); err != nil {
			return fail(err)
		}
	}
	return 0
}

// serializeDescription writes the streams for |h|: the optional core
// snapshot, the program and then one stream per deferred unit.
func serializeDescription(ctx context.Context, h *heap.Heap, desc *heapdesc.Description, opts snapshot.Options) ([]outputFile, error) {
	var files []outputFile
	var base []heap.Ref
	var parent *snapfile.File

	if buildArgs.full {
		snap, err := snapshot.Serialize(ctx, h, snapshot.FullRoots{}, opts)
		if err != nil {
			return nil, err
		}
		parent = snapfile.FromSnapshot(snap, 0, nil)
		base = snap.Objects
		files = append(files, outputFile{name: fullFileName, snap: snap, file: parent})
	}

	prog, err := snapshot.Serialize(ctx, h, snapshot.ProgramRoots{Base: base, Undivided: buildArgs.undivided}, opts)
	if err != nil {
		return nil, err
	}
	progFile := snapfile.FromSnapshot(prog, heap.RootUnitID, parent)
	files = append(files, outputFile{name: programFileName, snap: prog, file: progFile})
	if buildArgs.undivided {
		return files, nil
	}

	for _, u := range desc.Units {
		if u.ID == heap.RootUnitID {
			continue
		}
		snap, err := snapshot.Serialize(ctx, h, snapshot.UnitRoots{Parent: prog.Objects, ID: u.ID}, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "loading unit %d", u.ID)
		}
		files = append(files, outputFile{name: unitFileName(u.ID), snap: snap, file: snapfile.FromSnapshot(snap, u.ID, progFile)})
	}
	return files, nil
}

// writeProfile writes the profile of the program snapshot to |path|.
func writeProfile(path string, files []outputFile) error {
	for _, out := range files {
		if out.name != programFileName || out.snap.Profile == nil {
			continue
		}
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "writing profile")
		}
		if err := out.snap.Profile.WriteJSON(f); err != nil {
			f.Close()
			return errors.Wrap(err, "writing profile")
		}
		logger.Infof("wrote profile %s", path)
		return f.Close()
	}
	return nil
}
