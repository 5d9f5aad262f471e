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

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	flag "github.com/juju/gnuflag"
	"github.com/pkg/errors"

	"github.com/dolthub/heapsnap/cmd/heapsnap/util"
	"github.com/dolthub/heapsnap/heap"
	"github.com/dolthub/heapsnap/heapdesc"
	"github.com/dolthub/heapsnap/snapfile"
	"github.com/dolthub/heapsnap/snapshot"
)

var loadArgs struct {
	config configFlags
	full   string
	desc   string
}

var heapsnapLoad = &util.Command{
	Run:       runLoad,
	UsageLine: "load [options] <program.snap> [<unit.snap>...]",
	Short:     "Load snapshot files into a fresh heap",
	Long: `load checks that the files were written over each other, loads the core
snapshot given by --full, then the program and then each unit into one heap
and reports what each stream added.

With --desc the loaded program is compared against the heap the description
builds. The comparison needs the code of every loading unit, so it is
skipped while any deferred unit is missing.`,
	Flags: setupLoadFlags,
	Nargs: 1,
}

func setupLoadFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	loadArgs.config.register(fs)
	fs.StringVar(&loadArgs.full, "full", "", "core snapshot the program was written over")
	fs.StringVar(&loadArgs.desc, "desc", "", "heap description to compare the loaded program with")
	return fs
}

func runLoad(ctx context.Context, args []string) int {
	applyColorFlag(-1)
	cfg, err := loadArgs.config.load()
	if err != nil {
		return fail(err)
	}
	opts := cfg.Options()
	opts.Profile = false
	opts.Logger = logger.WithField("cmd", "load")

	var desc *heapdesc.Description
	ct := heap.NewClassTable()
	if loadArgs.desc != "" {
		if desc, err = heapdesc.ReadFile(loadArgs.desc); err != nil {
			return fail(err)
		}
		if err := desc.RegisterClasses(ct); err != nil {
			return fail(err)
		}
	}

	var full *snapfile.Mapped
	if loadArgs.full != "" {
		if full, err = snapfile.Open(loadArgs.full); err != nil {
			return fail(err)
		}
		defer full.Close()
	}
	prog, err := snapfile.Open(args[0])
	if err != nil {
		return fail(err)
	}
	defer prog.Close()
	var units []*snapfile.Mapped
	for _, path := range args[1:] {
		m, err := snapfile.Open(path)
		if err != nil {
			return fail(err)
		}
		defer m.Close()
		units = append(units, m)
	}

	if err := checkChain(full, prog, units); err != nil {
		return fail(err)
	}

	h := heap.NewWithClasses(ct)
	var base []heap.Ref
	if full != nil {
		res, err := snapshot.Deserialize(ctx, h, full.Data, full.Image, snapshot.FullRoots{}, opts)
		if err != nil {
			return fail(errors.Wrap(err, loadArgs.full))
		}
		report(loadArgs.full, res)
		base = res.Objects
	}
	progRes, err := snapshot.Deserialize(ctx, h, prog.Data, prog.Image, snapshot.ProgramRoots{Base: base}, opts)
	if err != nil {
		return fail(errors.Wrap(err, args[0]))
	}
	report(args[0], progRes)
	for i, u := range units {
		res, err := snapshot.Deserialize(ctx, h, u.Data, u.Image, snapshot.UnitRoots{Parent: progRes.Objects, ID: u.Unit}, opts)
		if err != nil {
			return fail(errors.Wrap(err, args[i+1]))
		}
		report(args[i+1], res)
	}

	if desc == nil {
		return 0
	}
	if lazy := countLazyCode(h); lazy > 0 {
		logger.Warnf("%d code objects still wait for their loading unit, not comparing with %s", lazy, loadArgs.desc)
		return 0
	}
	want := heap.New()
	if _, err := desc.Build(want); err != nil {
		return fail(err)
	}
	if err := heap.Compare(want, programRoots(want), h, programRoots(h)); err != nil {
		return fail(errors.Wrapf(err, "loaded heap differs from %s", loadArgs.desc))
	}
	fmt.Fprintf(stdout, "%s %s\n", color.GreenString("ok"), loadArgs.desc)
	return 0
}

// checkChain verifies that each file was written over the one it is loaded
// after.
func checkChain(full, prog *snapfile.Mapped, units []*snapfile.Mapped) error {
	if full != nil {
		if err := full.CheckParent(nil); err != nil {
			return err
		}
		if err := prog.CheckParent(full.File); err != nil {
			return err
		}
	} else if err := prog.CheckParent(nil); err != nil {
		return err
	}
	seen := map[int32]bool{}
	for _, u := range units {
		if err := u.CheckParent(prog.File); err != nil {
			return err
		}
		if seen[u.Unit] {
			return errors.Errorf("loading unit %d given twice", u.Unit)
		}
		seen[u.Unit] = true
	}
	return nil
}

func report(path string, res *snapshot.LoadResult) {
	fmt.Fprintf(stdout, "%s: %s %s objects in %d clusters\n", path, res.Kind, humanize.Comma(int64(res.NumObjects)), len(res.Clusters))
	for _, c := range res.Clusters {
		canonical := ""
		if c.Canonical {
			canonical = " (canonical)"
		}
		logger.Debugf("  %-20s %6d %10s%s", c.Name, c.Count, humanize.Bytes(uint64(c.AllocBytes+c.FillBytes)), canonical)
	}
}

// programRoots returns the program store slots followed by the dispatch
// table.
func programRoots(h *heap.Heap) []heap.Ref {
	var roots []heap.Ref
	for slot := heap.StoreSlot(0); slot < heap.NumProgramSlots; slot++ {
		roots = append(roots, h.Store().Get(slot))
	}
	return append(roots, h.Store().DispatchTable()...)
}

func countLazyCode(h *heap.Heap) int {
	n := 0
	h.Each(func(r heap.Ref, obj heap.Object) {
		if c, ok := obj.(*heap.Code); ok && c.Instructions == h.LazyStub() {
			n++
		}
	})
	return n
}
