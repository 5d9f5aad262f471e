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

	flag "github.com/juju/gnuflag"

	"github.com/dolthub/heapsnap/cmd/heapsnap/util"
	"github.com/dolthub/heapsnap/snapfile"
	"github.com/dolthub/heapsnap/snapshot"
)

// Version is the release of the tool.
const Version = "0.1.0"

var heapsnapVersion = &util.Command{
	Run:       runVersion,
	UsageLine: "version ",
	Short:     "Display heapsnap version",
	Long:      "version prints the tool release, the snapshot stream version and the snapshot file format",
	Flags:     setupVersionFlags,
	Nargs:     0,
}

func setupVersionFlags() *flag.FlagSet {
	return flag.NewFlagSet("version", flag.ContinueOnError)
}

func runVersion(ctx context.Context, args []string) int {
	fmt.Fprintf(stdout, "heapsnap version %s\n", Version)
	fmt.Fprintf(stdout, "stream version: %s\n", snapshot.VersionTag)
	fmt.Fprintf(stdout, "file format: %d\n", snapfile.FormatVersion)
	return 0
}
