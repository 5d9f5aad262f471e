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
	"github.com/dolthub/heapsnap/config"
)

var configArgs configFlags

var heapsnapConfig = &util.Command{
	Run:       runConfig,
	UsageLine: "config [options]",
	Short:     "Display heapsnap config info",
	Long:      "Prints the active configuration, found by searching for " + config.FileName + " from the working directory up, with any --set overrides applied.",
	Flags:     setupConfigFlags,
	Nargs:     0,
}

func setupConfigFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configArgs.register(fs)
	return fs
}

func runConfig(ctx context.Context, args []string) int {
	cfg, err := configArgs.load()
	if err != nil {
		return fail(err)
	}
	if cfg.File == "" {
		fmt.Fprintf(stdout, "# no config file active, showing defaults\n")
	} else {
		fmt.Fprintf(stdout, "# %s\n", cfg.File)
	}
	fmt.Fprintf(stdout, "%s", cfg.String())
	return 0
}
