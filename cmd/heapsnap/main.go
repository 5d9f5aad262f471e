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

// Command heapsnap builds, inspects and loads heap snapshot files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	flag "github.com/juju/gnuflag"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/heapsnap/cmd/heapsnap/util"
	"github.com/dolthub/heapsnap/config"
	"github.com/dolthub/heapsnap/util/profile"
	"github.com/dolthub/heapsnap/util/verbose"
)

var commands = []*util.Command{
	heapsnapBuild,
	heapsnapInfo,
	heapsnapLoad,
	heapsnapConfig,
	heapsnapVersion,
}

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	logger           = logrus.New()
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("heapsnap", flag.ContinueOnError)
	verbose.RegisterVerboseFlags(fs)
	profile.RegisterProfileFlags(fs)
	if err := fs.Parse(false, args); err != nil {
		usage(stderr)
		return 1
	}
	args = fs.Args()

	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		ForceColors:      isTerminal(stderr),
	})
	verbose.Apply(logger)

	if len(args) == 0 {
		usage(stderr)
		return 1
	}
	if args[0] == "help" {
		return help(args[1:])
	}

	for _, cmd := range commands {
		if cmd.Name() != args[0] {
			continue
		}
		flags := cmd.Flags()
		if err := flags.Parse(true, args[1:]); err != nil {
			cmd.Usage(stderr)
			return 1
		}
		rest := flags.Args()
		if len(rest) < cmd.Nargs {
			cmd.Usage(stderr)
			return 1
		}

		p := profile.MaybeStartProfile()
		defer p.Stop()
		return cmd.Run(ctx, rest)
	}
	fmt.Fprintf(stderr, "heapsnap: unknown command %q\n\n", args[0])
	usage(stderr)
	return 1
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "heapsnap builds, inspects and loads heap snapshot files.\n\n")
	fmt.Fprintf(w, "usage: heapsnap [-v] [-q] <command> [options] [args]\n\ncommands:\n")
	sorted := append([]*util.Command(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	for _, cmd := range sorted {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.Name(), cmd.Short)
	}
	fmt.Fprintf(w, "\nrun 'heapsnap help <command>' for details\n")
}

func help(args []string) int {
	if len(args) == 0 {
		usage(stdout)
		return 0
	}
	for _, cmd := range commands {
		if cmd.Name() == args[0] {
			cmd.Usage(stdout)
			return 0
		}
	}
	fmt.Fprintf(stderr, "heapsnap: unknown help topic %q\n", args[0])
	return 1
}

// fail logs |err| and returns the exit code of a failed command.
func fail(err error) int {
	logger.Error(err)
	return 1
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// configFlags are the flags shared by the commands that read the config.
type configFlags struct {
	path      string
	overrides util.StringList
}

func (c *configFlags) register(fs *flag.FlagSet) {
	c.path = ""
	c.overrides = nil
	fs.StringVar(&c.path, "config", "", "config file to use instead of searching for "+config.FileName)
	fs.Var(&c.overrides, "set", "override a config key, as key=value; may be repeated")
}

// load returns the config the flags select.
func (c *configFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.path != "" {
		cfg, err = config.Load(c.path)
	} else {
		cfg, err = config.FindOrDefault(".")
	}
	if err != nil {
		return nil, err
	}
	if len(c.overrides) > 0 {
		mc, err := config.ParseOverrides(c.overrides)
		if err != nil {
			return nil, err
		}
		if err := cfg.Apply(mc); err != nil {
			return nil, err
		}
	}
	if cfg.File != "" {
		logger.Debugf("using config %s", cfg.File)
	}
	return cfg, nil
}
