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

// Package util holds the Command struct the heapsnap tool dispatches on.
package util

import (
	"context"
	"fmt"
	"io"
	"strings"

	flag "github.com/juju/gnuflag"
)

type Command struct {
	// Run runs the command.
	// The args are the arguments after the command name.
	Run func(ctx context.Context, args []string) int
	// Flags returns a fresh set of flags specific to this command.
	Flags func() *flag.FlagSet
	// UsageLine is the one-line usage message.
	// The first word in the line is taken to be the command name.
	UsageLine string
	// Short is the short description shown in the 'help' output.
	Short string
	// Long is the long message shown in the 'help <this-command>' output.
	Long string
	// Nargs is the minimum number of arguments expected after flags.
	Nargs int
}

// Name returns the command's name: the first word in the usage line.
func (nc *Command) Name() string {
	name := nc.UsageLine
	i := strings.Index(name, " ")
	if i >= 0 {
		name = name[:i]
	}
	return name
}

func countFlags(flags *flag.FlagSet) int {
	if flags == nil {
		return 0
	}
	n := 0
	flags.VisitAll(func(f *flag.Flag) {
		n++
	})
	return n
}

// Usage writes the long help of the command to |w|.
func (nc *Command) Usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s\n\n", nc.UsageLine)
	fmt.Fprintf(w, "%s\n", strings.TrimSpace(nc.Long))
	flags := nc.Flags()
	if countFlags(flags) > 0 {
		fmt.Fprintf(w, "\noptions:\n")
		flags.VisitAll(func(f *flag.Flag) {
			if f.Usage == "" {
				return
			}
			fmt.Fprintf(w, "  --%s", f.Name)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(w, " (default %s)", f.DefValue)
			}
			fmt.Fprintf(w, "\n    \t%s\n", f.Usage)
		})
	}
}

// StringList is a flag that may be given more than once.
type StringList []string

func (l *StringList) String() string {
	return strings.Join(*l, ",")
}

func (l *StringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}
