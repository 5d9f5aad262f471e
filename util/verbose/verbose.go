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

// Package verbose maps the -v and -q command line flags onto a logrus
// level.
package verbose

import (
	flag "github.com/juju/gnuflag"
	"github.com/sirupsen/logrus"
)

var (
	verbose bool
	quiet   bool
)

// RegisterVerboseFlags registers -v|--verbose and -q|--quiet on |flags|.
func RegisterVerboseFlags(flags *flag.FlagSet) {
	flags.BoolVar(&verbose, "verbose", false, "show more")
	flags.BoolVar(&verbose, "v", false, "")
	flags.BoolVar(&quiet, "quiet", false, "show nothing but errors")
	flags.BoolVar(&quiet, "q", false, "")
}

func Verbose() bool {
	return verbose
}

func SetVerbose(v bool) {
	verbose = v
}

func Quiet() bool {
	return quiet
}

func SetQuiet(q bool) {
	quiet = q
}

// Level returns the log level the flags select. Quiet wins over verbose.
func Level() logrus.Level {
	switch {
	case quiet:
		return logrus.ErrorLevel
	case verbose:
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// Apply sets the level of |l| from the flags.
func Apply(l *logrus.Logger) {
	l.SetLevel(Level())
}
