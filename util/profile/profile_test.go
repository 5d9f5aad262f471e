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
package profile

import (
	"os"
	"path/filepath"
	"testing"

	flag "github.com/juju/gnuflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybeStartProfile(t *testing.T) {
	dir := t.TempDir()
	mem := filepath.Join(dir, "mem.pprof")
	block := filepath.Join(dir, "block.pprof")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterProfileFlags(fs)
	require.NoError(t, fs.Parse(true, []string{"--memprofile=" + mem, "--blockprofile=" + block}))
	defer func() { memProfile, blockProfile = "", "" }()

	p := MaybeStartProfile()
	p.Stop()
	for _, path := range []string{mem, block} {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, fi.Size(), path)
	}
}
