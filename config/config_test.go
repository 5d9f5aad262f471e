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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[features]
debug = true
arch = "arm64"

[serializer]
backtrace = true
profile = "out/profile.json"

[file]
compress = false
`

func writeConfig(t *testing.T, dir, body string) string {
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, sample)
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	c, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, path, c.File)
	assert.True(t, c.Features.Debug)
	assert.Equal(t, "arm64", c.Features.Arch)
	assert.True(t, c.Serializer.Backtrace)
	assert.Equal(t, "out/profile.json", c.Serializer.Profile)
	assert.False(t, c.Output.Compress)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, Default().Features.NullSafety, c.Features.NullSafety)
	assert.Equal(t, Default().Features.Asserts, c.Features.Asserts)
}

func TestFindWithoutFile(t *testing.T) {
	dir := t.TempDir()
	c, err := FindOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[features]\nturbo = true\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "features.turbo")

	path = writeConfig(t, t.TempDir(), "[features\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	c := Default()
	mc, err := ParseOverrides([]string{"features.debug=true", "file.compress = false", "serializer.profile=p.json"})
	require.NoError(t, err)
	assert.Equal(t, 3, mc.Size())
	require.NoError(t, c.Apply(mc))
	assert.True(t, c.Features.Debug)
	assert.False(t, c.Output.Compress)

	opts := c.Options()
	assert.True(t, opts.Features.Debug)
	assert.True(t, opts.Profile)
	assert.Contains(t, opts.Features.String(), "debug")

	bad, err := ParseOverrides([]string{"features.debug=maybe"})
	require.NoError(t, err)
	assert.Error(t, Default().Apply(bad))

	unknown := NewMapConfig(map[string]string{"nope": "1"})
	assert.Error(t, Default().Apply(unknown))

	_, err = ParseOverrides([]string{"novalue"})
	assert.Error(t, err)
}

func TestMapConfig(t *testing.T) {
	mc := NewMapConfig(map[string]string{"b": "2", "a": "1"})
	v, err := mc.GetString("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	_, err = mc.GetString("c")
	assert.Equal(t, ErrConfigParamNotFound, err)

	require.NoError(t, mc.SetStrings(map[string]string{"c": "3"}))
	var keys []string
	mc.Iter(func(k, _ string) bool {
		keys = append(keys, k)
		return false
	})
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, mc.Unset([]string{"a", "b"}))
	assert.Equal(t, 1, mc.Size())
}

func TestStringRoundTrips(t *testing.T) {
	c := Default()
	c.Serializer.Profile = "x.json"
	path := writeConfig(t, t.TempDir(), c.String())
	back, err := Load(path)
	require.NoError(t, err)
	back.File = ""
	assert.Equal(t, c, back)
}
