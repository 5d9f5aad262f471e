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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/heapsnap/snapshot"
)

const testDescription = "../../heapdesc/testdata/program.yaml"

type cliOutput struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliOutput {
	var out, errOut bytes.Buffer
	stdout, stderr = &out, &errOut
	defer func() {
		stdout, stderr = os.Stdout, os.Stderr
		logger.SetOutput(os.Stderr)
	}()
	code := run(context.Background(), args)
	return cliOutput{code: code, stdout: out.String(), stderr: errOut.String()}
}

func writeTestConfig(t *testing.T, dir string) string {
	path := filepath.Join(dir, "test.toml")
	require.NoError(t, os.WriteFile(path, []byte("[file]\ncompress = true\n"), 0o644))
	return path
}

func TestBuildInfoLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := "--config=" + writeTestConfig(t, dir)
	out := filepath.Join(dir, "out")
	profile := filepath.Join(dir, "profile.json")

	res := runCLI(t, "build", cfg, "--set=serializer.profile="+profile, testDescription, out)
	require.Equal(t, 0, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(out, programFileName))
	assert.FileExists(t, filepath.Join(out, unitFileName(2)))
	assert.NoFileExists(t, filepath.Join(out, fullFileName))

	f, err := os.Open(profile)
	require.NoError(t, err)
	p, err := snapshot.ReadProfile(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.NotEmpty(t, p.Nodes)

	prog := filepath.Join(out, programFileName)
	unit := filepath.Join(out, unitFileName(2))
	res = runCLI(t, "info", prog, unit)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "program")
	assert.Contains(t, res.stdout, "snappy")
	assert.Contains(t, res.stdout, "Point(")
	assert.Contains(t, res.stdout, snapshot.VersionTag)
	assert.NotContains(t, res.stdout, "\x1b[")
	assert.Regexp(t, `loadable\s+yes`, res.stdout)

	res = runCLI(t, "info", cfg, "--set=features.debug=true", prog)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "no, config expects debug")

	res = runCLI(t, "load", cfg, "--desc="+testDescription, prog, unit)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "ok "+testDescription)

	// Without the unit the deferred code is still a stub.
	res = runCLI(t, "load", cfg, "--desc="+testDescription, prog)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "wait for their loading unit")
	assert.NotContains(t, res.stdout, "ok ")

	// A unit is not a program.
	res = runCLI(t, "load", cfg, unit)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "parent mismatch")

	// Streams only load into a build with the same features.
	res = runCLI(t, "load", cfg, "--set=features.debug=true", prog)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "feature")
}

func TestBuildFull(t *testing.T) {
	dir := t.TempDir()
	cfg := "--config=" + writeTestConfig(t, dir)
	out := filepath.Join(dir, "out")

	res := runCLI(t, "build", cfg, "--full", "--set=file.compress=false", testDescription, out)
	require.Equal(t, 0, res.code, res.stderr)
	full := filepath.Join(out, fullFileName)
	prog := filepath.Join(out, programFileName)
	unit := filepath.Join(out, unitFileName(2))

	res = runCLI(t, "load", cfg, "--full="+full, "--desc="+testDescription, prog, unit)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "ok ")

	res = runCLI(t, "load", cfg, prog, unit)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "parent mismatch")

	res = runCLI(t, "load", cfg, "--full="+full, prog, unit, unit)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "given twice")

	res = runCLI(t, "info", "--color=0", prog)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "raw")
}

func TestBuildUndivided(t *testing.T) {
	dir := t.TempDir()
	cfg := "--config=" + writeTestConfig(t, dir)
	out := filepath.Join(dir, "out")

	res := runCLI(t, "build", cfg, "--undivided", testDescription, out)
	require.Equal(t, 0, res.code, res.stderr)
	assert.NoFileExists(t, filepath.Join(out, unitFileName(2)))

	res = runCLI(t, "load", cfg, "--desc="+testDescription, filepath.Join(out, programFileName))
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "ok ")
}

func TestMiscCommands(t *testing.T) {
	res := runCLI(t, "version")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, Version)
	assert.Contains(t, res.stdout, snapshot.VersionTag)

	dir := t.TempDir()
	res = runCLI(t, "config", "--config="+writeTestConfig(t, dir), "--set=features.arch=riscv64")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "compress = true")
	assert.Contains(t, res.stdout, `arch = "riscv64"`)

	res = runCLI(t, "help", "build")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "--full")

	res = runCLI(t)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "commands:")

	res = runCLI(t, "frobnicate")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "unknown command")

	res = runCLI(t, "build", "only-one-arg")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "usage: build")

	res = runCLI(t, "info", filepath.Join(dir, "missing.snap"))
	assert.Equal(t, 1, res.code)
}
