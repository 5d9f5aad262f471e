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

package snapfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/heapsnap/heap"
	"github.com/dolthub/heapsnap/snapshot"
)

func testFile() *File {
	return &File{
		Kind:  snapshot.UnitKind,
		Unit:  3,
		ID:    uuid.New(),
		Data:  bytes.Repeat([]byte("stream"), 100),
		Image: bytes.Repeat([]byte{0xcc, 0x90}, 64),
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, compress := range []bool{false, true} {
		f := testFile()
		f.Parent = uuid.New()

		var buf bytes.Buffer
		require.NoError(t, f.Encode(&buf, compress))
		if compress {
			assert.Less(t, buf.Len(), headerSize+len(f.Data)+len(f.Image))
		} else {
			assert.Equal(t, headerSize+len(f.Data)+len(f.Image), buf.Len())
		}

		back, err := Decode(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, compress, back.Compressed)
		assert.Equal(t, f.Kind, back.Kind)
		assert.Equal(t, f.Unit, back.Unit)
		assert.Equal(t, f.ID, back.ID)
		assert.Equal(t, f.Parent, back.Parent)
		assert.Equal(t, f.Data, back.Data)
		assert.Equal(t, f.Image, back.Image)
	}
}

func TestDecodeErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testFile().Encode(&buf, false))
	good := buf.Bytes()

	_, err := Decode(good[:10])
	assert.True(t, snapshot.ErrTruncated.Is(err))

	_, err = Decode(good[:len(good)-1])
	assert.True(t, snapshot.ErrTruncated.Is(err))

	bad := append([]byte(nil), good...)
	bad[0] = 'X'
	_, err = Decode(bad)
	assert.True(t, snapshot.ErrBadMagic.Is(err))

	bad = append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xff
	_, err = Decode(bad)
	assert.True(t, ErrChecksum.Is(err))

	bad = append([]byte(nil), good...)
	bad[len(magic)] = FormatVersion + 1
	_, err = Decode(bad)
	assert.True(t, ErrFormat.Is(err))

	bad = append([]byte(nil), good...)
	bad[len(magic)+1] = 99
	_, err = Decode(bad)
	assert.True(t, snapshot.ErrBadMagic.Is(err))
}

func TestWriteOpenReadFile(t *testing.T) {
	dir := t.TempDir()
	for name, compress := range map[string]bool{"plain.snap": false, "packed.snap": true} {
		f := testFile()
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, f, compress))

		m, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, f.ID, m.ID)
		assert.Equal(t, f.Data, m.Data)
		assert.Equal(t, f.Image, m.Image)
		require.NoError(t, m.Close())

		r, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, f.Data, r.Data)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	empty := filepath.Join(dir, "empty.snap")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty)
	assert.True(t, snapshot.ErrTruncated.Is(err))

	_, err = Open(filepath.Join(dir, "missing.snap"))
	assert.Error(t, err)
}

func TestCheckParent(t *testing.T) {
	full := &File{Kind: snapshot.FullKind, ID: uuid.New()}
	prog := &File{Kind: snapshot.ProgramKind, ID: uuid.New(), Parent: full.ID}
	unit := &File{Kind: snapshot.UnitKind, ID: uuid.New(), Parent: prog.ID, Unit: 2}
	orphan := &File{Kind: snapshot.ProgramKind, ID: uuid.New()}

	assert.NoError(t, full.CheckParent(nil))
	assert.NoError(t, prog.CheckParent(full))
	assert.NoError(t, unit.CheckParent(prog))
	assert.NoError(t, orphan.CheckParent(nil))

	for _, err := range []error{
		prog.CheckParent(nil),
		unit.CheckParent(orphan),
		unit.CheckParent(full),
		full.CheckParent(prog),
	} {
		assert.True(t, snapshot.ErrParentMismatch.Is(err), "%v", err)
	}

	// A matching id over the wrong kind is still rejected.
	wrongKind := &File{Kind: snapshot.FullKind, ID: prog.ID}
	assert.True(t, snapshot.ErrParentMismatch.Is(unit.CheckParent(wrongKind)))
}

func TestSnapshotThroughFile(t *testing.T) {
	ctx := context.Background()
	src := heap.New()
	src.Store().Set(heap.GlobalsSlot, src.NewArray(src.Symbol("hello"), src.NewDouble(4.25)))
	opts := snapshot.DefaultOptions()

	snap, err := snapshot.Serialize(ctx, src, snapshot.ProgramRoots{}, opts)
	require.NoError(t, err)
	f := FromSnapshot(snap, 0, nil)
	assert.False(t, f.HasParent())

	path := filepath.Join(t.TempDir(), "program.snap")
	require.NoError(t, WriteFile(path, f, true))
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.CheckParent(nil))

	dst := heap.New()
	_, err = snapshot.Deserialize(ctx, dst, m.Data, m.Image, snapshot.ProgramRoots{}, opts)
	require.NoError(t, err)
	require.NoError(t, heap.Compare(src, []heap.Ref{src.Store().Get(heap.GlobalsSlot)}, dst, []heap.Ref{dst.Store().Get(heap.GlobalsSlot)}))
}
