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

package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/heapsnap/heap"
)

func TestWriteReadInstructions(t *testing.T) {
	assert := assert.New(t)

	plan := NewLayout()
	planned := []uint64{plan.Place(3), plan.Place(20), plan.Place(0)}

	w := NewWriter()
	blobs := [][]byte{{1, 2, 3}, make([]byte, 20), {}}
	for i, b := range blobs {
		off := w.EmitInstructions(b, heap.Null)
		assert.Equal(planned[i], off)
		assert.Zero(off % InstructionsAlignment)
	}
	assert.Equal(3, w.NumInstructions())

	entries := []TableEntry{{Start: planned[0], Length: 3, StackMaps: 7}, {Start: planned[1], Length: 20}}
	require.NoError(t, w.WriteTable(plan.TableOffset(), entries))

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	for i, b := range blobs {
		in, err := r.InstructionsAt(planned[i])
		require.NoError(t, err)
		assert.Equal(b, in.Bytes)
		assert.Equal(planned[i], in.Offset)
	}
	got, err := r.Table(plan.TableOffset(), len(entries))
	require.NoError(t, err)
	assert.Equal(entries, got)
}

func TestWriteTableAtWrongOffset(t *testing.T) {
	w := NewWriter()
	w.EmitInstructions([]byte{1}, heap.Null)
	assert.Error(t, w.WriteTable(HeaderSize, nil))
}

func TestReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrBadMagic)

	data := NewWriter().Bytes()
	data[4] = 9
	_, err = NewReader(data)
	assert.ErrorIs(t, err, ErrBadVersion)

	r, err := NewReader(nil)
	require.NoError(t, err)
	_, err = r.InstructionsAt(HeaderSize)
	assert.ErrorIs(t, err, ErrOutOfRange)

	w := NewWriter()
	off := w.EmitInstructions([]byte{1, 2}, heap.Null)
	r, err = NewReader(w.Bytes()[:off+5])
	require.NoError(t, err)
	_, err = r.InstructionsAt(off)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.Table(off, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
