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
package iohelp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	err := WriteIfNoErr(&buf, []byte("hs"), nil)
	err = WritePrimIfNoErr(&buf, uint8(7), err)
	err = WritePrimIfNoErr(&buf, uint32(0xdeadbeef), err)
	err = WritePrimIfNoErr(&buf, uint64(1)<<40, err)
	require.NoError(t, err)

	rd := NewErrPreservingReader(&buf)
	prefix := make([]byte, 2)
	_, _ = rd.Read(prefix)
	u8, _ := rd.ReadUint8()
	u32, _ := rd.ReadUint32(binary.BigEndian)
	u64, err := rd.ReadUint64(binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, "hs", string(prefix))
	assert.Equal(t, uint8(7), u8)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	assert.Equal(t, uint64(1)<<40, u64)

	// The first failure sticks.
	_, err = rd.ReadUint8()
	assert.Equal(t, io.EOF, err)
	_, err = rd.ReadUint64(binary.BigEndian)
	assert.Equal(t, io.EOF, err)
}

func TestWriteStopsAtFirstError(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	err := WriteIfNoErr(&buf, []byte("x"), boom)
	err = WritePrimIfNoErr(&buf, uint32(1), err)
	assert.Equal(t, boom, err)
	assert.Zero(t, buf.Len())
}
