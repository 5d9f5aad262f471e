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

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeDispatch(indexes []int) []byte {
	w := newBinaryStreamWriter()
	w.writeUnsigned(uint64(len(indexes)))
	enc := newDispatchEncoder(&w)
	for _, i := range indexes {
		enc.add(i)
	}
	enc.flush()
	return w.data()
}

func TestDispatchEncoding(t *testing.T) {
	indexes := []int{1, 1, 1, 0, 0, 2, 1, 2, 3}
	for i := 0; i < 70; i++ {
		indexes = append(indexes, 3)
	}
	data := encodeDispatch(indexes)

	r := binaryStreamReader{buff: data}
	require.Equal(t, uint64(len(indexes)), r.readUnsigned())
	var raw []int64
	for r.remaining() > 0 {
		raw = append(raw, r.readSigned())
	}
	assert.Equal(t, []int64{65, 2, 0, 1, 66, -1, -2, 67, 63, 7}, raw)

	r = binaryStreamReader{buff: data}
	assert.Equal(t, indexes, readDispatchIndexes(&r))
	assert.Zero(t, r.remaining())
}

func TestDispatchRecentRingWraps(t *testing.T) {
	var indexes []int
	for i := 1; i <= numRecentCodes+10; i++ {
		indexes = append(indexes, i)
	}
	// 5 has been pushed out of the ring by now, 70 has not.
	indexes = append(indexes, 5, 70, 0)

	data := encodeDispatch(indexes)
	r := binaryStreamReader{buff: data}
	assert.Equal(t, indexes, readDispatchIndexes(&r))
}

func TestDispatchEmptyTable(t *testing.T) {
	data := encodeDispatch(nil)
	r := binaryStreamReader{buff: data}
	assert.Empty(t, readDispatchIndexes(&r))
}

func TestCorruptDispatchTable(t *testing.T) {
	for name, values := range map[string][]int64{
		"repeat first": {3},
		"empty slot":   {^int64(4)},
		"overlong":     {65, 5},
		"reserved":     {64},
	} {
		t.Run(name, func(t *testing.T) {
			w := newBinaryStreamWriter()
			w.writeUnsigned(3)
			for _, v := range values {
				w.writeSigned(v)
			}
			r := binaryStreamReader{buff: w.data()}
			assert.Panics(t, func() { readDispatchIndexes(&r) })
		})
	}
}
