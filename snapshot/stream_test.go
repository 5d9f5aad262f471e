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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dolthub/heapsnap/d"
)

func TestRefIDEncoding(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		id      int64
		encoded []byte
	}{
		{0, []byte{0x80}},
		{1, []byte{0x81}},
		{127, []byte{0xff}},
		{128, []byte{0x01, 0x80}},
		{300, []byte{0x02, 0xac}},
		{1 << 21, []byte{0x01, 0x00, 0x00, 0x80}},
	}
	for _, c := range cases {
		w := newBinaryStreamWriter()
		w.writeRefID(c.id)
		assert.Equal(c.encoded, w.data(), "id %d", c.id)

		r := binaryStreamReader{buff: w.data()}
		assert.Equal(c.id, r.readRefID())
		assert.Zero(r.remaining())
	}

	w := newBinaryStreamWriter()
	w.writeRefID(math.MaxInt64)
	r := binaryStreamReader{buff: w.data()}
	assert.Equal(int64(math.MaxInt64), r.readRefID())
}

func TestDeltaRefs(t *testing.T) {
	ids := []int64{5, 6, 7, 3, 1000, 999, 1}
	w := newBinaryStreamWriter()
	for _, id := range ids {
		w.writeDeltaRef(id)
	}
	w.resetDelta()
	w.writeDeltaRef(4)

	r := binaryStreamReader{buff: w.data()}
	for _, id := range ids {
		assert.Equal(t, id, r.readDeltaRef())
	}
	r.resetDelta()
	assert.Equal(t, int64(4), r.readDeltaRef())
	assert.Zero(t, r.remaining())
}

func TestScalars(t *testing.T) {
	assert := assert.New(t)

	w := newBinaryStreamWriter()
	w.writeUnsigned(1 << 40)
	w.writeSigned(-12345)
	w.writeUint32(0xBAADF00D)
	w.writeWord(0x0102030405060708)
	w.writeFloat(-2.5)
	w.writeBool(true)
	w.writeString("héllo")
	w.writeBytes([]byte{9, 8, 7})
	big := make([]byte, 3*initialBufferSize)
	w.writeRaw(big)

	r := binaryStreamReader{buff: w.data()}
	assert.Equal(uint64(1<<40), r.readUnsigned())
	assert.Equal(int64(-12345), r.readSigned())
	assert.Equal(uint32(0xBAADF00D), r.readUint32())
	assert.Equal(uint64(0x0102030405060708), r.readWord())
	assert.Equal(-2.5, r.readFloat())
	assert.True(r.readBool())
	assert.Equal("héllo", r.readString())
	assert.Equal([]byte{9, 8, 7}, r.readBytes())
	assert.Equal(big, r.readRaw(uint32(len(big))))
	assert.Zero(r.remaining())
}

func TestTruncatedReadIsRecoverable(t *testing.T) {
	w := newBinaryStreamWriter()
	w.writeString("truncate me")
	data := w.data()

	for _, read := range []func(r *binaryStreamReader){
		func(r *binaryStreamReader) { r.readString() },
		func(r *binaryStreamReader) { r.readWord() },
		func(r *binaryStreamReader) { r.readRaw(100) },
	} {
		r := &binaryStreamReader{buff: data[:4]}
		err := d.Try(func() { read(r) })
		assert.True(t, ErrTruncated.Is(err), "%v", err)
	}

	r := &binaryStreamReader{}
	err := d.Try(func() { r.readUnsigned() })
	assert.True(t, ErrTruncated.Is(err))
}
