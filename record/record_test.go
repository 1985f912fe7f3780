// Copyright 2021 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{Magic: Magic, Wrap: 3, Len: 5}
	buf, err := EncodeHeader(h)
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize)

	// offset 0 is magic, offset 1 is wrap, offset 2..3 is len (LE).
	assert.Equal(t, byte(0xF0), buf[0])
	assert.Equal(t, byte(3), buf[1])
	assert.Equal(t, byte(5), buf[2])
	assert.Equal(t, byte(0), buf[3])

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := DecodeHeader([]byte{0xF0, 0x01})
	assert.Equal(t, ErrShortHeader, err)
}

func TestTrailerRoundTrip(t *testing.T) {
	buf := EncodeTrailer(0xDEADBEEF)
	require.Len(t, buf, TrailerSize)
	got, err := DecodeTrailer(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), got)
}

func TestFrameLayout(t *testing.T) {
	data := []byte("hello")
	framed, err := Frame(0, data, 0)
	require.NoError(t, err)
	require.Len(t, framed, FramedLen(len(data)))

	hdr, err := DecodeHeader(framed)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), hdr.Magic)
	assert.Equal(t, uint16(len(data)), hdr.Len)

	body := framed[HeaderSize : HeaderSize+len(data)]
	assert.Equal(t, data, body)

	trailer, err := DecodeTrailer(framed[HeaderSize+len(data):])
	require.NoError(t, err)
	assert.True(t, ValidateCRC(data, 0, trailer))
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	_, err := Frame(0, make([]byte, MaxDataLen+1), 0)
	assert.Equal(t, ErrTooLarge, err)
}

func TestFrameRejectsEmptyPayload(t *testing.T) {
	_, err := Frame(0, nil, 0)
	assert.Equal(t, ErrTooLarge, err)
}

func TestCRCSkipPreservesValidityAfterPrefixOverwrite(t *testing.T) {
	data := []byte{0xFF, 0xAA, 0xBB, 0xCC}
	crc := CRC(data, 1)

	// Overwrite the first (skipped) byte; CRC must still validate because
	// it only ever covered data[1:].
	mutated := []byte{0x00, 0xAA, 0xBB, 0xCC}
	assert.True(t, ValidateCRC(mutated, 1, crc))

	// But validating against the full buffer (skip=0) must fail, since the
	// byte changed.
	assert.False(t, ValidateCRC(mutated, 0, crc))
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want int }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{17, 4, 20},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AlignUp(c.n, c.align))
	}
}
