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

// Package record implements the on-medium record framing used by the
// storage area store: a small fixed header, the caller's payload, and a
// CRC32 trailer.
package record

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"
)

// Magic identifies the start of a record.
const Magic = 0xF0

// HeaderSize is the size in bytes of the on-medium header.
const HeaderSize = 4

// TrailerSize is the size in bytes of the CRC32 trailer.
const TrailerSize = 4

// MaxDataLen is the largest payload a single record may carry; len is
// encoded as a uint16.
const MaxDataLen = 65535

var defaultEncoding = binary.LittleEndian

var (
	// ErrTooLarge is returned when the payload exceeds MaxDataLen.
	ErrTooLarge = errors.New("record: payload exceeds maximum record length")
	// ErrShortHeader is returned when a buffer is too small to hold a header.
	ErrShortHeader = errors.New("record: buffer too small for header")
	// ErrShortTrailer is returned when a buffer is too small to hold a trailer.
	ErrShortTrailer = errors.New("record: buffer too small for trailer")
)

// Header is the on-medium record header, little-endian, packed with
// restruct so that its wire layout never drifts from its Go layout.
type Header struct {
	Magic byte
	Wrap  byte
	Len   uint16
}

// EncodeHeader packs a Header into its wire representation.
func EncodeHeader(h Header) ([]byte, error) {
	buf, err := restruct.Pack(defaultEncoding, &h)
	if err != nil {
		return nil, errors.Wrap(err, "record: failed to pack header")
	}
	return buf, nil
}

// DecodeHeader unpacks a Header from its wire representation.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, ErrShortHeader
	}
	if err := restruct.Unpack(buf[:HeaderSize], defaultEncoding, &h); err != nil {
		return h, errors.Wrap(err, "record: failed to unpack header")
	}
	return h, nil
}

// EncodeTrailer packs a CRC32 trailer into its wire representation.
func EncodeTrailer(crc uint32) []byte {
	buf := make([]byte, TrailerSize)
	defaultEncoding.PutUint32(buf, crc)
	return buf
}

// DecodeTrailer unpacks a CRC32 trailer from its wire representation.
func DecodeTrailer(buf []byte) (uint32, error) {
	if len(buf) < TrailerSize {
		return 0, ErrShortTrailer
	}
	return defaultEncoding.Uint32(buf[:TrailerSize]), nil
}

// FramedLen returns the number of bytes a record with the given payload
// length occupies before write-alignment: 4 header bytes, the payload,
// and 4 CRC bytes.
func FramedLen(dataLen int) int {
	return HeaderSize + dataLen + TrailerSize
}

// AlignUp rounds n up to the next multiple of align (align must be a power
// of two).
func AlignUp(n, align int) int {
	if align <= 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// PadTo extends buf with fill bytes up to the next multiple of align,
// leaving buf itself untouched. The log engine uses this to round a framed
// record up to the medium's write_size before it ever reaches Area.Write,
// since the area only accepts write_size-multiple transfers.
func PadTo(buf []byte, align int, fill byte) []byte {
	total := AlignUp(len(buf), align)
	if total == len(buf) {
		return buf
	}
	out := make([]byte, total)
	copy(out, buf)
	for i := len(buf); i < total; i++ {
		out[i] = fill
	}
	return out
}

// Frame builds the complete on-medium bytes for a record: header + data +
// CRC, where Frame computes the CRC over data[skip:] itself (the crcSkip
// bytes are not covered so they can later be overwritten to invalidate the
// record without disturbing the CRC).
func Frame(wrap byte, data []byte, skip int) ([]byte, error) {
	if len(data) == 0 || len(data) > MaxDataLen {
		return nil, ErrTooLarge
	}

	hdr, err := EncodeHeader(Header{Magic: Magic, Wrap: wrap, Len: uint16(len(data))})
	if err != nil {
		return nil, err
	}

	crc := CRC(data, skip)

	out := make([]byte, 0, FramedLen(len(data)))
	out = append(out, hdr...)
	out = append(out, data...)
	out = append(out, EncodeTrailer(crc)...)
	return out, nil
}
