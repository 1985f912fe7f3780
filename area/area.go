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

// Package area implements the storage-area abstraction: a uniform,
// byte-addressed view over a block-addressed medium (NOR flash, EEPROM,
// RAM, disk) with write-alignment and erase constraints. It performs
// gather/scatter I/O while respecting write alignment, and is the sole
// thing a storage area store (package sas) talks to.
package area

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Props is a bitfield describing the behavior of the underlying medium.
type Props uint8

const (
	// ReadOnly forbids Write and Erase.
	ReadOnly Props = 1 << iota
	// FullOverwrite means any bit pattern may replace any other (RAM,
	// EEPROM): no erase-before-write is required.
	FullOverwrite
	// LimitedOverwrite means bits may only flip 1->0 (NOR flash): a
	// region must be erased before it can be rewritten to anything other
	// than a subset of its current bits.
	LimitedOverwrite
	// ZeroErase means the erased value of a byte is 0x00 rather than
	// the default 0xFF.
	ZeroErase
	// AutoErase means the medium itself erases implicitly on write, so
	// the area never needs to issue an explicit Erase.
	AutoErase
)

// Has reports whether all of want is set in p.
func (p Props) Has(want Props) bool { return p&want == want }

// ErasedByte returns the byte value read back from a never-written (or
// freshly erased) region of the medium.
func (p Props) ErasedByte() byte {
	if p.Has(ZeroErase) {
		return 0x00
	}
	return 0xFF
}

// IoctlCmd identifies an out-of-band area operation.
type IoctlCmd int

const (
	// XipAddress requests the CPU-mapped base address of the area, for
	// media that support execute-in-place.
	XipAddress IoctlCmd = iota
)

// Medium is the minimal behavior table a device driver must implement:
// byte-addressed, unaligned-capable reads, and write-size-aligned,
// write-size-multiple writes. It deliberately mirrors the stdlib
// io.ReaderAt/io.WriterAt shape so that *os.File and similar already
// satisfy it; erase and ioctl support are the optional Eraser and Ioctler
// interfaces.
type Medium interface {
	io.ReaderAt
	io.WriterAt
}

// Eraser is implemented by media that require an explicit erase before a
// region may be rewritten (NOR flash). block/count are in erase-block
// units.
type Eraser interface {
	Erase(block, count int) error
}

// Ioctler is implemented by media that support out-of-band queries.
type Ioctler interface {
	Ioctl(cmd IoctlCmd, data interface{}) (interface{}, error)
}

// Config describes the immutable geometry and behavior of a storage area.
type Config struct {
	Medium Medium

	// WriteSize is the smallest unit of a medium write, in bytes. Must
	// be a power of two.
	WriteSize int
	// EraseSize is the size of one erase block, in bytes. Must be a
	// multiple of WriteSize.
	EraseSize int
	// EraseBlocks is the number of erase blocks backing the area. The
	// total area size is EraseSize * EraseBlocks.
	EraseBlocks int

	Props Props

	// Verify, if true, asks New to cross-check the declared geometry
	// against whatever the driver can tell us about itself (see
	// verify.go). It is a no-op for drivers that don't implement
	// GeometryVerifier.
	Verify bool
}

// Area is an immutable, byte-addressed view over a Medium. It is created
// once from a Config and is safe for concurrent readers; concurrent
// writers must be serialized by the caller (the sas package's
// concurrency gate does this for the log engine).
type Area struct {
	medium      Medium
	eraser      Eraser
	ioctler     Ioctler
	writeSize   int
	eraseSize   int
	eraseBlocks int
	props       Props
}

// NewArea validates cfg and returns a ready-to-use Area.
func NewArea(cfg Config) (*Area, error) {
	if cfg.Medium == nil {
		return nil, New(InvalidConfig, "area: medium is nil")
	}
	if cfg.WriteSize <= 0 || cfg.WriteSize&(cfg.WriteSize-1) != 0 {
		return nil, Newf(InvalidConfig, "area: write_size %d is not a power of two", cfg.WriteSize)
	}
	if cfg.EraseSize <= 0 || cfg.EraseSize%cfg.WriteSize != 0 {
		return nil, Newf(InvalidConfig, "area: erase_size %d is not a multiple of write_size %d",
			cfg.EraseSize, cfg.WriteSize)
	}
	if cfg.EraseBlocks <= 0 {
		return nil, Newf(InvalidConfig, "area: erase_blocks must be positive, got %d", cfg.EraseBlocks)
	}

	a := &Area{
		medium:      cfg.Medium,
		writeSize:   cfg.WriteSize,
		eraseSize:   cfg.EraseSize,
		eraseBlocks: cfg.EraseBlocks,
		props:       cfg.Props,
	}
	if e, ok := cfg.Medium.(Eraser); ok {
		a.eraser = e
	}
	if i, ok := cfg.Medium.(Ioctler); ok {
		a.ioctler = i
	}

	if cfg.Verify {
		if err := verifyGeometry(cfg); err != nil {
			return nil, err
		}
	}

	log.Debugf("area: mounted region of %d bytes (write_size=%d erase_size=%d erase_blocks=%d props=%#x)",
		a.Size(), a.writeSize, a.eraseSize, a.eraseBlocks, a.props)

	return a, nil
}

// Size returns the total addressable size of the area in bytes.
func (a *Area) Size() int64 { return int64(a.eraseSize) * int64(a.eraseBlocks) }

// WriteSize returns the medium's write-alignment unit.
func (a *Area) WriteSize() int { return a.writeSize }

// EraseSize returns the size of one erase block.
func (a *Area) EraseSize() int { return a.eraseSize }

// EraseBlocks returns the number of erase blocks in the area.
func (a *Area) EraseBlocks() int { return a.eraseBlocks }

// Props returns the area's property bitfield.
func (a *Area) Props() Props { return a.props }

func iovLen(iov [][]byte) int64 {
	var n int64
	for _, b := range iov {
		n += int64(len(b))
	}
	return n
}

func (a *Area) checkRange(off, length int64) error {
	if off < 0 || length < 0 || off+length > a.Size() {
		return Newf(InvalidRange, "area: range [%d, %d) escapes area of size %d", off, off+length, a.Size())
	}
	return nil
}

// Read gathers len(iov) buffers worth of data starting at off, in order.
// Unlike Write, Read has no alignment requirement.
func (a *Area) Read(off int64, iov [][]byte) error {
	if err := a.checkRange(off, iovLen(iov)); err != nil {
		return err
	}
	return a.gatherRead(off, iov)
}

// Write writes len(iov) buffers worth of data starting at off, in order.
// The aggregate length must be a multiple of WriteSize(), and off must
// also be a multiple of WriteSize(); either violation is rejected with
// InvalidArgument.
//
// Write assumes the destination is already erased/writable; callers on
// limited-overwrite media that have not pre-erased should use
// WriteAutoErase instead.
func (a *Area) Write(off int64, iov [][]byte) error {
	if a.props.Has(ReadOnly) {
		return New(ReadOnly, "area: write on read-only area")
	}
	total := iovLen(iov)
	if total%int64(a.writeSize) != 0 {
		return Newf(InvalidArgument, "area: write length %d is not a multiple of write_size %d",
			total, a.writeSize)
	}
	if off%int64(a.writeSize) != 0 {
		return Newf(InvalidArgument, "area: write offset %d is not write_size-aligned", off)
	}
	if err := a.checkRange(off, total); err != nil {
		return err
	}
	return a.gatherWrite(off, iov)
}

// Erase erases count erase-blocks starting at block. Only meaningful for
// media that require an explicit erase; returns NotSupported otherwise.
func (a *Area) Erase(block, count int) error {
	if a.props.Has(ReadOnly) {
		return New(ReadOnly, "area: erase on read-only area")
	}
	if a.eraser == nil {
		return New(NotSupported, "area: medium does not support erase")
	}
	if block < 0 || count < 0 || block+count > a.eraseBlocks {
		return Newf(InvalidRange, "area: erase block range [%d, %d) escapes %d erase blocks",
			block, block+count, a.eraseBlocks)
	}
	if err := a.eraser.Erase(block, count); err != nil {
		return Wrap(IoError, err, "area: erase failed")
	}
	return nil
}

// Ioctl issues an out-of-band command to the underlying medium.
func (a *Area) Ioctl(cmd IoctlCmd, data interface{}) (interface{}, error) {
	if a.ioctler == nil {
		return nil, New(NotSupported, "area: medium does not support ioctl")
	}
	return a.ioctler.Ioctl(cmd, data)
}
