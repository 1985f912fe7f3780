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

// Package sector holds the pure bookkeeping of the storage area store's
// sector state machine: which sector is current, how far into it the next
// write will land, and the 8-bit wrap counter. It performs no I/O of its
// own; the log engine (package sas) is responsible for turning a State
// transition into medium reads/writes (filling, erasing, writing a
// cookie).
package sector

// State is the mutable position of a mounted store within its sectors.
type State struct {
	// Current is the index of the sector currently being written to.
	Current int
	// Loc is the next write offset within Current, in bytes. Always a
	// multiple of the area's write_size.
	Loc int
	// Wrap is the 8-bit wrap counter: it increments every time Current
	// crosses back over sector 0.
	Wrap uint8
}

// Geometry is the immutable sector layout of a mounted store.
type Geometry struct {
	// SectorSize is the size of one sector, in bytes.
	SectorSize int
	// SectorCount is the number of sectors the store rotates through.
	SectorCount int
	// WriteSize is the area's write-alignment unit.
	WriteSize int
	// CookieSize is the length of the optional sector cookie, in bytes
	// (0 if unused).
	CookieSize int
}

// CookieAreaSize returns the write-size-aligned size of the cookie region
// at the start of every sector (0 if CookieSize is 0).
func (g Geometry) CookieAreaSize() int {
	if g.CookieSize == 0 {
		return 0
	}
	return alignUp(g.CookieSize, g.WriteSize)
}

// Offset returns the absolute byte offset of sector within the area.
func (g Geometry) Offset(sector int) int64 {
	return int64(sector) * int64(g.SectorSize)
}

// alignUp rounds n up to the next multiple of align (align must be a
// power of two).
func alignUp(n, align int) int {
	if align <= 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// AlignUp exposes alignUp to callers outside the package (the log engine
// uses the same rounding rule for record placement).
func AlignUp(n, align int) int { return alignUp(n, align) }

// Next returns the sector index that follows cur, and whether advancing to
// it crosses back over sector 0 (which bumps the wrap counter).
func (g Geometry) Next(cur int) (next int, wrapped bool) {
	next = cur + 1
	if next >= g.SectorCount {
		next = 0
		wrapped = true
	}
	return next, wrapped
}

// Advance computes the State that results from moving to the next sector,
// past its cookie region. It does not perform any I/O: the caller is
// responsible for filling the remainder of the old sector, erasing the
// new one if required, and writing its cookie.
func (g Geometry) Advance(s State) State {
	next, wrapped := g.Next(s.Current)
	wrap := s.Wrap
	if wrapped {
		wrap++
	}
	return State{
		Current: next,
		Loc:     g.CookieAreaSize(),
		Wrap:    wrap,
	}
}

// WrapOf returns the wrap value a record in the given sector is expected
// to carry, given the current write head (cur, wrap): sectors physically
// ahead of the write head (sector index > cur) belong to the *previous*
// pass, so their expected wrap is one less than the current wrap; at or
// behind the write head, records belong to the current pass.
func (g Geometry) WrapOf(sector, cur int, wrap uint8) uint8 {
	if sector > cur {
		return wrap - 1
	}
	return wrap
}
