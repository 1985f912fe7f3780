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

// Package sas implements the storage area store: a persistent,
// crash-tolerant, append-only record log built on top of package area. It
// has three behavioral modes (read-only, simple circular buffer,
// persistent circular buffer), and implements mount-time scan, wrap
// detection, compaction, and power-loss recovery.
package sas

import (
	"github.com/mendersoftware/sas/area"
	"github.com/mendersoftware/sas/sector"
)

// Mode selects one of the three behavioral variants of spec §4.6.
type Mode int

const (
	// ModeReadOnly performs a mount-time scan only; Writev/Advance
	// return NotSupported.
	ModeReadOnly Mode = iota
	// ModeSimple overwrites the oldest sector on wrap (spec: "Simple
	// circular buffer").
	ModeSimple
	// ModePersistent compacts live records forward instead of
	// discarding them on wrap (spec: "Persistent circular buffer").
	ModePersistent
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "read-only"
	case ModeSimple:
		return "simple-circular-buffer"
	case ModePersistent:
		return "persistent-circular-buffer"
	default:
		return "unknown"
	}
}

// MoveFunc decides, during compaction, whether a record still in use
// should be carried forward (true) or dropped (false). Required for
// ModePersistent.
type MoveFunc func(h RecordHandle) (bool, error)

// MoveCallback is invoked after a record has been successfully re-appended
// during compaction, so the caller can update any external index that
// points at orig.
type MoveCallback func(orig, dest RecordHandle)

// Config describes one storage area store: its backing area, its
// behavioral mode, and its sector geometry. Config is immutable once
// passed to NewStore.
type Config struct {
	Area *area.Area
	Mode Mode

	// Cookie, if non-empty, is copied to the start of every newly
	// advanced-into sector.
	Cookie []byte

	// SectorSize must be a multiple of the area's write size, and
	// either a divisor or a multiple of the area's erase size.
	SectorSize int
	// SectorCount is the number of sectors the store rotates through;
	// SectorCount*SectorSize must not exceed the area's size.
	SectorCount int
	// SpareSectors is the number of sectors kept ahead of the
	// compaction frontier in ModePersistent; see spec §4.3 "Compact".
	SpareSectors int
	// CRCSkip is the number of leading data bytes excluded from a
	// record's CRC, so they can later be overwritten to invalidate the
	// record without breaking its CRC.
	CRCSkip int

	// Move is required in ModePersistent; it decides which records
	// compaction should carry forward.
	Move MoveFunc
	// MoveCB is optional, invoked after each successful compaction
	// move.
	MoveCB MoveCallback
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func (c Config) validate() error {
	if c.Area == nil {
		return area.New(area.InvalidConfig, "sas: area is nil")
	}
	w := c.Area.WriteSize()
	if c.SectorSize <= 0 || c.SectorSize%w != 0 {
		return area.Newf(area.InvalidConfig,
			"sas: sector_size %d is not a multiple of the area's write_size %d", c.SectorSize, w)
	}
	e := c.Area.EraseSize()
	if c.SectorSize%e != 0 && e%c.SectorSize != 0 {
		return area.Newf(area.InvalidConfig,
			"sas: sector_size %d must be a divisor or multiple of the area's erase_size %d", c.SectorSize, e)
	}
	if c.SectorCount <= 0 {
		return area.New(area.InvalidConfig, "sas: sector_count must be positive")
	}
	total := int64(c.SectorSize) * int64(c.SectorCount)
	if total > c.Area.Size() {
		return area.Newf(area.InvalidConfig,
			"sas: sector_size*sector_count (%d) exceeds area size (%d)", total, c.Area.Size())
	}
	if c.SpareSectors < 0 {
		return area.New(area.InvalidConfig, "sas: spare_sectors must not be negative")
	}
	if len(c.Cookie) > c.SectorSize {
		return area.New(area.InvalidConfig, "sas: cookie does not fit in one sector")
	}
	if c.CRCSkip < 0 {
		return area.New(area.InvalidConfig, "sas: crc_skip must not be negative")
	}
	if c.Mode == ModePersistent {
		if c.Move == nil {
			return area.New(area.InvalidConfig, "sas: persistent mode requires a Move callback")
		}
		minSpare := ceilDiv(e, c.SectorSize)
		if c.SpareSectors < minSpare {
			return area.Newf(area.InvalidConfig,
				"sas: spare_sectors %d is below the minimum %d (ceil(erase_size/sector_size))",
				c.SpareSectors, minSpare)
		}
		if int64(c.SpareSectors)*int64(c.SectorSize) < int64(e) {
			return area.Newf(area.InvalidConfig,
				"sas: spare_sectors*sector_size (%d) must be >= erase_size (%d) when Move is set",
				int64(c.SpareSectors)*int64(c.SectorSize), e)
		}
	}
	return nil
}

func (c Config) geometry() sector.Geometry {
	return sector.Geometry{
		SectorSize:  c.SectorSize,
		SectorCount: c.SectorCount,
		WriteSize:   c.Area.WriteSize(),
		CookieSize:  len(c.Cookie),
	}
}
