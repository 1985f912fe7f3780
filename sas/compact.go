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

package sas

import (
	log "github.com/sirupsen/logrus"

	"github.com/mendersoftware/sas/area"
)

// compactAfterAdvance is the ModePersistent onWrap hook (spec §4.3
// "Compact"). It runs once advanceLocked has already moved the write head
// into sec, and only does anything when sec starts a fresh erase block:
// that's the moment the ⌈E/S⌉ sectors starting spare_sectors+1 sectors
// ahead of sec (with spare_sectors sectors between) will be erased by a future
// advance, so every record there that the caller's Move callback wants
// kept must be relocated now, re-framed with the current wrap counter.
func (s *Store) compactAfterAdvance(sec int) error {
	if s.cfg.Move == nil {
		return area.New(area.InvalidConfig, "sas: persistent mode requires a Move callback")
	}
	if !s.sectorStartsEraseBlock(sec) {
		return nil
	}

	sectorsPerBlock := ceilDiv(s.cfg.Area.EraseSize(), s.cfg.SectorSize)
	target := sec
	for i := 0; i <= s.cfg.SpareSectors; i++ {
		target, _ = s.geom.Next(target)
	}

	for i := 0; i < sectorsPerBlock; i++ {
		if err := s.compactOneSector(target); err != nil {
			return err
		}
		target, _ = s.geom.Next(target)
	}
	return nil
}

// compactOneSector walks sec front to back and, for each live record the
// Move callback wants kept, relocates it to the current write head.
func (s *Store) compactOneSector(sec int) error {
	moved := 0
	err := s.scanSectorForward(sec, func(h RecordHandle) (bool, error) {
		keep, err := s.cfg.Move(h)
		if err != nil {
			return false, area.Wrap(area.IoError, err, "sas: move callback failed")
		}
		if keep {
			data := make([]byte, h.Size)
			if _, err := h.Read(data); err != nil {
				return false, err
			}
			dest, err := s.relocateLocked(data)
			if err != nil {
				return false, err
			}
			if s.cfg.MoveCB != nil {
				s.cfg.MoveCB(h, dest)
			}
			moved++
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"sector": sec, "moved": moved}).Debug("sas: compacted sector before reuse")
	return nil
}

// relocateLocked re-appends data at the current write head, advancing into
// a fresh sector and retrying if the current one is already full. Unlike
// appendLocked's callers in Writev, compaction cannot simply surface
// NoSpace to the caller: the record it's relocating must land somewhere or
// it is lost when the source sector is later erased.
func (s *Store) relocateLocked(data []byte) (RecordHandle, error) {
	for {
		h, err := s.appendLocked(data)
		if err == nil {
			return h, nil
		}
		if !area.Is(err, area.NoSpace) {
			return RecordHandle{}, err
		}
		if err := s.advanceLocked(); err != nil {
			return RecordHandle{}, err
		}
	}
}
