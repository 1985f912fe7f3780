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
	"bytes"

	log "github.com/sirupsen/logrus"

	"github.com/mendersoftware/sas/area"
	"github.com/mendersoftware/sas/record"
	"github.com/mendersoftware/sas/sector"
)

// Mount performs the basic scan of spec §4.5: it locates the sector
// currently being written to, its wrap counter, and the offset of the
// write head within it, then runs any mode-specific recovery. Mount must
// be called before Writev, RecordNext, or Advance; it is itself gated, so
// it is safe to call concurrently with nothing else happening.
func (s *Store) Mount() error {
	return s.gate.With(func() error {
		if s.ready {
			return area.New(area.AlreadyMounted, "sas: store is already mounted")
		}

		found, head, loc, wrap, err := s.basicScan()
		if err != nil {
			return err
		}

		if !found {
			log.Debug("sas: no existing records found, seeding empty store")
			if err := s.ops.seedEmpty(s); err != nil {
				return err
			}
		} else {
			s.state = sector.State{Current: head, Loc: loc, Wrap: wrap}
		}

		if s.ops.mountExtra != nil {
			if err := s.ops.mountExtra(s); err != nil {
				return err
			}
		}

		s.ready = true
		log.WithFields(log.Fields{
			"sector": s.state.Current,
			"loc":    s.state.Loc,
			"wrap":   s.state.Wrap,
		}).Info("sas: store mounted")
		return nil
	})
}

// Unmount marks the store as no longer ready for operations. It performs
// no I/O: there is nothing in this design that must be flushed, since
// every write is already durable when Writev/Advance return.
func (s *Store) Unmount() error {
	return s.gate.With(func() error {
		if err := s.requireReady(); err != nil {
			return err
		}
		s.ready = false
		log.Debug("sas: store unmounted")
		return nil
	})
}

// Wipe discards every record in the store by clearing all sectors, then
// re-seeds a clean empty state the same way an empty Mount would.
func (s *Store) Wipe() error {
	return s.gate.With(func() error {
		if err := s.requireReady(); err != nil {
			return err
		}

		a := s.cfg.Area
		if a.Props().Has(area.FullOverwrite) {
			fill := bytes.Repeat([]byte{a.Props().ErasedByte()}, s.cfg.SectorSize)
			for sec := 0; sec < s.cfg.SectorCount; sec++ {
				if err := a.Write(s.sectorOffset(sec), [][]byte{fill}); err != nil {
					return area.Wrap(area.IoError, err, "sas: failed to wipe sector")
				}
			}
		} else if err := a.Erase(0, a.EraseBlocks()); err != nil {
			return area.Wrap(area.IoError, err, "sas: failed to erase area")
		}

		if err := s.ops.seedEmpty(s); err != nil {
			return err
		}
		log.Warn("sas: store wiped")
		return nil
	})
}

// basicScan implements spec §4.5's "basic scan": it walks the sectors in
// order, looking only at the very first record position of each. The wrap
// carried by the first record found anywhere establishes w; every sector
// after that must carry the same wrap (an equality check, never a
// magnitude comparison, so this keeps working across the 8-bit wrap
// counter's rollover from 255 back to 0). The first sector that doesn't
// match -- wrong wrap, or nothing there at all -- means the previous
// sector is the current write head; its records are then re-scanned
// permissively to find the exact end-of-log offset.
func (s *Store) basicScan() (found bool, head, loc int, wrap uint8, err error) {
	wrapSet := false
	head = -1

	for sec := 0; sec < s.cfg.SectorCount; sec++ {
		w, ok, rerr := s.firstRecordStrict(sec)
		if rerr != nil {
			return false, 0, 0, 0, rerr
		}
		if !ok {
			if wrapSet {
				break
			}
			continue
		}
		if !wrapSet {
			wrap = w
			wrapSet = true
			head = sec
			continue
		}
		if w != wrap {
			break
		}
		head = sec
	}

	if !wrapSet {
		return false, 0, 0, 0, nil
	}

	loc, err = s.lastRecordLoc(head, wrap)
	if err != nil {
		return false, 0, 0, 0, err
	}
	return true, head, loc, wrap, nil
}

// firstRecordStrict checks whether sec's very first record slot (right
// after its cookie region) holds a fully valid record -- magic, length
// bounds, and CRC all passing -- and if so reports the wrap it carries.
// The expected wrap isn't known yet at this point in the scan, so unlike
// readCandidate this doesn't filter on one.
func (s *Store) firstRecordStrict(sec int) (wrap byte, ok bool, err error) {
	loc := s.geom.CookieAreaSize()
	if loc+recordOverhead > s.cfg.SectorSize {
		return 0, false, nil
	}
	hdr, err := s.readHeaderLocked(sec, loc)
	if err != nil {
		return 0, false, err
	}
	if hdr.Magic != record.Magic {
		return 0, false, nil
	}
	if int(hdr.Len) <= 0 || int(hdr.Len) > s.cfg.SectorSize-loc-recordOverhead {
		return 0, false, nil
	}
	h := RecordHandle{store: s, Sector: sec, Loc: loc, Size: int(hdr.Len)}
	valid, verr := h.Validate()
	if verr != nil {
		return 0, false, verr
	}
	if !valid {
		return 0, false, nil
	}
	return hdr.Wrap, true, nil
}

// lastRecordLoc re-scans sec permissively (spec's "recover" mode): rather
// than stopping at the first bad candidate, it steps forward one
// write_size at a time to resynchronize past a partial write or stale
// debris, and returns the offset just past the last fully valid record
// carrying wrap it found.
func (s *Store) lastRecordLoc(sec int, wrap byte) (int, error) {
	w := s.cfg.Area.WriteSize()
	loc := s.geom.CookieAreaSize()
	last := loc

	for loc+recordOverhead <= s.cfg.SectorSize {
		hdr, err := s.readHeaderLocked(sec, loc)
		if err != nil {
			return 0, err
		}
		if hdr.Magic == record.Magic && hdr.Wrap == wrap &&
			int(hdr.Len) > 0 && int(hdr.Len) <= s.cfg.SectorSize-loc-recordOverhead {
			h := RecordHandle{store: s, Sector: sec, Loc: loc, Size: int(hdr.Len)}
			valid, verr := h.Validate()
			if verr != nil {
				return 0, verr
			}
			if valid {
				loc += record.AlignUp(record.FramedLen(h.Size), w)
				last = loc
				continue
			}
		}
		loc += w
	}
	return last, nil
}

// prevSector returns the sector preceding sec, wrapping around past 0.
func (s *Store) prevSector(sec int) int {
	if sec == 0 {
		return s.cfg.SectorCount - 1
	}
	return sec - 1
}

// recoverPCB is the ModePersistent mount-time recovery step (spec §4.5
// "PCB recovery"). A compaction interrupted mid-way leaves some records
// relocated and others not. It reverses to the start of the current erase
// block and one sector further (rscnt sectors), looks ahead
// spare_sectors+1 sectors into the block compaction was relocating out of
// and counts the records Move would keep there (mrcnt); if none would be
// kept there was nothing in flight and recovery is a no-op. Otherwise it
// strictly counts the valid records in the rscnt sectors ending at the
// write head (vrcnt) and re-runs compactAfterAdvance for the current
// sector. The comparison of vrcnt with mrcnt selects only which warning
// is logged: both outcomes run the same compaction, which starts over
// from the first record of each source sector rather than resuming where
// the interrupted run stopped.
func (s *Store) recoverPCB() error {
	if s.cfg.Move == nil {
		return nil
	}

	c := s.state.Current
	rscnt := 0
	sec := c
	for {
		rscnt++
		if s.sectorStartsEraseBlock(sec) {
			break
		}
		sec = s.prevSector(sec)
	}
	sec = s.prevSector(sec)
	rscnt++

	lookStart := c
	for i := 0; i <= s.cfg.SpareSectors; i++ {
		lookStart, _ = s.geom.Next(lookStart)
	}
	sectorsPerBlock := ceilDiv(s.cfg.Area.EraseSize(), s.cfg.SectorSize)

	mrcnt, err := s.countMoveKept(lookStart, sectorsPerBlock)
	if err != nil {
		return err
	}
	if mrcnt == 0 {
		return nil
	}

	vrcnt, err := s.countValidStrict(sec, rscnt)
	if err != nil {
		return err
	}

	if vrcnt >= mrcnt {
		log.WithFields(log.Fields{"sector": c, "mrcnt": mrcnt, "vrcnt": vrcnt}).
			Warn("sas: restarting compaction left in flight by an interrupted session")
	} else {
		log.WithFields(log.Fields{"sector": c, "mrcnt": mrcnt, "vrcnt": vrcnt}).
			Warn("sas: re-running compaction left in flight by an interrupted session")
	}
	return s.compactAfterAdvance(c)
}

func (s *Store) countMoveKept(start, count int) (int, error) {
	total := 0
	sec := start
	for i := 0; i < count; i++ {
		n, err := s.countSectorMoveKept(sec)
		if err != nil {
			return 0, err
		}
		total += n
		sec, _ = s.geom.Next(sec)
	}
	return total, nil
}

func (s *Store) countSectorMoveKept(sec int) (int, error) {
	n := 0
	err := s.scanSectorForward(sec, func(h RecordHandle) (bool, error) {
		keep, err := s.cfg.Move(h)
		if err != nil {
			return false, area.Wrap(area.IoError, err, "sas: move callback failed")
		}
		if keep {
			n++
		}
		return true, nil
	})
	return n, err
}

func (s *Store) countValidStrict(start, count int) (int, error) {
	total := 0
	sec := start
	for i := 0; i < count; i++ {
		n, err := s.countSectorValid(sec)
		if err != nil {
			return 0, err
		}
		total += n
		sec, _ = s.geom.Next(sec)
	}
	return total, nil
}

func (s *Store) countSectorValid(sec int) (int, error) {
	n := 0
	err := s.scanSectorForward(sec, func(h RecordHandle) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// seedReadOnlyEmpty establishes a defined empty iteration position for an
// empty ModeReadOnly mount without touching the medium: a read-only area
// may not accept the writes prepareSectorLocked would otherwise issue.
func (s *Store) seedReadOnlyEmpty() error {
	s.state = sector.State{Current: 0, Loc: s.geom.CookieAreaSize(), Wrap: 0}
	return nil
}

// seedSCBEmpty implements spec §4.5's "SCB empty mount": position at the
// last sector, full, and issue an advance, so the store starts out having
// just crossed into sector 0 with wrap 1 -- matching a store that has
// always been rotating, rather than inventing a special first-lap case.
func (s *Store) seedSCBEmpty() error {
	s.state = sector.State{Current: s.cfg.SectorCount - 1, Loc: s.cfg.SectorSize, Wrap: 0}
	return s.advanceLocked()
}

// seedPCBEmpty prepares sector 0 (erase + cookie) and starts the write
// head just past its cookie region.
func (s *Store) seedPCBEmpty() error {
	if err := s.prepareSectorLocked(0); err != nil {
		return err
	}
	s.state = sector.State{Current: 0, Loc: s.geom.CookieAreaSize(), Wrap: 0}
	return nil
}
