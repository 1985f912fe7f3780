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

// Writev appends data as a single new record, returning a handle to it.
// data is gathered exactly as given: callers wanting to write multiple
// fields as one record should concatenate them first, since the on-medium
// framing needs one contiguous length-prefixed blob. Writev returns
// NoSpace, leaving the store's position unchanged, when the record does
// not fit in whatever room remains in the current sector; the caller
// decides whether to Advance and retry.
func (s *Store) Writev(data []byte) (RecordHandle, error) {
	if err := s.requireReady(); err != nil {
		return RecordHandle{}, err
	}
	if !s.ops.canWrite {
		return RecordHandle{}, area.New(area.NotSupported, "sas: store mode does not support writes")
	}

	var h RecordHandle
	err := s.gate.With(func() error {
		var err error
		h, err = s.appendLocked(data)
		return err
	})
	return h, err
}

// appendLocked frames data and writes it at the current write head. If the
// record does not fit in the sector's remaining space it returns NoSpace
// without touching s.state. If the medium write itself fails, it skips the
// defective write_size block by advancing loc by one write_size and
// retrying at the new location, within the current sector only, until
// either the write succeeds or there is no longer room for the record.
func (s *Store) appendLocked(data []byte) (RecordHandle, error) {
	core, err := record.Frame(s.state.Wrap, data, s.cfg.CRCSkip)
	if err != nil {
		return RecordHandle{}, area.Wrap(area.InvalidArgument, err, "sas: failed to frame record")
	}

	w := s.cfg.Area.WriteSize()
	frame := record.PadTo(core, w, s.cfg.Area.Props().ErasedByte())
	need := len(frame)
	if need > s.cfg.SectorSize-s.geom.CookieAreaSize() {
		return RecordHandle{}, area.New(area.InvalidArgument, "sas: record is larger than one sector")
	}

	for {
		if s.cfg.SectorSize-s.state.Loc < need {
			return RecordHandle{}, area.New(area.NoSpace, "sas: current sector cannot hold the framed record")
		}

		sec, loc := s.state.Current, s.state.Loc
		off := s.sectorOffset(sec) + int64(loc)
		if err := s.cfg.Area.Write(off, [][]byte{frame}); err != nil {
			log.WithFields(log.Fields{"sector": sec, "loc": loc, "write_size": w}).
				Warn("sas: write failed, skipping write block and retrying")
			s.state.Loc += w
			continue
		}

		s.state.Loc += need
		log.WithFields(log.Fields{"sector": sec, "loc": loc, "len": len(data)}).Debug("sas: record appended")
		return RecordHandle{store: s, Sector: sec, Loc: loc, Size: len(data)}, nil
	}
}

// Advance moves the write head to the next sector, performing whatever
// preparation the mode requires (compaction for ModePersistent) after the
// new sector becomes current.
func (s *Store) Advance() error {
	if err := s.requireReady(); err != nil {
		return err
	}
	if !s.ops.canWrite {
		return area.New(area.NotSupported, "sas: store mode does not support writes")
	}
	return s.gate.With(s.advanceLocked)
}

// advanceLocked performs the sector-advance steps of the sector state
// machine in order: fill the remainder of the sector being left (so a
// rescan never mistakes leftover bytes for a record), move (c, loc, wrap)
// to the next sector, prepare that sector (erase if required, write its
// cookie), and only then run the mode's onWrap hook (compaction for
// ModePersistent) with the state already reflecting the new position.
func (s *Store) advanceLocked() error {
	if err := s.fillRemainderLocked(); err != nil {
		return err
	}

	next := s.geom.Advance(s.state)
	s.state = next

	if err := s.prepareSectorLocked(next.Current); err != nil {
		return err
	}

	if s.ops.onWrap != nil {
		if err := s.ops.onWrap(s, next.Current); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{"sector": next.Current, "wrap": next.Wrap}).Debug("sas: advanced to sector")
	return nil
}

// fillRemainderLocked fills whatever is left of the current sector with
// the area's erased-byte value, on media where any bit pattern may replace
// any other. This keeps a later rescan from reading stale leftover bytes
// as a partial record once the write head has moved on.
func (s *Store) fillRemainderLocked() error {
	a := s.cfg.Area
	if !a.Props().Has(area.FullOverwrite) {
		return nil
	}
	remaining := s.cfg.SectorSize - s.state.Loc
	if remaining <= 0 {
		return nil
	}
	fill := bytes.Repeat([]byte{a.Props().ErasedByte()}, remaining)
	off := s.sectorOffset(s.state.Current) + int64(s.state.Loc)
	if err := a.Write(off, [][]byte{fill}); err != nil {
		return area.Wrap(area.IoError, err, "sas: failed to fill sector remainder")
	}
	return nil
}

// sectorStartsEraseBlock reports whether sec's starting offset is aligned
// to the area's erase-block size.
func (s *Store) sectorStartsEraseBlock(sec int) bool {
	return s.sectorOffset(sec)%int64(s.cfg.Area.EraseSize()) == 0
}

// prepareSectorLocked erases sec, if the medium requires an explicit erase
// and sec sits at the start of an erase block, and writes its cookie,
// leaving it ready to receive records at CookieAreaSize().
func (s *Store) prepareSectorLocked(sec int) error {
	a := s.cfg.Area
	off := s.sectorOffset(sec)

	if !a.Props().Has(area.FullOverwrite) && !a.Props().Has(area.AutoErase) && s.sectorStartsEraseBlock(sec) {
		block := int(off / int64(a.EraseSize()))
		blocks := s.cfg.SectorSize / a.EraseSize()
		if blocks == 0 {
			blocks = 1
		}
		if err := a.Erase(block, blocks); err != nil {
			return area.Wrap(area.IoError, err, "sas: failed to erase sector")
		}
	}

	if len(s.cfg.Cookie) > 0 {
		padded := make([]byte, s.geom.CookieAreaSize())
		copy(padded, s.cfg.Cookie)
		if err := a.Write(off, [][]byte{padded}); err != nil {
			return area.Wrap(area.IoError, err, "sas: failed to write sector cookie")
		}
	}
	return nil
}

// GetSectorCookie reads back the cookie currently stored at the start of
// sec, for callers that want to validate media identity independently of
// Mount.
func (s *Store) GetSectorCookie(sec int) ([]byte, error) {
	if len(s.cfg.Cookie) == 0 {
		return nil, area.New(area.NotSupported, "sas: store has no cookie configured")
	}
	buf := make([]byte, len(s.cfg.Cookie))
	padded := make([]byte, s.geom.CookieAreaSize())
	if err := s.cfg.Area.Read(s.sectorOffset(sec), [][]byte{padded}); err != nil {
		return nil, area.Wrap(area.IoError, err, "sas: failed to read sector cookie")
	}
	copy(buf, padded)
	return buf, nil
}

// recordOverhead is the number of bytes a record costs beyond its payload:
// the header and the CRC trailer.
const recordOverhead = record.HeaderSize + record.TrailerSize

// readCandidateWithWrap reads the header at sec, loc and reports whether
// it could plausibly start a live record: magic present, length bounds
// 0 < len <= SectorSize-loc-recordOverhead satisfied, and wrap matching
// wantWrap. It does not check the CRC; callers that need full validity
// call Validate on the returned handle.
func (s *Store) readCandidateWithWrap(sec, loc int, wantWrap byte) (RecordHandle, bool) {
	if loc+recordOverhead > s.cfg.SectorSize {
		return RecordHandle{}, false
	}
	hdr, err := s.readHeaderLocked(sec, loc)
	if err != nil || hdr.Magic != record.Magic {
		return RecordHandle{}, false
	}
	if int(hdr.Len) <= 0 || int(hdr.Len) > s.cfg.SectorSize-loc-recordOverhead {
		return RecordHandle{}, false
	}
	if hdr.Wrap != wantWrap {
		return RecordHandle{}, false
	}
	return RecordHandle{store: s, Sector: sec, Loc: loc, Size: int(hdr.Len)}, true
}

// readCandidate is readCandidateWithWrap using the wrap a live record in
// sec is expected to carry given the store's current write head.
func (s *Store) readCandidate(sec, loc int) (RecordHandle, bool) {
	return s.readCandidateWithWrap(sec, loc, s.geom.WrapOf(sec, s.state.Current, s.state.Wrap))
}

// tryRecordAt reads the candidate at sec, loc and validates its CRC,
// returning ok only when magic, bounds, wrap, and CRC all hold.
func (s *Store) tryRecordAt(sec, loc int) (RecordHandle, bool) {
	h, ok := s.readCandidate(sec, loc)
	if !ok {
		return RecordHandle{}, false
	}
	valid, err := h.Validate()
	if err != nil || !valid {
		return RecordHandle{}, false
	}
	return h, true
}

// recordAction is invoked for each fully-valid record a forward scan
// finds. Returning keepGoing=false stops the scan early.
type recordAction func(h RecordHandle) (keepGoing bool, err error)

// scanSectorForward walks sec from its cookie region, in strict mode: it
// stops at the first location that is not a fully valid record (bad
// magic, bad bounds, wrong wrap, or a failing CRC), rather than resyncing
// past it. This matches the contiguous-prefix-of-live-records shape every
// sector has in normal operation.
func (s *Store) scanSectorForward(sec int, onValid recordAction) error {
	w := s.cfg.Area.WriteSize()
	loc := s.geom.CookieAreaSize()
	for {
		h, ok := s.readCandidate(sec, loc)
		if !ok {
			return nil
		}
		valid, err := h.Validate()
		if err != nil {
			return err
		}
		if !valid {
			return nil
		}
		keepGoing, err := onValid(h)
		if err != nil || !keepGoing {
			return err
		}
		loc += record.AlignUp(record.FramedLen(h.Size), w)
	}
}

// RecordNext returns the handle of the record following prev, walking
// forward through the log in write order. Pass the zero RecordHandle to
// start from the oldest surviving record. It returns area.NotFound once
// iteration reaches the write head. Within a sector, a candidate that
// fails its magic/bounds/wrap/CRC check is skipped by stepping one
// write_size forward and retrying (byte-level resync against partial
// write or stale-erase debris) rather than jumping straight to the next
// sector.
func (s *Store) RecordNext(prev RecordHandle) (RecordHandle, error) {
	if err := s.requireReady(); err != nil {
		return RecordHandle{}, err
	}

	w := s.cfg.Area.WriteSize()
	sec, loc := s.oldestLocked()
	if !prev.IsZero() {
		sec = prev.Sector
		loc = prev.Loc + record.AlignUp(record.FramedLen(prev.Size), w)
	}

	for {
		atHead := sec == s.state.Current && loc >= s.state.Loc
		atSectorEnd := loc+recordOverhead > s.cfg.SectorSize
		if atHead || atSectorEnd {
			if atHead {
				return RecordHandle{}, area.New(area.NotFound, "sas: no more records")
			}
			sec, _ = s.geom.Next(sec)
			loc = s.geom.CookieAreaSize()
			continue
		}

		if h, ok := s.tryRecordAt(sec, loc); ok {
			return h, nil
		}
		loc += w
	}
}

// oldestLocked returns the starting position of the oldest sector that may
// still hold live records: spare_sectors+1 sectors ahead of the current
// write head. On a store that has never wrapped, the sectors ahead of the
// write head are still virgin, so the scan simply finds nothing there and
// continues around to sector 0, where the real data begins.
func (s *Store) oldestLocked() (sec, loc int) {
	sec = s.state.Current
	for i := 0; i <= s.cfg.SpareSectors; i++ {
		sec, _ = s.geom.Next(sec)
	}
	return sec, s.geom.CookieAreaSize()
}

func (s *Store) readHeaderLocked(sec, loc int) (record.Header, error) {
	buf := make([]byte, record.HeaderSize)
	off := s.sectorOffset(sec) + int64(loc)
	if err := s.cfg.Area.Read(off, [][]byte{buf}); err != nil {
		return record.Header{}, area.Wrap(area.IoError, err, "sas: failed to read record header")
	}
	return record.DecodeHeader(buf)
}

// Read copies the data payload of h into buf, which must be at least
// h.Size bytes. It is not gated: callers must not call Wipe/Advance
// concurrently with iteration.
func (h RecordHandle) Read(buf []byte) (int, error) {
	if h.store == nil {
		return 0, area.New(area.InvalidArgument, "sas: zero record handle")
	}
	if len(buf) < h.Size {
		return 0, area.New(area.InvalidArgument, "sas: buffer too small for record")
	}
	off := h.store.sectorOffset(h.Sector) + int64(h.Loc) + record.HeaderSize
	if err := h.store.cfg.Area.Read(off, [][]byte{buf[:h.Size]}); err != nil {
		return 0, area.Wrap(area.IoError, err, "sas: failed to read record data")
	}
	return h.Size, nil
}

// Validate reports whether h's CRC trailer matches its data, per the
// crc_skip rule configured on the store.
func (h RecordHandle) Validate() (bool, error) {
	if h.store == nil {
		return false, area.New(area.InvalidArgument, "sas: zero record handle")
	}
	s := h.store
	data := make([]byte, h.Size)
	if _, err := h.Read(data); err != nil {
		return false, err
	}
	trailerBuf := make([]byte, record.TrailerSize)
	off := s.sectorOffset(h.Sector) + int64(h.Loc) + int64(record.HeaderSize) + int64(h.Size)
	if err := s.cfg.Area.Read(off, [][]byte{trailerBuf}); err != nil {
		return false, area.Wrap(area.IoError, err, "sas: failed to read record trailer")
	}
	trailer, err := record.DecodeTrailer(trailerBuf)
	if err != nil {
		return false, area.Wrap(area.IoError, err, "sas: malformed record trailer")
	}
	return record.ValidateCRC(data, s.cfg.CRCSkip, trailer), nil
}

// RecordUpdate overwrites the first len(prefix) bytes of h's data in
// place, invalidating it without corrupting its CRC, provided prefix does
// not extend past crc_skip and the area supports overwrite-in-place. Since
// the area only accepts write_size-aligned, write_size-multiple writes,
// this reads back the write_size-aligned block spanning prefix, patches
// it in memory, and writes the whole span back.
func (h RecordHandle) RecordUpdate(prefix []byte) error {
	if h.store == nil {
		return area.New(area.InvalidArgument, "sas: zero record handle")
	}
	s := h.store
	if len(prefix) > s.cfg.CRCSkip {
		return area.New(area.InvalidArgument, "sas: update prefix exceeds crc_skip")
	}
	if !s.cfg.Area.Props().Has(area.LimitedOverwrite) && !s.cfg.Area.Props().Has(area.FullOverwrite) {
		return area.New(area.NotSupported, "sas: area does not support in-place overwrite")
	}

	w := s.cfg.Area.WriteSize()
	dataOff := s.sectorOffset(h.Sector) + int64(h.Loc) + record.HeaderSize
	blockOff := (dataOff / int64(w)) * int64(w)
	span := sector.AlignUp(int(dataOff-blockOff)+len(prefix), w)

	buf := make([]byte, span)
	return s.gate.With(func() error {
		if err := s.cfg.Area.Read(blockOff, [][]byte{buf}); err != nil {
			return area.Wrap(area.IoError, err, "sas: failed to read record block for update")
		}
		copy(buf[dataOff-blockOff:], prefix)
		if err := s.cfg.Area.Write(blockOff, [][]byte{buf}); err != nil {
			return area.Wrap(area.IoError, err, "sas: failed to update record")
		}
		return nil
	})
}
