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

import "github.com/mendersoftware/sas/area"

// modeOps is a table of function values selecting the behavior that
// differs between the three modes, mirroring the C library's mode vtable
// (spec §4.6) in idiomatic Go: a struct of funcs rather than an interface,
// since every mode shares the same Store receiver and most of the logic
// (framing, CRC, scan) is common.
type modeOps struct {
	// canWrite reports whether this mode allows Writev/Advance.
	canWrite bool
	// onWrap is called once advanceLocked has moved the write head into
	// sec. For ModeSimple it is nil (the sector is simply overwritten).
	// For ModePersistent it runs compaction to relocate live records out
	// of the block being reused.
	onWrap func(s *Store, sec int) error
	// mountExtra runs after the basic scan, to perform mode-specific
	// mount bookkeeping (SCB: none beyond the basic scan; PCB: recovery
	// counters per spec §4.5).
	mountExtra func(s *Store) error
	// seedEmpty establishes the initial state for a store with no
	// existing records, per spec §4.5's per-mode "empty mount" rules.
	seedEmpty func(s *Store) error
}

var roOps = modeOps{
	canWrite:   false,
	onWrap:     nil,
	mountExtra: nil,
	seedEmpty:  (*Store).seedReadOnlyEmpty,
}

var scbOps = modeOps{
	canWrite:   true,
	onWrap:     nil,
	mountExtra: nil,
	seedEmpty:  (*Store).seedSCBEmpty,
}

var pcbOps = modeOps{
	canWrite:   true,
	onWrap:     (*Store).compactAfterAdvance,
	mountExtra: (*Store).recoverPCB,
	seedEmpty:  (*Store).seedPCBEmpty,
}

func opsFor(m Mode) (modeOps, error) {
	switch m {
	case ModeReadOnly:
		return roOps, nil
	case ModeSimple:
		return scbOps, nil
	case ModePersistent:
		return pcbOps, nil
	default:
		return modeOps{}, area.Newf(area.InvalidConfig, "sas: unknown mode %d", int(m))
	}
}
