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
	"github.com/mendersoftware/sas/sas/gate"
	"github.com/mendersoftware/sas/sector"
)

// Store is a mounted storage area store. A Store must be mounted with
// Mount before any record operation, and Unmount should be called when the
// caller is done with it. All exported methods except record iteration and
// reads are safe for concurrent use: they serialize through an internal
// gate.
type Store struct {
	cfg  Config
	geom sector.Geometry
	ops  modeOps
	gate *gate.Gate

	ready bool
	state sector.State
}

// RecordHandle identifies one record previously written to a Store. The
// zero RecordHandle is the sentinel "before the first record" value used
// to start a RecordNext iteration (spec §4.4 "Null handle").
type RecordHandle struct {
	store *Store
	// Sector is the index of the sector the record lives in.
	Sector int
	// Loc is the record's starting offset within Sector.
	Loc int
	// Size is the length of the record's data payload, in bytes
	// (excludes header and CRC trailer).
	Size int
}

// IsZero reports whether h is the sentinel "no record yet" handle.
func (h RecordHandle) IsZero() bool {
	return h.store == nil && h.Sector == 0 && h.Loc == 0 && h.Size == 0
}

// NewStore validates cfg and returns an unmounted Store. Call Mount before
// using it.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ops, err := opsFor(cfg.Mode)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"mode":         cfg.Mode,
		"sector_size":  cfg.SectorSize,
		"sector_count": cfg.SectorCount,
	}).Debug("sas: store configured")
	return &Store{
		cfg:  cfg,
		geom: cfg.geometry(),
		ops:  ops,
		gate: gate.New(),
	}, nil
}

// Mode returns the store's configured behavioral mode.
func (s *Store) Mode() Mode { return s.cfg.Mode }

// Ready reports whether Mount has completed successfully.
func (s *Store) Ready() bool { return s.ready }

func (s *Store) requireReady() error {
	if !s.ready {
		return area.New(area.NotReady, "sas: store is not mounted")
	}
	return nil
}

func (s *Store) sectorOffset(sec int) int64 {
	return s.geom.Offset(sec)
}
