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

package conf

import (
	"github.com/mendersoftware/sas/area"
	"github.com/mendersoftware/sas/mediums"
	"github.com/mendersoftware/sas/sas"
)

// Open builds the area.Medium, area.Area and sas.Store that p describes,
// and mounts the store. Callers that only need the Area (e.g. a low-level
// dump tool) can call OpenArea instead.
func (p Profile) Open() (*sas.Store, error) {
	a, err := p.OpenArea()
	if err != nil {
		return nil, err
	}

	mode := p.storeMode()
	var move sas.MoveFunc
	if mode == sas.ModePersistent {
		// A generic CLI/profile has no application-level notion of
		// which records are still wanted, so it keeps everything;
		// callers embedding package sas directly should supply their
		// own MoveFunc instead of going through conf.Open.
		move = func(sas.RecordHandle) (bool, error) { return true, nil }
	}

	store, err := sas.NewStore(sas.Config{
		Area:         a,
		Mode:         mode,
		Cookie:       []byte(p.Cookie),
		SectorSize:   p.SectorSize,
		SectorCount:  p.SectorCount,
		SpareSectors: p.SpareSectors,
		CRCSkip:      p.CRCSkip,
		Move:         move,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Mount(); err != nil {
		return nil, err
	}
	return store, nil
}

// OpenArea builds just the area.Area p describes, without constructing or
// mounting a store on top of it.
func (p Profile) OpenArea() (*area.Area, error) {
	medium, props, err := p.openMedium()
	if err != nil {
		return nil, err
	}
	return area.NewArea(area.Config{
		Medium:      medium,
		WriteSize:   p.WriteSize,
		EraseSize:   p.EraseSize,
		EraseBlocks: p.EraseBlocks,
		Props:       props,
		Verify:      true,
	})
}

func (p Profile) openMedium() (area.Medium, area.Props, error) {
	switch p.Medium {
	case MediumRAM:
		size := p.EraseSize * p.EraseBlocks
		return mediums.NewRAM(size), area.FullOverwrite, nil
	case MediumEEPROM:
		return mediums.NewEEPROM(p.EraseSize*p.EraseBlocks, p.EraseSize), area.ZeroErase, nil
	case MediumFlash:
		return mediums.NewFlash(p.EraseSize*p.EraseBlocks, p.EraseSize), area.LimitedOverwrite, nil
	case MediumDisk:
		d, err := mediums.OpenDisk(p.Path)
		if err != nil {
			return nil, 0, err
		}
		return d, area.FullOverwrite, nil
	default:
		return nil, 0, area.Newf(area.InvalidConfig, "conf: unknown medium %q", p.Medium)
	}
}

func (p Profile) storeMode() sas.Mode {
	switch p.Mode {
	case ModeSimple:
		return sas.ModeSimple
	case ModePersistent:
		return sas.ModePersistent
	default:
		return sas.ModeReadOnly
	}
}
