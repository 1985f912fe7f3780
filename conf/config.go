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

// Package conf loads the on-disk device profile describing how to open a
// storage area store: which medium to use, its geometry, and its mode.
package conf

import (
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mendersoftware/sas/area"
)

// MediumKind names one of the mediums package's drivers.
type MediumKind string

const (
	MediumRAM   MediumKind = "ram"
	MediumEEPROM MediumKind = "eeprom"
	MediumFlash MediumKind = "flash"
	MediumDisk  MediumKind = "disk"
)

// ModeName names one of the sas package's behavioral modes.
type ModeName string

const (
	ModeReadOnly   ModeName = "read-only"
	ModeSimple     ModeName = "simple-circular-buffer"
	ModePersistent ModeName = "persistent-circular-buffer"
)

// Profile is the JSON-serializable description of a store, typically
// loaded once at process start and used to build an area.Config and a
// sas.Config.
type Profile struct {
	Medium MediumKind `json:"Medium"`
	Path   string     `json:"Path,omitempty"`

	WriteSize   int `json:"WriteSize"`
	EraseSize   int `json:"EraseSize"`
	EraseBlocks int `json:"EraseBlocks"`

	Mode         ModeName `json:"Mode"`
	SectorSize   int      `json:"SectorSize"`
	SectorCount  int      `json:"SectorCount"`
	SpareSectors int      `json:"SpareSectors"`
	CRCSkip      int      `json:"CRCSkip"`
	Cookie       string   `json:"Cookie,omitempty"`
}

// LoadProfile reads mainFile, falling back to fallbackFile for any field
// left at its zero value, mirroring the main-config/fallback-config merge
// used for the device's runtime settings: operators are expected to ship a
// read-only default profile plus an optionally-present override.
func LoadProfile(mainFile, fallbackFile string) (Profile, error) {
	var p Profile

	if fallbackFile != "" {
		if err := readProfileInto(fallbackFile, &p); err != nil {
			return Profile{}, err
		}
	}

	if mainFile != "" {
		var main Profile
		if err := readProfileInto(mainFile, &main); err != nil {
			return Profile{}, err
		}
		mergeProfile(&p, main)
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func readProfileInto(path string, p *Profile) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Debug("conf: profile file not present, skipping")
		return nil
	}
	if err != nil {
		return area.Wrap(area.IoError, err, "conf: failed to open profile")
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(p); err != nil {
		return area.Wrap(area.InvalidConfig, err, "conf: failed to parse profile")
	}
	return nil
}

// mergeProfile overlays any non-zero field of override onto base.
func mergeProfile(base *Profile, override Profile) {
	if override.Medium != "" {
		base.Medium = override.Medium
	}
	if override.Path != "" {
		base.Path = override.Path
	}
	if override.WriteSize != 0 {
		base.WriteSize = override.WriteSize
	}
	if override.EraseSize != 0 {
		base.EraseSize = override.EraseSize
	}
	if override.EraseBlocks != 0 {
		base.EraseBlocks = override.EraseBlocks
	}
	if override.Mode != "" {
		base.Mode = override.Mode
	}
	if override.SectorSize != 0 {
		base.SectorSize = override.SectorSize
	}
	if override.SectorCount != 0 {
		base.SectorCount = override.SectorCount
	}
	if override.SpareSectors != 0 {
		base.SpareSectors = override.SpareSectors
	}
	if override.CRCSkip != 0 {
		base.CRCSkip = override.CRCSkip
	}
	if override.Cookie != "" {
		base.Cookie = override.Cookie
	}
}

// Validate checks that Profile names a known medium and mode, leaving
// geometry validation itself to area.NewArea/sas.NewStore, which apply the
// full set of rules.
func (p Profile) Validate() error {
	switch p.Medium {
	case MediumRAM, MediumEEPROM, MediumFlash, MediumDisk:
	default:
		return area.Newf(area.InvalidConfig, "conf: unknown medium %q", p.Medium)
	}
	switch p.Mode {
	case ModeReadOnly, ModeSimple, ModePersistent:
	default:
		return area.Newf(area.InvalidConfig, "conf: unknown mode %q", p.Mode)
	}
	if p.Medium == MediumDisk && p.Path == "" {
		return area.New(area.InvalidConfig, "conf: disk medium requires Path")
	}
	return nil
}
