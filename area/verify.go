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

package area

import log "github.com/sirupsen/logrus"

// GeometryVerifier is an optional interface a Medium can implement to let
// NewArea cross-check the declared Config geometry against what the
// driver actually knows about the hardware (e.g. a disk driver backed by
// system.GetBlockDeviceSize/GetBlockDeviceSectorSize-style ioctls).
type GeometryVerifier interface {
	// PhysicalWriteSize returns the medium's native write-block size, in
	// bytes.
	PhysicalWriteSize() (int, error)
	// PhysicalEraseSize returns the medium's native erase-block size, in
	// bytes, or 0 if the medium has no erase semantics of its own.
	PhysicalEraseSize() (int, error)
	// ErasedByte returns the byte value the medium reads back from an
	// erased region.
	ErasedByte() (byte, error)
}

// verifyGeometry performs the optional debug-time verification of spec
// §4.1: the declared write_size must divide the driver's physical write
// block, the declared erase_size must be an integer multiple of the
// actual erase-block size, and the erased-value property must match. It
// is a no-op when the medium does not implement GeometryVerifier.
func verifyGeometry(cfg Config) error {
	gv, ok := cfg.Medium.(GeometryVerifier)
	if !ok {
		log.Debug("area: verify requested but medium does not implement GeometryVerifier, skipping")
		return nil
	}

	physWrite, err := gv.PhysicalWriteSize()
	if err != nil {
		return Wrap(InvalidConfig, err, "area: failed to query physical write size")
	}
	if physWrite > 0 && physWrite%cfg.WriteSize != 0 {
		return Newf(InvalidConfig,
			"area: configured write_size %d does not divide the driver's physical write block %d",
			cfg.WriteSize, physWrite)
	}

	physErase, err := gv.PhysicalEraseSize()
	if err != nil {
		return Wrap(InvalidConfig, err, "area: failed to query physical erase size")
	}
	if physErase > 0 && cfg.EraseSize%physErase != 0 {
		return Newf(InvalidConfig,
			"area: configured erase_size %d is not an integer multiple of the physical erase block %d",
			cfg.EraseSize, physErase)
	}

	erased, err := gv.ErasedByte()
	if err != nil {
		return Wrap(InvalidConfig, err, "area: failed to query erased-byte value")
	}
	want := cfg.Props.ErasedByte()
	if erased != want {
		return Newf(InvalidConfig,
			"area: configured erased-byte value %#x does not match driver-reported %#x", want, erased)
	}

	return nil
}
