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

package mediums

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mendersoftware/sas/area"
)

// blockDeviceGetSizeOf and blockDeviceGetSectorSizeOf are swappable so
// tests can run against a plain regular file, which answers neither ioctl.
var (
	blockDeviceGetSizeOf       = getBlockDeviceSize
	blockDeviceGetSectorSizeOf = getBlockDeviceSectorSize
)

// Disk is a FullOverwrite medium backed by a real block device or a plain
// file, opened for positional reads/writes. Disk implements
// area.GeometryVerifier, so NewArea can cross-check the configured
// write/erase size against the kernel-reported values; for a regular file
// it reports a physical write size of 1.
type Disk struct {
	path string
	f    *os.File
}

// OpenDisk opens path (a block device node or a regular file used to back
// a store, e.g. in development) for reading and writing.
func OpenDisk(path string) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, area.Wrap(area.IoError, err, "mediums: failed to open disk")
	}
	log.WithField("path", path).Info("mediums: disk opened")
	return &Disk{path: path, f: f}, nil
}

// Close releases the underlying file descriptor.
func (d *Disk) Close() error {
	return d.f.Close()
}

func (d *Disk) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, area.Wrap(area.IoError, err, "mediums: disk read failed")
	}
	return n, nil
}

func (d *Disk) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, area.Wrap(area.IoError, err, "mediums: disk write failed")
	}
	return n, nil
}

// PhysicalWriteSize reports the device's logical sector size, per
// BLKSSZGET, or 1 if the underlying file is not a block device.
func (d *Disk) PhysicalWriteSize() (int, error) {
	sz, err := blockDeviceGetSectorSizeOf(d.f)
	if err == errNotABlockDevice {
		return 1, nil
	}
	if err != nil {
		return 0, area.Wrap(area.IoError, err, "mediums: failed to query sector size")
	}
	if sz == 0 {
		return 1, nil
	}
	return sz, nil
}

// PhysicalEraseSize reports 0: block devices opened this way have no
// native erase semantics of their own (spec's FullOverwrite Props).
func (d *Disk) PhysicalEraseSize() (int, error) { return 0, nil }

// ErasedByte reports 0xFF, the conventional value used to pre-fill a
// FullOverwrite area's sectors.
func (d *Disk) ErasedByte() (byte, error) { return 0xFF, nil }

// Size reports the device's total addressable size, via BLKGETSIZE64, or
// falls back to the file's stat size for a regular file.
func (d *Disk) Size() (int64, error) {
	sz, err := blockDeviceGetSizeOf(d.f)
	if err == errNotABlockDevice {
		fi, serr := d.f.Stat()
		if serr != nil {
			return 0, area.Wrap(area.IoError, serr, "mediums: failed to stat disk")
		}
		return fi.Size(), nil
	}
	if err != nil {
		return 0, area.Wrap(area.IoError, err, "mediums: failed to query disk size")
	}
	return int64(sz), nil
}
