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

//go:build linux
// +build linux

package mediums

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var errNotABlockDevice = errors.New("mediums: not a block device")

func getBlockDeviceSectorSize(file *os.File) (int, error) {
	sz, err := unix.IoctlGetInt(int(file.Fd()), unix.BLKSSZGET)
	if err == unix.ENOTTY {
		return 0, errNotABlockDevice
	}
	if err != nil {
		return 0, err
	}
	return sz, nil
}

func getBlockDeviceSize(file *os.File) (uint64, error) {
	sz, err := unix.IoctlGetUint64(int(file.Fd()), unix.BLKGETSIZE64)
	if err == unix.ENOTTY {
		return 0, errNotABlockDevice
	}
	if err != nil {
		return 0, err
	}
	return sz, nil
}
