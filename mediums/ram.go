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

// Package mediums collects area.Medium drivers for the backing stores a
// storage area store can sit on: plain RAM, byte-addressable EEPROM,
// NOR-style flash, and real block devices.
package mediums

import (
	"sync"

	"github.com/mendersoftware/sas/area"
)

// RAM is a FullOverwrite medium backed by a plain byte slice.
// It never needs an erase pass: every write simply overwrites whatever was
// there. Useful for tests and for volatile scratch stores.
type RAM struct {
	mu   sync.RWMutex
	data []byte
}

// NewRAM returns a RAM medium of the given size, initialized to 0xFF (the
// conventional erased value, kept for parity with non-volatile media even
// though RAM has no erase operation of its own).
func NewRAM(size int) *RAM {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &RAM{data: data}
}

func (m *RAM) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off < 0 || int(off) > len(m.data) {
		return 0, area.New(area.InvalidRange, "mediums: read out of range")
	}
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *RAM) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, area.New(area.InvalidRange, "mediums: write out of range")
	}
	n := copy(m.data[off:], p)
	return n, nil
}

func (m *RAM) PhysicalWriteSize() (int, error) { return 1, nil }
func (m *RAM) PhysicalEraseSize() (int, error) { return 0, nil }
func (m *RAM) ErasedByte() (byte, error)       { return 0xFF, nil }
