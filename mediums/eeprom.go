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
	"sync"

	"github.com/mendersoftware/sas/area"
)

// EEPROM simulates a byte-addressable EEPROM: writes can only set bits
// (0->1), and restoring a byte to its erased value 0x00 requires a
// separate Erase call, matching the ZeroErase Props documented in spec
// §4.1.
type EEPROM struct {
	mu        sync.Mutex
	data      []byte
	eraseSize int
}

// NewEEPROM returns an EEPROM medium of the given size, erased in blocks of
// eraseSize bytes.
func NewEEPROM(size, eraseSize int) *EEPROM {
	return &EEPROM{data: make([]byte, size), eraseSize: eraseSize}
}

func (m *EEPROM) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off) > len(m.data) {
		return 0, area.New(area.InvalidRange, "mediums: read out of range")
	}
	return copy(p, m.data[off:]), nil
}

func (m *EEPROM) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, area.New(area.InvalidRange, "mediums: write out of range")
	}
	for i, b := range p {
		// Erased state is 0x00, so only 0->1 bit transitions are
		// honored; bits already 1 stay 1 until the next Erase.
		m.data[int(off)+i] |= b
	}
	return len(p), nil
}

func (m *EEPROM) Erase(block, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := block * m.eraseSize
	end := start + count*m.eraseSize
	if start < 0 || end > len(m.data) {
		return area.New(area.InvalidRange, "mediums: erase out of range")
	}
	for i := start; i < end; i++ {
		m.data[i] = 0x00
	}
	return nil
}

func (m *EEPROM) PhysicalWriteSize() (int, error) { return 1, nil }
func (m *EEPROM) PhysicalEraseSize() (int, error) { return m.eraseSize, nil }
func (m *EEPROM) ErasedByte() (byte, error)       { return 0x00, nil }
