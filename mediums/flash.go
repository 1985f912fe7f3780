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

// Flash simulates a NOR-flash medium: erased state is 0xFF, writes can
// only clear bits (1->0), and restoring a region to 0xFF requires Erase.
// Writing a 0 bit back to 1 without an erase is flagged as a driver bug
// (LimitedOverwrite violation) rather than silently ignored, since real
// NOR parts do not behave consistently when this is attempted.
type Flash struct {
	mu        sync.Mutex
	data      []byte
	eraseSize int
}

// NewFlash returns a Flash medium of the given size, erased in blocks of
// eraseSize bytes.
func NewFlash(size, eraseSize int) *Flash {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &Flash{data: data, eraseSize: eraseSize}
}

func (m *Flash) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off) > len(m.data) {
		return 0, area.New(area.InvalidRange, "mediums: read out of range")
	}
	return copy(p, m.data[off:]), nil
}

func (m *Flash) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, area.New(area.InvalidRange, "mediums: write out of range")
	}
	for i, b := range p {
		cur := m.data[int(off)+i]
		if cur&b != b {
			return 0, area.Newf(area.IoError,
				"mediums: flash write at offset %d attempted to set a bit without an erase", int(off)+i)
		}
	}
	for i, b := range p {
		m.data[int(off)+i] &= b
	}
	return len(p), nil
}

func (m *Flash) Erase(block, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := block * m.eraseSize
	end := start + count*m.eraseSize
	if start < 0 || end > len(m.data) {
		return area.New(area.InvalidRange, "mediums: erase out of range")
	}
	for i := start; i < end; i++ {
		m.data[i] = 0xFF
	}
	return nil
}

func (m *Flash) PhysicalWriteSize() (int, error) { return 1, nil }
func (m *Flash) PhysicalEraseSize() (int, error) { return m.eraseSize, nil }
func (m *Flash) ErasedByte() (byte, error)       { return 0xFF, nil }
