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

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memMedium is a minimal FullOverwrite, erase-capable test medium backing
// an Area with a plain byte slice.
type memMedium struct {
	mu        sync.Mutex
	data      []byte
	erased    byte
	eraseSize int
	failWrite map[int64]bool
}

func newMemMedium(size int, erased byte, eraseSize int) *memMedium {
	data := make([]byte, size)
	for i := range data {
		data[i] = erased
	}
	return &memMedium{data: data, erased: erased, eraseSize: eraseSize, failWrite: map[int64]bool{}}
}

func (m *memMedium) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memMedium) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[off] {
		delete(m.failWrite, off)
		return 0, assert.AnError
	}
	n := copy(m.data[off:], p)
	return n, nil
}

func (m *memMedium) Erase(block, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := block * m.eraseSize
	end := start + count*m.eraseSize
	for i := start; i < end; i++ {
		m.data[i] = m.erased
	}
	return nil
}

func newTestArea(t *testing.T, props Props) (*Area, *memMedium) {
	t.Helper()
	med := newMemMedium(4096, props.ErasedByte(), 1024)
	a, err := NewArea(Config{
		Medium:      med,
		WriteSize:   8,
		EraseSize:   1024,
		EraseBlocks: 4,
		Props:       props,
	})
	require.NoError(t, err)
	return a, med
}

func TestNewAreaRejectsBadGeometry(t *testing.T) {
	med := newMemMedium(4096, 0xFF, 1024)

	_, err := NewArea(Config{Medium: med, WriteSize: 3, EraseSize: 1024, EraseBlocks: 4})
	assert.True(t, Is(err, InvalidConfig))

	_, err = NewArea(Config{Medium: med, WriteSize: 8, EraseSize: 100, EraseBlocks: 4})
	assert.True(t, Is(err, InvalidConfig))

	_, err = NewArea(Config{Medium: nil, WriteSize: 8, EraseSize: 1024, EraseBlocks: 4})
	assert.True(t, Is(err, InvalidConfig))
}

func TestWriteRejectsUnalignedLength(t *testing.T) {
	a, _ := newTestArea(t, FullOverwrite)
	err := a.Write(0, [][]byte{[]byte("123")})
	assert.True(t, Is(err, InvalidArgument))
}

func TestWriteRejectsOutOfRange(t *testing.T) {
	a, _ := newTestArea(t, FullOverwrite)
	err := a.Write(a.Size()-8, [][]byte{make([]byte, 16)})
	assert.True(t, Is(err, InvalidRange))
}

func TestReadOnlyRejectsWrite(t *testing.T) {
	a, _ := newTestArea(t, FullOverwrite|ReadOnly)
	err := a.Write(0, [][]byte{make([]byte, 8)})
	assert.True(t, Is(err, ReadOnly))
}

func TestGatherWriteAcrossIovBoundaries(t *testing.T) {
	a, med := newTestArea(t, FullOverwrite)

	// Three iov elements whose lengths don't individually align to
	// write_size=8, but whose sum (3+5+8=16) does.
	err := a.Write(0, [][]byte{
		[]byte("abc"),
		[]byte("defgh"),
		[]byte("ijklmnop"),
	})
	require.NoError(t, err)

	got := make([]byte, 16)
	require.NoError(t, a.Read(0, [][]byte{got}))
	assert.Equal(t, "abcdefghijklmnop", string(got))
	_ = med
}

func TestGatherReadAcrossIovBoundaries(t *testing.T) {
	a, _ := newTestArea(t, FullOverwrite)
	require.NoError(t, a.Write(0, [][]byte{[]byte("0123456789ABCDEF")}))

	b1 := make([]byte, 4)
	b2 := make([]byte, 6)
	b3 := make([]byte, 6)
	require.NoError(t, a.Read(0, [][]byte{b1, b2, b3}))
	assert.Equal(t, "0123456789ABCDEF", string(b1)+string(b2)+string(b3))
}

func TestEraseOnNonEraserMediumUnsupported(t *testing.T) {
	a, err := NewArea(Config{
		Medium:      readerWriterOnly{med: newMemMedium(4096, 0xFF, 1024)},
		WriteSize:   8,
		EraseSize:   1024,
		EraseBlocks: 4,
		Props:       FullOverwrite,
	})
	require.NoError(t, err)
	err = a.Erase(0, 1)
	assert.True(t, Is(err, NotSupported))
}

// readerWriterOnly hides the Erase method of memMedium so NewArea sees a
// medium with no Eraser capability.
type readerWriterOnly struct {
	med *memMedium
}

func (r readerWriterOnly) ReadAt(p []byte, off int64) (int, error)  { return r.med.ReadAt(p, off) }
func (r readerWriterOnly) WriteAt(p []byte, off int64) (int, error) { return r.med.WriteAt(p, off) }

func TestWriteAutoEraseCrossesEraseBlockBoundary(t *testing.T) {
	med := newMemMedium(4096, 0xFF, 1024)
	a, err := NewArea(Config{
		Medium:      med,
		WriteSize:   8,
		EraseSize:   1024,
		EraseBlocks: 4,
		Props:       LimitedOverwrite,
	})
	require.NoError(t, err)

	// Dirty the bytes on both sides of the boundary. memMedium overwrites
	// freely, so this checks only that the split write lands every byte.
	require.NoError(t, med.Erase(0, 4))
	for i := range med.data[1016:1032] {
		med.data[1016+i] = 0x00
	}

	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.NoError(t, a.WriteAutoErase(1016, [][]byte{data}))

	got := make([]byte, 32)
	require.NoError(t, a.Read(1016, [][]byte{got}))
	assert.Equal(t, data, got)
}

func TestErasedByte(t *testing.T) {
	assert.Equal(t, byte(0xFF), Props(0).ErasedByte())
	assert.Equal(t, byte(0x00), ZeroErase.ErasedByte())
}
