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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendersoftware/sas/area"
)

func TestRAMRoundTrip(t *testing.T) {
	m := NewRAM(64)
	require.NoError(t, writeAt(t, m, 0, []byte("abcdefgh")))
	buf := make([]byte, 8)
	n, err := m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abcdefgh", string(buf))
}

func TestEEPROMOnlyAllows0To1Transitions(t *testing.T) {
	m := NewEEPROM(64, 16)
	require.NoError(t, writeAt(t, m, 0, []byte{0xFF}))
	require.NoError(t, writeAt(t, m, 0, []byte{0x0F}))

	buf := make([]byte, 1)
	_, err := m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), buf[0], "bits already set to 1 must not be clearable without Erase")
}

func TestEEPROMErase(t *testing.T) {
	m := NewEEPROM(64, 16)
	require.NoError(t, writeAt(t, m, 0, []byte{0xFF}))
	require.NoError(t, m.Erase(0, 1))

	buf := make([]byte, 1)
	_, err := m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), buf[0])
}

func TestFlashOnly1To0Transitions(t *testing.T) {
	m := NewFlash(64, 16)
	require.NoError(t, writeAt(t, m, 0, []byte{0x0F}))

	buf := make([]byte, 1)
	_, err := m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0F), buf[0])
}

func TestFlashRejects0To1TransitionWithIoError(t *testing.T) {
	m := NewFlash(64, 16)
	require.NoError(t, writeAt(t, m, 0, []byte{0x0F}))

	_, err := m.WriteAt([]byte{0xFF}, 0)
	require.Error(t, err)
	assert.True(t, area.Is(err, area.IoError))

	buf := make([]byte, 1)
	_, rerr := m.ReadAt(buf, 0)
	require.NoError(t, rerr)
	assert.Equal(t, byte(0x0F), buf[0], "a rejected write must not partially clear bits")
}

func TestFlashErase(t *testing.T) {
	m := NewFlash(64, 16)
	require.NoError(t, writeAt(t, m, 0, []byte{0x00}))
	require.NoError(t, m.Erase(0, 1))

	buf := make([]byte, 1)
	_, err := m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), buf[0])
}

type writerAt interface {
	WriteAt(p []byte, off int64) (int, error)
}

func writeAt(t *testing.T, m writerAt, off int64, p []byte) error {
	t.Helper()
	_, err := m.WriteAt(p, off)
	return err
}
