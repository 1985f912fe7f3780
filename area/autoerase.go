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

// WriteAutoErase implements the flash auto-erase variant of spec §4.1.3:
// for a medium that needs an explicit erase before a rewrite and does not
// advertise AutoErase, the write is split at erase-block boundaries, and
// each new block is erased immediately before the bytes landing in it are
// written. A block that off starts partway into is not erased. The log
// engine in package sas does not call this: it erases each sector's
// blocks explicitly when it advances into the sector.
func (a *Area) WriteAutoErase(off int64, iov [][]byte) error {
	if !a.needsExplicitErase() {
		return a.Write(off, iov)
	}

	total := iovLen(iov)
	if err := a.checkRange(off, total); err != nil {
		return err
	}

	// Flatten: erase-block splitting needs to slice across iov element
	// boundaries, which is simplest done against one contiguous buffer.
	flat := make([]byte, 0, total)
	for _, b := range iov {
		flat = append(flat, b...)
	}

	pos := off
	remaining := flat
	for len(remaining) > 0 {
		blockStart := pos - pos%int64(a.eraseSize)
		if pos == blockStart {
			block := int(blockStart / int64(a.eraseSize))
			if err := a.Erase(block, 1); err != nil {
				return err
			}
		}

		untilBoundary := blockStart + int64(a.eraseSize) - pos
		chunk := untilBoundary
		if chunk > int64(len(remaining)) {
			chunk = int64(len(remaining))
		}

		if err := a.Write(pos, [][]byte{remaining[:chunk]}); err != nil {
			return err
		}

		pos += chunk
		remaining = remaining[chunk:]
	}

	return nil
}

func (a *Area) needsExplicitErase() bool {
	return !a.props.Has(FullOverwrite) && !a.props.Has(AutoErase)
}
