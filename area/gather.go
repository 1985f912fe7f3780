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

// gatherRead issues one medium read per iov element; reads have no
// alignment requirement so the staging buffer used by gatherWrite isn't
// needed here (spec §4.1.2).
func (a *Area) gatherRead(off int64, iov [][]byte) error {
	for _, buf := range iov {
		if len(buf) == 0 {
			continue
		}
		n, err := a.medium.ReadAt(buf, off)
		if err != nil {
			return Wrap(IoError, err, "area: read failed")
		}
		if n != len(buf) {
			return Newf(IoError, "area: short read at offset %d: got %d of %d bytes", off, n, len(buf))
		}
		off += int64(len(buf))
	}
	return nil
}

// gatherWrite implements the gather-write algorithm of spec §4.1.1: a
// small write_size staging buffer absorbs iov-boundary spillover so that
// every physical write to the medium is write_size-aligned and a multiple
// of write_size, regardless of how the caller chopped up its buffers.
func (a *Area) gatherWrite(off int64, iov [][]byte) error {
	w := a.writeSize
	staging := make([]byte, 0, w)

	flush := func() error {
		if len(staging) == 0 {
			return nil
		}
		n, err := a.medium.WriteAt(staging, off)
		if err != nil {
			return Wrap(IoError, err, "area: write failed")
		}
		if n != len(staging) {
			return Newf(IoError, "area: short write at offset %d: wrote %d of %d bytes", off, n, len(staging))
		}
		off += int64(len(staging))
		staging = staging[:0]
		return nil
	}

	for _, buf := range iov {
		for len(buf) > 0 {
			if len(staging) > 0 {
				// Step 1: top up the staging buffer from this iov
				// element until it's full, then flush one write_size
				// write.
				need := w - len(staging)
				take := need
				if take > len(buf) {
					take = len(buf)
				}
				staging = append(staging, buf[:take]...)
				buf = buf[take:]
				if len(staging) == w {
					if err := flush(); err != nil {
						return err
					}
				}
				continue
			}

			// Step 2: write the maximal write_size-multiple prefix
			// directly from the iov element.
			if len(buf) >= w {
				direct := buf[:len(buf)-len(buf)%w]
				n, err := a.medium.WriteAt(direct, off)
				if err != nil {
					return Wrap(IoError, err, "area: write failed")
				}
				if n != len(direct) {
					return Newf(IoError, "area: short write at offset %d: wrote %d of %d bytes",
						off, n, len(direct))
				}
				off += int64(len(direct))
				buf = buf[len(direct):]
				continue
			}

			// Step 3: tail remainder smaller than write_size goes into
			// the staging buffer to be completed by a later iov
			// element (guaranteed to exist, since the caller already
			// validated that the aggregate length is a write_size
			// multiple).
			staging = append(staging, buf...)
			buf = nil
		}
	}

	// Guaranteed empty: Write() already rejected non-write_size-multiple
	// aggregate lengths.
	if len(staging) != 0 {
		return Newf(InvalidArgument, "area: gather write left %d unaligned trailing bytes", len(staging))
	}

	return nil
}
