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

package record

import "hash/crc32"

// CRC computes the CRC-32/IEEE checksum of data[skip:], the convention used
// to protect a record body while leaving its first skip bytes free to be
// overwritten (on a limited-overwrite medium) to invalidate the record.
//
// skip is clamped to len(data); a skip covering the whole payload yields the
// CRC of an empty slice, which is a fixed, well-known value and still lets
// the record validate.
func CRC(data []byte, skip int) uint32 {
	if skip < 0 {
		skip = 0
	}
	if skip > len(data) {
		skip = len(data)
	}
	return crc32.ChecksumIEEE(data[skip:])
}
