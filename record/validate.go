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

// ValidateCRC reports whether trailer matches the CRC32/IEEE of
// data[skip:]. This is the single responsibility of record validation;
// magic/wrap/bounds checks are the sector/log engine's job, since they
// depend on store-wide state (current wrap count, sector geometry).
func ValidateCRC(data []byte, skip int, trailer uint32) bool {
	return CRC(data, skip) == trailer
}
