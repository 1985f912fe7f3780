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

// Package gate implements the single-owner mutual exclusion described in
// spec §5: a counting semaphore of initial count 1 guarding every
// state-mutating entry point of a storage area store (Mount, Unmount,
// Writev, Advance, Wipe, RecordUpdate). The store has no separate Compact
// entry point: compaction runs inside Advance, under the gate Advance
// already holds. Read-side operations (record iteration,
// record reads) are deliberately not gated; callers must ensure no
// concurrent mutation while they iterate.
package gate

// Gate is a binary semaphore with wait-forever acquire semantics; there is
// no cancellation or timeout, matching spec §5 ("Cancellation/timeout:
// none").
type Gate struct {
	sem chan struct{}
}

// New returns a Gate ready for use, with its single permit available.
func New() *Gate {
	g := &Gate{sem: make(chan struct{}, 1)}
	g.sem <- struct{}{}
	return g
}

// Acquire blocks until the permit is available and takes it.
func (g *Gate) Acquire() {
	<-g.sem
}

// Release returns the permit.
func (g *Gate) Release() {
	g.sem <- struct{}{}
}

// With runs fn while holding the gate, always releasing it afterwards.
func (g *Gate) With(fn func() error) error {
	g.Acquire()
	defer g.Release()
	return fn()
}
