/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

// slot holds at most one item. gen changes every time the slot is filled so that a Ref taken for an earlier
// occupant can never match a later one.
type slot struct {
	item *Item
	gen  uint64
}

// ring is a fixed capacity slotted buffer. read and write are monotonic cursors which never wrap, the
// physical slot of a cursor is cursor % capacity. Items may be removed out of order which leaves holes
// inside [read, write), so size is tracked separately from write - read.
//
// Invariants:
//   - write - read <= capacity
//   - the slot at read is occupied unless read == write
//
// ring is not safe for concurrent use.
type ring struct {
	slots   []slot
	read    uint64
	write   uint64
	size    int
	lastGen uint64
}

func newRing(capacity int) *ring {
	return &ring{slots: make([]slot, capacity)}
}

func (r *ring) capacity() int {
	return len(r.slots)
}

func (r *ring) full() bool {
	return r.size == len(r.slots)
}

func (r *ring) physical(cursor uint64) int {
	return int(cursor % uint64(len(r.slots)))
}

// insert stores item in the first free slot of the window, or at write if the window has no holes. The
// caller must make sure the ring is not full.
func (r *ring) insert(item *Item) (int, uint64) {
	cursor := r.read
	for ; cursor < r.write; cursor++ {
		if r.slots[r.physical(cursor)].item == nil {
			break
		}
	}
	if cursor == r.write {
		r.write++
	}
	idx := r.physical(cursor)
	r.lastGen++
	r.slots[idx] = slot{item: item, gen: r.lastGen}
	r.size++
	return idx, r.lastGen
}

// lookup returns the item occupying idx if its generation is gen.
func (r *ring) lookup(idx int, gen uint64) *Item {
	if idx < 0 || idx >= len(r.slots) {
		return nil
	}
	s := r.slots[idx]
	if s.item == nil || s.gen != gen {
		return nil
	}
	return s.item
}

// remove clears idx and advances read past the run of empty slots it starts. The caller must have
// validated the slot with lookup.
func (r *ring) remove(idx int) *Item {
	item := r.slots[idx].item
	r.slots[idx].item = nil
	r.size--
	for r.read < r.write && r.slots[r.physical(r.read)].item == nil {
		r.read++
	}
	return item
}

// scan calls f for each occupied slot of the window in cursor order until f returns false.
func (r *ring) scan(f func(idx int, s slot) bool) {
	if r.size == 0 {
		return
	}
	for cursor := r.read; cursor < r.write; cursor++ {
		idx := r.physical(cursor)
		s := r.slots[idx]
		if s.item == nil {
			continue
		}
		if !f(idx, s) {
			return
		}
	}
}
