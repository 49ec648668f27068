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

// OverflowQueue is an unbounded FIFO used to absorb elements which do not fit into a bounded buffer.
// Unlike a ring buffer it never drops elements, it only grows. It is not safe for concurrent use, the
// owner is expected to guard it with its own lock.
type OverflowQueue[T any] struct {
	elements []T
	head     int
}

func New[T any]() *OverflowQueue[T] {
	return &OverflowQueue[T]{}
}

// Append adds an element to the back of the queue
func (q *OverflowQueue[T]) Append(value T) {
	q.elements = append(q.elements, value)
}

// PopFront removes and returns the oldest element.
func (q *OverflowQueue[T]) PopFront() (T, bool) {
	var zero T
	if q.Length() == 0 {
		return zero, false
	}
	v := q.elements[q.head]
	// release the reference so that the payload can be collected
	q.elements[q.head] = zero
	q.head++
	if q.head == len(q.elements) {
		q.elements = q.elements[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.elements) {
		n := copy(q.elements, q.elements[q.head:])
		clear(q.elements[n:])
		q.elements = q.elements[:n]
		q.head = 0
	}
	return v, true
}

// Range calls f for each element from the oldest to the newest until f returns false.
func (q *OverflowQueue[T]) Range(f func(T) bool) {
	for i := q.head; i < len(q.elements); i++ {
		if !f(q.elements[i]) {
			return
		}
	}
}

// Length returns the current length of the queue
func (q *OverflowQueue[T]) Length() int {
	return len(q.elements) - q.head
}
