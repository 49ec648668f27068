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

// Package feedback carries the "resume" signal from a sender queue back to its producers.
package feedback

import (
	"context"

	"go.uber.org/atomic"
)

// Notifier is a coalescing, non-blocking signal. Any number of Feedback calls made while nobody waits
// collapse into one pending wake up.
type Notifier struct {
	ch    chan struct{}
	count *atomic.Int64
}

func NewNotifier() *Notifier {
	return &Notifier{
		ch:    make(chan struct{}, 1),
		count: atomic.NewInt64(0),
	}
}

// Feedback never blocks, it is safe to call while holding locks.
func (n *Notifier) Feedback() {
	n.count.Inc()
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until a Feedback call happened since the last Wait returned, or until ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	select {
	case <-n.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of Feedback calls so far.
func (n *Notifier) Count() int64 {
	return n.count.Load()
}
