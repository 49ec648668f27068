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

/*
Package queue implements the sender queue which sits between the processing stages of a collection pipeline and its
flushers. A sender queue is a fixed capacity slotted buffer backed by an unbounded overflow buffer, so Push never
blocks and never drops. Items are handed out through an admission gate built from a rate limiter and concurrency
limiters, and are freed out of order once their send attempt is over.
*/
package queue

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/limiter"
	"github.com/bilosikia/loongcollector/pkg/pipeline"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
	sharedqueue "github.com/bilosikia/loongcollector/pkg/shared/queue"
)

// Ref is the handle to an item handed out by GetAvailableItems. It stays valid until the item is removed.
type Ref struct {
	Item *Item
	idx  int
	gen  uint64
	// admitted is set when the item went through the admission gate and was charged to the limiters.
	admitted bool
}

// Admitted reports whether the concurrency limiters counted the item as in flight, so the flusher must
// release it with OnSendDone. Items fetched with a negative limit bypass the limiters.
func (r Ref) Admitted() bool {
	return r.admitted
}

// SenderQueue is safe for concurrent use by producers and flushers.
type SenderQueue struct {
	key           Key
	lock          sync.Mutex
	ring          *ring
	overflow      *sharedqueue.OverflowQueue[*Item]
	dataBytes     int64
	overflowBytes int64
	wm            watermarks
	validToPush   bool
	opts          *options
}

// NewSenderQueue returns a queue holding up to capacity items in its bounded part. It requires
// 0 <= low < high <= capacity.
func NewSenderQueue(key Key, capacity, low, high int, opts ...Option) (*SenderQueue, error) {
	if capacity <= 0 || low < 0 || low >= high || high > capacity {
		return nil, InvalidArgsErr{Key: key, Capacity: capacity, Low: low, High: high}
	}
	o := &options{
		clock: time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = logging.NewLogger()
	}
	o.logger = o.logger.With("queue", string(key))
	q := &SenderQueue{
		key:         key,
		ring:        newRing(capacity),
		overflow:    sharedqueue.New[*Item](),
		wm:          watermarks{low: low, high: high, capacity: capacity},
		validToPush: true,
		opts:        o,
	}
	validToPushFlag.WithLabelValues(q.labels()...).Set(1)
	return q, nil
}

// String implements Stringer
func (q *SenderQueue) String() string {
	q.lock.Lock()
	defer q.lock.Unlock()
	return fmt.Sprintf("(%s) capacity:%d size:%d overflow:%d read:%d write:%d", q.key, q.ring.capacity(), q.ring.size, q.overflow.Length(), q.ring.read, q.ring.write)
}

// Key returns the queue key.
func (q *SenderQueue) Key() Key {
	return q.key
}

func (q *SenderQueue) labels() []string {
	return []string{string(q.key), q.opts.flusherName}
}

// Push stamps the enqueue time and stores the item as idle, spilling into the overflow buffer when the bounded
// part is full. It returns false once the queue has been invalidated, and for an item which is already queued
// here or in another queue.
func (q *SenderQueue) Push(item *Item) bool {
	if item == nil {
		return false
	}
	q.lock.Lock()
	defer q.lock.Unlock()
	if !q.validToPush {
		return false
	}
	if !item.queued.CompareAndSwap(false, true) {
		q.opts.logger.Warnw("Rejected an item which is already queued", zap.String("itemQueue", string(item.Key)))
		return false
	}
	item.status.Store(int32(StatusIdle))
	item.enqueueTime = q.opts.clock()
	item.Key = q.key
	size := item.Size()

	labels := q.labels()
	inItemsCount.WithLabelValues(labels...).Inc()
	inBytesCount.WithLabelValues(labels...).Add(float64(size))

	if q.ring.full() {
		q.overflow.Append(item)
		q.overflowBytes += size
		overflowSize.WithLabelValues(labels...).Set(float64(q.overflow.Length()))
		overflowDataBytes.WithLabelValues(labels...).Set(float64(q.overflowBytes))
		return true
	}

	q.insert(item)
	q.wm.afterPush(q.ring.size)
	return true
}

// insert places an item into the bounded part, the caller holds the lock and has checked capacity.
func (q *SenderQueue) insert(item *Item) {
	q.ring.insert(item)
	q.dataBytes += item.Size()
	labels := q.labels()
	queueSize.WithLabelValues(labels...).Set(float64(q.ring.size))
	queueDataBytes.WithLabelValues(labels...).Set(float64(q.dataBytes))
}

// Remove frees the slot of an item previously returned by GetAvailableItems. It returns false, without touching
// the queue, for stale refs, refs of another queue and items which are not being sent. When the overflow buffer
// is not empty its oldest item takes the freed capacity, otherwise the watermarks are re-evaluated and the
// feedback callback fires if the size dropped below the high watermark.
func (q *SenderQueue) Remove(ref Ref) bool {
	if ref.Item == nil {
		return false
	}
	q.lock.Lock()
	item := q.ring.lookup(ref.idx, ref.gen)
	if item == nil || item != ref.Item || item.Status() != StatusSending {
		q.lock.Unlock()
		return false
	}
	q.ring.remove(ref.idx)
	item.queued.Store(false)
	size := item.Size()
	q.dataBytes -= size

	labels := q.labels()
	outItemsCount.WithLabelValues(labels...).Inc()
	outBytesCount.WithLabelValues(labels...).Add(float64(size))
	totalDelayMs.WithLabelValues(labels...).Add(float64(q.opts.clock().Sub(item.enqueueTime).Milliseconds()))

	if next, ok := q.overflow.PopFront(); ok {
		q.overflowBytes -= next.Size()
		q.insert(next)
		overflowSize.WithLabelValues(labels...).Set(float64(q.overflow.Length()))
		overflowDataBytes.WithLabelValues(labels...).Set(float64(q.overflowBytes))
		q.lock.Unlock()
		return true
	}

	resume := q.wm.afterPop(q.ring.size)
	feedback := q.opts.feedback
	queueSize.WithLabelValues(labels...).Set(float64(q.ring.size))
	queueDataBytes.WithLabelValues(labels...).Set(float64(q.dataBytes))
	q.lock.Unlock()

	if resume && feedback != nil {
		feedback()
	}
	return true
}

// GetAvailableItems flips idle items to sending and returns them in slot order. A negative limit returns every
// idle item without consulting the limiters, which is what drains use. Otherwise at most limit items are
// returned and the scan stops at the first rejection of the rate limiter or of any concurrency limiter.
func (q *SenderQueue) GetAvailableItems(limit int) []Ref {
	q.lock.Lock()
	defer q.lock.Unlock()
	labels := q.labels()
	fetchCount.WithLabelValues(labels...).Inc()
	if q.ring.size == 0 {
		return nil
	}

	var refs []Ref
	hasAvailableItem := false
	if limit < 0 {
		q.ring.scan(func(idx int, s slot) bool {
			if s.item.markSending() {
				hasAvailableItem = true
				refs = append(refs, Ref{Item: s.item, idx: idx, gen: s.gen})
			}
			return true
		})
	} else {
		rateLimiter := q.opts.rateLimiter
		concurrencyLimiters := q.opts.concurrencyLimiters
		q.ring.scan(func(idx int, s slot) bool {
			if s.item.Status() != StatusIdle {
				return true
			}
			hasAvailableItem = true
			if limit == 0 {
				return false
			}
			if rateLimiter != nil && !rateLimiter.IsValidToPop() {
				fetchRejectedByRateLimiterCount.WithLabelValues(labels...).Inc()
				return false
			}
			for _, l := range concurrencyLimiters {
				if !l.IsValidToPop() {
					fetchRejectedByConcurrencyLimiterCount.WithLabelValues(string(q.key), q.opts.flusherName, l.Name()).Inc()
					return false
				}
			}
			s.item.markSending()
			refs = append(refs, Ref{Item: s.item, idx: idx, gen: s.gen, admitted: true})
			for _, l := range concurrencyLimiters {
				l.PostPop()
			}
			if rateLimiter != nil {
				rateLimiter.PostPop(s.item.RawSize)
			}
			limit--
			return true
		})
	}
	if hasAvailableItem {
		validFetchCount.WithLabelValues(labels...).Inc()
	}
	fetchedItemsCount.WithLabelValues(labels...).Add(float64(len(refs)))
	return refs
}

// SetPipelineForItems attaches p to every queued item, overflow included, which has no pipeline yet. Items
// pushed under an earlier pipeline generation keep it. It returns the number of items which adopted p.
func (q *SenderQueue) SetPipelineForItems(p *pipeline.Pipeline) int {
	if p == nil {
		return 0
	}
	q.lock.Lock()
	defer q.lock.Unlock()
	adopted := 0
	q.ring.scan(func(_ int, s slot) bool {
		if s.item.AttachPipeline(p) {
			adopted++
		}
		return true
	})
	q.overflow.Range(func(item *Item) bool {
		if item.AttachPipeline(p) {
			adopted++
		}
		return true
	})
	if adopted > 0 {
		q.opts.logger.Debugw("Attached pipeline to queued items", zap.String("pipeline", p.String()), zap.Int("items", adopted))
	}
	return adopted
}

// Size returns the number of items in the bounded part.
func (q *SenderQueue) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.ring.size
}

// OverflowSize returns the number of items waiting in the overflow buffer.
func (q *SenderQueue) OverflowSize() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.overflow.Length()
}

// Capacity returns the capacity of the bounded part.
func (q *SenderQueue) Capacity() int {
	return q.ring.capacity()
}

// Empty is true when neither the bounded part nor the overflow buffer hold items.
func (q *SenderQueue) Empty() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.ring.size == 0 && q.overflow.Length() == 0
}

// Full is true when the bounded part is at capacity, further pushes go to the overflow buffer.
func (q *SenderQueue) Full() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.ring.full()
}

// State returns the fill level relative to the watermarks.
func (q *SenderQueue) State() State {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.wm.stateOf(q.ring.size)
}

// Congested is true from the push which reached the high watermark until the remove which brings the size back
// below it. Producers are expected to slow down while it is set and to resume on feedback.
func (q *SenderQueue) Congested() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.wm.congested
}

// ConcurrencyLimiters returns the concurrency limiters of the admission gate, flushers report send outcomes to them.
func (q *SenderQueue) ConcurrencyLimiters() []limiter.ConcurrencyLimiter {
	q.lock.Lock()
	defer q.lock.Unlock()
	ls := make([]limiter.ConcurrencyLimiter, len(q.opts.concurrencyLimiters))
	copy(ls, q.opts.concurrencyLimiters)
	return ls
}

// IsValidToPush is a liveness signal, it does not depend on the fill level.
func (q *SenderQueue) IsValidToPush() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.validToPush
}

// Invalidate makes every later Push fail. Queued items can still be fetched and removed.
func (q *SenderQueue) Invalidate() {
	q.setValidToPush(false)
}

func (q *SenderQueue) setValidToPush(v bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.validToPush = v
	flag := 0.0
	if v {
		flag = 1
	}
	validToPushFlag.WithLabelValues(q.labels()...).Set(flag)
}

// reconfigure applies opts on top of the current options.
func (q *SenderQueue) reconfigure(opts ...Option) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	o := *q.opts
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return err
		}
	}
	q.opts = &o
	return nil
}
