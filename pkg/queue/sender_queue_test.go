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

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bilosikia/loongcollector/pkg/pipeline"
)

type fakeRateLimiter struct {
	valid  bool
	popped []int64
}

func (f *fakeRateLimiter) IsValidToPop() bool {
	return f.valid
}

func (f *fakeRateLimiter) PostPop(size int64) {
	f.popped = append(f.popped, size)
}

type fakeConcurrencyLimiter struct {
	name   string
	budget int
	popped int
}

func (f *fakeConcurrencyLimiter) Name() string       { return f.name }
func (f *fakeConcurrencyLimiter) IsValidToPop() bool { return f.popped < f.budget }
func (f *fakeConcurrencyLimiter) PostPop()           { f.popped++ }
func (f *fakeConcurrencyLimiter) OnSendDone()        {}
func (f *fakeConcurrencyLimiter) OnSuccess()         {}
func (f *fakeConcurrencyLimiter) OnFail()            {}

func newTestQueue(t *testing.T, key string, capacity, low, high int, opts ...Option) *SenderQueue {
	t.Helper()
	q, err := NewSenderQueue(Key(key), capacity, low, high, opts...)
	require.NoError(t, err)
	return q
}

func pushN(t *testing.T, q *SenderQueue, n int) []*Item {
	t.Helper()
	items := make([]*Item, 0, n)
	for i := 0; i < n; i++ {
		item := NewItem([]byte(fmt.Sprintf("item-%d", i)), -1)
		require.True(t, q.Push(item))
		items = append(items, item)
	}
	return items
}

func refItems(refs []Ref) []*Item {
	items := make([]*Item, 0, len(refs))
	for _, r := range refs {
		items = append(items, r.Item)
	}
	return items
}

func TestNewSenderQueue_InvalidArgs(t *testing.T) {
	tests := []struct {
		capacity, low, high int
	}{
		{0, 0, 0},
		{4, 2, 2},
		{4, 3, 1},
		{4, -1, 2},
		{4, 1, 5},
	}
	for _, tt := range tests {
		_, err := NewSenderQueue("invalid", tt.capacity, tt.low, tt.high)
		assert.Error(t, err)
		assert.ErrorAs(t, err, &InvalidArgsErr{})
	}
	q, err := NewSenderQueue("valid", 4, 0, 4)
	assert.NoError(t, err)
	assert.NotEmpty(t, q.String())
	assert.Equal(t, Key("valid"), q.Key())
	assert.Equal(t, 4, q.Capacity())
}

func TestSenderQueue_OverflowAndRecovery(t *testing.T) {
	q := newTestQueue(t, "scenario-a", 2, 0, 1)
	a := NewItem([]byte("a"), -1)
	b := NewItem([]byte("b"), -1)
	c := NewItem([]byte("c"), -1)

	assert.True(t, q.Push(a))
	assert.True(t, q.Push(b))
	assert.Equal(t, 2, q.Size())
	assert.True(t, q.Full())
	assert.Equal(t, StateFull, q.State())

	assert.True(t, q.Push(c))
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 1, q.OverflowSize())

	refs := q.GetAvailableItems(-1)
	assert.Equal(t, []*Item{a, b}, refItems(refs))
	assert.Equal(t, StatusSending, a.Status())
	assert.Equal(t, StatusIdle, c.Status())

	assert.True(t, q.Remove(refs[0]))
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 0, q.OverflowSize())

	// c took the freed capacity and can be fetched now
	refs2 := q.GetAvailableItems(-1)
	assert.Equal(t, []*Item{c}, refItems(refs2))
	assert.Equal(t, Key("scenario-a"), c.Key)
	assert.False(t, c.EnqueueTime().IsZero())
}

func TestSenderQueue_FeedbackOnRemove(t *testing.T) {
	fired := atomic.NewInt32(0)
	q := newTestQueue(t, "scenario-b", 1, 0, 1, WithFeedback(func() { fired.Inc() }))
	a := NewItem([]byte("a"), -1)
	assert.True(t, q.Push(a))
	assert.True(t, q.Congested())

	refs := q.GetAvailableItems(-1)
	require.Len(t, refs, 1)
	assert.Equal(t, StatusSending, a.Status())

	assert.True(t, q.Remove(refs[0]))
	assert.Equal(t, 0, q.Size())
	assert.True(t, q.Empty())
	assert.Equal(t, StateEmpty, q.State())
	assert.False(t, q.Congested())
	assert.Equal(t, int32(1), fired.Load())

	// removing twice fails and changes nothing
	assert.False(t, q.Remove(refs[0]))
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, int32(1), fired.Load())
}

func TestSenderQueue_FeedbackOnlyOnDownwardCrossing(t *testing.T) {
	fired := atomic.NewInt32(0)
	q := newTestQueue(t, "feedback-crossing", 2, 0, 2, WithFeedback(func() { fired.Inc() }))
	pushN(t, q, 5)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 3, q.OverflowSize())

	// every remove is refilled from the overflow buffer, the size never drops
	for i := 0; i < 3; i++ {
		refs := q.GetAvailableItems(1)
		require.Len(t, refs, 1)
		assert.True(t, q.Remove(refs[0]))
		assert.Equal(t, 2, q.Size())
		assert.Equal(t, int32(0), fired.Load())
	}

	refs := q.GetAvailableItems(-1)
	require.Len(t, refs, 2)
	assert.True(t, q.Remove(refs[0]))
	assert.Equal(t, int32(1), fired.Load())
	assert.True(t, q.Remove(refs[1]))
	assert.Equal(t, int32(1), fired.Load())

	// a new congestion cycle fires again
	pushN(t, q, 2)
	refs = q.GetAvailableItems(-1)
	assert.True(t, q.Remove(refs[0]))
	assert.Equal(t, int32(2), fired.Load())
}

func TestSenderQueue_RateLimiterRejects(t *testing.T) {
	rl := &fakeRateLimiter{valid: false}
	cl := &fakeConcurrencyLimiter{name: "region", budget: 10}
	q := newTestQueue(t, "scenario-c", 4, 0, 3, WithRateLimiter(rl), WithConcurrencyLimiters(cl))
	items := pushN(t, q, 3)

	refs := q.GetAvailableItems(5)
	assert.Empty(t, refs)
	for _, item := range items {
		assert.Equal(t, StatusIdle, item.Status())
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(fetchRejectedByRateLimiterCount.WithLabelValues("scenario-c", "")))
	assert.Empty(t, rl.popped)
	assert.Equal(t, 0, cl.popped)
}

func TestSenderQueue_ConcurrencyLimitersInOrder(t *testing.T) {
	rl := &fakeRateLimiter{valid: true}
	first := &fakeConcurrencyLimiter{name: "project", budget: 10}
	second := &fakeConcurrencyLimiter{name: "logstore", budget: 2}
	q := newTestQueue(t, "concurrency-order", 8, 0, 4, WithRateLimiter(rl), WithConcurrencyLimiters(first, second))
	items := pushN(t, q, 5)

	refs := q.GetAvailableItems(10)
	assert.Equal(t, items[:2], refItems(refs))
	assert.Equal(t, 2, first.popped)
	assert.Equal(t, 2, second.popped)
	assert.Equal(t, []int64{items[0].RawSize, items[1].RawSize}, rl.popped)
	assert.Equal(t, float64(1), testutil.ToFloat64(fetchRejectedByConcurrencyLimiterCount.WithLabelValues("concurrency-order", "", "logstore")))
	assert.Equal(t, float64(0), testutil.ToFloat64(fetchRejectedByConcurrencyLimiterCount.WithLabelValues("concurrency-order", "", "project")))
	for _, item := range items[2:] {
		assert.Equal(t, StatusIdle, item.Status())
	}
}

func TestSenderQueue_BoundedLimit(t *testing.T) {
	rl := &fakeRateLimiter{valid: true}
	q := newTestQueue(t, "bounded-limit", 8, 0, 4, WithRateLimiter(rl))
	items := pushN(t, q, 5)

	assert.Empty(t, q.GetAvailableItems(0))
	assert.Equal(t, float64(1), testutil.ToFloat64(validFetchCount.WithLabelValues("bounded-limit", "")))

	refs := q.GetAvailableItems(2)
	assert.Equal(t, items[:2], refItems(refs))
	// sending items are skipped, the next fetch continues with idle ones
	refs = q.GetAvailableItems(2)
	assert.Equal(t, items[2:4], refItems(refs))
	refs = q.GetAvailableItems(-1)
	assert.Equal(t, items[4:], refItems(refs))
	assert.Empty(t, q.GetAvailableItems(-1))
	assert.Len(t, rl.popped, 4)
	assert.Equal(t, float64(5), testutil.ToFloat64(fetchedItemsCount.WithLabelValues("bounded-limit", "")))
}

func TestSenderQueue_RemoveMisuse(t *testing.T) {
	q := newTestQueue(t, "remove-misuse", 2, 0, 1)
	other := newTestQueue(t, "remove-misuse-other", 2, 0, 1)
	pushN(t, q, 1)
	pushN(t, other, 1)

	assert.False(t, q.Remove(Ref{}))
	// never handed out
	assert.False(t, q.Remove(Ref{Item: NewItem(nil, -1)}))

	refs := other.GetAvailableItems(-1)
	require.Len(t, refs, 1)
	// a ref of another queue points at a slot holding a different item
	assert.False(t, q.Remove(refs[0]))
	assert.Equal(t, 1, q.Size())
	assert.True(t, other.Remove(refs[0]))
}

func TestSenderQueue_StaleRefAfterSlotReuse(t *testing.T) {
	q := newTestQueue(t, "stale-ref", 1, 0, 1)
	pushN(t, q, 1)
	refs := q.GetAvailableItems(-1)
	require.True(t, q.Remove(refs[0]))

	pushN(t, q, 1)
	fresh := q.GetAvailableItems(-1)
	require.Len(t, fresh, 1)
	assert.False(t, q.Remove(refs[0]))
	assert.Equal(t, 1, q.Size())
	assert.True(t, q.Remove(fresh[0]))
}

func TestSenderQueue_PushAgainAfterRemove(t *testing.T) {
	q := newTestQueue(t, "push-again", 2, 0, 1)
	other := newTestQueue(t, "push-again-other", 2, 0, 1)
	item := NewItem([]byte("retry"), -1)
	require.True(t, q.Push(item))
	// an item lives in one slot of one queue at a time
	assert.False(t, q.Push(item))
	assert.False(t, other.Push(item))
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, 0, other.Size())

	refs := q.GetAvailableItems(-1)
	require.Len(t, refs, 1)
	// handed out but not removed yet
	assert.False(t, q.Push(item))
	require.True(t, q.Remove(refs[0]))
	assert.Equal(t, StatusSending, item.Status())

	require.True(t, q.Push(item))
	assert.Equal(t, StatusIdle, item.Status())
	assert.Equal(t, 1, q.Size())
	refs = q.GetAvailableItems(-1)
	require.Len(t, refs, 1)
	assert.Same(t, item, refs[0].Item)
	require.True(t, q.Remove(refs[0]))
	assert.True(t, q.Empty())
}

func TestSenderQueue_RefAdmitted(t *testing.T) {
	cl := &fakeConcurrencyLimiter{name: "admitted", budget: 10}
	q := newTestQueue(t, "ref-admitted", 4, 0, 2, WithConcurrencyLimiters(cl))
	pushN(t, q, 2)

	bounded := q.GetAvailableItems(1)
	require.Len(t, bounded, 1)
	assert.True(t, bounded[0].Admitted())
	drained := q.GetAvailableItems(-1)
	require.Len(t, drained, 1)
	assert.False(t, drained[0].Admitted())
	assert.Equal(t, 1, cl.popped)
}

func TestSenderQueue_SetPipelineForItems(t *testing.T) {
	p1 := pipeline.New("p", 1)
	p2 := pipeline.New("p", 2)
	q := newTestQueue(t, "scenario-e", 2, 0, 1)

	withP1 := NewItem([]byte("1"), -1)
	withP1.AttachPipeline(p1)
	bare := NewItem([]byte("2"), -1)
	overflowWithP1 := NewItem([]byte("3"), -1)
	overflowWithP1.AttachPipeline(p1)
	overflowBare := NewItem([]byte("4"), -1)
	for _, item := range []*Item{withP1, bare, overflowWithP1, overflowBare} {
		require.True(t, q.Push(item))
	}
	require.Equal(t, 2, q.OverflowSize())

	assert.Equal(t, 2, q.SetPipelineForItems(p2))
	assert.Same(t, p1, withP1.Pipeline())
	assert.Same(t, p2, bare.Pipeline())
	assert.Same(t, p1, overflowWithP1.Pipeline())
	assert.Same(t, p2, overflowBare.Pipeline())

	// idempotent
	assert.Equal(t, 0, q.SetPipelineForItems(p2))
	assert.Equal(t, 0, q.SetPipelineForItems(nil))
}

func TestSenderQueue_Invalidate(t *testing.T) {
	q := newTestQueue(t, "invalidate", 2, 0, 1)
	pushN(t, q, 1)
	assert.True(t, q.IsValidToPush())
	q.Invalidate()
	assert.False(t, q.IsValidToPush())
	assert.False(t, q.Push(NewItem([]byte("late"), -1)))
	assert.False(t, q.Push(nil))

	// queued items can still be drained
	refs := q.GetAvailableItems(-1)
	require.Len(t, refs, 1)
	assert.True(t, q.Remove(refs[0]))
	assert.True(t, q.Empty())
}

func TestSenderQueue_EnqueueTimeAndDelay(t *testing.T) {
	now := time.Unix(1636470000, 0)
	q := newTestQueue(t, "delay", 2, 0, 1, WithClock(func() time.Time { return now }))
	item := NewItem([]byte("abc"), 10)
	require.True(t, q.Push(item))
	assert.Equal(t, now, item.EnqueueTime())
	assert.Equal(t, int64(3), item.Size())
	assert.Equal(t, int64(10), item.RawSize)

	now = now.Add(1500 * time.Millisecond)
	refs := q.GetAvailableItems(-1)
	require.True(t, q.Remove(refs[0]))
	assert.Equal(t, float64(1500), testutil.ToFloat64(totalDelayMs.WithLabelValues("delay", "")))
	assert.Equal(t, float64(3), testutil.ToFloat64(outBytesCount.WithLabelValues("delay", "")))
}

// every pushed item is handed out exactly once no matter how pushes, fetches and out of order removals
// interleave with the overflow buffer.
func TestSenderQueue_NoLoss(t *testing.T) {
	q := newTestQueue(t, "no-loss", 8, 2, 6)
	rnd := rand.New(rand.NewSource(42))
	pushed := make(map[*Item]bool)
	seen := make(map[*Item]int)
	var inFlight []Ref

	for step := 0; step < 5000; step++ {
		switch rnd.Intn(3) {
		case 0:
			item := NewItem([]byte{byte(step)}, -1)
			require.True(t, q.Push(item))
			pushed[item] = true
		case 1:
			for _, ref := range q.GetAvailableItems(rnd.Intn(4)) {
				seen[ref.Item]++
				inFlight = append(inFlight, ref)
			}
		case 2:
			if len(inFlight) == 0 {
				continue
			}
			i := rnd.Intn(len(inFlight))
			require.True(t, q.Remove(inFlight[i]))
			inFlight = append(inFlight[:i], inFlight[i+1:]...)
		}
		require.LessOrEqual(t, q.Size(), q.Capacity())
		if q.OverflowSize() > 0 {
			require.True(t, q.Full())
		}
	}
	for !q.Empty() {
		for _, ref := range q.GetAvailableItems(-1) {
			seen[ref.Item]++
			inFlight = append(inFlight, ref)
		}
		for _, ref := range inFlight {
			require.True(t, q.Remove(ref))
		}
		inFlight = inFlight[:0]
	}
	assert.Equal(t, len(pushed), len(seen))
	for item := range pushed {
		assert.Equal(t, 1, seen[item])
	}
}

func TestSenderQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := newTestQueue(t, "concurrent", 16, 4, 12)
	const total = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Push(NewItem([]byte(fmt.Sprintf("%d", i)), -1))
		}
	}()

	received := make(map[string]bool, total)
	deadline := time.Now().Add(10 * time.Second)
	for len(received) < total && time.Now().Before(deadline) {
		for _, ref := range q.GetAvailableItems(8) {
			key := string(ref.Item.Data)
			assert.False(t, received[key], "item %s handed out twice", key)
			received[key] = true
			assert.True(t, q.Remove(ref))
		}
	}
	wg.Wait()
	assert.Len(t, received, total)
	assert.True(t, q.Empty())
}
