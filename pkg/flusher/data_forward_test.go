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

package flusher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/bilosikia/loongcollector/pkg/limiter"
	"github.com/bilosikia/loongcollector/pkg/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fastRetry = wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 3}

// testSink records delivered payloads. Each payload fails failures times before it goes through, a negative
// failures fails forever.
type testSink struct {
	name     string
	failures int
	lock     sync.Mutex
	attempts map[string]int
	sent     []string
	closed   atomic.Bool
	block    bool
	entered  chan struct{}
}

func newTestSink(name string, failures int) *testSink {
	return &testSink{name: name, failures: failures, attempts: make(map[string]int), entered: make(chan struct{}, 1)}
}

func (s *testSink) GetName() string {
	return s.name
}

func (s *testSink) Send(ctx context.Context, item *queue.Item) error {
	if s.block {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	key := string(item.Data)
	s.attempts[key]++
	if s.failures < 0 || s.attempts[key] <= s.failures {
		return errors.New("sink unavailable")
	}
	s.sent = append(s.sent, key)
	return nil
}

func (s *testSink) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *testSink) sentCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.sent)
}

func pushItems(t *testing.T, q *queue.SenderQueue, n int) []*queue.Item {
	t.Helper()
	items := make([]*queue.Item, 0, n)
	for i := 0; i < n; i++ {
		item := queue.NewItem([]byte(fmt.Sprintf("%s-%d", q.Key(), i)), -1)
		require.True(t, q.Push(item))
		items = append(items, item)
	}
	return items
}

func TestDataForward_Forward(t *testing.T) {
	m := queue.NewManager()
	q, err := m.CreateOrUpdateQueue("flusher-forward", 4, 1, 3)
	require.NoError(t, err)
	sink := newTestSink("forward-sink", 0)
	f, err := NewDataForward(m, sink, WithName("forward"), WithBatchSize(2), WithWorkers(2), WithIdleInterval(time.Millisecond))
	require.NoError(t, err)
	stopped := f.Start()

	// more than the capacity, the overflow buffer takes the rest
	pushItems(t, q, 10)
	assert.Eventually(t, func() bool {
		return sink.sentCount() == 10
	}, 5*time.Second, 5*time.Millisecond)
	assert.Eventually(t, q.Empty, 5*time.Second, 5*time.Millisecond)

	f.Stop()
	<-stopped
	assert.True(t, sink.closed.Load())
	assert.Equal(t, float64(10), testutil.ToFloat64(writeItemsCount.WithLabelValues("forward", "forward-sink")))
	assert.Equal(t, float64(10), testutil.ToFloat64(readItemsCount.WithLabelValues("forward", "forward-sink")))
}

func TestDataForward_DrainDoesNotReleaseInFlight(t *testing.T) {
	shared := limiter.NewConcurrency("flusher-shared", 1, 4)
	m := queue.NewManager()
	bounded, err := m.CreateOrUpdateQueue("flusher-shared-bounded", 4, 1, 3, queue.WithConcurrencyLimiters(shared))
	require.NoError(t, err)
	drained, err := m.CreateOrUpdateQueue("flusher-shared-drained", 4, 1, 3, queue.WithConcurrencyLimiters(shared))
	require.NoError(t, err)
	pushItems(t, bounded, 1)
	pushItems(t, drained, 1)
	sink := newTestSink("shared-sink", 0)
	f, err := NewDataForward(m, sink, WithName("shared"), WithRetryBackoff(fastRetry))
	require.NoError(t, err)

	inFlight := bounded.GetAvailableItems(1)
	require.Len(t, inFlight, 1)
	assert.Equal(t, int64(1), shared.InFlight())

	f.flushAll(drained.GetAvailableItems(-1))
	assert.Equal(t, 1, sink.sentCount())
	assert.Equal(t, int64(1), shared.InFlight())

	f.flushAll(inFlight)
	assert.Equal(t, 2, sink.sentCount())
	assert.Equal(t, int64(0), shared.InFlight())
	assert.True(t, m.IsAllEmpty())
}

func TestDataForward_RetryThenSucceed(t *testing.T) {
	m := queue.NewManager()
	cl := limiter.NewConcurrency("flusher-retry", 1, 4)
	q, err := m.CreateOrUpdateQueue("flusher-retry", 4, 1, 3, queue.WithConcurrencyLimiters(cl))
	require.NoError(t, err)
	items := pushItems(t, q, 1)
	sink := newTestSink("retry-sink", 2)
	f, err := NewDataForward(m, sink, WithName("retry"), WithRetryBackoff(fastRetry))
	require.NoError(t, err)

	f.flushAll(q.GetAvailableItems(1))
	assert.Equal(t, 3, items[0].TryCount)
	assert.False(t, items[0].LastSendTime.IsZero())
	assert.Equal(t, 1, sink.sentCount())
	assert.True(t, q.Empty())
	assert.Equal(t, int64(0), cl.InFlight())
	assert.Equal(t, float64(2), testutil.ToFloat64(writeItemsError.WithLabelValues("retry", "retry-sink")))
	assert.Equal(t, float64(0), testutil.ToFloat64(dropItemsCount.WithLabelValues("retry", "retry-sink")))
	f.Stop()
}

func TestDataForward_DropAfterRetries(t *testing.T) {
	m := queue.NewManager()
	q, err := m.CreateOrUpdateQueue("flusher-drop", 4, 1, 3)
	require.NoError(t, err)
	items := pushItems(t, q, 2)
	sink := newTestSink("drop-sink", -1)
	f, err := NewDataForward(m, sink, WithName("drop"), WithRetryBackoff(fastRetry))
	require.NoError(t, err)

	f.flushAll(q.GetAvailableItems(-1))
	for _, item := range items {
		assert.Equal(t, fastRetry.Steps, item.TryCount)
	}
	assert.True(t, q.Empty())
	assert.Equal(t, 0, sink.sentCount())
	assert.Equal(t, float64(2), testutil.ToFloat64(dropItemsCount.WithLabelValues("drop", "drop-sink")))
	assert.Equal(t, float64(6), testutil.ToFloat64(writeItemsError.WithLabelValues("drop", "drop-sink")))
	f.Stop()
}

func TestNewDataForward_InvalidOptions(t *testing.T) {
	m := queue.NewManager()
	sink := newTestSink("invalid", 0)
	_, err := NewDataForward(m, sink, WithBatchSize(0))
	assert.Error(t, err)
	_, err = NewDataForward(m, sink, WithWorkers(0))
	assert.Error(t, err)
	_, err = NewDataForward(m, sink, WithRetryBackoff(wait.Backoff{}))
	assert.Error(t, err)
}
