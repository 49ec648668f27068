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
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/pipeline"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

// Manager owns the sender queues of a process. It is constructed once by the application and injected into
// producers and flushers.
type Manager struct {
	lock    sync.RWMutex
	queues  map[Key]*SenderQueue
	keys    []Key
	deleted map[Key]struct{}
	cursor  *atomic.Uint64
	logger  *zap.SugaredLogger
}

type ManagerOption func(*Manager)

// WithManagerLogger sets the logger handed to the queues the manager creates.
func WithManagerLogger(l *zap.SugaredLogger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		queues:  make(map[Key]*SenderQueue),
		deleted: make(map[Key]struct{}),
		cursor:  atomic.NewUint64(0),
	}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = logging.NewLogger()
	}
	return m
}

// CreateOrUpdateQueue creates the queue for key, or applies opts to the existing one. An existing queue keeps
// its capacity and watermarks, and is made valid to push again if it was pending deletion.
func (m *Manager) CreateOrUpdateQueue(key Key, capacity, low, high int, opts ...Option) (*SenderQueue, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if q, ok := m.queues[key]; ok {
		if q.Capacity() != capacity || q.wm.low != low || q.wm.high != high {
			m.logger.Warnw("Sender queue dimensions cannot change in place, keeping the existing ones",
				zap.String("queue", string(key)), zap.Int("capacity", q.Capacity()), zap.Int("requestedCapacity", capacity))
		}
		if err := q.reconfigure(opts...); err != nil {
			return nil, err
		}
		if _, ok := m.deleted[key]; ok {
			delete(m.deleted, key)
			q.setValidToPush(true)
		}
		return q, nil
	}
	q, err := NewSenderQueue(key, capacity, low, high, append([]Option{WithLogger(m.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	m.queues[key] = q
	m.keys = append(m.keys, key)
	m.logger.Infow("Created sender queue", zap.String("queue", string(key)), zap.Int("capacity", capacity), zap.Int("low", low), zap.Int("high", high))
	return q, nil
}

// GetQueue returns the queue for key.
func (m *Manager) GetQueue(key Key) (*SenderQueue, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	q, ok := m.queues[key]
	if !ok {
		return nil, QueueNotFoundErr{Key: key}
	}
	return q, nil
}

// DeleteQueue invalidates the queue for key. The queue is dropped once it is empty, see ClearUnusedQueues.
func (m *Manager) DeleteQueue(key Key) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	q, ok := m.queues[key]
	if !ok {
		return QueueNotFoundErr{Key: key}
	}
	q.Invalidate()
	m.deleted[key] = struct{}{}
	if q.Empty() {
		m.dropLocked(key)
	}
	return nil
}

// ClearUnusedQueues drops deleted queues which have been drained and returns their keys.
func (m *Manager) ClearUnusedQueues() []Key {
	m.lock.Lock()
	defer m.lock.Unlock()
	var cleared []Key
	for key := range m.deleted {
		if m.queues[key].Empty() {
			m.dropLocked(key)
			cleared = append(cleared, key)
		}
	}
	return cleared
}

func (m *Manager) dropLocked(key Key) {
	delete(m.queues, key)
	delete(m.deleted, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	m.logger.Infow("Dropped sender queue", zap.String("queue", string(key)))
}

// snapshot returns the queues starting at the round robin cursor.
func (m *Manager) snapshot() []*SenderQueue {
	m.lock.RLock()
	defer m.lock.RUnlock()
	n := len(m.keys)
	if n == 0 {
		return nil
	}
	start := int(m.cursor.Inc() % uint64(n))
	qs := make([]*SenderQueue, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, m.queues[m.keys[(start+i)%n]])
	}
	return qs
}

// GetAvailableItems fetches from every queue in turn, starting from a different queue each call so that no
// queue is always served first. limit applies to each queue, a negative limit drains every idle item.
func (m *Manager) GetAvailableItems(limit int) []Ref {
	var refs []Ref
	for _, q := range m.snapshot() {
		refs = append(refs, q.GetAvailableItems(limit)...)
	}
	return refs
}

// Remove routes ref to the queue the item was pushed into.
func (m *Manager) Remove(ref Ref) bool {
	if ref.Item == nil {
		return false
	}
	q, err := m.GetQueue(ref.Item.Key)
	if err != nil {
		return false
	}
	return q.Remove(ref)
}

// SetPipelineForItems backfills p into the items of the queue for key.
func (m *Manager) SetPipelineForItems(key Key, p *pipeline.Pipeline) (int, error) {
	q, err := m.GetQueue(key)
	if err != nil {
		return 0, err
	}
	return q.SetPipelineForItems(p), nil
}

// InvalidateAll stops every queue from accepting pushes, used on shutdown.
func (m *Manager) InvalidateAll() {
	for _, q := range m.snapshot() {
		q.Invalidate()
	}
}

// IsAllEmpty is true when no queue holds an item.
func (m *Manager) IsAllEmpty() bool {
	for _, q := range m.snapshot() {
		if !q.Empty() {
			return false
		}
	}
	return true
}

// Keys returns the keys of the live queues in creation order.
func (m *Manager) Keys() []Key {
	m.lock.RLock()
	defer m.lock.RUnlock()
	keys := make([]Key, len(m.keys))
	copy(keys, m.keys)
	return keys
}
