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

// Package generator contains an in memory producer which pushes synthetic payloads into a sender queue. It is used
// for load testing the queue, its limiters and the flusher without a real input.
package generator

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/feedback"
	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/pipeline"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

// payload is the body of a generated item.
type payload struct {
	ID        string `json:"id"`
	Value     uint64 `json:"value"`
	Padding   []byte `json:"padding,omitempty"`
	CreatedTS int64  `json:"createdts"`
}

type options struct {
	// interval between two batches
	interval time.Duration
	// batchSize is the number of items pushed per tick
	batchSize int
	// payloadSize is the length of the padding carried by each item
	payloadSize int
	logger      *zap.SugaredLogger
}

type Option func(*options)

// WithInterval sets the tick interval
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// WithBatchSize sets the number of items per tick
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithPayloadSize sets the padding length of each item
func WithPayloadSize(n int) Option {
	return func(o *options) {
		o.payloadSize = n
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// MemGen pushes a batch of generated items into a sender queue on every tick. While the queue is congested it
// stops and waits for the queue feedback.
type MemGen struct {
	name     string
	q        *queue.SenderQueue
	holder   *pipeline.Holder
	notifier *feedback.Notifier
	seq      *atomic.Uint64
	padding  []byte
	ctx      context.Context
	cancelFn context.CancelFunc
	opts     options
}

// NewMemGen returns a generator pushing into q. notifier must be the feedback registered on q.
func NewMemGen(name string, q *queue.SenderQueue, holder *pipeline.Holder, notifier *feedback.Notifier, opts ...Option) *MemGen {
	o := options{
		interval:  100 * time.Millisecond,
		batchSize: 10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger()
	}
	o.logger = o.logger.With(zap.String("generator", name), zap.String("queue", string(q.Key())))
	ctx, cancel := context.WithCancel(context.Background())
	padding := make([]byte, o.payloadSize)
	for i := range padding {
		padding[i] = byte('a' + i%26)
	}
	return &MemGen{
		name:     name,
		q:        q,
		holder:   holder,
		notifier: notifier,
		seq:      atomic.NewUint64(0),
		padding:  padding,
		ctx:      logging.WithLogger(ctx, o.logger),
		cancelFn: cancel,
		opts:     o,
	}
}

// Start starts generating. The returned channel is closed once the generator stopped, either by Stop or because
// the queue no longer accepts items.
func (mg *MemGen) Start() <-chan struct{} {
	log := logging.FromContext(mg.ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		log.Info("Starting generator...")
		ticker := time.NewTicker(mg.opts.interval)
		defer ticker.Stop()
		for {
			select {
			case <-mg.ctx.Done():
				log.Info("Generator stopped")
				return
			case <-ticker.C:
			}
			if err := mg.waitUncongested(); err != nil {
				log.Info("Generator stopped while waiting for feedback")
				return
			}
			if !mg.generate() {
				log.Warn("Sender queue no longer accepts items, stopping generator")
				return
			}
		}
	}()
	return stopped
}

// Stop stops generating.
func (mg *MemGen) Stop() {
	mg.cancelFn()
}

// waitUncongested blocks while the queue is above its high watermark.
func (mg *MemGen) waitUncongested() error {
	for mg.q.Congested() {
		congestedWaitCount.With(mg.labels()).Inc()
		// the feedback may race with the congestion check, re-check at least once per interval
		ctx, cancel := context.WithTimeout(mg.ctx, mg.opts.interval)
		err := mg.notifier.Wait(ctx)
		cancel()
		if mg.ctx.Err() != nil {
			return mg.ctx.Err()
		}
		if err == nil {
			mg.opts.logger.Debug("Resumed on feedback")
		}
	}
	return nil
}

func (mg *MemGen) labels() map[string]string {
	return map[string]string{metrics.LabelComponent: mg.name, metrics.LabelQueueKey: string(mg.q.Key())}
}

// generate pushes one batch, it returns false once the queue rejects an item.
func (mg *MemGen) generate() bool {
	tickgenSourceCount.With(mg.labels()).Inc()
	p := mg.holder.Current()
	for i := 0; i < mg.opts.batchSize; i++ {
		b, err := json.Marshal(payload{ID: uuid.NewString(), Value: mg.seq.Inc(), Padding: mg.padding, CreatedTS: time.Now().UnixNano()})
		if err != nil {
			mg.opts.logger.Errorw("Failed to marshal payload", zap.Error(err))
			continue
		}
		item := queue.NewItem(b, -1)
		item.AttachPipeline(p)
		if !mg.q.Push(item) {
			return false
		}
		tickgenSourceReadCount.With(mg.labels()).Inc()
	}
	return true
}
