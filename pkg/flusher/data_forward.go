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
Package flusher drains the sender queues into a sink. A flusher fetches the items the admission gate lets through,
sends them concurrently with retries and frees their slots once the send attempt is over, successful or not.
*/
package flusher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/bilosikia/loongcollector/pkg/limiter"
	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
	"github.com/bilosikia/loongcollector/pkg/sinks"
)

// DataForward forwards the items of the sender queues to a sink.
type DataForward struct {
	ctx context.Context
	// cancelFn cancels our new context, our cancellation is little more complex and needs to be well orchestrated, hence
	// we need something more than a cancel().
	cancelFn context.CancelFunc
	// sendCtx is handed to the sink and only cancelled by ForceStop, so a graceful stop lets sends in flight finish.
	sendCtx      context.Context
	sendCancelFn context.CancelFunc
	manager      *queue.Manager
	sink         sinks.Sink
	opts         options
	Shutdown
}

// NewDataForward creates a new flusher draining the queues of manager into sink.
func NewDataForward(manager *queue.Manager, sink sinks.Sink, opts ...Option) (*DataForward, error) {
	options := DefaultOptions()
	for _, o := range opts {
		if err := o(options); err != nil {
			return nil, err
		}
	}
	// creating a context here which is managed by the forwarder's lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	sendCtx, sendCancel := context.WithCancel(context.Background())
	options.logger = options.logger.With(zap.String("flusher", options.name), zap.String("sink", sink.GetName()))

	var df = DataForward{
		ctx:          ctx,
		cancelFn:     cancel,
		sendCtx:      sendCtx,
		sendCancelFn: sendCancel,
		manager:      manager,
		sink:         sink,
		Shutdown: Shutdown{
			rwLock: new(sync.RWMutex),
		},
		opts: *options,
	}

	// Add logger from parent ctx to child context.
	df.ctx = logging.WithLogger(ctx, options.logger)
	df.sendCtx = logging.WithLogger(sendCtx, options.logger)

	return &df, nil
}

func (df *DataForward) labels() map[string]string {
	return map[string]string{metrics.LabelFlusher: df.opts.name, metrics.LabelSink: df.sink.GetName()}
}

// Start starts fetching from the sender queues and sending to the sink. Call `Stop` to stop.
func (df *DataForward) Start() <-chan struct{} {
	log := logging.FromContext(df.ctx)
	stopped := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		log.Info("Starting flusher...")
		defer wg.Done()
		for {
			select {
			case <-df.ctx.Done():
				if ok, _ := df.IsShuttingDown(); ok {
					df.drain()
					log.Infow("Shutting down...", zap.String("shutdown", df.Shutdown.String()))
					return
				}
			default:
			}
			// keep doing what you are good at
			df.forwardAChunk(df.ctx)
		}
	}()

	go func() {
		wg.Wait()
		if err := df.sink.Close(); err != nil {
			log.Errorw("Failed to close sink, shutdown anyways...", zap.Error(err))
		} else {
			log.Infow("Closed sink", zap.String("sink", df.sink.GetName()))
		}
		df.sendCancelFn()
		close(stopped)
	}()

	return stopped
}

// forwardAChunk fetches one batch from every queue and sends it, or sleeps when nothing is available.
func (df *DataForward) forwardAChunk(ctx context.Context) {
	refs := df.manager.GetAvailableItems(df.opts.batchSize)
	if len(refs) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(df.opts.idleInterval):
		}
		return
	}
	df.flushAll(refs)
}

// drain stops every queue from accepting items and flushes what they hold, unless a force stop is requested.
func (df *DataForward) drain() {
	df.manager.InvalidateAll()
	for !df.manager.IsAllEmpty() {
		if df.isForced() {
			df.opts.logger.Warn("Force stopped, items left in the sender queues are discarded")
			return
		}
		refs := df.manager.GetAvailableItems(-1)
		if len(refs) == 0 {
			// the remaining items are held by another flusher
			time.Sleep(df.opts.idleInterval)
			continue
		}
		df.flushAll(refs)
	}
	df.opts.logger.Info("Sender queues drained")
}

// flushAll sends refs through a pool of workers and returns once every item has been removed from its queue.
func (df *DataForward) flushAll(refs []queue.Ref) {
	start := time.Now()
	readItemsCount.With(df.labels()).Add(float64(len(refs)))
	refCh := make(chan queue.Ref)
	var wg sync.WaitGroup
	for i := 0; i < df.opts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range refCh {
				df.flush(ref)
			}
		}()
	}
	for _, ref := range refs {
		refCh <- ref
	}
	// let the go routines know that there is no more work
	close(refCh)
	wg.Wait()
	df.opts.logger.Debugw("Flushed a chunk", zap.Int("items", len(refs)), zap.Int("concurrency", df.opts.workers), zap.Duration("took", time.Since(start)))
	forwardAChunkProcessingTime.With(df.labels()).Observe(float64(time.Since(start).Microseconds()))
}

// flush sends one item and removes it from its queue. Items which still fail after the last retry are dropped.
func (df *DataForward) flush(ref queue.Ref) {
	item := ref.Item
	var limiters []limiter.ConcurrencyLimiter
	if q, err := df.manager.GetQueue(item.Key); err == nil {
		limiters = q.ConcurrencyLimiters()
	}
	err := df.send(item, limiters)
	// items fetched by a drain never took an in-flight slot
	if ref.Admitted() {
		for _, l := range limiters {
			l.OnSendDone()
		}
	}
	if err != nil {
		dropItemsCount.With(df.labels()).Inc()
		dropBytesCount.With(df.labels()).Add(float64(item.Size()))
		df.opts.logger.Errorw("Dropping item", zap.Error(err), zap.String("queue", string(item.Key)), zap.Int("tryCount", item.TryCount))
	} else {
		writeItemsCount.With(df.labels()).Inc()
		writeBytesCount.With(df.labels()).Add(float64(item.Size()))
	}
	if !df.manager.Remove(ref) {
		platformError.With(df.labels()).Inc()
		df.opts.logger.Errorw("Failed to remove item from sender queue", zap.String("queue", string(item.Key)))
	}
}

// send is a blocking call until the item is delivered, the retries are exhausted or a shutdown has been initiated
// while we are stuck retrying.
func (df *DataForward) send(item *queue.Item, limiters []limiter.ConcurrencyLimiter) error {
	var lastErr error
	err := wait.ExponentialBackoff(df.opts.retryBackoff, func() (done bool, err error) {
		item.TryCount++
		item.LastSendTime = time.Now()
		lastErr = df.sink.Send(df.sendCtx, item)
		if lastErr == nil {
			for _, l := range limiters {
				l.OnSuccess()
			}
			return true, nil
		}
		for _, l := range limiters {
			l.OnFail()
		}
		writeItemsError.With(df.labels()).Inc()
		select {
		case <-df.sendCtx.Done():
			// no point in retrying after we have been asked to stop.
			return false, df.sendCtx.Err()
		default:
		}
		// a shutdown can break the retry loop
		if ok, _ := df.IsShuttingDown(); ok {
			return false, fmt.Errorf("stop called while retrying a failed send")
		}
		df.opts.logger.Warnw("Failed to send item, retrying", zap.Error(lastErr), zap.String("queue", string(item.Key)), zap.Int("tryCount", item.TryCount))
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed to send after %d attempts (%s), %w", item.TryCount, err, lastErr)
	}
	return nil
}
