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

package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/bilosikia/loongcollector"
	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/feedback"
	"github.com/bilosikia/loongcollector/pkg/flusher"
	"github.com/bilosikia/loongcollector/pkg/limiter"
	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/pipeline"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
	"github.com/bilosikia/loongcollector/pkg/sinks"
	"github.com/bilosikia/loongcollector/pkg/sources/generator"
)

const componentName = "agent"

// newSink is swapped out in tests.
var newSink = sinks.New

// Agent runs one sender queue between the generator and a flusher.
type Agent struct {
	ConfigPath string
}

// Start loads the configuration and blocks until ctx is done and the queued items were flushed.
func (a *Agent) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)
	gc, err := config.LoadConfig(a.ConfigPath, func(err error) {
		log.Errorw("Failed to reload configuration, keep the previous one", zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration, %w", err)
	}
	rt, err := newRuntime(ctx, gc.Get())
	if err != nil {
		return err
	}
	gc.OnChange(func(c *config.Config) {
		if err := rt.reload(c); err != nil {
			log.Errorw("Failed to apply reloaded configuration", zap.Error(err))
		}
	})
	return rt.run(ctx)
}

// agentRuntime holds everything built from one configuration.
type agentRuntime struct {
	conf      *config.Config
	log       *zap.SugaredLogger
	holder    *pipeline.Holder
	notifier  *feedback.Notifier
	rate      *limiter.Rate
	manager   *queue.Manager
	q         *queue.SenderQueue
	forwarder *flusher.DataForward
	gen       *generator.MemGen
}

func newRuntime(ctx context.Context, conf *config.Config) (*agentRuntime, error) {
	log := logging.FromContext(ctx)
	rt := &agentRuntime{
		conf:     conf,
		log:      log,
		holder:   pipeline.NewHolder(conf.Pipeline.Name),
		notifier: feedback.NewNotifier(),
		rate:     limiter.NewRate(conf.Limiters.RateBytesPerSecond),
		manager:  queue.NewManager(queue.WithManagerLogger(log)),
	}

	concurrency := make([]limiter.ConcurrencyLimiter, 0, len(conf.Limiters.Concurrency))
	for _, c := range conf.Limiters.Concurrency {
		var opts []limiter.ConcurrencyOption
		if c.Initial > 0 {
			opts = append(opts, limiter.WithInitialLimit(c.Initial))
		}
		if c.IncreaseStep > 0 {
			opts = append(opts, limiter.WithIncreaseStep(c.IncreaseStep))
		}
		if c.DecreaseRatio > 0 {
			opts = append(opts, limiter.WithDecreaseRatio(c.DecreaseRatio))
		}
		concurrency = append(concurrency, limiter.NewConcurrency(c.Name, c.Min, c.Max, opts...))
	}

	q, err := rt.manager.CreateOrUpdateQueue(queue.Key(conf.Queue.Key), conf.Queue.Capacity, conf.Queue.LowWatermark, conf.Queue.HighWatermark,
		queue.WithFlusherName(conf.Flusher.Name),
		queue.WithRateLimiter(rt.rate),
		queue.WithConcurrencyLimiters(concurrency...),
		queue.WithFeedback(rt.notifier.Feedback),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender queue, %w", err)
	}
	rt.q = q

	sink, err := newSink(ctx, conf.Flusher.Name, conf.Sink)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink, %w", err)
	}
	retry := conf.Flusher.Retry
	rt.forwarder, err = flusher.NewDataForward(rt.manager, sink,
		flusher.WithName(conf.Flusher.Name),
		flusher.WithBatchSize(conf.Flusher.BatchSize),
		flusher.WithWorkers(conf.Flusher.Workers),
		flusher.WithIdleInterval(conf.Flusher.IdleInterval),
		flusher.WithRetryBackoff(wait.Backoff{
			Duration: retry.Interval,
			Factor:   retry.Factor,
			Jitter:   retry.Jitter,
			Steps:    retry.Steps,
			Cap:      retry.MaxInterval,
		}),
		flusher.WithLogger(log),
	)
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("failed to create flusher, %w", err)
	}

	if g := conf.Generator; g.Enabled {
		rt.gen = generator.NewMemGen(conf.Pipeline.Name, q, rt.holder, rt.notifier,
			generator.WithInterval(g.Interval),
			generator.WithBatchSize(g.BatchSize),
			generator.WithPayloadSize(g.PayloadSize),
			generator.WithLogger(log),
		)
	}
	return rt, nil
}

// reload hands the queued items without a pipeline to the next generation and applies the new rate.
func (rt *agentRuntime) reload(c *config.Config) error {
	p := rt.holder.Reload(c.Pipeline.Name)
	rt.rate.SetRate(c.Limiters.RateBytesPerSecond)
	var errs error
	total := 0
	for _, key := range rt.manager.Keys() {
		n, err := rt.manager.SetPipelineForItems(key, p)
		errs = multierr.Append(errs, err)
		total += n
	}
	rt.log.Infow("Applied reloaded configuration", zap.String("pipeline", p.String()), zap.Int("adoptedItems", total),
		zap.Int64("rateBytesPerSecond", c.Limiters.RateBytesPerSecond))
	return errs
}

func (rt *agentRuntime) run(ctx context.Context) error {
	log := rt.log
	v := loongcollector.GetVersion()
	metrics.BuildInfo.WithLabelValues(componentName, v.Version, v.Platform).Set(1)

	if rt.conf.Metrics.Enabled {
		ms := metrics.NewMetricsServer(metrics.NewMetricsOptions(ctx, rt.conf.Metrics.Port, []metrics.HealthChecker{&queueHealth{q: rt.q}})...)
		if shutdown, err := ms.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server, error: %w", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	forwarderStopped := rt.forwarder.Start()
	var genStopped <-chan struct{}
	if rt.gen != nil {
		genStopped = rt.gen.Start()
		g.Go(func() error {
			select {
			case <-genStopped:
				if ctx.Err() == nil {
					return fmt.Errorf("generator exited unexpectedly")
				}
			case <-gctx.Done():
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("SIGTERM, exiting...")
		if rt.gen != nil {
			rt.gen.Stop()
			<-genStopped
		}
		rt.forwarder.Stop()
		timer := time.NewTimer(rt.conf.Flusher.DrainTimeout)
		defer timer.Stop()
		select {
		case <-forwarderStopped:
		case <-timer.C:
			log.Warnw("Flusher did not drain in time, forcing shutdown", zap.Duration("drainTimeout", rt.conf.Flusher.DrainTimeout))
			rt.forwarder.ForceStop()
			<-forwarderStopped
		}
		return nil
	})

	err := g.Wait()
	log.Info("Exited...")
	return err
}

// queueHealth reports unhealthy once the sender queue stops accepting items.
type queueHealth struct {
	q *queue.SenderQueue
}

func (h *queueHealth) IsHealthy(_ context.Context) error {
	if !h.q.IsValidToPush() {
		return fmt.Errorf("sender queue %q is invalidated", h.q.Key())
	}
	return nil
}
