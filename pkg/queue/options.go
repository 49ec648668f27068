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
	"time"

	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/limiter"
)

type options struct {
	// flusherName labels metrics with the flusher draining the queue
	flusherName string
	// rateLimiter is consulted first when items are fetched with a limit
	rateLimiter limiter.RateLimiter
	// concurrencyLimiters are consulted in order after the rate limiter
	concurrencyLimiters []limiter.ConcurrencyLimiter
	// feedback is called once each time the size drops back below the high watermark
	feedback func()
	// clock stamps enqueue times
	clock  func() time.Time
	logger *zap.SugaredLogger
}

type Option func(*options) error

// WithFlusherName sets the flusher name used in metric labels
func WithFlusherName(name string) Option {
	return func(o *options) error {
		o.flusherName = name
		return nil
	}
}

// WithRateLimiter sets the rate limiter, nil removes it
func WithRateLimiter(l limiter.RateLimiter) Option {
	return func(o *options) error {
		o.rateLimiter = l
		return nil
	}
}

// WithConcurrencyLimiters replaces the concurrency limiters, they are consulted in the given order
func WithConcurrencyLimiters(ls ...limiter.ConcurrencyLimiter) Option {
	return func(o *options) error {
		o.concurrencyLimiters = make([]limiter.ConcurrencyLimiter, 0, len(ls))
		for _, l := range ls {
			if l != nil {
				o.concurrencyLimiters = append(o.concurrencyLimiters, l)
			}
		}
		return nil
	}
}

// WithFeedback sets the callback invoked when producers may resume. It runs on the goroutine calling
// Remove, after the queue lock is released, and must not block.
func WithFeedback(f func()) Option {
	return func(o *options) error {
		o.feedback = f
		return nil
	}
}

// WithClock overrides time.Now
func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		o.clock = clock
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}
