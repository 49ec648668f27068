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
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

type options struct {
	// name labels the metrics and logs of the flusher
	name string
	// batchSize is the number of items fetched from each queue per loop
	batchSize int
	// workers sets the concurrency of sink sends
	workers int
	// idleInterval is the time.Duration to sleep when no item is available
	idleInterval time.Duration
	// retryBackoff drives the retries of a failed send, Steps is the number of attempts per item
	retryBackoff wait.Backoff
	// logger is used to pass the logger variable
	logger *zap.SugaredLogger
}

type Option func(*options) error

func DefaultOptions() *options {
	return &options{
		name:         "default",
		batchSize:    64,
		workers:      8,
		idleInterval: 10 * time.Millisecond,
		retryBackoff: wait.Backoff{
			Duration: 100 * time.Millisecond,
			Factor:   2,
			Jitter:   0.1,
			Steps:    5,
			Cap:      5 * time.Second,
		},
		logger: logging.NewLogger(),
	}
}

// WithName sets the flusher name
func WithName(name string) Option {
	return func(o *options) error {
		o.name = name
		return nil
	}
}

// WithBatchSize sets the number of items fetched from each queue per loop, -1 fetches every idle item without
// consulting the limiters
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n == 0 {
			return fmt.Errorf("batch size can not be 0")
		}
		o.batchSize = n
		return nil
	}
}

// WithWorkers sets the send concurrency
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("workers must be positive, got %d", n)
		}
		o.workers = n
		return nil
	}
}

// WithIdleInterval sets the sleep between polls of empty queues
func WithIdleInterval(d time.Duration) Option {
	return func(o *options) error {
		o.idleInterval = d
		return nil
	}
}

// WithRetryBackoff sets the retry backoff of failed sends
func WithRetryBackoff(b wait.Backoff) Option {
	return func(o *options) error {
		if b.Steps <= 0 {
			return fmt.Errorf("retry steps must be positive, got %d", b.Steps)
		}
		o.retryBackoff = b
		return nil
	}
}

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}
