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

package limiter

import (
	"sync"

	"go.uber.org/atomic"
)

// Concurrency is an AIMD limiter on the number of in-flight items. The limit grows additively on every
// successful send and shrinks multiplicatively on every failed one, always staying within [min, max].
type Concurrency struct {
	name     string
	inFlight *atomic.Int64

	lock     sync.RWMutex
	limit    float64
	min      float64
	max      float64
	increase float64
	decrease float64
}

var _ ConcurrencyLimiter = (*Concurrency)(nil)

type ConcurrencyOption func(*Concurrency)

// WithIncreaseStep sets how much the limit grows after a successful send.
func WithIncreaseStep(step float64) ConcurrencyOption {
	return func(c *Concurrency) {
		c.increase = step
	}
}

// WithDecreaseRatio sets the factor applied to the limit after a failed send, it must be in (0, 1).
func WithDecreaseRatio(ratio float64) ConcurrencyOption {
	return func(c *Concurrency) {
		c.decrease = ratio
	}
}

// WithInitialLimit sets the starting limit, it defaults to max.
func WithInitialLimit(limit int) ConcurrencyOption {
	return func(c *Concurrency) {
		c.limit = float64(limit)
	}
}

// NewConcurrency returns a limiter bounded by [minLimit, maxLimit]. minLimit is raised to 1 so that a
// limiter can always make progress.
func NewConcurrency(name string, minLimit, maxLimit int, opts ...ConcurrencyOption) *Concurrency {
	if minLimit < 1 {
		minLimit = 1
	}
	if maxLimit < minLimit {
		maxLimit = minLimit
	}
	c := &Concurrency{
		name:     name,
		inFlight: atomic.NewInt64(0),
		limit:    float64(maxLimit),
		min:      float64(minLimit),
		max:      float64(maxLimit),
		increase: 1,
		decrease: 0.5,
	}
	for _, o := range opts {
		o(c)
	}
	if c.decrease <= 0 || c.decrease >= 1 {
		c.decrease = 0.5
	}
	c.limit = c.clamp(c.limit)
	concurrencyLimit.WithLabelValues(c.name).Set(c.limit)
	return c
}

func (c *Concurrency) Name() string {
	return c.name
}

func (c *Concurrency) IsValidToPop() bool {
	return float64(c.inFlight.Load()) < c.CurrentLimit()
}

func (c *Concurrency) PostPop() {
	inFlightGauge.WithLabelValues(c.name).Set(float64(c.inFlight.Inc()))
}

func (c *Concurrency) OnSendDone() {
	for {
		cur := c.inFlight.Load()
		if cur <= 0 {
			return
		}
		if c.inFlight.CompareAndSwap(cur, cur-1) {
			inFlightGauge.WithLabelValues(c.name).Set(float64(cur - 1))
			return
		}
	}
}

func (c *Concurrency) OnSuccess() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.limit = c.clamp(c.limit + c.increase)
	concurrencyLimit.WithLabelValues(c.name).Set(c.limit)
}

func (c *Concurrency) OnFail() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.limit = c.clamp(c.limit * c.decrease)
	concurrencyLimit.WithLabelValues(c.name).Set(c.limit)
}

// CurrentLimit returns the current limit, truncated to whole items.
func (c *Concurrency) CurrentLimit() float64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return float64(int64(c.limit))
}

// InFlight returns the number of items released and not yet done.
func (c *Concurrency) InFlight() int64 {
	return c.inFlight.Load()
}

func (c *Concurrency) clamp(v float64) float64 {
	if v < c.min {
		return c.min
	}
	if v > c.max {
		return c.max
	}
	return v
}
