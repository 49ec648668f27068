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
	"time"

	"golang.org/x/time/rate"
)

// Rate is a byte based token bucket. Releasing an item may push the bucket into debt, after which popping is
// rejected until the debt has been refilled. A non-positive rate disables the limiter.
type Rate struct {
	lock    sync.Mutex
	limiter *rate.Limiter
	now     func() time.Time
}

var _ RateLimiter = (*Rate)(nil)

type RateOption func(*Rate)

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) RateOption {
	return func(r *Rate) {
		r.now = now
	}
}

// NewRate returns a limiter allowing bytesPerSecond, with a burst of one second worth of bytes.
func NewRate(bytesPerSecond int64, opts ...RateOption) *Rate {
	r := &Rate{now: time.Now}
	for _, o := range opts {
		o(r)
	}
	if bytesPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
	}
	return r
}

// IsValidToPop returns true while the bucket has not run into debt.
func (r *Rate) IsValidToPop() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.limiter == nil {
		return true
	}
	return r.limiter.TokensAt(r.now()) > 0
}

// PostPop charges size bytes against the bucket.
func (r *Rate) PostPop(size int64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.limiter == nil || size <= 0 {
		return
	}
	burst := int64(r.limiter.Burst())
	now := r.now()
	// a single reservation cannot exceed the burst, charge large items in chunks
	for size > 0 {
		n := size
		if n > burst {
			n = burst
		}
		r.limiter.ReserveN(now, int(n))
		size -= n
	}
}

// SetRate changes the allowed throughput, a non-positive value disables the limiter.
func (r *Rate) SetRate(bytesPerSecond int64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if bytesPerSecond <= 0 {
		r.limiter = nil
		return
	}
	if r.limiter == nil {
		r.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
		return
	}
	now := r.now()
	r.limiter.SetLimitAt(now, rate.Limit(bytesPerSecond))
	r.limiter.SetBurstAt(now, int(bytesPerSecond))
}
