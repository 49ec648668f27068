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
Package limiter defines the admission gates consulted by a sender queue before an item is handed to a flusher.
A queue consults at most one RateLimiter followed by any number of ConcurrencyLimiter, in that fixed order.
*/
package limiter

// RateLimiter bounds the number of bytes released per unit of time.
type RateLimiter interface {
	// IsValidToPop is a read-only check whether one more item may be released now.
	IsValidToPop() bool
	// PostPop records that an item of the given raw size was released.
	PostPop(size int64)
}

// ConcurrencyLimiter bounds the number of items in flight.
type ConcurrencyLimiter interface {
	// Name is used to label rejections of this limiter.
	Name() string
	// IsValidToPop is a read-only check whether one more item may be released now.
	IsValidToPop() bool
	// PostPop records that an item was released and is now in flight.
	PostPop()
	// OnSendDone records that a released item is no longer in flight.
	OnSendDone()
	// OnSuccess and OnFail feed the outcome of a send attempt back into the limiter.
	OnSuccess()
	OnFail()
}
