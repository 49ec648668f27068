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

// State is the fill level of a sender queue relative to its watermarks.
type State int

const (
	StateEmpty State = iota
	StateBelowLow
	StateBetweenLowHigh
	StateAboveHigh
	StateFull
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBelowLow:
		return "below-low"
	case StateBetweenLowHigh:
		return "between-low-high"
	case StateAboveHigh:
		return "above-high"
	case StateFull:
		return "full"
	default:
		return "unknown"
	}
}

// watermarks derives the state from the size only. The one bit it keeps, congested, latches when a push
// reaches the high watermark and is released by the first pop which brings the size back below it.
type watermarks struct {
	low       int
	high      int
	capacity  int
	congested bool
}

func (w *watermarks) stateOf(size int) State {
	switch {
	case size == 0:
		return StateEmpty
	case size >= w.capacity:
		return StateFull
	case size >= w.high:
		return StateAboveHigh
	case size <= w.low:
		return StateBelowLow
	default:
		return StateBetweenLowHigh
	}
}

func (w *watermarks) afterPush(size int) {
	if !w.congested && size >= w.high {
		w.congested = true
	}
}

// afterPop reports whether the size crossed the high watermark downwards, which is when producers get
// their feedback.
func (w *watermarks) afterPop(size int) bool {
	if w.congested && size < w.high {
		w.congested = false
		return true
	}
	return false
}
