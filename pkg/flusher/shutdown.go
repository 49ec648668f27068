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
	"sync"
	"time"
)

// Shutdown tracks and manages the shutdown of the flusher.
type Shutdown struct {
	startShutdown      bool
	forceShutdown      bool
	initiateTime       time.Time
	shutdownRequestCtr int
	rwLock             *sync.RWMutex
}

// IsShuttingDown returns whether we can stop processing.
func (df *DataForward) IsShuttingDown() (bool, error) {
	df.Shutdown.rwLock.RLock()
	defer df.Shutdown.rwLock.RUnlock()

	if df.Shutdown.forceShutdown || df.Shutdown.startShutdown {
		return true, nil
	}

	return false, nil
}

func (df *DataForward) isForced() bool {
	df.Shutdown.rwLock.RLock()
	defer df.Shutdown.rwLock.RUnlock()
	return df.Shutdown.forceShutdown
}

func (s *Shutdown) String() string {
	s.rwLock.RLock()
	defer s.rwLock.RUnlock()
	return fmt.Sprintf("startShutdown:%t forceShutdown:%t shutdownRequestCtr:%d initiateTime:%s",
		s.startShutdown, s.forceShutdown, s.shutdownRequestCtr, s.initiateTime)
}

// Stop stops fetching new batches. Items left in the queues are drained before Start's channel is closed.
func (df *DataForward) Stop() {
	df.Shutdown.rwLock.Lock()
	defer df.Shutdown.rwLock.Unlock()
	if df.Shutdown.initiateTime.IsZero() {
		df.Shutdown.initiateTime = time.Now()
	}
	df.Shutdown.startShutdown = true
	df.Shutdown.shutdownRequestCtr++
	// call cancel
	df.cancelFn()
}

// ForceStop sets up the force shutdown flag and aborts the sends in flight, nothing is drained.
func (df *DataForward) ForceStop() {
	df.Stop()
	df.Shutdown.rwLock.Lock()
	defer df.Shutdown.rwLock.Unlock()
	df.Shutdown.forceShutdown = true
	df.sendCancelFn()
}
