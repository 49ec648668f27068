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

	"go.uber.org/atomic"

	"github.com/bilosikia/loongcollector/pkg/pipeline"
)

// Key identifies a sender queue, usually one per flusher instance of a pipeline.
type Key string

// Status is the sending status of an item.
type Status int32

const (
	// StatusIdle items are waiting to be handed to a flusher.
	StatusIdle Status = iota
	// StatusSending items have been handed out and wait for Remove.
	StatusSending
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSending:
		return "sending"
	default:
		return "unknown"
	}
}

// Item is a send-ready payload. It is owned by the queue from Push until Remove, after which it may be pushed
// again, e.g. to retry it later.
type Item struct {
	// Data is opaque to the queue, its length is the size of the item.
	Data []byte
	// RawSize is the size before serialization and compression, charged against the rate limiter.
	RawSize int64
	// Key is set by the queue on Push.
	Key Key
	// TryCount and LastSendTime are maintained by the flusher which holds the item.
	TryCount     int
	LastSendTime time.Time

	enqueueTime time.Time
	status      atomic.Int32
	// queued is set from Push until Remove, an item lives in at most one slot.
	queued      atomic.Bool
	pipeline    atomic.Pointer[pipeline.Pipeline]
}

// NewItem returns an idle item. A negative rawSize means the raw size equals len(data).
func NewItem(data []byte, rawSize int64) *Item {
	if rawSize < 0 {
		rawSize = int64(len(data))
	}
	return &Item{
		Data:    data,
		RawSize: rawSize,
	}
}

// Size is the length of the payload.
func (i *Item) Size() int64 {
	return int64(len(i.Data))
}

// Status returns the current sending status.
func (i *Item) Status() Status {
	return Status(i.status.Load())
}

// EnqueueTime is stamped by Push.
func (i *Item) EnqueueTime() time.Time {
	return i.enqueueTime
}

// Pipeline returns the owning pipeline, nil if not attached yet.
func (i *Item) Pipeline() *pipeline.Pipeline {
	return i.pipeline.Load()
}

// PipelineName returns the name of the owning pipeline, empty if not attached yet.
func (i *Item) PipelineName() string {
	if p := i.pipeline.Load(); p != nil {
		return p.Name
	}
	return ""
}

// AttachPipeline sets the owning pipeline unless one is already attached. It reports whether p was set.
func (i *Item) AttachPipeline(p *pipeline.Pipeline) bool {
	if p == nil {
		return false
	}
	return i.pipeline.CompareAndSwap(nil, p)
}

// markSending flips an idle item to sending, it returns false if the item was not idle.
func (i *Item) markSending() bool {
	return i.status.CompareAndSwap(int32(StatusIdle), int32(StatusSending))
}
