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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bilosikia/loongcollector/pkg/metrics"
)

// readItemsCount is used to indicate the number of items fetched from the sender queues
var readItemsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "flusher",
	Name:      "read_total",
	Help:      "Total number of Items Read",
}, []string{metrics.LabelFlusher, metrics.LabelSink})

// writeItemsCount is used to indicate the number of items delivered by the sink
var writeItemsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "flusher",
	Name:      "write_total",
	Help:      "Total number of Items Written",
}, []string{metrics.LabelFlusher, metrics.LabelSink})

// writeBytesCount is to indicate the number of bytes delivered by the sink
var writeBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "flusher",
	Name:      "write_bytes_total",
	Help:      "Total number of bytes written",
}, []string{metrics.LabelFlusher, metrics.LabelSink})

// writeItemsError is used to indicate the number of failed send attempts
var writeItemsError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "flusher",
	Name:      "write_error_total",
	Help:      "Total number of Write Errors",
}, []string{metrics.LabelFlusher, metrics.LabelSink})

// dropItemsCount is used to indicate the number of items given up after the last retry
var dropItemsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "flusher",
	Name:      "drop_total",
	Help:      "Total number of Items Dropped",
}, []string{metrics.LabelFlusher, metrics.LabelSink})

// dropBytesCount is to indicate the number of bytes dropped
var dropBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "flusher",
	Name:      "drop_bytes_total",
	Help:      "Total number of Bytes Dropped",
}, []string{metrics.LabelFlusher, metrics.LabelSink})

// platformError is used to indicate the number of Internal/Platform errors
var platformError = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "flusher",
	Name:      "platform_error_total",
	Help:      "Total number of platform Errors",
}, []string{metrics.LabelFlusher, metrics.LabelSink})

// forwardAChunkProcessingTime is a histogram to Observe forwardAChunk Processing times as a whole
var forwardAChunkProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "flusher",
	Name:      "forward_chunk_processing_time",
	Help:      "Processing times of the entire forward a chunk (100 microseconds to 20 minutes)",
	Buckets:   prometheus.ExponentialBucketsRange(100, 60000000*20, 60),
}, []string{metrics.LabelFlusher, metrics.LabelSink})
