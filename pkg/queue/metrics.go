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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/bilosikia/loongcollector/pkg/metrics"
)

var queueLabels = []string{metricspkg.LabelQueueKey, metricspkg.LabelFlusher}

// inItemsCount is the number of items pushed into a sender queue
var inItemsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "in_items_total",
	Help:      "Total number of items pushed",
}, queueLabels)

var inBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "in_bytes_total",
	Help:      "Total number of payload bytes pushed",
}, queueLabels)

// outItemsCount is the number of items removed from a sender queue after a send attempt
var outItemsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "out_items_total",
	Help:      "Total number of items removed",
}, queueLabels)

var outBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "out_bytes_total",
	Help:      "Total number of payload bytes removed",
}, queueLabels)

// totalDelayMs accumulates the time items spent between push and remove
var totalDelayMs = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "total_delay_ms",
	Help:      "Sum of the milliseconds items spent in the queue",
}, queueLabels)

var fetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "fetch_total",
	Help:      "Total number of fetch attempts",
}, queueLabels)

// validFetchCount counts fetch attempts which found at least one idle item
var validFetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "valid_fetch_total",
	Help:      "Total number of fetch attempts which found an idle item",
}, queueLabels)

var fetchedItemsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "fetched_items_total",
	Help:      "Total number of items handed out",
}, queueLabels)

var fetchRejectedByRateLimiterCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "fetch_rejected_by_rate_limiter_total",
	Help:      "Total number of fetch attempts stopped by the rate limiter",
}, queueLabels)

var fetchRejectedByConcurrencyLimiterCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sender_queue",
	Name:      "fetch_rejected_by_concurrency_limiter_total",
	Help:      "Total number of fetch attempts stopped by a concurrency limiter",
}, []string{metricspkg.LabelQueueKey, metricspkg.LabelFlusher, metricspkg.LabelLimiter})

var queueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "sender_queue",
	Name:      "size",
	Help:      "Number of items in the bounded part of the queue",
}, queueLabels)

var queueDataBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "sender_queue",
	Name:      "data_bytes",
	Help:      "Payload bytes held in the bounded part of the queue",
}, queueLabels)

var overflowSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "sender_queue",
	Name:      "overflow_size",
	Help:      "Number of items in the overflow buffer",
}, queueLabels)

var overflowDataBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "sender_queue",
	Name:      "overflow_data_bytes",
	Help:      "Payload bytes held in the overflow buffer",
}, queueLabels)

var validToPushFlag = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "sender_queue",
	Name:      "valid_to_push",
	Help:      "1 if the queue accepts pushes, 0 otherwise",
}, queueLabels)
