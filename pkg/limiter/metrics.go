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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const labelLimiter = "limiter"

// concurrencyLimit is the current AIMD limit of a concurrency limiter
var concurrencyLimit = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "limiter",
	Name:      "concurrency_limit",
	Help:      "Current limit of a concurrency limiter",
}, []string{labelLimiter})

// inFlightGauge is the number of items released and not yet done
var inFlightGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "limiter",
	Name:      "in_flight",
	Help:      "Number of items in flight for a concurrency limiter",
}, []string{labelLimiter})
