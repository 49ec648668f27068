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

package blackhole

import (
	"context"

	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/queue"
)

// Blackhole is a sink to emulate /dev/null
type Blackhole struct {
	name string
}

// NewBlackhole returns a new Blackhole sink.
func NewBlackhole(name string) *Blackhole {
	return &Blackhole{name: name}
}

// GetName returns the name.
func (b *Blackhole) GetName() string {
	return b.name
}

// Send drops the item.
func (b *Blackhole) Send(_ context.Context, item *queue.Item) error {
	labels := map[string]string{metrics.LabelSink: b.name, metrics.LabelPipeline: item.PipelineName()}
	sinkWriteCount.With(labels).Inc()
	sinkWriteBytes.With(labels).Add(float64(item.Size()))
	return nil
}

func (b *Blackhole) Close() error {
	return nil
}
