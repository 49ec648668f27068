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

package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

// ToLog prints the items to the log.
type ToLog struct {
	name   string
	logger *zap.SugaredLogger
}

type Option func(*ToLog)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) {
		t.logger = log
	}
}

// NewToLog returns ToLog type.
func NewToLog(name string, opts ...Option) *ToLog {
	toLog := &ToLog{name: name}
	// use opts in future for specifying logger format etc
	for _, o := range opts {
		o(toLog)
	}
	if toLog.logger == nil {
		toLog.logger = logging.NewLogger()
	}
	return toLog
}

// GetName returns the name.
func (t *ToLog) GetName() string {
	return t.name
}

// Send writes the item to the log, it never fails.
func (t *ToLog) Send(_ context.Context, item *queue.Item) error {
	logSinkWriteCount.With(map[string]string{metrics.LabelSink: t.name, metrics.LabelPipeline: item.PipelineName()}).Inc()
	t.logger.Infow("("+t.name+")",
		zap.ByteString("payload", item.Data),
		zap.String("queue", string(item.Key)),
		zap.Int("tryCount", item.TryCount),
		zap.Int64("enqueueTime", item.EnqueueTime().UnixMilli()))
	return nil
}

func (t *ToLog) Close() error {
	return nil
}
