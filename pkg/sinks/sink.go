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

package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
	"github.com/bilosikia/loongcollector/pkg/sinks/blackhole"
	kafkasink "github.com/bilosikia/loongcollector/pkg/sinks/kafka"
	logsink "github.com/bilosikia/loongcollector/pkg/sinks/logger"
	natssink "github.com/bilosikia/loongcollector/pkg/sinks/nats"
	redissink "github.com/bilosikia/loongcollector/pkg/sinks/redis"
)

// Sink delivers items to a destination on behalf of a flusher. Send must be safe for concurrent use, an error
// means the item may be retried.
type Sink interface {
	GetName() string
	Send(ctx context.Context, item *queue.Item) error
	Close() error
}

// New builds the sink selected by conf.Type. The logger is taken from ctx.
func New(ctx context.Context, name string, conf config.SinkConfig) (Sink, error) {
	log := logging.FromContext(ctx).With(zap.String("sinkType", conf.Type))
	switch conf.Type {
	case config.SinkTypeLogger:
		return logsink.NewToLog(name, logsink.WithLogger(log)), nil
	case config.SinkTypeBlackhole:
		return blackhole.NewBlackhole(name), nil
	case config.SinkTypeKafka:
		return kafkasink.NewToKafka(name, conf.Kafka, kafkasink.WithLogger(log))
	case config.SinkTypeRedis:
		return redissink.NewRedisSink(name, conf.Redis, redissink.WithLogger(log)), nil
	case config.SinkTypeNATS:
		return natssink.NewToNATS(ctx, name, conf.NATS, natssink.WithLogger(log))
	}
	return nil, fmt.Errorf("invalid sink type %q", conf.Type)
}
