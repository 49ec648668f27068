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

package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

// lister is the part of redis.UniversalClient the sink needs.
type lister interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisSink appends items to a redis list.
type RedisSink struct {
	name   string
	list   string
	client lister
	logger *zap.SugaredLogger
}

type Option func(sink *RedisSink)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(rs *RedisSink) {
		rs.logger = log
	}
}

// NewRedisSink returns RedisSink type. The connection is established lazily by the first Send.
func NewRedisSink(name string, conf config.RedisConfig, opts ...Option) *RedisSink {
	rs := &RedisSink{
		name: name,
		list: conf.List,
		client: redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{conf.Addr},
			Password: conf.Password,
			DB:       conf.DB,
		}),
	}
	for _, o := range opts {
		o(rs)
	}
	if rs.logger == nil {
		rs.logger = logging.NewLogger()
	}
	rs.logger = rs.logger.With("list", conf.List)
	return rs
}

// GetName returns the name.
func (rs *RedisSink) GetName() string {
	return rs.name
}

// Send appends the payload of the item to the list.
func (rs *RedisSink) Send(ctx context.Context, item *queue.Item) error {
	labels := map[string]string{metrics.LabelSink: rs.name, metrics.LabelPipeline: item.PipelineName()}
	if err := rs.client.RPush(ctx, rs.list, item.Data).Err(); err != nil {
		sinkWriteErrors.With(labels).Inc()
		rs.logger.Errorw("RPush failed", zap.Error(err), zap.String("queue", string(item.Key)))
		return fmt.Errorf("failed to push to redis list %s, %w", rs.list, err)
	}
	sinkWriteCount.With(labels).Inc()
	return nil
}

func (rs *RedisSink) Close() error {
	return rs.client.Close()
}
