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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(key, values)
	return redis.NewIntResult(int64(args.Int(0)), args.Error(1))
}

func (m *mockLister) Close() error {
	return m.Called().Error(0)
}

func TestRedisSink_Send(t *testing.T) {
	client := new(mockLister)
	client.On("RPush", "events", []interface{}{[]byte("welcome1")}).Return(1, nil).Once()
	client.On("RPush", "events", []interface{}{[]byte("welcome2")}).Return(0, errors.New("READONLY")).Once()
	client.On("Close").Return(nil)
	rs := &RedisSink{name: "redis-mock", list: "events", client: client, logger: logging.NewLogger()}

	assert.NoError(t, rs.Send(context.Background(), queue.NewItem([]byte("welcome1"), -1)))
	err := rs.Send(context.Background(), queue.NewItem([]byte("welcome2"), -1))
	assert.ErrorContains(t, err, "READONLY")
	assert.Equal(t, float64(1), testutil.ToFloat64(sinkWriteCount.WithLabelValues("redis-mock", "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sinkWriteErrors.WithLabelValues("redis-mock", "")))
	assert.NoError(t, rs.Close())
	client.AssertExpectations(t)
}

func TestRedisSink_Unreachable(t *testing.T) {
	rs := NewRedisSink("redis-unreachable", config.RedisConfig{Addr: "127.0.0.1:1", List: "events"})
	assert.Equal(t, "redis-unreachable", rs.GetName())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, rs.Send(ctx, queue.NewItem([]byte("welcome1"), -1)))
	assert.NoError(t, rs.Close())
}
