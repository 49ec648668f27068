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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/sinks/blackhole"
	logsink "github.com/bilosikia/loongcollector/pkg/sinks/logger"
	redissink "github.com/bilosikia/loongcollector/pkg/sinks/redis"
)

func TestNew(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, "log", config.SinkConfig{Type: config.SinkTypeLogger})
	require.NoError(t, err)
	assert.IsType(t, &logsink.ToLog{}, s)
	assert.Equal(t, "log", s.GetName())

	s, err = New(ctx, "bh", config.SinkConfig{Type: config.SinkTypeBlackhole})
	require.NoError(t, err)
	assert.IsType(t, &blackhole.Blackhole{}, s)

	s, err = New(ctx, "rd", config.SinkConfig{Type: config.SinkTypeRedis, Redis: config.RedisConfig{Addr: "127.0.0.1:6379", List: "l"}})
	require.NoError(t, err)
	assert.IsType(t, &redissink.RedisSink{}, s)
	assert.NoError(t, s.Close())

	_, err = New(ctx, "x", config.SinkConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)
}
