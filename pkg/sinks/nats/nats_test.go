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

package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstestserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/pipeline"
	"github.com/bilosikia/loongcollector/pkg/queue"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natstestserver.DefaultTestOptions
	opts.Port = -1 // Random port
	return natstestserver.RunServer(&opts)
}

func TestToNATS_Send(t *testing.T) {
	s := runServer(t)
	defer s.Shutdown()

	sub, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	subscription, err := sub.SubscribeSync("events")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	tn, err := NewToNATS(context.Background(), "nats-sink", config.NATSConfig{URL: s.ClientURL(), Subject: "events"})
	require.NoError(t, err)
	assert.Equal(t, "nats-sink", tn.GetName())

	item := queue.NewItem([]byte("welcome1"), -1)
	item.Key = "q1"
	item.AttachPipeline(pipeline.New("testPipeline", 1))
	require.NoError(t, tn.Send(context.Background(), item))
	require.NoError(t, tn.nc.Flush())

	msg, err := subscription.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "welcome1", string(msg.Data))
	assert.Equal(t, "q1", msg.Header.Get("Loong-Queue"))
	assert.Equal(t, float64(1), testutil.ToFloat64(natsSinkWriteCount.WithLabelValues("nats-sink", "testPipeline")))

	assert.NoError(t, tn.Close())
	assert.Eventually(t, tn.nc.IsClosed, 5*time.Second, 10*time.Millisecond)
	assert.Error(t, tn.Send(context.Background(), item))
	assert.Equal(t, float64(1), testutil.ToFloat64(natsSinkWriteErrors.WithLabelValues("nats-sink", "testPipeline")))
}
