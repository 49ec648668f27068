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

package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/assert"

	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

type mockHealthChecker struct {
	err error
}

func (m mockHealthChecker) IsHealthy(_ context.Context) error {
	return m.err
}

func Test_MetricsServer_Endpoints(t *testing.T) {
	ms := NewMetricsServer()
	server := httptest.NewServer(ms.handler(logging.NewLogger()))
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	e.GET("/livez").Expect().Status(204)
	e.GET("/readyz").Expect().Status(204)
	e.GET("/metrics").Expect().Status(200).Body().Contains("go_goroutines")
}

func Test_MetricsServer_ReadyzFailing(t *testing.T) {
	ms := NewMetricsServer(NewMetricsOptions(context.Background(), 0, []HealthChecker{
		mockHealthChecker{},
		mockHealthChecker{err: errors.New("sink unreachable")},
	})...)
	server := httptest.NewServer(ms.handler(logging.NewLogger()))
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	e.GET("/readyz").Expect().Status(500).Body().IsEqual("sink unreachable")
	e.GET("/livez").Expect().Status(204)
}

type blockingHealthChecker struct{}

func (blockingHealthChecker) IsHealthy(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func Test_MetricsServer_HealthCheckTimeout(t *testing.T) {
	t.Setenv(EnvHealthCheckTimeout, "10ms")
	ms := NewMetricsServer(NewMetricsOptions(context.Background(), 0, []HealthChecker{blockingHealthChecker{}})...)
	server := httptest.NewServer(ms.handler(logging.NewLogger()))
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	e.GET("/readyz").Expect().Status(500).Body().Contains("deadline exceeded")
}

func Test_MetricsServer_Options(t *testing.T) {
	ms := NewMetricsServer()
	assert.Equal(t, DefaultMetricsPort, ms.port)

	ms = NewMetricsServer(WithPort(9999), nil, WithHealthCheckExecutor(func() error { return nil }))
	assert.Equal(t, 9999, ms.port)
	assert.Len(t, ms.healthCheckExecutors, 1)
	assert.NoError(t, ms.healthCheckExecutors[0]())
}
