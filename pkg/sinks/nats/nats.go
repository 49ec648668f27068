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
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
)

// ToNATS publishes items to a NATS subject.
type ToNATS struct {
	name    string
	subject string
	nc      *nats.Conn
	log     *zap.SugaredLogger
}

type Option func(*ToNATS)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToNATS) {
		t.log = log
	}
}

// NewToNATS connects to conf.URL. The connection keeps reconnecting in the background, items published while it
// is down are buffered by the client.
func NewToNATS(ctx context.Context, name string, conf config.NATSConfig, opts ...Option) (*ToNATS, error) {
	tn := &ToNATS{name: name, subject: conf.Subject}
	for _, o := range opts {
		o(tn)
	}
	if tn.log == nil {
		tn.log = logging.FromContext(ctx)
	}
	tn.log = tn.log.With("subject", conf.Subject)
	log := tn.log
	natsOpts := []nats.Option{
		nats.Name(name),
		// if max reconnects is set to -1, it will try to reconnect forever
		nats.MaxReconnects(-1),
		nats.PingInterval(3 * time.Second),
		nats.MaxPingsOutstanding(2),
		// retry on failed connect should be true, else it wont try to reconnect during initial connect
		nats.RetryOnFailedConnect(true),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("Nats: error occurred", zap.Error(err))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("Nats: connection closed")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Errorw("Nats: disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Nats: reconnected")
		}),
		nats.FlusherTimeout(10 * time.Second),
	}
	nc, err := nats.Connect(conf.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", conf.URL, err)
	}
	tn.nc = nc
	return tn, nil
}

// GetName returns the name.
func (tn *ToNATS) GetName() string {
	return tn.name
}

// Send publishes the payload of the item. The queue key travels in the Loong-Queue header.
func (tn *ToNATS) Send(_ context.Context, item *queue.Item) error {
	labels := map[string]string{metrics.LabelSink: tn.name, metrics.LabelPipeline: item.PipelineName()}
	msg := nats.NewMsg(tn.subject)
	msg.Header.Set("Loong-Queue", string(item.Key))
	msg.Data = item.Data
	if err := tn.nc.PublishMsg(msg); err != nil {
		natsSinkWriteErrors.With(labels).Inc()
		tn.log.Errorw("Publish failed", zap.Error(err), zap.String("queue", string(item.Key)))
		return err
	}
	natsSinkWriteCount.With(labels).Inc()
	return nil
}

// Close drains the pending publishes and closes the connection.
func (tn *ToNATS) Close() error {
	tn.log.Info("Closing nats connection...")
	if tn.nc.IsClosed() {
		return nil
	}
	return tn.nc.Drain()
}
