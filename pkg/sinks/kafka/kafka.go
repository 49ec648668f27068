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

package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/bilosikia/loongcollector/pkg/config"
	"github.com/bilosikia/loongcollector/pkg/metrics"
	"github.com/bilosikia/loongcollector/pkg/queue"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
	"github.com/bilosikia/loongcollector/pkg/shared/util"
)

// ToKafka produce the items to a kafka topic.
type ToKafka struct {
	name     string
	producer sarama.SyncProducer
	topic    string
	log      *zap.SugaredLogger
}

type Option func(*ToKafka) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToKafka) error {
		t.log = log
		return nil
	}
}

// NewToKafka returns ToKafka type.
func NewToKafka(name string, conf config.KafkaConfig, opts ...Option) (*ToKafka, error) {
	toKafka := new(ToKafka)
	//apply options for kafka sink
	for _, o := range opts {
		if err := o(toKafka); err != nil {
			return nil, err
		}
	}

	//set default logger
	if toKafka.log == nil {
		toKafka.log = logging.NewLogger()
	}
	toKafka.log = toKafka.log.With("sinkType", "kafka").With("topic", conf.Topic)
	toKafka.name = name
	toKafka.topic = conf.Topic

	saramaConfig, err := util.GetSaramaConfigFromYAMLString(conf.Config)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(conf.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer. %w", err)
	}
	toKafka.producer = producer
	return toKafka, nil
}

// GetName returns the name.
func (tk *ToKafka) GetName() string {
	return tk.name
}

// Send produces the item to the kafka topic, keyed by the queue key so that items of a queue share a partition.
func (tk *ToKafka) Send(_ context.Context, item *queue.Item) error {
	labels := map[string]string{metrics.LabelSink: tk.name, metrics.LabelPipeline: item.PipelineName()}
	message := &sarama.ProducerMessage{
		Topic: tk.topic,
		Key:   sarama.StringEncoder(item.Key),
		Value: sarama.ByteEncoder(item.Data),
	}
	partition, offset, err := tk.producer.SendMessage(message)
	if err != nil {
		kafkaSinkWriteErrors.With(labels).Inc()
		tk.log.Errorw("SendMessage failed", zap.Error(err), zap.String("queue", string(item.Key)), zap.Int("tryCount", item.TryCount))
		return err
	}
	kafkaSinkWriteCount.With(labels).Inc()
	kafkaSinkWriteBytes.With(labels).Add(float64(item.Size()))
	tk.log.Debugw("Produced", zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (tk *ToKafka) Close() error {
	tk.log.Info("Closing kafka producer...")
	return tk.producer.Close()
}
