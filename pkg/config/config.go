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

package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "LOONG"

	SinkTypeLogger    = "logger"
	SinkTypeBlackhole = "blackhole"
	SinkTypeKafka     = "kafka"
	SinkTypeRedis     = "redis"
	SinkTypeNATS      = "nats"
)

// GlobalConfig holds the agent configuration loaded from a YAML file and keeps it up to date while the file
// changes.
type GlobalConfig struct {
	conf      *Config
	lock      *sync.RWMutex
	listeners []func(*Config)
}

type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Limiters  LimitersConfig  `mapstructure:"limiters"`
	Flusher   FlusherConfig   `mapstructure:"flusher"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type PipelineConfig struct {
	Name string `mapstructure:"name"`
}

type QueueConfig struct {
	Key           string `mapstructure:"key"`
	Capacity      int    `mapstructure:"capacity"`
	LowWatermark  int    `mapstructure:"low_watermark"`
	HighWatermark int    `mapstructure:"high_watermark"`
}

type LimitersConfig struct {
	// RateBytesPerSecond caps the raw bytes handed to the flusher, 0 means unlimited.
	RateBytesPerSecond int64               `mapstructure:"rate_bytes_per_second"`
	Concurrency        []ConcurrencyConfig `mapstructure:"concurrency"`
}

type ConcurrencyConfig struct {
	Name          string  `mapstructure:"name"`
	Min           int     `mapstructure:"min"`
	Max           int     `mapstructure:"max"`
	Initial       int     `mapstructure:"initial"`
	IncreaseStep  float64 `mapstructure:"increase_step"`
	DecreaseRatio float64 `mapstructure:"decrease_ratio"`
}

type FlusherConfig struct {
	Name         string        `mapstructure:"name"`
	BatchSize    int           `mapstructure:"batch_size"`
	Workers      int           `mapstructure:"workers"`
	IdleInterval time.Duration `mapstructure:"idle_interval"`
	// DrainTimeout bounds the flush of the queued items on shutdown, the rest is discarded.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
	Factor      float64       `mapstructure:"factor"`
	Jitter      float64       `mapstructure:"jitter"`
	Steps       int           `mapstructure:"steps"`
}

type SinkConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Redis RedisConfig `mapstructure:"redis"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// Config is a sarama config in YAML.
	Config string `mapstructure:"config"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	List     string `mapstructure:"list"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type GeneratorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	PayloadSize int           `mapstructure:"payload_size"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "default")
	v.SetDefault("queue.key", "default")
	v.SetDefault("queue.capacity", 1024)
	v.SetDefault("queue.low_watermark", 256)
	v.SetDefault("queue.high_watermark", 768)
	v.SetDefault("limiters.rate_bytes_per_second", 0)
	v.SetDefault("flusher.name", "default")
	v.SetDefault("flusher.batch_size", 64)
	v.SetDefault("flusher.workers", 8)
	v.SetDefault("flusher.idle_interval", 10*time.Millisecond)
	v.SetDefault("flusher.drain_timeout", 30*time.Second)
	v.SetDefault("flusher.retry.interval", 100*time.Millisecond)
	v.SetDefault("flusher.retry.max_interval", 5*time.Second)
	v.SetDefault("flusher.retry.factor", 2.0)
	v.SetDefault("flusher.retry.jitter", 0.1)
	v.SetDefault("flusher.retry.steps", 5)
	v.SetDefault("sink.type", SinkTypeLogger)
	v.SetDefault("sink.kafka.topic", "loongcollector")
	v.SetDefault("sink.kafka.config", "")
	v.SetDefault("sink.redis.addr", "localhost:6379")
	v.SetDefault("sink.redis.password", "")
	v.SetDefault("sink.redis.db", 0)
	v.SetDefault("sink.redis.list", "loongcollector")
	v.SetDefault("sink.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("sink.nats.subject", "loongcollector")
	v.SetDefault("generator.enabled", true)
	v.SetDefault("generator.interval", 100*time.Millisecond)
	v.SetDefault("generator.batch_size", 10)
	v.SetDefault("generator.payload_size", 256)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2470)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration file. %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Load reads and validates the configuration file once.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file. %w", err)
	}
	return unmarshal(v)
}

// LoadConfig loads the configuration file and watches it. A change which fails to unmarshal or to validate is
// reported to onErrorReloading and the previous configuration stays active.
func LoadConfig(path string, onErrorReloading func(error)) (*GlobalConfig, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file. %w", err)
	}
	conf, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	g := &GlobalConfig{
		conf: conf,
		lock: new(sync.RWMutex),
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cf, err := unmarshal(v)
		if err != nil {
			if onErrorReloading != nil {
				onErrorReloading(err)
			}
			return
		}
		g.lock.Lock()
		g.conf = cf
		listeners := make([]func(*Config), len(g.listeners))
		copy(listeners, g.listeners)
		g.lock.Unlock()
		for _, f := range listeners {
			f(cf)
		}
	})
	v.WatchConfig()
	return g, nil
}

// Get returns the active configuration, it must not be modified.
func (g *GlobalConfig) Get() *Config {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf
}

// OnChange registers f to be called with every configuration reloaded from the file.
func (g *GlobalConfig) OnChange(f func(*Config)) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.listeners = append(g.listeners, f)
}

// Validate checks the fields which cannot be defaulted.
func (c *Config) Validate() error {
	if c.Pipeline.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if c.Queue.Key == "" {
		return fmt.Errorf("queue key is required")
	}
	q := c.Queue
	if q.Capacity <= 0 || q.LowWatermark < 0 || q.LowWatermark >= q.HighWatermark || q.HighWatermark > q.Capacity {
		return fmt.Errorf("invalid queue watermarks capacity:%d low:%d high:%d, want 0 <= low < high <= capacity", q.Capacity, q.LowWatermark, q.HighWatermark)
	}
	for _, l := range c.Limiters.Concurrency {
		if l.Name == "" {
			return fmt.Errorf("concurrency limiter name is required")
		}
		if l.Max < l.Min || l.Max <= 0 {
			return fmt.Errorf("invalid concurrency limiter %q, min:%d max:%d", l.Name, l.Min, l.Max)
		}
	}
	if c.Flusher.BatchSize == 0 {
		return fmt.Errorf("flusher batch size can not be 0")
	}
	if c.Flusher.Retry.Steps <= 0 {
		return fmt.Errorf("flusher retry steps must be positive")
	}
	if c.Flusher.Workers <= 0 {
		return fmt.Errorf("flusher workers must be positive")
	}
	switch c.Sink.Type {
	case SinkTypeLogger, SinkTypeBlackhole:
	case SinkTypeKafka:
		if len(c.Sink.Kafka.Brokers) == 0 || c.Sink.Kafka.Topic == "" {
			return fmt.Errorf("kafka sink requires brokers and a topic")
		}
	case SinkTypeRedis:
		if c.Sink.Redis.Addr == "" || c.Sink.Redis.List == "" {
			return fmt.Errorf("redis sink requires an address and a list")
		}
	case SinkTypeNATS:
		if c.Sink.NATS.URL == "" || c.Sink.NATS.Subject == "" {
			return fmt.Errorf("nats sink requires a url and a subject")
		}
	default:
		return fmt.Errorf("unrecognized sink type %q", c.Sink.Type)
	}
	if c.Generator.Enabled && (c.Generator.Interval <= 0 || c.Generator.BatchSize <= 0) {
		return fmt.Errorf("generator interval and batch size must be positive")
	}
	return nil
}
