package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Batch      BatchConfig      `yaml:"batch"`
	Server     ServerConfig     `yaml:"server"`
	Layout     LayoutConfig     `yaml:"layout"`
	Gaze       GazeConfig       `yaml:"gaze"`
}

type KafkaConfig struct {
	Brokers       []string          `yaml:"brokers"`
	Topics        map[string]string `yaml:"topics"`
	ConsumerGroup string            `yaml:"consumer_group"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	SettingsKey string `yaml:"settings_key"`
}

type BatchConfig struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	// AttentionInterval is how often Redis attention totals move to
	// ClickHouse. It must stay well under the one hour key TTL.
	AttentionInterval time.Duration `yaml:"attention_interval"`
	// Timeout bounds each Redis, Kafka or ClickHouse call made by the sink
	Timeout           time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

type LayoutConfig struct {
	Path string `yaml:"path"`
}

// GazeConfig tunes the pipeline. Settings uses the same keys as the Redis
// settings hash; Redis values win.
type GazeConfig struct {
	Filter             string         `yaml:"filter"`
	AlwaysActivated    bool           `yaml:"always_activated"`
	DefaultInteraction string         `yaml:"default_interaction"`
	HistoryMaxEntries  int            `yaml:"history_max_entries"`
	QueueSize          int            `yaml:"queue_size"`
	Settings           map[string]any `yaml:"settings"`
}

// Topic names used when the config leaves them out
const (
	TopicSamples      = "samples"
	TopicInteractions = "interactions"
	TopicCommands     = "commands"
)

var defaultTopics = map[string]string{
	TopicSamples:      "gaze.samples.raw",
	TopicInteractions: "gaze.interactions",
	TopicCommands:     "gaze.activations",
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Kafka.Topics == nil {
		cfg.Kafka.Topics = make(map[string]string)
	}
	for name, topic := range defaultTopics {
		if cfg.Kafka.Topics[name] == "" {
			cfg.Kafka.Topics[name] = topic
		}
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "gaze-processor"
	}
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 1000
	}
	if cfg.Batch.FlushInterval == 0 {
		cfg.Batch.FlushInterval = 5 * time.Second
	}
	if cfg.Batch.AttentionInterval == 0 {
		cfg.Batch.AttentionInterval = time.Minute
	}
	if cfg.Batch.Timeout == 0 {
		cfg.Batch.Timeout = 5 * time.Second
	}
	if cfg.ClickHouse.MaxOpenConns == 0 {
		cfg.ClickHouse.MaxOpenConns = 10
	}
	if cfg.ClickHouse.MaxIdleConns == 0 {
		cfg.ClickHouse.MaxIdleConns = 5
	}
	if cfg.Redis.SettingsKey == "" {
		cfg.Redis.SettingsKey = "gaze:settings"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8090
	}

	// Set gaze defaults
	if cfg.Gaze.Filter == "" {
		cfg.Gaze.Filter = "one_euro"
	}
	if cfg.Gaze.DefaultInteraction == "" {
		cfg.Gaze.DefaultInteraction = "enabled"
	}
	if cfg.Gaze.HistoryMaxEntries == 0 {
		cfg.Gaze.HistoryMaxEntries = 4096
	}
	if cfg.Gaze.QueueSize == 0 {
		cfg.Gaze.QueueSize = 1024
	}

	return &cfg, nil
}
