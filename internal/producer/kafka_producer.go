package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gosight/gosight/gaze/internal/config"
)

// Interaction is the message published for every state change
type Interaction struct {
	EventID     string `json:"event_id"`
	TargetID    string `json:"target_id"`
	Capability  string `json:"capability"`
	State       string `json:"state"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	RepeatCount int    `json:"repeat_count"`
	EyesOff     bool   `json:"eyes_off,omitempty"`
	SampleTsUs  int64  `json:"sample_ts_us"`
	Timestamp   int64  `json:"timestamp"`
}

// Command types on the commands topic
const (
	CommandActivate  = "activate"
	CommandCalibrate = "calibrate"
)

// Command asks the host to activate an element or a tracker to calibrate
type Command struct {
	CommandID  string `json:"command_id"`
	Type       string `json:"type"`
	TargetID   string `json:"target_id,omitempty"`
	Capability string `json:"capability,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Writer is the subset of kafka.Writer the producer uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writers map[string]Writer
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	writers := make(map[string]Writer)

	for _, name := range []string{config.TopicInteractions, config.TopicCommands} {
		topic := cfg.Topics[name]
		if topic == "" {
			return nil, fmt.Errorf("no kafka topic configured for %q", name)
		}
		writers[name] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		}
	}

	return &KafkaProducer{
		writers: writers,
	}, nil
}

// NewWithWriters builds a producer over existing writers keyed by topic name
func NewWithWriters(writers map[string]Writer) *KafkaProducer {
	return &KafkaProducer{writers: writers}
}

func (p *KafkaProducer) PublishInteraction(ctx context.Context, ev Interaction) error {
	return p.publish(ctx, config.TopicInteractions, ev.TargetID, ev)
}

func (p *KafkaProducer) PublishCommand(ctx context.Context, cmd Command) error {
	key := cmd.TargetID
	if key == "" {
		key = cmd.DeviceID
	}
	return p.publish(ctx, config.TopicCommands, key, cmd)
}

func (p *KafkaProducer) publish(ctx context.Context, name, key string, v interface{}) error {
	w, ok := p.writers[name]
	if !ok {
		return fmt.Errorf("no kafka writer for %q", name)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error {
	for _, w := range p.writers {
		w.Close()
	}
	return nil
}
