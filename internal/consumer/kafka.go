package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/gosight/gosight/gaze/internal/config"
	"github.com/gosight/gosight/gaze/internal/pointer"
	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/transformer"
)

// Reader is the subset of kafka.Reader the device uses
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CalibrateFunc asks the tracker behind the topic to calibrate
type CalibrateFunc func(ctx context.Context, deviceID string) error

// KafkaDevice is a gaze device fed by a Kafka topic of raw samples
type KafkaDevice struct {
	id        string
	newReader func() Reader
	calibrate CalibrateFunc

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewKafkaDevice creates a device reading the samples topic. calibrate may
// be nil.
func NewKafkaDevice(cfg config.KafkaConfig, calibrate CalibrateFunc) *KafkaDevice {
	topic := cfg.Topics[config.TopicSamples]
	if topic == "" {
		topic = "gaze.samples.raw"
	}

	return &KafkaDevice{
		id: "kafka:" + topic,
		newReader: func() Reader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:        cfg.Brokers,
				Topic:          topic,
				GroupID:        cfg.ConsumerGroup,
				MinBytes:       1e3,  // 1KB
				MaxBytes:       10e6, // 10MB
				CommitInterval: 1000,
				StartOffset:    kafka.LastOffset,
			})
		},
		calibrate: calibrate,
	}
}

// NewWithReader builds a device over a caller-supplied reader factory
func NewWithReader(id string, newReader func() Reader, calibrate CalibrateFunc) *KafkaDevice {
	return &KafkaDevice{id: id, newReader: newReader, calibrate: calibrate}
}

// ID names the device
func (d *KafkaDevice) ID() string {
	return d.id
}

// Subscribe starts consuming and hands every decoded sample to handler
func (d *KafkaDevice) Subscribe(handler func(sample.Sample)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return errors.New("already subscribed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	reader := d.newReader()
	go d.consume(ctx, reader, handler)
	return nil
}

// Unsubscribe stops consuming. It does not wait for the reader to drain;
// samples delivered after this call are dropped by the pointer.
func (d *KafkaDevice) Unsubscribe() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return nil
	}
	d.cancel()
	d.cancel = nil
	return nil
}

// Calibrate forwards a calibration request to the tracker
func (d *KafkaDevice) Calibrate(ctx context.Context) error {
	if d.calibrate == nil {
		return pointer.ErrCalibrationUnsupported
	}
	return d.calibrate(ctx, d.id)
}

func (d *KafkaDevice) consume(ctx context.Context, reader Reader, handler func(sample.Sample)) {
	log.Info().Str("device", d.id).Msg("Starting Kafka sample consumer")

	defer func() {
		if err := reader.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Kafka reader")
		}
		log.Info().Str("device", d.id).Msg("Kafka sample consumer stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to fetch message")
				continue
			}

			// Parse message
			var raw map[string]interface{}
			if err := json.Unmarshal(msg.Value, &raw); err != nil {
				log.Error().
					Err(err).
					Str("value", string(msg.Value)).
					Msg("Failed to parse message")
			} else if s, _, err := transformer.TransformSample(raw); err != nil {
				log.Debug().Err(err).Msg("Dropping gaze sample")
			} else {
				handler(s)
			}

			// Always commit to avoid getting stuck
			if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
		}
	}
}
