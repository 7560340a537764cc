package pointer

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/sample"
)

// ErrCalibrationUnsupported is returned when the device cannot calibrate
var ErrCalibrationUnsupported = errors.New("device does not support calibration")

// Device is a source of raw gaze samples
type Device interface {
	// Subscribe starts delivering samples to handler from any goroutine
	Subscribe(handler func(sample.Sample)) error
	// Unsubscribe stops delivery
	Unsubscribe() error
}

// Calibrator is implemented by devices that can run a calibration
type Calibrator interface {
	Calibrate(ctx context.Context) error
}

// DeviceAdded records a device that became available
func (p *Pointer) DeviceAdded(id string) {
	p.exec.Post(func() {
		was := len(p.devices) > 0
		p.devices[id] = struct{}{}
		log.Info().Str("device", id).Int("devices", len(p.devices)).Msg("Gaze device added")
		if !was {
			p.raiseAvailability(true)
		}
	})
}

// DeviceRemoved records a device that went away
func (p *Pointer) DeviceRemoved(id string) {
	p.exec.Post(func() {
		if _, ok := p.devices[id]; !ok {
			return
		}
		delete(p.devices, id)
		log.Info().Str("device", id).Int("devices", len(p.devices)).Msg("Gaze device removed")
		if len(p.devices) == 0 {
			p.raiseAvailability(false)
		}
	})
}

// OnAvailabilityChanged registers fn for device availability changes
func (p *Pointer) OnAvailabilityChanged(fn func(available bool)) {
	p.availability = append(p.availability, fn)
}

// Devices returns the known device IDs
func (p *Pointer) Devices(ctx context.Context) ([]string, error) {
	return call(ctx, p.exec, func() []string {
		out := make([]string, 0, len(p.devices))
		for id := range p.devices {
			out = append(out, id)
		}
		return out
	})
}

func (p *Pointer) raiseAvailability(available bool) {
	for _, fn := range p.availability {
		fn(available)
	}
}

// RequestCalibration starts a calibration without waiting for it. The
// returned channel yields exactly one result.
func (p *Pointer) RequestCalibration(ctx context.Context) <-chan error {
	ch := make(chan error, 1)

	c, ok := p.device.(Calibrator)
	if !ok {
		ch <- ErrCalibrationUnsupported
		return ch
	}

	go func() {
		err := c.Calibrate(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Calibration failed")
		}
		ch <- err
	}()
	return ch
}
