package actuator

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/tic"
	"periph.io/x/host/v3"

	"github.com/thatsimonsguy/mixvalve/internal/datadog"
)

var emitGauge = datadog.Gauge

// ticDevice is the subset of *tic.Dev used here.
type ticDevice interface {
	SetTargetPosition(position int32) error
	GetCurrentPosition() (int32, error)
	ResetCommandTimeout() error
}

// Tic drives a Pololu Tic stepper controller. SetTarget is fire-and-forget;
// CurrentPosition returns the value from the most recent poll.
type Tic struct {
	name     string
	dev      ticDevice
	position atomic.Int32
	failures atomic.Int64
}

func newTic(name string, dev ticDevice) *Tic {
	return &Tic{name: name, dev: dev}
}

// OpenTic initialises the host drivers, opens the I²C bus and brings the Tic
// out of safe start. The returned closer releases the bus.
func OpenTic(name, busName, variant string, addr uint16) (*Tic, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialise periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}

	dev, err := tic.NewI2C(bus, tic.Variant(variant), addr)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s at 0x%02x: %w", variant, addr, err)
	}
	if err := dev.ExitSafeStart(); err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to exit safe start: %w", err)
	}
	if err := dev.Energize(); err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to energize: %w", err)
	}

	t := newTic(name, dev)
	if err := t.refresh(); err != nil {
		bus.Close()
		return nil, nil, err
	}

	log.Info().
		Str("valve", name).
		Str("bus", busName).
		Uint16("address", addr).
		Int32("position", t.CurrentPosition()).
		Msg("Tic stepper controller connected")

	return t, bus, nil
}

func (t *Tic) SetTarget(target int32) {
	if err := t.dev.SetTargetPosition(target); err != nil {
		t.failures.Add(1)
		log.Error().Err(err).Str("valve", t.name).Int32("target", target).Msg("Failed to set Tic target position")
	}
}

func (t *Tic) CurrentPosition() int32 {
	return t.position.Load()
}

// Failures counts commands and polls the Tic did not acknowledge.
func (t *Tic) Failures() int64 {
	return t.failures.Load()
}

func (t *Tic) refresh() error {
	pos, err := t.dev.GetCurrentPosition()
	if err != nil {
		t.failures.Add(1)
		return fmt.Errorf("failed to read Tic position: %w", err)
	}
	t.position.Store(pos)
	return nil
}

// Poll refreshes the cached position every interval and keeps the Tic's
// command timeout from expiring, until ctx is done. The failure count is
// reported after every poll.
func (t *Tic) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.dev.ResetCommandTimeout(); err != nil {
				t.failures.Add(1)
				log.Warn().Err(err).Str("valve", t.name).Msg("Failed to reset Tic command timeout")
			}
			if err := t.refresh(); err != nil {
				log.Warn().Err(err).Str("valve", t.name).Msg("Keeping last known position")
			}
			emitGauge("valve.actuator_failures", float64(t.Failures()), "valve:"+t.name)
		}
	}
}
