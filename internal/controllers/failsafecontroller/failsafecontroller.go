package failsafecontroller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/internal/datadog"
	"github.com/thatsimonsguy/mixvalve/internal/env"
	"github.com/thatsimonsguy/mixvalve/internal/model"
	"github.com/thatsimonsguy/mixvalve/internal/notifications"
)

var notify = notifications.Send
var gauge = datadog.Gauge

// StatusSource is satisfied by valve.Registry.
type StatusSource interface {
	Statuses() []model.ValveStatus
}

type FailsafeAction struct {
	Stalled   []model.ValveStatus
	Recovered []model.ValveStatus
}

type tracker struct {
	position  int32
	lastMoved time.Time
	stalled   bool
}

// Watchdog flags valves whose actuator has stopped short of its target.
type Watchdog struct {
	timeout  time.Duration
	trackers map[string]*tracker
}

func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{timeout: timeout, trackers: make(map[string]*tracker)}
}

// Evaluate records the latest statuses and returns the valves that changed
// stall state. A valve stalls when its position has not changed for the
// timeout while it is away from its target. It recovers when it moves again or
// reaches the target.
func (w *Watchdog) Evaluate(statuses []model.ValveStatus, now time.Time) FailsafeAction {
	var action FailsafeAction

	for _, s := range statuses {
		t, ok := w.trackers[s.Name]
		if !ok {
			w.trackers[s.Name] = &tracker{position: s.Position, lastMoved: now}
			continue
		}

		moved := s.Position != t.position
		if moved {
			t.position = s.Position
			t.lastMoved = now
		}

		if t.stalled {
			if moved || s.Position == s.Target {
				t.stalled = false
				action.Recovered = append(action.Recovered, s)
			}
			continue
		}

		if s.Position != s.Target && now.Sub(t.lastMoved) >= w.timeout {
			t.stalled = true
			action.Stalled = append(action.Stalled, s)
		}
	}
	return action
}

func RunFailsafeController(ctx context.Context, src StatusSource) {
	go func() {
		timeout := time.Duration(env.Cfg.StallSeconds) * time.Second
		log.Info().Dur("stall_timeout", timeout).Msg("Starting failsafe controller")

		w := NewWatchdog(timeout)
		ticker := time.NewTicker(timeout / 4)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				executeFailsafeActions(w.Evaluate(src.Statuses(), now))
			}
		}
	}()
}

func executeFailsafeActions(action FailsafeAction) {
	for _, s := range action.Stalled {
		log.Warn().
			Str("valve", s.Name).
			Int32("position", s.Position).
			Int32("target", s.Target).
			Msg("Valve actuator stalled short of target")
		gauge("valve.stalled", 1, "valve:"+s.Name)
		if err := notify("Valve stalled", fmt.Sprintf("%s stuck at %d steps, target %d", s.Name, s.Position, s.Target)); err != nil {
			log.Debug().Err(err).Msg("Stall notification not sent")
		}
	}

	for _, s := range action.Recovered {
		log.Info().
			Str("valve", s.Name).
			Int32("position", s.Position).
			Int32("target", s.Target).
			Msg("Valve actuator moving again")
		gauge("valve.stalled", 0, "valve:"+s.Name)
		if err := notify("Valve recovered", fmt.Sprintf("%s at %d steps, target %d", s.Name, s.Position, s.Target)); err != nil {
			log.Debug().Err(err).Msg("Recovery notification not sent")
		}
	}
}
