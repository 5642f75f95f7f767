package shutdown

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/internal/datadog"
	"github.com/thatsimonsguy/mixvalve/internal/env"
	"github.com/thatsimonsguy/mixvalve/internal/notifications"
)

var exit = os.Exit
var notify = notifications.Send
var closeMetrics = datadog.Close

// Parker is satisfied by valve.Registry.
type Parker interface {
	ParkAll()
	Names() []string
}

// Shutdown parks every valve, releases closers, flushes metrics and exits
// with code. Safe mode leaves the valves where they are. Parking happens
// before closers run since they include the actuator buses.
func Shutdown(p Parker, code int, closers ...io.Closer) {
	if p != nil && !env.Cfg.SafeMode {
		p.ParkAll()
		log.Info().Strs("valves", p.Names()).Msg("Valves parked")
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Close failed during shutdown")
		}
	}
	closeMetrics()
	exit(code)
}

func ShutdownWithError(p Parker, err error, msg string, closers ...io.Closer) {
	log.Error().Err(err).Msg(msg)
	if nerr := notify("mixvalve stopped", fmt.Sprintf("%s: %v", msg, err)); nerr != nil {
		log.Warn().Err(nerr).Msg("Could not send shutdown notification")
	}
	Shutdown(p, 1, closers...)
}
