package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/internal/env"
	"github.com/thatsimonsguy/mixvalve/internal/model"
)

var dogstatsd statsd.ClientInterface

func InitMetrics() {
	if !env.Cfg.EnableDatadog {
		log.Info().Msg("Datadog metrics disabled")
		return
	}

	client, err := statsd.New(env.Cfg.DDAgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	client.Namespace = env.Cfg.DDNamespace
	client.Tags = env.Cfg.DDTags
	dogstatsd = client

	log.Info().
		Str("addr", env.Cfg.DDAgentAddr).
		Str("namespace", env.Cfg.DDNamespace).
		Strs("tags", env.Cfg.DDTags).
		Msg("Datadog metrics initialized")
}

func Close() {
	if dogstatsd != nil {
		dogstatsd.Close()
		dogstatsd = nil
	}
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

// ValveGauges reports the estimated flow and the actuator's position and target.
func ValveGauges(s model.ValveStatus) {
	tag := "valve:" + s.Name
	Gauge("valve.flow", s.Flow, tag)
	Gauge("valve.position_steps", float64(s.Position), tag)
	Gauge("valve.target_steps", float64(s.Target), tag)
}
