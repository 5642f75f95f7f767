package datadog

import (
	"testing"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/mixvalve/internal/config"
	"github.com/thatsimonsguy/mixvalve/internal/env"
	"github.com/thatsimonsguy/mixvalve/internal/model"
)

type fakeClient struct {
	statsd.ClientInterface
	gauges map[string]float64
	tags   []string
}

func (f *fakeClient) Gauge(name string, value float64, tags []string, rate float64) error {
	f.gauges[name] = value
	f.tags = tags
	return nil
}

func TestGauge_NoClient(t *testing.T) {
	orig := dogstatsd
	defer func() { dogstatsd = orig }()
	dogstatsd = nil

	assert.NotPanics(t, func() { Gauge("valve.flow", 1) })
}

func TestValveGauges(t *testing.T) {
	orig := dogstatsd
	defer func() { dogstatsd = orig }()
	fake := &fakeClient{gauges: map[string]float64{}}
	dogstatsd = fake

	ValveGauges(model.ValveStatus{Name: "radiant", Flow: 0.5, Position: -225, Target: -230})

	assert.Equal(t, map[string]float64{
		"valve.flow":           0.5,
		"valve.position_steps": -225,
		"valve.target_steps":   -230,
	}, fake.gauges)
	assert.Equal(t, []string{"valve:radiant"}, fake.tags)
}

func TestInitMetrics_Disabled(t *testing.T) {
	origCfg, origClient := env.Cfg, dogstatsd
	defer func() { env.Cfg, dogstatsd = origCfg, origClient }()
	env.Cfg = &config.Config{EnableDatadog: false}
	dogstatsd = nil

	InitMetrics()
	assert.Nil(t, dogstatsd)
}
