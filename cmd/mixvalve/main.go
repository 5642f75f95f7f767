package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/db"
	"github.com/thatsimonsguy/mixvalve/internal/actuator"
	"github.com/thatsimonsguy/mixvalve/internal/api"
	"github.com/thatsimonsguy/mixvalve/internal/calibration"
	"github.com/thatsimonsguy/mixvalve/internal/config"
	"github.com/thatsimonsguy/mixvalve/internal/controllers/failsafecontroller"
	"github.com/thatsimonsguy/mixvalve/internal/controllers/reporter"
	"github.com/thatsimonsguy/mixvalve/internal/datadog"
	"github.com/thatsimonsguy/mixvalve/internal/env"
	"github.com/thatsimonsguy/mixvalve/internal/logging"
	"github.com/thatsimonsguy/mixvalve/internal/notifications"
	"github.com/thatsimonsguy/mixvalve/internal/valve"
	"github.com/thatsimonsguy/mixvalve/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db", cfg.DBPath).
		Int("valves", len(cfg.Valves)).
		Msg("Starting mixing valve controller")

	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED - all valves use simulated actuators")
	}

	notifications.Init()
	datadog.InitMetrics()

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		shutdown.ShutdownWithError(nil, err, "Failed to open state database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := valve.NewRegistry()
	// released by shutdown after the valves are parked
	closers := []io.Closer{dbConn}
	for _, v := range cfg.Valves {
		res, err := calibration.FromConfig(v)
		if err != nil {
			shutdown.ShutdownWithError(registry, err, "Invalid valve configuration", closers...)
		}

		act, closer, err := startActuator(ctx, dbConn, v, res)
		if err != nil {
			shutdown.ShutdownWithError(registry, err, "Failed to start actuator", closers...)
		}
		if closer != nil {
			closers = append(closers, closer)
		}

		if err := registry.Add(valve.New(v.Name, res.Calibration, res.Curve, act)); err != nil {
			shutdown.ShutdownWithError(registry, err, "Failed to register valve", closers...)
		}
		log.Info().
			Str("valve", v.Name).
			Str("actuator", v.Actuator.Type).
			Int32("closed", res.Calibration.Closed).
			Int32("open", res.Calibration.Open).
			Msg("Valve ready")
	}

	reported := reporter.RunReporter(ctx, dbConn, registry)
	failsafecontroller.RunFailsafeController(ctx, registry)

	server := api.NewServer(dbConn, registry)
	go func() {
		if err := server.Start(cfg.Port); err != nil {
			shutdown.ShutdownWithError(registry, err, "REST API server stopped", closers...)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("Shutting down")

	cancel()
	select {
	case <-reported:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timed out waiting for final valve report")
	}
	shutdown.Shutdown(registry, 0, closers...)
}

// startActuator connects the valve's actuator and starts its background loop.
// Simulated actuators resume from the last persisted position, or closed.
func startActuator(ctx context.Context, dbConn *sql.DB, v config.Valve, res calibration.Result) (valve.Actuator, io.Closer, error) {
	interval := time.Duration(env.Cfg.PollIntervalMS) * time.Millisecond

	if v.Actuator.Type == config.ActuatorTic && !env.Cfg.SafeMode {
		tic, closer, err := actuator.OpenTic(v.Name, v.Actuator.I2CBus, v.Actuator.Variant, v.Actuator.Address)
		if err != nil {
			return nil, nil, err
		}
		go tic.Poll(ctx, interval)
		return tic, closer, nil
	}

	start := res.Calibration.Closed
	state, err := db.GetValveState(dbConn, v.Name)
	switch {
	case err == nil:
		start = state.Position
	case errors.Is(err, sql.ErrNoRows):
	default:
		log.Warn().Err(err).Str("valve", v.Name).Msg("Could not load last valve position")
	}

	sim := actuator.NewSimulated(start)
	go sim.Run(ctx, interval, v.Actuator.StepsPerTick)
	return sim, nil, nil
}
