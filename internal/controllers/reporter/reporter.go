package reporter

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/db"
	"github.com/thatsimonsguy/mixvalve/internal/datadog"
	"github.com/thatsimonsguy/mixvalve/internal/env"
	"github.com/thatsimonsguy/mixvalve/internal/model"
)

// CommandHistoryKeep is how many commands per valve survive a prune.
const CommandHistoryKeep = 500

var saveStates = db.SaveValveStates
var pruneCommands = db.PruneValveCommands
var valveGauges = datadog.ValveGauges

// StatusSource is satisfied by valve.Registry.
type StatusSource interface {
	Statuses() []model.ValveStatus
}

// RunReporter periodically persists each valve's status and reports it to
// Datadog until ctx is done. The returned channel closes after the final flush.
func RunReporter(ctx context.Context, dbConn *sql.DB, src StatusSource) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().Int("interval_s", env.Cfg.ReportSeconds).Msg("Starting valve reporter")

		ticker := time.NewTicker(time.Duration(env.Cfg.ReportSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				report(dbConn, src, time.Now())
				log.Info().Msg("Valve reporter stopped")
				return
			case <-ticker.C:
				report(dbConn, src, time.Now())
			}
		}
	}()
	return done
}

func report(dbConn *sql.DB, src StatusSource, now time.Time) {
	statuses := src.Statuses()
	for _, s := range statuses {
		log.Debug().
			Str("valve", s.Name).
			Float64("flow", s.Flow).
			Int32("position", s.Position).
			Int32("target", s.Target).
			Msg("Valve status")
		valveGauges(s)
	}

	if err := saveStates(dbConn, statuses, now); err != nil {
		log.Error().Err(err).Msg("Could not persist valve states")
	}

	removed, err := pruneCommands(dbConn, CommandHistoryKeep)
	if err != nil {
		log.Error().Err(err).Msg("Could not prune valve command history")
	} else if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("Pruned valve command history")
	}
}
