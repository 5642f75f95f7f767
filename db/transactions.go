package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/mixvalve/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func UpsertValveStateWithTx(tx *sql.Tx, s model.ValveStatus, at time.Time) error {
	_, err := tx.Exec(`INSERT INTO valves (name, last_target, last_position, last_flow, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET last_target = excluded.last_target, last_position = excluded.last_position,
		last_flow = excluded.last_flow, updated_at = excluded.updated_at`,
		s.Name, s.Target, s.Position, s.Flow, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert valve %s: %w", s.Name, err)
	}
	return nil
}

// SaveValveStates persists a batch of statuses in one transaction.
func SaveValveStates(db *sql.DB, statuses []model.ValveStatus, at time.Time) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		if err := UpsertValveStateWithTx(tx, s, at); err != nil {
			RollbackTransaction(tx)
			return err
		}
	}
	return CommitTransaction(tx)
}

func RecordValveCommand(db *sql.DB, c model.ValveCommand) error {
	var flow sql.NullFloat64
	if c.Flow != nil {
		flow = sql.NullFloat64{Float64: *c.Flow, Valid: true}
	}
	_, err := db.Exec(`INSERT INTO valve_commands (valve, command, flow, target, issued_at) VALUES (?, ?, ?, ?, ?)`,
		c.Valve, string(c.Command), flow, c.Target, c.IssuedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record %s command for %s: %w", c.Command, c.Valve, err)
	}
	return nil
}

// PruneValveCommands keeps only the newest keep commands per valve.
func PruneValveCommands(db *sql.DB, keep int) (int64, error) {
	res, err := db.Exec(`DELETE FROM valve_commands WHERE id IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY valve ORDER BY id DESC) AS rn FROM valve_commands
		) WHERE rn > ?
	)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune valve commands: %w", err)
	}
	return res.RowsAffected()
}
