package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/mixvalve/internal/model"
)

// GetValveState retrieves the last persisted state of a valve.
func GetValveState(db *sql.DB, name string) (*model.ValveState, error) {
	var s model.ValveState
	var updatedAt string
	err := db.QueryRow(`SELECT name, last_target, last_position, last_flow, updated_at FROM valves WHERE name = ?`, name).
		Scan(&s.Name, &s.Target, &s.Position, &s.Flow, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get valve %s: %w", name, err)
	}
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

// GetAllValveStates retrieves every persisted valve, ordered by name.
func GetAllValveStates(db *sql.DB) ([]model.ValveState, error) {
	rows, err := db.Query(`SELECT name, last_target, last_position, last_flow, updated_at FROM valves ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query valves: %w", err)
	}
	defer rows.Close()

	var states []model.ValveState
	for rows.Next() {
		var s model.ValveState
		var updatedAt string
		if err := rows.Scan(&s.Name, &s.Target, &s.Position, &s.Flow, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan valve: %w", err)
		}
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		states = append(states, s)
	}
	return states, rows.Err()
}

// GetValveCommands returns the most recent commands for a valve, newest first.
func GetValveCommands(db *sql.DB, name string, limit int) ([]model.ValveCommand, error) {
	rows, err := db.Query(`SELECT id, valve, command, flow, target, issued_at FROM valve_commands WHERE valve = ? ORDER BY id DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands for %s: %w", name, err)
	}
	defer rows.Close()

	var cmds []model.ValveCommand
	for rows.Next() {
		var c model.ValveCommand
		var flow sql.NullFloat64
		var issuedAt string
		if err := rows.Scan(&c.ID, &c.Valve, &c.Command, &flow, &c.Target, &issuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		if flow.Valid {
			f := flow.Float64
			c.Flow = &f
		}
		c.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}
