package db

import (
	"github.com/thatsimonsguy/mixvalve/internal/model"
)

// ValveHistoryCLI opens the database at dbPath and returns the persisted
// state and recent commands for a valve.
func ValveHistoryCLI(dbPath, name string, limit int) (*model.ValveState, []model.ValveCommand, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	state, err := GetValveState(conn, name)
	if err != nil {
		return nil, nil, err
	}
	cmds, err := GetValveCommands(conn, name, limit)
	if err != nil {
		return nil, nil, err
	}
	return state, cmds, nil
}

// AllValveStatesCLI opens the database at dbPath and returns the persisted
// state of every valve.
func AllValveStatesCLI(dbPath string) ([]model.ValveState, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return GetAllValveStates(conn)
}
