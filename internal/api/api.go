package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/db"
	"github.com/thatsimonsguy/mixvalve/internal/model"
	"github.com/thatsimonsguy/mixvalve/internal/valve"
)

const defaultHistoryLimit = 50

type Server struct {
	db       *sql.DB
	registry *valve.Registry
}

type ValveDetailResponse struct {
	model.ValveStatus
	Calibration model.ValveCalibration `json:"calibration"`
	Curve       []model.CurvePoint     `json:"curve"`
}

type FlowRequest struct {
	Flow *float64 `json:"flow"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, registry *valve.Registry) *Server {
	return &Server{
		db:       database,
		registry: registry,
	}
}

// Handler returns the API routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/valves", s.handleValves)
	mux.HandleFunc("/api/valves/", s.handleValveOperations)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleValves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/api/valves" {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.registry.Statuses())
}

func (s *Server) handleValveOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/valves/")
	parts := strings.Split(path, "/")

	if parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Valve name required")
		return
	}
	name := parts[0]

	switch len(parts) {
	case 1:
		// /api/valves/{name}
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.getValve(w, name)
	case 2:
		s.handleValveAction(w, r, name, parts[1])
	default:
		s.writeError(w, http.StatusNotFound, "Invalid path")
	}
}

func (s *Server) handleValveAction(w http.ResponseWriter, r *http.Request, name, action string) {
	var want string
	switch action {
	case "flow":
		want = http.MethodPut
	case "park", "open_all", "toggle":
		want = http.MethodPost
	case "history":
		want = http.MethodGet
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation")
		return
	}
	if r.Method != want {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch action {
	case "flow":
		s.setFlow(w, r, name)
	case "park":
		s.command(w, name, model.CommandPark, nil, func(c *valve.Controller) { c.Park() })
	case "open_all":
		s.command(w, name, model.CommandOpenAll, nil, func(c *valve.Controller) { c.OpenAll() })
	case "toggle":
		s.command(w, name, model.CommandToggle, nil, func(c *valve.Controller) { c.Handle(valve.Call{Toggle: true}) })
	case "history":
		s.getHistory(w, r, name)
	}
}

func (s *Server) getValve(w http.ResponseWriter, name string) {
	var resp ValveDetailResponse
	err := s.registry.Do(name, func(c *valve.Controller) {
		resp = ValveDetailResponse{
			ValveStatus: c.Status(),
			Calibration: c.Calibration(),
			Curve:       c.Curve().Points(),
		}
	})
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Valve not found")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setFlow(w http.ResponseWriter, r *http.Request, name string) {
	var req FlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Flow == nil {
		s.writeError(w, http.StatusBadRequest, "flow is required")
		return
	}

	// record what the valve was actually driven to
	flow := valve.ClampFlow(*req.Flow)
	s.command(w, name, model.CommandFlow, &flow, func(c *valve.Controller) { c.ControlValve(flow) })
}

// command applies fn to the named valve, records it and replies with the new status.
func (s *Server) command(w http.ResponseWriter, name string, kind model.CommandKind, flow *float64, fn func(*valve.Controller)) {
	var status model.ValveStatus
	err := s.registry.Do(name, func(c *valve.Controller) {
		fn(c)
		status = c.Status()
	})
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Valve not found")
		return
	}

	cmd := model.ValveCommand{
		Valve:    name,
		Command:  kind,
		Flow:     flow,
		Target:   status.Target,
		IssuedAt: time.Now(),
	}
	if err := db.RecordValveCommand(s.db, cmd); err != nil {
		log.Error().Err(err).Str("valve", name).Msg("Failed to record valve command")
	}

	log.Info().Str("valve", name).Str("command", string(kind)).Int32("target", status.Target).Msg("Valve command applied via API")
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request, name string) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if err := s.registry.Do(name, func(*valve.Controller) {}); errors.Is(err, valve.ErrUnknownValve) {
		s.writeError(w, http.StatusNotFound, "Valve not found")
		return
	}

	cmds, err := db.GetValveCommands(s.db, name, limit)
	if err != nil {
		log.Error().Err(err).Str("valve", name).Msg("Failed to get valve history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cmds == nil {
		cmds = []model.ValveCommand{}
	}
	s.writeJSON(w, http.StatusOK, cmds)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
