package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/dualmode-thermostat/db"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/model"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/thermostat"
)

type Server struct {
	loop *thermostat.Loop
	db   *sql.DB
}

type ModeResponse struct {
	Mode string `json:"mode"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type TargetsRequest struct {
	TargetTempLow  float64 `json:"target_temp_low"`
	TargetTempHigh float64 `json:"target_temp_high"`
}

type TolerancesRequest struct {
	ColdTolerance float64 `json:"cold_tolerance"`
	HotTolerance  float64 `json:"hot_tolerance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(loop *thermostat.Loop, database *sql.DB) *Server {
	return &Server{loop: loop, db: database}
}

func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Add CORS middleware
	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/thermostat/mode", s.handleMode)
	mux.HandleFunc("/api/thermostat/targets", s.handleTargets)
	mux.HandleFunc("/api/thermostat/tolerances", s.handleTolerances)
	mux.HandleFunc("/api/thermostat/state", s.handleState)

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, corsHandler)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getMode(w, r)
	case http.MethodPut:
		s.setMode(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.setTargets(w, r)
}

func (s *Server) handleTolerances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.setTolerances(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.loop.CurrentState())
}

func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	state := s.loop.CurrentState()
	s.writeJSON(w, http.StatusOK, ModeResponse{Mode: string(state.Mode)})
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	mode := model.Mode(req.Mode)
	if !mode.Valid() {
		s.writeError(w, http.StatusBadRequest, "Invalid mode. Valid modes: off, heat, cool, heat_cool")
		return
	}

	s.loop.SetMode(mode)
	s.persistSettings()

	log.Info().Str("mode", req.Mode).Msg("Mode updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setTargets(w http.ResponseWriter, r *http.Request) {
	var req TargetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.loop.SetTargetRange(req.TargetTempLow, req.TargetTempHigh); err != nil {
		if errors.Is(err, thermostat.ErrInvalidRange) {
			s.writeError(w, http.StatusBadRequest, err.Error())
		} else {
			log.Error().Err(err).Msg("Failed to update target range")
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.persistSettings()

	log.Info().
		Float64("low", req.TargetTempLow).
		Float64("high", req.TargetTempHigh).
		Msg("Target range updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setTolerances(w http.ResponseWriter, r *http.Request) {
	var req TolerancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.loop.SetTolerances(req.ColdTolerance, req.HotTolerance); err != nil {
		if errors.Is(err, thermostat.ErrInvalidTolerance) {
			s.writeError(w, http.StatusBadRequest, err.Error())
		} else {
			log.Error().Err(err).Msg("Failed to update tolerances")
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.persistSettings()

	log.Info().
		Float64("cold", req.ColdTolerance).
		Float64("hot", req.HotTolerance).
		Msg("Tolerances updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) persistSettings() {
	if s.db == nil {
		return
	}
	state := s.loop.CurrentState()
	err := db.SaveSettings(s.db, db.Settings{
		Mode:          state.Mode,
		TargetLow:     state.TargetLow,
		TargetHigh:    state.TargetHigh,
		ColdTolerance: state.ColdTolerance,
		HotTolerance:  state.HotTolerance,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist settings")
	}
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
