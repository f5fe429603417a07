package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/dualmode-thermostat/internal/model"
)

// Settings is the persisted thermostat configuration, restored at startup so
// a restart resumes the previous mode and targets.
type Settings struct {
	Mode          model.Mode
	TargetLow     float64
	TargetHigh    float64
	ColdTolerance float64
	HotTolerance  float64
}

// GetSettings retrieves the persisted settings. Returns (nil, nil) when no
// settings have been saved yet.
func GetSettings(db *sql.DB) (*Settings, error) {
	var s Settings
	err := db.QueryRow(`SELECT mode, target_temp_low, target_temp_high, cold_tolerance, hot_tolerance FROM settings WHERE id = 1`).
		Scan(&s.Mode, &s.TargetLow, &s.TargetHigh, &s.ColdTolerance, &s.HotTolerance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings persists the current settings, replacing any previous row.
func SaveSettings(db *sql.DB, s Settings) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO settings (id, mode, target_temp_low, target_temp_high, cold_tolerance, hot_tolerance, updated_at) VALUES (1, ?, ?, ?, ?, ?, ?)`,
		string(s.Mode), s.TargetLow, s.TargetHigh, s.ColdTolerance, s.HotTolerance, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// RecordActuatorCommand upserts the last command recorded for an actuator.
func RecordActuatorCommand(db *sql.DB, id string, on bool, at time.Time) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO actuators (id, state, last_set) VALUES (?, ?, ?)`,
		id, on, at.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record actuator command for %s: %w", id, err)
	}
	return nil
}

// GetActuatorCommand retrieves the last recorded command for an actuator.
func GetActuatorCommand(db *sql.DB, id string) (*model.ActuatorCommand, error) {
	var cmd model.ActuatorCommand
	var lastSet string
	err := db.QueryRow(`SELECT id, state, last_set FROM actuators WHERE id = ?`, id).
		Scan(&cmd.ID, &cmd.On, &lastSet)
	if err != nil {
		return nil, fmt.Errorf("failed to get actuator %s: %w", id, err)
	}
	cmd.LastSet, _ = time.Parse(time.RFC3339, lastSet)
	return &cmd, nil
}
