package model

import "time"

type Mode string

const (
	ModeOff      Mode = "off"
	ModeHeat     Mode = "heat"
	ModeCool     Mode = "cool"
	ModeHeatCool Mode = "heat_cool"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeHeat, ModeCool, ModeHeatCool:
		return true
	default:
		return false
	}
}

// Heats reports whether the heat role is active in this mode.
func (m Mode) Heats() bool {
	return m == ModeHeat || m == ModeHeatCool
}

// Cools reports whether the cool role is active in this mode.
func (m Mode) Cools() bool {
	return m == ModeCool || m == ModeHeatCool
}

// ActuatorCommand is the last command recorded for one actuator.
type ActuatorCommand struct {
	ID       string    `json:"id"`
	On       bool      `json:"on"`
	LastSet  time.Time `json:"last_set"`  // last state change
	LastSent time.Time `json:"last_sent"` // last emission, including keepalive resends
}

// Sample is a temperature reading from the sensor source.
type Sample struct {
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}
