// Package actuator provides command sinks for the thermostat's heater and
// cooler outputs. The real implementations drive GPIO relays or publish MQTT
// commands; the fake implementation records commands for testing.
package actuator

import (
	"errors"
)

// Sink accepts on/off commands for an actuator identity. Implementations
// must tolerate repeated same-state commands (keepalive resends).
type Sink interface {
	Set(id string, on bool) error
	Close() error
}

var safeMode bool

// SetSafeMode disables all real actuator output system-wide. Commands are
// still logged and recorded, but no relay or broker sees them.
func SetSafeMode(enabled bool) {
	safeMode = enabled
}

// Multi fans a command out to every sink. All sinks are attempted; errors
// are joined.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Set(id string, on bool) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Set(id, on); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
