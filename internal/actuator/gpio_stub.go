//go:build !linux

package actuator

import "errors"

// Binding maps an actuator id to a relay pin.
type Binding struct {
	ID         string
	Pin        int
	ActiveHigh bool
}

// GPIOSink is not available on non-Linux platforms.
type GPIOSink struct{}

func NewGPIOSink(chipName string, bindings []Binding) (*GPIOSink, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (s *GPIOSink) Set(id string, on bool) error {
	return errors.New("gpio: not supported")
}

func (s *GPIOSink) Close() error {
	return nil
}
