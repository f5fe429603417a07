//go:build linux

package actuator

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// Binding maps an actuator id to a relay pin.
type Binding struct {
	ID         string
	Pin        int
	ActiveHigh bool
}

type gpioLine struct {
	line       *gpiocdev.Line
	activeHigh bool
}

// GPIOSink drives relay pins through the Linux GPIO character device.
type GPIOSink struct {
	chip  *gpiocdev.Chip
	lines map[string]gpioLine
}

// NewGPIOSink opens the chip and requests every bound pin as an output in
// its inactive state. A shared actuator id may appear once; two ids may not
// share a pin.
func NewGPIOSink(chipName string, bindings []Binding) (*GPIOSink, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	s := &GPIOSink{chip: chip, lines: make(map[string]gpioLine)}

	for _, b := range bindings {
		if _, exists := s.lines[b.ID]; exists {
			continue
		}
		line, err := chip.RequestLine(b.Pin, gpiocdev.AsOutput(inactiveLevel(b.ActiveHigh)))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("request pin %d for %s: %w", b.Pin, b.ID, err)
		}
		s.lines[b.ID] = gpioLine{line: line, activeHigh: b.ActiveHigh}
		log.Info().Str("actuator", b.ID).Int("pin", b.Pin).Bool("active_high", b.ActiveHigh).Msg("GPIO output ready")
	}

	return s, nil
}

func (s *GPIOSink) Set(id string, on bool) error {
	l, ok := s.lines[id]
	if !ok {
		return fmt.Errorf("no gpio binding for actuator %s", id)
	}
	if safeMode {
		log.Warn().Str("actuator", id).Bool("on", on).Msg("Safe mode: suppressing GPIO write")
		return nil
	}

	level := inactiveLevel(l.activeHigh)
	if on {
		level = activeLevel(l.activeHigh)
	}
	if err := l.line.SetValue(level); err != nil {
		return fmt.Errorf("set pin for %s: %w", id, err)
	}
	return nil
}

// Close releases all lines and the chip. Pin levels are left as last
// commanded so a hold-on-exit state survives the process.
func (s *GPIOSink) Close() error {
	var firstErr error
	for id, l := range s.lines {
		if err := l.line.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close line for %s: %w", id, err)
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close chip: %w", err)
		}
	}
	return firstErr
}

func activeLevel(activeHigh bool) int {
	if activeHigh {
		return 1
	}
	return 0
}

func inactiveLevel(activeHigh bool) int {
	if activeHigh {
		return 0
	}
	return 1
}
