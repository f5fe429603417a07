package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/dualmode-thermostat/internal/actuator"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/env"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/thermostat"
)

// ExitFunc is overridable in tests.
var ExitFunc = os.Exit

// Shutdown drives both actuators off, closes the sink and exits. When the
// operator asked for actuator states to be held across a restart the final
// all-off is skipped.
func Shutdown(loop *thermostat.Loop, sink actuator.Sink) {
	if env.Cfg != nil && env.Cfg.HoldOnExit {
		log.Warn().Msg("Exiting with actuator states held")
	} else if loop != nil {
		loop.ForceOff()
		log.Info().Msg("Actuators forced off")
	}

	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close actuator sink")
		}
	}
	ExitFunc(0)
}

func ShutdownWithError(loop *thermostat.Loop, sink actuator.Sink, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown(loop, sink)
}
