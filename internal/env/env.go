package env

import (
	"github.com/thatsimonsguy/dualmode-thermostat/internal/config"
)

var Cfg *config.Config
