package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/dualmode-thermostat/internal/model"
)

const DefaultTolerance = 0.3

type Actuator struct {
	ID         string `json:"id"`
	Pin        *int   `json:"pin"`
	ActiveHigh bool   `json:"active_high"`
}

type MQTT struct {
	Broker       string `json:"broker"`
	ClientID     string `json:"client_id"`
	SensorTopic  string `json:"sensor_topic"`
	CommandTopic string `json:"command_topic"`
}

type Config struct {
	ConfigFile string
	DBFile     string
	LogFile    string
	LogLevel   zerolog.Level
	SafeMode   bool
	HoldOnExit bool

	Mode           model.Mode `json:"mode"`
	TargetTempLow  float64    `json:"target_temp_low"`
	TargetTempHigh float64    `json:"target_temp_high"`
	ColdTolerance  *float64   `json:"cold_tolerance"`
	HotTolerance   *float64   `json:"hot_tolerance"`
	MinTemp        float64    `json:"min_temp"`
	MaxTemp        float64    `json:"max_temp"`

	MinCycleSeconds  int  `json:"min_cycle_seconds"`
	KeepAliveSeconds int  `json:"keep_alive_seconds"`
	ReverseCycle     bool `json:"reverse_cycle"`

	Heater Actuator `json:"heater"`
	Cooler Actuator `json:"cooler"`

	// "gpio", "mqtt" or "gpio,mqtt"
	ActuatorSinks string `json:"actuator_sinks"`
	GPIOChip      string `json:"gpio_chip"`

	// "mqtt" or "w1"
	SensorSource        string `json:"sensor_source"`
	SensorBus           string `json:"sensor_bus"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	TickIntervalSeconds int    `json:"tick_interval_seconds"`

	MQTT MQTT `json:"mqtt"`

	APIPort int `json:"api_port"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to thermostat config file")
	flag.StringVar(&cfg.DBFile, "db-file", "data/thermostat.db", "Path to sqlite state database")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path (empty for stderr)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.SafeMode, "safe-mode", false, "Disable all actuator output system-wide")
	flag.BoolVar(&cfg.HoldOnExit, "hold-on-exit", false, "Skip the final all-off command at shutdown")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Mode == "" {
		cfg.Mode = model.ModeOff
	}
	if cfg.ColdTolerance == nil {
		v := DefaultTolerance
		cfg.ColdTolerance = &v
	}
	if cfg.HotTolerance == nil {
		v := DefaultTolerance
		cfg.HotTolerance = &v
	}
	if cfg.MinTemp == 0 && cfg.MaxTemp == 0 {
		cfg.MinTemp = -40.0
		cfg.MaxTemp = 150.0
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 30
	}
	if cfg.TickIntervalSeconds == 0 {
		cfg.TickIntervalSeconds = 10
	}
	if cfg.GPIOChip == "" {
		cfg.GPIOChip = "gpiochip0"
	}
	if cfg.ActuatorSinks == "" {
		cfg.ActuatorSinks = "gpio"
	}
	if cfg.SensorSource == "" {
		cfg.SensorSource = "w1"
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "dualmode-thermostat"
	}
}

func (cfg *Config) validate() {
	var problems []string

	if !cfg.Mode.Valid() {
		problems = append(problems, fmt.Sprintf("unrecognized mode %q", cfg.Mode))
	}
	if cfg.TargetTempLow > cfg.TargetTempHigh {
		problems = append(problems, fmt.Sprintf("target_temp_low %.1f above target_temp_high %.1f", cfg.TargetTempLow, cfg.TargetTempHigh))
	}
	if *cfg.ColdTolerance < 0 {
		problems = append(problems, "cold_tolerance is negative")
	}
	if *cfg.HotTolerance < 0 {
		problems = append(problems, "hot_tolerance is negative")
	}
	if cfg.MinCycleSeconds < 0 {
		problems = append(problems, "min_cycle_seconds is negative")
	}
	if cfg.KeepAliveSeconds < 0 {
		problems = append(problems, "keep_alive_seconds is negative")
	}
	if cfg.Heater.ID == "" {
		problems = append(problems, "heater.id is required")
	}
	if cfg.Cooler.ID == "" {
		problems = append(problems, "cooler.id is required")
	}
	if cfg.Heater.ID != "" && cfg.Heater.ID == cfg.Cooler.ID && !cfg.ReverseCycle {
		problems = append(problems, "heater and cooler share an actuator id but reverse_cycle is false")
	}

	for _, sink := range cfg.SinkList() {
		switch sink {
		case "gpio":
			if cfg.Heater.Pin == nil {
				problems = append(problems, "heater.pin is required for the gpio sink")
			}
			if cfg.Cooler.Pin == nil {
				problems = append(problems, "cooler.pin is required for the gpio sink")
			}
			if cfg.Heater.Pin != nil && cfg.Cooler.Pin != nil &&
				*cfg.Heater.Pin == *cfg.Cooler.Pin && cfg.Heater.ID != cfg.Cooler.ID {
				problems = append(problems, fmt.Sprintf("heater and cooler both use pin %d", *cfg.Heater.Pin))
			}
		case "mqtt":
			if cfg.MQTT.Broker == "" {
				problems = append(problems, "mqtt.broker is required for the mqtt sink")
			}
			if cfg.MQTT.CommandTopic == "" {
				problems = append(problems, "mqtt.command_topic is required for the mqtt sink")
			}
		default:
			problems = append(problems, fmt.Sprintf("unrecognized actuator sink %q", sink))
		}
	}

	switch cfg.SensorSource {
	case "w1":
		if cfg.SensorBus == "" {
			problems = append(problems, "sensor_bus is required for the w1 sensor source")
		}
	case "mqtt":
		if cfg.MQTT.Broker == "" {
			problems = append(problems, "mqtt.broker is required for the mqtt sensor source")
		}
		if cfg.MQTT.SensorTopic == "" {
			problems = append(problems, "mqtt.sensor_topic is required for the mqtt sensor source")
		}
	default:
		problems = append(problems, fmt.Sprintf("unrecognized sensor source %q", cfg.SensorSource))
	}

	if len(problems) > 0 {
		panic("Invalid thermostat config: " + strings.Join(problems, "; "))
	}
}

func (cfg *Config) SinkList() []string {
	parts := strings.Split(cfg.ActuatorSinks, ",")
	sinks := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

func (cfg *Config) MinCycle() time.Duration {
	return time.Duration(cfg.MinCycleSeconds) * time.Second
}

func (cfg *Config) KeepAlive() time.Duration {
	return time.Duration(cfg.KeepAliveSeconds) * time.Second
}
