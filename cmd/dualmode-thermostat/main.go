package main

import (
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/dualmode-thermostat/db"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/actuator"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/api"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/config"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/datadog"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/env"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/logging"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/sensor"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/thermostat"
	"github.com/thatsimonsguy/dualmode-thermostat/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db_file", cfg.DBFile).
		Msg("Starting dual-mode thermostat")

	if cfg.EnableDatadog {
		datadog.InitMetrics()
	}

	actuator.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED — actuator output is disabled system-wide")
	}

	database, err := db.Open(cfg.DBFile)
	if err != nil {
		log.Fatal().Err(err).Str("db_file", cfg.DBFile).Msg("Failed to open state database")
	}
	defer database.Close()

	restoreSettings(&cfg, database)

	sink := buildSink(cfg)

	loop := thermostat.New(thermostat.Config{
		Mode:          cfg.Mode,
		TargetLow:     cfg.TargetTempLow,
		TargetHigh:    cfg.TargetTempHigh,
		ColdTolerance: *cfg.ColdTolerance,
		HotTolerance:  *cfg.HotTolerance,
		MinCycle:      cfg.MinCycle(),
		KeepAlive:     cfg.KeepAlive(),
		ReverseCycle:  cfg.ReverseCycle,
		HeaterID:      cfg.Heater.ID,
		CoolerID:      cfg.Cooler.ID,
		MinTemp:       cfg.MinTemp,
		MaxTemp:       cfg.MaxTemp,
	}, sink, &commandRecorder{db: database})

	log.Info().
		Str("mode", string(cfg.Mode)).
		Float64("target_temp_low", cfg.TargetTempLow).
		Float64("target_temp_high", cfg.TargetTempHigh).
		Msg("Control loop ready")

	stop := make(chan struct{})

	switch cfg.SensorSource {
	case "mqtt":
		src, err := sensor.NewMQTTSource(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.SensorTopic, loop.OnSample)
		if err != nil {
			shutdown.ShutdownWithError(loop, sink, err, "Failed to connect sensor source")
		}
		defer src.Close()
	default:
		poller := sensor.NewW1Poller(cfg.SensorBus, time.Duration(cfg.PollIntervalSeconds)*time.Second, loop.OnSample)
		go poller.Run(stop)
	}

	go runTicker(loop, time.Duration(cfg.TickIntervalSeconds)*time.Second, stop)

	server := api.NewServer(loop, database)
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			shutdown.ShutdownWithError(loop, sink, err, "API server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info().Str("signal", received.String()).Msg("Shutting down")

	close(stop)
	shutdown.Shutdown(loop, sink)
}

// restoreSettings overlays persisted settings onto the config so a restart
// resumes the previous mode and thresholds.
func restoreSettings(cfg *config.Config, database *sql.DB) {
	saved, err := db.GetSettings(database)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load saved settings, using config values")
		return
	}
	if saved == nil {
		return
	}

	cfg.Mode = saved.Mode
	cfg.TargetTempLow = saved.TargetLow
	cfg.TargetTempHigh = saved.TargetHigh
	cfg.ColdTolerance = &saved.ColdTolerance
	cfg.HotTolerance = &saved.HotTolerance

	log.Info().
		Str("mode", string(saved.Mode)).
		Float64("target_temp_low", saved.TargetLow).
		Float64("target_temp_high", saved.TargetHigh).
		Msg("Restored persisted settings")
}

func buildSink(cfg config.Config) actuator.Sink {
	var sinks []actuator.Sink

	for _, name := range cfg.SinkList() {
		switch name {
		case "gpio":
			bindings := []actuator.Binding{
				{ID: cfg.Heater.ID, Pin: *cfg.Heater.Pin, ActiveHigh: cfg.Heater.ActiveHigh},
				{ID: cfg.Cooler.ID, Pin: *cfg.Cooler.Pin, ActiveHigh: cfg.Cooler.ActiveHigh},
			}
			s, err := actuator.NewGPIOSink(cfg.GPIOChip, bindings)
			if err != nil {
				log.Fatal().Err(err).Str("chip", cfg.GPIOChip).Msg("Failed to open GPIO sink")
			}
			sinks = append(sinks, s)
		case "mqtt":
			s, err := actuator.NewMQTTSink(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.CommandTopic)
			if err != nil {
				log.Fatal().Err(err).Str("broker", cfg.MQTT.Broker).Msg("Failed to connect MQTT sink")
			}
			sinks = append(sinks, s)
		}
	}

	if len(sinks) == 1 {
		return sinks[0]
	}
	return actuator.NewMulti(sinks...)
}

func runTicker(loop *thermostat.Loop, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			loop.OnTick(t)
		}
	}
}

// commandRecorder persists every emitted actuator command.
type commandRecorder struct {
	db *sql.DB
}

func (r *commandRecorder) RecordCommand(id string, on bool, at time.Time) {
	if err := db.RecordActuatorCommand(r.db, id, on, at); err != nil {
		log.Error().Err(err).Str("actuator", id).Msg("Failed to record actuator command")
	}
}
