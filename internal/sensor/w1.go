// Package sensor feeds temperature readings into the control loop, either
// from a 1-wire probe on the local bus or from an MQTT topic. Sources never
// filter readings themselves; invalid values are handed to the loop, which
// rejects them without touching the actuators.
package sensor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SampleFunc delivers one reading to the control loop.
type SampleFunc func(temp float64, ts time.Time)

// W1Poller reads a DS18B20-style probe from the 1-wire sysfs bus on a fixed
// interval.
type W1Poller struct {
	path     string
	interval time.Duration
	onSample SampleFunc
}

func NewW1Poller(bus string, interval time.Duration, onSample SampleFunc) *W1Poller {
	return &W1Poller{
		path:     filepath.Join("/sys/bus/w1/devices", bus),
		interval: interval,
		onSample: onSample,
	}
}

// Run polls until stop is closed. Read failures deliver NaN so the loop
// counts a rejected sample instead of the poller deciding anything.
func (p *W1Poller) Run(stop <-chan struct{}) {
	log.Info().Str("path", p.path).Dur("interval", p.interval).Msg("Starting 1-wire sensor poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			log.Info().Msg("Stopping 1-wire sensor poller")
			return
		case <-ticker.C:
			temp, err := ReadSensorTempWithRetries(p.path, 3)
			if err != nil {
				log.Error().Err(err).Str("path", p.path).Msg("Sensor read failed after retries")
				p.onSample(math.NaN(), time.Now())
				continue
			}
			p.onSample(temp, time.Now())
		}
	}
}

// ReadSensorTempWithRetries retries transient read failures with a short
// sleep between attempts.
func ReadSensorTempWithRetries(sensorPath string, retries int) (float64, error) {
	temp, err := ReadSensorTemp(sensorPath)
	if err != nil && retries > 0 {
		time.Sleep(2 * time.Second)
		return ReadSensorTempWithRetries(sensorPath, retries-1)
	}
	return temp, err
}

// ReadSensorTemp parses the w1_slave file for a probe and returns degrees
// Celsius.
var ReadSensorTemp = func(sensorPath string) (float64, error) {
	file := filepath.Join(sensorPath, "w1_slave")
	data, err := os.ReadFile(file)
	if err != nil {
		return 0.0, fmt.Errorf("read sensor data: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || !strings.Contains(lines[1], "t=") {
		return 0.0, fmt.Errorf("temperature data missing or malformed")
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return 0.0, fmt.Errorf("could not parse temperature line")
	}

	tempMilliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0.0, fmt.Errorf("convert temperature: %w", err)
	}

	return float64(tempMilliC) / 1000.0, nil
}
