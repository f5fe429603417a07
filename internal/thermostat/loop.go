package thermostat

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/dualmode-thermostat/internal/datadog"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/model"
)

var (
	ErrInvalidRange     = errors.New("target_temp_low is above target_temp_high")
	ErrInvalidTolerance = errors.New("tolerance must be non-negative")
)

// Sink receives actuator commands. Implementations may be asynchronous and
// may silently drop commands; the loop never waits for confirmation.
type Sink interface {
	Set(id string, on bool) error
}

// CommandRecorder is notified of every emitted command, for persistence.
type CommandRecorder interface {
	RecordCommand(id string, on bool, at time.Time)
}

type Config struct {
	Mode          model.Mode
	TargetLow     float64
	TargetHigh    float64
	ColdTolerance float64
	HotTolerance  float64
	MinCycle      time.Duration
	KeepAlive     time.Duration
	ReverseCycle  bool
	HeaterID      string
	CoolerID      string

	// Plausibility bounds for incoming samples. Readings outside
	// [MinTemp, MaxTemp] are rejected without touching the actuators.
	MinTemp float64
	MaxTemp float64
}

type actuatorState struct {
	id       string
	on       bool
	lastSet  time.Time
	lastSent time.Time
	pending  *bool // flip suppressed by min-cycle, awaiting replay
}

// State is a point-in-time snapshot of the loop.
type State struct {
	Mode          model.Mode            `json:"mode"`
	TargetLow     float64               `json:"target_temp_low"`
	TargetHigh    float64               `json:"target_temp_high"`
	ColdTolerance float64               `json:"cold_tolerance"`
	HotTolerance  float64               `json:"hot_tolerance"`
	Heater        model.ActuatorCommand `json:"heater"`
	Cooler        model.ActuatorCommand `json:"cooler"`
	LastSample    *model.Sample         `json:"last_sample,omitempty"`
}

// Loop is the thermostat control loop. All public methods serialize on a
// single mutex; the decision step always reads and writes both actuators
// together.
type Loop struct {
	mu sync.Mutex

	mode         model.Mode
	low          float64
	high         float64
	coldTol      float64
	hotTol       float64
	minCycle     time.Duration
	keepAlive    time.Duration
	reverseCycle bool
	minTemp      float64
	maxTemp      float64

	heater actuatorState
	cooler actuatorState
	sample *model.Sample

	sink     Sink
	recorder CommandRecorder
	now      func() time.Time
}

func New(cfg Config, sink Sink, recorder CommandRecorder) *Loop {
	return newLoop(cfg, sink, recorder, time.Now)
}

// newLoop takes the clock as an argument so tests can drive the min-cycle
// and keepalive windows. Initial timestamps come from the same clock.
func newLoop(cfg Config, sink Sink, recorder CommandRecorder, now func() time.Time) *Loop {
	l := &Loop{
		mode:         cfg.Mode,
		low:          cfg.TargetLow,
		high:         cfg.TargetHigh,
		coldTol:      cfg.ColdTolerance,
		hotTol:       cfg.HotTolerance,
		minCycle:     cfg.MinCycle,
		keepAlive:    cfg.KeepAlive,
		reverseCycle: cfg.ReverseCycle,
		minTemp:      cfg.MinTemp,
		maxTemp:      cfg.MaxTemp,
		sink:         sink,
		recorder:     recorder,
		now:          now,
	}

	start := l.now()
	l.heater = actuatorState{id: cfg.HeaterID, on: false, lastSet: start, lastSent: start}
	l.cooler = actuatorState{id: cfg.CoolerID, on: false, lastSet: start, lastSent: start}
	return l
}

// SetMode changes the active mode and re-evaluates immediately. Switching
// into off commands both actuators off without debounce. An unrecognized
// mode is logged and ignored.
func (l *Loop) SetMode(mode model.Mode) {
	if !mode.Valid() {
		log.Error().Str("mode", string(mode)).Msg("Unrecognized mode")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if mode == l.mode {
		l.evaluate(true)
		return
	}

	log.Info().
		Str("from", string(l.mode)).
		Str("to", string(mode)).
		Msg("Mode change")

	l.mode = mode
	l.evaluate(true)
}

// SetTargetRange updates the low and high thresholds. Returns
// ErrInvalidRange when low > high while mode is heat_cool; the previous
// thresholds are retained on error.
func (l *Loop) SetTargetRange(low, high float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode == model.ModeHeatCool && low > high {
		return fmt.Errorf("%w: %.2f > %.2f", ErrInvalidRange, low, high)
	}

	l.low = low
	l.high = high
	l.evaluate(true)
	return nil
}

// SetTolerances updates the hysteresis margins. The heat role uses the cold
// tolerance around the low threshold, the cool role the hot tolerance around
// the high threshold.
func (l *Loop) SetTolerances(cold, hot float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cold < 0 || hot < 0 {
		return fmt.Errorf("%w: cold=%.2f hot=%.2f", ErrInvalidTolerance, cold, hot)
	}

	l.coldTol = cold
	l.hotTol = hot
	l.evaluate(true)
	return nil
}

// OnSample is the primary entry point. Invalid readings are logged and
// dropped without changing actuator state.
func (l *Loop) OnSample(temp float64, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.plausible(temp) {
		log.Warn().
			Float64("temp", temp).
			Time("timestamp", ts).
			Msg("Rejecting implausible temperature sample")
		datadog.Count("thermostat.sample.rejected", 1, "component:loop")
		return
	}

	l.sample = &model.Sample{Temperature: temp, Timestamp: ts}
	datadog.Gauge("thermostat.temperature", temp, "component:sensor")

	l.evaluate(false)
}

// OnTick replays pending flips that have cleared their min-cycle boundary
// and re-asserts current commands on the keepalive cadence.
func (l *Loop) OnTick(ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sharedDevice() {
		l.tickShared(ts)
		return
	}
	l.tickActuator(&l.heater, ts)
	l.tickActuator(&l.cooler, ts)
}

// ForceOff commands both actuators off, bypassing min-cycle debounce. The
// off is emitted unconditionally: recorded state may disagree with the device
// and this is the last chance to correct it before exit.
func (l *Loop) ForceOff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.heater.pending = nil
	l.cooler.pending = nil

	if l.sharedDevice() {
		l.send(l.heater.id, false, now)
		l.heater.on, l.cooler.on = false, false
		l.heater.lastSet, l.cooler.lastSet = now, now
		l.heater.lastSent, l.cooler.lastSent = now, now
		return
	}

	l.emit(&l.heater, false, now)
	l.heater.on = false
	l.heater.lastSet = now

	l.emit(&l.cooler, false, now)
	l.cooler.on = false
	l.cooler.lastSet = now
}

// CurrentState returns a snapshot of mode, thresholds and actuator commands.
func (l *Loop) CurrentState() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := State{
		Mode:          l.mode,
		TargetLow:     l.low,
		TargetHigh:    l.high,
		ColdTolerance: l.coldTol,
		HotTolerance:  l.hotTol,
		Heater:        model.ActuatorCommand{ID: l.heater.id, On: l.heater.on, LastSet: l.heater.lastSet, LastSent: l.heater.lastSent},
		Cooler:        model.ActuatorCommand{ID: l.cooler.id, On: l.cooler.on, LastSet: l.cooler.lastSet, LastSent: l.cooler.lastSent},
	}
	if l.sample != nil {
		s := *l.sample
		st.LastSample = &s
	}
	return st
}

// evaluate runs the per-role decision table against the last sample and
// applies the resulting commands. force bypasses min-cycle debounce for
// computed flips (mode and threshold changes); forced-off of an inactive
// role is never debounced regardless.
func (l *Loop) evaluate(force bool) {
	now := l.now()

	heatActive := l.mode.Heats()
	coolActive := l.mode.Cools()

	var heatWant, coolWant *bool
	if l.sample != nil {
		t := l.sample.Temperature
		if heatActive {
			heatWant = heatDecision(t, l.low, l.coldTol)
		}
		if coolActive {
			coolWant = coolDecision(t, l.high, l.hotTol)
		}
	}

	heatForcedOff := !heatActive
	coolForcedOff := !coolActive

	// Reverse-cycle devices must not pass through all-off when swapping
	// direction: if the incoming role already demands output, the only
	// emission is that role's on command.
	if l.reverseCycle && l.sharedDevice() {
		if heatForcedOff && l.heater.on && wantsOn(coolWant) {
			l.recordSilentOff(&l.heater, now)
			heatForcedOff = false
		}
		if coolForcedOff && l.cooler.on && wantsOn(heatWant) {
			l.recordSilentOff(&l.cooler, now)
			coolForcedOff = false
		}
	}

	switch {
	case heatForcedOff:
		l.command(&l.heater, false, true, now)
	case heatActive && heatWant != nil:
		l.command(&l.heater, *heatWant, force, now)
	case heatActive:
		l.replayPending(&l.heater, now)
	}

	switch {
	case coolForcedOff:
		l.command(&l.cooler, false, true, now)
	case coolActive && coolWant != nil:
		l.command(&l.cooler, *coolWant, force, now)
	case coolActive:
		l.replayPending(&l.cooler, now)
	}
}

// heatDecision implements the heat role's hysteresis band around low.
// nil means hold the previous state.
func heatDecision(t, low, tol float64) *bool {
	if t <= low-tol {
		return boolPtr(true)
	}
	if t >= low+tol {
		return boolPtr(false)
	}
	return nil
}

// coolDecision implements the cool role's hysteresis band around high.
func coolDecision(t, high, tol float64) *bool {
	if t >= high+tol {
		return boolPtr(true)
	}
	if t <= high-tol {
		return boolPtr(false)
	}
	return nil
}

// command applies a computed or forced transition to one actuator. Same-state
// commands are dropped (keepalive handles resends); computed flips inside the
// min-cycle window are recorded pending and replayed later.
func (l *Loop) command(a *actuatorState, on bool, forced bool, now time.Time) {
	if a.pending != nil && *a.pending != on {
		a.pending = nil
	}
	if a.on == on {
		return
	}
	if !forced && l.minCycle > 0 && now.Sub(a.lastSet) < l.minCycle {
		a.pending = boolPtr(on)
		log.Debug().
			Str("actuator", a.id).
			Bool("on", on).
			Dur("since_last_set", now.Sub(a.lastSet)).
			Dur("min_cycle", l.minCycle).
			Msg("Suppressing flip inside min-cycle window")
		return
	}

	a.pending = nil
	l.emit(a, on, now)
	a.on = on
	a.lastSet = now
}

// replayPending re-applies a suppressed flip once the min-cycle window
// has elapsed.
func (l *Loop) replayPending(a *actuatorState, now time.Time) {
	if a.pending == nil || now.Sub(a.lastSet) < l.minCycle {
		return
	}
	on := *a.pending
	a.pending = nil
	log.Info().Str("actuator", a.id).Bool("on", on).Msg("Applying deferred flip after min-cycle")
	l.emit(a, on, now)
	a.on = on
	a.lastSet = now
}

// tickActuator replays an eligible pending flip, then re-asserts the current
// command on the keepalive cadence. A flip still waiting out its window does
// not silence the keepalive.
func (l *Loop) tickActuator(a *actuatorState, now time.Time) {
	l.replayPending(a, now)

	if l.keepAlive > 0 && now.Sub(a.lastSent) >= l.keepAlive {
		log.Debug().Str("actuator", a.id).Bool("on", a.on).Msg("Keepalive resend")
		l.emit(a, a.on, now)
	}
}

// tickShared handles keepalive when heater and cooler map to one physical
// actuator: a single resend carries the device's effective state, so the off
// half of the pair can never de-energize a device the other half holds on.
func (l *Loop) tickShared(now time.Time) {
	l.replayPending(&l.heater, now)
	l.replayPending(&l.cooler, now)

	if l.keepAlive <= 0 {
		return
	}
	last := l.heater.lastSent
	if l.cooler.lastSent.After(last) {
		last = l.cooler.lastSent
	}
	if now.Sub(last) < l.keepAlive {
		return
	}

	on := l.heater.on || l.cooler.on
	log.Debug().Str("actuator", l.heater.id).Bool("on", on).Msg("Keepalive resend")
	l.send(l.heater.id, on, now)
	l.heater.lastSent = now
	l.cooler.lastSent = now
}

// emit sends a command and records the emission time. Fire and forget: the
// loop records the command as applied and relies on keepalive to recover
// from silent failures downstream.
func (l *Loop) emit(a *actuatorState, on bool, now time.Time) {
	l.send(a.id, on, now)
	a.lastSent = now
}

func (l *Loop) send(id string, on bool, now time.Time) {
	log.Info().Str("actuator", id).Bool("on", on).Msg("Sending actuator command")

	if err := l.sink.Set(id, on); err != nil {
		log.Error().Err(err).Str("actuator", id).Bool("on", on).Msg("Actuator command failed")
		datadog.Count("thermostat.command.error", 1, "actuator:"+id)
	}

	datadog.Count("thermostat.command.sent", 1, "actuator:"+id)
	datadog.Gauge("thermostat.actuator.state", boolToFloat(on), "actuator:"+id)

	if l.recorder != nil {
		l.recorder.RecordCommand(id, on, now)
	}
}

// recordSilentOff retires a role's recorded command without emitting, used
// only for the reverse-cycle direct swap on a shared device.
func (l *Loop) recordSilentOff(a *actuatorState, now time.Time) {
	log.Info().
		Str("actuator", a.id).
		Msg("Reverse-cycle swap: retiring role without de-energizing shared device")
	a.on = false
	a.lastSet = now
	a.pending = nil
}

func (l *Loop) plausible(t float64) bool {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return false
	}
	if l.minTemp < l.maxTemp && (t < l.minTemp || t > l.maxTemp) {
		return false
	}
	return true
}

func (l *Loop) sharedDevice() bool {
	return l.heater.id == l.cooler.id
}

func wantsOn(want *bool) bool {
	return want != nil && *want
}

func boolPtr(v bool) *bool {
	return &v
}

func boolToFloat(v bool) float64 {
	if v {
		return 1.0
	}
	return 0.0
}
