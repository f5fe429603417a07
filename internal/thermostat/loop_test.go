package thermostat

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/dualmode-thermostat/internal/actuator"
	"github.com/thatsimonsguy/dualmode-thermostat/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

func testConfig() Config {
	return Config{
		Mode:          model.ModeHeatCool,
		TargetLow:     20.0,
		TargetHigh:    24.0,
		ColdTolerance: 0.5,
		HotTolerance:  0.5,
		HeaterID:      "heater",
		CoolerID:      "cooler",
		MinTemp:       -40.0,
		MaxTemp:       150.0,
	}
}

func newTestLoop(cfg Config) (*Loop, *actuator.Fake, *fakeClock) {
	sink := actuator.NewFake()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	loop := newLoop(cfg, sink, nil, clock.Now)
	return loop, sink, clock
}

func TestInitialTimestampsComeFromClock(t *testing.T) {
	loop, _, clock := newTestLoop(testConfig())

	state := loop.CurrentState()
	assert.Equal(t, clock.Now(), state.Heater.LastSet)
	assert.Equal(t, clock.Now(), state.Heater.LastSent)
	assert.Equal(t, clock.Now(), state.Cooler.LastSet)
	assert.Equal(t, clock.Now(), state.Cooler.LastSent)
}

func TestHeaterHysteresis(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	loop, sink, clock := newTestLoop(cfg)

	// On at low - tolerance, inclusive.
	loop.OnSample(19.5, clock.Now())
	assert.Equal(t, []actuator.Command{{ID: "heater", On: true}}, sink.Commands())

	// Dead band holds the previous state.
	sink.Reset()
	loop.OnSample(20.0, clock.Now())
	assert.Empty(t, sink.Commands())
	assert.True(t, loop.CurrentState().Heater.On)

	// Off at low + tolerance, inclusive.
	loop.OnSample(20.5, clock.Now())
	assert.Equal(t, []actuator.Command{{ID: "heater", On: false}}, sink.Commands())
}

func TestCoolerHysteresis(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeCool
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(24.5, clock.Now())
	assert.Equal(t, []actuator.Command{{ID: "cooler", On: true}}, sink.Commands())

	sink.Reset()
	loop.OnSample(24.0, clock.Now())
	assert.Empty(t, sink.Commands())
	assert.True(t, loop.CurrentState().Cooler.On)

	loop.OnSample(23.5, clock.Now())
	assert.Equal(t, []actuator.Command{{ID: "cooler", On: false}}, sink.Commands())
}

func TestDeadBandIdempotence(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	require.True(t, loop.CurrentState().Heater.On)
	sink.Reset()

	for i := 0; i < 5; i++ {
		loop.OnSample(20.2, clock.Advance(time.Minute))
	}
	assert.Empty(t, sink.Commands())
	assert.True(t, loop.CurrentState().Heater.On)
}

func TestHeatCoolScenario(t *testing.T) {
	loop, sink, clock := newTestLoop(testConfig())

	loop.OnSample(19.0, clock.Now())
	assert.Equal(t, []actuator.Command{{ID: "heater", On: true}}, sink.Commands())
	assert.False(t, loop.CurrentState().Cooler.On)

	sink.Reset()
	loop.OnSample(24.6, clock.Advance(time.Minute))
	assert.Equal(t, []actuator.Command{
		{ID: "heater", On: false},
		{ID: "cooler", On: true},
	}, sink.Commands())

	// Back inside the band: heater holds off, cooler has dropped below
	// high - tolerance and turns off.
	sink.Reset()
	loop.OnSample(22.0, clock.Advance(time.Minute))
	assert.Equal(t, []actuator.Command{{ID: "cooler", On: false}}, sink.Commands())

	// Squarely in the dead band of both roles now: nothing moves.
	sink.Reset()
	loop.OnSample(22.0, clock.Advance(time.Minute))
	assert.Empty(t, sink.Commands())
}

func TestOffModeForcesBothOffWithoutDebounce(t *testing.T) {
	cfg := testConfig()
	cfg.MinCycle = 10 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	require.True(t, loop.CurrentState().Heater.On)

	// Well inside the min-cycle window; off must not be delayed.
	clock.Advance(time.Minute)
	sink.Reset()
	loop.SetMode(model.ModeOff)

	assert.Equal(t, []actuator.Command{{ID: "heater", On: false}}, sink.Commands())
	state := loop.CurrentState()
	assert.False(t, state.Heater.On)
	assert.False(t, state.Cooler.On)
}

func TestRoleDeactivationForcesOff(t *testing.T) {
	cfg := testConfig()
	cfg.MinCycle = 10 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(24.6, clock.Now())
	require.True(t, loop.CurrentState().Cooler.On)

	clock.Advance(time.Minute)
	sink.Reset()
	loop.SetMode(model.ModeHeat)

	assert.Equal(t, []actuator.Command{{ID: "cooler", On: false}}, sink.Commands())
	assert.False(t, loop.CurrentState().Cooler.On)
}

func TestMinCycleSuppressesComputedFlip(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.MinCycle = 5 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	require.True(t, loop.CurrentState().Heater.On)
	sink.Reset()

	// Computed off inside the window is held pending.
	loop.OnSample(21.0, clock.Advance(2*time.Minute))
	assert.Empty(t, sink.Commands())
	assert.True(t, loop.CurrentState().Heater.On)

	// Still inside the window on tick.
	loop.OnTick(clock.Advance(time.Minute))
	assert.Empty(t, sink.Commands())

	// Window elapsed: the pending flip replays.
	loop.OnTick(clock.Advance(2 * time.Minute))
	assert.Equal(t, []actuator.Command{{ID: "heater", On: false}}, sink.Commands())
	assert.False(t, loop.CurrentState().Heater.On)
}

func TestPendingFlipReplaysOnSample(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.MinCycle = 5 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	loop.OnSample(21.0, clock.Advance(2*time.Minute))
	assert.Empty(t, sink.Commands())

	// Dead-band sample past the window still replays the deferred flip.
	loop.OnSample(20.2, clock.Advance(4*time.Minute))
	assert.Equal(t, []actuator.Command{{ID: "heater", On: false}}, sink.Commands())
}

func TestPendingFlipCancelledByReversal(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.MinCycle = 5 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	// Off goes pending, then the temperature falls again before replay.
	loop.OnSample(21.0, clock.Advance(2*time.Minute))
	loop.OnSample(19.0, clock.Advance(time.Minute))
	assert.Empty(t, sink.Commands())

	// Past the window nothing replays: the pending flip was cancelled.
	loop.OnTick(clock.Advance(5 * time.Minute))
	assert.Empty(t, sink.Commands())
	assert.True(t, loop.CurrentState().Heater.On)
}

func TestKeepaliveResendsCurrentCommand(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.KeepAlive = time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	// Interval not yet elapsed.
	loop.OnTick(clock.Advance(30 * time.Second))
	assert.Empty(t, sink.Commands())

	// Exactly one resend per elapsed interval.
	loop.OnTick(clock.Advance(30 * time.Second))
	assert.Equal(t, []actuator.Command{{ID: "heater", On: true}}, sink.Commands())

	sink.Reset()
	loop.OnTick(clock.Advance(30 * time.Second))
	assert.Empty(t, sink.Commands())

	loop.OnTick(clock.Advance(30 * time.Second))
	assert.Equal(t, []actuator.Command{{ID: "heater", On: true}}, sink.Commands())
}

func TestKeepaliveContinuesWhileFlipPending(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.MinCycle = 10 * time.Minute
	cfg.KeepAlive = time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	// Off is held pending by min-cycle; the current on command must still be
	// re-asserted on the keepalive cadence while the flip waits.
	loop.OnSample(21.0, clock.Advance(2*time.Minute))
	assert.Empty(t, sink.Commands())

	loop.OnTick(clock.Advance(time.Minute))
	assert.Equal(t, []actuator.Command{{ID: "heater", On: true}}, sink.Commands())

	// Once the window elapses the deferred flip replays; no extra resend in
	// the same tick.
	sink.Reset()
	loop.OnTick(clock.Advance(8 * time.Minute))
	assert.Equal(t, []actuator.Command{{ID: "heater", On: false}}, sink.Commands())
}

func TestKeepaliveDisabledByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	loop.OnTick(clock.Advance(24 * time.Hour))
	assert.Empty(t, sink.Commands())
}

func TestReverseCycleDirectSwap(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.HeaterID = "hvac"
	cfg.CoolerID = "hvac"
	cfg.ReverseCycle = true
	cfg.MinCycle = 10 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	require.True(t, loop.CurrentState().Heater.On)

	// Temperature has overshot but the computed heater-off is still held by
	// min-cycle when the mode flips to cool.
	loop.OnSample(24.6, clock.Advance(time.Minute))
	sink.Reset()
	loop.SetMode(model.ModeCool)

	// Exactly one command, straight to cooler-on. The shared device never
	// sees an intermediate off.
	assert.Equal(t, []actuator.Command{{ID: "hvac", On: true}}, sink.Commands())
	state := loop.CurrentState()
	assert.False(t, state.Heater.On)
	assert.True(t, state.Cooler.On)
}

func TestReverseCycleSwapWithoutDemandTurnsOff(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.HeaterID = "hvac"
	cfg.CoolerID = "hvac"
	cfg.ReverseCycle = true
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	require.True(t, loop.CurrentState().Heater.On)

	// Cool-on condition is not met, so the shared device is commanded off
	// as normal.
	sink.Reset()
	loop.SetMode(model.ModeCool)
	assert.Equal(t, []actuator.Command{{ID: "hvac", On: false}}, sink.Commands())
}

func TestSeparateDevicesSwapEmitsBothCommands(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.MinCycle = 10 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	loop.OnSample(24.6, clock.Advance(time.Minute))
	sink.Reset()

	loop.SetMode(model.ModeCool)
	assert.Equal(t, []actuator.Command{
		{ID: "heater", On: false},
		{ID: "cooler", On: true},
	}, sink.Commands())
}

func TestSharedDeviceKeepaliveMergesRoles(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.HeaterID = "hvac"
	cfg.CoolerID = "hvac"
	cfg.ReverseCycle = true
	cfg.KeepAlive = time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	// One resend for the device, not one per role: the idle cooler half must
	// never de-energize a device the heater half holds on.
	loop.OnTick(clock.Advance(time.Minute))
	assert.Equal(t, []actuator.Command{{ID: "hvac", On: true}}, sink.Commands())

	sink.Reset()
	loop.OnTick(clock.Advance(30 * time.Second))
	assert.Empty(t, sink.Commands())
}

func TestSetTargetRangeInvalidInHeatCool(t *testing.T) {
	loop, sink, clock := newTestLoop(testConfig())
	loop.OnSample(22.0, clock.Now())
	sink.Reset()

	err := loop.SetTargetRange(25.0, 20.0)
	assert.ErrorIs(t, err, ErrInvalidRange)

	// Previous thresholds retained.
	state := loop.CurrentState()
	assert.Equal(t, 20.0, state.TargetLow)
	assert.Equal(t, 24.0, state.TargetHigh)
	assert.Empty(t, sink.Commands())
}

func TestSetTargetRangeReevaluates(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(22.0, clock.Now())
	assert.Empty(t, sink.Commands())

	// Raising the band turns the heater on against the retained sample.
	require.NoError(t, loop.SetTargetRange(23.0, 26.0))
	assert.Equal(t, []actuator.Command{{ID: "heater", On: true}}, sink.Commands())
}

func TestSetTolerancesRejectsNegative(t *testing.T) {
	loop, _, _ := newTestLoop(testConfig())

	err := loop.SetTolerances(-0.1, 0.5)
	assert.ErrorIs(t, err, ErrInvalidTolerance)

	state := loop.CurrentState()
	assert.Equal(t, 0.5, state.ColdTolerance)
	assert.Equal(t, 0.5, state.HotTolerance)
}

func TestInvalidSamplesAreIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	loop, sink, clock := newTestLoop(cfg)

	for _, temp := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -100.0, 200.0} {
		loop.OnSample(temp, clock.Now())
	}
	assert.Empty(t, sink.Commands())
	assert.Nil(t, loop.CurrentState().LastSample)

	// A valid sample afterwards behaves normally.
	loop.OnSample(19.0, clock.Now())
	assert.Equal(t, []actuator.Command{{ID: "heater", On: true}}, sink.Commands())
}

func TestModeChangeWithoutSampleEmitsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeOff
	loop, sink, _ := newTestLoop(cfg)

	loop.SetMode(model.ModeHeat)
	loop.SetMode(model.ModeHeatCool)
	assert.Empty(t, sink.Commands())

	state := loop.CurrentState()
	assert.False(t, state.Heater.On)
	assert.False(t, state.Cooler.On)
}

func TestInvalidModeIgnored(t *testing.T) {
	loop, sink, _ := newTestLoop(testConfig())

	loop.SetMode(model.Mode("defrost"))
	assert.Equal(t, model.ModeHeatCool, loop.CurrentState().Mode)
	assert.Empty(t, sink.Commands())
}

func TestForceOffAlwaysEmits(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.MinCycle = 10 * time.Minute
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	// Both actuators get an off even where recorded state already says off.
	loop.ForceOff()
	assert.Equal(t, []actuator.Command{
		{ID: "heater", On: false},
		{ID: "cooler", On: false},
	}, sink.Commands())
}

func TestForceOffSharedDeviceSingleCommand(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	cfg.HeaterID = "hvac"
	cfg.CoolerID = "hvac"
	cfg.ReverseCycle = true
	loop, sink, clock := newTestLoop(cfg)

	loop.OnSample(19.0, clock.Now())
	sink.Reset()

	loop.ForceOff()
	assert.Equal(t, []actuator.Command{{ID: "hvac", On: false}}, sink.Commands())
}

func TestSinkFailureDoesNotBlockState(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = model.ModeHeat
	loop, sink, clock := newTestLoop(cfg)

	// Fire and forget: the loop records the command as applied and relies on
	// keepalive to recover.
	sink.FailNext()
	loop.OnSample(19.0, clock.Now())
	assert.True(t, loop.CurrentState().Heater.On)
}

func TestCurrentStateRoundTrip(t *testing.T) {
	loop, _, clock := newTestLoop(testConfig())

	require.NoError(t, loop.SetTargetRange(18.0, 26.0))
	require.NoError(t, loop.SetTolerances(0.4, 0.6))
	loop.SetMode(model.ModeCool)

	ts := clock.Advance(time.Minute)
	loop.OnSample(27.0, ts)

	state := loop.CurrentState()
	assert.Equal(t, model.ModeCool, state.Mode)
	assert.Equal(t, 18.0, state.TargetLow)
	assert.Equal(t, 26.0, state.TargetHigh)
	assert.Equal(t, 0.4, state.ColdTolerance)
	assert.Equal(t, 0.6, state.HotTolerance)
	assert.Equal(t, "heater", state.Heater.ID)
	assert.True(t, state.Cooler.On)
	require.NotNil(t, state.LastSample)
	assert.Equal(t, 27.0, state.LastSample.Temperature)
	assert.Equal(t, ts, state.LastSample.Timestamp)
}
