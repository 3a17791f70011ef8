package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/iaqmon"
	"github.com/mklimuk/iaqmon/clock"
	"github.com/mklimuk/iaqmon/config"
	"github.com/mklimuk/iaqmon/engine"
	"github.com/mklimuk/iaqmon/engine/emulator"
	"github.com/mklimuk/iaqmon/i2c"
	"github.com/mklimuk/iaqmon/telemetry"
)

// cadenceEngine produces one output per step, two seconds apart.
type cadenceEngine struct {
	cb    engine.Callbacks
	steps int
}

func (e *cadenceEngine) Version() engine.Version {
	return engine.Version{Major: 1}
}

func (e *cadenceEngine) Init(_ engine.SampleRate, _ float32, cb engine.Callbacks) engine.Status {
	e.cb = cb
	return engine.Status{}
}

func (e *cadenceEngine) Step(ts int64) (int64, engine.Status) {
	e.steps++
	buf := make([]byte, 1)
	if e.cb.ReadRegister(0xD0, buf) != 0 {
		return ts + int64(2*time.Second), engine.Status{Sensor: engine.SensorComFail}
	}
	e.cb.OutputReady(engine.Output{
		Timestamp:   ts,
		IAQ:         float32(40 + e.steps),
		IAQAccuracy: 3,
		Temperature: float32(30 + e.steps),
		RawPressure: 100000,
		Humidity:    40,
	}, engine.LibraryOK)
	return ts + int64(2*time.Second), engine.Status{}
}

type call struct {
	metric string
	value  float64
}

type recordingSink struct {
	mx    sync.Mutex
	calls []call
}

func (s *recordingSink) Publish(_ context.Context, metric string, value float64) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.calls = append(s.calls, call{metric: metric, value: value})
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.State.Dir = t.TempDir()
	return cfg
}

func quiet() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestMonitor_EndToEnd(t *testing.T) {
	var device string
	var address uint16
	regs := i2c.NewRegisterFile(nil)
	bus := i2c.NewTransport(func(d string, a uint16) (i2c.Conn, error) {
		device, address = d, a
		return regs.Opener()(d, a)
	})
	sink := &recordingSink{}
	sim := clock.NewSimulated()
	eng := &cadenceEngine{}

	m, err := New(testConfig(t), eng, bus, WithSimulatedClock(sim), WithSink(sink), WithLogger(quiet()))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var samples []iaqmon.Sample
	m.Subscribe(func(s iaqmon.Sample) {
		samples = append(samples, s)
		if len(samples) == 10 {
			cancel()
		}
	})

	require.NoError(t, m.Adapter().Init(ctx))
	assert.Equal(t, "/dev/i2c-1", device)
	assert.Equal(t, uint16(0x77), address)

	const window = 15 * time.Second
	var flushes [][]telemetry.Result
	nextFlush := sim.Now() + window
	err = m.Scheduler().Run(ctx, func(ctx context.Context, now time.Duration) (time.Duration, error) {
		for now >= nextFlush {
			flushes = append(flushes, m.Publisher().Flush(ctx))
			nextFlush += window
		}
		return m.Adapter().Step(ctx, now)
	})
	require.NoError(t, err)
	flushes = append(flushes, m.Publisher().Flush(context.Background()))

	require.Len(t, samples, 10)
	for i := 1; i < len(samples); i++ {
		assert.Equal(t, 2*time.Second, samples[i].Timestamp-samples[i-1].Timestamp)
	}

	require.Len(t, flushes, 2)
	for _, results := range flushes {
		seen := map[string]int{}
		for _, r := range results {
			seen[r.Metric]++
			assert.Equal(t, telemetry.StatusPublished, r.Status)
		}
		for metric, n := range seen {
			assert.Equal(t, 1, n, "at most one call for %s per window", metric)
		}
	}
	assert.Len(t, sink.calls, 6)

	// the first window saw samples 1 to 8, the last value wins
	temp, ok := m.Publisher().Last("rpi4temperature")
	require.True(t, ok)
	assert.InDelta(t, 40-9.0, temp, 1e-3)
	assert.Contains(t, sink.calls, call{metric: "rpi4iaq", value: 1})
	assert.Contains(t, sink.calls, call{metric: "rpi4humidity", value: 40})
	var firstTemp float64
	for _, c := range sink.calls[:3] {
		if c.metric == "rpi4temperature" {
			firstTemp = c.value
		}
	}
	assert.InDelta(t, 38-9.0, firstTemp, 1e-3)
	assert.Equal(t, 10, eng.steps)
}

func TestMonitor_RunPublishesOncePerWindow(t *testing.T) {
	sink := &recordingSink{}
	sim := clock.NewSimulated()
	eng := &cadenceEngine{}
	m, err := New(testConfig(t), eng, i2c.NewTransport(i2c.NewRegisterFile(nil).Opener()),
		WithSimulatedClock(sim), WithSink(sink), WithLogger(quiet()))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	const samples = 40
	n := 0
	m.Subscribe(func(iaqmon.Sample) {
		n++
		if n == samples {
			cancel()
		}
	})
	require.NoError(t, m.Run(ctx))
	require.Equal(t, samples, n)

	// the publisher ticker runs on the acquisition clock
	windows := int(sim.Now() / (15 * time.Second))
	require.GreaterOrEqual(t, windows, 5)

	sink.mx.Lock()
	defer sink.mx.Unlock()
	perMetric := map[string]int{}
	for _, c := range sink.calls {
		perMetric[c.metric]++
	}
	require.NotEmpty(t, perMetric, "the ticker loop published nothing")
	for _, metric := range []string{"rpi4temperature", "rpi4humidity", "rpi4iaq"} {
		assert.LessOrEqual(t, perMetric[metric], windows, "at most one call for %s per window", metric)
	}
	assert.Less(t, len(sink.calls), 3*samples, "updates between ticks are coalesced")
}

func TestMonitor_RunWithEmulator(t *testing.T) {
	sensor := emulator.NewSensor(nil)
	sim := clock.NewSimulated()
	cfg := testConfig(t)
	m, err := New(cfg, emulator.New(emulator.WithWarmUp(0)), i2c.NewTransport(sensor.Opener()),
		WithSimulatedClock(sim), WithLogger(quiet()))
	require.NoError(t, err)
	defer m.Close()
	assert.True(t, m.Publisher().LocalOnly())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	m.Subscribe(func(iaqmon.Sample) {
		n++
		if n == 12 {
			cancel()
		}
	})
	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 12, n)
	assert.Equal(t, 12, sensor.Measurements())
	assert.Equal(t, uint64(12), m.Scheduler().Stats().Cycles)
	assert.Equal(t, uint64(0), m.Scheduler().Stats().Resets)

	m.Publisher().Update("rpi4iaq", 1)
	results := m.Publisher().Flush(context.Background())
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, telemetry.StatusLocalOnly, r.Status)
	}
	v, ok := m.Publisher().Last("rpi4humidity")
	require.True(t, ok)
	assert.InDelta(t, 45, v, 0.01)
}

func TestMonitor_InitFailureStopsBeforeAcquisition(t *testing.T) {
	sensor := emulator.NewSensor(nil)
	sensor.Set(emulator.RegChipID, 0x00)
	m, err := New(testConfig(t), emulator.New(), i2c.NewTransport(sensor.Opener()),
		WithSimulatedClock(clock.NewSimulated()), WithLogger(quiet()))
	require.NoError(t, err)
	defer m.Close()

	err = m.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrEngineHardware)
	assert.Equal(t, uint64(0), m.Scheduler().Stats().Cycles)
	assert.Equal(t, 0, sensor.Measurements())
}

func TestMonitor_BusOpenFailure(t *testing.T) {
	bus := i2c.NewTransport(func(string, uint16) (i2c.Conn, error) {
		return nil, errors.New("permission denied")
	})
	m, err := New(testConfig(t), emulator.New(), bus, WithSimulatedClock(clock.NewSimulated()), WithLogger(quiet()))
	require.NoError(t, err)
	defer m.Close()

	err = m.Run(context.Background())
	assert.ErrorIs(t, err, iaqmon.ErrBusOpenFailed)
	assert.NotErrorIs(t, err, engine.ErrEngineHardware)
}

func TestMonitor_ReopenFailureEndsRun(t *testing.T) {
	sensor := emulator.NewSensor(nil)
	opens := 0
	bus := i2c.NewTransport(func(d string, a uint16) (i2c.Conn, error) {
		opens++
		if opens > 1 {
			return nil, errors.New("device unplugged")
		}
		return sensor.Opener()(d, a)
	})
	m, err := New(testConfig(t), emulator.New(emulator.WithWarmUp(0)), bus,
		WithSimulatedClock(clock.NewSimulated()), WithLogger(quiet()))
	require.NoError(t, err)
	defer m.Close()

	n := 0
	m.Subscribe(func(iaqmon.Sample) {
		n++
		if n == 2 {
			sensor.FailNext(1)
		}
	})
	err = m.Run(context.Background())
	assert.ErrorIs(t, err, iaqmon.ErrBusOpenFailed)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, opens)
}

func TestNew_InvalidSampleRate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sensor.SampleRate = "sometimes"
	_, err := New(cfg, emulator.New(), i2c.NewTransport(i2c.NewRegisterFile(nil).Opener()))
	assert.Error(t, err)
}

func TestNew_HTTPSinkFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Homebridge.URL = "http://127.0.0.1:51828"
	m, err := New(cfg, emulator.New(), i2c.NewTransport(i2c.NewRegisterFile(nil).Opener()))
	require.NoError(t, err)
	assert.False(t, m.Publisher().LocalOnly())
}
