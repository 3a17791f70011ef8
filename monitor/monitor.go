// Package monitor wires the acquisition pipeline together.
//
// A Monitor is created once at startup and owns every component: the bus,
// the engine adapter, the scheduler, the state store and the publisher.
// Nothing in the pipeline reaches for global state.
package monitor

import (
	"context"
	"fmt"
	"log/slog"

	clk "github.com/benbjohnson/clock"

	"github.com/mklimuk/iaqmon"
	"github.com/mklimuk/iaqmon/clock"
	"github.com/mklimuk/iaqmon/config"
	"github.com/mklimuk/iaqmon/engine"
	"github.com/mklimuk/iaqmon/scheduler"
	"github.com/mklimuk/iaqmon/state"
	"github.com/mklimuk/iaqmon/telemetry"
)

type Monitor struct {
	cfg       *config.Config
	store     *state.FileStore
	adapter   *engine.Adapter
	scheduler *scheduler.Scheduler
	publisher *telemetry.Publisher
	logger    *slog.Logger
}

type options struct {
	clock       clock.Clock
	tickerClock clk.Clock
	sink        telemetry.Sink
	logger      *slog.Logger
}

type Opt func(*options)

// WithClock sets the acquisition clock.
func WithClock(c clock.Clock) Opt {
	return func(o *options) {
		o.clock = c
	}
}

// WithSimulatedClock drives both acquisition and publishing from one
// virtual clock.
func WithSimulatedClock(c *clock.Simulated) Opt {
	return func(o *options) {
		o.clock = c
		o.tickerClock = c.Mock()
	}
}

// WithSink replaces the HTTP sink built from the configuration.
func WithSink(sink telemetry.Sink) Opt {
	return func(o *options) {
		o.sink = sink
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *options) {
		o.logger = logger
	}
}

// New builds the pipeline for one sensor on bus, driven by eng.
func New(cfg *config.Config, eng engine.Engine, bus iaqmon.RegisterBus, opts ...Opt) (*Monitor, error) {
	o := options{
		clock:       clock.NewMonotonic(),
		tickerClock: clk.New(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	rate, err := engine.ParseSampleRate(cfg.Sensor.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}

	sink := o.sink
	if sink == nil && cfg.Homebridge.URL != "" {
		httpSink, err := telemetry.NewHTTPSink(cfg.Homebridge.URL)
		if err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
		sink = httpSink
	}
	pubOpts := []telemetry.Opt{
		telemetry.WithInterval(cfg.Homebridge.PublishInterval()),
		telemetry.WithClock(o.tickerClock),
		telemetry.WithLogger(o.logger.With("component", "telemetry")),
	}
	if sink != nil {
		pubOpts = append(pubOpts, telemetry.WithSink(sink))
	}

	m := &Monitor{
		cfg:    cfg,
		logger: o.logger,
	}
	m.store = state.NewFileStore(cfg.State.Path(), state.WithLogger(o.logger.With("component", "state")))
	m.adapter = engine.NewAdapter(eng, bus, cfg.Sensor.Device, cfg.Sensor.Address,
		engine.WithClock(o.clock),
		engine.WithStateStore(m.store),
		engine.WithSampleRate(rate),
		engine.WithLogger(o.logger.With("component", "engine")),
	)
	m.scheduler = scheduler.New(o.clock, scheduler.WithLogger(o.logger.With("component", "scheduler")))
	m.publisher = telemetry.NewPublisher(pubOpts...)
	m.adapter.Subscribe(telemetry.Homebridge(m.publisher, cfg.Homebridge.Accessories, cfg.Sensor.TemperatureOffset))
	return m, nil
}

func (m *Monitor) Adapter() *engine.Adapter {
	return m.adapter
}

func (m *Monitor) Scheduler() *scheduler.Scheduler {
	return m.scheduler
}

func (m *Monitor) Publisher() *telemetry.Publisher {
	return m.publisher
}

func (m *Monitor) Store() *state.FileStore {
	return m.store
}

// Subscribe adds a sample subscriber next to the publisher.
func (m *Monitor) Subscribe(fn iaqmon.Subscriber) {
	m.adapter.Subscribe(fn)
}

// Run starts publishing, initializes the engine and runs acquisition until
// ctx is done. Engine and bus initialization failures are returned before
// any cycle runs. A nil error means an orderly shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	m.publisher.Start(ctx)
	defer m.publisher.Stop()

	m.logger.Info("initializing air quality engine", "device", m.cfg.Sensor.Device, "address", fmt.Sprintf("%#x", m.cfg.Sensor.Address))
	if err := m.adapter.Init(ctx); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	m.logger.Info("starting air monitoring")
	err := m.scheduler.Run(ctx, m.adapter.Step)
	st := m.scheduler.Stats()
	m.logger.Info("air monitoring stopped", "samples", m.adapter.Samples(), "resets", st.Resets)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

// Close stops publishing and releases the bus.
func (m *Monitor) Close() error {
	m.publisher.Stop()
	return m.adapter.Close()
}
