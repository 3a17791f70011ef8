package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/iaqmon"
	"github.com/mklimuk/iaqmon/clock"
)

// StateStore persists calibration state between runs.
type StateStore interface {
	Load() ([]byte, error)
	Save(blob []byte) error
}

type noStore struct{}

func (noStore) Load() ([]byte, error) { return nil, nil }
func (noStore) Save([]byte) error     { return nil }

// Adapter owns the engine for one sensor. It forwards the engine callbacks to
// the bus, the clock and the state store, and hands finished samples to
// subscribers. It is driven from a single goroutine.
type Adapter struct {
	engine  Engine
	bus     iaqmon.RegisterBus
	device  string
	address uint16

	clock  clock.Clock
	store  StateStore
	config []byte
	rate   SampleRate
	offset float32
	logger *slog.Logger

	subscribers []iaqmon.Subscriber
	busErrors   rate.Sometimes

	epoch   time.Duration
	started bool
	samples uint64
}

type Opt func(*Adapter)

func WithClock(c clock.Clock) Opt {
	return func(a *Adapter) {
		a.clock = c
	}
}

func WithStateStore(store StateStore) Opt {
	return func(a *Adapter) {
		a.store = store
	}
}

// WithConfig replaces the embedded engine configuration blob.
func WithConfig(blob []byte) Opt {
	return func(a *Adapter) {
		a.config = blob
	}
}

func WithSampleRate(r SampleRate) Opt {
	return func(a *Adapter) {
		a.rate = r
	}
}

// WithTemperatureOffset is the self-heating offset in degrees Celsius the
// engine subtracts from its temperature output.
func WithTemperatureOffset(offset float32) Opt {
	return func(a *Adapter) {
		a.offset = offset
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(a *Adapter) {
		a.logger = logger
	}
}

func NewAdapter(engine Engine, bus iaqmon.RegisterBus, device string, address uint16, opts ...Opt) *Adapter {
	a := &Adapter{
		engine:    engine,
		bus:       bus,
		device:    device,
		address:   address,
		clock:     clock.NewMonotonic(),
		store:     noStore{},
		config:    DefaultConfig,
		rate:      SampleRateLP,
		logger:    slog.Default(),
		busErrors: rate.Sometimes{First: 3, Every: 30},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe registers fn to receive every successful output. Subscribers run
// on the acquisition goroutine.
func (a *Adapter) Subscribe(fn iaqmon.Subscriber) {
	a.subscribers = append(a.subscribers, fn)
}

func (a *Adapter) SampleRate() SampleRate {
	return a.rate
}

// Samples returns the number of samples handed to subscribers so far.
func (a *Adapter) Samples() uint64 {
	return a.samples
}

// Init opens the bus and then initializes the engine. A bus failure aborts
// before the engine is touched. Engine failures are returned as *InitError.
func (a *Adapter) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bus.Open(a.device, a.address); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	a.logger.Info("engine bus opened", "device", a.device, "address", fmt.Sprintf("%#x", a.address))
	a.logger.Info("engine version", "version", a.engine.Version().String())

	st := a.engine.Init(a.rate, a.offset, a.callbacks())
	if err := initError(st); err != nil {
		if st.Library == LibrarySampleRateMismatch {
			a.logger.Error("the sample rate does not match the engine configuration blob", "rate", a.rate.String())
		}
		a.logger.Error("engine init failed", "status", st.String())
		return err
	}
	a.logger.Info("engine initialized", "rate", a.rate.String(), "interval", a.rate.Interval(), "temperature_offset", a.offset)
	return nil
}

// Step runs one engine cycle at now and returns the deadline of the next one.
// A bus closed by an earlier failure is reopened first; if that fails the
// error is returned and the run should stop.
func (a *Adapter) Step(_ context.Context, now time.Duration) (time.Duration, error) {
	if !a.bus.IsOpened() {
		a.logger.Warn("bus is closed, reopening", "device", a.device)
		if err := a.bus.Open(a.device, a.address); err != nil {
			return 0, fmt.Errorf("engine: could not reopen bus: %w", err)
		}
	}
	next, st := a.engine.Step(int64(a.since(now)))
	if !st.OK() {
		if st.Library.IsWarning() && st.Sensor == SensorOK {
			a.logger.Debug("engine step warning", "status", st.String())
		} else {
			a.logger.Warn("engine step failed", "status", st.String())
		}
	}
	return a.epoch + time.Duration(next), nil
}

func (a *Adapter) Close() error {
	var err error
	if c, ok := a.engine.(interface{ Close() error }); ok {
		err = multierr.Append(err, c.Close())
	}
	return multierr.Append(err, a.bus.Close())
}

// since converts a clock reading to engine time. The epoch is fixed at the
// first conversion.
func (a *Adapter) since(now time.Duration) time.Duration {
	if !a.started {
		a.epoch = now
		a.started = true
	}
	return now - a.epoch
}

func (a *Adapter) callbacks() Callbacks {
	return Callbacks{
		WriteRegister: a.writeRegister,
		ReadRegister:  a.readRegister,
		Sleep:         a.sleep,
		Timestamp:     a.timestamp,
		LoadState:     a.loadState,
		SaveState:     a.saveState,
		LoadConfig:    a.loadConfig,
		OutputReady:   a.outputReady,
	}
}

func (a *Adapter) writeRegister(reg byte, data []byte) int8 {
	if !a.bus.IsOpened() {
		return int8(SensorComFail)
	}
	if _, err := a.bus.Write(reg, data); err != nil {
		a.busErrors.Do(func() {
			a.logger.Error("register write failed", "register", fmt.Sprintf("%#x", reg), "error", err)
		})
		return int8(SensorComFail)
	}
	return int8(SensorOK)
}

func (a *Adapter) readRegister(reg byte, buf []byte) int8 {
	if !a.bus.IsOpened() {
		return int8(SensorComFail)
	}
	data, err := a.bus.Read(reg, len(buf))
	if err != nil {
		a.busErrors.Do(func() {
			a.logger.Error("register read failed", "register", fmt.Sprintf("%#x", reg), "error", err)
		})
		return int8(SensorComFail)
	}
	copy(buf, data)
	return int8(SensorOK)
}

func (a *Adapter) sleep(us uint32) {
	a.clock.SleepUntil(a.clock.Now() + time.Duration(us)*time.Microsecond)
}

func (a *Adapter) timestamp() int64 {
	return a.since(a.clock.Now()).Microseconds()
}

func (a *Adapter) loadState(buf []byte) uint32 {
	a.logger.Info("restoring engine state")
	blob, err := a.store.Load()
	if err != nil {
		a.logger.Warn("could not load engine state, starting without calibration", "error", err)
		return 0
	}
	if len(blob) > len(buf) {
		a.logger.Warn("saved engine state does not fit the engine buffer, ignoring it", "size", len(blob), "capacity", len(buf))
		return 0
	}
	return uint32(copy(buf, blob))
}

func (a *Adapter) saveState(blob []byte) {
	a.logger.Info("saving engine state", "size", len(blob))
	if err := a.store.Save(blob); err != nil {
		a.logger.Error("could not save engine state", "error", err)
	}
}

func (a *Adapter) loadConfig(buf []byte) uint32 {
	a.logger.Info("loading engine config", "size", len(a.config))
	return uint32(copy(buf, a.config))
}

func (a *Adapter) outputReady(out Output, status LibraryStatus) {
	if status != LibraryOK {
		a.logger.Debug("engine output not ready", "status", status.String())
		return
	}
	s := ToSample(out)
	s.Timestamp += a.epoch
	a.samples++
	a.logger.Info("air quality", "sample", s.String())
	for _, fn := range a.subscribers {
		fn(s)
	}
}

// ToSample converts an engine output to a sample. The timestamp stays in
// engine time.
func ToSample(out Output) iaqmon.Sample {
	return iaqmon.Sample{
		Timestamp:     time.Duration(out.Timestamp),
		IAQ:           float64(out.IAQ),
		Accuracy:      iaqmon.Accuracy(out.IAQAccuracy),
		Temperature:   physic.ZeroCelsius + physic.Temperature(float64(out.Temperature)*float64(physic.Celsius)),
		Pressure:      physic.Pressure(float64(out.RawPressure) * float64(physic.Pascal)),
		Humidity:      physic.RelativeHumidity(float64(out.Humidity) * float64(physic.PercentRH)),
		CO2:           float64(out.CO2Equivalent),
		BreathVOC:     float64(out.BreathVOC),
		GasPercentage: float64(out.GasPercentage),
	}
}
