// Package telemetry republishes the latest metric values to a home automation
// endpoint.
//
// Updates from the acquisition side only touch a pending map under a mutex. A
// background loop swaps that map out once per interval and publishes what it
// holds, so many updates of one metric between flushes become a single call.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	clk "github.com/benbjohnson/clock"
)

const DefaultInterval = 15 * time.Second

type Status int

const (
	// StatusPublished means the endpoint accepted the value.
	StatusPublished Status = iota
	// StatusLocalOnly means no endpoint is configured; the value was kept
	// locally only.
	StatusLocalOnly
	// StatusFailed means the publish attempt failed. Err holds the cause.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPublished:
		return "published"
	case StatusLocalOnly:
		return "local-only"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of publishing one metric.
type Result struct {
	Metric string
	Value  float64
	Status Status
	Err    error
}

type Publisher struct {
	sink     Sink
	interval time.Duration
	clock    clk.Clock
	logger   *slog.Logger

	mx       sync.Mutex
	incoming map[string]float64
	last     map[string]float64

	// lifecycle guards stop and done
	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

type Opt func(*Publisher)

// WithSink sets the remote endpoint. Without a sink the publisher runs in
// local-only mode.
func WithSink(sink Sink) Opt {
	return func(p *Publisher) {
		p.sink = sink
	}
}

func WithInterval(d time.Duration) Opt {
	return func(p *Publisher) {
		p.interval = d
	}
}

// WithClock sets the clock driving the publish ticker.
func WithClock(c clk.Clock) Opt {
	return func(p *Publisher) {
		p.clock = c
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(opts ...Opt) *Publisher {
	p := &Publisher{
		interval: DefaultInterval,
		clock:    clk.New(),
		logger:   slog.Default(),
		incoming: make(map[string]float64),
		last:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	return p
}

// LocalOnly reports whether values are kept locally without network calls.
func (p *Publisher) LocalOnly() bool {
	return p.sink == nil
}

// Update records the latest value of a metric. It never blocks on the network
// and is safe for concurrent use.
func (p *Publisher) Update(metric string, value float64) {
	p.mx.Lock()
	p.incoming[metric] = value
	p.mx.Unlock()
}

// Last returns the last value taken for publishing.
func (p *Publisher) Last(metric string) (float64, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	v, ok := p.last[metric]
	return v, ok
}

// Pending returns the number of metrics waiting for the next flush.
func (p *Publisher) Pending() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.incoming)
}

// Flush publishes every metric updated since the previous flush. A failed
// metric does not prevent publishing the others.
func (p *Publisher) Flush(ctx context.Context) []Result {
	p.mx.Lock()
	batch := p.incoming
	p.incoming = make(map[string]float64, len(batch))
	for metric, value := range batch {
		p.last[metric] = value
	}
	p.mx.Unlock()

	if len(batch) == 0 {
		return nil
	}
	metrics := make([]string, 0, len(batch))
	for metric := range batch {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	results := make([]Result, 0, len(metrics))
	for _, metric := range metrics {
		results = append(results, p.publish(ctx, metric, batch[metric]))
	}
	return results
}

func (p *Publisher) publish(ctx context.Context, metric string, value float64) Result {
	res := Result{Metric: metric, Value: value}
	if p.sink == nil {
		p.logger.Debug("skipping publish, no endpoint configured", "metric", metric, "value", value)
		res.Status = StatusLocalOnly
		return res
	}
	p.logger.Debug("publishing", "metric", metric, "value", value)
	if err := p.sink.Publish(ctx, metric, value); err != nil {
		p.logger.Error("could not publish metric", "metric", metric, "error", err)
		res.Status = StatusFailed
		res.Err = err
		return res
	}
	res.Status = StatusPublished
	return res
}

// Start runs the publish loop in the background until Stop is called or ctx
// is done. Calling Start on a running publisher does nothing. A publisher whose
// loop ended with its context can be started again.
func (p *Publisher) Start(ctx context.Context) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.runningLocked() {
		return
	}
	if p.LocalOnly() {
		p.logger.Info("homebridge url not configured, running in local-only mode")
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	ticker := p.clock.Ticker(p.interval)
	go p.loop(ctx, ticker, p.stop, p.done)
}

// Running reports whether the publish loop is active.
func (p *Publisher) Running() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.runningLocked()
}

func (p *Publisher) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Publisher) loop(ctx context.Context, ticker *clk.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	p.logger.Info("telemetry publisher started", "interval", p.interval)
	// in-flight publishes are not cancelled by a stop
	flushCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("telemetry publisher stopped")
			return
		case <-stop:
			p.logger.Info("telemetry publisher stopped")
			return
		case <-ticker.C:
			p.Flush(flushCtx)
		}
	}
}

// Stop ends the publish loop and waits for it to exit. A flush in progress
// completes first, so the wait is bounded by one publish cycle.
func (p *Publisher) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil
}
