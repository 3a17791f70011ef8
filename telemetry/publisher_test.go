package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	clk "github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/iaqmon"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, metric string, value float64) error {
	args := m.Called(ctx, metric, value)
	return args.Error(0)
}

func TestPublisher_Coalesces(t *testing.T) {
	sink := &MockSink{}
	sink.On("Publish", mock.Anything, "x", 2.0).Return(nil).Once()
	p := NewPublisher(WithSink(sink))

	p.Update("x", 1)
	p.Update("x", 2)
	results := p.Flush(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, Result{Metric: "x", Value: 2, Status: StatusPublished}, results[0])
	sink.AssertNumberOfCalls(t, "Publish", 1)
	sink.AssertExpectations(t)
}

func TestPublisher_DoesNotRepublish(t *testing.T) {
	sink := &MockSink{}
	sink.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p := NewPublisher(WithSink(sink))

	p.Update("x", 1)
	p.Update("y", 5)
	assert.Len(t, p.Flush(context.Background()), 2)

	p.Update("y", 6)
	results := p.Flush(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "y", results[0].Metric)

	assert.Empty(t, p.Flush(context.Background()))
	sink.AssertNumberOfCalls(t, "Publish", 3)

	v, ok := p.Last("x")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestPublisher_LocalOnly(t *testing.T) {
	p := NewPublisher()
	assert.True(t, p.LocalOnly())

	_, ok := p.Last("x")
	assert.False(t, ok)

	p.Update("x", 21.5)
	results := p.Flush(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, StatusLocalOnly, results[0].Status)
	assert.NoError(t, results[0].Err)

	v, ok := p.Last("x")
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)
}

func TestPublisher_FailureIsPerMetric(t *testing.T) {
	boom := errors.New("connection refused")
	sink := &MockSink{}
	sink.On("Publish", mock.Anything, "a", 1.0).Return(boom).Once()
	sink.On("Publish", mock.Anything, "b", 2.0).Return(nil).Once()
	p := NewPublisher(WithSink(sink))

	p.Update("a", 1)
	p.Update("b", 2)
	results := p.Flush(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Equal(t, StatusPublished, results[1].Status)
	sink.AssertExpectations(t)
}

func TestPublisher_StartStop(t *testing.T) {
	mockClock := clk.NewMock()
	published := make(chan float64, 4)
	sink := &MockSink{}
	sink.On("Publish", mock.Anything, "x", mock.Anything).Run(func(args mock.Arguments) {
		published <- args.Get(2).(float64)
	}).Return(nil)
	p := NewPublisher(WithSink(sink), WithClock(mockClock), WithInterval(15*time.Second))

	p.Start(context.Background())
	p.Start(context.Background())
	p.Update("x", 1)
	p.Update("x", 3)

	mockClock.Add(14 * time.Second)
	assert.Len(t, published, 0)

	mockClock.Add(time.Second)
	select {
	case v := <-published:
		assert.Equal(t, 3.0, v)
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}

	p.Stop()
	p.Stop()

	p.Update("x", 4)
	mockClock.Add(15 * time.Second)
	assert.Equal(t, 1, p.Pending(), "no flush after stop")
	assert.Len(t, published, 0)
}

func TestPublisher_ContextCancelStopsLoop(t *testing.T) {
	mockClock := clk.NewMock()
	p := NewPublisher(WithClock(mockClock))
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
}

func TestPublisher_RestartAfterContextCancel(t *testing.T) {
	mockClock := clk.NewMock()
	p := NewPublisher(WithClock(mockClock), WithInterval(15*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	assert.True(t, p.Running())
	cancel()
	require.Eventually(t, func() bool { return !p.Running() }, time.Second, time.Millisecond)

	p.Start(context.Background())
	defer p.Stop()
	assert.True(t, p.Running())
	p.Update("x", 1)
	mockClock.Add(15 * time.Second)
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, time.Millisecond)
	v, ok := p.Last("x")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestPublisher_ConcurrentUpdates(t *testing.T) {
	p := NewPublisher()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				p.Update("x", float64(j))
				if j%100 == 0 {
					p.Flush(context.Background())
				}
			}
		}()
	}
	wg.Wait()
	p.Flush(context.Background())
	v, ok := p.Last("x")
	assert.True(t, ok)
	assert.Equal(t, 999.0, v)
}

func TestHTTPSink(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		got = append(got, r.URL.Query().Get("accessoryId")+"="+r.URL.Query().Get("value"))
		if r.URL.Query().Get("accessoryId") == "broken" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("accessory not found\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(srv.URL + "/?token=abc")
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), "rpi4temperature", 21.5))
	err = sink.Publish(context.Background(), "broken", 1)
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorContains(t, err, "status 404: accessory not found")
	assert.Equal(t, []string{"rpi4temperature=21.500000", "broken=1.000000"}, got)
}

func TestHTTPSink_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sink, err := NewHTTPSink(url)
	require.NoError(t, err)
	assert.ErrorIs(t, sink.Publish(context.Background(), "x", 1), ErrPublishFailed)
}

func TestNewHTTPSink_InvalidURL(t *testing.T) {
	_, err := NewHTTPSink("ftp://homebridge.local")
	assert.Error(t, err)
	_, err = NewHTTPSink("http://[::1")
	assert.Error(t, err)

	sink, err := NewHTTPSink("https://homebridge.local:51828")
	require.NoError(t, err)
	assert.Equal(t, "https://homebridge.local:51828", sink.URL())
}

type recorder struct {
	values map[string]float64
}

func (r *recorder) Update(metric string, value float64) {
	r.values[metric] = value
}

func TestHomebridge(t *testing.T) {
	sample := iaqmon.Sample{
		IAQ:         120,
		Accuracy:    3,
		Temperature: physic.ZeroCelsius + 24*physic.Celsius,
		Humidity:    48 * physic.PercentRH,
		CO2:         950,
		BreathVOC:   1.2,
	}

	r := &recorder{values: map[string]float64{}}
	Homebridge(r, DefaultAccessories(), 2.5)(sample)
	assert.Equal(t, map[string]float64{
		"rpi4temperature": 21.5,
		"rpi4humidity":    48,
		"rpi4iaq":         3,
	}, r.values)

	r = &recorder{values: map[string]float64{}}
	acc := Accessories{IAQ: "iaq", CO2: "co2", VOC: "voc"}
	sample.Accuracy = 1
	Homebridge(r, acc, 0)(sample)
	assert.Equal(t, map[string]float64{"iaq": 0, "co2": 950, "voc": 1.2}, r.values)
}
