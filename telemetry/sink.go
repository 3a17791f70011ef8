package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

var ErrPublishFailed = errors.New("telemetry: publish failed")

// Sink delivers one metric value to the remote endpoint.
type Sink interface {
	Publish(ctx context.Context, metric string, value float64) error
}

// HTTPSink publishes with one GET per metric, passing the metric as
// accessoryId and the value as value query parameters, the way the Homebridge
// HTTP webhooks plugin expects. Only a 200 response counts as success.
type HTTPSink struct {
	base   *url.URL
	client *http.Client
}

type SinkOpt func(*HTTPSink)

func WithHTTPClient(client *http.Client) SinkOpt {
	return func(s *HTTPSink) {
		s.client = client
	}
}

const defaultRequestTimeout = 10 * time.Second

func NewHTTPSink(rawURL string, opts ...SinkOpt) (*HTTPSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("telemetry: invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("telemetry: unsupported url scheme %q", u.Scheme)
	}
	s := &HTTPSink{base: u}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client, err = newClient(u.Scheme == "https")
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// newClient builds the default client. TLS endpoints negotiate HTTP/2 when
// the server offers it.
func newClient(tls bool) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tls {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("telemetry: could not enable http2: %w", err)
		}
	}
	return &http.Client{Transport: transport, Timeout: defaultRequestTimeout}, nil
}

func (s *HTTPSink) URL() string {
	return s.base.String()
}

func (s *HTTPSink) Publish(ctx context.Context, metric string, value float64) error {
	u := *s.base
	q := u.Query()
	q.Set("accessoryId", metric)
	q.Set("value", strconv.FormatFloat(value, 'f', 6, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, metric, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, metric, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: status %d: %s", ErrPublishFailed, metric, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
