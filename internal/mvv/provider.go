// Package mvv implements transit.Provider against the public web endpoints
// of the Münchner Verkehrsverbund (MVV).
package mvv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ikuyo.transit.dev/internal/clock"
	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/metrics"
	"ikuyo.transit.dev/internal/transit"
)

const (
	ProviderID        = "mvv"
	ProviderShortName = "MVV"
	ProviderLongName  = "Münchner Verkehrsverbund"

	DefaultBaseURL = "https://www.mvv-muenchen.de"

	// DefaultDepartureCount is how many departures callers ask for.
	DefaultDepartureCount = 10

	maxBodySize       = 10 * 1024 * 1024
	maxLoggedBodySize = 512
)

const (
	opFindStops      = "find_stops"
	opFindRoutes     = "find_routes"
	opFindDepartures = "find_departures"
)

// Provider talks to the MVV endpoints. The zero value is not usable; use New.
type Provider struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	clock    clock.Clock
	location *time.Location
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

var _ transit.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithBaseURL points the provider at a mirror or a test server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithRateLimit caps outgoing requests per second. Values <= 0 disable the
// limiter.
func WithRateLimit(perSecond float64) Option {
	return func(p *Provider) {
		if perSecond <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithClock(c clock.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// WithLocation sets the zone agency times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Provider) { p.location = loc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:  DefaultBaseURL,
		client:   newHTTPClient(),
		clock:    clock.RealClock{},
		location: time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Component(nil, "mvv_provider")
	}
	return p
}

// newHTTPClient clones http.DefaultTransport to keep proxy, dialer and
// HTTP/2 defaults. No client timeout is set; requests are bounded by the
// caller's context.
func newHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second

	return &http.Client{Transport: transport}
}

func (p *Provider) ID() string        { return ProviderID }
func (p *Provider) ShortName() string { return ProviderShortName }
func (p *Provider) LongName() string  { return ProviderLongName }

// now is the processing time in the agency's zone.
func (p *Provider) now() time.Time {
	return p.clock.Now().In(p.location)
}

// get performs one GET against the agency and returns the body of a 2xx
// response.
func (p *Provider) get(ctx context.Context, op, requestURL string) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, &transit.NetworkError{Op: op, Err: err}
		}
	}

	start := time.Now()
	body, err := p.fetch(ctx, op, requestURL)
	p.metrics.ObserveProviderRequest(ProviderID, op, err, time.Since(start))
	return body, err
}

func (p *Provider) fetch(ctx context.Context, op, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &transit.NetworkError{Op: op, Reason: "invalid request URL", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &transit.NetworkError{Op: op, Err: err}
	}
	defer logging.SafeCloseWithLogging(resp.Body, p.logger, "http_response_body")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &transit.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, &transit.NetworkError{Op: op, StatusCode: resp.StatusCode, Reason: fmt.Sprintf("response exceeds %d bytes", maxBodySize)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("agency returned non-2xx status",
			slog.String("operation", op),
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(body, maxLoggedBodySize)))
		return nil, &transit.NetworkError{Op: op, StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
