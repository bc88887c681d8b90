package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ikuyo.transit.dev/internal/clock"
	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/metrics"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/transit"
)

const (
	DefaultIdleInterval   = time.Minute
	DefaultDepartureCount = 10
)

// ConfigSource supplies the configuration at the start of every cycle.
// A nil config with a nil error means "not configured".
type ConfigSource interface {
	Load(ctx context.Context) (*models.WidgetConfig, error)
}

// StaticConfig is a ConfigSource that always returns the same config.
type StaticConfig struct{ Config *models.WidgetConfig }

func (s StaticConfig) Load(context.Context) (*models.WidgetConfig, error) {
	if s.Config == nil {
		return nil, nil
	}
	cfg := s.Config.Clone()
	return &cfg, nil
}

type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithIdleInterval sets how long an unconfigured loop waits before reading
// the configuration again.
func WithIdleInterval(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.idleInterval = d
		}
	}
}

// WithDepartureCount sets the count hint passed to providers.
func WithDepartureCount(n int) Option {
	return func(ctl *Controller) {
		if n > 0 {
			ctl.departureCount = n
		}
	}
}

// Controller runs refresh cycles and publishes their results. At most one
// task (a single cycle or a recurring loop) is active; starting another
// cancels it.
type Controller struct {
	registry       *transit.Registry
	clock          clock.Clock
	metrics        *metrics.Metrics
	logger         *slog.Logger
	idleInterval   time.Duration
	departureCount int

	inbox     chan func(*ownerState)
	done      chan struct{}
	closeOnce sync.Once
	tasks     sync.WaitGroup
}

// ownerState is touched only by the owner goroutine.
type ownerState struct {
	view        View
	generation  uint64
	cancel      context.CancelFunc
	subscribers map[int]chan View
	nextSubID   int
}

func NewController(registry *transit.Registry, opts ...Option) *Controller {
	c := &Controller{
		registry:       registry,
		clock:          clock.RealClock{},
		idleInterval:   DefaultIdleInterval,
		departureCount: DefaultDepartureCount,
		inbox:          make(chan func(*ownerState)),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Component(c.logger, "refresh_controller")

	go c.own(&ownerState{subscribers: make(map[int]chan View)})
	return c
}

func (c *Controller) own(s *ownerState) {
	for {
		select {
		case fn := <-c.inbox:
			fn(s)
		case <-c.done:
			if s.cancel != nil {
				s.cancel()
			}
			for id, ch := range s.subscribers {
				close(ch)
				delete(s.subscribers, id)
			}
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it. It reports false if
// the controller is closed.
func (c *Controller) do(fn func(*ownerState)) bool {
	finished := make(chan struct{})
	select {
	case c.inbox <- func(s *ownerState) { fn(s); close(finished) }:
	case <-c.done:
		return false
	}
	<-finished
	return true
}

// Snapshot returns a copy of the current view.
func (c *Controller) Snapshot() View {
	var v View
	c.do(func(s *ownerState) { v = s.view.clone() })
	return v
}

// Subscribe delivers the current view and then every published view.
// Slow subscribers only see the latest one. The channel is closed by
// cancel or when the controller closes.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	var id int
	ok := c.do(func(s *ownerState) {
		id = s.nextSubID
		s.nextSubID++
		s.subscribers[id] = ch
		ch <- s.view.clone()
	})
	if !ok {
		close(ch)
		return ch, func() {}
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.do(func(s *ownerState) {
				if sub, ok := s.subscribers[id]; ok {
					delete(s.subscribers, id)
					close(sub)
				}
			})
		})
	}
}

// Refresh runs a single cycle with cfg, superseding any active task. The
// returned channel receives the view the cycle publishes; it is closed
// without a value if the cycle is superseded first.
func (c *Controller) Refresh(cfg *models.WidgetConfig) <-chan View {
	return c.start(StaticConfig{Config: cfg}, false)
}

// Start runs a cycle immediately and then keeps refreshing on the
// configured interval, reading src before every cycle. It supersedes any
// active task. The returned channel behaves as for Refresh, for the first
// cycle.
func (c *Controller) Start(src ConfigSource) <-chan View {
	return c.start(src, true)
}

func (c *Controller) start(src ConfigSource, loop bool) <-chan View {
	first := make(chan View, 1)
	ok := c.do(func(s *ownerState) {
		if s.cancel != nil {
			s.cancel()
		}
		s.generation++
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		gen := s.generation

		c.tasks.Add(1)
		go func() {
			defer c.tasks.Done()
			defer cancel()
			c.runTask(ctx, gen, src, loop, first)
		}()
	})
	if !ok {
		close(first)
	}
	return first
}

// Stop cancels the active task, if any. The published departures stay.
func (c *Controller) Stop() {
	c.do(func(s *ownerState) {
		if s.cancel == nil {
			return
		}
		s.cancel()
		s.cancel = nil
		s.generation++
		if s.view.Loading {
			s.view.Loading = false
			s.view.Generation = s.generation
			c.broadcast(s)
		}
	})
}

// Close stops the active task, waits for it to return and shuts the owner
// goroutine down. Subscriber channels are closed.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.Stop()
		c.tasks.Wait()
		close(c.done)
	})
}

// publish applies mutate to the view if gen is still the current task.
func (c *Controller) publish(gen uint64, mutate func(*View)) (View, bool) {
	var (
		out     View
		applied bool
	)
	c.do(func(s *ownerState) {
		if gen != s.generation {
			return
		}
		mutate(&s.view)
		s.view.Generation = gen
		out = s.view.clone()
		applied = true
		c.broadcast(s)
	})
	return out, applied
}

func (c *Controller) broadcast(s *ownerState) {
	for _, ch := range s.subscribers {
		v := s.view.clone()
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}
