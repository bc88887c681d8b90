package restapi

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"ikuyo.transit.dev/internal/clock"
	"ikuyo.transit.dev/internal/models"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = 5 * time.Minute
)

// rateLimitClient is one client's limiter and when it was last used.
type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // Unix nanoseconds
}

// RateLimitMiddleware limits requests per client address. Limiters are
// evaluated against the injected clock so tests can control time.
type RateLimitMiddleware struct {
	clients   map[string]*rateLimitClient
	mu        sync.RWMutex
	rateLimit rate.Limit
	burstSize int
	clock     clock.Clock
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewRateLimitMiddleware allows requests per interval for each client, all
// of which may arrive at once. A negative count disables limiting; zero
// rejects everything.
func NewRateLimitMiddleware(requests int, interval time.Duration, clk clock.Clock) *RateLimitMiddleware {
	if clk == nil {
		clk = clock.RealClock{}
	}

	var limit rate.Limit
	switch {
	case requests < 0:
		limit = rate.Inf
	case requests == 0:
		limit = 0
	default:
		limit = rate.Every(interval / time.Duration(requests))
	}

	rl := &RateLimitMiddleware{
		clients:   make(map[string]*rateLimitClient),
		rateLimit: limit,
		burstSize: requests,
		clock:     clk,
		stopChan:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.rateLimit == rate.Inf {
				next.ServeHTTP(w, r)
				return
			}
			if !rl.limiterFor(clientAddress(r)).AllowN(rl.clock.Now(), 1) {
				rl.sendRateLimitExceeded(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress is the host part of the remote address. Forwarding headers
// are not trusted.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimitMiddleware) limiterFor(key string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	rl.mu.RLock()
	client, ok := rl.clients[key]
	rl.mu.RUnlock()
	if ok {
		client.lastSeen.Store(now)
		return client.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if client, ok := rl.clients[key]; ok {
		client.lastSeen.Store(now)
		return client.limiter
	}
	client = &rateLimitClient{limiter: rate.NewLimiter(rl.rateLimit, max(rl.burstSize, 0))}
	client.lastSeen.Store(now)
	rl.clients[key] = client
	return client.limiter
}

func (rl *RateLimitMiddleware) retryAfter() time.Duration {
	if rl.rateLimit == 0 {
		return time.Hour
	}
	return time.Duration(math.Ceil(float64(time.Second) / float64(rl.rateLimit)))
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter) {
	retry := int(math.Ceil(rl.retryAfter().Seconds()))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	response := models.ResponseModel{
		Code:        http.StatusTooManyRequests,
		CurrentTime: models.ResponseCurrentTime(rl.clock),
		Text:        "Rate limit exceeded. Please try again later.",
		Version:     models.ResponseVersion,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode rate limit response", "error", err)
	}
}

// sweep drops limiters that have been idle longer than limiterIdleTTL.
func (rl *RateLimitMiddleware) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, client := range rl.clients {
		if now.Sub(time.Unix(0, client.lastSeen.Load())) > limiterIdleTTL {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimitMiddleware) sweepLoop() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}
