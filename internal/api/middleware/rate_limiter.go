package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// KeyGenerator returns the bucket of a request; the client IP by default.
	KeyGenerator func(c *fiber.Ctx) string
	// Skip bypasses the limiter, e.g. for health checks.
	Skip func(c *fiber.Ctx) bool
}

// DefaultRateLimiterConfig returns default configuration
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    120,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}
}

// clientWindow tracks rate limiting state for one key
type clientWindow struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter is a fixed-window limiter kept in process memory.
type RateLimiter struct {
	config  RateLimiterConfig
	windows map[string]*clientWindow
	mu      sync.Mutex
	done    chan struct{}
	stop    sync.Once
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Max == 0 {
		config.Max = DefaultRateLimiterConfig().Max
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultRateLimiterConfig().KeyGenerator
	}

	rl := &RateLimiter{
		config:  config,
		windows: make(map[string]*clientWindow),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go rl.cleanup()

	return rl
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() { close(rl.done) })
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.config.Max < 0 || (rl.config.Skip != nil && rl.config.Skip(c)) {
			return c.Next()
		}

		key := rl.config.KeyGenerator(c)
		now := rl.now()

		rl.mu.Lock()
		w, exists := rl.windows[key]
		if !exists || !now.Before(w.windowEnd) {
			w = &clientWindow{windowEnd: now.Add(rl.config.Window)}
			rl.windows[key] = w
		}
		w.count++
		w.lastAccess = now
		count := w.count
		windowEnd := w.windowEnd
		rl.mu.Unlock()

		remaining := rl.config.Max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > rl.config.Max {
			retry := int(windowEnd.Sub(now).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

// prune drops keys not seen for two windows.
func (rl *RateLimiter) prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, w := range rl.windows {
		if now.Sub(w.lastAccess) > 2*rl.config.Window {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}
