package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-user token bucket for write endpoints.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*limiterEntry
	rps   rate.Limit
	burst int
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		m:     make(map[string]*limiterEntry),
		rps:   rate.Limit(rps),
		burst: burst,
		ttl:   10 * time.Minute,
		stop:  make(chan struct{}),
	}
	go l.cleanupLoop(time.Minute)
	return l
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.m[key]; ok {
		e.lastSeen = time.Now()
		return e.l
	}
	rl := rate.NewLimiter(l.rps, l.burst)
	l.m[key] = &limiterEntry{l: rl, lastSeen: time.Now()}
	return rl
}

func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Handler limits by caller id, falling back to the client address.
func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := UserID(c)
		if key == "" {
			key = c.IP()
		}
		if !l.Allow(key) {
			wait := time.Second
			if l.rps > 0 {
				wait = time.Duration(float64(time.Second) / float64(l.rps))
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(wait.Round(time.Second).Seconds())+1))
			return Fail(c, fiber.StatusTooManyRequests, "Too many requests")
		}
		return c.Next()
	}
}

func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.ttl)
			l.mu.Lock()
			for k, e := range l.m {
				if e.lastSeen.Before(cutoff) {
					delete(l.m, k)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
