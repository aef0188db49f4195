package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket. It smooths per-connection message floods
// without blocking: callers drop or reject when Allow returns false.
type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= 1 {
		l.tokens--
		return true
	}

	return false
}

// Cooldown allows at most one success per fixed interval. Unlike Limiter it
// has no burst: it gates rare, expensive operations such as clearing a
// room's canvas, where the limit belongs to the resource rather than to any
// one caller.
type Cooldown struct {
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
}

func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{interval: interval}
}

// Try reports whether the operation is allowed now and, if so, starts a new
// cooldown window. The first call always succeeds.
func (c *Cooldown) Try() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.last.IsZero() && now.Sub(c.last) < c.interval {
		return false
	}
	c.last = now
	return true
}

// Remaining returns how long until the next Try can succeed, zero when the
// window is already open.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last.IsZero() {
		return 0
	}
	rem := c.interval - time.Since(c.last)
	if rem < 0 {
		return 0
	}
	return rem
}
