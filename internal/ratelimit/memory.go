package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Buckets idle this long are dropped by the sweeper.
const idleAfter = 10 * time.Minute

const sweepInterval = time.Minute

// bucket tracks the spendable tokens for one rate-limit key.
type bucket struct {
	tokens   float64
	refilled time.Time
}

// take refills the bucket for the time elapsed since the last call, capped
// at burst, then tries to spend one token.
func (b *bucket) take(now time.Time, rate, burst float64) bool {
	b.tokens += now.Sub(b.refilled).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.refilled = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// MemoryLimiter implements Limiter with one in-process token bucket per key.
//
// Each actor refills at rate tokens per second up to a burst-sized reserve.
// The burst should comfortably cover a debounced autosave cadence plus
// interactive traffic; the sustained rate is what actually catches runaway
// clients. A sweeper goroutine drops idle buckets to bound memory.
type MemoryLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a per-key token bucket limiter with the given
// sustained rate (requests per second) and burst capacity. Call Close to
// stop the idle-bucket sweeper.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// SetClock substitutes the time source. Test hook.
func (m *MemoryLimiter) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Allow spends one token from key's bucket. False means rate limited.
// An unseen key starts with a full burst.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, refilled: now}
		m.buckets[key] = b
	}
	return b.take(now, m.rate, m.burst), nil
}

// Close stops the sweeper goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *MemoryLimiter) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idleAfter)
	for key, b := range m.buckets {
		if b.refilled.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
