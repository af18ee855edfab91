package timer

import (
	"sync"
	"time"
)

// Engine drives the shared one-second tick for a single run session.
//
// Exactly one ticker goroutine exists per engine, and only while the
// session has work for it (a running timer or an open alert window).
// Ensure is called after every mutation with the current demand; the
// engine starts or stops accordingly, so an idle session costs nothing.
type Engine struct {
	interval time.Duration
	onTick   func(now time.Time)
	now      func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.WaitGroup
}

// NewEngine creates a stopped engine. onTick runs on the engine goroutine
// once per interval; it must do its own locking. now is the clock used for
// tick timestamps (nil means time.Now).
func NewEngine(interval time.Duration, now func() time.Time, onTick func(now time.Time)) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{interval: interval, onTick: onTick, now: now}
}

// Ensure reconciles the engine with current demand: starts the ticker when
// active and not running, stops it when inactive. Both directions are
// idempotent — a second overlapping interval can never exist.
func (e *Engine) Ensure(active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if active && e.stop == nil {
		stop := make(chan struct{})
		e.stop = stop
		e.stopped.Add(1)
		go e.loop(stop)
		return
	}
	if !active && e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// Stop halts the ticker if running and waits for the loop to exit.
// Safe to call repeatedly; used on session close.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.mu.Unlock()
	e.stopped.Wait()
}

func (e *Engine) loop(stop chan struct{}) {
	defer e.stopped.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.onTick(e.now())
		}
	}
}
