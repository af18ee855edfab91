// Package timer implements the per-field timer state machines and the
// shared one-second tick engine.
//
// Three machines share one TimerState shape, selected by mode:
//
//   - countdown: starts locked, remaining counts down from total; at zero
//     the timer stops, stays locked, records endedAt, and opens a 15 s
//     alert window.
//   - countup: starts locked, remaining counts up without ceiling; stopped
//     only by an explicit toggle.
//   - longrange: one Begin/End interval; Begin stamps startedAt (and
//     firstStartedAt on the first ever Begin), End seals the timer
//     permanently.
//
// All transitions are pure functions over runstate.TimerState; the session
// feeds them a clock so tests can drive virtual time.
package timer

import (
	"time"

	"github.com/benchbook/benchbook/internal/document"
	"github.com/benchbook/benchbook/internal/runstate"
)

// AlertWindow is how long the audible-alert window stays open after a
// countdown expires.
const AlertWindow = 15 * time.Second

// DefaultState builds the state a timer has before its first interaction:
// countdowns start full, the counting modes start at zero.
func DefaultState(desc document.Timer) runstate.TimerState {
	remaining := 0
	if desc.Mode == runstate.ModeCountdown {
		remaining = desc.Seconds
	}
	return runstate.TimerState{
		Mode:      desc.Mode,
		Total:     desc.Seconds,
		Remaining: remaining,
	}
}

// existingOr returns the stored state for the timer, or its default.
func existingOr(desc document.Timer, st runstate.State) runstate.TimerState {
	if existing, ok := st.Timers[desc.Key]; ok {
		return existing
	}
	return DefaultState(desc)
}

// Toggle handles the timer's primary action: Start/Pause for countdown and
// countup, Begin/End for longrange. Starting locks the timer; a started
// timer cannot return to unlocked except through an explicit unlock.
// While locked the only permitted action is ending a running longrange
// interval — pausing a locked countdown/countup or restarting a sealed or
// expired timer leaves the state untouched, mirroring the disabled control.
func Toggle(desc document.Timer, st runstate.State, now time.Time) runstate.State {
	next := st.Clone()
	existing := existingOr(desc, next)
	nowMillis := now.UnixMilli()

	if existing.Locked && !(desc.Mode == runstate.ModeLongRange && existing.Running) {
		return next
	}

	if desc.Mode == runstate.ModeLongRange {
		if !existing.Running {
			existing.Mode = desc.Mode
			existing.Running = true
			existing.Locked = true
			existing.StartedAt = nowMillis
			if existing.FirstStartedAt == 0 {
				existing.FirstStartedAt = nowMillis
			}
			existing.EndedAt = 0
			existing.Remaining = 0
			existing.Elapsed = 0
			existing.AlertUntil = 0
		} else {
			existing.Running = false
			existing.Locked = true
			existing.EndedAt = nowMillis
			existing.Elapsed = existing.Remaining
		}
		next.Timers[desc.Key] = existing
		return next
	}

	wasRunning := existing.Running
	existing.Mode = desc.Mode
	existing.AlertUntil = 0
	existing.Running = !wasRunning
	if !wasRunning {
		existing.Locked = true
	}
	if existing.StartedAt == 0 {
		existing.StartedAt = nowMillis
	}
	if existing.FirstStartedAt == 0 {
		existing.FirstStartedAt = nowMillis
	}
	next.Timers[desc.Key] = existing
	return next
}

// Reset returns the timer to its defaults. Locked timers cannot be reset;
// the bool reports whether anything changed. Callers gate this behind a
// destructive-action confirmation.
func Reset(desc document.Timer, st runstate.State) (runstate.State, bool) {
	next := st.Clone()
	existing := existingOr(desc, next)
	if existing.Locked {
		return next, false
	}

	remaining := 0
	if desc.Mode == runstate.ModeCountdown {
		remaining = existing.Total
	}
	next.Timers[desc.Key] = runstate.TimerState{
		Mode:      desc.Mode,
		Total:     existing.Total,
		Remaining: remaining,
	}
	return next, true
}

// ToggleLock flips the locked flag independently of running, letting a user
// freeze a timer's value without expiring it. Locking clears any open alert
// window; unlocking leaves it alone.
func ToggleLock(desc document.Timer, st runstate.State) runstate.State {
	next := st.Clone()
	existing := existingOr(desc, next)
	if !existing.Locked {
		existing.AlertUntil = 0
	}
	existing.Locked = !existing.Locked
	next.Timers[desc.Key] = existing
	return next
}

// tick advances one running timer by one second.
func tick(t runstate.TimerState, now time.Time) runstate.TimerState {
	mode := t.Mode
	if mode == "" {
		mode = runstate.ModeCountdown
	}

	switch mode {
	case runstate.ModeCountup:
		t.Remaining++
	case runstate.ModeLongRange:
		t.Remaining++
		t.Elapsed = t.Remaining
	default: // countdown
		before := t.Remaining
		t.Remaining--
		if before > 0 && t.Remaining <= 0 {
			// Expiry: stop, lock, stamp, and open the alert window.
			t.AlertUntil = now.Add(AlertWindow).UnixMilli()
			if t.EndedAt == 0 {
				t.EndedAt = now.UnixMilli()
			}
			t.Running = false
			t.Locked = true
		}
		if t.Remaining < 0 {
			t.Remaining = 0
		}
		t.Elapsed = t.Total - t.Remaining
	}
	return t
}

// TickAll advances every running timer in the state by one second and
// reports whether anything changed. Stopped timers are untouched, so a
// state with no running timers passes through unmodified.
func TickAll(st runstate.State, now time.Time) (runstate.State, bool) {
	if !st.AnyTimerRunning() {
		return st, false
	}

	next := st.Clone()
	for key, t := range next.Timers {
		if !t.Running {
			continue
		}
		next.Timers[key] = tick(t, now)
	}
	return next, true
}
