// Package runstate defines the canonical interaction state persisted per
// protocol run: per-step completion, per-component checked/amount, per-field
// value, and per-timer state. The state is stored as one JSON blob on the
// run record; everything outside the known keys is an application-private
// sidecar that must round-trip untouched.
package runstate

// TimerMode selects which timer state machine a field runs.
type TimerMode string

const (
	ModeCountdown TimerMode = "countdown"
	ModeCountup   TimerMode = "countup"
	ModeLongRange TimerMode = "longrange"
)

// Valid reports whether the mode is one of the known values.
func (m TimerMode) Valid() bool {
	return m == ModeCountdown || m == ModeCountup || m == ModeLongRange
}

// TimerState is the persisted state of one timer field.
//
// Remaining is signed: for countdown it counts down toward zero, for countup
// and longrange it is the elapsed second count. Negative values are only
// reachable through clock drift and are flagged by the view, not
// special-cased in storage. Timestamps are millisecond Unix epochs; zero
// means unset.
type TimerState struct {
	Mode           TimerMode `json:"mode,omitempty"`
	Total          int       `json:"total"`
	Remaining      int       `json:"remaining"`
	Running        bool      `json:"running"`
	Locked         bool      `json:"locked"`
	AlertUntil     int64     `json:"alertUntil,omitempty"`
	StartedAt      int64     `json:"startedAt,omitempty"`
	FirstStartedAt int64     `json:"firstStartedAt,omitempty"`
	EndedAt        int64     `json:"endedAt,omitempty"`
	Elapsed        int       `json:"elapsed,omitempty"`
}

// State captures all run progress keyed by extracted field keys
// (step-{i}, component-{i}, field-{i}, timer-{i}).
type State struct {
	StepCompletion   map[string]bool       `json:"stepCompletion"`
	Components       map[string]bool       `json:"components"`
	ComponentAmounts map[string]string     `json:"componentAmounts"`
	EntryFields      map[string]string     `json:"entryFields"`
	Timers           map[string]TimerState `json:"timers"`
}

// Empty returns a well-typed state with all maps initialized.
func Empty() State {
	return State{
		StepCompletion:   map[string]bool{},
		Components:       map[string]bool{},
		ComponentAmounts: map[string]string{},
		EntryFields:      map[string]string{},
		Timers:           map[string]TimerState{},
	}
}

// Clone returns a deep copy. Map mutation on the copy never aliases the
// original; transitions in the binder and timer packages rely on this.
func (s State) Clone() State {
	out := State{
		StepCompletion:   make(map[string]bool, len(s.StepCompletion)),
		Components:       make(map[string]bool, len(s.Components)),
		ComponentAmounts: make(map[string]string, len(s.ComponentAmounts)),
		EntryFields:      make(map[string]string, len(s.EntryFields)),
		Timers:           make(map[string]TimerState, len(s.Timers)),
	}
	for k, v := range s.StepCompletion {
		out.StepCompletion[k] = v
	}
	for k, v := range s.Components {
		out.Components[k] = v
	}
	for k, v := range s.ComponentAmounts {
		out.ComponentAmounts[k] = v
	}
	for k, v := range s.EntryFields {
		out.EntryFields[k] = v
	}
	for k, v := range s.Timers {
		out.Timers[k] = v
	}
	return out
}

// AnyTimerRunning reports whether at least one timer is running.
// The tick scheduler only runs while this holds.
func (s State) AnyTimerRunning() bool {
	for _, t := range s.Timers {
		if t.Running {
			return true
		}
	}
	return false
}

// AlertActive reports whether any timer's expiry alert window is open at
// the given millisecond epoch.
func (s State) AlertActive(nowMillis int64) bool {
	for _, t := range s.Timers {
		if t.AlertUntil != 0 && t.AlertUntil > nowMillis {
			return true
		}
	}
	return false
}
