package binder

import (
	"fmt"
	"time"

	"github.com/benchbook/benchbook/internal/document"
	"github.com/benchbook/benchbook/internal/runstate"
	"github.com/benchbook/benchbook/internal/timer"
)

// Input width bounds, in character cells. Width tracks content length so
// the control grows with the value; presentation-only.
const (
	minInputWidth = 10
	maxInputWidth = 64
)

// StepView is the rendered state of one step checkbox.
type StepView struct {
	Key     string
	Text    string
	Checked bool
	// Derived steps reflect their components and are never directly
	// togglable.
	Derived  bool
	Disabled bool
}

// ComponentView is the rendered state of one component slot.
type ComponentView struct {
	Key      string
	Label    string
	Unit     string
	Checked  bool
	Amount   string
	Width    int
	Disabled bool
}

// MeasurementView is the rendered state of one measurement field.
type MeasurementView struct {
	Key      string
	Label    string
	Unit     string
	Value    string
	Width    int
	Disabled bool
}

// TimerView is the rendered state of one timer control cluster.
type TimerView struct {
	Key           string
	Label         string
	Mode          runstate.TimerMode
	Value         string // formatted remaining, mm:ss
	ElapsedText   string // "Elapsed: mm:ss", empty for countup
	StampsText    string // first-start / interval captions
	ActionLabel   string // Start/Pause or Begin/End
	ActionEnabled bool
	ResetEnabled  bool
	LockLabel     string // Lock/Unlock
	LockEnabled   bool
	Overrun       bool // remaining went negative; flagged, not stored specially
	AlertActive   bool
}

// View is the full renderable state of a run body against its interaction
// state. Rendering layers consume this; they never reach into state maps.
type View struct {
	Steps        []StepView
	Components   []ComponentView
	Measurements []MeasurementView
	Timers       []TimerView
}

// FormatDuration renders a signed second count as [-]mm:ss.
func FormatDuration(totalSeconds int) string {
	sign := ""
	if totalSeconds < 0 {
		sign = "-"
		totalSeconds = -totalSeconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, totalSeconds/60, totalSeconds%60)
}

// InputWidth returns the display width for a value of the given length.
func InputWidth(value string) int {
	w := len([]rune(value)) + 4
	if w < minInputWidth {
		return minInputWidth
	}
	if w > maxInputWidth {
		return maxInputWidth
	}
	return w
}

func formatClock(millis int64) string {
	return time.UnixMilli(millis).Format("15:04:05")
}

// Render builds the view for the given fields and state. In read-only mode
// every control is disabled and merely displays the last persisted value.
func Render(fs *document.FieldSet, st runstate.State, readOnly bool, now time.Time) View {
	v := View{}
	nowMillis := now.UnixMilli()

	for _, step := range fs.Steps {
		derived := len(fs.ComponentsByStep[step.Key]) > 0
		checked := st.StepCompletion[step.Key]
		if derived {
			checked = stepDerived(fs, st.Components, step.Key)
		}
		v.Steps = append(v.Steps, StepView{
			Key:      step.Key,
			Text:     step.Text,
			Checked:  checked,
			Derived:  derived,
			Disabled: readOnly || derived,
		})
	}

	for _, c := range fs.Components {
		amount := ComponentAmount(fs, st, c.Key)
		v.Components = append(v.Components, ComponentView{
			Key:      c.Key,
			Label:    c.Label,
			Unit:     c.Unit,
			Checked:  st.Components[c.Key],
			Amount:   amount,
			Width:    InputWidth(amount),
			Disabled: readOnly,
		})
	}

	for _, m := range fs.Measurements {
		value := EntryFieldValue(fs, st, m.Key)
		v.Measurements = append(v.Measurements, MeasurementView{
			Key:      m.Key,
			Label:    m.Label,
			Unit:     m.Unit,
			Value:    value,
			Width:    InputWidth(value),
			Disabled: readOnly,
		})
	}

	for _, desc := range fs.Timers {
		t, ok := st.Timers[desc.Key]
		if !ok {
			t = timer.DefaultState(desc)
		}
		mode := t.Mode
		if mode == "" {
			mode = runstate.ModeCountdown
		}

		tv := TimerView{
			Key:         desc.Key,
			Label:       desc.Label,
			Mode:        mode,
			Value:       FormatDuration(t.Remaining),
			Overrun:     t.Remaining < 0,
			AlertActive: t.AlertUntil != 0 && t.AlertUntil > nowMillis,
			LockEnabled: !readOnly,
		}

		if mode == runstate.ModeLongRange {
			if t.Running {
				tv.ActionLabel = "End"
			} else {
				tv.ActionLabel = "Begin"
			}
		} else if t.Running {
			tv.ActionLabel = "Pause"
		} else {
			tv.ActionLabel = "Start"
		}
		// A locked timer's action stays enabled only to let a running
		// longrange interval be ended.
		tv.ActionEnabled = !readOnly && !(t.Locked && !(mode == runstate.ModeLongRange && t.Running))
		tv.ResetEnabled = !readOnly && !t.Locked
		if t.Locked {
			tv.LockLabel = "Unlock"
		} else {
			tv.LockLabel = "Lock"
		}

		if mode != runstate.ModeCountup {
			tv.ElapsedText = "Elapsed: " + FormatDuration(t.Elapsed)
		}

		if t.FirstStartedAt != 0 {
			first := formatClock(t.FirstStartedAt)
			if mode == runstate.ModeLongRange && t.StartedAt != 0 {
				start := formatClock(t.StartedAt)
				if t.EndedAt != 0 {
					tv.StampsText = fmt.Sprintf("First: %s | %s - %s", first, start, formatClock(t.EndedAt))
				} else {
					tv.StampsText = fmt.Sprintf("First: %s | Started: %s", first, start)
				}
			} else {
				tv.StampsText = "First start: " + first
			}
		}

		v.Timers = append(v.Timers, tv)
	}

	return v
}
