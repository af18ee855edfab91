// Package binder applies user interactions to a run's interaction state.
//
// Every operation is a pure transition: given the extracted field structure
// and the current state, produce the next state. Nothing here touches
// rendering or persistence, which keeps the AND-invariant between steps and
// their components enforceable no matter how events interleave.
//
// The binder is the sole writer of components, componentAmounts,
// entryFields, and (for component-less steps) stepCompletion.
package binder

import (
	"strings"

	"github.com/benchbook/benchbook/internal/document"
	"github.com/benchbook/benchbook/internal/runstate"
	"github.com/benchbook/benchbook/internal/timer"
)

// sanitizer strips the control characters a pasted or typed value may carry;
// field values are single-line free text.
var sanitizer = strings.NewReplacer("\n", "", "\r", "", "\t", "")

// Sanitize removes newline/tab characters from a field value.
func Sanitize(value string) string {
	return sanitizer.Replace(value)
}

// InsertText merges pasted text into an existing value at the cursor
// selection, replacing the selected range. Out-of-range offsets are clamped
// rather than rejected so a stale cursor position never drops input.
func InsertText(current string, selStart, selEnd int, pasted string) string {
	runes := []rune(current)
	if selStart < 0 {
		selStart = 0
	}
	if selStart > len(runes) {
		selStart = len(runes)
	}
	if selEnd < selStart {
		selEnd = selStart
	}
	if selEnd > len(runes) {
		selEnd = len(runes)
	}
	return string(runes[:selStart]) + Sanitize(pasted) + string(runes[selEnd:])
}

// stepDerived recomputes completion for a component-bearing step: the AND
// of its components' checked state.
func stepDerived(fs *document.FieldSet, components map[string]bool, stepKey string) bool {
	keys := fs.ComponentsByStep[stepKey]
	for _, key := range keys {
		if !components[key] {
			return false
		}
	}
	return len(keys) > 0
}

// ToggleStep handles a step checkbox change.
//
// For a step with components the user value is ignored: completion is
// derived from the components, always. For a component-less step the value
// is stored directly, and checking the step closes out its timers — each
// owned timer is stopped and locked at its current value. Unchecking never
// unlocks a timer.
func ToggleStep(fs *document.FieldSet, st runstate.State, stepKey string, checked bool) runstate.State {
	next := st.Clone()

	if len(fs.ComponentsByStep[stepKey]) > 0 {
		next.StepCompletion[stepKey] = stepDerived(fs, next.Components, stepKey)
		return next
	}

	next.StepCompletion[stepKey] = checked
	if !checked {
		return next
	}

	for _, timerKey := range fs.TimersByStep[stepKey] {
		existing, ok := next.Timers[timerKey]
		if !ok {
			if desc, found := fs.TimerByKey(timerKey); found {
				existing = timer.DefaultState(desc)
			}
		}
		existing.Running = false
		existing.Locked = true
		existing.AlertUntil = 0
		next.Timers[timerKey] = existing
	}
	return next
}

// ToggleComponent handles a component checkbox change and immediately
// recomputes the owning step's derived completion, if any.
func ToggleComponent(fs *document.FieldSet, st runstate.State, componentKey string, checked bool) runstate.State {
	next := st.Clone()
	next.Components[componentKey] = checked

	for _, c := range fs.Components {
		if c.Key == componentKey && c.StepKey != "" {
			next.StepCompletion[c.StepKey] = stepDerived(fs, next.Components, c.StepKey)
			break
		}
	}
	return next
}

// SetComponentAmount stores the raw amount text for a component.
func SetComponentAmount(st runstate.State, componentKey, value string) runstate.State {
	next := st.Clone()
	next.ComponentAmounts[componentKey] = Sanitize(value)
	return next
}

// SetEntryField stores the raw value text for a measurement field.
func SetEntryField(st runstate.State, fieldKey, value string) runstate.State {
	next := st.Clone()
	next.EntryFields[fieldKey] = Sanitize(value)
	return next
}

// PasteComponentAmount merges pasted text into a component amount at the
// given cursor selection.
func PasteComponentAmount(fs *document.FieldSet, st runstate.State, componentKey string, selStart, selEnd int, pasted string) runstate.State {
	current := ComponentAmount(fs, st, componentKey)
	return SetComponentAmount(st, componentKey, InsertText(current, selStart, selEnd, pasted))
}

// PasteEntryField merges pasted text into a measurement field at the given
// cursor selection.
func PasteEntryField(fs *document.FieldSet, st runstate.State, fieldKey string, selStart, selEnd int, pasted string) runstate.State {
	current := EntryFieldValue(fs, st, fieldKey)
	return SetEntryField(st, fieldKey, InsertText(current, selStart, selEnd, pasted))
}

// Reconcile recomputes every component-bearing step's derived completion.
// Called once after a run body is bound so persisted component state and
// derived step state agree before the first user event.
func Reconcile(fs *document.FieldSet, st runstate.State) runstate.State {
	next := st.Clone()
	for stepKey, keys := range fs.ComponentsByStep {
		if len(keys) == 0 {
			continue
		}
		next.StepCompletion[stepKey] = stepDerived(fs, next.Components, stepKey)
	}
	return next
}

// ComponentAmount returns the effective amount for a component: the stored
// value when present, otherwise the marker's authored default.
func ComponentAmount(fs *document.FieldSet, st runstate.State, componentKey string) string {
	if v, ok := st.ComponentAmounts[componentKey]; ok {
		return v
	}
	for _, c := range fs.Components {
		if c.Key == componentKey {
			return c.Value
		}
	}
	return ""
}

// EntryFieldValue returns the effective value for a measurement field.
func EntryFieldValue(fs *document.FieldSet, st runstate.State, fieldKey string) string {
	if v, ok := st.EntryFields[fieldKey]; ok {
		return v
	}
	for _, m := range fs.Measurements {
		if m.Key == fieldKey {
			return m.Value
		}
	}
	return ""
}
