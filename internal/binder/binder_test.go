package binder_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchbook/benchbook/internal/binder"
	"github.com/benchbook/benchbook/internal/document"
	"github.com/benchbook/benchbook/internal/runstate"
)

// twoStepBody has step-0 owning one component ("Buffer") and step-1 with no
// components; step-1 owns a countdown timer.
const twoStepBody = `<ul data-type="taskList">
  <li data-type="taskItem"><div><p>Mix the buffer.</p>
    <span data-entry-node="component" label="Buffer" unit="uL"></span>
  </div></li>
  <li data-type="taskItem"><div><p>Incubate.</p>
    <span data-entry-node="timer" label="Incubation" seconds="300"></span>
  </div></li>
</ul>
<p><span data-entry-node="measurement" label="pH"></span></p>`

func extract(t *testing.T, body string) *document.FieldSet {
	t.Helper()
	fs, err := document.Extract(body)
	require.NoError(t, err)
	return fs
}

func TestToggleComponent_DrivesOwningStep(t *testing.T) {
	fs := extract(t, twoStepBody)
	st := runstate.Empty()

	st = binder.ToggleComponent(fs, st, "component-0", true)
	assert.True(t, st.Components["component-0"])
	assert.True(t, st.StepCompletion["step-0"], "checking the only component completes the step")

	st = binder.ToggleComponent(fs, st, "component-0", false)
	assert.False(t, st.StepCompletion["step-0"])
}

func TestToggleStep_DerivedStepIgnoresUserValue(t *testing.T) {
	fs := extract(t, twoStepBody)
	st := runstate.Empty()

	// The user cannot force a component-bearing step; the toggle resolves
	// to the AND of its components.
	st = binder.ToggleStep(fs, st, "step-0", true)
	assert.False(t, st.StepCompletion["step-0"])

	st = binder.ToggleComponent(fs, st, "component-0", true)
	st = binder.ToggleStep(fs, st, "step-0", false)
	assert.True(t, st.StepCompletion["step-0"])
}

func TestToggleStep_ComponentlessStepIsDirect(t *testing.T) {
	fs := extract(t, twoStepBody)
	st := runstate.Empty()

	st = binder.ToggleStep(fs, st, "step-1", true)
	assert.True(t, st.StepCompletion["step-1"])
	st = binder.ToggleStep(fs, st, "step-1", false)
	assert.False(t, st.StepCompletion["step-1"])
}

func TestToggleStep_CheckingLocksOwnedTimers(t *testing.T) {
	fs := extract(t, twoStepBody)
	st := runstate.Empty()
	st.Timers["timer-0"] = runstate.TimerState{
		Mode: runstate.ModeCountdown, Total: 300, Remaining: 120, Running: true, Locked: true,
		AlertUntil: time.Now().Add(time.Minute).UnixMilli(),
	}

	st = binder.ToggleStep(fs, st, "step-1", true)
	tm := st.Timers["timer-0"]
	assert.False(t, tm.Running, "completing a step stops its timers")
	assert.True(t, tm.Locked)
	assert.Zero(t, tm.AlertUntil)
	assert.Equal(t, 120, tm.Remaining, "current value is locked in, not reset")

	// Unchecking does not unlock: the lock-on-check asymmetry is intentional.
	st = binder.ToggleStep(fs, st, "step-1", false)
	assert.True(t, st.Timers["timer-0"].Locked)
	assert.False(t, st.Timers["timer-0"].Running)
}

func TestToggleStep_CheckingSeedsAbsentTimerState(t *testing.T) {
	fs := extract(t, twoStepBody)
	st := binder.ToggleStep(fs, runstate.Empty(), "step-1", true)

	tm, ok := st.Timers["timer-0"]
	require.True(t, ok, "a never-touched timer still gets locked on step completion")
	assert.True(t, tm.Locked)
	assert.Equal(t, 300, tm.Total)
	assert.Equal(t, 300, tm.Remaining)
}

func TestANDInvariant_ManyComponents(t *testing.T) {
	body := `<ul data-type="taskList"><li data-type="taskItem"><div>
	  <span data-entry-node="component" label="A"></span>
	  <span data-entry-node="component" label="B"></span>
	  <span data-entry-node="component" label="C"></span>
	</div></li></ul>`
	fs := extract(t, body)
	st := runstate.Empty()

	// The invariant holds after every toggle, in any order.
	order := []struct {
		key     string
		checked bool
	}{
		{"component-1", true}, {"component-0", true}, {"component-2", true},
		{"component-1", false}, {"component-1", true},
	}
	for _, ev := range order {
		st = binder.ToggleComponent(fs, st, ev.key, ev.checked)
		want := st.Components["component-0"] && st.Components["component-1"] && st.Components["component-2"]
		assert.Equal(t, want, st.StepCompletion["step-0"], "after toggling %s=%v", ev.key, ev.checked)
	}
	assert.True(t, st.StepCompletion["step-0"])
}

func TestInsertText_PasteAtCursor(t *testing.T) {
	// Scenario: paste "12.5" into an empty field at position 0, then "mL"
	// at the end — concatenation at cursor, never replacement.
	v := binder.InsertText("", 0, 0, "12.5")
	assert.Equal(t, "12.5", v)
	v = binder.InsertText(v, 4, 4, "mL")
	assert.Equal(t, "12.5mL", v)
}

func TestInsertText_ReplacesSelection(t *testing.T) {
	assert.Equal(t, "1X.5", binder.InsertText("12.5", 1, 2, "X"))
}

func TestInsertText_ClampsOutOfRange(t *testing.T) {
	assert.Equal(t, "abX", binder.InsertText("ab", 7, 9, "X"))
	assert.Equal(t, "Xab", binder.InsertText("ab", -3, -1, "X"))
}

func TestInsertText_StripsControlCharacters(t *testing.T) {
	assert.Equal(t, "12.5", binder.InsertText("", 0, 0, "12\t.\n5\r"))
}

func TestSetEntryField_SanitizesValue(t *testing.T) {
	st := binder.SetEntryField(runstate.Empty(), "field-0", "7.4\n")
	assert.Equal(t, "7.4", st.EntryFields["field-0"])
}

func TestPasteComponentAmount_UsesAuthoredDefaultAsBase(t *testing.T) {
	body := `<span data-entry-node="component" label="Buffer" value="12.5"></span>`
	fs := extract(t, body)

	st := binder.PasteComponentAmount(fs, runstate.Empty(), "component-0", 4, 4, "mL")
	assert.Equal(t, "12.5mL", st.ComponentAmounts["component-0"])
}

func TestReconcile_DerivesStepsOnLoad(t *testing.T) {
	fs := extract(t, twoStepBody)
	st := runstate.Empty()
	st.Components["component-0"] = true
	st.StepCompletion["step-1"] = true // direct step untouched by reconcile

	st = binder.Reconcile(fs, st)
	assert.True(t, st.StepCompletion["step-0"])
	assert.True(t, st.StepCompletion["step-1"])
}

func TestTransitionsArePure(t *testing.T) {
	fs := extract(t, twoStepBody)
	before := runstate.Empty()

	_ = binder.ToggleComponent(fs, before, "component-0", true)
	_ = binder.SetEntryField(before, "field-0", "x")
	assert.Equal(t, runstate.Empty(), before, "inputs are never mutated")
}
