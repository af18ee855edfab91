package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchbook/benchbook/internal/document"
	"github.com/benchbook/benchbook/internal/runstate"
)

const sampleBody = `<h2>PCR Setup</h2>
<p>
  <span data-entry-node="measurement" label="Template DNA" unit="ng" value=""></span>
  <span data-entry-node="measurement" unit="uM"></span>
</p>
<ul data-type="taskList">
  <li data-type="taskItem" data-checked="false">
    <label><input type="checkbox"><span></span></label>
    <div><p>Add buffer to the tube.</p>
      <span data-entry-node="component" label="Buffer" unit="uL" value="12.5"></span>
      <span data-entry-node="component" label="Polymerase" unit="uL"></span>
    </div>
  </li>
  <li data-type="taskItem" data-checked="false">
    <label><input type="checkbox"><span></span></label>
    <div><p>Load PCR in thermocycler and start run.</p>
      <p><span data-entry-node="timer" label="PCR runtime" seconds="5400"></span></p>
    </div>
  </li>
</ul>
<p><span data-entry-node="timer" label="Bench clock" mode="countup"></span></p>`

func TestExtract_KeysInDocumentOrder(t *testing.T) {
	fs, err := document.Extract(sampleBody)
	require.NoError(t, err)

	require.Len(t, fs.Steps, 2)
	assert.Equal(t, "step-0", fs.Steps[0].Key)
	assert.Equal(t, "step-1", fs.Steps[1].Key)
	assert.Equal(t, "Add buffer to the tube.", fs.Steps[0].Text)

	require.Len(t, fs.Components, 2)
	assert.Equal(t, "component-0", fs.Components[0].Key)
	assert.Equal(t, "Buffer", fs.Components[0].Label)
	assert.Equal(t, "uL", fs.Components[0].Unit)
	assert.Equal(t, "12.5", fs.Components[0].Value)
	assert.Equal(t, "step-0", fs.Components[0].StepKey)
	assert.Equal(t, "step-0", fs.Components[1].StepKey)

	require.Len(t, fs.Measurements, 2)
	assert.Equal(t, "field-0", fs.Measurements[0].Key)
	assert.Equal(t, "Template DNA", fs.Measurements[0].Label)
	assert.Equal(t, "Undefined", fs.Measurements[1].Label, "missing label falls back")

	require.Len(t, fs.Timers, 2)
	assert.Equal(t, "timer-0", fs.Timers[0].Key)
	assert.Equal(t, 5400, fs.Timers[0].Seconds)
	assert.Equal(t, runstate.ModeCountdown, fs.Timers[0].Mode, "missing mode defaults to countdown")
	assert.Equal(t, "step-1", fs.Timers[0].StepKey)
	assert.Equal(t, runstate.ModeCountup, fs.Timers[1].Mode)
	assert.Empty(t, fs.Timers[1].StepKey, "timer outside any step has no owner")
	assert.Equal(t, 60, fs.Timers[1].Seconds, "missing seconds defaults to 60")
}

func TestExtract_Membership(t *testing.T) {
	fs, err := document.Extract(sampleBody)
	require.NoError(t, err)

	assert.Equal(t, []string{"component-0", "component-1"}, fs.ComponentsByStep["step-0"])
	assert.Empty(t, fs.ComponentsByStep["step-1"])
	assert.Equal(t, []string{"timer-0"}, fs.TimersByStep["step-1"])
}

func TestExtract_Stability(t *testing.T) {
	// Same body, same keys, no matter how often it is extracted.
	first, err := document.Extract(sampleBody)
	require.NoError(t, err)
	second, err := document.Extract(sampleBody)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtract_EmptyBody(t *testing.T) {
	fs, err := document.Extract("")
	require.NoError(t, err)
	assert.Empty(t, fs.Steps)
	assert.Empty(t, fs.Components)
	assert.Empty(t, fs.Measurements)
	assert.Empty(t, fs.Timers)
}

func TestExtract_InvalidTimerAttributes(t *testing.T) {
	fs, err := document.Extract(`<span data-entry-node="timer" seconds="-3" mode="sideways"></span>`)
	require.NoError(t, err)
	require.Len(t, fs.Timers, 1)
	assert.Equal(t, 60, fs.Timers[0].Seconds)
	assert.Equal(t, runstate.ModeCountdown, fs.Timers[0].Mode)
	assert.Equal(t, "Timer", fs.Timers[0].Label)
}

func TestExtract_NestedTaskLists(t *testing.T) {
	body := `<ul data-type="taskList">
	  <li data-type="taskItem"><div><p>Outer</p>
	    <ul data-type="taskList">
	      <li data-type="taskItem"><div><p>Inner</p>
	        <span data-entry-node="component" label="Salt"></span>
	      </div></li>
	    </ul>
	  </div></li>
	</ul>`
	fs, err := document.Extract(body)
	require.NoError(t, err)
	require.Len(t, fs.Steps, 2)
	// The component belongs to the nearest enclosing step.
	assert.Equal(t, "step-1", fs.Components[0].StepKey)
}
