package session

import (
	"fmt"
	"strings"

	"github.com/benchbook/benchbook/internal/document"
	"github.com/benchbook/benchbook/internal/runstate"
)

const stepPreviewLen = 10

// Completion lists what is still missing before a run can end cleanly.
// Timers are deliberately absent: an unfinished timer never blocks ending.
type Completion struct {
	Steps      []string `json:"steps,omitempty"`
	Components []string `json:"components,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// Complete reports whether nothing is missing.
func (c Completion) Complete() bool {
	return len(c.Steps) == 0 && len(c.Components) == 0 && len(c.Fields) == 0
}

// Describe renders the missing items as a plain-language list for the
// override confirmation.
func (c Completion) Describe() string {
	var lines []string
	for _, s := range c.Steps {
		lines = append(lines, "unchecked "+s)
	}
	for _, c := range c.Components {
		lines = append(lines, "component "+c)
	}
	for _, f := range c.Fields {
		lines = append(lines, "field "+f)
	}
	return strings.Join(lines, "; ")
}

// CheckCompletion evaluates the current state against the extracted field
// structure. A step is missing when unchecked; a component when unchecked
// or checked with a blank recorded amount; a measurement field when its
// recorded value is blank. Only state counts: an authored default amount
// is a rendering fallback, not a recorded measurement, so an untouched
// input is incomplete even when the protocol ships a value.
func CheckCompletion(fs *document.FieldSet, st runstate.State) Completion {
	var c Completion

	for _, step := range fs.Steps {
		if !st.StepCompletion[step.Key] {
			c.Steps = append(c.Steps, fmt.Sprintf("Step %d: %s", step.Index+1, stepPreview(step.Text)))
		}
	}

	for _, comp := range fs.Components {
		checked := st.Components[comp.Key]
		amount := strings.TrimSpace(st.ComponentAmounts[comp.Key])
		if !checked || amount == "" {
			c.Components = append(c.Components, comp.Label)
		}
	}

	for _, m := range fs.Measurements {
		if strings.TrimSpace(st.EntryFields[m.Key]) == "" {
			c.Fields = append(c.Fields, m.Label)
		}
	}

	return c
}

func stepPreview(text string) string {
	if text == "" {
		return "(untitled)"
	}
	runes := []rune(text)
	if len(runes) <= stepPreviewLen {
		return text
	}
	return string(runes[:stepPreviewLen]) + "..."
}
