// Package document extracts the interactive field structure from a frozen
// protocol run body.
//
// A run body is an HTML document containing four marker types:
// steps (li[data-type='taskItem']), components and measurement fields
// (span[data-entry-node='component' / 'measurement']), and timers
// (span[data-entry-node='timer']). Extraction walks the tree once,
// depth-first in document order, assigning index-based keys per marker type
// (step-0..n, component-0..n, field-0..n, timer-0..n) and recording which
// step owns each nested component or timer.
//
// Extraction is pure: it reads attribute-level identity and structure only,
// never live values, so the same body always yields the same key
// assignment regardless of interaction state. Callers must extract once per
// run-body identity and reuse the FieldSet; re-parsing per keystroke is a
// correctness bug, not just waste.
package document

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/benchbook/benchbook/internal/runstate"
)

// Default labels and duration used when a marker omits its attributes,
// matching what authored documents rely on.
const (
	defaultComponentLabel   = "Component"
	defaultMeasurementLabel = "Undefined"
	defaultTimerLabel       = "Timer"
	defaultTimerSeconds     = 60
)

// Step is a checkable unit of work.
type Step struct {
	Key   string
	Index int
	// Text is the step's collapsed text content, used for completeness
	// previews ("Step 3: Incubate at...").
	Text string
}

// Component is a reagent/material checklist slot, optionally owned by a step.
type Component struct {
	Key     string
	Index   int
	Label   string
	Unit    string
	Value   string
	StepKey string // empty when not nested inside a step
}

// Measurement is a labeled free-text capture slot.
type Measurement struct {
	Key   string
	Index int
	Label string
	Unit  string
	Value string
}

// Timer is a duration tracker with a declared mode and default duration.
type Timer struct {
	Key     string
	Index   int
	Label   string
	Seconds int
	Mode    runstate.TimerMode
	StepKey string // empty when not nested inside a step
}

// FieldSet is the ordered field structure of one run body.
type FieldSet struct {
	Steps        []Step
	Components   []Component
	Measurements []Measurement
	Timers       []Timer

	// ComponentsByStep and TimersByStep map a step key to the keys of the
	// components/timers nested inside it, in document order.
	ComponentsByStep map[string][]string
	TimersByStep     map[string][]string
}

// StepByKey returns the step with the given key.
func (fs *FieldSet) StepByKey(key string) (Step, bool) {
	for _, s := range fs.Steps {
		if s.Key == key {
			return s, true
		}
	}
	return Step{}, false
}

// TimerByKey returns the timer descriptor with the given key.
func (fs *FieldSet) TimerByKey(key string) (Timer, bool) {
	for _, t := range fs.Timers {
		if t.Key == key {
			return t, true
		}
	}
	return Timer{}, false
}

// Extract parses the run body and builds its FieldSet in one pass.
// An empty body yields an empty FieldSet. html.Parse is lenient, so only
// catastrophically broken input errors here.
func Extract(body string) (*FieldSet, error) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("document: parse run body: %w", err)
	}

	fs := &FieldSet{
		ComponentsByStep: map[string][]string{},
		TimersByStep:     map[string][]string{},
	}
	walk(root, "", fs)
	return fs, nil
}

// walk visits nodes depth-first in document order. stepKey is the key of
// the nearest ancestor step, or empty.
func walk(n *html.Node, stepKey string, fs *FieldSet) {
	if n.Type == html.ElementNode {
		switch {
		case isStep(n):
			step := Step{
				Key:   fmt.Sprintf("step-%d", len(fs.Steps)),
				Index: len(fs.Steps),
				Text:  collapseWhitespace(textContent(n)),
			}
			fs.Steps = append(fs.Steps, step)
			stepKey = step.Key

		case isEntryNode(n, "component"):
			c := Component{
				Key:     fmt.Sprintf("component-%d", len(fs.Components)),
				Index:   len(fs.Components),
				Label:   attrOr(n, "label", defaultComponentLabel),
				Unit:    attr(n, "unit"),
				Value:   attr(n, "value"),
				StepKey: stepKey,
			}
			fs.Components = append(fs.Components, c)
			if stepKey != "" {
				fs.ComponentsByStep[stepKey] = append(fs.ComponentsByStep[stepKey], c.Key)
			}

		case isEntryNode(n, "measurement"):
			m := Measurement{
				Key:   fmt.Sprintf("field-%d", len(fs.Measurements)),
				Index: len(fs.Measurements),
				Label: attrOr(n, "label", defaultMeasurementLabel),
				Unit:  attr(n, "unit"),
				Value: attr(n, "value"),
			}
			fs.Measurements = append(fs.Measurements, m)

		case isEntryNode(n, "timer"):
			t := Timer{
				Key:     fmt.Sprintf("timer-%d", len(fs.Timers)),
				Index:   len(fs.Timers),
				Label:   attrOr(n, "label", defaultTimerLabel),
				Seconds: attrSeconds(n),
				Mode:    attrMode(n),
				StepKey: stepKey,
			}
			fs.Timers = append(fs.Timers, t)
			if stepKey != "" {
				fs.TimersByStep[stepKey] = append(fs.TimersByStep[stepKey], t.Key)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, stepKey, fs)
	}
}

func isStep(n *html.Node) bool {
	return n.Data == "li" && attr(n, "data-type") == "taskItem"
}

func isEntryNode(n *html.Node, kind string) bool {
	return n.Data == "span" && attr(n, "data-entry-node") == kind
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func attrOr(n *html.Node, name, fallback string) string {
	if v := attr(n, name); v != "" {
		return v
	}
	return fallback
}

func attrSeconds(n *html.Node) int {
	v, err := strconv.Atoi(attr(n, "seconds"))
	if err != nil || v <= 0 {
		return defaultTimerSeconds
	}
	return v
}

func attrMode(n *html.Node) runstate.TimerMode {
	if m := runstate.TimerMode(attr(n, "mode")); m.Valid() {
		return m
	}
	return runstate.ModeCountdown
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
