package runstate

import (
	"encoding/json"
	"fmt"
)

// knownKeys are the top-level keys owned by the run-execution core. Any
// other key in the persisted blob belongs to the surrounding application
// (e.g. the __ui utility-timer sidecar) and is preserved verbatim.
var knownKeys = map[string]bool{
	"stepCompletion":   true,
	"components":       true,
	"componentAmounts": true,
	"entryFields":      true,
	"timers":           true,
}

// Envelope pairs the core interaction state with the opaque sidecar keys
// that ride along in the same JSON object.
type Envelope struct {
	State State
	Extra map[string]json.RawMessage
}

// EmptyEnvelope returns an envelope with empty state and no sidecar.
func EmptyEnvelope() Envelope {
	return Envelope{State: Empty(), Extra: map[string]json.RawMessage{}}
}

// Parse decodes a persisted interaction-state blob. Malformed input is not
// an error: the view must still render, so any parse failure yields the
// empty, well-typed default. Unknown top-level keys are captured raw.
func Parse(raw string) Envelope {
	env := EmptyEnvelope()
	if raw == "" {
		return env
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return EmptyEnvelope()
	}

	decode := func(key string, target any) {
		msg, ok := top[key]
		if !ok {
			return
		}
		// A malformed individual section falls back to its empty map while
		// the rest of the blob is still honored.
		_ = json.Unmarshal(msg, target)
	}
	decode("stepCompletion", &env.State.StepCompletion)
	decode("components", &env.State.Components)
	decode("componentAmounts", &env.State.ComponentAmounts)
	decode("entryFields", &env.State.EntryFields)
	decode("timers", &env.State.Timers)

	// Unmarshal may have replaced maps with nil for explicit JSON nulls.
	if env.State.StepCompletion == nil {
		env.State.StepCompletion = map[string]bool{}
	}
	if env.State.Components == nil {
		env.State.Components = map[string]bool{}
	}
	if env.State.ComponentAmounts == nil {
		env.State.ComponentAmounts = map[string]string{}
	}
	if env.State.EntryFields == nil {
		env.State.EntryFields = map[string]string{}
	}
	if env.State.Timers == nil {
		env.State.Timers = map[string]TimerState{}
	}

	for key, msg := range top {
		if knownKeys[key] {
			continue
		}
		env.Extra[key] = msg
	}
	return env
}

// Serialize encodes the envelope back into the flat persisted layout:
// the five core keys plus every sidecar key, all in one JSON object.
// Output is deterministic (object keys sorted) so callers can compare
// serializations byte-wise.
func (e Envelope) Serialize() (string, error) {
	out := make(map[string]any, len(knownKeys)+len(e.Extra))
	out["stepCompletion"] = e.State.StepCompletion
	out["components"] = e.State.Components
	out["componentAmounts"] = e.State.ComponentAmounts
	out["entryFields"] = e.State.EntryFields
	out["timers"] = e.State.Timers
	for key, msg := range e.Extra {
		out[key] = msg
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("runstate: serialize envelope: %w", err)
	}
	return string(data), nil
}

// WithState returns a copy of the envelope carrying the given state and
// the same sidecar.
func (e Envelope) WithState(s State) Envelope {
	return Envelope{State: s, Extra: e.Extra}
}

// SetExtra stores a sidecar value under the given key, replacing any
// previous raw bytes. The core never interprets the value.
func (e *Envelope) SetExtra(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("runstate: encode sidecar %q: %w", key, err)
	}
	if e.Extra == nil {
		e.Extra = map[string]json.RawMessage{}
	}
	e.Extra[key] = data
	return nil
}
