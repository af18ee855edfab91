package runstate

import "encoding/json"

// timerSignature is the stable subset of a timer compared for autosave
// purposes. Remaining/elapsed change every tick while a timer runs;
// including them would make every second look like an edit worth saving.
type timerSignature struct {
	Total   int  `json:"total"`
	Running bool `json:"running"`
	Locked  bool `json:"locked"`
}

// Signature returns a deterministic fingerprint of the state used by the
// auto-save debounce. Two states with equal signatures differ at most in
// volatile timer fields and do not warrant a save.
func Signature(s State) string {
	timers := make(map[string]timerSignature, len(s.Timers))
	for key, t := range s.Timers {
		timers[key] = timerSignature{Total: t.Total, Running: t.Running, Locked: t.Locked}
	}

	// Maps marshal with sorted keys, so the output is canonical.
	data, err := json.Marshal(struct {
		StepCompletion   map[string]bool           `json:"stepCompletion"`
		Components       map[string]bool           `json:"components"`
		ComponentAmounts map[string]string         `json:"componentAmounts"`
		EntryFields      map[string]string         `json:"entryFields"`
		Timers           map[string]timerSignature `json:"timers"`
	}{s.StepCompletion, s.Components, s.ComponentAmounts, s.EntryFields, timers})
	if err != nil {
		// Marshaling maps of primitives cannot fail; keep the signature
		// total anyway.
		return ""
	}
	return string(data)
}
