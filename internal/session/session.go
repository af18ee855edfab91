// Package session owns the live execution of one protocol run: the in-memory
// interaction state, the shared tick engine, debounced auto-save, manual
// save, and the completeness-gated end-of-run transition.
//
// A session is the single writer of its run's interaction state. All
// mutators serialize through one mutex, so interleaved user events and
// timer ticks always observe a consistent state; the persisted record is
// only the serialization point, never the source of truth while the
// session is open.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchbook/benchbook/internal/binder"
	"github.com/benchbook/benchbook/internal/document"
	"github.com/benchbook/benchbook/internal/model"
	"github.com/benchbook/benchbook/internal/runstate"
	"github.com/benchbook/benchbook/internal/storage"
	"github.com/benchbook/benchbook/internal/timer"
)

// DefaultAutoSaveDelay is the debounce applied to signature changes before
// the interaction state is persisted.
const DefaultAutoSaveDelay = 5 * time.Second

var (
	// ErrRunEnded is returned by lifecycle operations on a run that has
	// already completed. Mutators do not return it; they become no-ops.
	ErrRunEnded = errors.New("session: run already ended and is locked")

	// ErrEndDeclined is returned by End when the completeness override is
	// not confirmed. The run stays IN_PROGRESS.
	ErrEndDeclined = errors.New("session: end of run declined")

	// ErrClosed is returned by lifecycle operations on a closed session.
	ErrClosed = errors.New("session: closed")
)

// Confirmer answers the destructive-action confirmations a session needs:
// overriding an incomplete run at end time, and resetting a timer.
type Confirmer interface {
	ConfirmEnd(ctx context.Context, missing Completion) (bool, error)
	ConfirmReset(ctx context.Context, timerLabel string) (bool, error)
}

// declineAll is the fallback Confirmer: every override is refused.
type declineAll struct{}

func (declineAll) ConfirmEnd(context.Context, Completion) (bool, error) { return false, nil }
func (declineAll) ConfirmReset(context.Context, string) (bool, error)  { return false, nil }

// Config carries the session's collaborators. Zero values get defaults.
type Config struct {
	AutoSaveDelay time.Duration
	TickInterval  time.Duration
	Clock         func() time.Time
	Confirm       Confirmer
	// OnAlert fires once per tick while a countdown's expiry alert window
	// is open. Runs on the engine goroutine.
	OnAlert func()
	Logger  *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.AutoSaveDelay <= 0 {
		c.AutoSaveDelay = DefaultAutoSaveDelay
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Confirm == nil {
		c.Confirm = declineAll{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session binds one run's frozen body to its live interaction state.
type Session struct {
	store   storage.Store
	cfg     Config
	fields  *document.FieldSet
	engine  *timer.Engine
	baseCtx context.Context
	cancel  context.CancelFunc

	mu           sync.Mutex
	run          model.Run
	env          runstate.Envelope
	notes        string
	lastSavedSig string
	saveTimer    *time.Timer
	readOnly     bool
	saveFailed   bool
	closed       bool
}

// Open loads the run, extracts its field structure from the frozen body,
// parses the persisted interaction state, and reconciles derived step
// completion. A COMPLETED run opens read-only.
func Open(ctx context.Context, store storage.Store, runID uuid.UUID, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("session: load run: %w", err)
	}

	fields, err := document.Extract(run.RunBody)
	if err != nil {
		return nil, fmt.Errorf("session: extract fields: %w", err)
	}

	env := runstate.Parse(run.InteractionState)
	env = env.WithState(binder.Reconcile(fields, env.State))

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		store:        store,
		cfg:          cfg,
		fields:       fields,
		baseCtx:      baseCtx,
		cancel:       cancel,
		run:          run,
		env:          env,
		notes:        run.Notes,
		lastSavedSig: runstate.Signature(env.State),
		readOnly:     run.Status != model.RunStatusInProgress,
	}
	s.engine = timer.NewEngine(cfg.TickInterval, cfg.Clock, s.onTick)

	s.mu.Lock()
	s.ensureEngineLocked()
	s.mu.Unlock()
	return s, nil
}

// Fields returns the extracted field structure. Immutable after Open.
func (s *Session) Fields() *document.FieldSet { return s.fields }

// Run returns a snapshot of the run record.
func (s *Session) Run() model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// State returns a copy of the current interaction state.
func (s *Session) State() runstate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env.State.Clone()
}

// Notes returns the session's working notes text.
func (s *Session) Notes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes
}

// ReadOnly reports whether the session has stopped accepting mutations.
func (s *Session) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly || s.closed
}

// SaveFailed reports whether the last auto-save attempt failed transiently.
// Cleared by the next successful save.
func (s *Session) SaveFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveFailed
}

// View renders the per-control view model for the current state.
func (s *Session) View() binder.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return binder.Render(s.fields, s.env.State, s.readOnly || s.closed, s.cfg.Clock())
}

// Completion evaluates the end-of-run completeness gate without ending.
func (s *Session) Completion() Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CheckCompletion(s.fields, s.env.State)
}

// ToggleStep applies a step checkbox change.
func (s *Session) ToggleStep(stepKey string, checked bool) {
	s.apply(func(st runstate.State) runstate.State {
		return binder.ToggleStep(s.fields, st, stepKey, checked)
	})
}

// ToggleComponent applies a component checkbox change.
func (s *Session) ToggleComponent(componentKey string, checked bool) {
	s.apply(func(st runstate.State) runstate.State {
		return binder.ToggleComponent(s.fields, st, componentKey, checked)
	})
}

// SetComponentAmount stores a component's amount text.
func (s *Session) SetComponentAmount(componentKey, value string) {
	s.apply(func(st runstate.State) runstate.State {
		return binder.SetComponentAmount(st, componentKey, value)
	})
}

// SetEntryField stores a measurement field's value text.
func (s *Session) SetEntryField(fieldKey, value string) {
	s.apply(func(st runstate.State) runstate.State {
		return binder.SetEntryField(st, fieldKey, value)
	})
}

// PasteComponentAmount merges pasted text into a component amount at the
// cursor selection.
func (s *Session) PasteComponentAmount(componentKey string, selStart, selEnd int, pasted string) {
	s.apply(func(st runstate.State) runstate.State {
		return binder.PasteComponentAmount(s.fields, st, componentKey, selStart, selEnd, pasted)
	})
}

// PasteEntryField merges pasted text into a measurement field at the
// cursor selection.
func (s *Session) PasteEntryField(fieldKey string, selStart, selEnd int, pasted string) {
	s.apply(func(st runstate.State) runstate.State {
		return binder.PasteEntryField(s.fields, st, fieldKey, selStart, selEnd, pasted)
	})
}

// ToggleTimer applies a timer's primary action (Start/Pause or Begin/End).
func (s *Session) ToggleTimer(timerKey string) {
	desc, ok := s.fields.TimerByKey(timerKey)
	if !ok {
		return
	}
	s.apply(func(st runstate.State) runstate.State {
		return timer.Toggle(desc, st, s.cfg.Clock())
	})
}

// ToggleTimerLock flips a timer's lock independently of running.
func (s *Session) ToggleTimerLock(timerKey string) {
	desc, ok := s.fields.TimerByKey(timerKey)
	if !ok {
		return
	}
	s.apply(func(st runstate.State) runstate.State {
		return timer.ToggleLock(desc, st)
	})
}

// ResetTimer returns a timer to defaults after the destructive-action
// confirmation. Locked timers cannot be reset.
func (s *Session) ResetTimer(ctx context.Context, timerKey string) error {
	desc, ok := s.fields.TimerByKey(timerKey)
	if !ok {
		return nil
	}

	confirmed, err := s.cfg.Confirm.ConfirmReset(ctx, desc.Label)
	if err != nil {
		return fmt.Errorf("session: confirm reset: %w", err)
	}
	if !confirmed {
		return nil
	}

	s.apply(func(st runstate.State) runstate.State {
		next, _ := timer.Reset(desc, st)
		return next
	})
	return nil
}

// SetNotes updates the working notes. Notes persist on manual save or end,
// never through auto-save.
func (s *Session) SetNotes(notes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.notes = notes
}

// SetSidecar stores an application-private value (e.g. the utility timer
// snapshot) under a sidecar key. It rides along with the next save; the
// core never interprets it.
func (s *Session) SetSidecar(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.readOnly {
		return nil
	}
	if err := s.env.SetExtra(key, value); err != nil {
		return fmt.Errorf("session: set sidecar: %w", err)
	}
	return nil
}

// apply runs one pure transition under the session mutex. On a locked or
// closed session the intent is a no-op. A signature-visible change resets
// the auto-save debounce.
func (s *Session) apply(fn func(runstate.State) runstate.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.readOnly {
		return
	}

	s.env = s.env.WithState(fn(s.env.State))
	if runstate.Signature(s.env.State) != s.lastSavedSig {
		s.scheduleAutoSaveLocked()
	}
	s.ensureEngineLocked()
}

// onTick advances all running timers by one second. Runs on the engine
// goroutine. Tick-only changes do not touch the save signature, so a
// running timer alone never schedules a save; a countdown expiring flips
// running/locked and does.
func (s *Session) onTick(now time.Time) {
	s.mu.Lock()
	if s.closed || s.readOnly {
		s.mu.Unlock()
		return
	}

	next, changed := timer.TickAll(s.env.State, now)
	if changed {
		s.env = s.env.WithState(next)
		if runstate.Signature(next) != s.lastSavedSig {
			s.scheduleAutoSaveLocked()
		}
	}
	alert := s.env.State.AlertActive(now.UnixMilli()) && s.cfg.OnAlert != nil
	s.ensureEngineLocked()
	s.mu.Unlock()

	if alert {
		s.cfg.OnAlert()
	}
}

// ensureEngineLocked reconciles the tick engine with demand: running while
// at least one timer runs or an alert window is open, stopped otherwise.
func (s *Session) ensureEngineLocked() {
	if s.closed || s.readOnly {
		s.engine.Ensure(false)
		return
	}
	active := s.env.State.AnyTimerRunning() ||
		s.env.State.AlertActive(s.cfg.Clock().UnixMilli())
	s.engine.Ensure(active)
}

func (s *Session) scheduleAutoSaveLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.cfg.AutoSaveDelay, s.autoSave)
}

// autoSave persists the interaction state if its signature moved since the
// last successful save. A lock conflict is authoritative: the local run
// resyncs to COMPLETED and saving stops. Other failures set the transient
// indicator and retry on the next cycle.
func (s *Session) autoSave() {
	s.mu.Lock()
	if s.closed || s.readOnly {
		s.mu.Unlock()
		return
	}
	sig := runstate.Signature(s.env.State)
	if sig == s.lastSavedSig {
		s.mu.Unlock()
		return
	}
	raw, err := s.env.Serialize()
	if err != nil {
		s.cfg.Logger.Error("session: serialize state", "run_id", s.run.ID, "error", err)
		s.mu.Unlock()
		return
	}
	runID := s.run.ID
	s.mu.Unlock()

	start := s.cfg.Clock()
	updated, err := s.store.UpdateRun(s.baseCtx, runID, model.RunPatch{InteractionState: &raw})
	recordSave(s.baseCtx, "auto", saveResult(err), s.cfg.Clock().Sub(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, storage.ErrRunCompleted):
		s.cfg.Logger.Info("session: run completed elsewhere, stopping auto-save", "run_id", runID)
		s.resyncCompletedLocked()
	case err != nil:
		s.cfg.Logger.Warn("session: auto-save failed", "run_id", runID, "error", err)
		s.saveFailed = true
		if !s.closed {
			s.scheduleAutoSaveLocked()
		}
	default:
		s.lastSavedSig = sig
		s.saveFailed = false
		s.run = updated
	}
}

// resyncCompletedLocked adopts the persistence layer's verdict that the
// run has ended: local status flips to COMPLETED, the engine stops, and
// every pending intent becomes a no-op.
func (s *Session) resyncCompletedLocked() {
	s.run.Status = model.RunStatusCompleted
	s.run.Locked = true
	s.readOnly = true
	s.saveFailed = false
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.engine.Ensure(false)
}

// ManualSave persists the interaction state, notes, and sidecar on demand.
// Unlike auto-save, failures are returned to the caller.
func (s *Session) ManualSave(ctx context.Context, notes string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.notes = notes
	if s.readOnly {
		s.mu.Unlock()
		return ErrRunEnded
	}
	sig := runstate.Signature(s.env.State)
	raw, err := s.env.Serialize()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: serialize state: %w", err)
	}
	runID := s.run.ID
	s.mu.Unlock()

	start := s.cfg.Clock()
	updated, err := s.store.UpdateRun(ctx, runID, model.RunPatch{
		InteractionState: &raw,
		Notes:            &notes,
	})
	recordSave(ctx, "manual", saveResult(err), s.cfg.Clock().Sub(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, storage.ErrRunCompleted) {
		s.resyncCompletedLocked()
		return ErrRunEnded
	}
	if err != nil {
		return fmt.Errorf("session: manual save: %w", err)
	}
	s.lastSavedSig = sig
	s.saveFailed = false
	s.run = updated
	return nil
}

// End runs the completeness gate and, if clean or overridden, persists the
// final state with status COMPLETED. The transition is terminal: after it
// the session is read-only and all pending intents are no-ops.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.readOnly {
		s.mu.Unlock()
		return ErrRunEnded
	}
	missing := CheckCompletion(s.fields, s.env.State)
	s.mu.Unlock()

	if !missing.Complete() {
		confirmed, err := s.cfg.Confirm.ConfirmEnd(ctx, missing)
		if err != nil {
			return fmt.Errorf("session: confirm end: %w", err)
		}
		if !confirmed {
			return fmt.Errorf("%w: %s", ErrEndDeclined, missing.Describe())
		}
	}

	s.mu.Lock()
	sig := runstate.Signature(s.env.State)
	raw, err := s.env.Serialize()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: serialize state: %w", err)
	}
	notes := s.notes
	runID := s.run.ID
	s.mu.Unlock()

	status := model.RunStatusCompleted
	start := s.cfg.Clock()
	updated, err := s.store.UpdateRun(ctx, runID, model.RunPatch{
		InteractionState: &raw,
		Notes:            &notes,
		Status:           &status,
	})
	recordSave(ctx, "end", saveResult(err), s.cfg.Clock().Sub(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, storage.ErrRunCompleted) {
		s.resyncCompletedLocked()
		return ErrRunEnded
	}
	if err != nil {
		return fmt.Errorf("session: end run: %w", err)
	}
	s.lastSavedSig = sig
	s.run = updated
	s.resyncCompletedLocked()
	s.cfg.Logger.Info("session: run completed", "run_id", runID, "title", updated.Title)
	return nil
}

// Close releases the session: the debounce timer and tick engine stop and
// every pending intent becomes a no-op. Unsaved local edits are dropped;
// callers wanting them persisted call ManualSave first.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.cancel()
	s.mu.Unlock()

	s.engine.Stop()
}
