package benchbook_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchbook/benchbook"
	"github.com/benchbook/benchbook/internal/model"
	"github.com/benchbook/benchbook/internal/storage"
)

type acceptAll struct{}

func (acceptAll) ConfirmEnd(context.Context, benchbook.Completion) (bool, error) { return true, nil }
func (acceptAll) ConfirmReset(context.Context, string) (bool, error)             { return true, nil }

func newWorkbench(t *testing.T, opts ...benchbook.Option) (*benchbook.Workbench, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	wb, err := benchbook.New(context.Background(),
		append([]benchbook.Option{benchbook.WithStore(mem)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(wb.Close)
	return wb, mem
}

func seededRun(t *testing.T, wb *benchbook.Workbench) benchbook.Run {
	t.Helper()
	ctx := context.Background()
	entry, err := wb.SeedTemplate(ctx)
	require.NoError(t, err)
	run, err := wb.StartRun(ctx, entry.ID, "user-1")
	require.NoError(t, err)
	return run
}

func TestWorkbench_SelectOpensSeededRun(t *testing.T) {
	wb, _ := newWorkbench(t)
	run := seededRun(t, wb)

	sess, err := wb.Select(context.Background(), run.ID)
	require.NoError(t, err)
	require.Same(t, sess, wb.Current())

	view := sess.View()
	assert.NotEmpty(t, view.Steps)
	assert.NotEmpty(t, view.Components)
	assert.NotEmpty(t, view.Timers)
	assert.False(t, sess.ReadOnly())
}

func TestWorkbench_SelectClosesPrevious(t *testing.T) {
	wb, _ := newWorkbench(t)
	first := seededRun(t, wb)
	second := seededRun(t, wb)

	ctx := context.Background()
	s1, err := wb.Select(ctx, first.ID)
	require.NoError(t, err)
	s2, err := wb.Select(ctx, second.ID)
	require.NoError(t, err)

	require.ErrorIs(t, s1.ManualSave(ctx, "stale"), benchbook.ErrClosed)
	require.NoError(t, s2.ManualSave(ctx, "fresh"))
}

func TestWorkbench_AutoSaveDelayFlowsFromEnv(t *testing.T) {
	t.Setenv("BENCHBOOK_AUTOSAVE_DELAY", "20ms")

	wb, mem := newWorkbench(t)
	run := seededRun(t, wb)

	sess, err := wb.Select(context.Background(), run.ID)
	require.NoError(t, err)

	key := sess.View().Measurements[0].Key
	sess.SetEntryField(key, "1.86")

	// The default 5s debounce would time this assertion out; only the env
	// override explains a save landing this fast.
	require.Eventually(t, func() bool {
		got, err := mem.GetRun(context.Background(), run.ID)
		return err == nil && strings.Contains(got.InteractionState, "1.86")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkbench_AutoSaveDelayOptionOverridesEnv(t *testing.T) {
	t.Setenv("BENCHBOOK_AUTOSAVE_DELAY", "1h")

	wb, mem := newWorkbench(t, benchbook.WithAutoSaveDelay(20*time.Millisecond))
	run := seededRun(t, wb)

	sess, err := wb.Select(context.Background(), run.ID)
	require.NoError(t, err)

	key := sess.View().Measurements[0].Key
	sess.SetEntryField(key, "412")

	require.Eventually(t, func() bool {
		got, err := mem.GetRun(context.Background(), run.ID)
		return err == nil && strings.Contains(got.InteractionState, "412")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkbench_EndRunThroughFacade(t *testing.T) {
	wb, _ := newWorkbench(t, benchbook.WithConfirmer(acceptAll{}))
	run := seededRun(t, wb)

	ctx := context.Background()
	sess, err := wb.Select(ctx, run.ID)
	require.NoError(t, err)

	require.NoError(t, sess.End(ctx))
	assert.True(t, sess.ReadOnly())

	got, err := wb.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.True(t, got.Locked)

	// A second End on the completed run reports the terminal state.
	require.ErrorIs(t, sess.End(ctx), benchbook.ErrRunEnded)
}

func TestWorkbench_RunsListing(t *testing.T) {
	wb, _ := newWorkbench(t)
	seededRun(t, wb)
	seededRun(t, wb)

	runs, total, err := wb.Runs(context.Background(), "user-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, runs, 2)

	entries, _, err := wb.Entries(context.Background(), 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
