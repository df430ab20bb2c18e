package job

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obafela/doc-pipeline/internal/common"
)

func advanceAll(t *testing.T, tr *Tracker, stages ...Stage) {
	t.Helper()
	for _, s := range stages {
		require.NoError(t, tr.Advance(s))
	}
}

func TestTrackerHappyPath(t *testing.T) {
	var recorded []Transition
	tr := NewTracker(uuid.New(), func(tran Transition) error {
		recorded = append(recorded, tran)
		return nil
	})

	snap := tr.Snapshot()
	assert.Equal(t, StatusPending, snap.Status)
	assert.Nil(t, snap.StartedAt)

	advanceAll(t, tr,
		StagePreprocessing,
		StageExtractingText,
		StageSummarizing,
		StageSavingResults,
		StageCompleted,
	)

	snap = tr.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, StageCompleted, snap.Stage)
	require.NotNil(t, snap.StartedAt)
	require.NotNil(t, snap.CompletedAt)

	require.Len(t, recorded, 5)
	assert.Equal(t, Stage(""), recorded[0].From)
	assert.Equal(t, StagePreprocessing, recorded[0].To)
	assert.Equal(t, StageSavingResults, recorded[4].From)
	assert.Equal(t, StageCompleted, recorded[4].To)
}

func TestTrackerRejectsSkippedStage(t *testing.T) {
	tr := NewTracker(uuid.New(), nil)
	require.NoError(t, tr.Advance(StagePreprocessing))

	err := tr.Advance(StageSummarizing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidTransition))
	assert.Equal(t, StagePreprocessing, tr.Stage())
}

func TestTrackerFirstTransitionMustBePreprocessing(t *testing.T) {
	tr := NewTracker(uuid.New(), nil)
	err := tr.Advance(StageExtractingText)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidTransition))
}

func TestTrackerTerminalStagesAbsorb(t *testing.T) {
	tr := NewTracker(uuid.New(), nil)
	require.NoError(t, tr.Advance(StagePreprocessing))
	require.NoError(t, tr.Fail("boom"))

	assert.True(t, errors.Is(tr.Advance(StageExtractingText), common.ErrInvalidTransition))
	assert.True(t, errors.Is(tr.Fail("again"), common.ErrInvalidTransition))

	snap := tr.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.ErrorMessage)
	require.NotNil(t, snap.CompletedAt)
}

func TestTrackerCompletedAtOnlyWhenTerminal(t *testing.T) {
	tr := NewTracker(uuid.New(), nil)
	advanceAll(t, tr, StagePreprocessing, StageExtractingText, StageSummarizing)
	assert.Nil(t, tr.Snapshot().CompletedAt)
}

func TestTrackerRetriesResetPerStage(t *testing.T) {
	tr := NewTracker(uuid.New(), nil)
	require.NoError(t, tr.Advance(StagePreprocessing))
	require.NoError(t, tr.Advance(StageExtractingText))

	tr.AddRetries(2)
	assert.Equal(t, 2, tr.Snapshot().RetryCount)

	require.NoError(t, tr.Advance(StageSummarizing))
	assert.Equal(t, 0, tr.Snapshot().RetryCount)
}

func TestTrackerPageCounter(t *testing.T) {
	tr := NewTracker(uuid.New(), nil)
	require.NoError(t, tr.Advance(StagePreprocessing))

	// ignored outside the extraction stage
	tr.PageDone()
	tr.SetPagesTotal(9)
	snap := tr.Snapshot()
	assert.Equal(t, 0, snap.PagesDone)
	assert.Equal(t, 0, snap.PagesTotal)

	require.NoError(t, tr.Advance(StageExtractingText))
	tr.SetPagesTotal(3)
	tr.PageDone()
	tr.PageDone()
	snap = tr.Snapshot()
	assert.Equal(t, 2, snap.PagesDone)
	assert.Equal(t, 3, snap.PagesTotal)
}

func TestTrackerRecorderFailureSurfaces(t *testing.T) {
	boom := errors.New("db down")
	tr := NewTracker(uuid.New(), func(Transition) error { return boom })

	err := tr.Advance(StagePreprocessing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}
