package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obafela/doc-pipeline/internal/common"
	"github.com/obafela/doc-pipeline/internal/job"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDocument(t *testing.T, s *SQLiteStore) *Document {
	t.Helper()
	d := &Document{
		ID:          uuid.New(),
		Filename:    "invoice.pdf",
		FilePath:    "/data/in/invoice.pdf",
		Format:      "pdf",
		SizeBytes:   1234,
		ContentHash: "abc123",
		Status:      "pending",
	}
	require.NoError(t, s.CreateDocument(context.Background(), d))
	return d
}

func TestSQLiteDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s)

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "invoice.pdf", got.Filename)
	assert.Equal(t, "abc123", got.ContentHash)

	byHash, err := s.FindDocumentByHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, d.ID, byHash.ID)

	_, err = s.FindDocumentByHash(ctx, "nope")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	require.NoError(t, s.SetDocumentStatus(ctx, d.ID, "completed"))
	got, err = s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
}

func TestSQLiteJobSyncAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s)

	j := &Job{ID: uuid.New(), DocumentID: d.ID, Status: "pending", Stage: "preprocessing"}
	require.NoError(t, s.CreateJob(ctx, j))

	started := time.Now().UTC().Truncate(time.Second)
	snap := job.Snapshot{
		ID:         j.ID,
		Status:     job.StatusProcessing,
		Stage:      job.StageExtractingText,
		RetryCount: 2,
		PagesDone:  1,
		PagesTotal: 4,
		StartedAt:  &started,
	}
	require.NoError(t, s.SyncJob(ctx, snap))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing", got.Status)
	assert.Equal(t, "extracting_text", got.Stage)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, 1, got.PagesDone)
	assert.Equal(t, 4, got.PagesTotal)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.CompletedAt)

	history, err := s.ListJobHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, j.ID, history[0].ID)
}

func TestSQLiteTransitionsRecorded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s)
	j := &Job{ID: uuid.New(), DocumentID: d.ID, Status: "pending", Stage: "preprocessing"}
	require.NoError(t, s.CreateJob(ctx, j))

	now := time.Now().UTC()
	require.NoError(t, s.RecordTransition(ctx, job.Transition{
		JobID: j.ID, At: now, From: "", To: job.StagePreprocessing,
	}))
	require.NoError(t, s.RecordTransition(ctx, job.Transition{
		JobID: j.ID, At: now, From: job.StagePreprocessing, To: job.StageExtractingText,
	}))
}

func TestSQLiteContentUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s)

	first := &Content{
		DocumentID: d.ID,
		JobID:      uuid.New(),
		RawText:    "first run",
		Summary:    "short",
		Confidence: 0.42,
		Metadata:   []byte(`{"page_count":1}`),
	}
	require.NoError(t, s.SaveContent(ctx, first))

	second := &Content{
		DocumentID:      d.ID,
		JobID:           uuid.New(),
		RawText:         "second run",
		Summary:         "better",
		SummaryFallback: true,
		Confidence:      0.9,
		Metadata:        []byte(`{"page_count":2}`),
	}
	require.NoError(t, s.SaveContent(ctx, second))

	got, err := s.GetContent(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "second run", got.RawText)
	assert.Equal(t, second.JobID, got.JobID)
	assert.True(t, got.SummaryFallback)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestSQLiteFailureReviewFlow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s)

	f := &Failure{
		ID:           uuid.New(),
		JobID:        uuid.New(),
		DocumentID:   d.ID,
		Stage:        "extracting_text",
		ErrorMessage: "retries exhausted",
		AttemptCount: 3,
		ReviewStatus: "pending",
	}
	require.NoError(t, s.LogFailure(ctx, f))

	pending, err := s.ListFailures(ctx, "pending", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, f.ID, pending[0].ID)
	assert.Equal(t, 3, pending[0].AttemptCount)

	require.NoError(t, s.MarkReviewed(ctx, f.ID, "reviewed", "known outage"))

	pending, err = s.ListFailures(ctx, "pending", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	reviewed, err := s.ListFailures(ctx, "reviewed", 10)
	require.NoError(t, err)
	require.Len(t, reviewed, 1)
	assert.Equal(t, "known outage", reviewed[0].ReviewNotes)

	all, err := s.ListFailures(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
