package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obafela/doc-pipeline/internal/job"
	"github.com/obafela/doc-pipeline/internal/repository"
)

type fakeFailures struct {
	rows []*repository.Failure
	err  error
}

func (f *fakeFailures) LogFailure(_ context.Context, row *repository.Failure) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}
func (f *fakeFailures) ListFailures(context.Context, string, int) ([]*repository.Failure, error) {
	return f.rows, nil
}
func (f *fakeFailures) MarkReviewed(context.Context, uuid.UUID, string, string) error { return nil }

func TestReportPersistsRowAndFile(t *testing.T) {
	dir := t.TempDir()
	failures := &fakeFailures{}
	l := NewLogger(failures, dir, nil)

	rec := Record{
		JobID:        uuid.New(),
		DocumentID:   uuid.New(),
		Filename:     "contract.pdf",
		Stage:        job.StageExtractingText,
		ErrorDetail:  "retries exhausted after 3 attempts: service unavailable",
		AttemptCount: 3,
	}
	require.NoError(t, l.Report(context.Background(), rec))

	require.Len(t, failures.rows, 1)
	row := failures.rows[0]
	assert.Equal(t, rec.JobID, row.JobID)
	assert.Equal(t, "extracting_text", row.Stage)
	assert.Equal(t, 3, row.AttemptCount)
	assert.Equal(t, "pending", row.ReviewStatus)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "DOCUMENT PROCESSING FAILURE REPORT")
	assert.Contains(t, text, rec.JobID.String())
	assert.Contains(t, text, "contract.pdf")
	assert.Contains(t, text, "retries exhausted")
}

func TestReportDBErrorSurfaces(t *testing.T) {
	failures := &fakeFailures{err: errors.New("db down")}
	l := NewLogger(failures, t.TempDir(), nil)

	err := l.Report(context.Background(), Record{JobID: uuid.New()})
	require.Error(t, err)
}

func TestReportNoDirSkipsFile(t *testing.T) {
	failures := &fakeFailures{}
	l := NewLogger(failures, "", nil)
	require.NoError(t, l.Report(context.Background(), Record{JobID: uuid.New()}))
	require.Len(t, failures.rows, 1)
}

func TestRenderReportLayout(t *testing.T) {
	f := &repository.Failure{
		ID:           uuid.New(),
		JobID:        uuid.New(),
		DocumentID:   uuid.New(),
		Stage:        "summarizing",
		ErrorMessage: "rate limited",
		AttemptCount: 3,
	}
	out := renderReport(f, "scan.png")
	lines := strings.Split(out, "\n")
	assert.Equal(t, strings.Repeat("=", 80), lines[0])
	assert.Contains(t, out, "Stage:         summarizing")
	assert.Contains(t, out, "Filename:    scan.png")
}
