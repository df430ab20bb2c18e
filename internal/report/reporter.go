package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obafela/doc-pipeline/constants"
	"github.com/obafela/doc-pipeline/internal/job"
	"github.com/obafela/doc-pipeline/internal/repository"
)

// Record is what the orchestrator hands over when a job's retry budget
// is exhausted. Exactly one per failed job; the engine never touches it
// again after creation.
type Record struct {
	JobID        uuid.UUID
	DocumentID   uuid.UUID
	Filename     string
	Stage        job.Stage
	ErrorDetail  string
	AttemptCount int
}

// Reporter receives failure records for human review. Implementations
// must swallow their own transient problems: a broken reporter must
// never mask the original failure.
type Reporter interface {
	Report(ctx context.Context, rec Record) error
}

// Logger persists failure records and drops a plain-text report file
// next to them for humans without database access.
type Logger struct {
	failures repository.FailureRepository
	dir      string
	logger   *slog.Logger
}

func NewLogger(failures repository.FailureRepository, reportsDir string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{failures: failures, dir: reportsDir, logger: logger}
}

func (l *Logger) Report(ctx context.Context, rec Record) error {
	row := &repository.Failure{
		ID:           uuid.New(),
		JobID:        rec.JobID,
		DocumentID:   rec.DocumentID,
		Stage:        string(rec.Stage),
		ErrorMessage: rec.ErrorDetail,
		AttemptCount: rec.AttemptCount,
		ReviewStatus: string(constants.ReviewPending),
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.failures.LogFailure(ctx, row); err != nil {
		return err
	}

	if l.dir != "" {
		if err := l.writeReportFile(row, rec.Filename); err != nil {
			// the DB row is the source of truth; a missing text file is
			// only worth a warning
			l.logger.Warn("failure report file not written",
				"job_id", rec.JobID, "error", err)
		}
	}

	l.logger.Info("failure recorded for review",
		"job_id", rec.JobID,
		"document_id", rec.DocumentID,
		"stage", rec.Stage,
		"attempts", rec.AttemptCount,
	)
	return nil
}

func (l *Logger) writeReportFile(f *repository.Failure, filename string) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("failure_%s_%s.txt", f.CreatedAt.Format("20060102T150405"), f.JobID)
	return os.WriteFile(filepath.Join(l.dir, name), []byte(renderReport(f, filename)), 0o644)
}

func renderReport(f *repository.Failure, filename string) string {
	sep := strings.Repeat("=", 80)
	sub := strings.Repeat("-", 80)
	lines := []string{
		sep,
		"DOCUMENT PROCESSING FAILURE REPORT",
		sep,
		"",
		fmt.Sprintf("Failure ID:  %s", f.ID),
		fmt.Sprintf("Job ID:      %s", f.JobID),
		fmt.Sprintf("Document ID: %s", f.DocumentID),
		fmt.Sprintf("Filename:    %s", filename),
		fmt.Sprintf("Timestamp:   %s", f.CreatedAt.Format(time.RFC3339)),
		fmt.Sprintf("Attempts:    %d", f.AttemptCount),
		"",
		"ERROR DETAILS",
		sub,
		fmt.Sprintf("Stage:         %s", f.Stage),
		fmt.Sprintf("Error Message: %s", f.ErrorMessage),
		"",
		sep,
		"",
	}
	return strings.Join(lines, "\n")
}
