package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obafela/doc-pipeline/internal/common"
	"github.com/obafela/doc-pipeline/internal/job"
)

// PostgresStore implements Store over a pgx pool. Schema lives in
// db/schema.sql; migrations are run out of band.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, filename, file_path, format, size_bytes, content_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Filename, d.FilePath, d.Format, d.SizeBytes, d.ContentHash, d.Status, d.CreatedAt)
	if err != nil {
		s.logger.Error("document create failed", "document_id", d.ID, "error", err)
		return common.WrapError(err, "create document")
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, file_path, format, size_bytes, content_hash, status, created_at
		FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.Filename, &d.FilePath, &d.Format, &d.SizeBytes, &d.ContentHash, &d.Status, &d.CreatedAt)
	if err != nil {
		return nil, common.NewAppError("DOCUMENT_GET", "document not found", common.ErrNotFound)
	}
	return &d, nil
}

func (s *PostgresStore) FindDocumentByHash(ctx context.Context, hashHex string) (*Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, file_path, format, size_bytes, content_hash, status, created_at
		FROM documents WHERE content_hash = $1`, hashHex).
		Scan(&d.ID, &d.Filename, &d.FilePath, &d.Format, &d.SizeBytes, &d.ContentHash, &d.Status, &d.CreatedAt)
	if err != nil {
		return nil, common.NewAppError("DOCUMENT_GET", "document not found", common.ErrNotFound)
	}
	return &d, nil
}

func (s *PostgresStore) SetDocumentStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $2 WHERE id = $1`, id, status)
	return common.WrapError(err, "set document status")
}

func (s *PostgresStore) CreateJob(ctx context.Context, j *Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_jobs (id, document_id, status, stage, retry_count, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID, j.DocumentID, j.Status, j.Stage, j.RetryCount, j.ErrorMessage, j.CreatedAt)
	if err != nil {
		s.logger.Error("job create failed", "job_id", j.ID, "error", err)
		return common.WrapError(err, "create job")
	}
	s.logger.Info("job created", "job_id", j.ID, "document_id", j.DocumentID)
	return nil
}

func (s *PostgresStore) RecordTransition(ctx context.Context, t job.Transition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stage_transitions (job_id, from_stage, to_stage, at)
		VALUES ($1, $2, $3, $4)`,
		t.JobID, string(t.From), string(t.To), t.At)
	if err != nil {
		s.logger.Error("transition record failed", "job_id", t.JobID, "to", t.To, "error", err)
		return common.WrapError(err, "record transition")
	}
	return nil
}

func (s *PostgresStore) SyncJob(ctx context.Context, snap job.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = $2, stage = $3, retry_count = $4, pages_done = $5,
		    pages_total = $6, error_message = $7, started_at = $8, completed_at = $9
		WHERE id = $1`,
		snap.ID, string(snap.Status), string(snap.Stage), snap.RetryCount,
		snap.PagesDone, snap.PagesTotal, snap.ErrorMessage, snap.StartedAt, snap.CompletedAt)
	if err != nil {
		s.logger.Error("job sync failed", "job_id", snap.ID, "error", err)
		return common.WrapError(err, "sync job")
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var j Job
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_id, status, stage, retry_count, pages_done, pages_total,
		       error_message, created_at, started_at, completed_at
		FROM processing_jobs WHERE id = $1`, id).
		Scan(&j.ID, &j.DocumentID, &j.Status, &j.Stage, &j.RetryCount, &j.PagesDone,
			&j.PagesTotal, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, common.NewAppError("JOB_GET", "job not found", common.ErrNotFound)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobHistory(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, status, stage, retry_count, pages_done, pages_total,
		       error_message, created_at, started_at, completed_at
		FROM processing_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, common.WrapError(err, "list job history")
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.DocumentID, &j.Status, &j.Stage, &j.RetryCount,
			&j.PagesDone, &j.PagesTotal, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, common.WrapError(err, "scan job row")
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveContent(ctx context.Context, c *Content) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO extracted_content (document_id, job_id, raw_text, summary, summary_fallback, confidence, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id) DO UPDATE
		SET job_id = EXCLUDED.job_id, raw_text = EXCLUDED.raw_text,
		    summary = EXCLUDED.summary, summary_fallback = EXCLUDED.summary_fallback,
		    confidence = EXCLUDED.confidence, metadata = EXCLUDED.metadata`,
		c.DocumentID, c.JobID, c.RawText, c.Summary, c.SummaryFallback,
		c.Confidence, c.Metadata, c.CreatedAt)
	if err != nil {
		s.logger.Error("content save failed", "document_id", c.DocumentID, "error", err)
		return common.WrapError(err, "save content")
	}
	return nil
}

func (s *PostgresStore) GetContent(ctx context.Context, documentID uuid.UUID) (*Content, error) {
	var c Content
	err := s.pool.QueryRow(ctx, `
		SELECT document_id, job_id, raw_text, summary, summary_fallback, confidence, metadata, created_at
		FROM extracted_content WHERE document_id = $1`, documentID).
		Scan(&c.DocumentID, &c.JobID, &c.RawText, &c.Summary, &c.SummaryFallback,
			&c.Confidence, &c.Metadata, &c.CreatedAt)
	if err != nil {
		return nil, common.NewAppError("CONTENT_GET", "content not found", common.ErrNotFound)
	}
	return &c, nil
}

func (s *PostgresStore) LogFailure(ctx context.Context, f *Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failure_log (id, job_id, document_id, stage, error_message, attempt_count, review_status, review_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.JobID, f.DocumentID, f.Stage, f.ErrorMessage, f.AttemptCount,
		f.ReviewStatus, f.ReviewNotes, f.CreatedAt)
	if err != nil {
		s.logger.Error("failure log failed", "job_id", f.JobID, "error", err)
		return common.WrapError(err, "log failure")
	}
	return nil
}

func (s *PostgresStore) ListFailures(ctx context.Context, reviewStatus string, limit int) ([]*Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, job_id, document_id, stage, error_message, attempt_count, review_status, review_notes, created_at
		FROM failure_log`
	args := []any{}
	if reviewStatus != "" {
		query += ` WHERE review_status = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, reviewStatus, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, common.WrapError(err, "list failures")
	}
	defer rows.Close()

	var out []*Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.ID, &f.JobID, &f.DocumentID, &f.Stage, &f.ErrorMessage,
			&f.AttemptCount, &f.ReviewStatus, &f.ReviewNotes, &f.CreatedAt); err != nil {
			return nil, common.WrapError(err, "scan failure row")
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkReviewed(ctx context.Context, id uuid.UUID, status, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE failure_log SET review_status = $2, review_notes = $3 WHERE id = $1`,
		id, status, notes)
	if err != nil {
		return common.WrapError(err, "mark reviewed")
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError("FAILURE_REVIEW", "failure record not found", common.ErrNotFound)
	}
	return nil
}
