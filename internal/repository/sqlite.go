package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/obafela/doc-pipeline/internal/common"
	"github.com/obafela/doc-pipeline/internal/job"
)

// SQLiteStore implements Store for the single-binary batch mode. UUIDs
// and timestamps are stored as text.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			file_path TEXT NOT NULL,
			format TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS processing_jobs (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			pages_done INTEGER NOT NULL DEFAULT 0,
			pages_total INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS stage_transitions (
			job_id TEXT NOT NULL REFERENCES processing_jobs(id),
			from_stage TEXT NOT NULL DEFAULT '',
			to_stage TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS extracted_content (
			document_id TEXT PRIMARY KEY REFERENCES documents(id),
			job_id TEXT NOT NULL,
			raw_text TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			summary_fallback INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			metadata BLOB,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS failure_log (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			error_message TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			review_status TEXT NOT NULL DEFAULT 'pending',
			review_notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, file_path, format, size_bytes, content_hash, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.Filename, d.FilePath, d.Format, d.SizeBytes, d.ContentHash, d.Status, fmtTime(d.CreatedAt))
	return common.WrapError(err, "create document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var d Document
	var docID, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, file_path, format, size_bytes, content_hash, status, created_at
		FROM documents WHERE id = ?`, id.String()).
		Scan(&docID, &d.Filename, &d.FilePath, &d.Format, &d.SizeBytes, &d.ContentHash, &d.Status, &createdAt)
	if err != nil {
		return nil, common.NewAppError("DOCUMENT_GET", "document not found", common.ErrNotFound)
	}
	d.ID, _ = uuid.Parse(docID)
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func (s *SQLiteStore) FindDocumentByHash(ctx context.Context, hashHex string) (*Document, error) {
	var d Document
	var docID, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, file_path, format, size_bytes, content_hash, status, created_at
		FROM documents WHERE content_hash = ?`, hashHex).
		Scan(&docID, &d.Filename, &d.FilePath, &d.Format, &d.SizeBytes, &d.ContentHash, &d.Status, &createdAt)
	if err != nil {
		return nil, common.NewAppError("DOCUMENT_GET", "document not found", common.ErrNotFound)
	}
	d.ID, _ = uuid.Parse(docID)
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func (s *SQLiteStore) SetDocumentStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE id = ?`, status, id.String())
	return common.WrapError(err, "set document status")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, j *Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, document_id, status, stage, retry_count, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.DocumentID.String(), j.Status, j.Stage, j.RetryCount,
		j.ErrorMessage, fmtTime(j.CreatedAt))
	return common.WrapError(err, "create job")
}

func (s *SQLiteStore) RecordTransition(ctx context.Context, t job.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_transitions (job_id, from_stage, to_stage, at)
		VALUES (?, ?, ?, ?)`,
		t.JobID.String(), string(t.From), string(t.To), fmtTime(t.At))
	return common.WrapError(err, "record transition")
}

func (s *SQLiteStore) SyncJob(ctx context.Context, snap job.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = ?, stage = ?, retry_count = ?, pages_done = ?, pages_total = ?,
		    error_message = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		string(snap.Status), string(snap.Stage), snap.RetryCount, snap.PagesDone,
		snap.PagesTotal, snap.ErrorMessage,
		fmtTimePtr(snap.StartedAt), fmtTimePtr(snap.CompletedAt), snap.ID.String())
	return common.WrapError(err, "sync job")
}

func (s *SQLiteStore) scanJob(scan func(...any) error) (*Job, error) {
	var j Job
	var jobID, docID, createdAt string
	var startedAt, completedAt sql.NullString
	if err := scan(&jobID, &docID, &j.Status, &j.Stage, &j.RetryCount,
		&j.PagesDone, &j.PagesTotal, &j.ErrorMessage, &createdAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	j.ID, _ = uuid.Parse(jobID)
	j.DocumentID, _ = uuid.Parse(docID)
	j.CreatedAt = parseTime(createdAt)
	j.StartedAt = parseTimePtr(startedAt)
	j.CompletedAt = parseTimePtr(completedAt)
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, status, stage, retry_count, pages_done, pages_total,
		       error_message, created_at, started_at, completed_at
		FROM processing_jobs WHERE id = ?`, id.String())
	j, err := s.scanJob(row.Scan)
	if err != nil {
		return nil, common.NewAppError("JOB_GET", "job not found", common.ErrNotFound)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobHistory(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, status, stage, retry_count, pages_done, pages_total,
		       error_message, created_at, started_at, completed_at
		FROM processing_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, common.WrapError(err, "list job history")
	}
	defer func() { _ = rows.Close() }()

	var out []*Job
	for rows.Next() {
		j, err := s.scanJob(rows.Scan)
		if err != nil {
			return nil, common.WrapError(err, "scan job row")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveContent(ctx context.Context, c *Content) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extracted_content (document_id, job_id, raw_text, summary, summary_fallback, confidence, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE
		SET job_id = excluded.job_id, raw_text = excluded.raw_text,
		    summary = excluded.summary, summary_fallback = excluded.summary_fallback,
		    confidence = excluded.confidence, metadata = excluded.metadata`,
		c.DocumentID.String(), c.JobID.String(), c.RawText, c.Summary,
		boolToInt(c.SummaryFallback), c.Confidence, c.Metadata, fmtTime(c.CreatedAt))
	return common.WrapError(err, "save content")
}

func (s *SQLiteStore) GetContent(ctx context.Context, documentID uuid.UUID) (*Content, error) {
	var c Content
	var docID, jobID, createdAt string
	var fallback int
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, job_id, raw_text, summary, summary_fallback, confidence, metadata, created_at
		FROM extracted_content WHERE document_id = ?`, documentID.String()).
		Scan(&docID, &jobID, &c.RawText, &c.Summary, &fallback, &c.Confidence, &c.Metadata, &createdAt)
	if err != nil {
		return nil, common.NewAppError("CONTENT_GET", "content not found", common.ErrNotFound)
	}
	c.DocumentID, _ = uuid.Parse(docID)
	c.JobID, _ = uuid.Parse(jobID)
	c.SummaryFallback = fallback != 0
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (s *SQLiteStore) LogFailure(ctx context.Context, f *Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failure_log (id, job_id, document_id, stage, error_message, attempt_count, review_status, review_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID.String(), f.JobID.String(), f.DocumentID.String(), f.Stage,
		f.ErrorMessage, f.AttemptCount, f.ReviewStatus, f.ReviewNotes, fmtTime(f.CreatedAt))
	return common.WrapError(err, "log failure")
}

func (s *SQLiteStore) ListFailures(ctx context.Context, reviewStatus string, limit int) ([]*Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, job_id, document_id, stage, error_message, attempt_count, review_status, review_notes, created_at
		FROM failure_log`
	args := []any{}
	if reviewStatus != "" {
		query += ` WHERE review_status = ?`
		args = append(args, reviewStatus)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.WrapError(err, "list failures")
	}
	defer func() { _ = rows.Close() }()

	var out []*Failure
	for rows.Next() {
		var f Failure
		var id, jobID, docID, createdAt string
		if err := rows.Scan(&id, &jobID, &docID, &f.Stage, &f.ErrorMessage,
			&f.AttemptCount, &f.ReviewStatus, &f.ReviewNotes, &createdAt); err != nil {
			return nil, common.WrapError(err, "scan failure row")
		}
		f.ID, _ = uuid.Parse(id)
		f.JobID, _ = uuid.Parse(jobID)
		f.DocumentID, _ = uuid.Parse(docID)
		f.CreatedAt = parseTime(createdAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkReviewed(ctx context.Context, id uuid.UUID, status, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE failure_log SET review_status = ?, review_notes = ? WHERE id = ?`,
		status, notes, id.String())
	if err != nil {
		return common.WrapError(err, "mark reviewed")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("FAILURE_REVIEW", "failure record not found", common.ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
