package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/obafela/doc-pipeline/internal/job"
)

// Document is one uploaded/ingested file.
type Document struct {
	ID          uuid.UUID
	Filename    string
	FilePath    string
	Format      string
	SizeBytes   int64
	ContentHash string
	Status      string
	CreatedAt   time.Time
}

// Job is the persisted mirror of a tracker's observable state.
type Job struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	Status       string
	Stage        string
	RetryCount   int
	PagesDone    int
	PagesTotal   int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Content is the delivered extraction + summary for a document.
type Content struct {
	DocumentID      uuid.UUID
	JobID           uuid.UUID
	RawText         string
	Summary         string
	SummaryFallback bool
	Confidence      float64
	Metadata        []byte
	CreatedAt       time.Time
}

// Failure is one exhausted-retry record awaiting human review.
type Failure struct {
	ID           uuid.UUID
	JobID        uuid.UUID
	DocumentID   uuid.UUID
	Stage        string
	ErrorMessage string
	AttemptCount int
	ReviewStatus string
	ReviewNotes  string
	CreatedAt    time.Time
}

// DocumentRepository persists document metadata.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	FindDocumentByHash(ctx context.Context, hashHex string) (*Document, error)
	SetDocumentStatus(ctx context.Context, id uuid.UUID, status string) error
}

// JobRepository persists job rows and their stage transition history.
// SyncJob is called on every tracker transition, so the stored row never
// lags the engine.
type JobRepository interface {
	CreateJob(ctx context.Context, j *Job) error
	RecordTransition(ctx context.Context, t job.Transition) error
	SyncJob(ctx context.Context, s job.Snapshot) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobHistory(ctx context.Context, limit int) ([]*Job, error)
}

// ContentRepository persists delivered results.
type ContentRepository interface {
	SaveContent(ctx context.Context, c *Content) error
	GetContent(ctx context.Context, documentID uuid.UUID) (*Content, error)
}

// FailureRepository persists failure records. Review-status changes
// happen here, never inside the processing engine.
type FailureRepository interface {
	LogFailure(ctx context.Context, f *Failure) error
	ListFailures(ctx context.Context, reviewStatus string, limit int) ([]*Failure, error)
	MarkReviewed(ctx context.Context, id uuid.UUID, status, notes string) error
}

// Store bundles the four repositories a deployment backs with one
// database.
type Store interface {
	DocumentRepository
	JobRepository
	ContentRepository
	FailureRepository
}
