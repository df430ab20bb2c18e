package job

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a named phase of processing a single job passes through in
// fixed order. Failed is an absorbing state reachable from any
// non-terminal stage.
type Stage string

const (
	StagePreprocessing  Stage = "preprocessing"
	StageExtractingText Stage = "extracting_text"
	StageSummarizing    Stage = "summarizing"
	StageSavingResults  Stage = "saving_results"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

// stageOrder gives the fixed forward order; Failed is not part of it.
var stageOrder = map[Stage]int{
	StagePreprocessing:  0,
	StageExtractingText: 1,
	StageSummarizing:    2,
	StageSavingResults:  3,
	StageCompleted:      4,
}

// IsTerminal reports whether no further transitions are accepted from s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Status is the coarse job state derived from the stage plus the
// terminal outcome.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Transition is the record emitted for every stage change. From is empty
// for the initial transition out of pending.
type Transition struct {
	JobID uuid.UUID
	At    time.Time
	From  Stage
	To    Stage
}

// Recorder persists a transition. The tracker invokes it synchronously
// on every accepted transition and returns its error to the caller, so
// a transition is committed before the orchestrator proceeds to the
// next stage's work.
type Recorder func(t Transition) error

// Snapshot is a read-only view of a job's progress, safe to hand to
// status reporting while the job is still running.
type Snapshot struct {
	ID           uuid.UUID
	Status       Status
	Stage        Stage
	RetryCount   int
	PagesDone    int
	PagesTotal   int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
