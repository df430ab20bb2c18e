package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obafela/doc-pipeline/internal/common"
)

// Tracker is the per-job stage state machine. It performs no I/O itself;
// transitions are handed to the Recorder passed at construction, and a
// transition's error is returned to the caller so the orchestrator never
// runs ahead of what an external observer has committed.
// All methods are safe for concurrent use, so status reporting can read
// a snapshot while the owning goroutine advances the job.
type Tracker struct {
	mu sync.Mutex

	id       uuid.UUID
	stage    Stage
	started  bool
	retries  int
	pagesDo  int
	pagesTot int
	errMsg   string

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	record Recorder
	now    func() time.Time
}

// NewTracker creates a tracker positioned before Preprocessing. The
// recorder may be nil when no external observer needs transitions.
func NewTracker(id uuid.UUID, record Recorder) *Tracker {
	if record == nil {
		record = func(Transition) error { return nil }
	}
	return &Tracker{
		id:        id,
		stage:     StagePreprocessing,
		createdAt: time.Now().UTC(),
		record:    record,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Advance moves the job to next. The first call must be to
// StagePreprocessing and marks the job started; every later call must
// name the immediate successor of the current stage. Terminal stages
// accept nothing. Entering ExtractingText resets the page counter, and
// every accepted transition resets the retry count for the new stage's
// retry cycle.
func (t *Tracker) Advance(next Stage) error {
	t.mu.Lock()

	if t.stage.IsTerminal() {
		cur := t.stage
		t.mu.Unlock()
		return common.NewAppError("STAGE_TERMINAL",
			fmt.Sprintf("job is %s, cannot advance to %s", cur, next),
			common.ErrInvalidTransition)
	}

	now := t.now()
	var from Stage
	if !t.started {
		if next != StagePreprocessing {
			t.mu.Unlock()
			return common.NewAppError("STAGE_ORDER",
				fmt.Sprintf("first transition must be %s, got %s", StagePreprocessing, next),
				common.ErrInvalidTransition)
		}
		t.started = true
		t.startedAt = now
	} else {
		cur, ok := stageOrder[t.stage]
		want, okNext := stageOrder[next]
		if !ok || !okNext || want != cur+1 {
			from := t.stage
			t.mu.Unlock()
			return common.NewAppError("STAGE_ORDER",
				fmt.Sprintf("cannot advance from %s to %s", from, next),
				common.ErrInvalidTransition)
		}
		from = t.stage
	}

	t.stage = next
	t.retries = 0
	if next == StageExtractingText {
		t.pagesDo, t.pagesTot = 0, 0
	}
	if next == StageCompleted {
		t.completedAt = now
	}
	t.mu.Unlock()

	// Recorder runs outside the lock: it may read a snapshot of this
	// tracker while persisting the transition.
	if err := t.record(Transition{JobID: t.id, At: now, From: from, To: next}); err != nil {
		return common.WrapError(err, "record transition")
	}
	return nil
}

// Fail moves the job to the absorbing Failed state with the given reason.
func (t *Tracker) Fail(reason string) error {
	t.mu.Lock()

	if t.stage.IsTerminal() {
		cur := t.stage
		t.mu.Unlock()
		return common.NewAppError("STAGE_TERMINAL",
			fmt.Sprintf("job is %s, cannot fail", cur),
			common.ErrInvalidTransition)
	}

	now := t.now()
	from := t.stage
	if !t.started {
		t.started = true
		t.startedAt = now
		from = ""
	}
	t.stage = StageFailed
	t.errMsg = reason
	t.completedAt = now
	t.mu.Unlock()

	if err := t.record(Transition{JobID: t.id, At: now, From: from, To: StageFailed}); err != nil {
		return common.WrapError(err, "record transition")
	}
	return nil
}

// SetPagesTotal announces the page count for the extraction stage.
func (t *Tracker) SetPagesTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage == StageExtractingText && n >= 0 {
		t.pagesTot = n
	}
}

// PageDone bumps the extraction page counter. The counter is monotonic
// within the stage; calls outside ExtractingText are ignored.
func (t *Tracker) PageDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage == StageExtractingText {
		t.pagesDo++
	}
}

// AddRetries accumulates failed attempts against the current stage's
// retry cycle.
func (t *Tracker) AddRetries(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > 0 {
		t.retries += n
	}
}

// Stage returns the current stage.
func (t *Tracker) Stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Snapshot returns a point-in-time copy of the job's observable state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ID:           t.id,
		Status:       t.statusLocked(),
		Stage:        t.stage,
		RetryCount:   t.retries,
		PagesDone:    t.pagesDo,
		PagesTotal:   t.pagesTot,
		ErrorMessage: t.errMsg,
		CreatedAt:    t.createdAt,
	}
	if !t.startedAt.IsZero() {
		at := t.startedAt
		s.StartedAt = &at
	}
	if !t.completedAt.IsZero() {
		at := t.completedAt
		s.CompletedAt = &at
	}
	return s
}

func (t *Tracker) statusLocked() Status {
	switch {
	case t.stage == StageFailed:
		return StatusFailed
	case t.stage == StageCompleted:
		return StatusCompleted
	case !t.started:
		return StatusPending
	default:
		return StatusProcessing
	}
}
