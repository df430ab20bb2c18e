package pipeline

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
)

// Queue fans documents out to a fixed pool of workers, each job bounded
// by a per-job timeout. A document already queued or in flight is not
// accepted a second time.
type Queue struct {
	proc    *Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Document
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	closed   bool
	sending  sync.WaitGroup
	inflight map[uuid.UUID]struct{}
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Document, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc *Processor, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:     proc,
		logger:   logger,
		workers:  4,
		timeout:  5 * time.Minute,
		ch:       make(chan Document, 256),
		inflight: make(map[uuid.UUID]struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for doc := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					out, err := q.proc.Process(ctx, doc)
					cancel()
					q.release(doc.ID)

					if err != nil {
						q.logger.Error("processing failed",
							"worker_id", workerID, "document_id", doc.ID, "job_id", out.JobID, "error", err)
					} else {
						q.logger.Info("processed document",
							"worker_id", workerID, "document_id", doc.ID, "job_id", out.JobID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue hands a document to the pool, blocking for queue space when
// full. A document whose previous run is still queued or processing is
// skipped; reprocessing a finished document is the caller's decision.
func (q *Queue) Enqueue(_ context.Context, doc Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", doc.ID)
		return nil
	}
	if _, dup := q.inflight[doc.ID]; dup {
		q.mu.Unlock()
		q.logger.Info("document already in flight, skipping", "document_id", doc.ID)
		return nil
	}
	q.inflight[doc.ID] = struct{}{}
	// Registered under the lock so Shutdown cannot close the channel
	// between the closed check and the send below.
	q.sending.Add(1)
	q.mu.Unlock()
	defer q.sending.Done()

	select {
	case q.ch <- doc:
		q.logger.Info("queued document for processing", "document_id", doc.ID, "filename", doc.Filename)
	default:
		q.logger.Warn("queue full, applying backpressure", "document_id", doc.ID)
		q.ch <- doc
	}
	return nil
}

func (q *Queue) release(docID uuid.UUID) {
	q.mu.Lock()
	delete(q.inflight, docID)
	q.mu.Unlock()
}

// Shutdown stops intake and waits for queued work to drain, or for ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// Workers keep draining while in-progress enqueues complete.
	q.sending.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
