package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/obafela/doc-pipeline/constants"
	"github.com/obafela/doc-pipeline/internal/extract"
	"github.com/obafela/doc-pipeline/internal/job"
	"github.com/obafela/doc-pipeline/internal/llm"
	"github.com/obafela/doc-pipeline/internal/preprocess"
	"github.com/obafela/doc-pipeline/internal/report"
	"github.com/obafela/doc-pipeline/internal/repository"
	"github.com/obafela/doc-pipeline/internal/retry"
)

// pageBreak joins per-page extraction results into one document text.
const pageBreak = "\n\n--- Page Break ---\n\n"

// fallbackSummaryLimit caps the raw-text prefix used when summarization
// retries are exhausted.
const fallbackSummaryLimit = 500

// Document is the unit of work handed to the processor.
type Document struct {
	ID             uuid.UUID
	Path           string
	Filename       string
	DeclaredFormat constants.Format
	SizeBytes      int64
}

// Outcome reports what a single Process run produced. Extraction and
// Summary are nil when the job failed; Failure is nil when it completed.
type Outcome struct {
	JobID      uuid.UUID
	DocumentID uuid.UUID
	Status     job.Status
	Extraction *extract.Result
	Summary    *extract.Summary
	Failure    *report.Record
}

// Processor drives a document through the full stage sequence. It owns
// no state between jobs beyond the in-flight tracker registry used for
// status reporting.
type Processor struct {
	logger     *slog.Logger
	pre        preprocess.Preprocessor
	extractor  llm.TextExtractor
	summarizer llm.Summarizer
	reporter   report.Reporter
	store      repository.Store
	policy     retry.Policy

	mu      sync.Mutex
	running map[uuid.UUID]*job.Tracker
}

// NewProcessor wires a processor from its collaborators. reporter may be
// nil when failures need no dedicated reporting channel.
func NewProcessor(
	logger *slog.Logger,
	pre preprocess.Preprocessor,
	extractor llm.TextExtractor,
	summarizer llm.Summarizer,
	reporter report.Reporter,
	store repository.Store,
	policy retry.Policy,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:     logger,
		pre:        pre,
		extractor:  extractor,
		summarizer: summarizer,
		reporter:   reporter,
		store:      store,
		policy:     policy.Normalized(),
		running:    make(map[uuid.UUID]*job.Tracker),
	}
}

// Status returns a snapshot of an in-flight job, or false once the job
// has finished and left the registry. Finished jobs are served from the
// job repository instead.
func (p *Processor) Status(jobID uuid.UUID) (job.Snapshot, bool) {
	p.mu.Lock()
	t, ok := p.running[jobID]
	p.mu.Unlock()
	if !ok {
		return job.Snapshot{}, false
	}
	return t.Snapshot(), true
}

// Process runs one document through preprocessing, extraction,
// summarization, and persistence. Preprocessing failures are fatal
// without retry. Extraction pages share a single per-stage retry budget;
// exhausting it fails the job and discards partial pages. Summarization
// exhaustion degrades to a truncated-raw-text fallback instead of
// failing. The returned error is the cause recorded on a failed job, nil
// on completion.
func (p *Processor) Process(ctx context.Context, doc Document) (Outcome, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	jobID := uuid.New()

	log := p.logger.With("job_id", jobID, "document_id", doc.ID)
	log.Info("pipeline.job.start", "filename", doc.Filename)

	row := &repository.Job{
		ID:         jobID,
		DocumentID: doc.ID,
		Status:     string(job.StatusPending),
		Stage:      string(job.StagePreprocessing),
	}
	if err := p.store.CreateJob(ctx, row); err != nil {
		return Outcome{JobID: jobID, DocumentID: doc.ID}, err
	}

	var tracker *job.Tracker
	tracker = job.NewTracker(jobID, func(tr job.Transition) error {
		if err := p.store.RecordTransition(ctx, tr); err != nil {
			return err
		}
		return p.store.SyncJob(ctx, tracker.Snapshot())
	})

	p.mu.Lock()
	p.running[jobID] = tracker
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, jobID)
		p.mu.Unlock()
	}()

	out := Outcome{JobID: jobID, DocumentID: doc.ID}

	// Preprocessing. Any failure here is fatal, no retry. A transition
	// whose recording fails is fatal too: the terminal outcome is still
	// attempted so the job never lingers as processing.
	if err := tracker.Advance(job.StagePreprocessing); err != nil {
		return p.fail(ctx, tracker, doc, out, job.StagePreprocessing, 1, err)
	}
	p.setDocumentStatus(ctx, doc.ID, string(job.StatusProcessing))

	format, pages, err := p.pre.Preprocess(ctx, doc.Path, doc.DeclaredFormat)
	if err != nil {
		return p.fail(ctx, tracker, doc, out, job.StagePreprocessing, 1, err)
	}
	log.Info("pipeline.preprocess.done", "format", format, "pages", len(pages))

	// Extraction.
	if err := tracker.Advance(job.StageExtractingText); err != nil {
		return p.fail(ctx, tracker, doc, out, job.StageExtractingText, 1, err)
	}
	strategy, err := extract.Select(format, doc.SizeBytes)
	if err != nil {
		return p.fail(ctx, tracker, doc, out, job.StageExtractingText, 1, err)
	}
	tracker.SetPagesTotal(len(pages))

	rawText, attempts, err := p.extractPages(ctx, tracker, strategy, pages)
	if err != nil {
		log.Error("pipeline.extract.failed", "strategy", strategy, "attempts", attempts, "error", err)
		return p.fail(ctx, tracker, doc, out, job.StageExtractingText, attempts, err)
	}

	confidence := extract.Score(rawText)
	result := &extract.Result{
		RawText:         rawText,
		ConfidenceScore: confidence,
		Metadata: map[string]any{
			"method":      string(strategy),
			"format":      string(format),
			"page_count":  len(pages),
			"text_length": len(rawText),
			"word_count":  len(strings.Fields(rawText)),
		},
	}
	log.Info("pipeline.extract.done", "strategy", strategy, "confidence", confidence, "chars", len(rawText))

	// Summarization. Exhausted retries degrade to a truncation fallback.
	if err := tracker.Advance(job.StageSummarizing); err != nil {
		return p.fail(ctx, tracker, doc, out, job.StageSummarizing, 1, err)
	}
	summary := p.summarize(ctx, tracker, log, rawText)

	// Persistence.
	if err := tracker.Advance(job.StageSavingResults); err != nil {
		return p.fail(ctx, tracker, doc, out, job.StageSavingResults, 1, err)
	}
	meta, err := json.Marshal(result.Metadata)
	if err != nil {
		return p.fail(ctx, tracker, doc, out, job.StageSavingResults, 1, err)
	}
	content := &repository.Content{
		DocumentID:      doc.ID,
		JobID:           jobID,
		RawText:         result.RawText,
		Summary:         summary.SummaryText,
		SummaryFallback: summary.Fallback,
		Confidence:      result.ConfidenceScore,
		Metadata:        meta,
	}
	if err := p.store.SaveContent(ctx, content); err != nil {
		return p.fail(ctx, tracker, doc, out, job.StageSavingResults, 1, err)
	}

	if err := tracker.Advance(job.StageCompleted); err != nil {
		return p.fail(ctx, tracker, doc, out, job.StageSavingResults, 1, err)
	}
	p.setDocumentStatus(ctx, doc.ID, string(job.StatusCompleted))

	out.Status = job.StatusCompleted
	out.Extraction = result
	out.Summary = summary
	log.Info("pipeline.job.done", "fallback_summary", summary.Fallback)
	return out, nil
}

// extractPages runs the extraction strategy over every page. All pages
// draw on one retry budget: failed attempts on earlier pages shrink what
// later pages may spend. Returns the joined text and the total attempts
// made against external extraction.
func (p *Processor) extractPages(ctx context.Context, tracker *job.Tracker, strategy extract.Strategy, pages [][]byte) (string, int, error) {
	parts := make([]string, 0, len(pages))
	budget := p.policy.MaxAttempts
	total := 0

	for _, page := range pages {
		if strategy == extract.StrategyDirectText {
			parts = append(parts, string(page))
			tracker.PageDone()
			continue
		}

		pol := p.policy
		pol.MaxAttempts = budget
		text, attempts, err := retry.Do(ctx, pol, func(ctx context.Context) (string, error) {
			return p.extractor.ExtractText(ctx, strategy, page)
		})
		total += attempts
		failed := attempts
		if err == nil {
			failed = attempts - 1
		}
		tracker.AddRetries(failed)
		budget -= failed
		if err != nil {
			return "", total, err
		}
		parts = append(parts, text)
		tracker.PageDone()
	}
	return strings.Join(parts, pageBreak), total, nil
}

func (p *Processor) summarize(ctx context.Context, tracker *job.Tracker, log *slog.Logger, rawText string) *extract.Summary {
	text, attempts, err := retry.Do(ctx, p.policy, func(ctx context.Context) (string, error) {
		return p.summarizer.Summarize(ctx, rawText)
	})
	failed := attempts
	if err == nil {
		failed = attempts - 1
	}
	tracker.AddRetries(failed)
	if err != nil {
		log.Warn("pipeline.summarize.fallback", "attempts", attempts, "error", err)
		return &extract.Summary{SummaryText: truncateRunes(rawText, fallbackSummaryLimit), Fallback: true}
	}
	return &extract.Summary{SummaryText: text}
}

func (p *Processor) fail(ctx context.Context, tracker *job.Tracker, doc Document, out Outcome, stage job.Stage, attempts int, cause error) (Outcome, error) {
	if err := tracker.Fail(cause.Error()); err != nil {
		p.logger.Error("pipeline.fail.transition", "job_id", out.JobID, "error", err)
	}
	p.setDocumentStatus(ctx, doc.ID, string(job.StatusFailed))

	rec := report.Record{
		JobID:        out.JobID,
		DocumentID:   doc.ID,
		Filename:     doc.Filename,
		Stage:        stage,
		ErrorDetail:  cause.Error(),
		AttemptCount: attempts,
	}
	if p.reporter != nil {
		// A broken reporting channel never changes the job outcome.
		if err := p.reporter.Report(ctx, rec); err != nil {
			p.logger.Error("pipeline.report.failed", "job_id", out.JobID, "error", err)
		}
	}

	out.Status = job.StatusFailed
	out.Failure = &rec
	return out, cause
}

func (p *Processor) setDocumentStatus(ctx context.Context, docID uuid.UUID, status string) {
	if err := p.store.SetDocumentStatus(ctx, docID, status); err != nil {
		p.logger.Error("pipeline.document.status", "document_id", docID, "status", status, "error", err)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
