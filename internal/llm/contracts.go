package llm

import (
	"context"

	"github.com/obafela/doc-pipeline/internal/extract"
)

// TextExtractor is the external extraction service the pipeline depends
// on. One call per page; the returned text carries no confidence, that
// is always computed locally. Implementations must be safely retryable.
type TextExtractor interface {
	ExtractText(ctx context.Context, strategy extract.Strategy, page []byte) (string, error)
}

// SummaryPayload is the structured shape we require from the
// summarization model.
type SummaryPayload struct {
	Summary      string `json:"summary"`
	DocumentType string `json:"document_type,omitempty"`
}

// Summarizer is the external summarization service.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}
