package extract

// Strategy is the extraction method chosen for a document.
type Strategy string

const (
	// StrategyDirectText reads text straight out of the document with no
	// external call (DOCX).
	StrategyDirectText Strategy = "direct_text"
	// StrategyVision sends page images to the vision model for OCR.
	StrategyVision Strategy = "vision"
)

// Result is the output of the extraction stage. The confidence score is
// always computed locally by Score, never taken from the external
// service. Immutable once built.
type Result struct {
	RawText         string
	ConfidenceScore float64
	Metadata        map[string]any
}

// Summary is the output of the summarization stage. Fallback is set when
// summarization retries were exhausted and the text is a truncation of
// the raw extraction instead of a generated summary.
type Summary struct {
	SummaryText string
	Fallback    bool
}
