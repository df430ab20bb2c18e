package llm

import (
	"regexp"
	"strings"
)

// ExtractionPrompt is sent with every vision page.
const ExtractionPrompt = "Extract all text from this image. Preserve the formatting and structure as much as possible."

// SummarySystemPrompt frames the classify-then-summarize behavior.
const SummarySystemPrompt = `You are an expert document analyst. First classify the document type
(resume, business plan, technical report, research paper, contract, ...),
then write a comprehensive structured summary of its content. Cover the
document's purpose, key facts, and notable details. Respond with JSON only.`

// Input budget for summarization. Oversized documents keep their head and
// tail so the intro and conclusion survive the cut.
const (
	summaryInputCap = 80000
	summaryHeadKeep = 60000
	summaryTailKeep = 20000
)

var (
	reCodeFence  = regexp.MustCompile("```\\w*\\s*")
	reBlankRuns  = regexp.MustCompile(`\n{3,}`)
	reLineSpaces = regexp.MustCompile(`[ \t]+\n`)
)

// BuildSummaryUserPrompt trims and cleans extracted text and wraps it in
// the summarization instruction.
func BuildSummaryUserPrompt(text string) string {
	cleaned := CleanExtractedText(text)
	if len(cleaned) > summaryInputCap {
		cleaned = cleaned[:summaryHeadKeep] +
			"\n\n[... middle content truncated ...]\n\n" +
			cleaned[len(cleaned)-summaryTailKeep:]
	}

	var b strings.Builder
	b.WriteString("Classify and summarize the following document text.\n\n")
	b.WriteString(cleaned)
	b.WriteString("\n\nReturn ONLY JSON matching the provided schema.")
	return b.String()
}

// CleanExtractedText strips OCR/markdown artifacts that add noise without
// information: code fences, trailing line whitespace, runs of blank lines.
func CleanExtractedText(text string) string {
	cleaned := reCodeFence.ReplaceAllString(text, "")
	cleaned = reLineSpaces.ReplaceAllString(cleaned, "\n")
	cleaned = reBlankRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
