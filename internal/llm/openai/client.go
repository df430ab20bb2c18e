package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obafela/doc-pipeline/internal/common"
	"github.com/obafela/doc-pipeline/internal/extract"
	"github.com/obafela/doc-pipeline/internal/llm"
)

// ExtractText implements llm.TextExtractor against the chat/completions
// vision endpoint. The page image is inlined as a base64 data URL the
// way the Vision API expects. Direct-text pages never reach this client;
// passing that strategy is a programming error.
func (c *Client) ExtractText(ctx context.Context, strategy extract.Strategy, page []byte) (string, error) {
	if strategy != extract.StrategyVision {
		return "", common.NewAppError("EXTRACT_STRATEGY",
			fmt.Sprintf("strategy %q requires no external call", strategy),
			common.ErrInvalidInput)
	}
	if len(page) == 0 {
		return "", common.NewAppError("EXTRACT_EMPTY_PAGE", "empty page content", common.ErrInvalidInput)
	}

	rid := uuid.New().String()
	start := time.Now()

	format := sniffImageFormat(page)
	c.logger.Debug("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"image_format", format,
		"page_bytes", len(page),
	)

	dataURL := "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(page)
	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": c.cfg.MaxTokens,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": llm.ExtractionPrompt},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}

	content, err := c.chat(ctx, rid, body)
	if err != nil {
		c.logger.Error("llm.extract.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"text_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// Summarize implements llm.Summarizer. The model is asked for JSON and
// the payload is schema-validated before we trust it.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "No content available to summarize.", nil
	}

	rid := uuid.New().String()
	start := time.Now()

	schema := llm.BuildSummaryJSONSchema()
	c.logger.Debug("llm.summarize.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(text),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SummarySystemPrompt},
			{"role": "user", "content": llm.BuildSummaryUserPrompt(text)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, err := c.chat(ctx, rid, body)
	if err != nil {
		c.logger.Error("llm.summarize.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	rawContent := []byte(strings.TrimSpace(content))
	if err := llm.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		c.logger.Error("llm.summarize.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.NewAppError("SUMMARY_SCHEMA",
			"summary response does not match schema", common.ErrInvalidInput)
	}

	var payload llm.SummaryPayload
	if err := json.Unmarshal(rawContent, &payload); err != nil {
		return "", fmt.Errorf("decode summary payload: %w", err)
	}

	c.logger.Info("llm.summarize.ok",
		"req_id", rid,
		"summary_len", len(payload.Summary),
		"document_type", payload.DocumentType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return payload.Summary, nil
}

// chat posts a chat/completions body and unwraps the first choice.
func (c *Client) chat(ctx context.Context, rid string, body map[string]any) (string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.chat.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.chat.no_choices", "req_id", rid, "raw_bytes", len(raw))
		return "", fmt.Errorf("no choices in openai response")
	}
	return cc.Choices[0].Message.Content, nil
}

// sniffImageFormat tells JPEG from PNG by magic bytes; JPEG starts FFD8,
// PNG 89504E47. Anything else is sent as PNG and left to the API.
func sniffImageFormat(data []byte) string {
	if len(data) >= 2 && bytes.Equal(data[:2], []byte{0xff, 0xd8}) {
		return "jpeg"
	}
	return "png"
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
