package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/obafela/doc-pipeline/internal/common"
)

// SendJSON sends a JSON request to a full URL with optional headers and returns
// the raw response body. It does not assume any provider (OpenAI/Azure/etc.);
// callers decide the URL and headers. Non-2xx statuses are mapped onto the
// pipeline error taxonomy so the retry executor can tell transient failures
// (429, 5xx) from permanent ones.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("llm.http.encode_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Debug("llm.http.request",
		"req_id", reqID,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		// connection-level failures are retryable
		return nil, common.NewAppError("LLM_UNREACHABLE", "request failed", common.ErrServiceUnavailable)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	logger.Debug("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, statusError(resp.StatusCode)
	}
	return raw, nil
}

func statusError(code int) error {
	msg := fmt.Sprintf("non-2xx status: %d", code)
	switch {
	case code == http.StatusTooManyRequests:
		return common.NewAppError("LLM_RATE_LIMITED", msg, common.ErrRateLimited)
	case code == http.StatusRequestEntityTooLarge:
		return common.NewAppError("LLM_TOO_LONG", msg, common.ErrTooLong)
	case code >= 500:
		return common.NewAppError("LLM_UNAVAILABLE", msg, common.ErrServiceUnavailable)
	default:
		return common.NewAppError("LLM_REJECTED", msg, common.ErrInvalidInput)
	}
}
