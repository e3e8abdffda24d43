// Package backend pushes progress events to the job tracker over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/core/domain"
)

// ProgressPath is the tracker endpoint, relative to the backend base URL.
const ProgressPath = "/api/ytdownloader/update-progress"

const defaultTimeout = 10 * time.Second

// HTTPReporter implements ports.Reporter with one best-effort POST per event.
type HTTPReporter struct {
	baseURL string
	jobID   string
	secret  string
	client  *http.Client
	logger  log.FieldLogger
}

// NewHTTPReporter creates a reporter for jobID. An empty baseURL makes
// Report log locally only.
func NewHTTPReporter(baseURL, jobID, secret string, timeout time.Duration, logger log.FieldLogger) *HTTPReporter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		jobID:   jobID,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Report sends the event. Failures are logged as warnings and never
// returned.
func (r *HTTPReporter) Report(ctx context.Context, message string, progress int, finalFile *domain.VideoRecord) {
	event := domain.ProgressEvent{
		JobID:     r.jobID,
		Message:   message,
		Progress:  clamp(progress),
		Secret:    r.secret,
		FinalFile: finalFile,
	}
	r.logger.Infof("Progress %d%%: %s", event.Progress, message)

	if r.baseURL == "" {
		return
	}
	if err := r.post(ctx, event); err != nil {
		r.logger.Warnf("Could not send progress update: %v", err)
	}
}

func (r *HTTPReporter) post(ctx context.Context, event domain.ProgressEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+ProgressPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
