package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/opnlabs/gantry/pkg/models"
)

// UploadError marks a failed report upload. In strict mode it flips the
// overall pipeline status to failed even when every job passed.
type UploadError struct {
	Sink string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload report to %s: %v", e.Sink, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Sink is the external destination a rendered report is delivered to.
type Sink interface {
	Upload(ctx context.Context, result models.PipelineResult) error
}

// ApplyUploadPolicy folds an upload outcome into the verdict. Outside
// strict mode upload failures leave the verdict untouched.
func ApplyUploadPolicy(result *models.PipelineResult, uploadErr error, strict bool) {
	if uploadErr != nil && strict {
		result.Status = models.StatusFailed
	}
}

// FileSink writes the JSON report into a directory on the host.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (f *FileSink) Upload(ctx context.Context, result models.PipelineResult) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return &UploadError{Sink: f.dir, Err: err}
	}

	contents, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return &UploadError{Sink: f.dir, Err: err}
	}

	out, err := os.CreateTemp(f.dir, "report-*.json")
	if err != nil {
		return &UploadError{Sink: f.dir, Err: err}
	}
	defer out.Close()

	if _, err := out.Write(contents); err != nil {
		return &UploadError{Sink: f.dir, Err: err}
	}
	return nil
}

// HTTPSink posts the JSON report to an external reporting service.
type HTTPSink struct {
	url    string
	client *http.Client
}

func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{url: url, client: client}
}

func (h *HTTPSink) Upload(ctx context.Context, result models.PipelineResult) error {
	contents, err := json.Marshal(result)
	if err != nil {
		return &UploadError{Sink: h.url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(contents))
	if err != nil {
		return &UploadError{Sink: h.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return &UploadError{Sink: h.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UploadError{Sink: h.url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}
