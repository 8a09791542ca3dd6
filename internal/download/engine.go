// Package download implements the resumable HTTP download engine and the
// concurrency-bounded manager that drives it.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/airone01/isod/internal/checksum"
	"github.com/airone01/isod/internal/safety"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second

	// progressInterval throttles Progress events per task.
	progressInterval = 250 * time.Millisecond

	copyBufferSize = 32 * 1024
)

// Request describes one file to download.
type Request struct {
	URL              string
	OutputPath       string
	ExpectedChecksum string             // empty skips verification
	ChecksumType     checksum.Algorithm // used only when ExpectedChecksum is set
	UserAgent        string
	Resume           bool
}

// NewRequest builds a request with resume enabled and the default user agent.
func NewRequest(url, outputPath string) Request {
	return Request{
		URL:        url,
		OutputPath: outputPath,
		UserAgent:  safety.DefaultUserAgent,
		Resume:     true,
	}
}

// WithChecksum attaches an expected digest for post-download verification.
func (r Request) WithChecksum(digest string, algorithm checksum.Algorithm) Request {
	r.ExpectedChecksum = digest
	r.ChecksumType = algorithm
	return r
}

// NoResume disables resumption so the attempt always starts from byte zero.
func (r Request) NoResume() Request {
	r.Resume = false
	return r
}

// Task pairs a request with its id and the channel progress events go to.
type Task struct {
	ID      string
	Request Request
	Events  chan<- Event
}

// Result is the terminal outcome of a download, retries included. A checksum
// mismatch does not fail the download: Success stays true with
// ChecksumVerified false, and the caller decides what to do with the file.
type Result struct {
	Success          bool
	BytesDownloaded  int64
	Duration         time.Duration
	Err              error
	ChecksumVerified bool
}

// HTTPError is a non-2xx response from a download source.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}

// Engine downloads single files over HTTP with resume and retry.
type Engine struct {
	client     *http.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewEngine builds an engine on the shared download client. The client must
// not carry an overall timeout; large images take however long they take.
func NewEngine(client *http.Client, logger *slog.Logger) *Engine {
	return &Engine{
		client:     client,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// Download runs the task to completion, retrying failed attempts up to the
// engine's retry limit with a fixed delay between them. Cancellation returns
// immediately without Retry or Failed events; the manager reports Cancelled.
func (e *Engine) Download(ctx context.Context, task Task) Result {
	start := time.Now()

	emit(task.Events, Event{
		Kind:       EventStarted,
		ID:         task.ID,
		URL:        task.Request.URL,
		OutputPath: task.Request.OutputPath,
	})

	var attempt int
	for {
		attempt++

		downloaded, err := e.attempt(ctx, task)
		if err == nil {
			verified := e.verifyChecksum(task)

			deliver(task.Events, Event{
				Kind:             EventCompleted,
				ID:               task.ID,
				BytesDownloaded:  downloaded,
				ChecksumVerified: verified,
			})
			return Result{
				Success:          true,
				BytesDownloaded:  downloaded,
				Duration:         time.Since(start),
				ChecksumVerified: verified,
			}
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{Duration: time.Since(start), Err: err}
		}

		if attempt >= e.maxRetries {
			deliver(task.Events, Event{
				Kind:    EventFailed,
				ID:      task.ID,
				Err:     err.Error(),
				Attempt: attempt,
			})
			return Result{Duration: time.Since(start), Err: err}
		}

		e.logger.Warn("download attempt failed",
			"id", task.ID, "url", task.Request.URL, "attempt", attempt, "error", err)
		emit(task.Events, Event{
			Kind:        EventRetry,
			ID:          task.ID,
			Attempt:     attempt,
			MaxAttempts: e.maxRetries,
			Delay:       e.retryDelay,
		})

		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			return Result{Duration: time.Since(start), Err: ctx.Err()}
		}
	}
}

// attempt performs one transfer, resuming from whatever is already on disk.
// The returned count includes previously downloaded bytes.
func (e *Engine) attempt(ctx context.Context, task Task) (int64, error) {
	req := task.Request

	var resumeFrom int64
	if req.Resume {
		if fi, err := os.Stat(req.OutputPath); err == nil {
			resumeFrom = fi.Size()
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	ua := req.UserAgent
	if ua == "" {
		ua = safety.DefaultUserAgent
	}
	httpReq.Header.Set("User-Agent", ua)
	if resumeFrom > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	total := totalSize(resp, resumeFrom)

	file, err := openOutput(req.OutputPath, resumeFrom)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = file.Close()
	}()

	downloaded := resumeFrom
	lastUpdate := time.Now()
	lastBytes := downloaded
	buf := make([]byte, copyBufferSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return 0, fmt.Errorf("writing chunk: %w", writeErr)
			}
			downloaded += int64(n)

			if elapsed := time.Since(lastUpdate); elapsed >= progressInterval {
				emit(task.Events, progressEvent(task.ID, downloaded, lastBytes, total, elapsed))
				lastUpdate = time.Now()
				lastBytes = downloaded
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, fmt.Errorf("reading response: %w", readErr)
		}
	}

	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("syncing file: %w", err)
	}
	return downloaded, nil
}

// verifyChecksum checks the finished file against the expected digest when
// one was provided, reporting the outcome through events. Absent an expected
// checksum the file counts as verified.
func (e *Engine) verifyChecksum(task Task) bool {
	req := task.Request
	if req.ExpectedChecksum == "" {
		return true
	}

	emit(task.Events, Event{Kind: EventVerifyingChecksum, ID: task.ID})

	ok, err := checksum.VerifyFile(req.OutputPath, req.ExpectedChecksum, req.ChecksumType)
	if err != nil {
		emit(task.Events, Event{
			Kind: EventError,
			ID:   task.ID,
			Err:  fmt.Sprintf("checksum verification failed: %v", err),
		})
		return false
	}
	if !ok {
		e.logger.Warn("checksum mismatch",
			"id", task.ID, "path", req.OutputPath, "expected", req.ExpectedChecksum)
		emit(task.Events, Event{
			Kind:             EventChecksumFailed,
			ID:               task.ID,
			ExpectedChecksum: req.ExpectedChecksum,
		})
		return false
	}

	emit(task.Events, Event{Kind: EventChecksumVerified, ID: task.ID})
	return true
}

// totalSize works out the full size of the file being fetched. On a resumed
// transfer the Content-Range total is authoritative; without one the resume
// offset plus the remaining content length is the best available estimate.
func totalSize(resp *http.Response, resumeFrom int64) int64 {
	if resumeFrom > 0 {
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			return total
		}
		if resp.ContentLength > 0 {
			return resumeFrom + resp.ContentLength
		}
		return resumeFrom
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return 0
}

// parseContentRangeTotal extracts the total from a "bytes start-end/total"
// header value.
func parseContentRangeTotal(value string) (int64, bool) {
	_, totalPart, ok := strings.Cut(value, "/")
	if !ok {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(totalPart), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

// openOutput opens the destination in append mode when resuming, otherwise
// creates it fresh, making parent directories as needed.
func openOutput(path string, resumeFrom int64) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeFrom > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	return file, nil
}

func progressEvent(id string, downloaded, lastBytes, total int64, elapsed time.Duration) Event {
	percent := 0
	if total > 0 {
		percent = int(float64(downloaded) / float64(total) * 100)
	}
	var speed int64
	if secs := elapsed.Seconds(); secs > 0 {
		speed = int64(float64(downloaded-lastBytes) / secs)
	}
	return Event{
		Kind:            EventProgress,
		ID:              id,
		BytesDownloaded: downloaded,
		TotalBytes:      total,
		Percent:         percent,
		SpeedBps:        speed,
	}
}
