package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/airone01/isod/internal/checksum"
	"github.com/airone01/isod/internal/registry"
)

// Options configures the manager's concurrency and per-download defaults.
type Options struct {
	MaxConcurrent   int
	PreferTorrents  bool
	OutputDirectory string
	VerifyChecksums bool
	ResumeDownloads bool
}

// DefaultOptions downloads into the current directory, three at a time, with
// resumption and verification on.
func DefaultOptions() Options {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Options{
		MaxConcurrent:   3,
		OutputDirectory: cwd,
		VerifyChecksums: true,
		ResumeDownloads: true,
	}
}

// transport moves one file; the HTTP engine and the torrent stub both
// implement it.
type transport interface {
	Download(ctx context.Context, task Task) Result
}

// Manager schedules downloads through a bounded set of slots and fans all
// progress into one events channel.
type Manager struct {
	engine  *Engine
	torrent *TorrentEngine
	opts    Options
	logger  *slog.Logger

	sem    chan struct{}
	events chan Event

	mu     sync.RWMutex
	active map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewManager builds a manager around the shared download client.
func NewManager(client *http.Client, logger *slog.Logger, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Manager{
		engine:  NewEngine(client, logger),
		torrent: NewTorrentEngine(logger),
		opts:    opts,
		logger:  logger,
		sem:     make(chan struct{}, opts.MaxConcurrent),
		events:  make(chan Event, eventBufferSize),
		active:  make(map[string]context.CancelFunc),
	}
}

// Events is the stream every download reports through.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// DownloadISO resolves a download descriptor into a running task and returns
// its id. Source selection honors the torrent preference strictly: when
// torrents are preferred only torrent and magnet sources are considered, and
// those currently fail through the stub transport rather than silently
// falling back to HTTP.
func (m *Manager) DownloadISO(ctx context.Context, info *registry.IsoInfo, expectedChecksum string) (string, error) {
	source, err := registry.SelectBestSource(info.DownloadSources, m.opts.PreferTorrents)
	if err != nil {
		return "", fmt.Errorf("selecting source for %s: %w", info.Distro, err)
	}

	// Definitions may leave placeholders for values only known at download
	// time, so resolve once more against the concrete descriptor.
	url := registry.ResolveTemplate(source.Endpoint(), info.Version, info.Architecture, info.Variant, info.Filename)

	id := fmt.Sprintf("%s_%s", info.Distro, uuid.NewString()[:8])

	req := NewRequest(url, filepath.Join(m.opts.OutputDirectory, info.Filename))
	if m.opts.VerifyChecksums && expectedChecksum != "" {
		req = req.WithChecksum(expectedChecksum, checksum.ParseAlgorithm(info.ChecksumType))
	}
	if !m.opts.ResumeDownloads {
		req = req.NoResume()
	}

	var tr transport = m.engine
	if !source.Type.IsHTTP() {
		tr = m.torrent
	}

	if err := m.start(ctx, id, req, tr); err != nil {
		return "", err
	}
	return id, nil
}

// Start schedules a plain HTTP download outside the registry flow.
func (m *Manager) Start(ctx context.Context, id string, req Request) error {
	return m.start(ctx, id, req, m.engine)
}

// start acquires a concurrency slot before spawning, so the caller blocks
// when every slot is busy. The slot is held for the lifetime of the task.
func (m *Manager) start(ctx context.Context, id string, req Request, tr transport) error {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for download slot: %w", ctx.Err())
	}

	taskCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.active[id] = cancel
	m.mu.Unlock()

	task := Task{ID: id, Request: req, Events: m.events}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			<-m.sem
			cancel()
		}()

		result := tr.Download(taskCtx, task)
		owned := m.finish(id)

		if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
			// The engine stays silent on cancellation. Cancel reports
			// Cancelled for ids it removed; a task still registered here
			// was stopped by the parent context and reports its own end,
			// so the stream always closes with a terminal event.
			if owned {
				deliver(m.events, Event{Kind: EventCancelled, ID: id})
			}
			m.logger.Info("download cancelled", "id", id)
			return
		}
		if result.Err != nil {
			m.logger.Warn("download finished with error", "id", id, "error", result.Err)
			return
		}
		m.logger.Info("download finished",
			"id", id, "bytes", result.BytesDownloaded,
			"duration", result.Duration, "checksum_verified", result.ChecksumVerified)
	}()

	return nil
}

// finish removes a task from the active set, reporting whether it was still
// registered. False means Cancel got there first and has already emitted the
// Cancelled event for this id.
func (m *Manager) finish(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; !ok {
		return false
	}
	delete(m.active, id)
	return true
}

// Cancel stops a running download, reporting Cancelled exactly once. A
// second cancel of the same id is a no-op.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	cancel, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	cancel()
	deliver(m.events, Event{Kind: EventCancelled, ID: id})
	return true
}

// ActiveDownloads lists the ids of every running task.
func (m *Manager) ActiveDownloads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every started download has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
