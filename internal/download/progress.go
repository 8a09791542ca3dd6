package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// EventKind identifies what a progress event reports.
type EventKind string

const (
	EventStarted           EventKind = "started"
	EventProgress          EventKind = "progress"
	EventVerifyingChecksum EventKind = "verifying_checksum"
	EventChecksumVerified  EventKind = "checksum_verified"
	EventChecksumFailed    EventKind = "checksum_failed"
	EventCompleted         EventKind = "completed"
	EventFailed            EventKind = "failed"
	EventRetry             EventKind = "retry"
	EventCancelled         EventKind = "cancelled"
	EventError             EventKind = "error"
)

// Event is a single progress notification from the download engine. Only the
// fields relevant to the Kind are populated.
type Event struct {
	Kind EventKind
	ID   string

	// Started
	URL        string
	OutputPath string

	// Progress and Completed
	BytesDownloaded int64
	TotalBytes      int64
	Percent         int
	SpeedBps        int64

	// ChecksumFailed
	ExpectedChecksum string

	// Completed
	ChecksumVerified bool

	// Retry and Failed
	Attempt     int
	MaxAttempts int
	Delay       time.Duration

	// Failed and Error
	Err string
}

// eventBufferSize bounds the shared progress channel. Informational sends
// never block: when a consumer falls this far behind, further Progress-style
// events are dropped. Terminal events go through deliver instead.
const eventBufferSize = 1024

// emit sends an informational event without blocking the download goroutine.
func emit(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// deliver blocks until the consumer accepts the event. Completed, Failed and
// Cancelled are the authoritative outcome of a task, so they must never be
// dropped no matter how far behind the consumer is.
func deliver(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	ch <- ev
}

// Tracker accumulates per-download progress so callers can render combined
// status lines. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]TaskState
}

// TaskState is the last observed progress of one download.
type TaskState struct {
	ID              string
	BytesDownloaded int64
	TotalBytes      int64
	SpeedBps        int64
	UpdatedAt       time.Time
}

// ETA estimates the remaining transfer time, or false when the total size or
// current speed is unknown.
func (s TaskState) ETA() (time.Duration, bool) {
	if s.SpeedBps <= 0 || s.TotalBytes <= 0 || s.BytesDownloaded >= s.TotalBytes {
		return 0, false
	}
	remaining := s.TotalBytes - s.BytesDownloaded
	return time.Duration(remaining/s.SpeedBps) * time.Second, true
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]TaskState)}
}

// Observe folds a progress event into the tracker. Non-progress events clear
// the task's state since the transfer is no longer running.
func (t *Tracker) Observe(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case EventStarted:
		t.states[ev.ID] = TaskState{ID: ev.ID, UpdatedAt: time.Now()}
	case EventProgress:
		t.states[ev.ID] = TaskState{
			ID:              ev.ID,
			BytesDownloaded: ev.BytesDownloaded,
			TotalBytes:      ev.TotalBytes,
			SpeedBps:        ev.SpeedBps,
			UpdatedAt:       time.Now(),
		}
	case EventCompleted, EventFailed, EventCancelled:
		delete(t.states, ev.ID)
	}
}

// State returns the last observed progress for a download.
func (t *Tracker) State(id string) (TaskState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[id]
	return s, ok
}

// Active returns the ids of every download the tracker is following.
func (t *Tracker) Active() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	return ids
}

// FormatBytes renders a byte count for status lines.
func FormatBytes(n int64) string {
	return humanize.IBytes(uint64(n))
}

// FormatSpeed renders a transfer rate for status lines.
func FormatSpeed(bps int64) string {
	return fmt.Sprintf("%s/s", humanize.IBytes(uint64(bps)))
}

// FormatDuration renders a duration as compact h/m/s text.
func FormatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
