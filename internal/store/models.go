package store

import "time"

// Download statuses recorded in history.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// HistoryRecord is one finished download, successful or not.
type HistoryRecord struct {
	ID               int64
	Distro           string
	Version          string
	Architecture     string
	Variant          string
	Filename         string
	URL              string
	Size             int64
	Checksum         string
	ChecksumVerified bool
	Attempts         int
	Status           string // "completed", "failed", "cancelled"
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Stats summarizes the history table.
type Stats struct {
	TotalDownloads  int
	CompletedCount  int
	FailedCount     int
	BytesDownloaded int64
}
