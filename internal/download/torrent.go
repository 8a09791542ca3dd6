package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrTorrentNotImplemented is returned for torrent and magnet sources until a
// BitTorrent transport lands.
var ErrTorrentNotImplemented = errors.New("torrent downloads are not implemented")

// TorrentEngine is the placeholder transport for torrent and magnet sources.
type TorrentEngine struct {
	logger *slog.Logger
}

func NewTorrentEngine(logger *slog.Logger) *TorrentEngine {
	return &TorrentEngine{logger: logger}
}

// Download rejects every task. Selecting a torrent source therefore fails
// the download instead of silently switching transports.
func (t *TorrentEngine) Download(ctx context.Context, task Task) Result {
	t.logger.Warn("torrent transport requested", "id", task.ID, "url", task.Request.URL)

	err := fmt.Errorf("%w: %s", ErrTorrentNotImplemented, task.Request.URL)
	deliver(task.Events, Event{
		Kind:    EventFailed,
		ID:      task.ID,
		Err:     err.Error(),
		Attempt: 1,
	})
	return Result{Err: err}
}
