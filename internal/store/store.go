// Package store persists download history in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no history row.
var ErrNotFound = errors.New("history record not found")

// Store provides SQLite-backed persistence.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the SQLite database and runs migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// RecordDownload inserts a history row and sets its ID.
func (s *Store) RecordDownload(rec *HistoryRecord) error {
	const query = `
		INSERT INTO download_history (
			distro, version, architecture, variant, filename, url, size,
			checksum, checksum_verified, attempts, status, error_message,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		rec.Distro, rec.Version, rec.Architecture, rec.Variant, rec.Filename,
		rec.URL, rec.Size, rec.Checksum, rec.ChecksumVerified, rec.Attempts,
		rec.Status, rec.ErrorMessage, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

const historyColumns = `
	id, distro, version, architecture, variant, filename, url, size,
	checksum, checksum_verified, attempts, status, error_message,
	started_at, finished_at
`

func scanRecord(row interface{ Scan(...any) error }) (*HistoryRecord, error) {
	rec := &HistoryRecord{}
	err := row.Scan(
		&rec.ID, &rec.Distro, &rec.Version, &rec.Architecture, &rec.Variant,
		&rec.Filename, &rec.URL, &rec.Size, &rec.Checksum,
		&rec.ChecksumVerified, &rec.Attempts, &rec.Status, &rec.ErrorMessage,
		&rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetRecord retrieves one history row by ID.
func (s *Store) GetRecord(id int64) (*HistoryRecord, error) {
	query := "SELECT " + historyColumns + " FROM download_history WHERE id = ?"

	rec, err := scanRecord(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	return rec, nil
}

// ListHistory returns recent history, newest first. A limit of 0 means no
// limit.
func (s *Store) ListHistory(limit int) ([]*HistoryRecord, error) {
	query := "SELECT " + historyColumns + " FROM download_history ORDER BY finished_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRecords(query, args...)
}

// HistoryForDistro returns one distro's history, newest first.
func (s *Store) HistoryForDistro(distro string, limit int) ([]*HistoryRecord, error) {
	query := "SELECT " + historyColumns + " FROM download_history WHERE distro = ? ORDER BY finished_at DESC, id DESC"
	args := []any{distro}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRecords(query, args...)
}

// LatestCompleted returns the most recent successful download of a distro.
func (s *Store) LatestCompleted(distro string) (*HistoryRecord, error) {
	query := "SELECT " + historyColumns + ` FROM download_history
		WHERE distro = ? AND status = ?
		ORDER BY finished_at DESC, id DESC LIMIT 1`

	rec, err := scanRecord(s.db.QueryRow(query, distro, StatusCompleted))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no completed download for %s", ErrNotFound, distro)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest download: %w", err)
	}
	return rec, nil
}

// PruneBefore deletes history rows finished before the cutoff, returning how
// many were removed.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM download_history WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// GetStats summarizes the history table. Only completed downloads count
// toward the byte total.
func (s *Store) GetStats() (*Stats, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN size ELSE 0 END), 0)
		FROM download_history
	`

	stats := &Stats{}
	err := s.db.QueryRow(query).Scan(
		&stats.TotalDownloads, &stats.CompletedCount, &stats.FailedCount,
		&stats.BytesDownloaded,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (s *Store) queryRecords(query string, args ...any) ([]*HistoryRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return records, nil
}
