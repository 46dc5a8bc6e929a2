package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pawpoint/pawpoint/internal/places"
	"github.com/pawpoint/pawpoint/internal/telemetry"
)

// SearchLog is one executed nearby-places search.
type SearchLog struct {
	ID          string    `json:"id" db:"id"`
	Mode        string    `json:"mode" db:"mode"`
	Latitude    float64   `json:"latitude" db:"latitude"`
	Longitude   float64   `json:"longitude" db:"longitude"`
	RadiusM     int       `json:"radius_m" db:"radius_m"`
	TopN        int       `json:"top_n" db:"top_n"`
	ResultCount int       `json:"result_count" db:"result_count"`
	DurationMS  int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// SearchLogStore persists search history. It satisfies the places
// service's HistoryRecorder.
type SearchLogStore struct {
	db *DB
}

// NewSearchLogStore creates a search history store.
func NewSearchLogStore(db *DB) *SearchLogStore {
	return &SearchLogStore{db: db}
}

const searchLogSchema = `
CREATE TABLE IF NOT EXISTS search_logs (
	id UUID PRIMARY KEY,
	mode TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	radius_m INTEGER NOT NULL,
	top_n INTEGER NOT NULL,
	result_count INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_search_logs_created_at ON search_logs (created_at DESC);
`

// EnsureSchema creates the search_logs table if it does not exist.
func (s *SearchLogStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, searchLogSchema)
	return err
}

// RecordSearch writes one search event to the history table.
func (s *SearchLogStore) RecordSearch(ctx context.Context, event places.SearchEvent) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "record_search",
		"mode":      event.Mode,
		"service":   "database",
	})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_logs (id, mode, latitude, longitude, radius_m, top_n, result_count, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		uuid.New().String(),
		event.Mode,
		event.Origin.Lat,
		event.Origin.Lon,
		event.RadiusM,
		event.TopN,
		event.ResultCount,
		event.Duration.Milliseconds(),
	)
	if err != nil {
		logger.WithError(err).Error("Failed to record search")
		return err
	}

	logger.Debug("Search recorded")
	return nil
}

// RecentSearches returns the newest search events, most recent first.
func (s *SearchLogStore) RecentSearches(ctx context.Context, limit int) ([]SearchLog, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, latitude, longitude, radius_m, top_n, result_count, duration_ms, created_at
		FROM search_logs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []SearchLog
	for rows.Next() {
		var entry SearchLog
		if err := rows.Scan(
			&entry.ID,
			&entry.Mode,
			&entry.Latitude,
			&entry.Longitude,
			&entry.RadiusM,
			&entry.TopN,
			&entry.ResultCount,
			&entry.DurationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
