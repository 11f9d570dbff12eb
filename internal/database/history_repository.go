package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hxnx/spotmpd/internal/music"
)

const historyRepoTimeout = 2 * time.Second

// HistoryRepository stores finished plays in postgres.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func NewHistoryRepositoryFromDefault() *HistoryRepository {
	return &HistoryRepository{db: GetDB()}
}

func (r *HistoryRepository) Record(ctx context.Context, track music.Track, playedFor time.Duration) error {
	if r == nil || r.db == nil {
		return nil
	}
	if track.ID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, historyRepoTimeout)
	defer cancel()

	const query = `
		INSERT INTO play_history (track_id, title, artists, album, played_ms, finished_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		track.ID,
		track.Title,
		strings.Join(track.Artists, ";"),
		track.Album,
		playedFor.Milliseconds(),
	)
	return err
}

// Totals reports how many plays were recorded and their summed duration.
func (r *HistoryRepository) Totals(ctx context.Context) (int, time.Duration, error) {
	if r == nil || r.db == nil {
		return 0, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, historyRepoTimeout)
	defer cancel()

	const query = `
		SELECT COUNT(*), COALESCE(SUM(played_ms), 0)
		FROM play_history
	`

	var count int
	var playedMS int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count, &playedMS); err != nil {
		return 0, 0, err
	}
	return count, time.Duration(playedMS) * time.Millisecond, nil
}

// Recent returns the latest finished track ids, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, historyRepoTimeout)
	defer cancel()

	const query = `
		SELECT track_id
		FROM play_history
		ORDER BY finished_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
