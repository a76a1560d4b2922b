package db

import (
	"context"
	"time"
)

const (
	// an expired row counts as absent and is overwritten in place
	sqlSetMarker = `INSERT INTO markers(key, expires_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at WHERE markers.expires_at <= ?`
	sqlMarkerExists = `SELECT COUNT(*) FROM markers WHERE key = ? AND expires_at > ?`
	sqlDeleteMarker = `DELETE FROM markers WHERE key = ?`
	sqlPurgeMarkers = `DELETE FROM markers WHERE expires_at <= ?`
)

// MarkerStore keeps markers in the markers table so they survive restarts
// of a single-node deployment.
type MarkerStore struct {
	db *DB
}

func (db *DB) Markers() *MarkerStore {
	return &MarkerStore{db: db}
}

func (m *MarkerStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := m.db.now()
	res, err := m.db.db.ExecContext(ctx, sqlSetMarker, key, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (m *MarkerStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := m.db.db.QueryRowContext(ctx, sqlMarkerExists, key, m.db.now().UnixNano()).Scan(&n)
	return n > 0, err
}

func (m *MarkerStore) Delete(ctx context.Context, key string) error {
	_, err := m.db.db.ExecContext(ctx, sqlDeleteMarker, key)
	return err
}

// Purge removes expired markers
func (m *MarkerStore) Purge(ctx context.Context) (int64, error) {
	res, err := m.db.db.ExecContext(ctx, sqlPurgeMarkers, m.db.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
