package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

const (
	relayColumns         = `id, actor_uri, inbox_uri, follow_uri, state, created_at, accepted_at`
	sqlInsertRelay       = `INSERT INTO relays(` + relayColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectRelays      = `SELECT ` + relayColumns + ` FROM relays ORDER BY created_at`
	sqlUpdateRelayState  = `UPDATE relays SET state = ?, accepted_at = ? WHERE id = ?`
	sqlDeleteRelay       = `DELETE FROM relays WHERE id = ?`
	sqlCountEnabledRelay = `SELECT COUNT(*) FROM relays WHERE state = 'accepted' AND inbox_uri = ?`
)

func scanRelay(s scanner) (*domain.Relay, error) {
	var r domain.Relay
	var state string
	var acceptedAt sql.NullTime
	if err := s.Scan(&r.Id, &r.ActorURI, &r.InboxURI, &r.FollowURI, &state, &r.CreatedAt, &acceptedAt); err != nil {
		return nil, err
	}
	r.State = domain.RelayState(state)
	r.AcceptedAt = fromNullTime(acceptedAt)
	return &r, nil
}

// CreateRelay subscribes to a relay; the relay starts out pending
func (db *DB) CreateRelay(ctx context.Context, r *domain.Relay) error {
	if r.Id == uuid.Nil {
		r.Id = uuid.New()
	}
	if r.State == "" {
		r.State = domain.RelayPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = db.now()
	}
	_, err := db.db.ExecContext(ctx, sqlInsertRelay,
		r.Id, r.ActorURI, r.InboxURI, r.FollowURI, string(r.State), r.CreatedAt, nullTime(r.AcceptedAt))
	return err
}

func (db *DB) Relays(ctx context.Context) ([]domain.Relay, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectRelays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relays []domain.Relay
	for rows.Next() {
		r, err := scanRelay(rows)
		if err != nil {
			return nil, err
		}
		relays = append(relays, *r)
	}
	return relays, rows.Err()
}

// FindRelayByFollowURI finds the relay our Follow with the given id went to
func (db *DB) FindRelayByFollowURI(ctx context.Context, followURI string) (*domain.Relay, error) {
	return optional(scanRelay(db.db.QueryRowContext(ctx,
		`SELECT `+relayColumns+` FROM relays WHERE follow_uri = ?`, followURI)))
}

func (db *DB) FindRelayByActorURI(ctx context.Context, actorURI string) (*domain.Relay, error) {
	return optional(scanRelay(db.db.QueryRowContext(ctx,
		`SELECT `+relayColumns+` FROM relays WHERE actor_uri = ?`, actorURI)))
}

// IsEnabledRelayInbox reports whether inbox belongs to an accepted relay
func (db *DB) IsEnabledRelayInbox(ctx context.Context, inbox string) (bool, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountEnabledRelay, inbox).Scan(&n)
	return n > 0, err
}

func (db *DB) UpdateRelayState(ctx context.Context, id uuid.UUID, state domain.RelayState) error {
	var acceptedAt *time.Time
	if state == domain.RelayAccepted {
		now := db.now()
		acceptedAt = &now
	}
	_, err := db.db.ExecContext(ctx, sqlUpdateRelayState, string(state), nullTime(acceptedAt), id)
	return err
}

func (db *DB) DeleteRelay(ctx context.Context, id uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlDeleteRelay, id)
	return err
}
