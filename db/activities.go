package db

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertActivity = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, delivered_to, processed, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?) ON CONFLICT(activity_uri, actor_uri, delivered_to) DO NOTHING`
	sqlSelectActivity = `SELECT id, activity_uri, activity_type, actor_uri, delivered_to, processed, created_at
		FROM activities WHERE activity_uri = ? AND actor_uri = ? AND delivered_to = ?`
	sqlMarkActivityProcessed = `UPDATE activities SET processed = 1 WHERE id = ?`
	sqlDeleteActivitiesFor   = `DELETE FROM activities WHERE activity_uri = ?`
)

func deliveredToKey(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func scanActivity(s scanner) (*domain.Activity, error) {
	var a domain.Activity
	var deliveredTo string
	if err := s.Scan(&a.Id, &a.ActivityURI, &a.ActivityType, &a.ActorURI, &deliveredTo, &a.Processed, &a.CreatedAt); err != nil {
		return nil, err
	}
	if deliveredTo != "" {
		id, err := uuid.Parse(deliveredTo)
		if err != nil {
			return nil, err
		}
		a.DeliveredToAccountId = &id
	}
	return &a, nil
}

// RecordActivity logs an incoming activity and returns the stored entry.
// Entries are keyed by activity id, actor and recipient. The entry of an
// earlier delivery is returned unchanged, so callers check Processed.
func (db *DB) RecordActivity(ctx context.Context, a *domain.Activity) (*domain.Activity, error) {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = db.now()
	}
	key := deliveredToKey(a.DeliveredToAccountId)
	if _, err := db.db.ExecContext(ctx, sqlInsertActivity, a.Id, a.ActivityURI, a.ActivityType, a.ActorURI, key, a.CreatedAt); err != nil {
		return nil, err
	}
	return scanActivity(db.db.QueryRowContext(ctx, sqlSelectActivity, a.ActivityURI, a.ActorURI, key))
}

func (db *DB) MarkActivityProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlMarkActivityProcessed, id)
	return err
}

// ForgetActivity clears log entries so a failed activity can be redelivered
func (db *DB) ForgetActivity(ctx context.Context, uri string) error {
	_, err := db.db.ExecContext(ctx, sqlDeleteActivitiesFor, uri)
	return err
}
