package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertFavourite = `INSERT INTO favourites(id, account_id, status_id, uri, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, status_id) DO NOTHING`
	sqlSelectFavourite      = `SELECT id, account_id, status_id, uri, created_at FROM favourites WHERE account_id = ? AND status_id = ?`
	sqlSelectFavouriteByURI = `SELECT id, account_id, status_id, uri, created_at FROM favourites WHERE account_id = ? AND uri = ?`
	sqlDeleteFavourite      = `DELETE FROM favourites WHERE id = ?`
	sqlCountFavourites      = `SELECT COUNT(*) FROM favourites WHERE status_id = ?`

	sqlInsertPin = `INSERT INTO status_pins(id, account_id, status_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, status_id) DO NOTHING`
	sqlDeletePin = `DELETE FROM status_pins WHERE account_id = ? AND status_id = ?`
	sqlCountPins = `SELECT COUNT(*) FROM status_pins WHERE account_id = ? AND status_id = ?`

	sqlInsertReport = `INSERT INTO reports(id, account_id, target_account_id, status_ids, comment, uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectReports = `SELECT id, account_id, target_account_id, status_ids, comment, uri, created_at
		FROM reports WHERE target_account_id = ? ORDER BY created_at`

	sqlInsertNotification = `INSERT INTO notifications(id, account_id, notification_type, from_account_id, status_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectNotifications = `SELECT id, account_id, notification_type, from_account_id, status_id, read, created_at
		FROM notifications WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`
	sqlDeleteNotificationsFrom = `DELETE FROM notifications WHERE account_id = ? AND from_account_id = ? AND notification_type = ?`
)

func scanFavourite(s scanner) (*domain.Favourite, error) {
	var f domain.Favourite
	if err := s.Scan(&f.Id, &f.AccountId, &f.StatusId, &f.URI, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFavourite stores a like. It reports false when the account had
// already liked the status.
func (db *DB) CreateFavourite(ctx context.Context, f *domain.Favourite) (bool, error) {
	if f.Id == uuid.Nil {
		f.Id = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = db.now()
	}
	res, err := db.db.ExecContext(ctx, sqlInsertFavourite, f.Id, f.AccountId, f.StatusId, f.URI, f.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) FindFavourite(ctx context.Context, accountID, statusID uuid.UUID) (*domain.Favourite, error) {
	return optional(scanFavourite(db.db.QueryRowContext(ctx, sqlSelectFavourite, accountID, statusID)))
}

func (db *DB) FindFavouriteByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.Favourite, error) {
	return optional(scanFavourite(db.db.QueryRowContext(ctx, sqlSelectFavouriteByURI, accountID, uri)))
}

func (db *DB) DeleteFavourite(ctx context.Context, id uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlDeleteFavourite, id)
	return err
}

func (db *DB) CountFavourites(ctx context.Context, statusID uuid.UUID) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountFavourites, statusID).Scan(&n)
	return n, err
}

// PinStatus features a status on its author's profile
func (db *DB) PinStatus(ctx context.Context, accountID, statusID uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlInsertPin, uuid.New(), accountID, statusID, db.now())
	return err
}

func (db *DB) UnpinStatus(ctx context.Context, accountID, statusID uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlDeletePin, accountID, statusID)
	return err
}

func (db *DB) IsPinned(ctx context.Context, accountID, statusID uuid.UUID) (bool, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountPins, accountID, statusID).Scan(&n)
	return n > 0, err
}

func (db *DB) CreateReport(ctx context.Context, r *domain.Report) error {
	if r.Id == uuid.Nil {
		r.Id = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = db.now()
	}
	ids := r.StatusIds
	if ids == nil {
		ids = []uuid.UUID{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	_, err = db.db.ExecContext(ctx, sqlInsertReport, r.Id, r.AccountId, r.TargetAccountId, string(encoded), r.Comment, r.URI, r.CreatedAt)
	return err
}

func (db *DB) ReportsAgainst(ctx context.Context, targetID uuid.UUID) ([]domain.Report, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectReports, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		var r domain.Report
		var ids string
		if err := rows.Scan(&r.Id, &r.AccountId, &r.TargetAccountId, &ids, &r.Comment, &r.URI, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &r.StatusIds); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// CreateNotification stores a notification for a local account
func (db *DB) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.Id == uuid.Nil {
		n.Id = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = db.now()
	}
	_, err := db.db.ExecContext(ctx, sqlInsertNotification,
		n.Id, n.AccountId, string(n.NotificationType), n.FromAccountId, nullUUID(n.StatusId), n.Read, n.CreatedAt)
	return err
}

func (db *DB) Notifications(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Notification, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectNotifications, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind string
		var statusID uuid.NullUUID
		if err := rows.Scan(&n.Id, &n.AccountId, &kind, &n.FromAccountId, &statusID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.NotificationType = domain.NotificationType(kind)
		n.StatusId = fromNullUUID(statusID)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// DeleteNotificationsFrom drops notifications of one kind sent by an account
func (db *DB) DeleteNotificationsFrom(ctx context.Context, accountID, fromID uuid.UUID, kind domain.NotificationType) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlDeleteNotificationsFrom, accountID, fromID, string(kind))
		return err
	})
}
