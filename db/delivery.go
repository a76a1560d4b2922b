package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertDeliveryQueue = `INSERT INTO delivery_queue(id, inbox_uri, activity_json, signer_account_id, priority, attempts, next_retry_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, inbox_uri, activity_json, signer_account_id, priority, attempts, next_retry_at, created_at
		FROM delivery_queue WHERE next_retry_at <= ? ORDER BY priority ASC, next_retry_at ASC, created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery        = `DELETE FROM delivery_queue WHERE id = ?`
	sqlCountDeliveries       = `SELECT COUNT(*) FROM delivery_queue`

	enqueueChunkSize = 1000
)

// EnqueueDeliveries adds items to the delivery queue, committing in chunks
func (db *DB) EnqueueDeliveries(ctx context.Context, items []domain.DeliveryQueueItem) error {
	now := db.now()
	for start := 0; start < len(items); start += enqueueChunkSize {
		end := min(start+enqueueChunkSize, len(items))
		chunk := items[start:end]
		err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, sqlInsertDeliveryQueue)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for i := range chunk {
				item := &chunk[i]
				if item.Id == uuid.Nil {
					item.Id = uuid.New()
				}
				if item.CreatedAt.IsZero() {
					item.CreatedAt = now
				}
				if item.NextRetryAt.IsZero() {
					item.NextRetryAt = now
				}
				if _, err := stmt.ExecContext(ctx, item.Id, item.InboxURI, item.ActivityJSON, item.SignerAccountId,
					int(item.Priority), item.Attempts, item.NextRetryAt.UnixNano(), item.CreatedAt); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadPendingDeliveries returns items that are due, normal priority first
func (db *DB) ReadPendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectPendingDeliveries, db.now().UnixNano(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var priority int
		var nextRetry int64
		if err := rows.Scan(&item.Id, &item.InboxURI, &item.ActivityJSON, &item.SignerAccountId,
			&priority, &item.Attempts, &nextRetry, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Priority = domain.DeliveryPriority(priority)
		item.NextRetryAt = time.Unix(0, nextRetry).UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error {
	_, err := db.db.ExecContext(ctx, sqlUpdateDeliveryAttempt, attempts, nextRetry.UnixNano(), id)
	return err
}

func (db *DB) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlDeleteDelivery, id)
	return err
}

func (db *DB) CountDeliveries(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountDeliveries).Scan(&n)
	return n, err
}
