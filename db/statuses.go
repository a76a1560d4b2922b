package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

const (
	statusColumns = `statuses.id, statuses.account_id, statuses.uri, statuses.url, statuses.text, statuses.spoiler_text,
		statuses.visibility, statuses.sensitive, statuses.in_reply_to_id, statuses.in_reply_to_account_id,
		statuses.in_reply_to_uri, statuses.reblog_of_id, statuses.quote_of_id, statuses.local,
		statuses.created_at, statuses.edited_at`

	// the insert is skipped when the uri has been tombstoned or already exists
	sqlInsertStatus = `INSERT INTO statuses(id, account_id, uri, url, text, spoiler_text, visibility, sensitive,
		in_reply_to_id, in_reply_to_account_id, in_reply_to_uri, reblog_of_id, quote_of_id, local, created_at, edited_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM tombstones WHERE uri = ?)
		ON CONFLICT(uri) DO NOTHING`
	sqlLinkOrphanReplies = `UPDATE statuses SET in_reply_to_id = ?, in_reply_to_account_id = ?
		WHERE in_reply_to_uri = ? AND in_reply_to_id IS NULL AND id != ?`
	sqlUpdateStatus = `UPDATE statuses SET text = ?, spoiler_text = ?, sensitive = ?, edited_at = ? WHERE id = ?`

	sqlSelectStatusById            = `SELECT ` + statusColumns + ` FROM statuses WHERE id = ?`
	sqlSelectStatusByURI           = `SELECT ` + statusColumns + ` FROM statuses WHERE uri = ?`
	sqlSelectStatusByURIAndAccount = `SELECT ` + statusColumns + ` FROM statuses WHERE uri = ? AND account_id = ?`
	sqlSelectReblog                = `SELECT ` + statusColumns + ` FROM statuses WHERE account_id = ? AND reblog_of_id = ?`
	sqlSelectChildReplies          = `SELECT ` + statusColumns + ` FROM statuses WHERE in_reply_to_id = ? ORDER BY created_at`
	sqlSelectReblogIds             = `SELECT id FROM statuses WHERE reblog_of_id = ?`
	sqlSelectLocalRebloggers       = `SELECT statuses.account_id FROM statuses
		INNER JOIN accounts ON accounts.id = statuses.account_id
		WHERE accounts.domain = '' AND (statuses.reblog_of_id = ? OR statuses.quote_of_id = ?)
		GROUP BY statuses.account_id ORDER BY MIN(statuses.created_at)`
	sqlCountLocalStatuses = `SELECT COUNT(*) FROM statuses WHERE local = 1 AND reblog_of_id IS NULL`

	sqlInsertMention  = `INSERT OR IGNORE INTO mentions(id, status_id, account_id, silent, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlDeleteMentions = `DELETE FROM mentions WHERE status_id = ?`
	sqlSelectMentions = `SELECT id, status_id, account_id, silent, created_at FROM mentions WHERE status_id = ? ORDER BY created_at, id`

	sqlInsertTombstone  = `INSERT OR IGNORE INTO tombstones(id, account_id, uri, by_moderator, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlCountTombstones  = `SELECT COUNT(*) FROM tombstones WHERE uri = ?`
	sqlDeleteStatusRows = `DELETE FROM statuses WHERE id = ?`
)

// rows hanging off a status that go with it
var statusDependents = []string{
	`DELETE FROM mentions WHERE status_id = ?`,
	`DELETE FROM favourites WHERE status_id = ?`,
	`DELETE FROM status_pins WHERE status_id = ?`,
	`DELETE FROM notifications WHERE status_id = ?`,
}

func scanStatus(s scanner) (*domain.Status, error) {
	var st domain.Status
	var visibility string
	var inReplyTo, inReplyToAccount, reblogOf, quoteOf uuid.NullUUID
	var editedAt sql.NullTime

	err := s.Scan(&st.Id, &st.AccountId, &st.URI, &st.URL, &st.Text, &st.SpoilerText, &visibility, &st.Sensitive,
		&inReplyTo, &inReplyToAccount, &st.InReplyToURI, &reblogOf, &quoteOf, &st.Local, &st.CreatedAt, &editedAt)
	if err != nil {
		return nil, err
	}
	st.Visibility = domain.Visibility(visibility)
	st.InReplyToId = fromNullUUID(inReplyTo)
	st.InReplyToAccountId = fromNullUUID(inReplyToAccount)
	st.ReblogOfId = fromNullUUID(reblogOf)
	st.QuoteOfId = fromNullUUID(quoteOf)
	st.EditedAt = fromNullTime(editedAt)
	return &st, nil
}

func insertMentions(ctx context.Context, tx *sql.Tx, statusID uuid.UUID, mentions []domain.Mention, now func() time.Time) error {
	for _, m := range mentions {
		if m.Id == uuid.Nil {
			m.Id = uuid.New()
		}
		if _, err := tx.ExecContext(ctx, sqlInsertMention, m.Id, statusID, m.AccountId, m.Silent, now()); err != nil {
			return err
		}
	}
	return nil
}

// InsertStatus stores a status together with its mentions and links any
// replies that arrived before it. It returns false without error when the
// uri already exists or has been tombstoned.
func (db *DB) InsertStatus(ctx context.Context, s *domain.Status, mentions []domain.Mention) (bool, error) {
	if s.Id == uuid.Nil {
		s.Id = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = db.now()
	}
	if s.Visibility == "" {
		s.Visibility = domain.VisibilityPublic
	}

	created := false
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertStatus,
			s.Id, s.AccountId, s.URI, s.URL, s.Text, s.SpoilerText, string(s.Visibility), s.Sensitive,
			nullUUID(s.InReplyToId), nullUUID(s.InReplyToAccountId), s.InReplyToURI, nullUUID(s.ReblogOfId),
			nullUUID(s.QuoteOfId), s.Local, s.CreatedAt, nullTime(s.EditedAt), s.URI)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		created = true

		if err := insertMentions(ctx, tx, s.Id, mentions, db.now); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, sqlLinkOrphanReplies, s.Id, s.AccountId, s.URI, s.Id)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// UpdateStatus rewrites the editable fields of a status and replaces its mentions
func (db *DB) UpdateStatus(ctx context.Context, s *domain.Status, mentions []domain.Mention) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlUpdateStatus, s.Text, s.SpoilerText, s.Sensitive, nullTime(s.EditedAt), s.Id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlDeleteMentions, s.Id); err != nil {
			return err
		}
		return insertMentions(ctx, tx, s.Id, mentions, db.now)
	})
}

// RemoveStatus deletes a status, its reblogs and everything attached to them.
// When tombstone is given it is recorded in the same transaction.
func (db *DB) RemoveStatus(ctx context.Context, s *domain.Status, tombstone *domain.Tombstone) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		ids := []uuid.UUID{s.Id}

		rows, err := tx.QueryContext(ctx, sqlSelectReblogIds, s.Id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			for _, stmt := range statusDependents {
				if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx, sqlDeleteStatusRows, id); err != nil {
				return err
			}
		}

		if tombstone != nil {
			return insertTombstone(ctx, tx, tombstone, db.now)
		}
		return nil
	})
}

func (db *DB) FindStatusByID(ctx context.Context, id uuid.UUID) (*domain.Status, error) {
	return optional(scanStatus(db.db.QueryRowContext(ctx, sqlSelectStatusById, id)))
}

func (db *DB) FindStatusByURI(ctx context.Context, uri string) (*domain.Status, error) {
	return optional(scanStatus(db.db.QueryRowContext(ctx, sqlSelectStatusByURI, uri)))
}

func (db *DB) FindStatusByURIAndAccount(ctx context.Context, uri string, accountID uuid.UUID) (*domain.Status, error) {
	return optional(scanStatus(db.db.QueryRowContext(ctx, sqlSelectStatusByURIAndAccount, uri, accountID)))
}

// FindReblog returns accountID's reblog of the given status, if any
func (db *DB) FindReblog(ctx context.Context, accountID, reblogOfID uuid.UUID) (*domain.Status, error) {
	return optional(scanStatus(db.db.QueryRowContext(ctx, sqlSelectReblog, accountID, reblogOfID)))
}

// Replies returns the direct replies to a status, oldest first
func (db *DB) Replies(ctx context.Context, statusID uuid.UUID) ([]domain.Status, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectChildReplies, statusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []domain.Status
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	return statuses, rows.Err()
}

func (db *DB) Mentions(ctx context.Context, statusID uuid.UUID) ([]domain.Mention, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectMentions, statusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mentions []domain.Mention
	for rows.Next() {
		var m domain.Mention
		if err := rows.Scan(&m.Id, &m.StatusId, &m.AccountId, &m.Silent, &m.CreatedAt); err != nil {
			return nil, err
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// LocalReblogAndQuoteAccountIDs returns the local accounts that reblogged or
// quoted a status, in the order they first did so
func (db *DB) LocalReblogAndQuoteAccountIDs(ctx context.Context, statusID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectLocalRebloggers, statusID, statusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) CountLocalStatuses(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountLocalStatuses).Scan(&n)
	return n, err
}

func insertTombstone(ctx context.Context, tx *sql.Tx, t *domain.Tombstone, now func() time.Time) error {
	if t.Id == uuid.Nil {
		t.Id = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	_, err := tx.ExecContext(ctx, sqlInsertTombstone, t.Id, t.AccountId, t.URI, t.ByModerator, t.CreatedAt)
	return err
}

// InsertTombstone records a tombstone unless one exists for the uri already
func (db *DB) InsertTombstone(ctx context.Context, t *domain.Tombstone) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return insertTombstone(ctx, tx, t, db.now)
	})
}

func (db *DB) TombstoneExists(ctx context.Context, uri string) (bool, error) {
	n, err := db.CountTombstones(ctx, uri)
	return n > 0, err
}

func (db *DB) CountTombstones(ctx context.Context, uri string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountTombstones, uri).Scan(&n)
	return n, err
}
