package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

const (
	accountColumns = `accounts.id, accounts.username, accounts.domain, accounts.uri, accounts.url, accounts.display_name,
		accounts.summary, accounts.actor_type, accounts.inbox_uri, accounts.shared_inbox_uri, accounts.outbox_uri,
		accounts.followers_uri, accounts.featured_uri, accounts.also_known_as, accounts.public_key_pem,
		accounts.private_key_pem, accounts.locked, accounts.silenced, accounts.suspended,
		accounts.moved_to_account_id, accounts.last_fetched_at, accounts.created_at`

	sqlInsertAccount = `INSERT INTO accounts(id, username, domain, uri, url, display_name, summary, actor_type,
		inbox_uri, shared_inbox_uri, outbox_uri, followers_uri, featured_uri, also_known_as, public_key_pem,
		private_key_pem, locked, silenced, suspended, moved_to_account_id, last_fetched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateRemoteAccount = `UPDATE accounts SET username = ?, url = ?, display_name = ?, summary = ?, actor_type = ?,
		inbox_uri = ?, shared_inbox_uri = ?, outbox_uri = ?, followers_uri = ?, featured_uri = ?, also_known_as = ?,
		public_key_pem = ?, locked = ?, last_fetched_at = ? WHERE id = ?`
	sqlSelectAccountById    = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	sqlSelectAccountByURI   = `SELECT ` + accountColumns + ` FROM accounts WHERE uri = ? AND domain != ''`
	sqlSelectLocalAccount   = `SELECT ` + accountColumns + ` FROM accounts WHERE domain = '' AND username = ? COLLATE NOCASE`
	sqlUpdateAccountMovedTo = `UPDATE accounts SET moved_to_account_id = ? WHERE id = ?`
	sqlUpdateAccountFlags   = `UPDATE accounts SET silenced = ?, suspended = ? WHERE id = ?`

	sqlSelectMentionedAccounts = `SELECT ` + accountColumns + ` FROM accounts
		INNER JOIN mentions ON mentions.account_id = accounts.id
		WHERE mentions.status_id = ? ORDER BY mentions.created_at, mentions.id`
	sqlSelectLocalFollowers = `SELECT ` + accountColumns + ` FROM accounts
		INNER JOIN follows ON follows.account_id = accounts.id
		WHERE follows.target_account_id = ? AND accounts.domain = ''
		ORDER BY follows.created_at, follows.id`
	sqlCountLocalFollowers = `SELECT COUNT(*) FROM follows
		INNER JOIN accounts ON accounts.id = follows.account_id
		WHERE follows.target_account_id = ? AND accounts.domain = ''`
	sqlCountLocalAccounts = `SELECT COUNT(*) FROM accounts WHERE domain = '' AND actor_type != 'Application'`
)

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var actorType, aka string
	var movedTo uuid.NullUUID
	var lastFetched sql.NullTime

	err := s.Scan(&a.Id, &a.Username, &a.Domain, &a.URI, &a.URL, &a.DisplayName, &a.Summary, &actorType,
		&a.InboxURI, &a.SharedInboxURI, &a.OutboxURI, &a.FollowersURI, &a.FeaturedURI, &aka, &a.PublicKeyPem,
		&a.PrivateKeyPem, &a.Locked, &a.Silenced, &a.Suspended, &movedTo, &lastFetched, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.ActorType = domain.ActorType(actorType)
	a.MovedToId = fromNullUUID(movedTo)
	if lastFetched.Valid {
		a.LastFetchedAt = lastFetched.Time
	}
	if aka != "" {
		if err := json.Unmarshal([]byte(aka), &a.AlsoKnownAs); err != nil {
			return nil, fmt.Errorf("account %s also_known_as: %w", a.Id, err)
		}
	}
	return &a, nil
}

func scanAccounts(rows *sql.Rows) ([]domain.Account, error) {
	defer rows.Close()
	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func encodeAliases(aka []string) string {
	if len(aka) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(aka)
	return string(b)
}

// InsertAccount stores a new account. Id and CreatedAt are filled in when zero.
func (db *DB) InsertAccount(ctx context.Context, a *domain.Account) error {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = db.now()
	}
	if a.ActorType == "" {
		a.ActorType = domain.ActorPerson
	}
	var lastFetched sql.NullTime
	if !a.LastFetchedAt.IsZero() {
		lastFetched = sql.NullTime{Time: a.LastFetchedAt, Valid: true}
	}
	_, err := db.db.ExecContext(ctx, sqlInsertAccount,
		a.Id, a.Username, a.Domain, a.URI, a.URL, a.DisplayName, a.Summary, string(a.ActorType),
		a.InboxURI, a.SharedInboxURI, a.OutboxURI, a.FollowersURI, a.FeaturedURI, encodeAliases(a.AlsoKnownAs),
		a.PublicKeyPem, a.PrivateKeyPem, a.Locked, a.Silenced, a.Suspended, nullUUID(a.MovedToId),
		lastFetched, a.CreatedAt)
	return err
}

func (db *DB) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return optional(scanAccount(db.db.QueryRowContext(ctx, sqlSelectAccountById, id)))
}

// FindAccountByURI looks up a remote account by its actor URI
func (db *DB) FindAccountByURI(ctx context.Context, uri string) (*domain.Account, error) {
	return optional(scanAccount(db.db.QueryRowContext(ctx, sqlSelectAccountByURI, uri)))
}

// FindLocalAccount looks up a local account by username, case-insensitively
func (db *DB) FindLocalAccount(ctx context.Context, username string) (*domain.Account, error) {
	return optional(scanAccount(db.db.QueryRowContext(ctx, sqlSelectLocalAccount, username)))
}

// UpsertRemoteAccount creates or refreshes the remote account identified by
// a.URI and returns the stored row
func (db *DB) UpsertRemoteAccount(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	if a.URI == "" || a.Domain == "" {
		return nil, fmt.Errorf("remote account needs uri and domain")
	}
	var stored *domain.Account
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		existing, err := optional(scanAccount(tx.QueryRowContext(ctx, sqlSelectAccountByURI, a.URI)))
		if err != nil {
			return err
		}
		if existing == nil {
			if a.Id == uuid.Nil {
				a.Id = uuid.New()
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = db.now()
			}
			if a.ActorType == "" {
				a.ActorType = domain.ActorPerson
			}
			_, err = tx.ExecContext(ctx, sqlInsertAccount,
				a.Id, a.Username, a.Domain, a.URI, a.URL, a.DisplayName, a.Summary, string(a.ActorType),
				a.InboxURI, a.SharedInboxURI, a.OutboxURI, a.FollowersURI, a.FeaturedURI, encodeAliases(a.AlsoKnownAs),
				a.PublicKeyPem, "", a.Locked, a.Silenced, a.Suspended, nullUUID(a.MovedToId),
				a.LastFetchedAt, a.CreatedAt)
			if err != nil {
				return err
			}
			copied := *a
			stored = &copied
			return nil
		}

		_, err = tx.ExecContext(ctx, sqlUpdateRemoteAccount,
			a.Username, a.URL, a.DisplayName, a.Summary, string(a.ActorType), a.InboxURI, a.SharedInboxURI,
			a.OutboxURI, a.FollowersURI, a.FeaturedURI, encodeAliases(a.AlsoKnownAs), a.PublicKeyPem, a.Locked,
			a.LastFetchedAt, existing.Id)
		if err != nil {
			return err
		}
		stored, err = scanAccount(tx.QueryRowContext(ctx, sqlSelectAccountById, existing.Id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (db *DB) UpdateAccountMovedTo(ctx context.Context, id, movedTo uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlUpdateAccountMovedTo, movedTo, id)
	return err
}

// SetAccountFlags updates the moderation state of an account
func (db *DB) SetAccountFlags(ctx context.Context, id uuid.UUID, silenced, suspended bool) error {
	_, err := db.db.ExecContext(ctx, sqlUpdateAccountFlags, silenced, suspended, id)
	return err
}

// MentionedAccounts returns the accounts a status mentions, in mention order
func (db *DB) MentionedAccounts(ctx context.Context, statusID uuid.UUID) ([]domain.Account, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectMentionedAccounts, statusID)
	if err != nil {
		return nil, err
	}
	return scanAccounts(rows)
}

// LocalFollowers returns the local accounts following accountID, oldest first
func (db *DB) LocalFollowers(ctx context.Context, accountID uuid.UUID) ([]domain.Account, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectLocalFollowers, accountID)
	if err != nil {
		return nil, err
	}
	return scanAccounts(rows)
}

// FirstLocalFollower returns the longest-standing local follower of accountID
func (db *DB) FirstLocalFollower(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return optional(scanAccount(db.db.QueryRowContext(ctx, sqlSelectLocalFollowers+" LIMIT 1", accountID)))
}

func (db *DB) HasLocalFollowers(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var n int
	if err := db.db.QueryRowContext(ctx, sqlCountLocalFollowers, accountID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountLocalAccounts counts local users. The instance actor is not one.
func (db *DB) CountLocalAccounts(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountLocalAccounts).Scan(&n)
	return n, err
}

// FollowerInboxes returns the distinct preferred inboxes of remote accounts
// following any of targetIDs
func (db *DB) FollowerInboxes(ctx context.Context, targetIDs []uuid.UUID) ([]string, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT CASE WHEN accounts.shared_inbox_uri != '' THEN accounts.shared_inbox_uri ELSE accounts.inbox_uri END
		FROM accounts INNER JOIN follows ON follows.account_id = accounts.id
		WHERE accounts.domain != '' AND accounts.inbox_uri != '' AND follows.target_account_id IN (` + placeholders(len(targetIDs)) + `)
		ORDER BY 1`
	rows, err := db.db.QueryContext(ctx, query, uuidArgs(targetIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inboxes []string
	for rows.Next() {
		var inbox string
		if err := rows.Scan(&inbox); err != nil {
			return nil, err
		}
		inboxes = append(inboxes, inbox)
	}
	return inboxes, rows.Err()
}

// FilterFollowers returns the subset of candidates that follow targetID
func (db *DB) FilterFollowers(ctx context.Context, targetID uuid.UUID, candidates []uuid.UUID) ([]uuid.UUID, error) {
	return db.filterRelation(ctx, "follows", targetID, candidates)
}

// FilterFollowRequesters returns the subset of candidates with a pending
// follow request to targetID
func (db *DB) FilterFollowRequesters(ctx context.Context, targetID uuid.UUID, candidates []uuid.UUID) ([]uuid.UUID, error) {
	return db.filterRelation(ctx, "follow_requests", targetID, candidates)
}

func (db *DB) filterRelation(ctx context.Context, table string, targetID uuid.UUID, candidates []uuid.UUID) ([]uuid.UUID, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	query := `SELECT account_id FROM ` + table + ` WHERE target_account_id = ? AND account_id IN (` + placeholders(len(candidates)) + `)`
	args := append([]any{targetID}, uuidArgs(candidates)...)
	rows, err := db.db.QueryContext(ctx, query, args...)
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func uuidArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
