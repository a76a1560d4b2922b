package db

import (
	"context"
	"database/sql"
)

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts(
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		uri TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		actor_type TEXT NOT NULL DEFAULT 'Person',
		inbox_uri TEXT NOT NULL DEFAULT '',
		shared_inbox_uri TEXT NOT NULL DEFAULT '',
		outbox_uri TEXT NOT NULL DEFAULT '',
		followers_uri TEXT NOT NULL DEFAULT '',
		featured_uri TEXT NOT NULL DEFAULT '',
		also_known_as TEXT NOT NULL DEFAULT '[]',
		public_key_pem TEXT NOT NULL DEFAULT '',
		private_key_pem TEXT NOT NULL DEFAULT '',
		locked INTEGER NOT NULL DEFAULT 0,
		silenced INTEGER NOT NULL DEFAULT 0,
		suspended INTEGER NOT NULL DEFAULT 0,
		moved_to_account_id TEXT,
		last_fetched_at timestamp,
		created_at timestamp NOT NULL,
		UNIQUE(username, domain)
	)`

	sqlCreateStatusesTable = `CREATE TABLE IF NOT EXISTS statuses(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		uri TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		spoiler_text TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		sensitive INTEGER NOT NULL DEFAULT 0,
		in_reply_to_id TEXT,
		in_reply_to_account_id TEXT,
		in_reply_to_uri TEXT NOT NULL DEFAULT '',
		reblog_of_id TEXT,
		quote_of_id TEXT,
		local INTEGER NOT NULL DEFAULT 0,
		created_at timestamp NOT NULL,
		edited_at timestamp
	)`

	sqlCreateMentionsTable = `CREATE TABLE IF NOT EXISTS mentions(
		id TEXT NOT NULL PRIMARY KEY,
		status_id TEXT NOT NULL REFERENCES statuses(id) ON DELETE CASCADE,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		silent INTEGER NOT NULL DEFAULT 0,
		created_at timestamp NOT NULL,
		UNIQUE(status_id, account_id)
	)`

	sqlCreateTombstonesTable = `CREATE TABLE IF NOT EXISTS tombstones(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		uri TEXT NOT NULL UNIQUE,
		by_moderator INTEGER NOT NULL DEFAULT 0,
		created_at timestamp NOT NULL
	)`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		target_account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		uri TEXT NOT NULL DEFAULT '',
		created_at timestamp NOT NULL,
		UNIQUE(account_id, target_account_id)
	)`
	sqlCreateFollowRequestsTable = `CREATE TABLE IF NOT EXISTS follow_requests(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		target_account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		uri TEXT NOT NULL DEFAULT '',
		created_at timestamp NOT NULL,
		UNIQUE(account_id, target_account_id)
	)`
	sqlCreateBlocksTable = `CREATE TABLE IF NOT EXISTS blocks(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		target_account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		uri TEXT NOT NULL DEFAULT '',
		created_at timestamp NOT NULL,
		UNIQUE(account_id, target_account_id)
	)`

	sqlCreateFavouritesTable = `CREATE TABLE IF NOT EXISTS favourites(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		status_id TEXT NOT NULL REFERENCES statuses(id) ON DELETE CASCADE,
		uri TEXT NOT NULL DEFAULT '',
		created_at timestamp NOT NULL,
		UNIQUE(account_id, status_id)
	)`
	sqlCreateStatusPinsTable = `CREATE TABLE IF NOT EXISTS status_pins(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		status_id TEXT NOT NULL REFERENCES statuses(id) ON DELETE CASCADE,
		created_at timestamp NOT NULL,
		UNIQUE(account_id, status_id)
	)`
	sqlCreateReportsTable = `CREATE TABLE IF NOT EXISTS reports(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		target_account_id TEXT NOT NULL,
		status_ids TEXT NOT NULL DEFAULT '[]',
		comment TEXT NOT NULL DEFAULT '',
		uri TEXT NOT NULL DEFAULT '',
		created_at timestamp NOT NULL
	)`
	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications(
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		notification_type TEXT NOT NULL,
		from_account_id TEXT NOT NULL,
		status_id TEXT,
		read INTEGER NOT NULL DEFAULT 0,
		created_at timestamp NOT NULL
	)`
	sqlCreateRelaysTable = `CREATE TABLE IF NOT EXISTS relays(
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL UNIQUE,
		inbox_uri TEXT NOT NULL,
		follow_uri TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'pending',
		created_at timestamp NOT NULL,
		accepted_at timestamp
	)`
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities(
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		delivered_to TEXT NOT NULL DEFAULT '',
		processed INTEGER NOT NULL DEFAULT 0,
		created_at timestamp NOT NULL,
		UNIQUE(activity_uri, actor_uri, delivered_to)
	)`
	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue(
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		signer_account_id TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at INTEGER NOT NULL,
		created_at timestamp NOT NULL
	)`

	sqlCreateMarkersTable = `CREATE TABLE IF NOT EXISTS markers(
		key TEXT NOT NULL PRIMARY KEY,
		expires_at INTEGER NOT NULL
	)`
)

var (
	sqlCreateAccountsIndices = []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_uri ON accounts(uri) WHERE uri != ''`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_inbox ON accounts(inbox_uri)`,
	}
	sqlCreateStatusesIndices = []string{
		`CREATE INDEX IF NOT EXISTS idx_statuses_account ON statuses(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_statuses_reblog ON statuses(reblog_of_id)`,
		`CREATE INDEX IF NOT EXISTS idx_statuses_quote ON statuses(quote_of_id)`,
		`CREATE INDEX IF NOT EXISTS idx_statuses_in_reply_to_uri ON statuses(in_reply_to_uri)`,
	}
	sqlCreateRelationshipIndices = []string{
		`CREATE INDEX IF NOT EXISTS idx_follows_target ON follows(target_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri)`,
		`CREATE INDEX IF NOT EXISTS idx_follow_requests_target ON follow_requests(target_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_follow_requests_uri ON follow_requests(uri)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_uri ON blocks(uri)`,
	}
	sqlCreateDeliveryQueueIndices = []string{
		`CREATE INDEX IF NOT EXISTS idx_delivery_queue_next ON delivery_queue(priority, next_retry_at)`,
	}
)

// RunMigrations creates every table and index that does not exist yet
func (db *DB) RunMigrations(ctx context.Context) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		tables := []struct {
			name string
			sql  string
		}{
			{"accounts", sqlCreateAccountsTable},
			{"statuses", sqlCreateStatusesTable},
			{"mentions", sqlCreateMentionsTable},
			{"tombstones", sqlCreateTombstonesTable},
			{"follows", sqlCreateFollowsTable},
			{"follow_requests", sqlCreateFollowRequestsTable},
			{"blocks", sqlCreateBlocksTable},
			{"favourites", sqlCreateFavouritesTable},
			{"status_pins", sqlCreateStatusPinsTable},
			{"reports", sqlCreateReportsTable},
			{"notifications", sqlCreateNotificationsTable},
			{"relays", sqlCreateRelaysTable},
			{"activities", sqlCreateActivitiesTable},
			{"delivery_queue", sqlCreateDeliveryQueueTable},
			{"markers", sqlCreateMarkersTable},
		}
		for _, t := range tables {
			if err := db.createTableIfNotExists(tx, t.sql, t.name); err != nil {
				return err
			}
		}

		for _, indices := range [][]string{
			sqlCreateAccountsIndices,
			sqlCreateStatusesIndices,
			sqlCreateRelationshipIndices,
			sqlCreateDeliveryQueueIndices,
		} {
			for _, idx := range indices {
				if _, err := tx.Exec(idx); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	if _, err := tx.Exec(createSQL); err != nil {
		db.log.Error("error creating table", "table", tableName, "err", err)
		return err
	}
	db.log.Debug("table created or already exists", "table", tableName)
	return nil
}
