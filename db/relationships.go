package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

// follows, follow_requests and blocks share one row shape
type relation struct {
	Id              uuid.UUID
	AccountId       uuid.UUID
	TargetAccountId uuid.UUID
	URI             string
	CreatedAt       time.Time
}

const relationColumns = `id, account_id, target_account_id, uri, created_at`

func scanRelation(s scanner) (*relation, error) {
	var r relation
	if err := s.Scan(&r.Id, &r.AccountId, &r.TargetAccountId, &r.URI, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) findRelation(ctx context.Context, q queryer, table string, accountID, targetID uuid.UUID) (*relation, error) {
	query := `SELECT ` + relationColumns + ` FROM ` + table + ` WHERE account_id = ? AND target_account_id = ?`
	return optional(scanRelation(q.QueryRowContext(ctx, query, accountID, targetID)))
}

func (db *DB) findRelationByURI(ctx context.Context, table, column string, id uuid.UUID, uri string) (*relation, error) {
	query := `SELECT ` + relationColumns + ` FROM ` + table + ` WHERE ` + column + ` = ? AND uri = ?`
	return optional(scanRelation(db.db.QueryRowContext(ctx, query, id, uri)))
}

func insertRelation(ctx context.Context, q queryer, table string, r *relation) error {
	query := `INSERT INTO ` + table + `(` + relationColumns + `) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, target_account_id) DO UPDATE SET uri = excluded.uri`
	_, err := q.ExecContext(ctx, query, r.Id, r.AccountId, r.TargetAccountId, r.URI, r.CreatedAt)
	return err
}

func (db *DB) newRelation(accountID, targetID uuid.UUID, uri string) *relation {
	return &relation{Id: uuid.New(), AccountId: accountID, TargetAccountId: targetID, URI: uri, CreatedAt: db.now()}
}

func (db *DB) deleteRelation(ctx context.Context, table string, id uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	return err
}

func (db *DB) updateRelationURI(ctx context.Context, table string, id uuid.UUID, uri string) error {
	_, err := db.db.ExecContext(ctx, `UPDATE `+table+` SET uri = ? WHERE id = ?`, uri, id)
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func toFollow(r *relation) *domain.Follow {
	if r == nil {
		return nil
	}
	return &domain.Follow{Id: r.Id, AccountId: r.AccountId, TargetAccountId: r.TargetAccountId, URI: r.URI, CreatedAt: r.CreatedAt}
}

func toFollowRequest(r *relation) *domain.FollowRequest {
	if r == nil {
		return nil
	}
	return &domain.FollowRequest{Id: r.Id, AccountId: r.AccountId, TargetAccountId: r.TargetAccountId, URI: r.URI, CreatedAt: r.CreatedAt}
}

func toBlock(r *relation) *domain.Block {
	if r == nil {
		return nil
	}
	return &domain.Block{Id: r.Id, AccountId: r.AccountId, TargetAccountId: r.TargetAccountId, URI: r.URI, CreatedAt: r.CreatedAt}
}

// Follows

func (db *DB) FindFollow(ctx context.Context, accountID, targetID uuid.UUID) (*domain.Follow, error) {
	r, err := db.findRelation(ctx, db.db, "follows", accountID, targetID)
	return toFollow(r), err
}

// FindFollowByURI finds a follow made by accountID with the given activity uri
func (db *DB) FindFollowByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.Follow, error) {
	r, err := db.findRelationByURI(ctx, "follows", "account_id", accountID, uri)
	return toFollow(r), err
}

// FindFollowOfTargetByURI finds a follow of targetID with the given activity uri
func (db *DB) FindFollowOfTargetByURI(ctx context.Context, targetID uuid.UUID, uri string) (*domain.Follow, error) {
	r, err := db.findRelationByURI(ctx, "follows", "target_account_id", targetID, uri)
	return toFollow(r), err
}

// CreateFollow stores a follow, updating the uri of an existing one
func (db *DB) CreateFollow(ctx context.Context, accountID, targetID uuid.UUID, uri string) (*domain.Follow, error) {
	r := db.newRelation(accountID, targetID, uri)
	if err := insertRelation(ctx, db.db, "follows", r); err != nil {
		return nil, err
	}
	return db.FindFollow(ctx, accountID, targetID)
}

func (db *DB) UpdateFollowURI(ctx context.Context, id uuid.UUID, uri string) error {
	return db.updateRelationURI(ctx, "follows", id, uri)
}

func (db *DB) DeleteFollow(ctx context.Context, id uuid.UUID) error {
	return db.deleteRelation(ctx, "follows", id)
}

// RevokeFollow turns an accepted follow back into a pending request
func (db *DB) RevokeFollow(ctx context.Context, f *domain.Follow) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM follows WHERE id = ?`, f.Id); err != nil {
			return err
		}
		return insertRelation(ctx, tx, "follow_requests", db.newRelation(f.AccountId, f.TargetAccountId, f.URI))
	})
}

// Follow requests

func (db *DB) FindFollowRequest(ctx context.Context, accountID, targetID uuid.UUID) (*domain.FollowRequest, error) {
	r, err := db.findRelation(ctx, db.db, "follow_requests", accountID, targetID)
	return toFollowRequest(r), err
}

// FindFollowRequestByURI finds a request made by accountID with the given uri
func (db *DB) FindFollowRequestByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.FollowRequest, error) {
	r, err := db.findRelationByURI(ctx, "follow_requests", "account_id", accountID, uri)
	return toFollowRequest(r), err
}

// FindFollowRequestOfTargetByURI finds a request to targetID with the given uri
func (db *DB) FindFollowRequestOfTargetByURI(ctx context.Context, targetID uuid.UUID, uri string) (*domain.FollowRequest, error) {
	r, err := db.findRelationByURI(ctx, "follow_requests", "target_account_id", targetID, uri)
	return toFollowRequest(r), err
}

func (db *DB) CreateFollowRequest(ctx context.Context, accountID, targetID uuid.UUID, uri string) (*domain.FollowRequest, error) {
	r := db.newRelation(accountID, targetID, uri)
	if err := insertRelation(ctx, db.db, "follow_requests", r); err != nil {
		return nil, err
	}
	return db.FindFollowRequest(ctx, accountID, targetID)
}

func (db *DB) UpdateFollowRequestURI(ctx context.Context, id uuid.UUID, uri string) error {
	return db.updateRelationURI(ctx, "follow_requests", id, uri)
}

func (db *DB) DeleteFollowRequest(ctx context.Context, id uuid.UUID) error {
	return db.deleteRelation(ctx, "follow_requests", id)
}

// AuthorizeFollowRequest replaces a request with an accepted follow
func (db *DB) AuthorizeFollowRequest(ctx context.Context, fr *domain.FollowRequest) (*domain.Follow, error) {
	follow := db.newRelation(fr.AccountId, fr.TargetAccountId, fr.URI)
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM follow_requests WHERE id = ?`, fr.Id); err != nil {
			return err
		}
		return insertRelation(ctx, tx, "follows", follow)
	})
	if err != nil {
		return nil, err
	}
	return db.FindFollow(ctx, fr.AccountId, fr.TargetAccountId)
}

// Blocks

func (db *DB) FindBlock(ctx context.Context, accountID, targetID uuid.UUID) (*domain.Block, error) {
	r, err := db.findRelation(ctx, db.db, "blocks", accountID, targetID)
	return toBlock(r), err
}

func (db *DB) FindBlockByURI(ctx context.Context, accountID uuid.UUID, uri string) (*domain.Block, error) {
	r, err := db.findRelationByURI(ctx, "blocks", "account_id", accountID, uri)
	return toBlock(r), err
}

func (db *DB) CreateBlock(ctx context.Context, accountID, targetID uuid.UUID, uri string) (*domain.Block, error) {
	r := db.newRelation(accountID, targetID, uri)
	if err := insertRelation(ctx, db.db, "blocks", r); err != nil {
		return nil, err
	}
	return db.FindBlock(ctx, accountID, targetID)
}

func (db *DB) UpdateBlockURI(ctx context.Context, id uuid.UUID, uri string) error {
	return db.updateRelationURI(ctx, "blocks", id, uri)
}

func (db *DB) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	return db.deleteRelation(ctx, "blocks", id)
}

// DeleteAccountContent removes everything an account created and marks it
// suspended, in one transaction
func (db *DB) DeleteAccountContent(ctx context.Context, accountID uuid.UUID) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM mentions WHERE status_id IN (SELECT id FROM statuses WHERE account_id = ?1)
				OR status_id IN (SELECT id FROM statuses WHERE reblog_of_id IN (SELECT id FROM statuses WHERE account_id = ?1))`,
			`DELETE FROM favourites WHERE account_id = ?1 OR status_id IN (SELECT id FROM statuses WHERE account_id = ?1)`,
			`DELETE FROM status_pins WHERE account_id = ?1`,
			`DELETE FROM notifications WHERE from_account_id = ?1`,
			`DELETE FROM statuses WHERE reblog_of_id IN (SELECT id FROM statuses WHERE account_id = ?1)`,
			`DELETE FROM statuses WHERE account_id = ?1`,
			`DELETE FROM follows WHERE account_id = ?1 OR target_account_id = ?1`,
			`DELETE FROM follow_requests WHERE account_id = ?1 OR target_account_id = ?1`,
			`DELETE FROM blocks WHERE account_id = ?1 OR target_account_id = ?1`,
			`UPDATE accounts SET suspended = 1 WHERE id = ?1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, accountID); err != nil {
				return err
			}
		}
		return nil
	})
}
