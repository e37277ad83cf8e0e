package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// TokenRepo persists refresh tokens keyed by their SHA-256 hash.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenCols = "token_hash, user_id, expires_at, revoked_at, replaced_by_hash, created_at"

type rowScanner interface{ Scan(...interface{}) error }

func scanToken(row rowScanner, t *model.RefreshToken) error {
	var (
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	if err := row.Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &revokedAt, &replacedBy, &t.CreatedAt); err != nil {
		return err
	}
	if revokedAt.Valid {
		ts := revokedAt.Time
		t.RevokedAt = &ts
	}
	if replacedBy.Valid {
		h := replacedBy.String
		t.ReplacedByHash = &h
	}
	return nil
}

// Create inserts an active refresh token row.  A primary key collision is
// reported as ErrDuplicate so callers can regenerate the token.
func (r *TokenRepo) Create(ctx context.Context, t model.RefreshToken) error {
	return insertToken(ctx, r.DB, t)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, t model.RefreshToken) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES (?,?,?)",
		t.TokenHash, t.UserID, t.ExpiresAt.UTC())
	if isDuplicate(err, "") {
		return ErrDuplicate
	}
	return err
}

// Get returns the token row for hash.
func (r *TokenRepo) Get(ctx context.Context, hash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := scanToken(r.DB.QueryRowContext(ctx,
		"SELECT "+tokenCols+" FROM refresh_tokens WHERE token_hash=? LIMIT 1", hash), &t)
	return t, notFound(err)
}

// Rotate atomically replaces the active token oldHash with next: the new row
// is inserted and the old one is marked revoked and linked to it inside one
// transaction, with the old row locked for the duration.  When oldHash
// exists but is not active at now, the row is returned together with
// ErrTokenInactive and nothing is written.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash string, next model.RefreshToken, now time.Time) (model.RefreshToken, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.RefreshToken{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var old model.RefreshToken
	err = scanToken(tx.QueryRowContext(ctx,
		"SELECT "+tokenCols+" FROM refresh_tokens WHERE token_hash=? FOR UPDATE", oldHash), &old)
	if err != nil {
		return model.RefreshToken{}, notFound(err)
	}
	if !old.Active(now) {
		return old, ErrTokenInactive
	}
	next.UserID = old.UserID
	if err := insertToken(ctx, tx, next); err != nil {
		return old, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=?, replaced_by_hash=? WHERE token_hash=?",
		now.UTC(), next.TokenHash, oldHash); err != nil {
		return old, err
	}
	if err := tx.Commit(); err != nil {
		return old, err
	}
	committed = true
	return old, nil
}

// Revoke marks an active token revoked.  It reports whether a row changed;
// revoking an inactive or unknown token is not an error.
func (r *TokenRepo) Revoke(ctx context.Context, hash string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL AND expires_at > ?",
		now.UTC(), hash, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RevokeChain revokes fromHash and every token reachable from it through
// replaced_by_hash links.  It returns how many rows it revoked.
func (r *TokenRepo) RevokeChain(ctx context.Context, fromHash string, now time.Time) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	revoked := 0
	seen := map[string]bool{}
	for hash := fromHash; hash != "" && !seen[hash]; {
		seen[hash] = true
		var next sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT replaced_by_hash FROM refresh_tokens WHERE token_hash=? FOR UPDATE", hash).Scan(&next)
		if err != nil {
			if err == sql.ErrNoRows {
				break
			}
			return 0, err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
			now.UTC(), hash)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			revoked++
		}
		hash = next.String
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return revoked, nil
}

// RevokeAllForUser revokes all of a user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		now.UTC(), userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Sweep deletes revoked rows that expired before cutoff.
func (r *TokenRepo) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL AND expires_at < ?",
		cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
