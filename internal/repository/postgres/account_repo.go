package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

// AccountRepo implements AccountRepository and AuthTokenRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `INSERT INTO accounts (id, email, pwd_hash, salt) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Email, a.PwdHash, a.Salt)
	return mapErr(err)
}

// GetByEmail selects an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `SELECT id, email, pwd_hash, salt, created_at FROM accounts WHERE email=$1`
	var a model.Account
	err := r.db.Pool.QueryRow(ctx, q, email).Scan(&a.ID, &a.Email, &a.PwdHash, &a.Salt, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

// UpdatePassword replaces the password hash and salt.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error {
	const q = `UPDATE accounts SET pwd_hash=$2, salt=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SaveReset stores a reset ticket digest.
func (r *AccountRepo) SaveReset(ctx context.Context, pr model.PasswordReset) error {
	const q = `INSERT INTO password_resets (token_hash, account_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, pr.TokenHash, pr.AccountID, pr.ExpiresAt)
	return mapErr(err)
}

// ConsumeReset marks a ticket used exactly once.
func (r *AccountRepo) ConsumeReset(ctx context.Context, digest []byte, now time.Time) (uuid.UUID, error) {
	const q = `
UPDATE password_resets SET used_at=$2
WHERE token_hash=$1 AND used_at IS NULL AND expires_at > $2
RETURNING account_id`
	var id uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, q, digest, now).Scan(&id); err != nil {
		return uuid.Nil, mapErr(err)
	}
	return id, nil
}

// Revoke records a revoked token id; revoking twice is not an error.
func (r *AccountRepo) Revoke(ctx context.Context, tokenID string, exp time.Time) error {
	const q = `INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2) ON CONFLICT (token_id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, tokenID, exp)
	return err
}

// IsRevoked reports whether the token id is revoked.
func (r *AccountRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, tokenID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// PruneExpired removes expired revocations and reset tickets in one transaction.
func (r *AccountRepo) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
		if err != nil {
			return err
		}
		total += tag.RowsAffected()
		tag, err = tx.Exec(ctx, `DELETE FROM password_resets WHERE expires_at <= $1 OR used_at IS NOT NULL`, now)
		if err != nil {
			return err
		}
		total += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
