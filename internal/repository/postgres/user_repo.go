package postgres

import (
	"context"
	"errors"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts the user and its profile in one transaction.
func (r *UserRepo) Create(ctx context.Context, u *model.User, p *model.Profile) error {
	const insUser = `
INSERT INTO users (id, username, provider, pwd_hash, salt_auth)
VALUES ($1, $2, $3, $4, $5)`
	const insProfile = `
INSERT INTO profiles (user_id, role, onboarding_completed, approval_status, has_password)
VALUES ($1, $2, $3, $4, $5)`

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insUser, u.ID, u.Username, string(u.Provider), u.PwdHash, u.SaltAuth); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insProfile, u.ID, string(p.Role), p.OnboardingCompleted, string(p.ApprovalStatus), p.HasPassword)
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

const selectUser = `
SELECT id, username, provider, pwd_hash, salt_auth, created_at
FROM users`

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectUser+` WHERE id=$1`, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectUser+` WHERE username=$1`, username))
}

func (r *UserRepo) scanOne(row pgx.Row) (*model.User, error) {
	var (
		u        model.User
		provider string
	)
	if err := row.Scan(&u.ID, &u.Username, &provider, &u.PwdHash, &u.SaltAuth, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.Provider = model.Provider(provider)
	return &u, nil
}

// SetPassword stores a new password hash.
func (r *UserRepo) SetPassword(ctx context.Context, id uuid.UUID, pwdHash, salt []byte) error {
	const q = `UPDATE users SET pwd_hash = $2, salt_auth = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, pwdHash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
