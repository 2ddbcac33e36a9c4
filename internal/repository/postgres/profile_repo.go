package postgres

import (
	"context"
	"errors"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileColumns = `user_id, role, onboarding_completed, approval_status, plan, plan_expiry_date, grace_period_days, has_password, updated_at`

// Get selects the profile of userID.
func (r *ProfileRepo) Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id=$1`
	return scanProfile(r.db.Pool.QueryRow(ctx, q, userID))
}

// Update patches the profile; nil fields keep their stored value.
func (r *ProfileRepo) Update(ctx context.Context, userID uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error) {
	const q = `
UPDATE profiles SET
  onboarding_completed = COALESCE($2::boolean, onboarding_completed),
  approval_status      = COALESCE($3::text, approval_status),
  plan                 = COALESCE($4::text, plan),
  plan_expiry_date     = COALESCE($5::date, plan_expiry_date),
  has_password         = COALESCE($6::boolean, has_password),
  updated_at           = now()
WHERE user_id = $1
RETURNING ` + profileColumns

	var status *string
	if upd.ApprovalStatus != nil {
		s := string(*upd.ApprovalStatus)
		status = &s
	}
	return scanProfile(r.db.Pool.QueryRow(ctx, q,
		userID, upd.OnboardingCompleted, status, upd.Plan, upd.PlanExpiryDate, upd.HasPassword))
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		p      model.Profile
		role   string
		status string
	)
	err := row.Scan(&p.UserID, &role, &p.OnboardingCompleted, &status,
		&p.Plan, &p.PlanExpiryDate, &p.GracePeriodDays, &p.HasPassword, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	p.Role = model.Role(role)
	p.ApprovalStatus = model.ApprovalStatus(status)
	return &p, nil
}

// SettingsRepo implements SettingsRepository using PostgreSQL.
type SettingsRepo struct{ db *DB }

// NewSettingsRepo constructs a settings repository.
func NewSettingsRepo(db *DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get selects a single global setting.
func (r *SettingsRepo) Get(ctx context.Context, key string) (model.GlobalSetting, error) {
	const q = `SELECT key, value FROM global_settings WHERE key=$1`
	var s model.GlobalSetting
	if err := r.db.Pool.QueryRow(ctx, q, key).Scan(&s.Key, &s.Value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GlobalSetting{}, errs.ErrNotFound
		}
		return model.GlobalSetting{}, err
	}
	return s, nil
}
