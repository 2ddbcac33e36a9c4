package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var profileCols = []string{"user_id", "role", "onboarding_completed", "approval_status", "plan",
	"plan_expiry_date", "grace_period_days", "has_password", "updated_at"}

func TestProfileRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	plan := "gold"
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	grace := 3

	mock.ExpectQuery(`SELECT user_id, role, .* FROM profiles WHERE user_id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(profileCols).
			AddRow(id, "admin", true, "approved", &plan, &exp, &grace, true, time.Now()))
	p, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, p.Role)
	require.Equal(t, model.ApprovalApproved, p.ApprovalStatus)
	require.Equal(t, "gold", *p.Plan)
	require.True(t, exp.Equal(*p.PlanExpiryDate))
	require.Equal(t, 3, *p.GracePeriodDays)

	mock.ExpectQuery(`SELECT user_id, role, .* FROM profiles WHERE user_id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestProfileRepo_UpdatePartial(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	id := uuid.Must(uuid.NewV4())
	yes := true
	approved := model.ApprovalApproved
	status := "approved"

	mock.ExpectQuery(`UPDATE profiles SET`).
		WithArgs(id, &yes, &status, (*string)(nil), (*time.Time)(nil), (*bool)(nil)).
		WillReturnRows(pgxmock.NewRows(profileCols).
			AddRow(id, "user", true, "approved", nil, nil, nil, false, time.Now()))

	p, err := r.Update(context.Background(), id, model.ProfileUpdate{OnboardingCompleted: &yes, ApprovalStatus: &approved})
	require.NoError(t, err)
	require.True(t, p.OnboardingCompleted)
	require.Equal(t, model.ApprovalApproved, p.ApprovalStatus)
	require.Nil(t, p.Plan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSettingsRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT key, value FROM global_settings WHERE key=\$1`).
		WithArgs(model.GlobalGracePeriodKey).
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).AddRow(model.GlobalGracePeriodKey, "5"))
	s, err := r.Get(ctx, model.GlobalGracePeriodKey)
	require.NoError(t, err)
	require.Equal(t, "5", s.Value)

	mock.ExpectQuery(`SELECT key, value FROM global_settings WHERE key=\$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
