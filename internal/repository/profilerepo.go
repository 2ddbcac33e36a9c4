package repository

import (
	"context"

	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ProfileRepository reads and patches stored profiles.
type ProfileRepository interface {
	// Get returns the profile of userID or errs.ErrNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// Update applies the non-nil fields of upd and returns the stored result.
	Update(ctx context.Context, userID uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error)
}

// SettingsRepository reads process-wide settings.
type SettingsRepository interface {
	// Get returns the setting stored under key or errs.ErrNotFound.
	Get(ctx context.Context, key string) (model.GlobalSetting, error)
}
