package service

import (
	"context"
	"fmt"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// ProfileService exposes profile reads and writes.
type ProfileService interface {
	// Get returns the profile of userID.
	Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// Update patches the profile of target on behalf of actor.
	Update(ctx context.Context, actor, target uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error)
	// AuthMetadata describes how p signed in.
	AuthMetadata(ctx context.Context, p Principal) (model.AuthMetadata, error)
	// GlobalSetting reads a global setting by key.
	GlobalSetting(ctx context.Context, key string) (model.GlobalSetting, error)
}

type ProfileServiceImpl struct {
	profiles repository.ProfileRepository
	settings repository.SettingsRepository
}

// NewProfileService constructs ProfileService.
func NewProfileService(profiles repository.ProfileRepository, settings repository.SettingsRepository) *ProfileServiceImpl {
	return &ProfileServiceImpl{profiles: profiles, settings: settings}
}

// Get loads a profile.
func (s *ProfileServiceImpl) Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	return s.profiles.Get(ctx, userID)
}

// Update validates and applies a partial update. Users may edit their own onboarding, plan and
// password flags; approval status, plan expiry and other users' profiles are admin-only.
func (s *ProfileServiceImpl) Update(ctx context.Context, actor, target uuid.UUID, upd model.ProfileUpdate) (*model.Profile, error) {
	if upd.Empty() {
		return nil, fmt.Errorf("%w: empty update", errs.ErrInvalidArgument)
	}
	if upd.ApprovalStatus != nil {
		switch *upd.ApprovalStatus {
		case model.ApprovalPending, model.ApprovalApproved, model.ApprovalRejected:
		default:
			return nil, fmt.Errorf("%w: approval status %q", errs.ErrInvalidArgument, *upd.ApprovalStatus)
		}
	}
	if actor != target || upd.ApprovalStatus != nil || upd.PlanExpiryDate != nil {
		p, err := s.profiles.Get(ctx, actor)
		if err != nil {
			return nil, err
		}
		if p.Role != model.RoleAdmin {
			return nil, errs.ErrForbidden
		}
	}
	return s.profiles.Update(ctx, target, upd)
}

// AuthMetadata reports the provider recorded in the caller's token.
func (s *ProfileServiceImpl) AuthMetadata(_ context.Context, p Principal) (model.AuthMetadata, error) {
	return model.AuthMetadata{Provider: p.Provider}, nil
}

// GlobalSetting reads a setting.
func (s *ProfileServiceImpl) GlobalSetting(ctx context.Context, key string) (model.GlobalSetting, error) {
	if key == "" {
		return model.GlobalSetting{}, fmt.Errorf("%w: empty key", errs.ErrInvalidArgument)
	}
	return s.settings.Get(ctx, key)
}
