// Package model defines domain entities shared by the backend, the client transport and the
// resolution engine.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the account role stored on the profile.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ApprovalStatus is the admin-reviewed gate that follows onboarding.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Provider names the identity provider that issued a sign-in.
type Provider string

const (
	ProviderEmail  Provider = "email"
	ProviderGoogle Provider = "google"
)

// Federated reports whether the provider is a third-party identity provider.
func (p Provider) Federated() bool {
	return p != "" && p != ProviderEmail
}

// GlobalGracePeriodKey is the global_settings key holding the default grace period in days.
const GlobalGracePeriodKey = "global_grace_period_days"

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. Passwords are never stored in plaintext.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	Provider  Provider  // email for local accounts
	PwdHash   []byte    // Argon2id(password, SaltAuth); empty for federated accounts without a password
	SaltAuth  []byte    // per-user auth salt
	CreatedAt time.Time
}

// Profile is the stored account state read by the resolver.
type Profile struct {
	UserID              uuid.UUID
	Role                Role
	OnboardingCompleted bool
	ApprovalStatus      ApprovalStatus
	Plan                *string    // nil until a plan is chosen
	PlanExpiryDate      *time.Time // nil when the plan never expires or no plan is chosen
	GracePeriodDays     *int       // per-user override of the global grace period
	HasPassword         bool
	UpdatedAt           time.Time
}

// ProfileUpdate is a partial profile change; nil fields are left untouched.
type ProfileUpdate struct {
	OnboardingCompleted *bool
	ApprovalStatus      *ApprovalStatus
	Plan                *string
	PlanExpiryDate      *time.Time
	HasPassword         *bool
}

// Empty reports whether the update carries no field.
func (u ProfileUpdate) Empty() bool {
	return u.OnboardingCompleted == nil && u.ApprovalStatus == nil && u.Plan == nil &&
		u.PlanExpiryDate == nil && u.HasPassword == nil
}

// AuthMetadata is what the auth layer knows about the caller's sign-in.
type AuthMetadata struct {
	Provider Provider
}

// GlobalSetting is a single process-wide configuration entry.
type GlobalSetting struct {
	Key   string
	Value string
}
