package model

import "time"

// ProfileSnapshot is a point-in-time read of everything the resolver looks at.
// It is passed by value and never updated; a new fetch is needed to observe changes.
type ProfileSnapshot struct {
	Role                  Role
	OnboardingCompleted   bool
	ApprovalStatus        ApprovalStatus
	Plan                  *string
	PlanExpiryDate        *time.Time
	GracePeriodDays       *int
	GlobalGracePeriodDays *int // nil when not fetched or unreadable
	HasPassword           bool
	IsFederatedLogin      bool
}

// NewProfileSnapshot copies the profile and auth facts into a detached snapshot.
func NewProfileSnapshot(p Profile, federated bool, globalGrace *int) ProfileSnapshot {
	return ProfileSnapshot{
		Role:                  p.Role,
		OnboardingCompleted:   p.OnboardingCompleted,
		ApprovalStatus:        p.ApprovalStatus,
		Plan:                  clonePtr(p.Plan),
		PlanExpiryDate:        clonePtr(p.PlanExpiryDate),
		GracePeriodDays:       clonePtr(p.GracePeriodDays),
		GlobalGracePeriodDays: clonePtr(globalGrace),
		HasPassword:           p.HasPassword,
		IsFederatedLogin:      federated,
	}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// PassReason says what triggered a resolution pass.
type PassReason string

const (
	ReasonAppStart       PassReason = "app_start"
	ReasonSignIn         PassReason = "sign_in"
	ReasonTokenRefreshed PassReason = "token_refreshed"
	ReasonUserUpdated    PassReason = "user_updated"
	ReasonManualRefresh  PassReason = "manual_refresh"
	ReasonPasswordGate   PassReason = "password_gate"
)

// ResolutionPass is the input describing one fetch-resolve-navigate run.
// At is the instant the expiry rule is evaluated against.
type ResolutionPass struct {
	InitialLoad bool
	Reason      PassReason
	At          time.Time
	// PasswordDeferred is set once the user skipped password setup in this session.
	PasswordDeferred bool
}
