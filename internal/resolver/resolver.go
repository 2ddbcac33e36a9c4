// Package resolver decides which screen a signed-in user belongs on.
//
// Resolve is a pure function of a profile snapshot and a resolution pass. The decision ladder is
// an ordered rule table; the first rule that matches wins, so the order below is the contract:
//
//  1. federated login without a local password: show the password-setup overlay
//  2. admin: admin home on the initial load, otherwise stay put
//  3. plan expired past its grace period: plan selection
//  4. onboarded and approved: dashboard
//  5. onboarded, not approved: application status
//  6. plan chosen, onboarding incomplete: application status
//  7. anything else: onboarding entry
package resolver

import (
	"time"

	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/navigation"
)

// Kind enumerates decision variants.
type Kind int

const (
	KindGoTo Kind = iota
	KindShowPasswordSetup
	KindNoChange
	KindUnresolvable
)

func (k Kind) String() string {
	switch k {
	case KindGoTo:
		return "goto"
	case KindShowPasswordSetup:
		return "show_password_setup"
	case KindNoChange:
		return "no_change"
	case KindUnresolvable:
		return "unresolvable"
	default:
		return "unknown"
	}
}

// Decision is the single outcome of a resolution pass.
type Decision struct {
	Kind   Kind
	Screen navigation.Screen // set only for KindGoTo
	Rule   string            // rule that produced the decision
}

// GoTo builds a navigation decision.
func GoTo(screen navigation.Screen, rule string) Decision {
	return Decision{Kind: KindGoTo, Screen: screen, Rule: rule}
}

// FailureFallback is where the caller sends the user when the snapshot could not be fetched.
// A missing profile row most often means the backend has not created it yet for a new signup.
const FailureFallback = navigation.OnboardingEntry

// Rule names, stable for logs and metrics.
const (
	RulePasswordSetup    = "password_setup"
	RuleAdmin            = "admin"
	RulePlanExpired      = "plan_expired"
	RuleApproved         = "approved"
	RuleOnboardedPending = "onboarded_pending"
	RulePlanChosen       = "plan_chosen"
	RuleNewUser          = "new_user"
	RuleFetchFailed      = "fetch_failed"
)

type (
	matchFunc  func(model.ProfileSnapshot, model.ResolutionPass) bool
	decideFunc func(model.ProfileSnapshot, model.ResolutionPass) Decision
)

type rule struct {
	name   string
	match  matchFunc
	decide decideFunc
}

var rules = []rule{
	{RulePasswordSetup, needsPassword, showPasswordSetup},
	{RuleAdmin, isAdmin, adminHome},
	{RulePlanExpired, planExpired, goTo(navigation.PlanSelection, RulePlanExpired)},
	{RuleApproved, approved, goTo(navigation.Dashboard, RuleApproved)},
	{RuleOnboardedPending, onboarded, goTo(navigation.ApplicationStatus, RuleOnboardedPending)},
	{RulePlanChosen, planChosen, goTo(navigation.ApplicationStatus, RulePlanChosen)},
	{RuleNewUser, always, goTo(navigation.OnboardingEntry, RuleNewUser)},
}

func needsPassword(s model.ProfileSnapshot, p model.ResolutionPass) bool {
	return s.IsFederatedLogin && !s.HasPassword && !p.PasswordDeferred
}

func isAdmin(s model.ProfileSnapshot, _ model.ResolutionPass) bool {
	return s.Role == model.RoleAdmin
}

func planExpired(s model.ProfileSnapshot, p model.ResolutionPass) bool {
	return Expired(s, p.At)
}

func approved(s model.ProfileSnapshot, _ model.ResolutionPass) bool {
	return s.OnboardingCompleted && s.ApprovalStatus == model.ApprovalApproved
}

func onboarded(s model.ProfileSnapshot, _ model.ResolutionPass) bool {
	return s.OnboardingCompleted
}

func planChosen(s model.ProfileSnapshot, _ model.ResolutionPass) bool {
	return s.Plan != nil && *s.Plan != ""
}

func always(model.ProfileSnapshot, model.ResolutionPass) bool { return true }

func showPasswordSetup(model.ProfileSnapshot, model.ResolutionPass) Decision {
	return Decision{Kind: KindShowPasswordSetup, Rule: RulePasswordSetup}
}

// adminHome only redirects on the initial load so live auth events never yank an admin back home.
func adminHome(_ model.ProfileSnapshot, p model.ResolutionPass) Decision {
	if p.InitialLoad {
		return GoTo(navigation.AdminHome, RuleAdmin)
	}
	return Decision{Kind: KindNoChange, Rule: RuleAdmin}
}

func goTo(screen navigation.Screen, name string) decideFunc {
	return func(model.ProfileSnapshot, model.ResolutionPass) Decision { return GoTo(screen, name) }
}

// Resolve maps a snapshot and pass to exactly one decision.
func Resolve(s model.ProfileSnapshot, p model.ResolutionPass) Decision {
	for _, r := range rules {
		if r.match(s, p) {
			return r.decide(s, p)
		}
	}
	// unreachable: the last rule always matches
	return GoTo(FailureFallback, RuleNewUser)
}

// ResolveFailure is the decision for a pass whose snapshot could not be fetched.
func ResolveFailure() Decision {
	return Decision{Kind: KindUnresolvable, Rule: RuleFetchFailed}
}

// RuleNames lists the rule names in evaluation order.
func RuleNames() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.name
	}
	return out
}

// GraceDays returns the grace period that applies to the snapshot:
// the per-user override, else the global default, else zero.
func GraceDays(s model.ProfileSnapshot) int {
	switch {
	case s.GracePeriodDays != nil:
		return *s.GracePeriodDays
	case s.GlobalGracePeriodDays != nil:
		return *s.GlobalGracePeriodDays
	default:
		return 0
	}
}

// EffectiveExpiry is the plan expiry date pushed out by the grace period.
// ok is false when the plan has no expiry date.
func EffectiveExpiry(s model.ProfileSnapshot) (expiry time.Time, ok bool) {
	if s.PlanExpiryDate == nil {
		return time.Time{}, false
	}
	return s.PlanExpiryDate.AddDate(0, 0, GraceDays(s)), true
}

// Expired reports whether at is strictly after the effective expiry.
func Expired(s model.ProfileSnapshot, at time.Time) bool {
	exp, ok := EffectiveExpiry(s)
	return ok && at.After(exp)
}
