// Package convert maps domain types to and from the google.protobuf.Struct messages of the
// backend API. Dates travel as RFC3339 strings, absent optionals as null.
package convert

import (
	"fmt"
	"time"

	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names.
const (
	FieldUserID              = "user_id"
	FieldUsername            = "username"
	FieldPassword            = "password"
	FieldAssertion           = "assertion"
	FieldAccessToken         = "access_token"
	FieldExpiresAt           = "expires_at"
	FieldProvider            = "provider"
	FieldRole                = "role"
	FieldOnboardingCompleted = "onboarding_completed"
	FieldApprovalStatus      = "approval_status"
	FieldPlan                = "plan"
	FieldPlanExpiryDate      = "plan_expiry_date"
	FieldGracePeriodDays     = "grace_period_days"
	FieldHasPassword         = "has_password"
	FieldUpdatedAt           = "updated_at"
	FieldKey                 = "key"
	FieldValue               = "value"
)

// --- helpers ---

func newStruct(m map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	if err != nil {
		// only basic types are ever passed in
		panic(fmt.Sprintf("convert: %v", err))
	}
	return s
}

func optString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339)
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func optBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

// field returns the value under key, or nil when it is absent or null.
func field(s *structpb.Struct, key string) *structpb.Value {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil
	}
	return v
}

func getString(s *structpb.Struct, key string) (*string, error) {
	v := field(s, key)
	if v == nil {
		return nil, nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("%s: want string", key)
	}
	out := sv.StringValue
	return &out, nil
}

func getBool(s *structpb.Struct, key string) (*bool, error) {
	v := field(s, key)
	if v == nil {
		return nil, nil
	}
	bv, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, fmt.Errorf("%s: want bool", key)
	}
	out := bv.BoolValue
	return &out, nil
}

func getInt(s *structpb.Struct, key string) (*int, error) {
	v := field(s, key)
	if v == nil {
		return nil, nil
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, fmt.Errorf("%s: want number", key)
	}
	n := int(nv.NumberValue)
	if float64(n) != nv.NumberValue {
		return nil, fmt.Errorf("%s: want integer, got %v", key, nv.NumberValue)
	}
	return &n, nil
}

func getTime(s *structpb.Struct, key string) (*time.Time, error) {
	str, err := getString(s, key)
	if err != nil || str == nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, *str)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func getUUID(s *structpb.Struct, key string) (uuid.UUID, error) {
	str, err := getString(s, key)
	if err != nil {
		return uuid.Nil, err
	}
	if str == nil {
		return uuid.Nil, fmt.Errorf("%s: missing", key)
	}
	id, err := uuid.FromString(*str)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: invalid id: %w", key, err)
	}
	return id, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// --- auth ---

// Credentials is a login or register request. Assertion is set for federated sign-in.
type Credentials struct {
	Username  string
	Password  string
	Assertion string
}

// ToCredentials encodes a login/register request.
func ToCredentials(c Credentials) *structpb.Struct {
	m := map[string]any{FieldUsername: c.Username, FieldPassword: c.Password}
	if c.Assertion != "" {
		m[FieldAssertion] = c.Assertion
	}
	return newStruct(m)
}

// FromCredentials decodes a login/register request.
func FromCredentials(s *structpb.Struct) (Credentials, error) {
	var out Credentials
	for key, dst := range map[string]*string{FieldUsername: &out.Username, FieldPassword: &out.Password, FieldAssertion: &out.Assertion} {
		v, err := getString(s, key)
		if err != nil {
			return Credentials{}, err
		}
		*dst = deref(v)
	}
	return out, nil
}

// ToSession encodes an issued token.
func ToSession(userID uuid.UUID, provider model.Provider, t model.Tokens) *structpb.Struct {
	return newStruct(map[string]any{
		FieldUserID:      userID.String(),
		FieldProvider:    string(provider),
		FieldAccessToken: t.AccessToken,
		FieldExpiresAt:   t.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// FromSession decodes an issued token into a client session.
func FromSession(s *structpb.Struct) (model.Session, error) {
	id, err := getUUID(s, FieldUserID)
	if err != nil {
		return model.Session{}, err
	}
	tok, err := getString(s, FieldAccessToken)
	if err != nil {
		return model.Session{}, err
	}
	if deref(tok) == "" {
		return model.Session{}, fmt.Errorf("%s: missing", FieldAccessToken)
	}
	exp, err := getTime(s, FieldExpiresAt)
	if err != nil {
		return model.Session{}, err
	}
	prov, err := getString(s, FieldProvider)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{UserID: id, AccessToken: *tok, Provider: model.Provider(deref(prov)), ExpiresAt: deref(exp)}, nil
}

// ToUserID encodes a single user id.
func ToUserID(id uuid.UUID) *structpb.Struct {
	return newStruct(map[string]any{FieldUserID: id.String()})
}

// FromUserID decodes a single user id.
func FromUserID(s *structpb.Struct) (uuid.UUID, error) { return getUUID(s, FieldUserID) }

// ToPassword encodes a set-password request.
func ToPassword(pw string) *structpb.Struct {
	return newStruct(map[string]any{FieldPassword: pw})
}

// FromPassword decodes a set-password request.
func FromPassword(s *structpb.Struct) (string, error) {
	v, err := getString(s, FieldPassword)
	return deref(v), err
}

// ToAuthMetadata encodes auth metadata.
func ToAuthMetadata(m model.AuthMetadata) *structpb.Struct {
	return newStruct(map[string]any{FieldProvider: string(m.Provider)})
}

// FromAuthMetadata decodes auth metadata.
func FromAuthMetadata(s *structpb.Struct) (model.AuthMetadata, error) {
	v, err := getString(s, FieldProvider)
	if err != nil {
		return model.AuthMetadata{}, err
	}
	return model.AuthMetadata{Provider: model.Provider(deref(v))}, nil
}

// --- settings ---

// ToKey encodes a setting lookup.
func ToKey(key string) *structpb.Struct { return newStruct(map[string]any{FieldKey: key}) }

// FromKey decodes a setting lookup.
func FromKey(s *structpb.Struct) (string, error) {
	v, err := getString(s, FieldKey)
	return deref(v), err
}

// ToGlobalSetting encodes a setting.
func ToGlobalSetting(g model.GlobalSetting) *structpb.Struct {
	return newStruct(map[string]any{FieldKey: g.Key, FieldValue: g.Value})
}

// FromGlobalSetting decodes a setting.
func FromGlobalSetting(s *structpb.Struct) (model.GlobalSetting, error) {
	k, err := getString(s, FieldKey)
	if err != nil {
		return model.GlobalSetting{}, err
	}
	v, err := getString(s, FieldValue)
	if err != nil {
		return model.GlobalSetting{}, err
	}
	return model.GlobalSetting{Key: deref(k), Value: deref(v)}, nil
}

// --- profile ---

// ToProfile encodes a stored profile.
func ToProfile(p model.Profile) *structpb.Struct {
	m := map[string]any{
		FieldUserID:              p.UserID.String(),
		FieldRole:                string(p.Role),
		FieldOnboardingCompleted: p.OnboardingCompleted,
		FieldApprovalStatus:      string(p.ApprovalStatus),
		FieldPlan:                optString(p.Plan),
		FieldPlanExpiryDate:      optTime(p.PlanExpiryDate),
		FieldGracePeriodDays:     optInt(p.GracePeriodDays),
		FieldHasPassword:         p.HasPassword,
	}
	if !p.UpdatedAt.IsZero() {
		m[FieldUpdatedAt] = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return newStruct(m)
}

// FromProfile decodes a stored profile.
func FromProfile(s *structpb.Struct) (model.Profile, error) {
	var (
		p   model.Profile
		err error
	)
	if p.UserID, err = getUUID(s, FieldUserID); err != nil {
		return model.Profile{}, err
	}
	role, err := getString(s, FieldRole)
	if err != nil {
		return model.Profile{}, err
	}
	status, err := getString(s, FieldApprovalStatus)
	if err != nil {
		return model.Profile{}, err
	}
	onboarded, err := getBool(s, FieldOnboardingCompleted)
	if err != nil {
		return model.Profile{}, err
	}
	hasPassword, err := getBool(s, FieldHasPassword)
	if err != nil {
		return model.Profile{}, err
	}
	if p.Plan, err = getString(s, FieldPlan); err != nil {
		return model.Profile{}, err
	}
	if p.PlanExpiryDate, err = getTime(s, FieldPlanExpiryDate); err != nil {
		return model.Profile{}, err
	}
	if p.GracePeriodDays, err = getInt(s, FieldGracePeriodDays); err != nil {
		return model.Profile{}, err
	}
	updated, err := getTime(s, FieldUpdatedAt)
	if err != nil {
		return model.Profile{}, err
	}
	p.Role = model.Role(deref(role))
	p.ApprovalStatus = model.ApprovalStatus(deref(status))
	p.OnboardingCompleted = deref(onboarded)
	p.HasPassword = deref(hasPassword)
	p.UpdatedAt = deref(updated)
	return p, nil
}

// ToProfileUpdate encodes a partial update of userID's profile. Unset fields are omitted.
func ToProfileUpdate(userID uuid.UUID, u model.ProfileUpdate) *structpb.Struct {
	m := map[string]any{FieldUserID: userID.String()}
	set := func(key string, v any) {
		if v != nil {
			m[key] = v
		}
	}
	set(FieldOnboardingCompleted, optBool(u.OnboardingCompleted))
	if u.ApprovalStatus != nil {
		m[FieldApprovalStatus] = string(*u.ApprovalStatus)
	}
	set(FieldPlan, optString(u.Plan))
	set(FieldPlanExpiryDate, optTime(u.PlanExpiryDate))
	set(FieldHasPassword, optBool(u.HasPassword))
	return newStruct(m)
}

// FromProfileUpdate decodes a partial profile update.
func FromProfileUpdate(s *structpb.Struct) (uuid.UUID, model.ProfileUpdate, error) {
	id, err := getUUID(s, FieldUserID)
	if err != nil {
		return uuid.Nil, model.ProfileUpdate{}, err
	}
	var u model.ProfileUpdate
	if u.OnboardingCompleted, err = getBool(s, FieldOnboardingCompleted); err != nil {
		return uuid.Nil, model.ProfileUpdate{}, err
	}
	status, err := getString(s, FieldApprovalStatus)
	if err != nil {
		return uuid.Nil, model.ProfileUpdate{}, err
	}
	if status != nil {
		st := model.ApprovalStatus(*status)
		u.ApprovalStatus = &st
	}
	if u.Plan, err = getString(s, FieldPlan); err != nil {
		return uuid.Nil, model.ProfileUpdate{}, err
	}
	if u.PlanExpiryDate, err = getTime(s, FieldPlanExpiryDate); err != nil {
		return uuid.Nil, model.ProfileUpdate{}, err
	}
	if u.HasPassword, err = getBool(s, FieldHasPassword); err != nil {
		return uuid.Nil, model.ProfileUpdate{}, err
	}
	return id, u, nil
}
