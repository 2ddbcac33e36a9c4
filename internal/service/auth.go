// Package service contains application services for authentication and profiles.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/gymflow/internal/crypto"
	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/limiter"
	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token claims. Provider names the identity provider of the sign-in.
type Claims struct {
	Provider model.Provider `json:"provider"`
	jwt.RegisteredClaims
}

// Principal is the verified caller of an RPC.
type Principal struct {
	UserID   uuid.UUID
	Provider model.Provider
}

// AuthService defines authentication operations.
type AuthService interface {
	// Register creates a local account and its initial profile.
	Register(ctx context.Context, username, password string) (uuid.UUID, error)
	// Login applies rate-limiting and authenticates a local account.
	Login(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error)
	// LoginFederated exchanges a signed identity assertion for an access token,
	// creating the account on first use.
	LoginFederated(ctx context.Context, assertion, ip string) (model.Tokens, model.User, error)
	// Refresh re-issues an access token for a still-valid principal.
	Refresh(ctx context.Context, p Principal) (model.Tokens, error)
	// SetPassword stores a local password for the account.
	SetPassword(ctx context.Context, userID uuid.UUID, password string) error
	// Authenticate verifies an access token.
	Authenticate(token string) (Principal, error)
}

// MinPasswordLen is the shortest password the backend stores.
const MinPasswordLen = 8

// clockSkew is tolerated when validating token times.
const clockSkew = 30 * time.Second

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	fedKey    []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

// NewAuthService constructs AuthService. fedKey verifies federated identity assertions;
// federated login is disabled when it is empty.
func NewAuthService(users repository.UserRepository, signKey, fedKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &AuthServiceImpl{users: users, signKey: signKey, fedKey: fedKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

func newProfile(id uuid.UUID, hasPassword bool) *model.Profile {
	return &model.Profile{
		UserID:         id,
		Role:           model.RoleUser,
		ApprovalStatus: model.ApprovalPending,
		HasPassword:    hasPassword,
	}
}

// Register creates a new email account with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (uuid.UUID, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return uuid.Nil, fmt.Errorf("%w: empty username", errs.ErrInvalidArgument)
	}
	if len(password) < MinPasswordLen {
		return uuid.Nil, fmt.Errorf("%w: password shorter than %d", errs.ErrInvalidArgument, MinPasswordLen)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	hash, salt, err := pkgcrypto.NewCredential(password)
	if err != nil {
		return uuid.Nil, err
	}
	u := &model.User{
		ID:       uid,
		Username: username,
		Provider: model.ProviderEmail,
		PwdHash:  hash,
		SaltAuth: salt,
	}
	if err := s.users.Create(ctx, u, newProfile(uid, true)); err != nil {
		return uuid.Nil, err
	}
	return uid, nil
}

// Login authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// user lookup errors are masked so usernames cannot be probed
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, ipHash)

	tok, err := s.issueAccessToken(u.ID, model.ProviderEmail)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, *u, nil
}

// LoginFederated verifies an HS256 assertion signed by the identity broker. The assertion
// subject is the username and its issuer the provider name.
func (s *AuthServiceImpl) LoginFederated(ctx context.Context, assertion, ip string) (model.Tokens, model.User, error) {
	if len(s.fedKey) == 0 {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: federated login disabled", errs.ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	if _, err := s.parse(assertion, s.fedKey, &claims); err != nil {
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}
	provider := model.Provider(claims.Issuer)
	if !provider.Federated() || claims.Subject == "" {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: bad assertion issuer or subject", errs.ErrUnauthorized)
	}

	ipHash := limiter.HashIP(ip)
	allowed, _, err := s.lim.Allow(ctx, claims.Subject, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.federatedUser(ctx, claims.Subject, provider)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	_ = s.lim.Success(ctx, claims.Subject, ipHash)

	tok, err := s.issueAccessToken(u.ID, provider)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, *u, nil
}

func (s *AuthServiceImpl) federatedUser(ctx context.Context, username string, provider model.Provider) (*model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if u.Provider != provider {
			return nil, fmt.Errorf("%w: account belongs to another provider", errs.ErrUnauthorized)
		}
		return u, nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u = &model.User{ID: uid, Username: username, Provider: provider}
	if err := s.users.Create(ctx, u, newProfile(uid, false)); err != nil {
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return nil, err
		}
		// a concurrent first login created it
		return s.users.GetByUsername(ctx, username)
	}
	return u, nil
}

// Refresh issues a new token for the principal of a still-valid token.
func (s *AuthServiceImpl) Refresh(ctx context.Context, p Principal) (model.Tokens, error) {
	if _, err := s.users.GetByID(ctx, p.UserID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	return s.issueAccessToken(p.UserID, p.Provider)
}

// SetPassword hashes and stores password for userID.
func (s *AuthServiceImpl) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf("%w: password shorter than %d", errs.ErrInvalidArgument, MinPasswordLen)
	}
	hash, salt, err := pkgcrypto.NewCredential(password)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, userID, hash, salt)
}

// Authenticate verifies an HS256 access token and returns its principal.
func (s *AuthServiceImpl) Authenticate(token string) (Principal, error) {
	var claims Claims
	if _, err := s.parse(token, s.signKey, &claims); err != nil {
		return Principal{}, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	provider := claims.Provider
	if provider == "" {
		provider = model.ProviderEmail
	}
	return Principal{UserID: id, Provider: provider}, nil
}

func (s *AuthServiceImpl) parse(token string, key []byte, claims jwt.Claims) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID, provider model.Provider) (model.Tokens, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}
