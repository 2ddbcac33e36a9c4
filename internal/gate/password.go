// Package gate implements the password-setup overlay shown to federated users without a local password.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/session"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// MinPasswordLen is the shortest password the overlay accepts.
const MinPasswordLen = 8

// ErrInactive is returned when Complete is called while no overlay is shown.
var ErrInactive = errors.New("password setup is not active")

// Backend persists the new password and the profile flag.
type Backend interface {
	SetPassword(ctx context.Context, password string) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd model.ProfileUpdate) error
}

// Reresolver runs a live resolution pass once the overlay is dismissed.
type Reresolver interface {
	Reresolve(ctx context.Context, sess model.Session, reason model.PassReason) error
}

// Gate is the short-lived overlay that pre-empts normal navigation.
type Gate struct {
	backend Backend
	flags   *session.Flags
	log     *zap.Logger

	mu     sync.Mutex
	next   Reresolver
	active *model.Session
}

// New constructs an inactive gate. log may be nil.
func New(backend Backend, flags *session.Flags, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	if flags == nil {
		flags = session.NewFlags()
	}
	return &Gate{backend: backend, flags: flags, log: log}
}

// SetReresolver wires the pass that runs after the overlay is dismissed.
func (g *Gate) SetReresolver(r Reresolver) {
	g.mu.Lock()
	g.next = r
	g.mu.Unlock()
}

// Activate shows the overlay for sess and reports whether it was newly shown.
func (g *Gate) Activate(sess model.Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != nil && g.active.UserID == sess.UserID {
		return false
	}
	s := sess
	g.active = &s
	g.log.Info("password setup required", zap.String("user_id", sess.UserID.String()))
	return true
}

// Active reports whether the overlay currently replaces normal rendering.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active != nil
}

// Deactivate hides the overlay without a follow-up pass, e.g. on sign-out.
func (g *Gate) Deactivate() {
	g.mu.Lock()
	g.active = nil
	g.mu.Unlock()
}

// Complete stores the password, marks the profile and re-resolves. On failure the overlay stays up.
func (g *Gate) Complete(ctx context.Context, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	sess, next, err := g.current()
	if err != nil {
		return err
	}
	if err := g.backend.SetPassword(ctx, password); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	hasPassword := true
	if err := g.backend.UpdateProfile(ctx, sess.UserID, model.ProfileUpdate{HasPassword: &hasPassword}); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if !g.clear(sess) {
		return ErrInactive
	}
	g.log.Info("password setup completed", zap.String("user_id", sess.UserID.String()))
	return g.reresolve(ctx, next, sess)
}

// Skip dismisses the overlay for the rest of the session and re-resolves.
func (g *Gate) Skip(ctx context.Context) error {
	sess, next, err := g.current()
	if err != nil {
		return err
	}
	g.flags.Mark(session.FlagPasswordSkipped, sess.UserID)
	if !g.clear(sess) {
		return ErrInactive
	}
	g.log.Info("password setup skipped", zap.String("user_id", sess.UserID.String()))
	return g.reresolve(ctx, next, sess)
}

// Deferred reports whether the user skipped password setup in the current session.
func (g *Gate) Deferred(user uuid.UUID) bool {
	return g.flags.Has(session.FlagPasswordSkipped, user)
}

func (g *Gate) current() (model.Session, Reresolver, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return model.Session{}, nil, ErrInactive
	}
	return *g.active, g.next, nil
}

// clear hides the overlay if it is still shown for sess.
func (g *Gate) clear(sess model.Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil || g.active.UserID != sess.UserID {
		return false
	}
	g.active = nil
	return true
}

func (g *Gate) reresolve(ctx context.Context, next Reresolver, sess model.Session) error {
	if next == nil {
		return nil
	}
	return next.Reresolve(ctx, sess, model.ReasonPasswordGate)
}

// ValidatePassword checks the local password policy.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return fmt.Errorf("%w: at least %d characters", errs.ErrPasswordPolicy, MinPasswordLen)
	}
	return nil
}
