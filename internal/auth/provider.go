// Package auth is the client-side auth provider: it owns the stored token, talks to the backend
// for sign-in and refresh, and publishes session events to subscribers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/model"
	"go.uber.org/zap"
)

// ErrNotSignedIn is returned by operations that need a stored session.
var ErrNotSignedIn = errors.New("not signed in")

// Backend is the subset of the API the provider needs.
type Backend interface {
	Login(ctx context.Context, username, password string) (model.Session, error)
	LoginFederated(ctx context.Context, assertion string) (model.Session, error)
	RefreshSession(ctx context.Context) (model.Session, error)
	Ping(ctx context.Context) error
}

// Store persists the session between runs.
type Store interface {
	Load() (*model.Session, error)
	Save(sess model.Session) error
	Clear() error
}

type subscriber struct {
	id uint64
	fn func(model.SessionEvent)
}

// Provider tracks the signed-in session. Events are delivered synchronously, in the order the
// state changes happened, on the goroutine that caused them.
type Provider struct {
	store   Store
	backend Backend
	log     *zap.Logger

	// op serializes state changes together with their event delivery.
	op sync.Mutex

	mu     sync.Mutex
	loaded bool
	sess   *model.Session
	subs   []subscriber
	nextID uint64
}

// NewProvider builds a provider over store. The backend is bound with SetBackend, since the
// transport itself reads tokens from the provider.
func NewProvider(store Store, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{store: store, log: log}
}

// SetBackend binds the API used for sign-in, refresh and ping.
func (p *Provider) SetBackend(b Backend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backend = b
}

func (p *Provider) api() (Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil {
		return nil, errors.New("auth provider has no backend")
	}
	return p.backend, nil
}

// loadLocked reads the store once. Caller holds p.mu.
func (p *Provider) loadLocked() error {
	if p.loaded {
		return nil
	}
	sess, err := p.store.Load()
	if err != nil {
		return err
	}
	p.sess = sess
	p.loaded = true
	return nil
}

// CurrentSession returns the stored session or nil when signed out.
func (p *Provider) CurrentSession(context.Context) (*model.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return nil, err
	}
	if p.sess == nil {
		return nil, nil
	}
	s := *p.sess
	return &s, nil
}

// Token returns the current access token, or "" when signed out.
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		p.log.Warn("load token", zap.Error(err))
		return ""
	}
	if p.sess == nil {
		return ""
	}
	return p.sess.AccessToken
}

// Subscribe registers fn for every auth event; the returned func unsubscribes.
func (p *Provider) Subscribe(fn func(model.SessionEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscriber{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, s := range p.subs {
			if s.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// set replaces the session and returns the subscribers to notify. Caller holds p.op.
func (p *Provider) set(sess *model.Session) []subscriber {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = true
	p.sess = sess
	return append([]subscriber(nil), p.subs...)
}

func emit(subs []subscriber, kind model.SessionEventKind, sess *model.Session) {
	for _, s := range subs {
		ev := model.SessionEvent{Kind: kind}
		if sess != nil {
			c := *sess
			ev.Session = &c
		}
		s.fn(ev)
	}
}

// SignIn authenticates with a password and stores the session.
func (p *Provider) SignIn(ctx context.Context, username, password string) (model.Session, error) {
	b, err := p.api()
	if err != nil {
		return model.Session{}, err
	}
	return p.signIn(ctx, func() (model.Session, error) { return b.Login(ctx, username, password) })
}

// SignInFederated authenticates with a federated identity assertion.
func (p *Provider) SignInFederated(ctx context.Context, assertion string) (model.Session, error) {
	b, err := p.api()
	if err != nil {
		return model.Session{}, err
	}
	return p.signIn(ctx, func() (model.Session, error) { return b.LoginFederated(ctx, assertion) })
}

func (p *Provider) signIn(_ context.Context, login func() (model.Session, error)) (model.Session, error) {
	p.op.Lock()
	defer p.op.Unlock()

	sess, err := login()
	if err != nil {
		return model.Session{}, fmt.Errorf("sign in: %w", err)
	}
	if err := p.store.Save(sess); err != nil {
		return model.Session{}, err
	}
	p.log.Info("signed in", zap.String("user_id", sess.UserID.String()), zap.String("provider", string(sess.Provider)))
	emit(p.set(&sess), model.EventSignedIn, &sess)
	return sess, nil
}

// SignOut forgets the stored session. Signing out without a session emits nothing.
func (p *Provider) SignOut(ctx context.Context) error {
	p.op.Lock()
	defer p.op.Unlock()
	return p.signOutLocked(ctx)
}

func (p *Provider) signOutLocked(ctx context.Context) error {
	cur, err := p.CurrentSession(ctx)
	if err != nil {
		p.log.Warn("stored session unreadable, clearing", zap.Error(err))
	}
	if err := p.store.Clear(); err != nil {
		return err
	}
	subs := p.set(nil)
	if cur == nil {
		return nil
	}
	p.log.Info("signed out", zap.String("user_id", cur.UserID.String()))
	emit(subs, model.EventSignedOut, nil)
	return nil
}

// Refresh exchanges the current token for a fresh one and emits EventTokenRefreshed.
// A rejected token ends the session.
func (p *Provider) Refresh(ctx context.Context) error {
	b, err := p.api()
	if err != nil {
		return err
	}
	p.op.Lock()
	defer p.op.Unlock()

	cur, err := p.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if cur == nil {
		return ErrNotSignedIn
	}
	sess, err := b.RefreshSession(ctx)
	if errors.Is(err, errs.ErrUnauthorized) {
		p.log.Warn("token rejected on refresh, signing out", zap.String("user_id", cur.UserID.String()))
		if serr := p.signOutLocked(ctx); serr != nil {
			return serr
		}
		return fmt.Errorf("refresh: %w", err)
	}
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if sess.UserID != cur.UserID {
		return fmt.Errorf("refresh: token issued for another user")
	}
	if err := p.store.Save(sess); err != nil {
		return err
	}
	emit(p.set(&sess), model.EventTokenRefreshed, &sess)
	return nil
}

// NotifyUserUpdated tells subscribers the signed-in user's attributes changed server-side.
func (p *Provider) NotifyUserUpdated(ctx context.Context) error {
	p.op.Lock()
	defer p.op.Unlock()
	cur, err := p.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if cur == nil {
		return ErrNotSignedIn
	}
	p.mu.Lock()
	subs := append([]subscriber(nil), p.subs...)
	p.mu.Unlock()
	emit(subs, model.EventUserUpdated, cur)
	return nil
}

// Ping checks backend liveness.
func (p *Provider) Ping(ctx context.Context) error {
	b, err := p.api()
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}
