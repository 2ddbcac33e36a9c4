// Package session tracks the authentication session across the client's lifetime.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/metrics"
	"github.com/and161185/gymflow/internal/model"
	"go.uber.org/zap"
)

// Provider is the client-side auth layer the monitor watches.
type Provider interface {
	// CurrentSession returns the stored session or nil when signed out.
	CurrentSession(ctx context.Context) (*model.Session, error)
	// Subscribe registers fn for every auth event; the returned func unsubscribes.
	Subscribe(fn func(model.SessionEvent)) func()
	// Refresh exchanges the current token for a fresh one and emits EventTokenRefreshed.
	Refresh(ctx context.Context) error
}

// Pinger is optionally implemented by providers that can check backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrAlreadyStarted is returned by a second Start call.
var ErrAlreadyStarted = errors.New("session monitor already started")

// Config tunes the keepalive loop.
type Config struct {
	// KeepaliveInterval is how often the session is checked for an upcoming expiry.
	KeepaliveInterval time.Duration
	// RefreshLeeway is how long before expiry the token gets refreshed.
	RefreshLeeway time.Duration
	// InitialCheckTimeout bounds the first session lookup so Start never hangs.
	InitialCheckTimeout time.Duration
}

// DefaultConfig returns production keepalive settings.
func DefaultConfig() Config {
	return Config{
		KeepaliveInterval:   time.Minute,
		RefreshLeeway:       2 * time.Minute,
		InitialCheckTimeout: 10 * time.Second,
	}
}

// Monitor owns process-wide knowledge of the session. Events are delivered on Events()
// in provider order, once each, until Stop.
type Monitor struct {
	provider Provider
	flags    *Flags
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Resolution
	now      func() time.Time

	mu      sync.Mutex
	started bool
	pending []model.SessionEvent
	wake    chan struct{}
	out     chan model.SessionEvent
	unsub   func()
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(r *metrics.Resolution) Option {
	return func(m *Monitor) { m.metrics = r }
}

// WithConfig overrides keepalive settings; zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(m *Monitor) {
		if cfg.KeepaliveInterval > 0 {
			m.cfg.KeepaliveInterval = cfg.KeepaliveInterval
		}
		if cfg.RefreshLeeway > 0 {
			m.cfg.RefreshLeeway = cfg.RefreshLeeway
		}
		if cfg.InitialCheckTimeout > 0 {
			m.cfg.InitialCheckTimeout = cfg.InitialCheckTimeout
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor constructs a monitor over provider. flags are cleared whenever the session goes away.
func NewMonitor(provider Provider, flags *Flags, opts ...Option) *Monitor {
	if flags == nil {
		flags = NewFlags()
	}
	m := &Monitor{
		provider: provider,
		flags:    flags,
		cfg:      DefaultConfig(),
		log:      zap.NewNop(),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		out:      make(chan model.SessionEvent),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Flags returns the per-session markers.
func (m *Monitor) Flags() *Flags { return m.flags }

// Events delivers session changes after Start. The channel is closed by Stop.
func (m *Monitor) Events() <-chan model.SessionEvent { return m.out }

// Start subscribes to the provider, starts the keepalive loop and returns the current session.
// A failed lookup is logged and reported as no session; Start itself only fails when called twice.
func (m *Monitor) Start(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	// subscribe first so no event between lookup and subscription is lost
	unsub := m.provider.Subscribe(m.enqueue)
	m.mu.Lock()
	m.unsub = unsub
	m.mu.Unlock()

	sess := m.initialSession(ctx)
	if sess == nil {
		m.flags.Clear()
	}

	m.wg.Add(2)
	go m.pump(runCtx)
	go m.keepalive(runCtx)
	return sess, nil
}

func (m *Monitor) initialSession(ctx context.Context) *model.Session {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.InitialCheckTimeout)
	defer cancel()

	sess, err := m.provider.CurrentSession(cctx)
	if err != nil {
		m.metrics.FetchFailed(metrics.FailureSession)
		m.log.Warn("initial session check failed, continuing signed out",
			zap.Error(fmt.Errorf("%w: %w", errs.ErrSessionCheck, err)))
		return nil
	}
	if sess != nil && !sess.Valid(m.now()) {
		m.log.Info("stored session expired", zap.String("user_id", sess.UserID.String()))
		return nil
	}
	return sess
}

// enqueue runs on the provider's goroutine and never blocks it.
func (m *Monitor) enqueue(ev model.SessionEvent) {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, ev)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) pump(ctx context.Context) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		var (
			ev model.SessionEvent
			ok bool
		)
		if len(m.pending) > 0 {
			ev, ok = m.pending[0], true
			m.pending = m.pending[1:]
		}
		m.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		if ev.Session == nil {
			m.flags.Clear()
		}
		select {
		case <-ctx.Done():
			return
		case m.out <- ev:
		}
	}
}

func (m *Monitor) keepalive(ctx context.Context) {
	defer m.wg.Done()
	t := time.NewTicker(m.cfg.KeepaliveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx)
		}
	}
}

// tick refreshes the token when it is about to expire and pings the backend when possible.
func (m *Monitor) tick(ctx context.Context) {
	if p, ok := m.provider.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			m.log.Debug("backend ping failed", zap.Error(err))
		}
	}
	sess, err := m.provider.CurrentSession(ctx)
	if err != nil || sess == nil {
		return
	}
	if sess.ExpiresAt.Sub(m.now()) > m.cfg.RefreshLeeway {
		return
	}
	if err := m.provider.Refresh(ctx); err != nil {
		m.metrics.FetchFailed(metrics.FailureRefresh)
		m.log.Warn("session refresh failed, retrying next tick",
			zap.String("user_id", sess.UserID.String()), zap.Error(err))
	}
}

// Stop ends keepalive and delivery and closes Events. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	unsub := m.unsub
	m.unsub = nil
	m.pending = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	if unsub != nil {
		unsub()
	}
	cancel()
	m.wg.Wait()
	close(m.out)
}
