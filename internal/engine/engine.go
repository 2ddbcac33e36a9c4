// Package engine wires the session monitor, profile fetcher, resolver, navigation machine and
// password gate into one pipeline.
//
// Session events are consumed in delivery order. Every event starts a resolution pass on its
// own goroutine, so passes may overlap; a pass only applies its decision if no newer session
// event was observed in the meantime.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/gymflow/internal/gate"
	"github.com/and161185/gymflow/internal/metrics"
	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/navigation"
	"github.com/and161185/gymflow/internal/resolver"
	"github.com/and161185/gymflow/internal/session"
	"go.uber.org/zap"
)

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("no active session")

// Monitor is the session event source.
type Monitor interface {
	Start(ctx context.Context) (*model.Session, error)
	Events() <-chan model.SessionEvent
	Flags() *session.Flags
	Stop()
}

// Fetcher builds a profile snapshot for a session.
type Fetcher interface {
	Fetch(ctx context.Context, sess model.Session) (model.ProfileSnapshot, error)
}

// Engine runs resolution passes and applies their decisions to the navigation machine.
type Engine struct {
	monitor Monitor
	fetcher Fetcher
	machine *navigation.Machine
	gate    *gate.Gate
	flags   *session.Flags
	log     *zap.Logger
	metrics *metrics.Resolution
	now     func() time.Time

	mu   sync.Mutex
	gen  uint64
	sess *model.Session

	passes sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Resolution) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now as the source of the evaluation instant.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New wires an engine and registers it as the gate's follow-up resolver.
// g must have been built over mon.Flags().
func New(mon Monitor, f Fetcher, m *navigation.Machine, g *gate.Gate, opts ...Option) *Engine {
	e := &Engine{
		monitor: mon,
		fetcher: f,
		machine: m,
		gate:    g,
		flags:   mon.Flags(),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	g.SetReresolver(e)
	return e
}

// Run starts the monitor, resolves the initial screen and follows session events until ctx is
// done or the monitor stops delivering. It waits for in-flight passes before returning.
func (e *Engine) Run(ctx context.Context) error {
	sess, err := e.monitor.Start(ctx)
	if err != nil {
		return fmt.Errorf("start session monitor: %w", err)
	}
	defer e.monitor.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		// passes still in flight belong to a torn-down engine
		e.mu.Lock()
		e.gen++
		e.mu.Unlock()
		cancel()
		e.passes.Wait()
	}()

	gen := e.switchSession(sess)
	if sess == nil {
		e.log.Info("no session at start")
		e.machine.GotoIf(e.isCurrent(gen), navigation.Welcome, nil)
	} else {
		e.startPass(ctx, gen, *sess, model.ReasonAppStart)
	}

	events := e.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev model.SessionEvent) {
	e.log.Debug("session event", zap.String("kind", string(ev.Kind)))
	if ev.Session == nil {
		e.signOut()
		return
	}
	gen := e.switchSession(ev.Session)
	e.startPass(ctx, gen, *ev.Session, reasonFor(ev.Kind))
}

// signOut supersedes every pending pass and sends the user to sign-in without a fetch.
func (e *Engine) signOut() {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.sess = nil
	e.gate.Deactivate()
	e.mu.Unlock()

	e.flags.Clear()
	e.machine.GotoIf(e.isCurrent(gen), navigation.SignIn, nil)
	e.log.Info("signed out")
}

func reasonFor(k model.SessionEventKind) model.PassReason {
	switch k {
	case model.EventTokenRefreshed:
		return model.ReasonTokenRefreshed
	case model.EventUserUpdated:
		return model.ReasonUserUpdated
	default:
		return model.ReasonSignIn
	}
}

// switchSession records sess as current and returns the new generation. An overlay shown for
// another user is dropped.
func (e *Engine) switchSession(sess *model.Session) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.sess != nil && (sess == nil || sess.UserID != e.sess.UserID) {
		e.gate.Deactivate()
	}
	if sess == nil {
		e.sess = nil
	} else {
		s := *sess
		e.sess = &s
	}
	return e.gen
}

func (e *Engine) current() (model.Session, uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return model.Session{}, e.gen, false
	}
	return *e.sess, e.gen, true
}

func (e *Engine) isCurrent(gen uint64) func() bool {
	return func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.gen == gen
	}
}

func (e *Engine) startPass(ctx context.Context, gen uint64, sess model.Session, reason model.PassReason) {
	e.passes.Add(1)
	go func() {
		defer e.passes.Done()
		_ = e.pass(ctx, gen, sess, reason, false)
	}()
}

// pass fetches, resolves and applies. When strict is set a fetch failure is returned without
// touching navigation; otherwise it is resolved to the failure fallback.
func (e *Engine) pass(ctx context.Context, gen uint64, sess model.Session, reason model.PassReason, strict bool) error {
	started := e.now()
	e.metrics.PassStarted(string(reason))
	defer func() { e.metrics.ObservePass(e.now().Sub(started)) }()

	log := e.log.With(zap.String("user_id", sess.UserID.String()), zap.String("reason", string(reason)))
	initial := reason != model.ReasonManualRefresh && reason != model.ReasonPasswordGate &&
		!e.flags.Has(session.FlagRouted, sess.UserID)

	snap, err := e.fetcher.Fetch(ctx, sess)
	var d resolver.Decision
	switch {
	case err != nil && strict:
		log.Warn("refresh failed, staying put", zap.Error(err))
		return err
	case err != nil:
		log.Warn("profile unavailable, using fallback", zap.Error(err))
		d = resolver.ResolveFailure()
	default:
		d = resolver.Resolve(snap, model.ResolutionPass{
			InitialLoad:      initial,
			Reason:           reason,
			At:               e.now(),
			PasswordDeferred: e.gate.Deferred(sess.UserID),
		})
		d = placeAdmin(d, e.machine.Current())
	}

	if !e.apply(gen, sess, d) {
		e.metrics.StaleDecision()
		log.Debug("stale decision dropped", zap.String("rule", d.Rule))
		return nil
	}
	e.metrics.DecisionApplied(d.Kind.String(), d.Rule)
	log.Info("decision applied",
		zap.String("kind", d.Kind.String()),
		zap.String("rule", d.Rule),
		zap.String("screen", string(e.machine.Current())),
		zap.Bool("initial", initial),
	)
	return nil
}

// apply reports false when the pass was superseded before its decision could land.
func (e *Engine) apply(gen uint64, sess model.Session, d resolver.Decision) bool {
	switch d.Kind {
	case resolver.KindGoTo, resolver.KindUnresolvable:
		screen := d.Screen
		if d.Kind == resolver.KindUnresolvable {
			screen = resolver.FailureFallback
		}
		if _, ok := e.machine.GotoIf(e.isCurrent(gen), screen, nil); !ok {
			return false
		}
		e.flags.Mark(session.FlagRouted, sess.UserID)
		return true
	case resolver.KindShowPasswordSetup:
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gen != gen {
			return false
		}
		e.gate.Activate(sess)
		return true
	default:
		return e.isCurrent(gen)()
	}
}

// placeAdmin sends an admin home when a live pass finds them not yet placed anywhere, e.g. right
// after the password overlay of the first sign-in.
func placeAdmin(d resolver.Decision, screen navigation.Screen) resolver.Decision {
	if d.Kind == resolver.KindNoChange && d.Rule == resolver.RuleAdmin && unplaced(screen) {
		return resolver.GoTo(navigation.AdminHome, resolver.RuleAdmin)
	}
	return d
}

// unplaced reports whether screen is one the user sits on before any post-sign-in routing.
func unplaced(screen navigation.Screen) bool {
	switch screen {
	case navigation.Splash, navigation.Welcome, navigation.SignIn, navigation.SignUp:
		return true
	}
	return false
}

// Reresolve runs a live pass for sess if it is still the current session.
func (e *Engine) Reresolve(ctx context.Context, sess model.Session, reason model.PassReason) error {
	cur, gen, ok := e.current()
	if !ok || cur.UserID != sess.UserID {
		return nil
	}
	return e.pass(ctx, gen, cur, reason, false)
}

// Refresh re-resolves the current session on demand. On a fetch failure the user stays on the
// current screen and the error is returned.
func (e *Engine) Refresh(ctx context.Context) error {
	sess, gen, ok := e.current()
	if !ok {
		return ErrNoSession
	}
	return e.pass(ctx, gen, sess, model.ReasonManualRefresh, true)
}

// CurrentScreen returns the screen the rendering layer should show.
func (e *Engine) CurrentScreen() navigation.Screen { return e.machine.Current() }

// Navigate performs a user-initiated transition.
func (e *Engine) Navigate(screen navigation.Screen, aux *navigation.Aux) navigation.State {
	return e.machine.Goto(screen, aux)
}

// Back returns to the screen shown before the last transition.
func (e *Engine) Back() navigation.State { return e.machine.Back() }

// Selections returns the stored auxiliary selections.
func (e *Engine) Selections() navigation.Aux { return e.machine.State().Aux }

// Subscribe forwards to the navigation machine.
func (e *Engine) Subscribe(fn func(navigation.State)) func() { return e.machine.Subscribe(fn) }

// ShowPasswordSetupOverlay reports whether the password overlay replaces normal rendering.
func (e *Engine) ShowPasswordSetupOverlay() bool { return e.gate.Active() }

// CompletePasswordSetup stores a new password through the gate.
func (e *Engine) CompletePasswordSetup(ctx context.Context, password string) error {
	return e.gate.Complete(ctx, password)
}

// SkipPasswordSetup dismisses the overlay for the current session.
func (e *Engine) SkipPasswordSetup(ctx context.Context) error {
	return e.gate.Skip(ctx)
}
