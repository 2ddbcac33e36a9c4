package navigation

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category is the explore category a user drilled into.
type Category struct {
	ID   string
	Name string
}

// Aux is the auxiliary selection state carried next to the current screen.
// A nil field means "not set" when stored and "leave as is" when passed to Goto.
type Aux struct {
	WorkoutID           *string
	ProgramID           *string
	Category            *Category
	LastWorkoutDuration *time.Duration
}

func (a Aux) clone() Aux {
	return Aux{
		WorkoutID:           clonePtr(a.WorkoutID),
		ProgramID:           clonePtr(a.ProgramID),
		Category:            clonePtr(a.Category),
		LastWorkoutDuration: clonePtr(a.LastWorkoutDuration),
	}
}

// merge overlays the non-nil fields of upd onto a.
func (a Aux) merge(upd *Aux) Aux {
	out := a.clone()
	if upd == nil {
		return out
	}
	if upd.WorkoutID != nil {
		out.WorkoutID = clonePtr(upd.WorkoutID)
	}
	if upd.ProgramID != nil {
		out.ProgramID = clonePtr(upd.ProgramID)
	}
	if upd.Category != nil {
		out.Category = clonePtr(upd.Category)
	}
	if upd.LastWorkoutDuration != nil {
		out.LastWorkoutDuration = clonePtr(upd.LastWorkoutDuration)
	}
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// State is a copy of the navigation state at one transition.
type State struct {
	Screen   Screen
	Previous Screen
	Aux      Aux
	Seq      uint64 // incremented on every transition
}

// ScrollResetter is implemented by the view layer; it is called on every transition.
type ScrollResetter interface {
	ResetScroll()
}

// ScrollResetterFunc adapts a function to ScrollResetter.
type ScrollResetterFunc func()

func (f ScrollResetterFunc) ResetScroll() { f() }

// Option customizes Machine construction.
type Option func(*Machine)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(log *zap.Logger) Option {
	return func(m *Machine) {
		if log != nil {
			m.log = log
		}
	}
}

// WithScrollResetter installs the viewport hook.
func WithScrollResetter(r ScrollResetter) Option {
	return func(m *Machine) {
		if r != nil {
			m.scroll = r
		}
	}
}

// Machine is the single writer of navigation state. All transitions go through Goto.
type Machine struct {
	mu     sync.Mutex
	st     State
	scroll ScrollResetter
	subs   map[int]func(State)
	nextID int
	log    *zap.Logger

	notifyMu  sync.Mutex
	delivered uint64 // Seq of the last state handed to subscribers
}

// New returns a machine positioned on Splash.
func New(opts ...Option) *Machine {
	m := &Machine{
		st:     State{Screen: Splash},
		scroll: ScrollResetterFunc(func() {}),
		subs:   map[int]func(State){},
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Current returns the current screen.
func (m *Machine) Current() Screen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Screen
}

// Goto moves to screen, merging aux into the stored selections. If the screen needs a selection
// that is still unset after the merge, the screen's fallback is shown instead.
// Screen and selections change together; the resulting state is returned.
func (m *Machine) Goto(screen Screen, aux *Aux) State {
	m.mu.Lock()
	out, subs := m.transitionLocked(screen, aux)
	m.mu.Unlock()
	m.notify(out, subs)
	return out
}

// GotoIf applies the transition only when cond, evaluated under the state lock, returns true.
// cond must not call back into the machine.
func (m *Machine) GotoIf(cond func() bool, screen Screen, aux *Aux) (State, bool) {
	m.mu.Lock()
	if !cond() {
		out := m.snapshotLocked()
		m.mu.Unlock()
		return out, false
	}
	out, subs := m.transitionLocked(screen, aux)
	m.mu.Unlock()
	m.notify(out, subs)
	return out, true
}

func (m *Machine) transitionLocked(screen Screen, aux *Aux) (State, []func(State)) {
	merged := m.st.Aux.merge(aux)
	m.st = State{
		Screen:   m.landing(screen, merged),
		Previous: m.st.Screen,
		Aux:      merged,
		Seq:      m.st.Seq + 1,
	}
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	return m.snapshotLocked(), subs
}

// notify delivers st unless subscribers already saw a later state, so they observe Seq in
// increasing order and the last delivery always matches the machine.
func (m *Machine) notify(st State, subs []func(State)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.scroll.ResetScroll()
	if st.Seq <= m.delivered {
		return
	}
	m.delivered = st.Seq
	for _, fn := range subs {
		fn(st)
	}
}

// Back returns to the screen shown before the last transition.
func (m *Machine) Back() State {
	m.mu.Lock()
	prev := m.st.Previous
	m.mu.Unlock()
	if prev == "" {
		prev = DefaultLanding
	}
	return m.Goto(prev, nil)
}

// Subscribe registers fn to be called after every transition. The returned func unsubscribes.
// fn runs on the goroutine that performed the transition and must not start a transition itself.
// Under concurrent transitions an older state is skipped once a newer one was delivered.
func (m *Machine) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Machine) landing(screen Screen, aux Aux) Screen {
	if !screen.Valid() {
		m.log.Warn("unknown screen, using default landing", zap.String("screen", string(screen)))
		return DefaultLanding
	}
	req, ok := requirements[screen]
	if !ok || req.has(aux) {
		return screen
	}
	m.log.Debug("missing selection, falling back",
		zap.String("screen", string(screen)),
		zap.String("fallback", string(req.fallback)),
	)
	return req.fallback
}

func (m *Machine) snapshotLocked() State {
	out := m.st
	out.Aux = m.st.Aux.clone()
	return out
}
