package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/gate"
	"github.com/and161185/gymflow/internal/metrics"
	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/navigation"
	"github.com/and161185/gymflow/internal/resolver"
	"github.com/and161185/gymflow/internal/session"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitFor = 2 * time.Second

type fakeMonitor struct {
	start  *model.Session
	events chan model.SessionEvent
	flags  *session.Flags
}

var _ Monitor = (*fakeMonitor)(nil)

func (m *fakeMonitor) Start(context.Context) (*model.Session, error) { return m.start, nil }
func (m *fakeMonitor) Events() <-chan model.SessionEvent { return m.events }
func (m *fakeMonitor) Flags() *session.Flags { return m.flags }
func (m *fakeMonitor) Stop() {}

type fakeFetcher struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]model.ProfileSnapshot
	fail     map[uuid.UUID]error
	gates    map[uuid.UUID]chan struct{}
	started  chan uuid.UUID
}

var _ Fetcher = (*fakeFetcher)(nil)

func newFetcher() *fakeFetcher {
	return &fakeFetcher{
		profiles: map[uuid.UUID]model.ProfileSnapshot{},
		fail:     map[uuid.UUID]error{},
		gates:    map[uuid.UUID]chan struct{}{},
		started:  make(chan uuid.UUID, 16),
	}
}

func (f *fakeFetcher) set(id uuid.UUID, s model.ProfileSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[id] = s
}

func (f *fakeFetcher) setErr(id uuid.UUID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[id] = err
}

// hold makes the next fetches for id block until the returned func is called.
func (f *fakeFetcher) hold(id uuid.UUID) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[id] = ch
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.gates, id)
		f.mu.Unlock()
		close(ch)
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, sess model.Session) (model.ProfileSnapshot, error) {
	f.mu.Lock()
	g := f.gates[sess.UserID]
	f.mu.Unlock()
	select {
	case f.started <- sess.UserID:
	default:
	}
	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return model.ProfileSnapshot{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[sess.UserID]; err != nil {
		return model.ProfileSnapshot{}, err
	}
	return f.profiles[sess.UserID], nil
}

type fakeBackend struct {
	fetcher *fakeFetcher
	mu      sync.Mutex
	pw      []string
}

var _ gate.Backend = (*fakeBackend)(nil)

func (b *fakeBackend) SetPassword(_ context.Context, pw string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pw = append(b.pw, pw)
	return nil
}

func (b *fakeBackend) UpdateProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	if upd.HasPassword != nil {
		b.fetcher.mu.Lock()
		s := b.fetcher.profiles[id]
		s.HasPassword = *upd.HasPassword
		b.fetcher.profiles[id] = s
		b.fetcher.mu.Unlock()
	}
	return nil
}

type harness struct {
	eng     *Engine
	mon     *fakeMonitor
	fetcher *fakeFetcher
	backend *fakeBackend
	metrics *metrics.Resolution
	cancel  context.CancelFunc
	done    chan error
	stopped sync.Once
}

func newHarness(t *testing.T, start *model.Session, setup func(*fakeFetcher)) *harness {
	t.Helper()
	f := newFetcher()
	if setup != nil {
		setup(f)
	}
	flags := session.NewFlags()
	mon := &fakeMonitor{start: start, events: make(chan model.SessionEvent), flags: flags}
	b := &fakeBackend{fetcher: f}
	log := zaptest.NewLogger(t)
	m := metrics.NewResolution(prometheus.NewRegistry())
	g := gate.New(b, flags, log)
	eng := New(mon, f, navigation.New(navigation.WithLogger(log)), g, WithLogger(log), WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{eng: eng, mon: mon, fetcher: f, backend: b, metrics: m, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- eng.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
	return h
}

// stop cancels Run and waits for it to return.
func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.stopped.Do(func() {
		h.cancel()
		select {
		case err := <-h.done:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("engine did not stop")
		}
	})
}

func (h *harness) send(ev model.SessionEvent) { h.mon.events <- ev }

func (h *harness) waitScreen(t *testing.T, want navigation.Screen) {
	t.Helper()
	require.Eventually(t, func() bool { return h.eng.CurrentScreen() == want },
		waitFor, 5*time.Millisecond, "want %s, have %s", want, h.eng.CurrentScreen())
}

func (h *harness) waitStarted(t *testing.T, id uuid.UUID) {
	t.Helper()
	for {
		select {
		case got := <-h.fetcher.started:
			if got == id {
				return
			}
		case <-time.After(waitFor):
			t.Fatalf("fetch for %s never started", id)
		}
	}
}

func newSession(p model.Provider) *model.Session {
	return &model.Session{
		UserID:      uuid.Must(uuid.NewV4()),
		AccessToken: "tok",
		Provider:    p,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

var (
	approved = model.ProfileSnapshot{OnboardingCompleted: true, ApprovalStatus: model.ApprovalApproved, HasPassword: true}
	admin    = model.ProfileSnapshot{Role: model.RoleAdmin, HasPassword: true}
)

func TestRun_NoSessionGoesToWelcome(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.waitScreen(t, navigation.Welcome)
}

func TestRun_InitialPassRoutes(t *testing.T) {
	s := newSession(model.ProviderEmail)
	h := newHarness(t, s, func(f *fakeFetcher) { f.set(s.UserID, approved) })
	h.waitScreen(t, navigation.Dashboard)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Passes.WithLabelValues(string(model.ReasonAppStart))))
}

func TestRun_FetchFailureFallsBackToOnboarding(t *testing.T) {
	s := newSession(model.ProviderEmail)
	h := newHarness(t, s, func(f *fakeFetcher) { f.setErr(s.UserID, errs.ErrProfileFetch) })
	h.waitScreen(t, navigation.OnboardingEntry)
}

func TestRun_SignOutGoesToSignIn(t *testing.T) {
	s := newSession(model.ProviderEmail)
	h := newHarness(t, s, func(f *fakeFetcher) { f.set(s.UserID, approved) })
	h.waitScreen(t, navigation.Dashboard)

	h.send(model.SessionEvent{Kind: model.EventSignedOut})
	h.waitScreen(t, navigation.SignIn)
}

func TestRun_StaleSessionDecisionDropped(t *testing.T) {
	a := newSession(model.ProviderEmail)
	b := newSession(model.ProviderEmail)
	h := newHarness(t, nil, func(f *fakeFetcher) {
		f.set(a.UserID, approved)
		f.set(b.UserID, admin)
	})
	h.waitScreen(t, navigation.Welcome)

	release := h.fetcher.hold(a.UserID)
	h.send(model.SessionEvent{Kind: model.EventSignedIn, Session: a})
	h.waitStarted(t, a.UserID)

	h.send(model.SessionEvent{Kind: model.EventSignedIn, Session: b})
	h.waitScreen(t, navigation.AdminHome)

	release()
	require.Eventually(t, func() bool { return testutil.ToFloat64(h.metrics.StaleDropped) == 1 },
		waitFor, 5*time.Millisecond)
	require.Equal(t, navigation.AdminHome, h.eng.CurrentScreen())
}

func TestRun_PassNeverLandsAfterSignOut(t *testing.T) {
	a := newSession(model.ProviderEmail)
	h := newHarness(t, nil, func(f *fakeFetcher) { f.set(a.UserID, approved) })
	h.waitScreen(t, navigation.Welcome)

	release := h.fetcher.hold(a.UserID)
	h.send(model.SessionEvent{Kind: model.EventSignedIn, Session: a})
	h.waitStarted(t, a.UserID)
	h.send(model.SessionEvent{Kind: model.EventSignedOut})
	h.waitScreen(t, navigation.SignIn)

	release()
	require.Eventually(t, func() bool { return testutil.ToFloat64(h.metrics.StaleDropped) == 1 },
		waitFor, 5*time.Millisecond)
	require.Equal(t, navigation.SignIn, h.eng.CurrentScreen())
}

func TestRun_PassNeverLandsAfterStop(t *testing.T) {
	s := newSession(model.ProviderEmail)
	h := newHarness(t, s, func(f *fakeFetcher) {
		f.set(s.UserID, approved)
		f.hold(s.UserID)
	})
	h.waitStarted(t, s.UserID)

	h.stop(t)
	require.Equal(t, navigation.Splash, h.eng.CurrentScreen())
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StaleDropped))
}

func TestRun_OverlayDroppedWhenUserChanges(t *testing.T) {
	a := newSession(model.ProviderGoogle)
	b := newSession(model.ProviderEmail)
	needsPassword := approved
	needsPassword.HasPassword = false
	needsPassword.IsFederatedLogin = true
	h := newHarness(t, a, func(f *fakeFetcher) {
		f.set(a.UserID, needsPassword)
		f.set(b.UserID, approved)
	})
	require.Eventually(t, h.eng.ShowPasswordSetupOverlay, waitFor, 5*time.Millisecond)

	h.send(model.SessionEvent{Kind: model.EventSignedIn, Session: b})
	h.waitScreen(t, navigation.Dashboard)
	require.False(t, h.eng.ShowPasswordSetupOverlay())

	require.ErrorIs(t, h.eng.CompletePasswordSetup(context.Background(), "long-enough"), gate.ErrInactive)
	require.Empty(t, h.backend.pw)
}

func TestRun_AdminOnlyRedirectedOnce(t *testing.T) {
	s := newSession(model.ProviderEmail)
	h := newHarness(t, s, func(f *fakeFetcher) { f.set(s.UserID, admin) })
	h.waitScreen(t, navigation.AdminHome)

	h.eng.Navigate(navigation.AdminMembers, nil)
	h.send(model.SessionEvent{Kind: model.EventTokenRefreshed, Session: s})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Decisions.WithLabelValues("no_change", "admin")) == 1
	}, waitFor, 5*time.Millisecond)
	require.Equal(t, navigation.AdminMembers, h.eng.CurrentScreen())

	// a new sign-in after sign-out is an initial load again
	h.send(model.SessionEvent{Kind: model.EventSignedOut})
	h.waitScreen(t, navigation.SignIn)
	h.send(model.SessionEvent{Kind: model.EventSignedIn, Session: s})
	h.waitScreen(t, navigation.AdminHome)
}

func TestRun_PasswordSetupSkip(t *testing.T) {
	s := newSession(model.ProviderGoogle)
	snap := approved
	snap.HasPassword = false
	snap.IsFederatedLogin = true
	h := newHarness(t, s, func(f *fakeFetcher) { f.set(s.UserID, snap) })

	require.Eventually(t, h.eng.ShowPasswordSetupOverlay, waitFor, 5*time.Millisecond)
	require.Equal(t, navigation.Splash, h.eng.CurrentScreen())

	require.NoError(t, h.eng.SkipPasswordSetup(context.Background()))
	require.False(t, h.eng.ShowPasswordSetupOverlay())
	require.Equal(t, navigation.Dashboard, h.eng.CurrentScreen())

	// still skipped for the rest of the session
	h.send(model.SessionEvent{Kind: model.EventUserUpdated, Session: s})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Passes.WithLabelValues(string(model.ReasonUserUpdated))) == 1
	}, waitFor, 5*time.Millisecond)
	require.Never(t, h.eng.ShowPasswordSetupOverlay, 50*time.Millisecond, 5*time.Millisecond)
}

func TestRun_PasswordSetupCompleteAdmin(t *testing.T) {
	s := newSession(model.ProviderGoogle)
	snap := admin
	snap.HasPassword = false
	snap.IsFederatedLogin = true
	h := newHarness(t, s, func(f *fakeFetcher) { f.set(s.UserID, snap) })
	require.Eventually(t, h.eng.ShowPasswordSetupOverlay, waitFor, 5*time.Millisecond)

	require.ErrorIs(t, h.eng.CompletePasswordSetup(context.Background(), "short"), errs.ErrPasswordPolicy)
	require.True(t, h.eng.ShowPasswordSetupOverlay())

	require.NoError(t, h.eng.CompletePasswordSetup(context.Background(), "long-enough"))
	require.False(t, h.eng.ShowPasswordSetupOverlay())
	require.Equal(t, navigation.AdminHome, h.eng.CurrentScreen())
	require.Equal(t, []string{"long-enough"}, h.backend.pw)
}

func TestPlaceAdmin(t *testing.T) {
	t.Parallel()
	stay := resolver.Decision{Kind: resolver.KindNoChange, Rule: resolver.RuleAdmin}
	home := resolver.GoTo(navigation.AdminHome, resolver.RuleAdmin)

	require.Equal(t, home, placeAdmin(stay, navigation.Splash))
	require.Equal(t, home, placeAdmin(stay, navigation.SignIn))
	require.Equal(t, stay, placeAdmin(stay, navigation.AdminMembers))

	other := resolver.Decision{Kind: resolver.KindNoChange, Rule: "other"}
	require.Equal(t, other, placeAdmin(other, navigation.Splash))
	dash := resolver.GoTo(navigation.Dashboard, resolver.RuleApproved)
	require.Equal(t, dash, placeAdmin(dash, navigation.Welcome))
}

func TestRefresh_StaysPutOnFailure(t *testing.T) {
	s := newSession(model.ProviderEmail)
	pending := model.ProfileSnapshot{OnboardingCompleted: true, ApprovalStatus: model.ApprovalPending, HasPassword: true}
	h := newHarness(t, s, func(f *fakeFetcher) { f.set(s.UserID, pending) })
	h.waitScreen(t, navigation.ApplicationStatus)

	boom := errors.New("offline")
	h.fetcher.setErr(s.UserID, boom)
	require.ErrorIs(t, h.eng.Refresh(context.Background()), boom)
	require.Equal(t, navigation.ApplicationStatus, h.eng.CurrentScreen())

	h.fetcher.setErr(s.UserID, nil)
	h.fetcher.set(s.UserID, approved)
	require.NoError(t, h.eng.Refresh(context.Background()))
	require.Equal(t, navigation.Dashboard, h.eng.CurrentScreen())
}

func TestRefresh_NoSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.waitScreen(t, navigation.Welcome)
	require.ErrorIs(t, h.eng.Refresh(context.Background()), ErrNoSession)
}

func TestNavigate_Selections(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.waitScreen(t, navigation.Welcome)

	cat := navigation.Category{ID: "c1", Name: "Yoga"}
	st := h.eng.Navigate(navigation.CategoryVideos, &navigation.Aux{Category: &cat})
	require.Equal(t, navigation.CategoryVideos, st.Screen)
	require.Equal(t, &cat, h.eng.Selections().Category)
}
