package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProvider struct {
	mu        sync.Mutex
	sess      *model.Session
	err       error
	block     bool
	subs      map[int]func(model.SessionEvent)
	next      int
	refreshes atomic.Int32
	pings     atomic.Int32
	refreshFn func() error
}

var (
	_ Provider = (*fakeProvider)(nil)
	_ Pinger   = (*fakeProvider)(nil)
)

func newFakeProvider(sess *model.Session) *fakeProvider {
	return &fakeProvider{sess: sess, subs: map[int]func(model.SessionEvent){}}
}

func (p *fakeProvider) CurrentSession(ctx context.Context) (*model.Session, error) {
	p.mu.Lock()
	block, sess, err := p.block, p.sess, p.err
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return sess, err
}

func (p *fakeProvider) Subscribe(fn func(model.SessionEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) Refresh(context.Context) error {
	p.refreshes.Add(1)
	if p.refreshFn != nil {
		return p.refreshFn()
	}
	return nil
}

func (p *fakeProvider) Ping(context.Context) error {
	p.pings.Add(1)
	return nil
}

func (p *fakeProvider) emit(ev model.SessionEvent) {
	p.mu.Lock()
	subs := make([]func(model.SessionEvent), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (p *fakeProvider) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func validSession(ttl time.Duration) *model.Session {
	return &model.Session{
		UserID:      uuid.Must(uuid.NewV4()),
		AccessToken: "tok",
		Provider:    model.ProviderEmail,
		ExpiresAt:   time.Now().Add(ttl),
	}
}

func quietConfig() Config {
	return Config{KeepaliveInterval: time.Hour, RefreshLeeway: time.Minute, InitialCheckTimeout: time.Second}
}

func TestMonitor_StartReturnsCurrentSessionOnce(t *testing.T) {
	t.Parallel()
	sess := validSession(time.Hour)
	m := NewMonitor(newFakeProvider(sess), nil, WithConfig(quietConfig()), WithLogger(zaptest.NewLogger(t)))
	defer m.Stop()

	got, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, sess.UserID, got.UserID)

	_, err = m.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestMonitor_InitialCheckFailureMeansNoSession(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(nil)
	p.err = errors.New("network down")
	m := NewMonitor(p, nil, WithConfig(quietConfig()))
	defer m.Stop()

	got, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMonitor_InitialCheckNeverHangs(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(nil)
	p.block = true
	cfg := quietConfig()
	cfg.InitialCheckTimeout = 30 * time.Millisecond
	m := NewMonitor(p, nil, WithConfig(cfg))
	defer m.Stop()

	type result struct {
		sess *model.Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		got, err := m.Start(context.Background())
		done <- result{got, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Nil(t, r.sess)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
}

func TestMonitor_ExpiredStoredSession(t *testing.T) {
	t.Parallel()
	m := NewMonitor(newFakeProvider(validSession(-time.Minute)), nil, WithConfig(quietConfig()))
	defer m.Stop()

	got, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMonitor_DeliversEventsInOrder(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(nil)
	m := NewMonitor(p, nil, WithConfig(quietConfig()))
	defer m.Stop()
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	a, b := validSession(time.Hour), validSession(time.Hour)
	sent := []model.SessionEvent{
		{Kind: model.EventSignedIn, Session: a},
		{Kind: model.EventTokenRefreshed, Session: a},
		{Kind: model.EventSignedOut},
		{Kind: model.EventSignedIn, Session: b},
		{Kind: model.EventSignedIn, Session: b},
	}
	// the provider is never blocked by a slow consumer
	for _, ev := range sent {
		p.emit(ev)
	}

	for i, want := range sent {
		select {
		case got := <-m.Events():
			require.Equal(t, want.Kind, got.Kind, "event %d", i)
			require.Equal(t, want.Session, got.Session, "event %d", i)
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected extra event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMonitor_SignOutClearsFlags(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(validSession(time.Hour))
	flags := NewFlags()
	m := NewMonitor(p, flags, WithConfig(quietConfig()))
	defer m.Stop()
	sess, err := m.Start(context.Background())
	require.NoError(t, err)

	require.True(t, flags.Mark(FlagRouted, sess.UserID))
	p.emit(model.SessionEvent{Kind: model.EventSignedOut})

	ev := <-m.Events()
	require.Equal(t, model.EventSignedOut, ev.Kind)
	require.False(t, flags.Has(FlagRouted, sess.UserID))
}

func TestMonitor_NoSessionAtStartClearsFlags(t *testing.T) {
	t.Parallel()
	flags := NewFlags()
	id := uuid.Must(uuid.NewV4())
	flags.Mark(FlagPasswordSkipped, id)

	m := NewMonitor(newFakeProvider(nil), flags, WithConfig(quietConfig()))
	defer m.Stop()
	_, err := m.Start(context.Background())
	require.NoError(t, err)
	require.False(t, flags.Has(FlagPasswordSkipped, id))
}

func TestMonitor_KeepaliveRefreshesNearExpiry(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(validSession(30 * time.Second))
	m := NewMonitor(p, nil, WithConfig(Config{
		KeepaliveInterval: 5 * time.Millisecond,
		RefreshLeeway:     time.Minute,
	}))
	defer m.Stop()
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.refreshes.Load() > 0 }, time.Second, 5*time.Millisecond)
	require.Positive(t, p.pings.Load())
}

func TestMonitor_KeepaliveLeavesFreshTokensAlone(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(validSession(time.Hour))
	m := NewMonitor(p, nil, WithConfig(Config{
		KeepaliveInterval: 5 * time.Millisecond,
		RefreshLeeway:     time.Minute,
	}))
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.pings.Load() > 2 }, time.Second, 5*time.Millisecond)
	m.Stop()
	require.Zero(t, p.refreshes.Load())
}

func TestMonitor_RefreshFailureKeepsRunning(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(validSession(10 * time.Second))
	p.refreshFn = func() error { return errors.New("refresh rejected") }
	m := NewMonitor(p, nil, WithConfig(Config{KeepaliveInterval: 5 * time.Millisecond, RefreshLeeway: time.Minute}))
	defer m.Stop()
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.refreshes.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_StopClosesEventsAndUnsubscribes(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(nil)
	m := NewMonitor(p, nil, WithConfig(quietConfig()))
	_, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.subscribers())

	m.Stop()
	m.Stop()

	_, open := <-m.Events()
	require.False(t, open)
	require.Zero(t, p.subscribers())

	// late events after Stop are dropped
	p.emit(model.SessionEvent{Kind: model.EventSignedOut})
}

func TestFlags(t *testing.T) {
	t.Parallel()
	f := NewFlags()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	require.True(t, f.Mark(FlagRouted, a))
	require.False(t, f.Mark(FlagRouted, a))
	require.True(t, f.Has(FlagRouted, a))
	require.False(t, f.Has(FlagRouted, b))
	require.False(t, f.Has(FlagPasswordSkipped, a))

	f.Clear()
	require.False(t, f.Has(FlagRouted, a))
}
