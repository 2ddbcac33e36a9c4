package main

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/gymflow/internal/auth"
	"github.com/and161185/gymflow/internal/client"
	"github.com/and161185/gymflow/internal/config"
	"github.com/and161185/gymflow/internal/engine"
	"github.com/and161185/gymflow/internal/gate"
	"github.com/and161185/gymflow/internal/metrics"
	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/navigation"
	"github.com/and161185/gymflow/internal/profile"
	"github.com/and161185/gymflow/internal/resolver"
	"github.com/and161185/gymflow/internal/session"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// deps holds the client-side collaborators shared by the commands.
type deps struct {
	cfg      *config.Config
	log      *zap.Logger
	client   *client.Client
	provider *auth.Provider
	metrics  *metrics.Resolution
}

var _ controller = (*engine.Engine)(nil)

func connect(cfg *config.Config, log *zap.Logger) (*deps, error) {
	provider := auth.NewProvider(auth.NewFileStore(""), log)
	tc, err := client.TransportCredentials(cfg.CACert, cfg.Insecure)
	if err != nil {
		return nil, err
	}
	c, err := client.Dial(cfg.Addr, tc, provider, client.WithTimeout(cfg.RPCTimeout))
	if err != nil {
		return nil, err
	}
	provider.SetBackend(c)
	return &deps{
		cfg:      cfg,
		log:      log,
		client:   c,
		provider: provider,
		metrics:  metrics.NewResolution(prometheus.NewRegistry()),
	}, nil
}

func (d *deps) Close() { _ = d.client.Close() }

func (d *deps) fetcher() *profile.Fetcher {
	return profile.NewFetcher(d.client, d.log, d.metrics)
}

// engine assembles the resolution pipeline over the stored session.
func (d *deps) engine(scroll navigation.ScrollResetter) *engine.Engine {
	flags := session.NewFlags()
	mon := session.NewMonitor(d.provider, flags,
		session.WithLogger(d.log),
		session.WithMetrics(d.metrics),
		session.WithConfig(session.Config{
			KeepaliveInterval: d.cfg.KeepaliveInterval,
			RefreshLeeway:     d.cfg.RefreshLeeway,
		}),
	)
	opts := []navigation.Option{navigation.WithLogger(d.log)}
	if scroll != nil {
		opts = append(opts, navigation.WithScrollResetter(scroll))
	}
	return engine.New(mon, d.fetcher(), navigation.New(opts...), gate.New(d.client, flags, d.log),
		engine.WithLogger(d.log),
		engine.WithMetrics(d.metrics),
	)
}

// whereami runs one initial resolution pass for sess without touching any navigation state.
func whereami(ctx context.Context, sess *model.Session, f engine.Fetcher, now time.Time) resolver.Decision {
	if sess == nil || !sess.Valid(now) {
		return resolver.GoTo(navigation.Welcome, "no_session")
	}
	snap, err := f.Fetch(ctx, *sess)
	if err != nil {
		return resolver.ResolveFailure()
	}
	return resolver.Resolve(snap, model.ResolutionPass{
		InitialLoad: true,
		Reason:      model.ReasonAppStart,
		At:          now,
	})
}

func describe(d resolver.Decision) string {
	switch d.Kind {
	case resolver.KindGoTo:
		return fmt.Sprintf("%s\t(%s)", d.Screen, d.Rule)
	case resolver.KindShowPasswordSetup:
		return fmt.Sprintf("password setup required\t(%s)", d.Rule)
	case resolver.KindUnresolvable:
		return fmt.Sprintf("%s\t(profile unavailable)", resolver.FailureFallback)
	default:
		return fmt.Sprintf("no change\t(%s)", d.Rule)
	}
}

// passwordBackend is the part of the API a standalone password change needs.
type passwordBackend interface {
	SetPassword(ctx context.Context, password string) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd model.ProfileUpdate) error
}

// setPassword stores a password and records it on the profile, in that order.
func setPassword(ctx context.Context, b passwordBackend, userID uuid.UUID, password string) error {
	if err := b.SetPassword(ctx, password); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	yes := true
	if err := b.UpdateProfile(ctx, userID, model.ProfileUpdate{HasPassword: &yes}); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}
