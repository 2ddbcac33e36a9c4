// Package profile assembles the profile snapshot the resolver classifies.
package profile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/metrics"
	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source is the part of the backend the fetcher reads from.
type Source interface {
	// GetProfile loads the stored profile of userID.
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// GetAuthMetadata describes the caller's sign-in.
	GetAuthMetadata(ctx context.Context) (model.AuthMetadata, error)
	// GetGlobalSetting reads a single global setting.
	GetGlobalSetting(ctx context.Context, key string) (model.GlobalSetting, error)
}

// Fetcher issues the minimum reads needed for a snapshot. It does not retry.
type Fetcher struct {
	src     Source
	log     *zap.Logger
	metrics *metrics.Resolution
}

// NewFetcher constructs a Fetcher. log and m may be nil.
func NewFetcher(src Source, log *zap.Logger, m *metrics.Resolution) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{src: src, log: log, metrics: m}
}

// Fetch returns a complete snapshot for the session's user or an error wrapping errs.ErrProfileFetch.
// Global settings are only read when the profile has a plan expiry date; a failure there is
// absorbed and leaves the global grace period unset.
func (f *Fetcher) Fetch(ctx context.Context, sess model.Session) (model.ProfileSnapshot, error) {
	if sess.UserID == uuid.Nil {
		return model.ProfileSnapshot{}, fmt.Errorf("%w: empty user id", errs.ErrProfileFetch)
	}

	var (
		prof *model.Profile
		meta model.AuthMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := f.src.GetProfile(gctx, sess.UserID)
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		if p == nil {
			return fmt.Errorf("get profile: %w", errs.ErrNotFound)
		}
		prof = p
		return nil
	})
	g.Go(func() error {
		m, err := f.src.GetAuthMetadata(gctx)
		if err != nil {
			return fmt.Errorf("get auth metadata: %w", err)
		}
		meta = m
		return nil
	})
	if err := g.Wait(); err != nil {
		f.metrics.FetchFailed(metrics.FailureProfile)
		return model.ProfileSnapshot{}, fmt.Errorf("%w: %w", errs.ErrProfileFetch, err)
	}

	provider := meta.Provider
	if provider == "" {
		provider = sess.Provider
	}

	var globalGrace *int
	if prof.PlanExpiryDate != nil {
		globalGrace = f.globalGrace(ctx)
	}
	return model.NewProfileSnapshot(*prof, provider.Federated(), globalGrace), nil
}

func (f *Fetcher) globalGrace(ctx context.Context) *int {
	days, err := f.readGlobalGrace(ctx)
	if err != nil {
		f.metrics.FetchFailed(metrics.FailureSettings)
		f.log.Warn("global grace period unavailable", zap.Error(err))
		return nil
	}
	return &days
}

func (f *Fetcher) readGlobalGrace(ctx context.Context) (int, error) {
	s, err := f.src.GetGlobalSetting(ctx, model.GlobalGracePeriodKey)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errs.ErrSettingsFetch, err)
	}
	days, err := strconv.Atoi(strings.TrimSpace(s.Value))
	if err != nil || days < 0 {
		return 0, fmt.Errorf("%w: bad %s value %q", errs.ErrSettingsFetch, model.GlobalGracePeriodKey, s.Value)
	}
	return days, nil
}
