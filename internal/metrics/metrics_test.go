package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestResolution_Counters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewResolution(reg)

	m.PassStarted("app_start")
	m.PassStarted("app_start")
	m.DecisionApplied("goto", "approved")
	m.StaleDecision()
	m.FetchFailed(FailureProfile)
	m.ObservePass(12 * time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Passes.WithLabelValues("app_start")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("goto", "approved")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StaleDropped))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues(FailureProfile)))
	require.Equal(t, 1, testutil.CollectAndCount(m.PassDurationMs))
}

func TestNilReceiversAreNoops(t *testing.T) {
	t.Parallel()
	var r *Resolution
	r.PassStarted("x")
	r.DecisionApplied("goto", "x")
	r.StaleDecision()
	r.FetchFailed("x")
	r.ObservePass(time.Second)

	var b *Backend
	b.ObserveRPC("/m", "OK", time.Millisecond)
	b.Login("ok")
}

func TestBackend_ObserveRPC(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewBackend(reg)
	m.ObserveRPC("/gymflow.v1.Backend/GetProfile", "OK", 3*time.Millisecond)
	m.Login("unauthorized")

	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/gymflow.v1.Backend/GetProfile", "OK")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("unauthorized")))
}
