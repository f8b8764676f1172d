package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xswap/pkg/types"
)

func TestObserveOperation(t *testing.T) {
	m := New()

	m.ObserveOperation(1, "claim", time.Now(), nil)
	m.ObserveOperation(1, "claim", time.Now(), types.ErrSwapClosed)
	m.ObserveOperation(1, "claim", time.Now(), types.ErrSwapClosed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("1", "claim", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("1", "claim", "swap_closed")))
}

func TestOutcomesAndSettled(t *testing.T) {
	m := New()

	m.CloseOutcome(2, types.OutcomeFailed)
	m.Settled(1, "batch_claim", 3)
	m.RelayJob("close", "done")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.closeOutcomes.WithLabelValues("2", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.settled.WithLabelValues("1", "batch_claim")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayJobs.WithLabelValues("close", "done")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation(1, "swap", time.Now(), nil)
		m.CloseOutcome(1, types.OutcomeSuccess)
		m.Settled(1, "claim", 1)
		m.RelayJob("claim", "done")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Settled(1, "refund", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "xswap_registry_settled_swaps_total"))
}
