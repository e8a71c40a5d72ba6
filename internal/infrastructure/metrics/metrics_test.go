package metrics

import (
	"testing"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.RecordTransition(domain.DirectionPayin, domain.StatusCompleted)
	m.RecordTransition(domain.DirectionPayin, domain.StatusCompleted)
	m.RecordCallback("formkassa", "ok")
	m.RecordBalanceMutation("credit", "RUB", decimal.RequireFromString("12.5"))
	m.RecordBalanceMutation("credit", "RUB", decimal.RequireFromString("7.5"))
	m.ObserveHTTPRequest("/webhooks/{provider}", 403, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("PAYIN", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbacksTotal.WithLabelValues("formkassa", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BalanceMutationsTotal.WithLabelValues("credit", "RUB")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.BalanceMutationAmountTotal.WithLabelValues("credit", "RUB")))

	count, err := testutil.GatherAndCount(reg, "ledger_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewLedgerMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLedgerMetrics(prometheus.NewRegistry())
		NewLedgerMetrics(prometheus.NewRegistry())
	})
}
