package metrics

import (
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// LedgerMetrics holds the service's prometheus collectors.
type LedgerMetrics struct {
	// Status changes by direction
	TransitionsTotal *prometheus.CounterVec

	// Gateway callbacks by provider and result
	CallbacksTotal *prometheus.CounterVec

	// Ledger mutations
	BalanceMutationsTotal      *prometheus.CounterVec
	BalanceMutationAmountTotal *prometheus.CounterVec

	// HTTP surface
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewLedgerMetrics registers the collectors on reg. A nil reg uses the default registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &LedgerMetrics{
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transaction_transitions_total",
				Help: "Committed transaction status changes",
			},
			[]string{"direction", "status"},
		),
		CallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_callbacks_total",
				Help: "Gateway callbacks reconciled, by outcome",
			},
			[]string{"provider", "result"},
		),
		BalanceMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_mutations_total",
				Help: "Balance credits and debits written",
			},
			[]string{"op", "currency"},
		),
		BalanceMutationAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_mutation_amount_total",
				Help: "Sum of credited and debited amounts",
			},
			[]string{"op", "currency"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_http_request_duration_seconds",
				Help:    "HTTP request latency by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
	}
}

func (m *LedgerMetrics) RecordTransition(direction domain.Direction, status domain.TransactionStatus) {
	m.TransitionsTotal.WithLabelValues(string(direction), string(status)).Inc()
}

func (m *LedgerMetrics) RecordCallback(provider string, result string) {
	m.CallbacksTotal.WithLabelValues(provider, result).Inc()
}

func (m *LedgerMetrics) RecordBalanceMutation(op string, currency string, amount decimal.Decimal) {
	m.BalanceMutationsTotal.WithLabelValues(op, currency).Inc()
	m.BalanceMutationAmountTotal.WithLabelValues(op, currency).Add(amount.InexactFloat64())
}

func (m *LedgerMetrics) ObserveHTTPRequest(route string, status int, elapsed time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(route, statusClass(status)).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
