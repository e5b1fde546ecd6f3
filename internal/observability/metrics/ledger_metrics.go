// Package metrics exposes low-cardinality health signals for the ledger core.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ConfirmationResultConfirmed = "confirmed"
	ConfirmationResultDeclined  = "declined"
)

// LedgerMetrics captures reconciliation and overdue-scan health signals.
type LedgerMetrics struct {
	reconcilePasses prometheus.Counter
	overdueDetected *prometheus.CounterVec
	scanRuns        prometheus.Counter
	scanDuration    prometheus.Histogram
	confirmations   *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = newLedgerMetrics(prometheus.DefaultRegisterer)
	})
	return ledgerMetrics
}

func newLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	reconcilePasses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_passes_total",
		Help: "Installment schedule reconciliation passes.",
	})
	overdueDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_overdue_detected_total",
		Help: "Items escalated to overdue by the scanner, by entity.",
	}, []string{"entity"})
	scanRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_overdue_scan_runs_total",
		Help: "Overdue scanner passes over the invoice collection.",
	})
	scanDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_overdue_scan_duration_seconds",
		Help:    "Overdue scan latency.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_payment_confirmations_total",
		Help: "Payment confirmation prompt outcomes.",
	}, []string{"result"})

	registerer.MustRegister(reconcilePasses, overdueDetected, scanRuns, scanDuration, confirmations)

	return &LedgerMetrics{
		reconcilePasses: reconcilePasses,
		overdueDetected: overdueDetected,
		scanRuns:        scanRuns,
		scanDuration:    scanDuration,
		confirmations:   confirmations,
	}
}

func (m *LedgerMetrics) IncReconcilePass() {
	if m == nil {
		return
	}
	m.reconcilePasses.Inc()
}

func (m *LedgerMetrics) IncOverdueDetected(entity string) {
	if m == nil {
		return
	}
	m.overdueDetected.WithLabelValues(entity).Inc()
}

func (m *LedgerMetrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	m.scanRuns.Inc()
	m.scanDuration.Observe(d.Seconds())
}

func (m *LedgerMetrics) IncConfirmation(result string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(result).Inc()
}
