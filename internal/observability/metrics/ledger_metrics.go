package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RecalculationOK        = "ok"
	RecalculationViolation = "invariant_violation"
	RecalculationFailed    = "failed"
)

// LedgerMetrics tracks invoice numbering and recalculation health on the
// Prometheus registry scraped at /metrics.
type LedgerMetrics struct {
	numbersAllocated    *prometheus.CounterVec
	numberingConflicts  *prometheus.CounterVec
	allocationLatency   *prometheus.HistogramVec
	recalculations      *prometheus.CounterVec
	invariantViolations *prometheus.CounterVec
	invoicesOutstanding *prometheus.GaugeVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics registered on the default registerer.
func Ledger(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = NewLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

// NewLedgerMetrics registers the ledger collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "taxengine"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &LedgerMetrics{
		numbersAllocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "taxengine_invoice_numbers_allocated_total",
			Help:        "Invoice numbers handed out by the sequence allocator.",
			ConstLabels: constLabels,
		}, []string{"backend"}),
		numberingConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "taxengine_invoice_numbering_conflicts_total",
			Help:        "Sequence allocations that failed with an unresolvable conflict.",
			ConstLabels: constLabels,
		}, []string{"backend", "reason"}),
		allocationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "taxengine_invoice_number_allocation_seconds",
			Help:        "Time spent holding the sequence critical section.",
			Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}, []string{"backend"}),
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "taxengine_invoice_recalculations_total",
			Help:        "Invoice total recalculations by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		invariantViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "taxengine_invoice_invariant_violations_total",
			Help:        "Post-recalculation invariant checks that failed, by field.",
			ConstLabels: constLabels,
		}, []string{"field"}),
		invoicesOutstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "taxengine_invoices_outstanding_amount",
			Help:        "Outstanding invoice amount per status, refreshed by the metrics pusher.",
			ConstLabels: constLabels,
		}, []string{"status"}),
	}

	registerer.MustRegister(
		m.numbersAllocated,
		m.numberingConflicts,
		m.allocationLatency,
		m.recalculations,
		m.invariantViolations,
		m.invoicesOutstanding,
	)
	return m
}

func (m *LedgerMetrics) IncNumberAllocated(backend string, elapsed time.Duration) {
	if m == nil {
		return
	}
	backend = normalizeLabel(backend)
	m.numbersAllocated.WithLabelValues(backend).Inc()
	m.allocationLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (m *LedgerMetrics) IncNumberingConflict(backend, reason string) {
	if m == nil {
		return
	}
	m.numberingConflicts.WithLabelValues(normalizeLabel(backend), normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncRecalculation(outcome string) {
	if m == nil {
		return
	}
	m.recalculations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) IncInvariantViolation(field string) {
	if m == nil {
		return
	}
	m.invariantViolations.WithLabelValues(normalizeLabel(field)).Inc()
}

func (m *LedgerMetrics) SetOutstanding(status string, amount float64) {
	if m == nil {
		return
	}
	m.invoicesOutstanding.WithLabelValues(normalizeLabel(status)).Set(amount)
}

func normalizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
