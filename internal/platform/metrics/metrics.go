package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the registration and payment flows report into.
type Metrics struct {
	DraftsCreated           prometheus.Counter
	Reconciliations         *prometheus.CounterVec
	ReceiptCollisionRetries prometheus.Counter
	SignatureFailures       prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		DraftsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_drafts_created_total",
			Help: "Total number of draft registrations created",
		}),
		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examreg_reconciliations_total",
			Help: "Total number of reconciliation attempts by outcome",
		}, []string{"outcome"}),
		ReceiptCollisionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_receipt_collision_retries_total",
			Help: "Total number of receipt number collisions retried during reconciliation",
		}),
		SignatureFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_signature_failures_total",
			Help: "Total number of rejected payment signatures",
		}),
	}
}

func (m *Metrics) IncrementDraftsCreated() {
	if m == nil {
		return
	}
	m.DraftsCreated.Inc()
}

// ObserveReconciliation records a reconciliation outcome: paid, pending,
// already_paid or failed.
func (m *Metrics) ObserveReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementReceiptCollisionRetries() {
	if m == nil {
		return
	}
	m.ReceiptCollisionRetries.Inc()
}

func (m *Metrics) IncrementSignatureFailures() {
	if m == nil {
		return
	}
	m.SignatureFailures.Inc()
}
