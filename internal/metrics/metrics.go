package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/and161185/docrepo/internal/errs"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Repository provides observability for repositories and collection binding.
// A nil *Repository records nothing.
type Repository struct {
	// Operations by collection, op and outcome
	Operations *prometheus.CounterVec

	// Operation latency by collection and op
	Latency *prometheus.HistogramVec

	// Indexes that failed to build during provisioning
	IndexFailures *prometheus.CounterVec

	// Collections bound, by whether they had to be created
	Bindings *prometheus.CounterVec
}

// New registers the repository metrics on reg.
func New(reg prometheus.Registerer) *Repository {
	f := promauto.With(reg)
	return &Repository{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docrepo_repository_operations_total",
			Help: "Total repository operations by collection, operation and outcome",
		}, []string{"collection", "op", "outcome"}),

		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docrepo_repository_operation_duration_seconds",
			Help:    "Duration of repository operations including store round trips",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"collection", "op"}),

		IndexFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docrepo_index_failures_total",
			Help: "Indexes that could not be created when provisioning a collection",
		}, []string{"collection"}),

		Bindings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docrepo_collection_bindings_total",
			Help: "Collections bound, by binding kind (created, existing)",
		}, []string{"collection", "binding"}),
	}
}

// ObserveOp records one operation and its outcome derived from err.
func (m *Repository) ObserveOp(collection, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(collection, op, Outcome(err)).Inc()
	m.Latency.WithLabelValues(collection, op).Observe(d.Seconds())
}

// IncrementIndexFailures records n failed index builds.
func (m *Repository) IncrementIndexFailures(collection string, n int) {
	if m != nil && n > 0 {
		m.IndexFailures.WithLabelValues(collection).Add(float64(n))
	}
}

// IncrementBinding records a bound collection.
func (m *Repository) IncrementBinding(collection, binding string) {
	if m != nil {
		m.Bindings.WithLabelValues(collection, binding).Inc()
	}
}

// Outcome maps an operation error to its label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, errs.ErrVersionConflict):
		return OutcomeConflict
	case errors.Is(err, errs.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
