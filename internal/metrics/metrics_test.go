package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docrepo/internal/errs"
)

func TestOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, OutcomeOK, Outcome(nil))
	require.Equal(t, OutcomeConflict, Outcome(fmt.Errorf("update: %w", errs.ErrVersionConflict)))
	require.Equal(t, OutcomeNotFound, Outcome(&errs.RepositoryError{Op: "update", Err: errs.ErrNotFound}))
	require.Equal(t, OutcomeError, Outcome(errors.New("boom")))
}

func TestRepository_Records(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.ObserveOp("samples", "create", 3*time.Millisecond, nil)
	m.ObserveOp("samples", "update", time.Millisecond, errs.ErrVersionConflict)
	m.IncrementIndexFailures("samples", 2)
	m.IncrementIndexFailures("samples", 0)
	m.IncrementBinding("samples", "created")

	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("samples", "create", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("samples", "update", OutcomeConflict)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.IndexFailures.WithLabelValues("samples")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Bindings.WithLabelValues("samples", "created")))
}

func TestRepository_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Repository
	require.NotPanics(t, func() {
		m.ObserveOp("c", "op", time.Second, nil)
		m.IncrementIndexFailures("c", 1)
		m.IncrementBinding("c", "existing")
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
