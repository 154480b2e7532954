package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerMetricsCountsRunsAndErrors(t *testing.T) {
	m := NewSchedulerMetrics(prometheus.NewRegistry(), Config{ServiceName: "taxengine", Environment: "test"})

	m.IncJobRun("overdue_sweep")
	m.IncJobRun("overdue_sweep")
	m.IncJobSkipped("overdue_sweep")
	m.AddProcessed("overdue_sweep", 3)
	m.AddProcessed("overdue_sweep", 0)
	m.ObserveJobDuration("overdue_sweep", 40*time.Millisecond)
	m.IncJobError("overdue_sweep", fmt.Errorf("sweep: %w", context.DeadlineExceeded))
	m.IncJobError("overdue_sweep", errors.New("db down"))
	m.IncJobError("overdue_sweep", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.jobRuns.WithLabelValues("overdue_sweep")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobSkipped.WithLabelValues("overdue_sweep")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.processed.WithLabelValues("overdue_sweep")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobErrors.WithLabelValues("overdue_sweep", SchedulerJobReasonDeadlineExceeded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobErrors.WithLabelValues("overdue_sweep", SchedulerJobReasonFailed)))
}

func TestNilSchedulerMetricsAreSafe(t *testing.T) {
	var m *SchedulerMetrics
	assert.NotPanics(t, func() {
		m.IncJobRun("x")
		m.IncJobTimeout("x")
		m.IncJobError("x", errors.New("boom"))
		m.ObserveJobDuration("x", time.Second)
	})
}
