package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if jobsTotal == nil || recordOutcomesTotal == nil || activeJobs == nil ||
		rowsExtractedTotal == nil || pageDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	JobsTotal().WithLabelValues("completed").Inc()
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("completed")); val < 1 {
		t.Errorf("expected completed jobs counter >= 1, got %f", val)
	}

	ActiveJobs().Inc()
	ActiveJobs().Dec()
	if val := testutil.ToFloat64(activeJobs); val != 0 {
		t.Errorf("expected active jobs gauge to be 0, got %f", val)
	}

	RecordOutcomes().WithLabelValues("inserted").Inc()
	if val := testutil.ToFloat64(recordOutcomesTotal.WithLabelValues("inserted")); val < 1 {
		t.Errorf("expected inserted outcome counter >= 1, got %f", val)
	}
}
