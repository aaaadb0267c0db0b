package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordJobSplitsOutcomes(t *testing.T) {
	before := testutil.ToFloat64(JobsProcessed.WithLabelValues("metrics-test", "failed"))
	RecordJob("metrics-test", 10*time.Millisecond, nil)
	RecordJob("metrics-test", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(JobsProcessed.WithLabelValues("metrics-test", "failed")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(JobsProcessed.WithLabelValues("metrics-test", "completed")), 1.0)
}

func TestRecordSnapshot(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	RecordSnapshot(42, at)
	assert.Equal(t, 42.0, testutil.ToFloat64(SnapshotTotalQueries))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(SnapshotComputedAt))
}

func TestRecordCronRun(t *testing.T) {
	RecordCronRun("metrics-test", errors.New("nope"))
	assert.Equal(t, 1.0, testutil.ToFloat64(CronRuns.WithLabelValues("metrics-test", "reject")))
}
