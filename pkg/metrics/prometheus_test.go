package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordJob("refresh_prices", "success", 10, 2, 3*time.Second)
	r.RecordProviderCall("twelvedata", "ok")
	r.RecordProviderCall("twelvedata", "ok")
	r.RecordFailureCacheHit()
	r.RecordCacheLookup("optimization", true)
	r.RecordAlert("risk_spike", "warning")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("refresh_prices", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.jobItems.WithLabelValues("refresh_prices", "processed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobItems.WithLabelValues("refresh_prices", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.providerCalls.WithLabelValues("twelvedata", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failureHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("optimization", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues("risk_spike", "warning")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordJob("x", "failed", 0, 1, time.Second)
	r.RecordProviderCall("yahoo", "error")
	r.RecordFailureCacheHit()
	r.RecordCacheLookup("news", false)
	r.RecordAlert("watchlist", "info")
}
