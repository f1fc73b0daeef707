package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsWriter_RecordLookup(t *testing.T) {
	mw := NewMetricsWriter("test_lookup")
	assert.Equal(t, "test_lookup", mw.Namespace())

	mw.RecordLookup(LookupHit)
	mw.RecordLookup(LookupHit)
	mw.RecordLookup(LookupMiss)

	assert.Equal(t, 2.0, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("test_lookup", LookupHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("test_lookup", LookupMiss)))
}

func TestMetricsWriter_RecordFetch(t *testing.T) {
	mw := NewMetricsWriter("test_fetch")

	mw.RecordFetch(nil, 10*time.Millisecond)
	mw.RecordFetch(errors.New("boom"), 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(FetchesTotal.WithLabelValues("test_fetch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(FetchesTotal.WithLabelValues("test_fetch", "error")))
}

func TestMetricsWriter_Gauges(t *testing.T) {
	mw := NewMetricsWriter("test_size")
	mw.RecordCacheSize(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(CacheEntriesGauge.WithLabelValues("test_size")))

	mw.RecordSupersededWrite()
	mw.RecordDebounceSuperseded()
	assert.Equal(t, 1.0, testutil.ToFloat64(SupersededWritesTotal.WithLabelValues("test_size")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DebounceSupersededTotal.WithLabelValues("test_size")))
}

func TestRecordMutation(t *testing.T) {
	RecordMutation("test_cancel", "rolled_back")
	assert.Equal(t, 1.0, testutil.ToFloat64(MutationsTotal.WithLabelValues("test_cancel", "rolled_back")))
}
