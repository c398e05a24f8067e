package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("jma", prometheus.NewRegistry())
		NewCollector("jma", prometheus.NewRegistry())
	})
}

func TestCollector_Recorders(t *testing.T) {
	c := NewTestCollector()

	c.RecordLookup("hit")
	c.RecordLookup("hit")
	c.RecordLookup("miss")
	c.RecordFetch("success")
	c.RecordDBError("exec_error")
	c.UpdateCatalogEntries(11, 58)
	c.UpdateDBConnectionPool(1, 0, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ForecastLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ForecastLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ForecastFetchesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DBErrorsTotal.WithLabelValues("exec_error")))
	assert.Equal(t, 58.0, testutil.ToFloat64(c.CatalogEntries.WithLabelValues("offices")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("total")))
}

func TestTimer_ObserveDuration(t *testing.T) {
	c := NewTestCollector()
	timer := c.NewTimer(c.ForecastFetchDuration)
	time.Sleep(5 * time.Millisecond)
	d := timer.ObserveDuration()
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(c.ForecastFetchDuration))
}
