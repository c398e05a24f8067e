package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

func TestDispatcher_DropsWhenFull(t *testing.T) {
	collector := metrics.NewTestCollector()
	d := NewDispatcher(1, logging.NewDiscardLogger(), collector)

	assert.True(t, d.Publish(context.Background(), Completion{OfficeCode: "130000"}))
	assert.False(t, d.Publish(context.Background(), Completion{OfficeCode: "270000"}))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.CompletionsDropped))

	got := <-d.Completions()
	assert.Equal(t, "130000", got.OfficeCode)

	assert.True(t, d.Publish(context.Background(), Completion{OfficeCode: "270000"}))
}

func TestNewDispatcher_MinimumBuffer(t *testing.T) {
	d := NewDispatcher(0, logging.NewDiscardLogger(), metrics.NewTestCollector())
	assert.Equal(t, 1, cap(d.Completions()))
}
