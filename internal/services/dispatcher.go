package services

import (
	"context"

	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

// Dispatcher is the single hand-off point between background fetches and
// the UI loop. Fetch goroutines publish; only the UI loop receives.
type Dispatcher struct {
	completions chan Completion
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// NewDispatcher creates a dispatcher buffering up to size completions
func NewDispatcher(size int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		completions: make(chan Completion, size),
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// Publish hands a completion to the UI loop without blocking. It returns
// false when the buffer is full and the completion was dropped.
func (d *Dispatcher) Publish(ctx context.Context, c Completion) bool {
	select {
	case d.completions <- c:
		return true
	default:
		d.metrics.CompletionsDropped.Inc()
		d.logger.Warn(ctx, "[DISPATCH_DROPPED] Completion buffer full, dropping result", logging.Fields{
			"office_code": c.OfficeCode,
			"buffer_size": cap(d.completions),
		})
		return false
	}
}

// Completions is the channel drained by the UI loop.
func (d *Dispatcher) Completions() <-chan Completion {
	return d.completions
}
