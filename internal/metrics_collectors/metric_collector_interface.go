package metrics_collectors

import (
	"context"
)

// MetricCollector collects one value reported with each heartbeat.
type MetricCollector interface {
	Name() string                                 // Key of the value in the heartbeat
	Collect(ctx context.Context) (float64, error) // Collect the current value
	Unit() string                                 // Unit of the value (e.g., "percentage", "bytes")
}
