package metrics_collectors

import (
	"context"

	"github.com/rs/zerolog"
)

// MetricsRegistry holds the collectors reported with each heartbeat.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
	logger     zerolog.Logger
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(logger zerolog.Logger) *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
		logger:     logger,
	}
}

// NewDefaultRegistry registers the goroutine, system memory and own process collectors. Process
// collectors that cannot be created are skipped.
func NewDefaultRegistry(logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry(logger)
	r.Register(&GoroutineMetricCollector{})
	r.Register(&MemoryMetricCollector{})
	for _, metric := range []ProcessMetric{ProcessCPU, ProcessRSS, ProcessFDs} {
		collector, err := NewProcessMetricCollector(metric)
		if err != nil {
			logger.Warn().Err(err).Msg("Process metrics unavailable")
			break
		}
		r.Register(collector)
	}
	return r
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// CollectAll runs every collector. Failing collectors are logged and left out.
func (r *MetricsRegistry) CollectAll(ctx context.Context) map[string]float64 {
	values := make(map[string]float64, len(r.collectors))
	for name, collector := range r.collectors {
		value, err := collector.Collect(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("metric", name).Msg("Failed to collect metric")
			continue
		}
		values[name] = value
	}
	return values
}
