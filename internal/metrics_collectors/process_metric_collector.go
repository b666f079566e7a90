package metrics_collectors

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/process"
)

// ProcessMetric selects what ProcessMetricCollector reports about the daemon's own process.
type ProcessMetric int

const (
	ProcessCPU ProcessMetric = iota // CPU usage in percent
	ProcessRSS                      // resident memory in bytes
	ProcessFDs                      // open file descriptors
)

// ProcessMetricCollector collects resource usage of the running daemon.
type ProcessMetricCollector struct {
	Metric ProcessMetric
	proc   *process.Process
}

// NewProcessMetricCollector creates a collector for the current process.
func NewProcessMetricCollector(metric ProcessMetric) (*ProcessMetricCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process: %w", err)
	}
	return &ProcessMetricCollector{Metric: metric, proc: proc}, nil
}

func (p *ProcessMetricCollector) Name() string {
	switch p.Metric {
	case ProcessCPU:
		return "process_cpu"
	case ProcessRSS:
		return "process_rss"
	default:
		return "process_fds"
	}
}

func (p *ProcessMetricCollector) Collect(ctx context.Context) (float64, error) {
	switch p.Metric {
	case ProcessCPU:
		return p.proc.CPUPercentWithContext(ctx)
	case ProcessRSS:
		memInfo, err := p.proc.MemoryInfoWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return float64(memInfo.RSS), nil
	default:
		fds, err := p.proc.NumFDsWithContext(ctx)
		return float64(fds), err
	}
}

func (p *ProcessMetricCollector) Unit() string {
	switch p.Metric {
	case ProcessCPU:
		return "percentage"
	case ProcessRSS:
		return "bytes"
	default:
		return "count"
	}
}
