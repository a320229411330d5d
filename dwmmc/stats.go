package dwmmc

import (
	"github.com/rcrowley/go-metrics"
)

// Metric names registered by every driver.
const (
	MetricCommands         = "dwmmc.commands"
	MetricHardwareErrors   = "dwmmc.hardware_errors"
	MetricClockLockRetries = "dwmmc.clock_lock_retries"
	MetricDescriptors      = "dwmmc.descriptors"
	MetricFIFOWords        = "dwmmc.fifo_words"
	MetricFatalTimeouts    = "dwmmc.fatal_timeouts"
)

// Stats counts driver activity.
type Stats struct {
	Commands         metrics.Counter
	HardwareErrors   metrics.Counter
	ClockLockRetries metrics.Counter
	Descriptors      metrics.Counter
	FIFOWords        metrics.Counter
	FatalTimeouts    metrics.Counter

	registry metrics.Registry
}

func newStats(r metrics.Registry) *Stats {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &Stats{
		Commands:         metrics.GetOrRegisterCounter(MetricCommands, r),
		HardwareErrors:   metrics.GetOrRegisterCounter(MetricHardwareErrors, r),
		ClockLockRetries: metrics.GetOrRegisterCounter(MetricClockLockRetries, r),
		Descriptors:      metrics.GetOrRegisterCounter(MetricDescriptors, r),
		FIFOWords:        metrics.GetOrRegisterCounter(MetricFIFOWords, r),
		FatalTimeouts:    metrics.GetOrRegisterCounter(MetricFatalTimeouts, r),
		registry:         r,
	}
}

// Registry returns the registry holding the counters.
func (s *Stats) Registry() metrics.Registry {
	return s.registry
}

// Snapshot returns the current counter values keyed by metric name.
func (s *Stats) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	s.registry.Each(func(name string, m any) {
		if c, ok := m.(metrics.Counter); ok {
			out[name] = c.Count()
		}
	})
	return out
}
