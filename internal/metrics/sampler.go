package metrics

import (
	"context"
	"log/slog"
	"time"
)

// SampleFunc reports CPU percent and resident memory for one instance.
// ok is false when the sample could not be taken.
type SampleFunc func(name string) (cpu float64, rss uint64, ok bool)

// Sampler periodically publishes per-instance resource gauges for every
// running instance.
type Sampler struct {
	running  func() []string
	sample   SampleFunc
	logger   *slog.Logger
	interval time.Duration
}

// NewSampler creates a resource sampler. interval <= 0 defaults to 15s.
func NewSampler(running func() []string, sample SampleFunc, logger *slog.Logger, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sampler{
		running:  running,
		sample:   sample,
		logger:   logger.With("component", "metrics-sampler"),
		interval: interval,
	}
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	for _, name := range s.running() {
		cpu, rss, ok := s.sample(name)
		if !ok {
			continue
		}
		InstanceCPUPercent.WithLabelValues(name).Set(cpu)
		InstanceMemoryBytes.WithLabelValues(name).Set(float64(rss))
	}
}
