// Package schedule runs the periodic update-availability check on a
// cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gameserverkit/warden/internal/update"
)

// StatusFunc computes current update availability across instances.
type StatusFunc func(ctx context.Context) ([]update.InstanceStatus, error)

// Checker polls the remote version source on a cron schedule and keeps
// the most recent availability snapshot for status queries.
type Checker struct {
	spec   string
	status StatusFunc
	logger *slog.Logger
	cron   *cron.Cron

	mu        sync.RWMutex
	lastCheck time.Time
	available []string
}

// NewChecker validates the cron expression (standard 5-field format)
// and creates a checker.
func NewChecker(spec string, status StatusFunc, logger *slog.Logger) (*Checker, error) {
	if spec == "" {
		return nil, fmt.Errorf("schedule expression is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule expression %q: %w", spec, err)
	}
	return &Checker{
		spec:   spec,
		status: status,
		logger: logger.With("component", "update-checker"),
		cron:   cron.New(),
	}, nil
}

// Start begins scheduled checking.
func (c *Checker) Start() error {
	if _, err := c.cron.AddFunc(c.spec, c.RunNow); err != nil {
		return fmt.Errorf("failed to schedule update check: %w", err)
	}
	c.logger.Info("update check scheduled",
		"schedule", c.spec,
		"next_run", c.cron.Entries()[0].Next,
	)
	c.cron.Start()
	return nil
}

// Stop halts scheduling and waits briefly for an in-flight check.
func (c *Checker) Stop(ctx context.Context) {
	stopCtx := c.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		c.logger.Warn("update checker stop timeout")
	case <-ctx.Done():
	}
}

// RunNow performs one availability check immediately.
func (c *Checker) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	statuses, err := c.status(ctx)
	if err != nil {
		c.logger.Error("update check failed", "error", err)
		return
	}

	var available []string
	for _, st := range statuses {
		if st.UpdateAvailable {
			available = append(available, st.Name)
		}
	}

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.available = available
	c.mu.Unlock()

	if len(available) > 0 {
		c.logger.Info("updates available", "instances", available)
	} else {
		c.logger.Debug("all instances up to date")
	}
}

// Available returns the instances the last check found updates for.
func (c *Checker) Available() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.available))
	copy(out, c.available)
	return out
}

// LastCheck returns when the last successful check ran. Zero if never.
func (c *Checker) LastCheck() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastCheck
}
