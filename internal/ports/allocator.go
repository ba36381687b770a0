// Package ports assigns the (game, webserver) port pair for each
// instance so concurrently running servers never collide.
package ports

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gameserverkit/warden/internal/config"
)

// RunningPortsFunc reports the primary port of every currently running
// instance. Live ports take precedence over stored assignments when
// resolving conflicts.
type RunningPortsFunc func() map[string]int

// Allocator hands out non-overlapping port pairs. Assignments are
// persisted through the settings store before being returned, so a
// crash between assignment and launch cannot hand the same port to two
// instances.
type Allocator struct {
	store   *config.Store
	running RunningPortsFunc
	logger  *slog.Logger
	mu      sync.Mutex
}

// New creates an Allocator. running may be nil when no supervisor exists
// yet (e.g. one-shot CLI commands).
func New(store *config.Store, running RunningPortsFunc, logger *slog.Logger) *Allocator {
	return &Allocator{
		store:   store,
		running: running,
		logger:  logger.With("component", "ports"),
	}
}

// Assign ensures name holds a unique port pair and returns it.
// Idempotent: an existing non-conflicting assignment is returned
// unchanged. Otherwise the configured range is scanned in ascending
// order and the first free primary is taken, with secondary = primary +
// the configured offset.
//
// When the range is exhausted the allocator falls back to the range's
// first port instead of failing. That mirrors long-standing behavior and
// is a documented soft limit: with more instances than ports in the
// range, the last assignment will collide with the first.
func (a *Allocator) Assign(name string) (config.PortPair, error) {
	if name == "" {
		return config.PortPair{}, fmt.Errorf("no instance selected")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := a.store.Snapshot().Ports

	if pair, ok := a.store.InstancePorts(name); ok && pair.Game != 0 {
		if !a.usedPrimaries(name)[pair.Game] {
			return pair, nil
		}
		a.logger.Warn("stored port conflicts, reassigning",
			"instance", name,
			"port", pair.Game,
		)
	}

	used := a.usedPrimaries(name)
	for p := cfg.RangeStart; p <= cfg.RangeEnd; p++ {
		if used[p] {
			continue
		}
		pair := config.PortPair{Game: p, Web: p + cfg.WebOffset}
		if err := a.store.SetInstancePorts(name, pair); err != nil {
			return config.PortPair{}, fmt.Errorf("failed to persist port assignment: %w", err)
		}
		return pair, nil
	}

	// Range exhausted.
	pair := config.PortPair{Game: cfg.RangeStart, Web: cfg.RangeStart + cfg.WebOffset}
	a.logger.Warn("port range exhausted, falling back to range start",
		"instance", name,
		"port", pair.Game,
	)
	if err := a.store.SetInstancePorts(name, pair); err != nil {
		return config.PortPair{}, fmt.Errorf("failed to persist port assignment: %w", err)
	}
	return pair, nil
}

// usedPrimaries collects primary ports held by other instances, either
// stored in settings or bound by a live process.
func (a *Allocator) usedPrimaries(exclude string) map[int]bool {
	used := make(map[int]bool)

	for name, pair := range a.store.AllInstancePorts() {
		if name == exclude || pair.Game == 0 {
			continue
		}
		used[pair.Game] = true
	}

	if a.running != nil {
		for name, port := range a.running() {
			if name == exclude || port == 0 {
				continue
			}
			used[port] = true
		}
	}

	return used
}
