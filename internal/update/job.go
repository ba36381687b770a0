// Package update implements the artifact cache, the update pipeline and
// the fleet coordinator. Exactly one update may run at a time; server
// starts are refused while one is in flight.
package update

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gameserverkit/warden/internal/metrics"
)

// AllInstancesJob is the job name recorded while a fleet-wide update
// runs, as opposed to a single instance's name.
const AllInstancesJob = "__update_all__"

// ErrUpdateInProgress is returned when a start or a second update is
// requested while an update job is active.
var ErrUpdateInProgress = errors.New("an update is already in progress")

// Guard is the single global update-in-progress flag. Requests arriving
// while it is held are rejected synchronously, never queued.
type Guard struct {
	mu     sync.Mutex
	active string
}

// Begin claims the guard for a job. Fails if any job is active.
func (g *Guard) Begin(job string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != "" {
		return fmt.Errorf("%w (%s)", ErrUpdateInProgress, g.active)
	}
	g.active = job
	metrics.SetUpdateInProgress(true)
	return nil
}

// End releases the guard.
func (g *Guard) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = ""
	metrics.SetUpdateInProgress(false)
}

// Active returns the current job name, if any.
func (g *Guard) Active() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.active != ""
}

// GateStart is the supervisor start gate: no instance may launch while
// its files may be getting rewritten.
func (g *Guard) GateStart(instance string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != "" {
		return fmt.Errorf("cannot start %s: %w (%s)", instance, ErrUpdateInProgress, g.active)
	}
	return nil
}
