package update

import (
	"fmt"
	"log/slog"
	"time"
)

// Coordinator runs the announce-then-stop protocol. Players get a
// countdown over the in-game broadcast channel before the server goes
// down; an instance that stops itself mid-countdown is detected within
// a second and ends the wait early.
type Coordinator struct {
	control ServerControl
	logger  *slog.Logger
	tick    time.Duration
}

// NewCoordinator creates the graceful shutdown coordinator.
func NewCoordinator(control ServerControl, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		control: control,
		logger:  logger.With("component", "graceful"),
		tick:    time.Second,
	}
}

// GracefulStop broadcasts a shutdown countdown, then performs the
// normal stop escalation. Succeeds immediately if the instance is not
// running.
func (c *Coordinator) GracefulStop(name string, warnMinutes int) error {
	if !c.control.IsInstanceRunning(name) {
		return nil
	}
	if warnMinutes < 1 {
		warnMinutes = 1
	}

	total := warnMinutes * 60
	announce := announceSeconds(warnMinutes)

	c.logger.Info("graceful stop started", "instance", name, "warn_minutes", warnMinutes)

	for remaining := total; remaining > 0; remaining-- {
		if !c.control.IsInstanceRunning(name) {
			c.logger.Info("instance stopped itself during countdown", "instance", name)
			return nil
		}
		if announce[remaining] {
			// A failed broadcast is not fatal; the countdown still runs.
			_ = c.control.SendCommand(name, "/say Server is shutting down in "+humanDuration(remaining)+"!")
		}
		time.Sleep(c.tick)
	}

	return c.control.Stop(name)
}

// announceSeconds returns the countdown checkpoints, in seconds
// remaining, for a warning window. Short windows get a single warning,
// longer ones a descending schedule.
func announceSeconds(warnMinutes int) map[int]bool {
	out := make(map[int]bool)
	if warnMinutes <= 1 {
		out[60] = true
		return out
	}
	out[warnMinutes*60] = true
	for _, m := range []int{10, 5, 2, 1} {
		if m < warnMinutes {
			out[m*60] = true
		}
	}
	out[30] = true
	out[10] = true
	return out
}

func humanDuration(seconds int) string {
	if seconds >= 60 {
		minutes := seconds / 60
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%d seconds", seconds)
}
