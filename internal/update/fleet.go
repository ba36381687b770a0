package update

import (
	"context"
	"fmt"
	"slices"

	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/metrics"
	"github.com/gameserverkit/warden/internal/tracing"
)

// FleetResult aggregates a fleet-wide update run.
type FleetResult struct {
	Updated  int               `json:"updated"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Success reports whether the batch achieved anything at all.
func (r FleetResult) Success() bool {
	return r.Updated > 0
}

// UpdateAll updates every instance with an update available, optionally
// restricted to the named instances. Candidates are grouped by
// patchline so each patchline is downloaded once, no matter how many
// instances consume it. Instances running before the batch are
// restarted after it, regardless of other instances' failures.
func (p *Pipeline) UpdateAll(ctx context.Context, filter []string, opts ApplyOptions) (FleetResult, error) {
	res := FleetResult{Failures: make(map[string]string)}

	if err := p.guard.Begin(AllInstancesJob); err != nil {
		return res, err
	}

	ctx, span := tracing.StartFleetSpan(ctx, "update_all")
	defer span.End()

	stream := p.hub.Reset(events.UpdateKey)

	statuses, err := p.Status(ctx)
	if err != nil {
		p.guard.End()
		stream.Close(events.Result{Success: false, Message: err.Error()})
		return res, err
	}

	groups := make(map[string][]string)
	for _, st := range statuses {
		if !st.UpdateAvailable {
			continue
		}
		if len(filter) > 0 && !slices.Contains(filter, st.Name) {
			continue
		}
		groups[st.Patchline] = append(groups[st.Patchline], st.Name)
	}

	if len(groups) == 0 {
		p.guard.End()
		stream.PublishLine("all instances are up to date")
		stream.Close(events.Result{Success: true, Message: "nothing to update"})
		return res, nil
	}

	wasRunning := make(map[string]bool)
	for _, names := range groups {
		for _, name := range names {
			wasRunning[name] = p.control.IsInstanceRunning(name)
		}
	}

	for patchline, names := range groups {
		artifact, version, err := p.cache.EnsureArtifact(ctx, patchline, stream)
		if err != nil {
			for _, name := range names {
				res.Failures[name] = err.Error()
			}
			continue
		}
		for _, name := range names {
			if _, err := p.run(ctx, stream, name, patchline, artifact, version, opts); err != nil {
				p.logger.Error("instance update failed", "instance", name, "error", err)
				metrics.RecordUpdate(false)
				res.Failures[name] = err.Error()
				continue
			}
			metrics.RecordUpdate(true)
			res.Updated++
		}
	}

	p.guard.End()

	for name, running := range wasRunning {
		if !running {
			continue
		}
		if err := p.control.Start(name); err != nil {
			p.logger.Error("failed to restart instance after update", "instance", name, "error", err)
			if _, ok := res.Failures[name]; !ok {
				res.Failures[name] = fmt.Sprintf("restart failed: %v", err)
			}
		}
	}

	msg := fmt.Sprintf("updated %d instance(s), %d failure(s)", res.Updated, len(res.Failures))
	tracing.AddEvent(span, msg)
	if res.Success() {
		tracing.RecordSuccess(span)
	}
	stream.PublishLine(msg)
	stream.Close(events.Result{Success: res.Success(), Message: msg})
	return res, nil
}
