package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gameserverkit/warden/internal/backup"
	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/instances"
	"github.com/gameserverkit/warden/internal/metrics"
	"github.com/gameserverkit/warden/internal/tracing"
)

// ServerControl is the slice of the process supervisor the update flows
// need: liveness checks, stop before overwrite, restart after.
type ServerControl interface {
	IsInstanceRunning(name string) bool
	Running() []string
	Start(name string) error
	Stop(name string) error
	SendCommand(name, text string) error
}

// ApplyOptions tune how a running instance is taken down before the
// files are replaced.
type ApplyOptions struct {
	// Graceful broadcasts a countdown before stopping.
	Graceful bool
	// WarnMinutes is the countdown length when Graceful is set.
	WarnMinutes int
}

// Pipeline performs instance updates: stop, backup, extract, replace,
// record, restart.
type Pipeline struct {
	svc      *instances.Service
	control  ServerControl
	backups  backup.Service
	cache    *Cache
	guard    *Guard
	hub      *events.Hub
	graceful *Coordinator
	logger   *slog.Logger
}

// NewPipeline wires the update pipeline.
func NewPipeline(svc *instances.Service, control ServerControl, backups backup.Service, cache *Cache, guard *Guard, hub *events.Hub, graceful *Coordinator, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		svc:      svc,
		control:  control,
		backups:  backups,
		cache:    cache,
		guard:    guard,
		hub:      hub,
		graceful: graceful,
		logger:   logger.With("component", "update"),
	}
}

// Guard exposes the update-in-progress flag, for the supervisor's start
// gate and for status queries.
func (p *Pipeline) Guard() *Guard {
	return p.guard
}

// GracefulStop stops an instance with the countdown broadcast, outside
// of any update.
func (p *Pipeline) GracefulStop(name string, warnMinutes int) error {
	return p.graceful.GracefulStop(name, warnMinutes)
}

// Apply updates one instance to the latest version of the patchline.
// The instance is stopped first if running and restarted afterward.
func (p *Pipeline) Apply(ctx context.Context, name, patchline string, opts ApplyOptions) error {
	if name == "" {
		return fmt.Errorf("no instance selected")
	}
	if err := p.guard.Begin(name); err != nil {
		return err
	}

	ctx, span := tracing.StartUpdateSpan(ctx, "apply", name, patchline)
	defer span.End()

	stream := p.hub.Reset(events.UpdateKey)
	wasRunning, err := p.run(ctx, stream, name, patchline, "", "", opts)
	p.guard.End()

	if err == nil && wasRunning {
		if startErr := p.control.Start(name); startErr != nil {
			err = fmt.Errorf("update applied but restart failed: %w", startErr)
		}
	}

	metrics.RecordUpdate(err == nil)
	if err != nil {
		tracing.RecordError(span, err, "update failed")
		stream.Close(events.Result{Success: false, Message: err.Error()})
		return err
	}
	tracing.RecordSuccess(span)
	stream.Close(events.Result{Success: true})
	return nil
}

// run is the guarded core shared by Apply and UpdateAll. When artifact
// is empty it is resolved through the cache; UpdateAll passes a shared
// artifact per patchline group. Returns whether the instance was
// running when the update began.
func (p *Pipeline) run(ctx context.Context, stream *events.Stream, name, patchline, artifact, version string, opts ApplyOptions) (bool, error) {
	wasRunning := p.control.IsInstanceRunning(name)
	if wasRunning {
		stream.PublishLine(fmt.Sprintf("stopping %s for update", name))
		var err error
		if opts.Graceful {
			err = p.graceful.GracefulStop(name, opts.WarnMinutes)
		} else {
			err = p.control.Stop(name)
		}
		if err != nil {
			return wasRunning, fmt.Errorf("failed to stop %s: %w", name, err)
		}
	}

	if artifact == "" {
		var err error
		artifact, version, err = p.cache.EnsureArtifact(ctx, patchline, stream)
		if err != nil {
			return wasRunning, err
		}
	}

	l := p.svc.Layout()
	fromVersion := l.ReadVersion(name)
	fromPatchline := l.ReadPatchline(name)

	if l.Installed(name) {
		label := fmt.Sprintf("update from %s (%s) to %s (%s)", fromVersion, fromPatchline, version, patchline)
		stream.PublishLine("backing up " + name)
		if _, err := p.backups.Create(ctx, name, label); err != nil {
			// Never overwrite an installation we could not back up.
			return wasRunning, fmt.Errorf("pre-update backup failed, update aborted: %w", err)
		}
	}

	tmp, err := os.MkdirTemp("", "warden-update-*")
	if err != nil {
		return wasRunning, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	stream.PublishLine(fmt.Sprintf("installing %s (%s) into %s", version, patchline, name))
	if err := extractArtifact(artifact, tmp); err != nil {
		return wasRunning, err
	}
	if err := instances.SyncServerFiles(filepath.Join(tmp, instances.ServerDirName), tmp, l, name); err != nil {
		return wasRunning, fmt.Errorf("failed to install server files: %w", err)
	}

	// Markers last: a crash mid-copy never records a version the files
	// on disk do not have.
	if err := l.WriteMarkers(name, version, patchline); err != nil {
		return wasRunning, err
	}
	p.svc.Invalidate()

	p.logger.Info("instance updated",
		"instance", name,
		"from", fromVersion,
		"to", version,
		"patchline", patchline,
	)
	stream.PublishLine(fmt.Sprintf("%s updated to %s (%s)", name, version, patchline))
	return wasRunning, nil
}
