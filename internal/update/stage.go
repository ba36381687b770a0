package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gameserverkit/warden/internal/events"
)

// Stage downloads the latest version of a patchline and leaves it as a
// staged update under the instance's staging directory, to be consumed
// at the next process start. Used when the server should keep running
// now and pick the update up on its next restart.
func (p *Pipeline) Stage(ctx context.Context, name, patchline string) error {
	if name == "" {
		return fmt.Errorf("no instance selected")
	}
	if err := p.guard.Begin(name); err != nil {
		return err
	}
	defer p.guard.End()

	stream := p.hub.Reset(events.UpdateKey)
	err := p.stage(ctx, stream, name, patchline)
	if err != nil {
		stream.Close(events.Result{Success: false, Message: err.Error()})
		return err
	}
	stream.Close(events.Result{Success: true})
	return nil
}

func (p *Pipeline) stage(ctx context.Context, stream *events.Stream, name, patchline string) error {
	artifact, version, err := p.cache.EnsureArtifact(ctx, patchline, stream)
	if err != nil {
		return err
	}

	l := p.svc.Layout()
	staging := l.StagingDir(name)
	work := staging + ".partial"

	os.RemoveAll(work)
	if err := os.MkdirAll(work, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(work)

	if err := extractArtifact(artifact, work); err != nil {
		return err
	}

	// The staging mirror carries its own markers so the consuming start
	// can record the version it actually applied.
	if err := os.WriteFile(filepath.Join(work, filepath.Base(l.VersionFile(name))), []byte(version), 0o644); err != nil {
		return fmt.Errorf("failed to write staged version marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(work, filepath.Base(l.PatchlineFile(name))), []byte(patchline), 0o644); err != nil {
		return fmt.Errorf("failed to write staged patchline marker: %w", err)
	}

	os.RemoveAll(staging)
	if err := os.Rename(work, staging); err != nil {
		return fmt.Errorf("failed to commit staged update: %w", err)
	}

	p.logger.Info("update staged", "instance", name, "version", version, "patchline", patchline)
	stream.PublishLine(fmt.Sprintf("staged %s (%s) for %s, applied on next start", version, patchline, name))
	return nil
}
