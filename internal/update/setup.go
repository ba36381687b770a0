package update

import (
	"context"
	"fmt"

	"github.com/gameserverkit/warden/internal/remote"
)

// DownloaderManager is the slice of the remote package setup needs:
// is the vendor downloader on disk, and fetch it when it is not.
type DownloaderManager interface {
	Present() bool
	Fetch(ctx context.Context, onLine remote.LineFunc) error
}

// Setup performs a first-time install: fetch the downloader if absent,
// register the instance directory, then run a normal update against an
// empty installation.
func (p *Pipeline) Setup(ctx context.Context, dl DownloaderManager, name, patchline string) error {
	if !dl.Present() {
		p.logger.Info("fetching downloader")
		if err := dl.Fetch(ctx, func(line string) { p.logger.Debug("downloader", "line", line) }); err != nil {
			return fmt.Errorf("failed to fetch downloader: %w", err)
		}
	}

	created, err := p.svc.Create(name)
	if err != nil {
		return err
	}

	return p.Apply(ctx, created, patchline, ApplyOptions{})
}
