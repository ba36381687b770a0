package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/instances"
	"github.com/gameserverkit/warden/internal/metrics"
	"github.com/gameserverkit/warden/internal/remote"
)

const (
	cacheArtifactName = "server.zip"
	cacheVersionName  = "version.txt"
)

// Cache deduplicates downloads per patchline. An artifact is served
// only while its recorded version still matches the remote latest; a
// stale entry is overwritten, never returned.
type Cache struct {
	layout func() instances.Layout
	source remote.VersionSource
	logger *slog.Logger
}

// NewCache creates the per-patchline artifact cache.
func NewCache(layout func() instances.Layout, source remote.VersionSource, logger *slog.Logger) *Cache {
	return &Cache{
		layout: layout,
		source: source,
		logger: logger.With("component", "update-cache"),
	}
}

// EnsureArtifact returns the path and version of a current artifact for
// the patchline, downloading only when the cached version is missing or
// stale. This is the single network-bound step shared by every instance
// update for a patchline in a batch.
func (c *Cache) EnsureArtifact(ctx context.Context, patchline string, stream *events.Stream) (string, string, error) {
	latest, err := c.source.LatestVersion(ctx, patchline)
	if err != nil {
		return "", "", fmt.Errorf("failed to query latest version for %s: %w", patchline, err)
	}
	if latest == "" {
		return "", "", fmt.Errorf("no version published for patchline %s", patchline)
	}

	dir := c.layout().CacheDir(patchline)
	artifact := filepath.Join(dir, cacheArtifactName)
	versionFile := filepath.Join(dir, cacheVersionName)

	if cached := readCachedVersion(versionFile); cached == latest {
		if _, err := os.Stat(artifact); err == nil {
			c.logger.Info("artifact cache hit", "patchline", patchline, "version", latest)
			if stream != nil {
				stream.PublishLine(fmt.Sprintf("using cached server %s (%s)", latest, patchline))
			}
			return artifact, latest, nil
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	c.logger.Info("downloading server", "patchline", patchline, "version", latest)
	onLine := func(line string) {
		if stream == nil {
			return
		}
		if percent, detail, ok := remote.ParseProgress(line); ok {
			stream.PublishProgress(percent, detail)
			return
		}
		stream.PublishLine(line)
	}
	if err := c.source.Download(ctx, patchline, artifact, onLine); err != nil {
		return "", "", fmt.Errorf("download failed for %s: %w", patchline, err)
	}
	metrics.RecordDownload(patchline)

	// The download may finish slightly after the version query; record
	// what the remote reports now, not what it reported before.
	version, err := c.source.LatestVersion(ctx, patchline)
	if err != nil || version == "" {
		version = latest
	}
	if err := os.WriteFile(versionFile, []byte(version), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to record cached version: %w", err)
	}

	c.logger.Info("artifact cached", "patchline", patchline, "version", version)
	return artifact, version, nil
}

func readCachedVersion(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
