// Package backup creates pre-update snapshots of an instance's server
// directory. The update pipeline only ever makes one call into it:
// create a labeled backup before overwriting anything.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/gameserverkit/warden/internal/instances"
)

// Handle identifies a created backup.
type Handle struct {
	Path      string
	Label     string
	CreatedAt time.Time
}

// Service is the collaborator interface the update pipeline depends on.
type Service interface {
	// Create snapshots the named instance's server directory under the
	// given label. A failure here must abort the caller's update.
	Create(ctx context.Context, instance, label string) (Handle, error)
}

// ZipService writes zip archives into the instance's backups directory.
type ZipService struct {
	layout func() instances.Layout
	logger *slog.Logger
	now    func() time.Time
}

// NewZipService creates the archive-based backup service. layout is a
// function so the root directory can change at runtime.
func NewZipService(layout func() instances.Layout, logger *slog.Logger) *ZipService {
	return &ZipService{
		layout: layout,
		logger: logger.With("component", "backup"),
		now:    time.Now,
	}
}

// Create archives <instance>/Server plus the version markers into
// backups/<timestamp>_<label>.zip.
func (s *ZipService) Create(ctx context.Context, instance, label string) (Handle, error) {
	l := s.layout()
	serverDir := l.ServerDir(instance)
	if _, err := os.Stat(serverDir); err != nil {
		return Handle{}, fmt.Errorf("nothing to back up for %s: %w", instance, err)
	}

	backupsDir := l.BackupsDir(instance)
	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("failed to create backups directory: %w", err)
	}

	created := s.now()
	name := created.Format("2006-01-02_15-04-05") + "_" + sanitizeLabel(label) + ".zip"
	path := filepath.Join(backupsDir, name)

	s.logger.Info("creating backup", "instance", instance, "label", label, "path", path)

	if err := s.writeArchive(ctx, path, l, instance); err != nil {
		os.Remove(path)
		return Handle{}, err
	}

	return Handle{Path: path, Label: label, CreatedAt: created}, nil
}

func (s *ZipService) writeArchive(ctx context.Context, path string, l instances.Layout, instance string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	serverDir := l.ServerDir(instance)
	err = filepath.Walk(serverDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.InstanceDir(instance), p)
		if err != nil {
			return err
		}
		return addFile(zw, p, filepath.ToSlash(rel))
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive server directory: %w", err)
	}

	// Version markers ride along so a restore knows what it restores to.
	for _, marker := range []string{l.VersionFile(instance), l.PatchlineFile(instance)} {
		if _, err := os.Stat(marker); err != nil {
			continue
		}
		if err := addFile(zw, marker, filepath.Base(marker)); err != nil {
			zw.Close()
			return fmt.Errorf("failed to archive version marker: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize backup archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

func sanitizeLabel(label string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-",
		"?", "-", "\"", "-", "<", "-", ">", "-", "|", "-",
		" ", "_",
	)
	out := replacer.Replace(label)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
