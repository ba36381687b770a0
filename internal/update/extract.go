package update

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/gameserverkit/warden/internal/instances"
)

// ErrCorruptArtifact marks an archive missing the expected internal
// layout. Treated as a hard failure, never a partial apply.
var ErrCorruptArtifact = errors.New("artifact is missing the Server directory")

// extractArtifact unpacks the archive into destDir and verifies the
// Server subdirectory is present.
func extractArtifact(artifact, destDir string) error {
	r, err := zip.OpenReader(artifact)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := sanitizeArchivePath(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}

	if info, err := os.Stat(filepath.Join(destDir, instances.ServerDirName)); err != nil || !info.IsDir() {
		return ErrCorruptArtifact
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	mode := f.Mode()
	if mode&0o111 == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// sanitizeArchivePath rejects entries that would escape the destination.
func sanitizeArchivePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("artifact entry escapes extraction directory: %s", name)
	}
	return target, nil
}
