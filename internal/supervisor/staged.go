package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gameserverkit/warden/internal/instances"
)

// applyStaged consumes a pending staged update before a launch. The
// staging directory mirrors the instance layout; it is removed only
// after a fully successful apply so a failed attempt can be retried on
// the next start. Returns whether an update was actually applied.
func (s *Supervisor) applyStaged(l instances.Layout, name string) (bool, error) {
	staging := l.StagingDir(name)
	info, err := os.Stat(staging)
	if err != nil || !info.IsDir() {
		return false, nil
	}

	s.logger.Info("applying staged update", "instance", name)

	srcServer := filepath.Join(staging, instances.ServerDirName)
	if _, err := os.Stat(filepath.Join(srcServer, instances.ServerJarName)); err != nil {
		return false, fmt.Errorf("staged update is incomplete, missing %s", instances.ServerJarName)
	}

	if err := instances.SyncServerFiles(srcServer, staging, l, name); err != nil {
		return false, err
	}

	// Markers last: a crash mid-copy must never advance the recorded
	// version past the files actually on disk.
	if version := readStagedMarker(filepath.Join(staging, filepath.Base(l.VersionFile(name)))); version != "" {
		patchline := readStagedMarker(filepath.Join(staging, filepath.Base(l.PatchlineFile(name))))
		if patchline == "" {
			patchline = instances.DefaultPatchline
		}
		if err := l.WriteMarkers(name, version, patchline); err != nil {
			return false, fmt.Errorf("failed to record staged version: %w", err)
		}
	}

	if err := os.RemoveAll(staging); err != nil {
		return false, fmt.Errorf("failed to remove staging directory: %w", err)
	}

	s.logger.Info("staged update applied", "instance", name)
	return true, nil
}

func readStagedMarker(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
