package instances

import (
	"fmt"
	"os"
	"strings"
)

// UnknownVersion is reported when no version marker exists.
const UnknownVersion = "unknown"

// DefaultPatchline is assumed when no patchline marker exists.
const DefaultPatchline = "release"

// ReadVersion returns the installed version recorded for an instance, or
// UnknownVersion if the marker is absent or empty.
func (l Layout) ReadVersion(name string) string {
	return readMarker(l.VersionFile(name), UnknownVersion)
}

// ReadPatchline returns the installed patchline recorded for an instance,
// or DefaultPatchline if the marker is absent or empty.
func (l Layout) ReadPatchline(name string) string {
	return readMarker(l.PatchlineFile(name), DefaultPatchline)
}

// WriteMarkers records version and patchline for an instance. Called only
// after all file operations of an update succeed, so the recorded version
// never runs ahead of the files on disk.
func (l Layout) WriteMarkers(name, version, patchline string) error {
	if err := os.MkdirAll(l.InstanceDir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create instance directory: %w", err)
	}
	if err := os.WriteFile(l.VersionFile(name), []byte(version), 0o644); err != nil {
		return fmt.Errorf("failed to write version marker: %w", err)
	}
	if err := os.WriteFile(l.PatchlineFile(name), []byte(patchline), 0o644); err != nil {
		return fmt.Errorf("failed to write patchline marker: %w", err)
	}
	return nil
}

// Installed reports whether the server jar is present for an instance.
func (l Layout) Installed(name string) bool {
	info, err := os.Stat(l.JarPath(name))
	return err == nil && info.Mode().IsRegular()
}

func readMarker(path, fallback string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return fallback
	}
	return v
}
