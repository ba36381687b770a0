// Package remote talks to the patchline distribution service through the
// vendor's downloader executable: version queries, server downloads and
// the initial fetch of the downloader itself.
package remote

import "context"

// LineFunc receives one line of downloader output. Called from the
// worker goroutine that owns the subprocess; implementations must hand
// off to their own context rather than block.
type LineFunc func(line string)

// VersionSource answers "what is the latest version" and performs
// downloads for a patchline. The production implementation shells out to
// the downloader executable; tests substitute fakes.
type VersionSource interface {
	// LatestVersion returns the current latest version string for a
	// patchline, or "" if the service reports none.
	LatestVersion(ctx context.Context, patchline string) (string, error)

	// Download fetches the server archive for a patchline into dest,
	// streaming raw output lines (including textual progress) to onLine.
	// It runs to completion or failure; it is not cancellable midway
	// beyond ctx expiry killing the subprocess.
	Download(ctx context.Context, patchline, dest string, onLine LineFunc) error
}
