package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/gameserverkit/warden/internal/config"
)

// Downloader is the VersionSource backed by the vendor's downloader
// executable. The executable lives next to the manager binary (shared
// across root directory changes); credentials live in the root directory
// because the downloader reads them from its working directory.
type Downloader struct {
	store  *config.Store
	logger *slog.Logger

	// programDir overrides the executable's directory in tests.
	programDir string
	// httpClient overrides the fetch client in tests.
	httpClient *http.Client
}

// NewDownloader creates the CLI-backed version source.
func NewDownloader(store *config.Store, logger *slog.Logger) *Downloader {
	return &Downloader{
		store:      store,
		logger:     logger.With("component", "downloader"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ExePath resolves the downloader executable, preferring the program
// directory and falling back to the root directory for legacy setups.
func (d *Downloader) ExePath() string {
	exe := d.store.Snapshot().Downloader.Exe
	prog := filepath.Join(d.resolveProgramDir(), exe)
	if _, err := os.Stat(prog); err == nil {
		return prog
	}
	return filepath.Join(d.store.RootDir(), exe)
}

// Present reports whether the downloader executable is available.
func (d *Downloader) Present() bool {
	info, err := os.Stat(d.ExePath())
	return err == nil && info.Mode().IsRegular()
}

// LatestVersion asks the downloader for the latest version of a
// patchline. A bounded timeout keeps a wedged downloader from hanging
// status queries.
func (d *Downloader) LatestVersion(ctx context.Context, patchline string) (string, error) {
	timeout := time.Duration(d.store.Snapshot().Downloader.VersionTimeoutSeconds) * time.Second
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, d.ExePath(),
		"-print-version",
		"-patchline", patchline,
		"-skip-update-check",
	)
	cmd.Dir = d.store.RootDir()

	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("version check timed out for %s", patchline)
		}
		return "", fmt.Errorf("version check failed for %s: %w", patchline, err)
	}
	if text == "" || strings.HasPrefix(text, "[ERROR]") {
		return "", fmt.Errorf("version check returned no version for %s", patchline)
	}
	// The downloader may print informational lines first; the version is
	// the last line of output.
	lines := strings.Split(text, "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// Download fetches the server archive for patchline into dest, relaying
// output lines to onLine.
func (d *Downloader) Download(ctx context.Context, patchline, dest string, onLine LineFunc) error {
	cmd := exec.CommandContext(ctx, d.ExePath(),
		"-download-path", dest,
		"-patchline", patchline,
		"-skip-update-check",
	)
	cmd.Dir = d.store.RootDir()
	return d.runStreaming(cmd, onLine)
}

// RunAuth runs the downloader's interactive auth flow, relaying its
// output (which includes the login URL) to onLine.
func (d *Downloader) RunAuth(ctx context.Context, onLine LineFunc) error {
	cmd := exec.CommandContext(ctx, d.ExePath(), "-print-version", "-skip-update-check")
	cmd.Dir = d.store.RootDir()
	return d.runStreaming(cmd, onLine)
}

// Fetch downloads and extracts the downloader executable into the
// program directory. Used on first-time setup when it is missing.
func (d *Downloader) Fetch(ctx context.Context, onLine LineFunc) error {
	cfg := d.store.Snapshot().Downloader

	if onLine != nil {
		onLine("Downloading " + cfg.Exe + "...")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.FetchURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build downloader request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch downloader: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch downloader: status %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "downloader-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save downloader archive: %w", err)
	}
	tmp.Close()

	if onLine != nil {
		onLine("Extracting downloader...")
	}
	return d.extractExe(tmp.Name(), cfg.Exe)
}

func (d *Downloader) extractExe(archive, exeName string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open downloader archive: %w", err)
	}
	defer zr.Close()

	var entry *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, exeName) {
			entry = f
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("downloader archive does not contain %s", exeName)
	}

	destDir := d.resolveProgramDir()
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create program directory: %w", err)
	}
	dest := filepath.Join(destDir, exeName)

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive entry: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("failed to write downloader executable: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract downloader executable: %w", err)
	}
	return out.Close()
}

// runStreaming runs cmd with combined stdout/stderr pumped line-by-line
// into onLine, returning the subprocess's failure if any.
func (d *Downloader) runStreaming(cmd *exec.Cmd, onLine LineFunc) error {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		if onLine != nil {
			onLine("[ERROR] Could not run downloader: " + err.Error())
		}
		return fmt.Errorf("failed to start downloader: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
	}()

	err := cmd.Wait()
	pw.Close()
	<-done

	if err != nil {
		return fmt.Errorf("downloader exited: %w", err)
	}
	return nil
}

func (d *Downloader) resolveProgramDir() string {
	if d.programDir != "" {
		return d.programDir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
