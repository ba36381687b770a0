package backup

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/gameserverkit/warden/internal/instances"
)

func testService(t *testing.T) (*ZipService, instances.Layout) {
	t.Helper()
	root := t.TempDir()
	l := instances.Layout{Root: root}
	svc := NewZipService(func() instances.Layout { return l }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func archiveNames(t *testing.T, path string) map[string]bool {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer r.Close()
	names := make(map[string]bool)
	for _, f := range r.File {
		names[f.Name] = true
	}
	return names
}

func TestCreateArchivesServerDirAndMarkers(t *testing.T) {
	svc, l := testService(t)

	writeFile(t, l.JarPath("alpha"), "jar-bytes")
	writeFile(t, filepath.Join(l.ServerDir("alpha"), "universe", "world.dat"), "save")
	if err := l.WriteMarkers("alpha", "2025.1.0", "release"); err != nil {
		t.Fatal(err)
	}

	h, err := svc.Create(context.Background(), "alpha", "update from 2025.1.0 (release) to 2025.2.0 (release)")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if filepath.Dir(h.Path) != l.BackupsDir("alpha") {
		t.Errorf("backup written to %s, want under %s", h.Path, l.BackupsDir("alpha"))
	}

	names := archiveNames(t, h.Path)
	for _, want := range []string{
		"Server/HytaleServer.jar",
		"Server/universe/world.dat",
		"server_version.txt",
		"server_patchline.txt",
	} {
		if !names[want] {
			t.Errorf("archive missing %s (has %v)", want, names)
		}
	}
}

func TestCreateSanitizesLabel(t *testing.T) {
	svc, l := testService(t)
	writeFile(t, l.JarPath("alpha"), "jar")

	h, err := svc.Create(context.Background(), "alpha", "update from a/b (x) to c:d (y)")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	base := filepath.Base(h.Path)
	if strings.ContainsAny(base, "/:") {
		t.Errorf("label not sanitized: %s", base)
	}
}

func TestCreateFailsWhenNothingToBackUp(t *testing.T) {
	svc, _ := testService(t)
	if _, err := svc.Create(context.Background(), "ghost", "label"); err == nil {
		t.Fatal("expected error for missing server directory")
	}
}
