package instances

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alpha", "Alpha"},
		{"My Server", "My Server"},
		{`bad<>:"/\|?*name`, "bad-name"},
		{"---", "---"},
		{"", "instance"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMarkersRoundTrip(t *testing.T) {
	l := Layout{Root: t.TempDir()}

	if v := l.ReadVersion("Alpha"); v != UnknownVersion {
		t.Errorf("ReadVersion before write = %q, want %q", v, UnknownVersion)
	}
	if p := l.ReadPatchline("Alpha"); p != DefaultPatchline {
		t.Errorf("ReadPatchline before write = %q, want %q", p, DefaultPatchline)
	}

	if err := l.WriteMarkers("Alpha", "2026.01.01", "pre-release"); err != nil {
		t.Fatalf("WriteMarkers() error = %v", err)
	}
	if v := l.ReadVersion("Alpha"); v != "2026.01.01" {
		t.Errorf("ReadVersion = %q", v)
	}
	if p := l.ReadPatchline("Alpha"); p != "pre-release" {
		t.Errorf("ReadPatchline = %q", p)
	}
}

func TestSyncServerFilesReplacesOnlyServerPaths(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	const name = "Alpha"

	// Existing install with user data that must survive.
	mustWrite(t, l.JarPath(name), "old jar")
	mustWrite(t, filepath.Join(l.ServerDir(name), "mods", "Plugin.jar"), "user plugin")
	mustWrite(t, filepath.Join(l.InstanceDir(name), "universe", "world.dat"), "world")

	// Update payload.
	src := t.TempDir()
	srcServer := filepath.Join(src, ServerDirName)
	mustWrite(t, filepath.Join(srcServer, ServerJarName), "new jar")
	mustWrite(t, filepath.Join(srcServer, ServerAOTName), "aot cache")
	mustWrite(t, filepath.Join(srcServer, LicensesDirName, "LICENSE.txt"), "license")
	mustWrite(t, filepath.Join(src, AssetsArchiveName), "assets")
	mustWrite(t, filepath.Join(src, "start.sh"), "#!/bin/sh")

	if err := SyncServerFiles(srcServer, src, l, name); err != nil {
		t.Fatalf("SyncServerFiles() error = %v", err)
	}

	if got := mustRead(t, l.JarPath(name)); got != "new jar" {
		t.Errorf("jar = %q, want replaced", got)
	}
	if got := mustRead(t, l.AOTPath(name)); got != "aot cache" {
		t.Errorf("aot = %q", got)
	}
	if got := mustRead(t, filepath.Join(l.ServerDir(name), LicensesDirName, "LICENSE.txt")); got != "license" {
		t.Errorf("license = %q", got)
	}
	if got := mustRead(t, l.AssetsPath(name)); got != "assets" {
		t.Errorf("assets = %q", got)
	}
	if got := mustRead(t, filepath.Join(l.InstanceDir(name), "start.sh")); got != "#!/bin/sh" {
		t.Errorf("start.sh = %q", got)
	}

	// User data untouched.
	if got := mustRead(t, filepath.Join(l.ServerDir(name), "mods", "Plugin.jar")); got != "user plugin" {
		t.Errorf("plugin = %q, want untouched", got)
	}
	if got := mustRead(t, filepath.Join(l.InstanceDir(name), "universe", "world.dat")); got != "world" {
		t.Errorf("world = %q, want untouched", got)
	}
}

func TestSyncServerFilesMissingOptionalPieces(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	src := t.TempDir()
	srcServer := filepath.Join(src, ServerDirName)
	mustWrite(t, filepath.Join(srcServer, ServerJarName), "jar only")

	if err := SyncServerFiles(srcServer, src, l, "Beta"); err != nil {
		t.Fatalf("SyncServerFiles() error = %v", err)
	}
	if got := mustRead(t, l.JarPath("Beta")); got != "jar only" {
		t.Errorf("jar = %q", got)
	}
	if fileExists(l.AOTPath("Beta")) {
		t.Error("aot copied despite being absent from payload")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
