package instances

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// launcherScripts are the start scripts shipped at the top level of an
// update payload.
var launcherScripts = []string{"start.bat", "start.sh"}

// SyncServerFiles copies an update payload into the live install for an
// instance, replacing only the server binaries, the precompiled cache if
// present, the license assets, the asset archive and the launch scripts.
// srcServerDir mirrors the Server subdirectory, srcRootDir the instance
// top level. World data, configuration and mods are never touched.
//
// Shared by the staged-update apply at process start and the extract step
// of a regular update, so the two paths cannot drift apart.
func SyncServerFiles(srcServerDir, srcRootDir string, l Layout, name string) error {
	serverDir := l.ServerDir(name)
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		return fmt.Errorf("failed to create server directory: %w", err)
	}

	jar := filepath.Join(srcServerDir, ServerJarName)
	if err := copyFile(jar, filepath.Join(serverDir, ServerJarName)); err != nil {
		return fmt.Errorf("failed to copy %s: %w", ServerJarName, err)
	}

	aot := filepath.Join(srcServerDir, ServerAOTName)
	if fileExists(aot) {
		if err := copyFile(aot, filepath.Join(serverDir, ServerAOTName)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", ServerAOTName, err)
		}
	}

	licensesSrc := filepath.Join(srcServerDir, LicensesDirName)
	if dirExists(licensesSrc) {
		licensesDst := filepath.Join(serverDir, LicensesDirName)
		if err := os.RemoveAll(licensesDst); err != nil {
			return fmt.Errorf("failed to clear licenses: %w", err)
		}
		if err := copyDir(licensesSrc, licensesDst); err != nil {
			return fmt.Errorf("failed to copy licenses: %w", err)
		}
	}

	instanceDir := l.InstanceDir(name)
	topLevel := append([]string{AssetsArchiveName}, launcherScripts...)
	for _, fname := range topLevel {
		src := filepath.Join(srcRootDir, fname)
		if !fileExists(src) {
			continue
		}
		if err := copyFile(src, filepath.Join(instanceDir, fname)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", fname, err)
		}
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target)
	})
}
