package instances

import "path/filepath"

// Well-known names inside an instance directory. The Server subdirectory
// holds the managed binary; everything else next to it (worlds, mods,
// configs) belongs to the user and is never touched by updates.
const (
	ServerDirName     = "Server"
	ServerJarName     = "HytaleServer.jar"
	ServerAOTName     = "HytaleServer.aot"
	AssetsArchiveName = "Assets.zip"
	LicensesDirName   = "Licenses"

	versionFileName   = "server_version.txt"
	patchlineFileName = "server_patchline.txt"

	updaterDirName = "updater"
	stagingDirName = "staging"
	cacheDirName   = "updater-cache"
	backupsDirName = "backups"
)

// Layout resolves the on-disk locations used by the supervisor and the
// update pipeline. All paths hang off the shared root directory, one
// subdirectory per instance.
type Layout struct {
	Root string
}

// InstanceDir returns the directory for a named instance.
func (l Layout) InstanceDir(name string) string {
	return filepath.Join(l.Root, name)
}

// ServerDir returns the Server subdirectory for an instance.
func (l Layout) ServerDir(name string) string {
	return filepath.Join(l.Root, name, ServerDirName)
}

// JarPath returns the server jar path for an instance.
func (l Layout) JarPath(name string) string {
	return filepath.Join(l.ServerDir(name), ServerJarName)
}

// AOTPath returns the precompiled cache path for an instance.
func (l Layout) AOTPath(name string) string {
	return filepath.Join(l.ServerDir(name), ServerAOTName)
}

// AssetsPath returns the asset archive path for an instance.
func (l Layout) AssetsPath(name string) string {
	return filepath.Join(l.Root, name, AssetsArchiveName)
}

// VersionFile returns the installed-version marker path.
func (l Layout) VersionFile(name string) string {
	return filepath.Join(l.Root, name, versionFileName)
}

// PatchlineFile returns the installed-patchline marker path.
func (l Layout) PatchlineFile(name string) string {
	return filepath.Join(l.Root, name, patchlineFileName)
}

// StagingDir returns the staged-update mirror for an instance. Its
// contents replicate the install layout and are consumed destructively at
// the next process start.
func (l Layout) StagingDir(name string) string {
	return filepath.Join(l.Root, name, updaterDirName, stagingDirName)
}

// BackupsDir returns where pre-update backups are written for an instance.
func (l Layout) BackupsDir(name string) string {
	return filepath.Join(l.Root, name, backupsDirName)
}

// CacheDir returns the shared artifact cache for a patchline. One
// artifact plus one version marker per patchline, shared by all
// instances.
func (l Layout) CacheDir(patchline string) string {
	return filepath.Join(l.Root, cacheDirName, patchline)
}
