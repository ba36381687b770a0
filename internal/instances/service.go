package instances

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gameserverkit/warden/internal/config"
)

// Info describes one registered instance.
type Info struct {
	Name      string          `json:"name"`
	Installed bool            `json:"installed"`
	Version   string          `json:"version"`
	Patchline string          `json:"patchline"`
	Ports     config.PortPair `json:"ports"`
}

// Service lists instances registered under the root directory. Results
// are cached; an fsnotify watcher on the root invalidates the cache when
// directories appear or disappear outside the manager.
type Service struct {
	store  *config.Store
	logger *slog.Logger

	mu     sync.Mutex
	cache  []Info
	cached bool
}

// NewService creates an instance registry over the settings store.
func NewService(store *config.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "instances"),
	}
}

// Layout returns path resolution for the current root directory.
func (s *Service) Layout() Layout {
	return Layout{Root: s.store.RootDir()}
}

// List scans the root directory for instance folders. Dotted directories,
// the shared cache directory and explicitly ignored names are skipped.
func (s *Service) List() ([]Info, error) {
	s.mu.Lock()
	if s.cached {
		out := make([]Info, len(s.cache))
		copy(out, s.cache)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	infos, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = infos
	s.cached = true
	out := make([]Info, len(infos))
	copy(out, infos)
	s.mu.Unlock()
	return out, nil
}

// Invalidate drops the cached scan. Called after operations that change
// the root directory's contents.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = false
	s.mu.Unlock()
}

// Exists reports whether name is a registered instance.
func (s *Service) Exists(name string) bool {
	infos, err := s.List()
	if err != nil {
		return false
	}
	for _, info := range infos {
		if info.Name == name {
			return true
		}
	}
	return false
}

// Get returns the Info for a single instance.
func (s *Service) Get(name string) (Info, error) {
	infos, err := s.List()
	if err != nil {
		return Info{}, err
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("instance %q not found", name)
}

// Create registers a new empty instance directory. The name is sanitized
// for the filesystem first; the sanitized name is returned.
func (s *Service) Create(name string) (string, error) {
	root := s.store.RootDir()
	if root == "" {
		return "", fmt.Errorf("no servers folder configured")
	}
	safe := SanitizeName(name)
	dir := Layout{Root: root}.InstanceDir(safe)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("instance %q already exists", safe)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create instance directory: %w", err)
	}
	s.Invalidate()
	return safe, nil
}

// Delete removes an instance directory and its persisted state.
func (s *Service) Delete(name string) error {
	root := s.store.RootDir()
	if root == "" {
		return fmt.Errorf("no servers folder configured")
	}
	if name == "" || name != SanitizeName(name) {
		return fmt.Errorf("invalid instance name %q", name)
	}
	if err := os.RemoveAll(Layout{Root: root}.InstanceDir(name)); err != nil {
		return fmt.Errorf("failed to remove instance directory: %w", err)
	}
	if err := s.store.RemoveInstance(name); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Watch invalidates the scan cache whenever the root directory changes.
// Runs until ctx is cancelled. Watch failures degrade to uncached scans,
// never to an error for callers.
func (s *Service) Watch(ctx context.Context) error {
	root := s.store.RootDir()
	if root == "" {
		return fmt.Errorf("no servers folder configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create root watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch root directory: %w", err)
	}

	s.logger.Info("watching instances root", "path", root)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					s.logger.Debug("root directory changed", "event", event.Op.String(), "path", event.Name)
					s.Invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("root watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (s *Service) scan() ([]Info, error) {
	root := s.store.RootDir()
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	snapshot := s.store.Snapshot()
	ignored := make(map[string]bool, len(snapshot.IgnoredInstances))
	for _, n := range snapshot.IgnoredInstances {
		ignored[n] = true
	}

	layout := Layout{Root: root}
	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || name == cacheDirName || ignored[name] {
			continue
		}
		infos = append(infos, Info{
			Name:      name,
			Installed: layout.Installed(name),
			Version:   layout.ReadVersion(name),
			Patchline: layout.ReadPatchline(name),
			Ports:     snapshot.InstancePorts[name],
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
