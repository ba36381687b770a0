package config

import (
	"sync"
)

// Store is the concurrency-safe settings store shared by the allocator,
// supervisor and update pipeline. All mutation goes through Store so the
// file on disk never sees a torn write and concurrent readers always get
// a consistent snapshot.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings *Settings
}

// NewStore wraps settings loaded from path.
func NewStore(path string, s *Settings) *Store {
	return &Store{path: path, settings: s}
}

// Open loads the settings file at path and returns a Store over it.
func Open(path string) (*Store, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, s), nil
}

// Snapshot returns a copy of the current settings.
func (st *Store) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := *st.settings
	out.InstancePorts = make(map[string]PortPair, len(st.settings.InstancePorts))
	for k, v := range st.settings.InstancePorts {
		out.InstancePorts[k] = v
	}
	out.IgnoredInstances = append([]string(nil), st.settings.IgnoredInstances...)
	return out
}

// RootDir returns the configured instances root, or "" if unset.
func (st *Store) RootDir() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.settings.RootDir
}

// SetRootDir updates and persists the instances root.
func (st *Store) SetRootDir(dir string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.settings.RootDir = dir
	return save(st.path, st.settings)
}

// ActiveInstance returns the selected instance name, or "".
func (st *Store) ActiveInstance() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.settings.ActiveInstance
}

// SetActiveInstance updates and persists the selected instance.
func (st *Store) SetActiveInstance(name string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.settings.ActiveInstance = name
	return save(st.path, st.settings)
}

// InstancePorts returns the stored port pair for name and whether one
// exists.
func (st *Store) InstancePorts(name string) (PortPair, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	p, ok := st.settings.InstancePorts[name]
	return p, ok
}

// AllInstancePorts returns a copy of every stored assignment.
func (st *Store) AllInstancePorts() map[string]PortPair {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[string]PortPair, len(st.settings.InstancePorts))
	for k, v := range st.settings.InstancePorts {
		out[k] = v
	}
	return out
}

// SetInstancePorts persists a port assignment for name before returning.
func (st *Store) SetInstancePorts(name string, p PortPair) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.settings.InstancePorts[name] = p
	return save(st.path, st.settings)
}

// RemoveInstance drops all persisted state for name (ports). Used when an
// instance directory is deleted.
func (st *Store) RemoveInstance(name string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.settings.InstancePorts, name)
	if st.settings.ActiveInstance == name {
		st.settings.ActiveInstance = ""
	}
	return save(st.path, st.settings)
}
