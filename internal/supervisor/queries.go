package supervisor

import (
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a best-effort resource sample for a running instance. Known
// is false when OS introspection failed; that is never an error.
type Usage struct {
	CPUPercent float64
	RSSBytes   uint64
	Known      bool
}

// IsAnyRunning reports whether any instance has a live process.
func (s *Supervisor) IsAnyRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.procs) > 0
}

// IsInstanceRunning reports whether the named instance has a live
// process.
func (s *Supervisor) IsInstanceRunning(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.procs[name]
	return ok
}

// Running returns the names of all instances with a live process.
func (s *Supervisor) Running() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	return names
}

// Uptime returns how long the named instance's process has been up.
func (s *Supervisor) Uptime(name string) (time.Duration, bool) {
	s.mu.RLock()
	h, ok := s.procs[name]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return time.Since(h.started), true
}

// Port returns the primary port the named instance is bound to.
func (s *Supervisor) Port(name string) (int, bool) {
	s.mu.RLock()
	h, ok := s.procs[name]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return h.port, true
}

// RunningPorts reports the primary port of every live instance. The
// port allocator uses this to keep live assignments off the free list.
func (s *Supervisor) RunningPorts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.procs))
	for name, h := range s.procs {
		out[name] = h.port
	}
	return out
}

// LastExit returns the most recent exit record for the instance.
func (s *Supervisor) LastExit(name string) (ExitRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.lastExit[name]
	return rec, ok
}

// ResourceUsage samples CPU and resident memory of the instance's
// server process. The launched command is the JVM itself, but some
// launch scripts wrap it, so a java child is preferred when present.
func (s *Supervisor) ResourceUsage(name string) Usage {
	s.mu.RLock()
	h, ok := s.procs[name]
	s.mu.RUnlock()
	if !ok {
		return Usage{}
	}

	p, err := process.NewProcess(int32(h.cmd.Process.Pid))
	if err != nil {
		return Usage{}
	}
	target := p
	if children, err := p.Children(); err == nil {
		for _, child := range children {
			if n, err := child.Name(); err == nil && strings.Contains(strings.ToLower(n), "java") {
				target = child
				break
			}
		}
	}

	cpu, cpuErr := target.CPUPercent()
	mem, memErr := target.MemoryInfo()
	if cpuErr != nil || memErr != nil || mem == nil {
		return Usage{}
	}
	return Usage{CPUPercent: cpu, RSSBytes: mem.RSS, Known: true}
}
