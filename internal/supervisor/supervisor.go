// Package supervisor owns the lifecycle of running server processes.
// One handle exists per running instance; the registry map is guarded
// by a single mutex and entries are removed the moment the process is
// observed to have exited.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gameserverkit/warden/internal/config"
	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/instances"
	"github.com/gameserverkit/warden/internal/metrics"
	"github.com/gameserverkit/warden/internal/ports"
	"github.com/gameserverkit/warden/internal/tracing"
)

var (
	ErrNoInstanceSelected = errors.New("no instance selected")
	ErrAlreadyRunning     = errors.New("server is already running")
	ErrNotInstalled       = errors.New("server is not installed")
	ErrJavaNotFound       = errors.New("java runtime not found on this host")
	ErrNotRunning         = errors.New("server is not running")
)

// StartGate lets another component veto starts, e.g. while an update
// is rewriting the instance directory. A nil gate allows everything.
type StartGate func(instance string) error

// ExitRecord is the last observed exit of an instance's process.
type ExitRecord struct {
	Code int
	At   time.Time
}

// handle is the live state of one running instance.
type handle struct {
	name     string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	started  time.Time
	port     int
	stream   *events.Stream
	done     chan struct{}
	stopping atomic.Bool

	// stagedApplied marks runs launched right after a staged update
	// was consumed, so a crash can be flagged as a suspect update.
	stagedApplied bool
}

// Supervisor launches, tracks and terminates instance processes.
type Supervisor struct {
	store  *config.Store
	alloc  *ports.Allocator
	hub    *events.Hub
	logger *slog.Logger

	javaBin string

	// startMu serializes Start calls. Launching resets the console
	// stream before the registry insert, so two racing starts for the
	// same name must not interleave.
	startMu sync.Mutex

	mu       sync.RWMutex
	procs    map[string]*handle
	lastExit map[string]ExitRecord
	gate     StartGate
}

// New creates a Supervisor. The allocator is created by the caller with
// this supervisor's RunningPorts as its liveness source.
func New(store *config.Store, hub *events.Hub, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		store:    store,
		hub:      hub,
		logger:   logger.With("component", "supervisor"),
		javaBin:  "java",
		procs:    make(map[string]*handle),
		lastExit: make(map[string]ExitRecord),
	}
}

// SetAllocator wires the port allocator. Done after construction
// because the allocator itself needs RunningPorts from this supervisor.
func (s *Supervisor) SetAllocator(a *ports.Allocator) {
	s.alloc = a
}

// SetStartGate installs the update-in-progress veto.
func (s *Supervisor) SetStartGate(g StartGate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = g
}

func (s *Supervisor) layout() instances.Layout {
	return instances.Layout{Root: s.store.RootDir()}
}

// Start launches the named instance. It applies any staged update
// before the launch, assigns ports, and spawns the output pump plus a
// waiter goroutine that handles the restart sentinel.
func (s *Supervisor) Start(name string) error {
	if name == "" {
		return ErrNoInstanceSelected
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	_, span := tracing.StartSupervisorSpan(context.Background(), "start", name)
	defer span.End()

	err := s.start(name)
	if err != nil {
		tracing.RecordError(span, err, "start failed")
		return err
	}
	tracing.RecordSuccess(span)
	return nil
}

// start is the body of Start; the caller holds startMu.
func (s *Supervisor) start(name string) error {
	s.mu.Lock()
	if _, ok := s.procs[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		if err := gate(name); err != nil {
			return err
		}
	}

	l := s.layout()
	stagedApplied, err := s.applyStaged(l, name)
	if err != nil {
		// A failed staged apply keeps the staging dir for the next
		// attempt. The start itself still fails.
		return fmt.Errorf("failed to apply staged update: %w", err)
	}

	if !l.Installed(name) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}

	javaPath, err := exec.LookPath(s.javaBin)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJavaNotFound, err)
	}

	pair, err := s.alloc.Assign(name)
	if err != nil {
		return fmt.Errorf("failed to assign ports: %w", err)
	}

	stream := s.hub.Reset(events.ConsoleKey(name))

	h, err := s.launch(l, name, javaPath, pair.Game, stream)
	if err != nil {
		stream.Close(events.Result{Success: false, Message: err.Error()})
		return err
	}

	s.mu.Lock()
	s.procs[name] = h
	s.mu.Unlock()

	go s.supervise(h, stagedApplied)
	return nil
}

// launch builds and starts the server command for one run.
func (s *Supervisor) launch(l instances.Layout, name, javaPath string, port int, stream *events.Stream) (*handle, error) {
	args := []string{}
	if _, err := os.Stat(l.AOTPath(name)); err == nil {
		args = append(args, "-XX:AOTCache="+instances.ServerAOTName)
	}
	args = append(args,
		"-jar", instances.ServerJarName,
		"--assets", "../"+instances.AssetsArchiveName,
		"--bind", fmt.Sprintf("0.0.0.0:%d", port),
	)

	cmd := exec.Command(javaPath, args...)
	cmd.Dir = l.ServerDir(name)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("failed to launch server: %w", err)
	}

	s.logger.Info("server started",
		"instance", name,
		"pid", cmd.Process.Pid,
		"port", port,
	)
	metrics.RecordInstanceStart(name, time.Now())

	h := &handle{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		started: time.Now(),
		port:    port,
		stream:  stream,
		done:    make(chan struct{}),
	}

	go pump(pr, stream)
	go func() {
		cmd.Wait()
		pw.Close()
		close(h.done)
	}()

	return h, nil
}

// pump forwards combined stdout/stderr lines into the console stream.
func pump(r io.Reader, stream *events.Stream) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		stream.PublishLine(scanner.Text())
	}
}

// supervise waits for the process and relaunches it when it exits with
// the restart sentinel code. Any other exit tears the handle down.
func (s *Supervisor) supervise(h *handle, stagedApplied bool) {
	cfg := s.store.Snapshot()
	restartCode := cfg.Server.RestartExitCode

	for {
		<-h.done
		code := h.cmd.ProcessState.ExitCode()

		s.mu.Lock()
		s.lastExit[h.name] = ExitRecord{Code: code, At: time.Now()}
		s.mu.Unlock()

		if code == restartCode && !h.stopping.Load() {
			s.logger.Info("restart requested by server", "instance", h.name, "exit_code", code)
			metrics.RecordRestart(h.name)
			h.stream.PublishLine(fmt.Sprintf("[warden] server requested restart (exit code %d), relaunching", code))

			next, err := s.relaunch(h)
			if err != nil {
				s.logger.Error("relaunch failed", "instance", h.name, "error", err)
				s.finish(h, code, false, "relaunch failed: "+err.Error())
				return
			}
			if next == nil {
				// A Stop raced the sentinel exit and won.
				s.logger.Info("restart suppressed by stop request", "instance", h.name)
				s.finish(h, code, true, "")
				return
			}
			s.mu.Lock()
			s.procs[h.name] = next
			s.mu.Unlock()
			h = next
			stagedApplied = next.stagedApplied
			continue
		}

		msg := ""
		if code != 0 && stagedApplied {
			// A crash right after consuming a staged update is the
			// strongest signal we get that the update itself is bad.
			msg = fmt.Sprintf("exited with code %d immediately after a staged update was applied; the update may be broken", code)
			s.logger.Warn("possible failed update", "instance", h.name, "exit_code", code)
		}
		s.finish(h, code, code == 0 || h.stopping.Load(), msg)
		return
	}
}

// relaunch prepares the next run after a restart-sentinel exit. Staged
// updates dropped in while the server was up are consumed here, which
// is how in-place updates land without an operator in the loop. A nil
// handle without error means a Stop arrived first and no new process
// was (or remains) started.
func (s *Supervisor) relaunch(h *handle) (*handle, error) {
	if h.stopping.Load() {
		return nil, nil
	}

	l := s.layout()
	applied, err := s.applyStaged(l, h.name)
	if err != nil {
		return nil, err
	}

	javaPath, err := exec.LookPath(s.javaBin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJavaNotFound, err)
	}

	next, err := s.launch(l, h.name, javaPath, h.port, h.stream)
	if err != nil {
		return nil, err
	}
	next.stagedApplied = applied
	if h.stopping.Load() {
		// Stop landed mid-launch; take the fresh process straight back
		// down so the stop it observed stays true.
		next.stopping.Store(true)
		_ = syscall.Kill(-next.cmd.Process.Pid, syscall.SIGKILL)
	}
	return next, nil
}

// finish removes the handle from the registry and closes its stream.
func (s *Supervisor) finish(h *handle, code int, success bool, msg string) {
	s.mu.Lock()
	if s.procs[h.name] == h {
		delete(s.procs, h.name)
	}
	s.mu.Unlock()

	s.logger.Info("server exited", "instance", h.name, "exit_code", code)
	metrics.RecordInstanceExit(h.name, code)
	h.stream.Close(events.Result{Success: success, ExitCode: code, Message: msg})
}

// SendCommand writes a line to the instance's stdin. Failures are
// returned, never raised: a stopped server or a broken pipe is a
// routine condition for callers like the graceful-stop countdown.
func (s *Supervisor) SendCommand(name, text string) error {
	s.mu.RLock()
	h, ok := s.procs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// Stop terminates the named instance: stop command, bounded wait, then
// a process-group kill, then an unconditional kill. Stopping a stopped
// instance is a no-op.
func (s *Supervisor) Stop(name string) error {
	s.mu.RLock()
	h, ok := s.procs[name]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	_, span := tracing.StartSupervisorSpan(context.Background(), "stop", name)
	defer span.End()

	cfg := s.store.Snapshot()
	stopTimeout := time.Duration(cfg.Server.StopTimeoutSeconds) * time.Second
	killTimeout := time.Duration(cfg.Server.KillTimeoutSeconds) * time.Second

	h.stopping.Store(true)

	s.logger.Info("stopping server", "instance", name)
	_ = s.SendCommand(name, "stop")

	if waitDone(h.done, stopTimeout) {
		return nil
	}

	s.logger.Warn("server did not stop in time, killing process group", "instance", name)
	_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
	if waitDone(h.done, killTimeout) {
		return nil
	}

	_ = h.cmd.Process.Kill()
	if waitDone(h.done, killTimeout) {
		return nil
	}
	err := fmt.Errorf("server %s is still alive after forced kill", name)
	tracing.RecordError(span, err, "stop failed")
	return err
}

// StopAll stops every tracked instance. Individual failures are logged
// and do not block the rest.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := s.Stop(name); err != nil {
				s.logger.Error("failed to stop server", "instance", name, "error", err)
			}
		}(name)
	}
	wg.Wait()
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
