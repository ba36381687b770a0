package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gameserverkit/warden/internal/config"
	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/instances"
	"github.com/gameserverkit/warden/internal/ports"
	"github.com/gameserverkit/warden/internal/testutil"
)

// echoServer behaves like a well-mannered server: prints a banner,
// echoes commands, and exits cleanly on "stop".
const echoServer = `#!/bin/sh
echo "server ready"
while read line; do
  if [ "$line" = "stop" ]; then
    echo "stopping"
    exit 0
  fi
  echo "cmd: $line"
done
exit 0
`

// stubbornServer ignores stdin entirely and has to be killed.
const stubbornServer = `#!/bin/sh
echo "not listening"
exec sleep 60
`

func newTestSupervisor(t *testing.T, script string) (*Supervisor, *events.Hub, instances.Layout) {
	t.Helper()

	root := t.TempDir()
	settings := config.Defaults()
	settings.RootDir = root
	settings.Server.StopTimeoutSeconds = 1
	settings.Server.KillTimeoutSeconds = 1
	store := config.NewStore(filepath.Join(t.TempDir(), "settings.yaml"), &settings)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := events.NewHub()
	sup := New(store, hub, logger)
	sup.SetAllocator(ports.New(store, sup.RunningPorts, logger))

	if script != "" {
		bin := filepath.Join(t.TempDir(), "fake-java")
		if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
			t.Fatal(err)
		}
		sup.javaBin = bin
	}

	l := instances.Layout{Root: root}
	t.Cleanup(sup.StopAll)
	return sup, hub, l
}

func installInstance(t *testing.T, l instances.Layout, name string) {
	t.Helper()
	if err := os.MkdirAll(l.ServerDir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(l.JarPath(name), []byte("jar"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.WriteMarkers(name, "2025.1.0", "release"); err != nil {
		t.Fatal(err)
	}
}

func streamLines(hub *events.Hub, name string) []string {
	stream := hub.Get(events.ConsoleKey(name))
	if stream == nil {
		return nil
	}
	var lines []string
	for _, e := range stream.Buffer() {
		if e.Kind == events.KindLine {
			lines = append(lines, e.Line)
		}
	}
	return lines
}

func hasLine(hub *events.Hub, name, want string) bool {
	for _, l := range streamLines(hub, name) {
		if strings.Contains(l, want) {
			return true
		}
	}
	return false
}

func TestStartRejectsEmptyName(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, echoServer)
	if err := sup.Start(""); !errors.Is(err, ErrNoInstanceSelected) {
		t.Fatalf("got %v, want ErrNoInstanceSelected", err)
	}
}

func TestStartRejectsNotInstalled(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, echoServer)
	if err := sup.Start("ghost"); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("got %v, want ErrNotInstalled", err)
	}
}

func TestStartReportsMissingRuntime(t *testing.T) {
	sup, _, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")
	sup.javaBin = "definitely-not-a-real-runtime-binary"

	if err := sup.Start("alpha"); !errors.Is(err, ErrJavaNotFound) {
		t.Fatalf("got %v, want ErrJavaNotFound", err)
	}
}

func TestStartRejectsWhileGateClosed(t *testing.T) {
	sup, _, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	gateErr := errors.New("update in progress")
	sup.SetStartGate(func(string) error { return gateErr })

	if err := sup.Start("alpha"); !errors.Is(err, gateErr) {
		t.Fatalf("got %v, want gate error", err)
	}
}

func TestStartRejectsSecondStart(t *testing.T) {
	sup, _, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := sup.Start("alpha"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("got %v, want ErrAlreadyRunning", err)
	}
}

func TestOutputPumpAndCommandRoundTrip(t *testing.T) {
	sup, hub, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	testutil.Eventually(t, func() bool {
		return hasLine(hub, "alpha", "server ready")
	}, "banner line in console stream")

	if err := sup.SendCommand("alpha", "say hello"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	testutil.Eventually(t, func() bool {
		return hasLine(hub, "alpha", "cmd: say hello")
	}, "echoed command in console stream")
}

func TestSendCommandFailsWhenNotRunning(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, echoServer)
	if err := sup.SendCommand("alpha", "say hi"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("got %v, want ErrNotRunning", err)
	}
}

func TestStopGracefulAndIdempotent(t *testing.T) {
	sup, hub, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	testutil.WaitForProcessStart(t, func() bool { return sup.IsInstanceRunning("alpha") })

	if err := sup.Stop("alpha"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	testutil.WaitForProcessStop(t, func() bool { return !sup.IsInstanceRunning("alpha") })

	stream := hub.Get(events.ConsoleKey("alpha"))
	testutil.Eventually(t, stream.Done, "stream closed after exit")
	if res := stream.Result(); res == nil || !res.Success {
		t.Errorf("expected successful terminal result, got %+v", res)
	}

	// Second stop is a no-op.
	if err := sup.Stop("alpha"); err != nil {
		t.Fatalf("idempotent stop returned error: %v", err)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	sup, _, l := newTestSupervisor(t, stubbornServer)
	installInstance(t, l, "alpha")

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	testutil.WaitForProcessStart(t, func() bool { return sup.IsInstanceRunning("alpha") })

	start := time.Now()
	if err := sup.Stop("alpha"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("stop escalation took too long: %v", elapsed)
	}
	testutil.WaitForProcessStop(t, func() bool { return !sup.IsInstanceRunning("alpha") })
}

func TestRestartSentinelRelaunches(t *testing.T) {
	sup, hub, l := newTestSupervisor(t, "")
	installInstance(t, l, "alpha")

	// First run exits with the restart code, second run stays up.
	mark := filepath.Join(t.TempDir(), "ran-once")
	script := fmt.Sprintf(`#!/bin/sh
if [ -f %q ]; then
  echo "second run"
  while read line; do
    if [ "$line" = "stop" ]; then exit 0; fi
  done
  exit 0
fi
touch %q
echo "first run"
exit 8
`, mark, mark)
	bin := filepath.Join(t.TempDir(), "fake-java")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	sup.javaBin = bin

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	testutil.Eventually(t, func() bool {
		return hasLine(hub, "alpha", "second run")
	}, "relaunched run's output on the same stream")

	if !hasLine(hub, "alpha", "first run") {
		t.Error("first run's output missing from stream")
	}
	stream := hub.Get(events.ConsoleKey("alpha"))
	if stream.Done() {
		t.Error("stream closed by restart sentinel exit")
	}
	if !sup.IsInstanceRunning("alpha") {
		t.Error("instance not tracked as running after relaunch")
	}
}

func TestCrashRecordsExitAndClosesStream(t *testing.T) {
	sup, hub, l := newTestSupervisor(t, "#!/bin/sh\necho boom\nexit 3\n")
	installInstance(t, l, "alpha")

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	testutil.WaitForProcessStop(t, func() bool { return !sup.IsInstanceRunning("alpha") })

	rec, ok := sup.LastExit("alpha")
	if !ok || rec.Code != 3 {
		t.Fatalf("LastExit = %+v, %v; want code 3", rec, ok)
	}
	stream := hub.Get(events.ConsoleKey("alpha"))
	testutil.Eventually(t, stream.Done, "stream closed after crash")
	if res := stream.Result(); res == nil || res.Success || res.ExitCode != 3 {
		t.Errorf("terminal result = %+v, want failure with exit code 3", res)
	}
}

func TestStagedUpdateConsumedOnStart(t *testing.T) {
	sup, _, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	staging := l.StagingDir("alpha")
	if err := os.MkdirAll(filepath.Join(staging, instances.ServerDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	writeStaged := func(rel, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(staging, rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeStaged(filepath.Join(instances.ServerDirName, instances.ServerJarName), "new-jar")
	writeStaged("server_version.txt", "2025.2.0")
	writeStaged("server_patchline.txt", "release")

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	testutil.WaitForProcessStart(t, func() bool { return sup.IsInstanceRunning("alpha") })

	got, err := os.ReadFile(l.JarPath("alpha"))
	if err != nil || string(got) != "new-jar" {
		t.Errorf("jar not replaced by staged update: %q, %v", got, err)
	}
	if l.ReadVersion("alpha") != "2025.2.0" {
		t.Errorf("version marker = %s, want 2025.2.0", l.ReadVersion("alpha"))
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("staging directory not removed after successful apply")
	}
}

func TestStagedUpdateKeptOnFailure(t *testing.T) {
	sup, _, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	// Staging without the jar is incomplete and must not be consumed.
	staging := l.StagingDir("alpha")
	if err := os.MkdirAll(filepath.Join(staging, instances.ServerDirName), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := sup.Start("alpha"); err == nil {
		t.Fatal("expected start to fail on broken staged update")
	}
	if _, err := os.Stat(staging); err != nil {
		t.Errorf("staging directory removed despite failed apply: %v", err)
	}
}

func TestRunningPortsAndUptime(t *testing.T) {
	sup, _, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	testutil.WaitForProcessStart(t, func() bool { return sup.IsInstanceRunning("alpha") })

	portsByName := sup.RunningPorts()
	if portsByName["alpha"] == 0 {
		t.Errorf("RunningPorts missing alpha: %v", portsByName)
	}
	if port, ok := sup.Port("alpha"); !ok || port != portsByName["alpha"] {
		t.Errorf("Port = %d, %v; want %d", port, ok, portsByName["alpha"])
	}
	if _, ok := sup.Uptime("alpha"); !ok {
		t.Error("Uptime unavailable for running instance")
	}
	if !sup.IsAnyRunning() {
		t.Error("IsAnyRunning false with a live instance")
	}
}

func TestResourceUsageUnknownWhenStopped(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, echoServer)
	if u := sup.ResourceUsage("alpha"); u.Known {
		t.Errorf("ResourceUsage for stopped instance = %+v, want unknown", u)
	}
}

func TestStopAllStopsEverything(t *testing.T) {
	sup, _, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")
	installInstance(t, l, "beta")

	for _, name := range []string{"alpha", "beta"} {
		if err := sup.Start(name); err != nil {
			t.Fatalf("start %s failed: %v", name, err)
		}
	}
	testutil.WaitForProcessStart(t, func() bool {
		return sup.IsInstanceRunning("alpha") && sup.IsInstanceRunning("beta")
	})

	sup.StopAll()
	testutil.WaitForProcessStop(t, func() bool { return !sup.IsAnyRunning() })
}

func TestConcurrentStartsLaunchExactlyOne(t *testing.T) {
	sup, hub, l := newTestSupervisor(t, echoServer)
	installInstance(t, l, "alpha")

	const attempts = 4
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- sup.Start("alpha")
		}()
	}
	wg.Wait()
	close(errs)

	var started, alreadyRunning int
	for err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrAlreadyRunning):
			alreadyRunning++
		default:
			t.Errorf("unexpected Start error: %v", err)
		}
	}
	if started != 1 || alreadyRunning != attempts-1 {
		t.Fatalf("started=%d alreadyRunning=%d, want 1 and %d", started, alreadyRunning, attempts-1)
	}

	testutil.WaitForProcessStart(t, func() bool { return sup.IsInstanceRunning("alpha") })

	stream := hub.Get(events.ConsoleKey("alpha"))
	if stream == nil {
		t.Fatal("no console stream registered")
	}
	if stream.Done() {
		t.Fatal("live console stream was superseded by a losing start")
	}
}

func TestRelaunchSkippedAfterStopRequest(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, echoServer)

	h := &handle{name: "alpha"}
	h.stopping.Store(true)

	next, err := sup.relaunch(h)
	if err != nil {
		t.Fatalf("relaunch returned error: %v", err)
	}
	if next != nil {
		t.Fatal("relaunch started a new process despite a pending stop")
	}
}
