package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Ports.RangeStart != 5520 || s.Ports.RangeEnd != 5600 {
		t.Errorf("default port range = %d-%d, want 5520-5600", s.Ports.RangeStart, s.Ports.RangeEnd)
	}
	if s.Server.RestartExitCode != 8 {
		t.Errorf("default restart exit code = %d, want 8", s.Server.RestartExitCode)
	}
	if s.Log.Level != "info" {
		t.Errorf("default log level = %q, want info", s.Log.Level)
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
root_dir: /srv/servers
active_instance: Alpha
instance_ports:
  Alpha:
    game: 5521
    web: 5621
server:
  restart_exit_code: 42
  stop_timeout_seconds: 10
  kill_timeout_seconds: 5
  graceful_warn_minutes: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.RootDir != "/srv/servers" {
		t.Errorf("RootDir = %q", s.RootDir)
	}
	if s.Server.RestartExitCode != 42 {
		t.Errorf("RestartExitCode = %d, want 42", s.Server.RestartExitCode)
	}
	if p := s.InstancePorts["Alpha"]; p.Game != 5521 || p.Web != 5621 {
		t.Errorf("InstancePorts[Alpha] = %+v", p)
	}
	// Untouched sections keep their defaults.
	if s.Ports.WebOffset != 100 {
		t.Errorf("WebOffset = %d, want 100", s.Ports.WebOffset)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"inverted port range", func(s *Settings) { s.Ports.RangeStart = 6000; s.Ports.RangeEnd = 5000 }},
		{"zero web offset", func(s *Settings) { s.Ports.WebOffset = 0 }},
		{"bad log level", func(s *Settings) { s.Log.Level = "verbose" }},
		{"bad log format", func(s *Settings) { s.Log.Format = "xml" }},
		{"bad trace exporter", func(s *Settings) { s.Tracing.Enabled = true; s.Tracing.Exporter = "jaeger" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestStorePersistsPortAssignments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := st.SetInstancePorts("Alpha", PortPair{Game: 5520, Web: 5620}); err != nil {
		t.Fatalf("SetInstancePorts() error = %v", err)
	}

	// A fresh store over the same file sees the assignment.
	st2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := st2.InstancePorts("Alpha")
	if !ok || p.Game != 5520 || p.Web != 5620 {
		t.Errorf("reloaded ports = %+v, ok=%v", p, ok)
	}
}

func TestStoreRemoveInstanceClearsActive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SetActiveInstance("Alpha"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetInstancePorts("Alpha", PortPair{Game: 5520, Web: 5620}); err != nil {
		t.Fatal(err)
	}

	if err := st.RemoveInstance("Alpha"); err != nil {
		t.Fatalf("RemoveInstance() error = %v", err)
	}
	if st.ActiveInstance() != "" {
		t.Errorf("ActiveInstance = %q, want empty", st.ActiveInstance())
	}
	if _, ok := st.InstancePorts("Alpha"); ok {
		t.Error("ports for removed instance still present")
	}
}
