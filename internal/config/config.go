package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns the settings file path: $WARDEN_CONFIG if set,
// otherwise settings.yaml under the user config directory.
func DefaultPath() string {
	if p := os.Getenv("WARDEN_CONFIG"); p != "" {
		return p
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "warden", "settings.yaml")
}

// Load reads settings from path, applying defaults for absent fields.
// A missing file is not an error: it yields pure defaults, and the file
// is created on the first Save.
func Load(path string) (*Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.InstancePorts == nil {
		s.InstancePorts = make(map[string]PortPair)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks invariants that would make the manager misbehave.
func (s *Settings) Validate() error {
	if s.Ports.RangeStart <= 0 || s.Ports.RangeEnd < s.Ports.RangeStart {
		return fmt.Errorf("invalid port range: %d-%d", s.Ports.RangeStart, s.Ports.RangeEnd)
	}
	if s.Ports.WebOffset <= 0 {
		return fmt.Errorf("web_offset must be positive")
	}
	if s.Server.StopTimeoutSeconds <= 0 {
		return fmt.Errorf("stop_timeout_seconds must be positive")
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", s.Log.Level)
	}
	switch s.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", s.Log.Format)
	}
	if s.Tracing.Enabled {
		switch s.Tracing.Exporter {
		case "otlp-grpc", "stdout":
		default:
			return fmt.Errorf("unsupported trace exporter: %s", s.Tracing.Exporter)
		}
	}
	return nil
}

func save(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return os.Rename(tmp, path)
}
