package config

// Settings is the persisted manager configuration. It lives in a single
// YAML file under the state directory and holds everything that must
// survive a restart of the manager itself: where instances live, which
// instance is active, and the port pairs handed out to each instance.
type Settings struct {
	// RootDir is the folder containing one subdirectory per instance.
	RootDir string `yaml:"root_dir"`

	// ActiveInstance is the instance operated on when a caller does not
	// name one explicitly.
	ActiveInstance string `yaml:"active_instance"`

	// InstancePorts maps instance name to its assigned port pair.
	InstancePorts map[string]PortPair `yaml:"instance_ports"`

	// IgnoredInstances are root subdirectories that are not instances.
	IgnoredInstances []string `yaml:"ignored_instances,omitempty"`

	Ports      PortConfig      `yaml:"ports"`
	Server     ServerConfig    `yaml:"server"`
	Downloader DownloaderConfig `yaml:"downloader"`
	Updates    UpdateConfig    `yaml:"updates"`
	API        APIConfig       `yaml:"api"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Tracing    TracingConfig   `yaml:"tracing"`
	Log        LogConfig       `yaml:"log"`
}

// PortPair is the (game, webserver) port assignment for one instance.
type PortPair struct {
	Game int `yaml:"game"`
	Web  int `yaml:"web"`
}

// PortConfig bounds the allocator's scan range.
type PortConfig struct {
	RangeStart int `yaml:"range_start"`
	RangeEnd   int `yaml:"range_end"`
	WebOffset  int `yaml:"web_offset"`
}

// ServerConfig controls how managed server processes are launched and
// stopped.
type ServerConfig struct {
	// RestartExitCode is the exit code the managed server uses to request
	// a relaunch after it staged its own update. A convention of the
	// server binary, so it is configurable rather than hard-coded.
	RestartExitCode int `yaml:"restart_exit_code"`

	// StopTimeoutSeconds bounds the wait after sending the stop command
	// before escalating to a forceful kill.
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds"`

	// KillTimeoutSeconds bounds the wait after the forceful kill.
	KillTimeoutSeconds int `yaml:"kill_timeout_seconds"`

	// GracefulWarnMinutes is the default countdown length for graceful
	// shutdowns.
	GracefulWarnMinutes int `yaml:"graceful_warn_minutes"`
}

// DownloaderConfig locates the patchline downloader executable.
type DownloaderConfig struct {
	// Exe is the downloader executable name, resolved against the program
	// directory first and the root directory second.
	Exe string `yaml:"exe"`

	// FetchURL is where the downloader archive is fetched from when the
	// executable is missing.
	FetchURL string `yaml:"fetch_url"`

	// VersionTimeoutSeconds bounds a -print-version invocation.
	VersionTimeoutSeconds int `yaml:"version_timeout_seconds"`
}

// UpdateConfig controls the update pipeline.
type UpdateConfig struct {
	// CheckSchedule is an optional cron expression for periodic
	// update-availability checks. Empty disables the scheduler.
	CheckSchedule string `yaml:"check_schedule,omitempty"`
}

// APIConfig configures the management HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"` // otlp-grpc | stdout
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
	UseTLS     bool    `yaml:"use_tls"`
}

// LogConfig configures the manager's own logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// Defaults returns a Settings populated with the defaults applied when a
// field is absent from the file.
func Defaults() Settings {
	return Settings{
		InstancePorts: make(map[string]PortPair),
		Ports: PortConfig{
			RangeStart: 5520,
			RangeEnd:   5600,
			WebOffset:  100,
		},
		Server: ServerConfig{
			RestartExitCode:     8,
			StopTimeoutSeconds:  10,
			KillTimeoutSeconds:  5,
			GracefulWarnMinutes: 1,
		},
		Downloader: DownloaderConfig{
			Exe:                   "hytale-downloader",
			FetchURL:              "https://downloader.hytale.com/hytale-downloader.zip",
			VersionTimeoutSeconds: 30,
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8520",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9520",
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
