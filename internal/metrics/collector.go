// Package metrics exposes Prometheus collectors for instance lifecycle
// and update activity, plus the scrape endpoint server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InstanceUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_instance_up",
			Help: "Instance status (1=running, 0=stopped)",
		},
		[]string{"instance"},
	)

	InstanceStartTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_instance_start_time_seconds",
			Help: "Unix timestamp when the instance process started",
		},
		[]string{"instance"},
	)

	InstanceLastExitCode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_instance_last_exit_code",
			Help: "Last exit code observed for the instance",
		},
		[]string{"instance"},
	)

	InstanceRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_instance_restarts_total",
			Help: "Total relaunches triggered by the restart sentinel exit code",
		},
		[]string{"instance"},
	)

	InstanceCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_instance_cpu_percent",
			Help: "CPU usage of the instance's server process",
		},
		[]string{"instance"},
	)

	InstanceMemoryBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_instance_memory_rss_bytes",
			Help: "Resident memory of the instance's server process",
		},
		[]string{"instance"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_downloads_total",
			Help: "Server archive downloads performed, by patchline",
		},
		[]string{"patchline"},
	)

	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_updates_total",
			Help: "Instance updates attempted, by outcome",
		},
		[]string{"result"}, // success, failure
	)

	UpdateInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_update_in_progress",
			Help: "Whether an update job currently holds the global guard",
		},
	)
)

// SetInstanceUp records a start or stop transition.
func SetInstanceUp(instance string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	InstanceUp.WithLabelValues(instance).Set(v)
}

// RecordInstanceStart stamps the start time and marks the instance up.
func RecordInstanceStart(instance string, started time.Time) {
	SetInstanceUp(instance, true)
	InstanceStartTime.WithLabelValues(instance).Set(float64(started.Unix()))
}

// RecordInstanceExit marks the instance down and records its exit code.
func RecordInstanceExit(instance string, code int) {
	SetInstanceUp(instance, false)
	InstanceLastExitCode.WithLabelValues(instance).Set(float64(code))
}

// RecordRestart counts a sentinel-triggered relaunch.
func RecordRestart(instance string) {
	InstanceRestarts.WithLabelValues(instance).Inc()
}

// RecordDownload counts a completed archive download.
func RecordDownload(patchline string) {
	DownloadsTotal.WithLabelValues(patchline).Inc()
}

// RecordUpdate counts an update attempt outcome.
func RecordUpdate(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	UpdatesTotal.WithLabelValues(result).Inc()
}

// SetUpdateInProgress mirrors the global update guard.
func SetUpdateInProgress(active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	UpdateInProgress.Set(v)
}
