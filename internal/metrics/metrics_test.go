package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstanceLifecycleGauges(t *testing.T) {
	RecordInstanceStart("alpha", time.Unix(1700000000, 0))
	if got := testutil.ToFloat64(InstanceUp.WithLabelValues("alpha")); got != 1 {
		t.Errorf("InstanceUp after start = %v, want 1", got)
	}
	if got := testutil.ToFloat64(InstanceStartTime.WithLabelValues("alpha")); got != 1700000000 {
		t.Errorf("InstanceStartTime = %v", got)
	}

	RecordInstanceExit("alpha", 3)
	if got := testutil.ToFloat64(InstanceUp.WithLabelValues("alpha")); got != 0 {
		t.Errorf("InstanceUp after exit = %v, want 0", got)
	}
	if got := testutil.ToFloat64(InstanceLastExitCode.WithLabelValues("alpha")); got != 3 {
		t.Errorf("InstanceLastExitCode = %v, want 3", got)
	}
}

func TestUpdateCounters(t *testing.T) {
	before := testutil.ToFloat64(UpdatesTotal.WithLabelValues("success"))
	RecordUpdate(true)
	if got := testutil.ToFloat64(UpdatesTotal.WithLabelValues("success")); got != before+1 {
		t.Errorf("UpdatesTotal(success) = %v, want %v", got, before+1)
	}

	SetUpdateInProgress(true)
	if got := testutil.ToFloat64(UpdateInProgress); got != 1 {
		t.Errorf("UpdateInProgress = %v, want 1", got)
	}
	SetUpdateInProgress(false)
}

func TestSamplerPublishesResourceGauges(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSampler(
		func() []string { return []string{"beta", "ghost"} },
		func(name string) (float64, uint64, bool) {
			if name == "beta" {
				return 12.5, 2048, true
			}
			return 0, 0, false
		},
		logger, time.Second,
	)
	s.sampleOnce()

	if got := testutil.ToFloat64(InstanceCPUPercent.WithLabelValues("beta")); got != 12.5 {
		t.Errorf("InstanceCPUPercent = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(InstanceMemoryBytes.WithLabelValues("beta")); got != 2048 {
		t.Errorf("InstanceMemoryBytes = %v, want 2048", got)
	}
}

func TestScrapeEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer("127.0.0.1:0", "", logger)

	ts := httptest.NewServer(s.handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "warden_") {
		t.Errorf("scrape status=%d, warden metrics present=%v", resp.StatusCode, strings.Contains(string(body), "warden_"))
	}

	health, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", health.StatusCode)
	}
}
