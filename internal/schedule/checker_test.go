package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gameserverkit/warden/internal/update"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCheckerRejectsBadSpec(t *testing.T) {
	status := func(context.Context) ([]update.InstanceStatus, error) { return nil, nil }

	if _, err := NewChecker("", status, discardLogger()); err == nil {
		t.Error("empty spec accepted")
	}
	if _, err := NewChecker("not a cron line", status, discardLogger()); err == nil {
		t.Error("invalid spec accepted")
	}
	if _, err := NewChecker("*/30 * * * *", status, discardLogger()); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
}

func TestRunNowRecordsAvailability(t *testing.T) {
	statuses := []update.InstanceStatus{
		{Name: "alpha", Installed: true, UpdateAvailable: true},
		{Name: "beta", Installed: true, UpdateAvailable: false},
	}
	c, err := NewChecker("0 4 * * *", func(context.Context) ([]update.InstanceStatus, error) {
		return statuses, nil
	}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if !c.LastCheck().IsZero() {
		t.Error("LastCheck non-zero before any run")
	}

	c.RunNow()

	got := c.Available()
	if len(got) != 1 || got[0] != "alpha" {
		t.Errorf("Available = %v, want [alpha]", got)
	}
	if c.LastCheck().IsZero() {
		t.Error("LastCheck still zero after run")
	}
}

func TestRunNowKeepsSnapshotOnError(t *testing.T) {
	fail := false
	c, err := NewChecker("0 4 * * *", func(context.Context) ([]update.InstanceStatus, error) {
		if fail {
			return nil, errors.New("remote unreachable")
		}
		return []update.InstanceStatus{{Name: "alpha", UpdateAvailable: true}}, nil
	}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	c.RunNow()
	fail = true
	c.RunNow()

	if got := c.Available(); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("failed check clobbered snapshot: %v", got)
	}
}
