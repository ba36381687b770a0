package update

import (
	"context"

	"github.com/gameserverkit/warden/internal/instances"
)

// InstanceStatus is one instance's update availability.
type InstanceStatus struct {
	Name            string `json:"name"`
	Installed       bool   `json:"installed"`
	CurrentVersion  string `json:"current_version"`
	Patchline       string `json:"patchline"`
	LatestVersion   string `json:"latest_version,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
	// Downgrade marks an "update" that would move to an older version,
	// which happens after switching patchlines.
	Downgrade bool `json:"downgrade,omitempty"`
}

// Status computes update availability for every instance. Remote
// version queries are made once per distinct patchline, not once per
// instance.
func (p *Pipeline) Status(ctx context.Context) ([]InstanceStatus, error) {
	infos, err := p.svc.List()
	if err != nil {
		return nil, err
	}

	latestByPatchline := make(map[string]string)
	latest := func(patchline string) string {
		if v, ok := latestByPatchline[patchline]; ok {
			return v
		}
		v, err := p.cache.source.LatestVersion(ctx, patchline)
		if err != nil {
			p.logger.Warn("version query failed", "patchline", patchline, "error", err)
			v = ""
		}
		latestByPatchline[patchline] = v
		return v
	}

	out := make([]InstanceStatus, 0, len(infos))
	for _, info := range infos {
		st := InstanceStatus{
			Name:           info.Name,
			Installed:      info.Installed,
			CurrentVersion: info.Version,
			Patchline:      info.Patchline,
		}
		if info.Installed {
			st.LatestVersion = latest(info.Patchline)
			st.UpdateAvailable = st.LatestVersion != "" && st.LatestVersion != info.Version
			st.Downgrade = st.UpdateAvailable && CompareVersions(st.LatestVersion, info.Version) < 0
		}
		out = append(out, st)
	}
	return out, nil
}

// CompareVersions orders two version strings. The distribution service
// uses sortable date-stamped versions, so plain lexicographic order is
// correct; the unknown sentinel sorts before everything.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	if a == instances.UnknownVersion {
		return -1
	}
	if b == instances.UnknownVersion {
		return 1
	}
	if a < b {
		return -1
	}
	return 1
}
