package instances

import (
	"regexp"
	"strings"
)

var (
	invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	dashRuns         = regexp.MustCompile(`-+`)
)

// SanitizeName converts a user-supplied instance name into a
// filesystem-safe directory name. Spaces are kept for display; only
// characters invalid on common filesystems are replaced.
func SanitizeName(name string) string {
	safe := invalidNameChars.ReplaceAllString(name, "-")
	safe = dashRuns.ReplaceAllString(safe, "-")
	safe = strings.TrimSpace(strings.Trim(safe, "-"))
	if safe == "" {
		safe = strings.TrimSpace(name)
	}
	if safe == "" {
		safe = "instance"
	}
	return safe
}
