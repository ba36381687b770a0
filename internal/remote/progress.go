package remote

import (
	"regexp"
	"strconv"
	"strings"
)

// The downloader prints progress as e.g. "Downloading... 42.5% (12.3 MB/s)".
// The parser is deliberately narrow: anything that doesn't match is
// treated as a plain log line, so a format change degrades to log
// display instead of breaking the relay.
var progressRe = regexp.MustCompile(`(\d+\.?\d*)%\s*\(([^)]+)\)`)

// ParseProgress extracts a (percent, detail) pair from a downloader
// output line. ok is false when the line is not a progress report.
func ParseProgress(line string) (percent float64, detail string, ok bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return percent, strings.TrimSpace(m[2]), true
}
