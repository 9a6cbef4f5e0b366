// Package changelog reads debian/changelog's first entry, yielding the
// source package name and the current packaged version, per spec.md §1
// "Out of scope (external collaborators)".
package changelog

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sofmeright/watchscan/internal/debver"
)

// Entry is what the watch-file engine needs from a changelog: the source
// package name, the full packaged version, and its upstream component.
type Entry struct {
	SourceName      string
	FullVersion     string
	UpstreamVersion string
}

// headerRe matches "pkg (1:2.3-4) unstable; urgency=medium".
var headerRe = regexp.MustCompile(`^(\S+)\s+\(([^)]+)\)\s+(\S+)\s*;`)

// Read parses the first entry of the debian/changelog at path.
func Read(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, fmt.Errorf("changelog: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := headerRe.FindStringSubmatch(line)
		if m == nil {
			return Entry{}, fmt.Errorf("changelog: parse-error: unrecognized first entry header %q", line)
		}
		ver, err := debver.Parse(m[2])
		if err != nil {
			return Entry{}, fmt.Errorf("changelog: parse-error: %w", err)
		}
		return Entry{
			SourceName:      m[1],
			FullVersion:     m[2],
			UpstreamVersion: ver.Upstream,
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, fmt.Errorf("changelog: read %s: %w", path, err)
	}
	return Entry{}, fmt.Errorf("changelog: parse-error: %s is empty", path)
}
