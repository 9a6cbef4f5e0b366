// Package svn implements the Subversion protocol searcher: versionless
// lines resolve the last-changed revision via "svn info", tagged lines
// list a directory via "svn list" and match entries against the line's
// pattern, exactly as spec.md §4.4 describes.
package svn

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/sofmeright/watchscan/internal/debver"
	"github.com/sofmeright/watchscan/internal/search"
)

// Options configures one Subversion searcher instance.
type Options struct {
	Versionless bool
}

// Searcher implements search.Searcher for svn:// / svn+ssh:// bases.
type Searcher struct {
	opts Options

	matchedPath string // resolved entry/ref for UpstreamURL/NewFileBase
	base        string
}

// New constructs a Subversion searcher.
func New(opts Options) *Searcher { return &Searcher{opts: opts} }

// Search runs "svn info" (versionless) or "svn list" plus pattern
// matching (tagged) against base.
func (s *Searcher) Search(ctx context.Context, base, pattern string) (search.Result, error) {
	s.base = base

	if s.opts.Versionless {
		rev, err := lastChangedRevision(ctx, base)
		if err != nil {
			return search.Result{}, fmt.Errorf("svn: info %s: %w", base, err)
		}
		s.matchedPath = base
		version := fmt.Sprintf("0.0~svn%d", rev)
		return search.Result{Selected: search.Candidate{Version: version, Href: base, Note: "svn info"}, Found: true}, nil
	}

	entries, err := listEntries(ctx, base)
	if err != nil {
		return search.Result{}, fmt.Errorf("svn: list %s: %w", base, err)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return search.Result{}, fmt.Errorf("svn: compile pattern %q: %w", pattern, err)
	}

	var candidates []search.Candidate
	for _, entry := range entries {
		m := re.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		ver := entry
		if len(m) > 1 {
			ver = joinCaptures(m[1:])
		}
		candidates = append(candidates, search.Candidate{Version: ver, Href: entry, Note: entry})
	}
	if len(candidates) == 0 {
		return search.Result{Found: false}, nil
	}

	pairs := make([]debver.Pair[search.Candidate], len(candidates))
	for i, c := range candidates {
		pairs[i] = debver.Pair[search.Candidate]{Version: c.Version, Data: c}
	}
	sorted := debver.Sort(pairs)
	s.matchedPath = strings.TrimRight(base, "/") + "/" + sorted[0].Data.Href
	return search.Result{Selected: sorted[0].Data, Found: true}, nil
}

func joinCaptures(groups []string) string {
	var parts []string
	for _, g := range groups {
		if g != "" {
			parts = append(parts, g)
		}
	}
	return strings.Join(parts, ".")
}

// lastChangedRevision shells out to "svn info --show-item
// last-changed-revision", the exact invocation spec.md §4.4 names.
func lastChangedRevision(ctx context.Context, base string) (int, error) {
	cmd := exec.CommandContext(ctx, "svn", "info", "--show-item", "last-changed-revision", base)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	rev, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("svn: parse revision %q: %w", string(out), err)
	}
	return rev, nil
}

// listEntries shells out to "svn list" and returns one entry per line,
// directory entries (trailing "/") left intact for pattern matching.
func listEntries(ctx context.Context, base string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "svn", "list", base)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var entries []string
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// UpstreamURL returns the fully resolved path for the selected entry.
func (s *Searcher) UpstreamURL(candidate search.Candidate) (string, error) {
	if s.opts.Versionless {
		return s.base, nil
	}
	return strings.TrimRight(s.base, "/") + "/" + candidate.Href, nil
}

// NewFileBase returns the basename to use for the downloaded artifact.
func (s *Searcher) NewFileBase(candidate search.Candidate, resolvedURL string) (string, error) {
	if s.opts.Versionless {
		parts := strings.Split(strings.TrimRight(s.base, "/"), "/")
		return parts[len(parts)-1], nil
	}
	return strings.TrimRight(candidate.Href, "/"), nil
}

// Clean is a no-op for Subversion; nothing is cloned locally for search.
func (s *Searcher) Clean(ctx context.Context) error { return nil }
