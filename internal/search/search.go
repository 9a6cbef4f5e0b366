// Package search defines the capability interface shared by the four
// protocol searchers (http, ftp, git, svn) and the small set of types they
// exchange with the watchline pipeline.
package search

import "context"

// Candidate is one (version, location) pair a searcher found, before URL
// resolution and base-name derivation have run.
type Candidate struct {
	Version string // formed by joining non-empty capture groups with "."
	Href    string // the raw href/path/ref this candidate came from
	Note    string // match diagnostic, e.g. which pattern matched
}

// Result is what Search returns: the selected candidate (if any) plus
// whatever the searcher needs downstream (sig sibling hint, redirect
// chain-derived site/basedir pairs for URL reconstruction).
type Result struct {
	Selected   Candidate
	Found      bool
	SigHint    string   // sibling signature URL/path, when the searcher can tell directly (git tag mode)
	SiteBasis  []SiteDir // (site, basedir) pairs eligible for href reconstruction, most specific first
}

// SiteDir is a (site, basedir) pair used when reconstructing a
// path-absolute or relative href after following redirects.
type SiteDir struct {
	Site    string
	BaseDir string
}

// Searcher is the capability set every protocol strategy fulfills. It is
// selected once at parse time from the line's mode (http, ftp, git, svn)
// and reused for the lifetime of the line.
type Searcher interface {
	// Search locates candidate(s) at base matching pattern and returns the
	// selection already applied (priority: version descending, then
	// archive-type preference, then any download-version filter).
	Search(ctx context.Context, base, pattern string) (Result, error)

	// UpstreamURL returns the fully resolved URL (or ref) for the
	// selected candidate, ready for downloadurlmangle.
	UpstreamURL(candidate Candidate) (string, error)

	// NewFileBase returns the basename to use for the downloaded artifact,
	// before any filenamemangle is applied by the pipeline.
	NewFileBase(candidate Candidate, resolvedURL string) (string, error)

	// Clean releases any resources the searcher acquired (e.g. a Git
	// working tree); it is always safe to call, even with nothing to do.
	Clean(ctx context.Context) error
}
