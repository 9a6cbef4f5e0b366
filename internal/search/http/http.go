// Package http implements the HTTP protocol searcher: GET a listing page,
// enumerate href targets (or, in plain mode, regex-scan the whole body),
// and select the best-matching candidate by version and archive-type
// priority.
package http

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/sofmeright/watchscan/internal/debver"
	"github.com/sofmeright/watchscan/internal/fetch"
	"github.com/sofmeright/watchscan/internal/mangle"
	"github.com/sofmeright/watchscan/internal/search"
)

// archiveRank orders tie-broken candidates by archive suffix preference:
// tar.gz < tar.bz2 < tar.lzma < tar.xz (later wins).
var archiveRank = []string{".tar.gz", ".tgz", ".tar.bz2", ".tar.lzma", ".tar.xz", ".tar.zst", ".zip"}

// Options configures one HTTP searcher instance, derived from the owning
// watch line's options.
type Options struct {
	SearchMode     string // "html" (default) or "plain"
	PageMangle     mangle.Chain
	HrefDecode     string // currently supports "percent-decode" semantics only
	DownloadVer    string // --download-version / download_version filter, empty if unset
	VersionIgnore  bool   // versionmode=ignore: skip the download-version filter
	Versionless    bool
}

// Searcher implements search.Searcher for http:// and https:// bases.
type Searcher struct {
	client *fetch.Client
	opts   Options

	redirectSiteBasis []search.SiteDir
}

// New constructs an HTTP searcher bound to client with the given options.
func New(client *fetch.Client, opts Options) *Searcher {
	return &Searcher{client: client, opts: opts}
}

// Search fetches base, extracts candidates, and returns the single
// best-ranked one per the priority rules in the watch-file spec.
func (s *Searcher) Search(ctx context.Context, base, pattern string) (search.Result, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return search.Result{}, fmt.Errorf("http: compile pattern %q: %w", pattern, err)
	}

	s.client.ClearRedirections()
	body, finalURL, err := s.client.GetBody(ctx, base)
	if err != nil {
		return search.Result{}, fmt.Errorf("http: GET %s: %w", base, err)
	}

	s.redirectSiteBasis = buildSiteBasis(base, finalURL, s.client.Redirections())

	text := string(body)
	if len(s.opts.PageMangle.Rules) > 0 {
		text = s.opts.PageMangle.Apply(text)
	}

	var candidates []search.Candidate
	if s.opts.SearchMode == "plain" {
		candidates = scanPlain(text, re)
	} else {
		hrefs, baseHref := scanHTML(text)
		effectiveBase := finalURL
		if baseHref != "" {
			if resolved, err := resolveAgainst(finalURL, baseHref); err == nil {
				effectiveBase = resolved
			}
		}
		candidates = s.scanHrefs(hrefs, effectiveBase, re)
	}

	if len(candidates) == 0 {
		return search.Result{Found: false}, nil
	}

	selected, ok := selectBest(candidates, s.opts.DownloadVer, s.opts.VersionIgnore)
	if !ok {
		return search.Result{Found: false}, nil
	}
	return search.Result{Selected: selected, Found: true, SiteBasis: s.redirectSiteBasis}, nil
}

// scanHTML parses an HTML document and returns every <a href> target plus
// the <base href> value, if present.
func scanHTML(body string) (hrefs []string, baseHref string) {
	tok := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			return hrefs, baseHref
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tag, hasAttr := tok.TagName()
		if !hasAttr {
			continue
		}
		name := string(tag)
		if name != "a" && name != "base" {
			continue
		}
		for {
			key, val, more := tok.TagAttr()
			if string(key) == "href" {
				if name == "base" {
					baseHref = string(val)
				} else {
					hrefs = append(hrefs, string(val))
				}
			}
			if !more {
				break
			}
		}
	}
}

// scanPlain regex-scans the whole body for pattern matches, used for
// searchmode=plain lines.
func scanPlain(body string, re *regexp.Regexp) []search.Candidate {
	matches := re.FindAllStringSubmatch(body, -1)
	var out []search.Candidate
	for _, m := range matches {
		ver := joinCaptures(m[1:])
		out = append(out, search.Candidate{Version: ver, Href: m[0], Note: "plain"})
	}
	return out
}

// scanHrefs filters hrefs against pattern, resolving each against
// effectiveBase and every redirect-chain-derived site/basedir pair.
func (s *Searcher) scanHrefs(hrefs []string, effectiveBase string, re *regexp.Regexp) []search.Candidate {
	var out []search.Candidate
	seen := map[string]bool{}
	for _, raw := range hrefs {
		href := strings.TrimSpace(strings.NewReplacer("\n", "", "\r", "").Replace(raw))
		if href == "" || seen[href] {
			continue
		}
		seen[href] = true

		m := re.FindStringSubmatch(href)
		if m == nil {
			// Try matching just the basename, as many patterns only
			// describe the filename, not the full href.
			m = re.FindStringSubmatch(lastPathSegment(href))
		}
		if m == nil {
			continue
		}
		ver := ""
		if len(m) > 1 {
			ver = joinCaptures(m[1:])
		}
		if ver == "" && !s.opts.Versionless {
			continue
		}
		resolved, err := resolveHref(href, effectiveBase, s.redirectSiteBasis, re)
		if err != nil {
			continue
		}
		out = append(out, search.Candidate{Version: ver, Href: resolved, Note: href})
	}
	return out
}

// joinCaptures concatenates non-empty capture groups with ".".
func joinCaptures(groups []string) string {
	var parts []string
	for _, g := range groups {
		if g != "" {
			parts = append(parts, g)
		}
	}
	return strings.Join(parts, ".")
}

func lastPathSegment(href string) string {
	href = strings.TrimRight(href, "/")
	if idx := strings.LastIndexByte(href, '/'); idx >= 0 {
		return href[idx+1:]
	}
	return href
}

// resolveAgainst resolves href against base per normal URL reference rules.
func resolveAgainst(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// resolveHref normalizes one of the four href shapes (absolute,
// protocol-relative, path-absolute, relative). For path-absolute/relative
// hrefs reached via redirection, it tries every known (site, basedir) pair
// and keeps the first whose resolved URL still satisfies pattern, falling
// back to effectiveBase.
func resolveHref(href, effectiveBase string, siteBasis []search.SiteDir, pattern *regexp.Regexp) (string, error) {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href, nil
	case strings.HasPrefix(href, "//"):
		scheme := "https:"
		if u, err := url.Parse(effectiveBase); err == nil && u.Scheme != "" {
			scheme = u.Scheme + ":"
		}
		return scheme + href, nil
	case strings.HasPrefix(href, "/"):
		for _, sb := range siteBasis {
			candidate := strings.TrimRight(sb.Site, "/") + href
			if pattern.MatchString(candidate) {
				return candidate, nil
			}
		}
		return resolveAgainst(effectiveBase, href)
	default:
		for _, sb := range siteBasis {
			candidate := strings.TrimRight(sb.Site, "/") + "/" + strings.TrimLeft(sb.BaseDir, "/") + "/" + href
			if pattern.MatchString(candidate) {
				return candidate, nil
			}
		}
		return resolveAgainst(effectiveBase, href)
	}
}

// buildSiteBasis derives the set of (site, basedir) pairs worth trying for
// relative href reconstruction: the originally declared base first, then
// every intermediate redirect target, most specific (final) first.
func buildSiteBasis(originalBase, finalURL string, chain []string) []search.SiteDir {
	urls := append([]string{originalBase}, chain...)
	if finalURL != "" {
		urls = append(urls, finalURL)
	}
	var out []search.SiteDir
	seen := map[string]bool{}
	for i := len(urls) - 1; i >= 0; i-- {
		u, err := url.Parse(urls[i])
		if err != nil {
			continue
		}
		site := u.Scheme + "://" + u.Host
		dir := u.Path
		if idx := strings.LastIndexByte(dir, '/'); idx >= 0 {
			dir = dir[:idx]
		}
		key := site + dir
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, search.SiteDir{Site: site, BaseDir: dir})
	}
	return out
}

// selectBest ranks candidates by version (descending, via debver), then by
// archive-type preference on ties, applying the download-version partial
// match filter when set.
func selectBest(candidates []search.Candidate, downloadVersion string, ignoreVersion bool) (search.Candidate, bool) {
	filtered := candidates
	if downloadVersion != "" && !ignoreVersion {
		filtered = filterByDownloadVersion(candidates, downloadVersion)
	}
	if len(filtered) == 0 {
		return search.Candidate{}, false
	}

	pairs := make([]debver.Pair[search.Candidate], len(filtered))
	for i, c := range filtered {
		pairs[i] = debver.Pair[search.Candidate]{Version: normalizeForSort(c.Version), Data: c}
	}
	sorted := debver.Sort(pairs)

	topVersion := sorted[0].Data.Version
	var tied []search.Candidate
	for _, p := range sorted {
		if p.Data.Version == topVersion {
			tied = append(tied, p.Data)
		} else {
			break
		}
	}
	sort.SliceStable(tied, func(i, j int) bool {
		return archiveRankOf(tied[i].Href) > archiveRankOf(tied[j].Href)
	})
	return tied[0], true
}

// normalizeForSort ensures every candidate version parses under
// debver.Parse (which requires a leading digit); non-conforming versions
// are left as-is and will fall to the sentinel minimum.
func normalizeForSort(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func archiveRankOf(href string) int {
	for i, suffix := range archiveRank {
		if strings.HasSuffix(href, suffix) {
			return i
		}
	}
	return -1
}

// filterByDownloadVersion keeps candidates whose version matches
// downloadVersion exactly, or matches its first 1/2/3 dotted components
// (the "partial" match rule).
func filterByDownloadVersion(candidates []search.Candidate, downloadVersion string) []search.Candidate {
	wantParts := strings.Split(downloadVersion, ".")
	var out []search.Candidate
	for _, c := range candidates {
		gotParts := strings.Split(c.Version, ".")
		if len(gotParts) > len(wantParts) {
			continue
		}
		match := true
		for i := range gotParts {
			if gotParts[i] != wantParts[i] {
				match = false
				break
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out
}

// UpstreamURL returns the candidate's already-resolved href unchanged; the
// caller applies downloadurlmangle on top.
func (s *Searcher) UpstreamURL(candidate search.Candidate) (string, error) {
	if candidate.Href == "" {
		return "", fmt.Errorf("http: candidate has no resolved href")
	}
	return candidate.Href, nil
}

// NewFileBase returns the basename of the resolved URL, stripped of any
// query string or fragment.
func (s *Searcher) NewFileBase(candidate search.Candidate, resolvedURL string) (string, error) {
	u, err := url.Parse(resolvedURL)
	if err != nil {
		return "", fmt.Errorf("http: parse resolved URL %q: %w", resolvedURL, err)
	}
	base := lastPathSegment(u.Path)
	if base == "" {
		return "", fmt.Errorf("http: cannot derive file base from %q", resolvedURL)
	}
	return base, nil
}

// Clean is a no-op for the HTTP searcher; there is nothing to release.
func (s *Searcher) Clean(ctx context.Context) error { return nil }
