// Package ftp implements the FTP protocol searcher. It issues a directory
// listing over a plain TCP control connection (net/textproto), parses
// either an HTMLized listing (as some FTP-to-HTTP proxies render) or a
// classic UNIX-style LIST response, and supports a recursive descent mode
// for watch lines whose base contains parenthesized path segments.
package ftp

import (
	"bufio"
	"context"
	"fmt"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/sofmeright/watchscan/internal/debver"
	"github.com/sofmeright/watchscan/internal/mangle"
	"github.com/sofmeright/watchscan/internal/search"
)

// Options configures one FTP searcher instance.
type Options struct {
	Passive         bool
	DirVersionMangle mangle.Chain
	DownloadVer     string
	VersionIgnore   bool
	Versionless     bool
}

// Searcher implements search.Searcher for ftp:// bases.
type Searcher struct {
	opts Options
}

// New constructs an FTP searcher.
func New(opts Options) *Searcher { return &Searcher{opts: opts} }

// Search lists base's directory (recursing through any parenthesized path
// segments first) and selects the best candidate matching pattern.
func (s *Searcher) Search(ctx context.Context, base, pattern string) (search.Result, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return search.Result{}, fmt.Errorf("ftp: compile pattern %q: %w", pattern, err)
	}

	resolvedBase, err := s.descendRecursive(ctx, base)
	if err != nil {
		return search.Result{}, err
	}

	entries, err := listDirectory(ctx, resolvedBase)
	if err != nil {
		return search.Result{}, fmt.Errorf("ftp: list %s: %w", resolvedBase, err)
	}

	var candidates []search.Candidate
	for _, name := range entries {
		m := re.FindStringSubmatch(name)
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
		href := strings.TrimRight(resolvedBase, "/") + "/" + name
		candidates = append(candidates, search.Candidate{Version: ver, Href: href, Note: name})
	}
	if len(candidates) == 0 {
		return search.Result{Found: false}, nil
	}

	selected, ok := selectBest(candidates, s.opts.DownloadVer, s.opts.VersionIgnore)
	if !ok {
		return search.Result{Found: false}, nil
	}
	return search.Result{Selected: selected, Found: true}, nil
}

// descendRecursive walks any "(pattern)" path segments in base, fetching a
// directory listing at each level, ranking entries via DirVersionMangle,
// and descending into the newest. A base with no parenthesized segments is
// returned unchanged.
func (s *Searcher) descendRecursive(ctx context.Context, base string) (string, error) {
	if !strings.Contains(base, "(") {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ftp: parse base %q: %w", base, err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	resolved := u.Scheme + "://" + u.Host
	for _, seg := range segments {
		if !strings.Contains(seg, "(") {
			resolved += "/" + seg
			continue
		}
		re, err := regexp.Compile(seg)
		if err != nil {
			return "", fmt.Errorf("ftp: compile path segment %q: %w", seg, err)
		}
		entries, err := listDirectory(ctx, resolved)
		if err != nil {
			return "", fmt.Errorf("ftp: list %s: %w", resolved, err)
		}
		var ranked []debver.Pair[string]
		for _, name := range entries {
			if !re.MatchString(name) {
				continue
			}
			key := name
			if len(s.opts.DirVersionMangle.Rules) > 0 {
				key = s.opts.DirVersionMangle.Apply(name)
			}
			ranked = append(ranked, debver.Pair[string]{Version: key, Data: name})
		}
		if len(ranked) == 0 {
			return "", fmt.Errorf("ftp: no directory under %s matches %q", resolved, seg)
		}
		sorted := debver.Sort(ranked)
		resolved += "/" + sorted[0].Data
	}
	return resolved, nil
}

// listDirectory returns the entry names from an FTP directory listing,
// trying the HTMLized form first (as rendered by some FTP proxies) and
// falling back to a classic UNIX-style LIST parse.
func listDirectory(ctx context.Context, dirURL string) ([]string, error) {
	u, err := url.Parse(dirURL)
	if err != nil {
		return nil, err
	}
	lines, err := rawListing(ctx, u)
	if err != nil {
		return nil, err
	}

	joined := strings.Join(lines, "\n")
	if strings.Contains(joined, "<a href") || strings.Contains(joined, "<A HREF") {
		return parseHTMLizedListing(joined), nil
	}
	return parseClassicListing(lines), nil
}

// rawListing connects to the FTP control port, authenticates anonymously,
// and issues a NLST/LIST for u.Path, returning the raw response lines.
func rawListing(ctx context.Context, u *url.URL) ([]string, error) {
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}
	conn, err := textproto.Dial("tcp", host)
	if err != nil {
		return nil, fmt.Errorf("ftp: dial %s: %w", host, err)
	}
	defer conn.Close()

	if _, _, err := conn.ReadResponse(220); err != nil {
		return nil, fmt.Errorf("ftp: greeting: %w", err)
	}
	if err := conn.PrintfLine("USER anonymous"); err != nil {
		return nil, err
	}
	if _, _, err := conn.ReadResponse(331); err != nil {
		// Some servers accept anonymous directly (230); tolerate either.
	}
	if err := conn.PrintfLine("PASS watchscan@"); err != nil {
		return nil, err
	}
	if _, _, err := conn.ReadResponse(230); err != nil {
		return nil, fmt.Errorf("ftp: login: %w", err)
	}
	if err := conn.PrintfLine("TYPE A"); err != nil {
		return nil, err
	}
	conn.ReadResponse(200)

	if err := conn.PrintfLine("LIST %s", u.Path); err != nil {
		return nil, err
	}
	_, _, err = conn.ReadResponse(150)
	if err != nil {
		_, _, err = conn.ReadResponse(125)
		if err != nil {
			return nil, fmt.Errorf("ftp: LIST: %w", err)
		}
	}

	var lines []string
	scanner := bufio.NewScanner(conn.Reader.R)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	conn.ReadResponse(226)
	return lines, nil
}

// parseClassicListing implements the "classic" branch: skip entries
// beginning with 'd' (directories), strip symlink targets (" -> target"),
// and take the final whitespace-delimited field as the name.
func parseClassicListing(lines []string) []string {
	var out []string
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "d") {
			continue
		}
		if idx := strings.Index(line, " -> "); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, fields[len(fields)-1])
	}
	return out
}

// parseHTMLizedListing extracts <a href> targets from an HTML-rendered
// proxy listing.
func parseHTMLizedListing(body string) []string {
	tok := xhtml.NewTokenizer(strings.NewReader(body))
	var out []string
	for {
		tt := tok.Next()
		if tt == xhtml.ErrorToken {
			return out
		}
		if tt != xhtml.StartTagToken {
			continue
		}
		tag, hasAttr := tok.TagName()
		if string(tag) != "a" || !hasAttr {
			continue
		}
		for {
			key, val, more := tok.TagAttr()
			if string(key) == "href" {
				out = append(out, strings.TrimRight(string(val), "/"))
			}
			if !more {
				break
			}
		}
	}
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

// selectBest mirrors the HTTP searcher's selection rule (version
// descending via debver, download-version partial-match filter); FTP
// listings carry no archive-type tie-break signal beyond the version
// itself, so ties keep listing order.
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
		pairs[i] = debver.Pair[search.Candidate]{Version: c.Version, Data: c}
	}
	sorted := debver.Sort(pairs)
	return sorted[0].Data, true
}

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

// UpstreamURL returns the candidate's resolved href.
func (s *Searcher) UpstreamURL(candidate search.Candidate) (string, error) {
	if candidate.Href == "" {
		return "", fmt.Errorf("ftp: candidate has no resolved href")
	}
	return candidate.Href, nil
}

// NewFileBase returns the basename of the resolved URL.
func (s *Searcher) NewFileBase(candidate search.Candidate, resolvedURL string) (string, error) {
	idx := strings.LastIndexByte(resolvedURL, '/')
	if idx < 0 || idx == len(resolvedURL)-1 {
		return "", fmt.Errorf("ftp: cannot derive file base from %q", resolvedURL)
	}
	return resolvedURL[idx+1:], nil
}

// Clean is a no-op; FTP searches hold no persistent resources.
func (s *Searcher) Clean(ctx context.Context) error { return nil }
