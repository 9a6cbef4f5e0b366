package watchfile

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sofmeright/watchscan/internal/debver"
	"github.com/sofmeright/watchscan/internal/download"
	"github.com/sofmeright/watchscan/internal/fetch"
	"github.com/sofmeright/watchscan/internal/pgp"
	"github.com/sofmeright/watchscan/internal/search"
	ftpsearch "github.com/sofmeright/watchscan/internal/search/ftp"
	gitsearch "github.com/sofmeright/watchscan/internal/search/git"
	httpsearch "github.com/sofmeright/watchscan/internal/search/http"
	svnsearch "github.com/sofmeright/watchscan/internal/search/svn"
	"github.com/sofmeright/watchscan/internal/watchline"
)

// Orchestrator reads a parsed watch file, expands its lines into
// watchline.Line pipelines, and runs them to completion, composing
// group/checksum blocks per spec.md §4.8.
type Orchestrator struct {
	File            *File
	Package         string
	LocalVersion    string // the packaged upstream version, from debian/changelog
	DestDir         string
	Client          *fetch.Client
	Downloader      *download.Downloader
	PGP             *pgp.Verifier // nil if no keyring configured
	DownloadLevel   int           // config Download: 0..3
	DownloadVersion string        // --download-version override, if any
}

// LineOutcome is one line's final status, for reporting/DEHS emission.
type LineOutcome struct {
	Index       int
	ComponentID string
	Result      watchline.Result
}

// RunResult is the orchestrator's overall outcome.
type RunResult struct {
	Outcomes         []LineOutcome
	CompositeVersion string
	Status           string // "newer package available" / "up to date" / "only older package available"
	ExitCode         int
}

// Run executes every line of the watch file, per spec.md §4.8.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	plain, groups, err := o.buildLines()
	if err != nil {
		return nil, err
	}

	result := &RunResult{}
	exitCode := 0

	// Plain lines run the whole pipeline immediately, each owning a fresh
	// Shared instance (spec.md §9).
	for i, l := range plain {
		o.runFull(ctx, l)
		result.Outcomes = append(result.Outcomes, LineOutcome{Index: i, Result: l.Result})
		if l.Result.Status != 0 {
			exitCode = 1
		}
	}

	// Group/checksum blocks: first pass (parse/search/url/basename[/compare
	// for group lines]), then shared.Download propagation, checksum
	// synthesis, second pass (download/repack/clean).
	for _, g := range groups {
		o.runGroup(ctx, g)
		for i, l := range g.lines {
			result.Outcomes = append(result.Outcomes, LineOutcome{Index: i, ComponentID: l.ComponentName, Result: l.Result})
			if l.Result.Status != 0 {
				exitCode = 1
			}
		}
		if g.compositeStatus != "" {
			result.CompositeVersion = g.compositeVersion
			result.Status = g.compositeStatus
		}
	}

	result.ExitCode = exitCode
	return result, nil
}

type group struct {
	lines            []*watchline.Line
	shared           *watchline.Shared
	hasChecksum      bool
	compositeVersion string
	compositeStatus  string
}

// buildLines instantiates a watchline.Line per raw line and partitions
// them into standalone plain lines and group/checksum blocks. A line
// belongs to a group/checksum block when its action field is literally
// "group" or "checksum", or when opts="component=..." is set (implying
// group membership); consecutive such lines form one block, mirroring
// how real watch files place component lines adjacently. This resolves
// an ambiguity the distilled spec leaves open about how block boundaries
// are detected from the flat line sequence.
func (o *Orchestrator) buildLines() ([]*watchline.Line, []*group, error) {
	var plain []*watchline.Line
	var groups []*group
	var current *group

	for _, raw := range o.File.Lines {
		opts, err := ParseOpts(raw.OptsSpec)
		if err != nil {
			return nil, nil, err
		}

		mode := detectMode(raw.Base)

		lineType := watchline.TypePlain
		switch raw.Action {
		case "checksum":
			lineType = watchline.TypeChecksum
		case "group":
			lineType = watchline.TypeGroup
		default:
			if opts.Component != "" {
				lineType = watchline.TypeComponent
			}
		}

		var shared *watchline.Shared
		if lineType == watchline.TypePlain {
			shared = &watchline.Shared{}
		} else {
			if current == nil {
				current = &group{shared: &watchline.Shared{}}
			}
			shared = current.shared
		}

		searcher := o.buildSearcher(mode, opts)
		l := watchline.New(mode, opts, searcher, shared)
		l.RawBase = raw.Base
		l.RawFilePattern = raw.FilePattern
		l.RawLastVersion = raw.LastVersion
		l.RawAction = raw.Action
		l.FormatVersion = o.File.FormatVersion
		l.Type = lineType
		l.ComponentName = opts.Component
		l.Downloader = o.Downloader
		l.PGP = o.PGP
		l.Package = o.Package
		if o.Client != nil {
			l.HeadProbe = o.Client.HeadExists
		}

		if lineType == watchline.TypePlain {
			plain = append(plain, l)
			if current != nil {
				groups = append(groups, current)
				current = nil
			}
			continue
		}

		current.lines = append(current.lines, l)
		if lineType == watchline.TypeChecksum {
			current.hasChecksum = true
		}
	}
	if current != nil {
		groups = append(groups, current)
	}

	return plain, groups, nil
}

func (o *Orchestrator) runFull(ctx context.Context, l *watchline.Line) {
	l.Shared.Download = o.DownloadLevel
	l.Shared.DownloadVersion = o.DownloadVersion
	if err := l.Parse(); err != nil {
		return
	}
	if err := l.Search(ctx); err != nil {
		return
	}
	if err := l.ResolveURL(); err != nil {
		return
	}
	if err := l.BaseName(); err != nil {
		return
	}
	if err := l.Compare(o.resolveLastVersion(l)); err != nil {
		return
	}
	if err := l.Download(ctx, o.DestDir); err != nil {
		return
	}
	if err := l.Repack(ctx, o.Package); err != nil {
		return
	}
	_ = l.Clean(ctx)
}

// resolveLastVersion returns the literal last-version for a line: either
// its own field, or the shared changelog-derived local version when the
// field reads "same"/"debian" or is empty (uscan's conventional
// shorthand for "use the packaging's current upstream version").
func (o *Orchestrator) resolveLastVersion(l *watchline.Line) string {
	if l.RawLastVersion == "" || l.RawLastVersion == "same" || l.RawLastVersion == "debian" {
		return o.LocalVersion
	}
	return l.RawLastVersion
}

// runGroup implements spec.md §4.8's two-pass group/checksum protocol.
func (o *Orchestrator) runGroup(ctx context.Context, g *group) {
	g.shared.Download = o.DownloadLevel
	g.shared.DownloadVersion = o.DownloadVersion

	localComponents, _ := splitPackagedVersion(o.LocalVersion)

	// First pass.
	for i, l := range g.lines {
		if err := l.Parse(); err != nil {
			continue
		}
		if err := l.Search(ctx); err != nil {
			continue
		}
		if err := l.ResolveURL(); err != nil {
			continue
		}
		if err := l.BaseName(); err != nil {
			continue
		}
		if l.Type == watchline.TypeGroup || l.Type == watchline.TypeComponent {
			localVer := o.LocalVersion
			if i < len(localComponents) {
				localVer = localComponents[i]
			}
			_ = l.Compare(localVer)
		}
	}

	// shared.download = max(download_i) across members (spec.md §3 invariant).
	maxDownload := g.shared.Download
	for _, l := range g.lines {
		if l.Shared.Download > maxDownload {
			maxDownload = l.Shared.Download
		}
	}
	g.shared.Download = maxDownload

	// Checksum synthesis: decompose each checksum line's newversion into
	// digit runs and sum component-wise across all checksum lines.
	if g.hasChecksum {
		sum, err := sumChecksumComponents(g.lines)
		if err != nil {
			for _, l := range g.lines {
				if l.Type == watchline.TypeChecksum {
					l.Result.Errors = append(l.Result.Errors, fmt.Sprintf("parse-error: %v", err))
					l.Result.Status = 1
				}
			}
		} else {
			for _, l := range g.lines {
				if l.Type == watchline.TypeChecksum {
					l.Result.Search.Selected.Version = sum
				}
			}
		}
	}

	// Second pass: download/repack/clean.
	for _, l := range g.lines {
		if err := l.Download(ctx, o.DestDir); err != nil {
			continue
		}
		if err := l.Repack(ctx, o.Package); err != nil {
			continue
		}
		_ = l.Clean(ctx)
	}

	// Composite version: "+~"-joined newversions of all group members,
	// with "+~cs<SUM>" appended when a checksum block is present.
	var parts []string
	var checksumPart string
	for _, l := range g.lines {
		if l.Type == watchline.TypeChecksum {
			checksumPart = l.Result.Search.Selected.Version
			continue
		}
		parts = append(parts, l.Result.Search.Selected.Version)
	}
	composite := strings.Join(parts, "+~")
	if checksumPart != "" {
		composite += "+~cs" + checksumPart
	}
	g.compositeVersion = composite

	localVer, errA := debver.WithImpliedRevision(o.LocalVersion)
	newVer, errB := debver.WithImpliedRevision(composite)
	if errA == nil && errB == nil {
		switch {
		case debver.Compare(newVer, localVer) > 0:
			g.compositeStatus = "newer package available"
		case debver.Compare(newVer, localVer) == 0:
			g.compositeStatus = "up to date"
		default:
			g.compositeStatus = "only older package available"
		}
	}

	renameGroupArtifacts(g, composite)
}

// splitPackagedVersion splits the current local upstream version on "+~"
// into component versions, per spec.md §4.8 "Packaged version split". A
// final component beginning with "cs" is the previous checksum literal
// and is reported separately rather than returned as a component version.
func splitPackagedVersion(localVersion string) (components []string, checksum string) {
	parts := strings.Split(localVersion, "+~")
	for _, p := range parts {
		if strings.HasPrefix(p, "cs") {
			checksum = strings.TrimPrefix(p, "cs")
			continue
		}
		components = append(components, p)
	}
	return components, checksum
}

// sumChecksumComponents decomposes each checksum line's newversion into
// dotted digit runs and sums them component-wise, per spec.md §4.8
// "Checksum synthesis". A non-digit field aborts with a fatal error.
func sumChecksumComponents(lines []*watchline.Line) (string, error) {
	var fieldSets [][]int
	width := -1
	for _, l := range lines {
		if l.Type != watchline.TypeChecksum {
			continue
		}
		raw := l.Result.Search.Selected.Version
		pieces := strings.Split(raw, ".")
		fields := make([]int, len(pieces))
		for i, p := range pieces {
			n, err := strconv.Atoi(p)
			if err != nil {
				return "", fmt.Errorf("checksum component %q is not a digit run: %w", raw, err)
			}
			fields[i] = n
		}
		if width == -1 {
			width = len(fields)
		} else if len(fields) != width {
			return "", fmt.Errorf("checksum components have mismatched field counts")
		}
		fieldSets = append(fieldSets, fields)
	}
	if width <= 0 {
		return "", fmt.Errorf("no checksum components to sum")
	}
	sum := make([]int, width)
	for _, fields := range fieldSets {
		for i, n := range fields {
			sum[i] += n
		}
	}
	strs := make([]string, width)
	for i, n := range sum {
		strs[i] = strconv.Itoa(n)
	}
	return strings.Join(strs, "."), nil
}

// renameGroupArtifacts implements spec.md §4.8 "Rename": if a downloaded
// artifact's name embedded the per-component version, it is renamed to
// embed the composite version, together with any sibling .asc/.sig files.
func renameGroupArtifacts(g *group, composite string) {
	for _, l := range g.lines {
		if l.Result.RepackedPath == "" || l.Result.MangledUpstream == "" || l.Result.MangledUpstream == composite {
			continue
		}
		renamed := strings.Replace(l.Result.RepackedPath, l.Result.MangledUpstream, composite, 1)
		if err := os.Rename(l.Result.RepackedPath, renamed); err == nil {
			l.Result.RepackedPath = renamed
		}
		for _, ext := range []string{".asc", ".sig"} {
			sib := l.Result.RepackedPath + ext
			if _, err := os.Stat(sib); err == nil {
				sibRenamed := strings.Replace(sib, l.Result.MangledUpstream, composite, 1)
				_ = os.Rename(sib, sibRenamed)
			}
		}
	}
}

func detectMode(base string) watchline.Mode {
	switch {
	case strings.HasPrefix(base, "git://"), strings.HasPrefix(base, "git+"):
		return watchline.ModeGit
	case strings.HasPrefix(base, "svn://"), strings.HasPrefix(base, "svn+"):
		return watchline.ModeSVN
	case strings.HasPrefix(base, "ftp://"):
		return watchline.ModeFTP
	default:
		return watchline.ModeHTTP
	}
}

// buildSearcher constructs the concrete protocol searcher for a line's
// mode, translating the line's parsed Options into each searcher
// package's own Options shape.
func (o *Orchestrator) buildSearcher(mode watchline.Mode, opts watchline.Options) search.Searcher {
	switch mode {
	case watchline.ModeFTP:
		return ftpsearch.New(ftpsearch.Options{
			DirVersionMangle: opts.DirVersionMangle,
			DownloadVer:      o.DownloadVersion,
			Versionless:      opts.Versionless,
		})
	case watchline.ModeGit:
		return gitsearch.New(gitsearch.Options{
			Versionless: opts.Versionless,
			Pretty:      opts.Pretty,
			DateFormat:  opts.DateFormat,
		})
	case watchline.ModeSVN:
		return svnsearch.New(svnsearch.Options{Versionless: opts.Versionless})
	default:
		return httpsearch.New(o.Client, httpsearch.Options{
			SearchMode:  opts.SearchMode,
			PageMangle:  opts.PageMangle,
			HrefDecode:  opts.HrefDecode,
			DownloadVer: o.DownloadVersion,
			Versionless: opts.Versionless,
		})
	}
}
