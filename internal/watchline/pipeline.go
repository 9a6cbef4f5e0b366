package watchline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sofmeright/watchscan/internal/debver"
	"github.com/sofmeright/watchscan/internal/download"
	"github.com/sofmeright/watchscan/internal/origtargz"
	"github.com/sofmeright/watchscan/internal/pgp"
)

// numericExtractRe is applied to versions found by format-1 lines, per
// spec.md §4.7 Search: "a pure-numeric extraction is applied ... failure
// aborts".
var numericExtractRe = regexp.MustCompile(`\D*(\d+(\.\d+)*)\D*`)

// versionFromNameRe recovers a version from a versionless candidate's
// filename when no filenamemangle is set, per spec.md §4.7 "Base name".
var versionFromNameRe = regexp.MustCompile(`([0-9].*?)(\.tar\.(gz|bz2|xz|zst)|\.zip)$`)

// Search invokes the line's protocol searcher.
func (l *Line) Search(ctx context.Context) error {
	if l.Result.Status != 0 {
		return nil
	}
	res, err := l.Searcher.Search(ctx, l.Result.Parse.Base, l.Result.Parse.FilePattern)
	if err != nil {
		l.Result.warn(fmt.Sprintf("network-error: search failed: %v", err))
		l.Result.Status = 1 // demoted to warning + skip, per spec.md §7
		return nil
	}
	if !res.Found {
		l.Result.warn("match-empty: no candidates satisfy pattern")
		l.Result.Status = 1
		return nil
	}

	if l.FormatVersion == 1 {
		m := numericExtractRe.FindStringSubmatch(res.Selected.Version)
		if m == nil {
			l.Result.fail(fmt.Sprintf("parse-error: could not extract numeric version from %q", res.Selected.Version))
			return nil
		}
		res.Selected.Version = m[1]
	}

	l.Result.Search = res
	return nil
}

// ResolveURL constructs the fully resolved download URL and applies
// downloadurlmangle, per spec.md §4.7 "URL resolve".
func (l *Line) ResolveURL() error {
	if l.Result.Status != 0 {
		return nil
	}
	raw, err := l.Searcher.UpstreamURL(l.Result.Search.Selected)
	if err != nil {
		l.Result.fail(fmt.Sprintf("network-error: resolve URL: %v", err))
		return nil
	}
	raw = strings.ReplaceAll(raw, "&amp;", "&")
	l.Result.ResolvedURL = l.Opts.DownloadURLMangle.Apply(raw)
	return nil
}

// BaseName derives the basename to use for the downloaded artifact, per
// spec.md §4.7 "Base name".
func (l *Line) BaseName() error {
	if l.Result.Status != 0 {
		return nil
	}

	source := l.Result.ResolvedURL
	if l.Opts.Versionless {
		source = l.Result.Search.Selected.Href
	}

	if len(l.Opts.FilenameMangle.Rules) > 0 {
		mangled := l.Opts.FilenameMangle.Apply(source)
		l.Result.NewFileBase = filepath.Base(mangled)
		return nil
	}

	if l.Opts.Versionless {
		m := versionFromNameRe.FindStringSubmatch(filepath.Base(source))
		if m == nil {
			l.Result.fail(fmt.Sprintf("parse-error: could not derive version from filename %q", source))
			return nil
		}
		l.Result.NewFileBase = filepath.Base(source)
		return nil
	}

	base := filepath.Base(l.Result.ResolvedURL)
	if idx := strings.IndexAny(base, "?#"); idx >= 0 {
		base = base[:idx]
	}
	l.Result.NewFileBase = base
	return nil
}

// Compare runs dversionmangle against the literal last version and
// compares via Version Algebra, per spec.md §4.7 "Compare".
func (l *Line) Compare(lastVersionLiteral string) error {
	if l.Result.Status != 0 {
		return nil
	}

	mangledLast := l.Opts.DVersionMangle.Apply(lastVersionLiteral)
	l.Result.Parse.MangledLastVersion = mangledLast

	newVersion := l.Result.Search.Selected.Version

	lastVer, err := debver.WithImpliedRevision(mangledLast)
	if err != nil {
		l.Result.fail(fmt.Sprintf("parse-error: unparseable local version %q: %v", mangledLast, err))
		return nil
	}
	newVer, err := debver.WithImpliedRevision(newVersion)
	if err != nil {
		l.Result.fail(fmt.Sprintf("parse-error: unparseable upstream version %q: %v", newVersion, err))
		return nil
	}

	cmp := debver.Compare(newVer, lastVer)
	switch {
	case cmp > 0:
		l.Result.VersionMode = VersionNewer
		l.Result.StatusText = "newer package available"
		l.Shared.Download = max(l.Shared.Download, 1)
	case cmp == 0:
		l.Result.VersionMode = VersionSame
		l.Result.StatusText = "up to date"
	default:
		l.Result.VersionMode = VersionPrev
		l.Result.StatusText = "only older package available"
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Download honors shared.Download and the line's pgpmode, per spec.md
// §4.7 "Download".
func (l *Line) Download(ctx context.Context, destDir string) error {
	if l.Result.Status != 0 {
		return nil
	}
	if l.Shared.Download == 0 {
		l.Result.Skipped = true
		return nil
	}
	if l.Result.VersionMode != VersionNewer && l.Shared.Download < 2 {
		l.Result.Skipped = true
		return nil
	}

	if l.Opts.PGPMode == PGPPrevious {
		// This line is a signature for the immediately previous tarball
		// line; it defers its own download (spec.md §4.7, §9 Open Question).
		l.Shared.PreviousSigFileBase = l.Result.NewFileBase
		l.Result.Skipped = true
		return nil
	}

	dest := filepath.Join(destDir, l.Result.NewFileBase)
	if err := l.Downloader.Claim(dest); err != nil {
		l.Result.fail(fmt.Sprintf("filesystem-error: %v", err))
		return nil
	}

	req := download.Request{
		Mode:         modeFor(l.Mode),
		URL:          l.Result.ResolvedURL,
		Dest:         dest,
		PackageDir:   l.PackageDir,
		Package:      l.Package,
		Version:      l.Result.Search.Selected.Version,
		GitRef:       l.Result.Search.Selected.Href,
		GitShallow:   l.Opts.GitMode == "shallow",
		GitExportAll: l.Opts.GitExport == "all",
	}
	if err := l.Downloader.Download(ctx, req); err != nil {
		l.Result.fail(fmt.Sprintf("external-failure: %v", err))
		return nil
	}
	l.Result.DownloadedPath = dest

	if err := l.verifySignature(ctx, dest); err != nil {
		l.Result.fail(fmt.Sprintf("verify-error: %v", err))
		return fmt.Errorf("watchline: verify-error: %w", err)
	}

	l.Shared.PreviousNewVersion = l.Result.Search.Selected.Version
	l.Shared.PreviousNewFileBase = l.Result.NewFileBase
	l.Shared.PreviousDownloadAvailable = true
	return nil
}

// verifySignature dispatches on pgpmode: self-contained, detached (auto /
// mangle / sibling probe), git-tag, or none, per spec.md §4.5/§4.7.
func (l *Line) verifySignature(ctx context.Context, dest string) error {
	if l.PGP == nil || l.Opts.PGPMode == PGPNone || l.Opts.PGPMode == "" {
		return nil
	}

	switch l.Opts.PGPMode {
	case PGPSelf:
		payload := strings.TrimSuffix(dest, filepath.Ext(dest))
		return l.PGP.VerifySelf(ctx, dest, payload)
	case PGPGitTag:
		return l.PGP.VerifyGitTag(ctx, l.PackageDir, l.Result.Search.Selected.Href)
	case PGPMangle:
		sigURL := l.Opts.PGPSigURLMangle.Apply(l.Result.ResolvedURL)
		return l.downloadAndVerifyDetached(ctx, sigURL, dest)
	case PGPAuto, PGPDefault:
		sigURL, found, err := pgp.ProbeSiblingSignature(ctx, l.Result.ResolvedURL, l.headExists)
		if err != nil || !found {
			return nil
		}
		if l.Opts.PGPMode == PGPDefault {
			l.Result.warn("signature sibling found but pgpmode=default does not verify")
			return nil
		}
		return l.downloadAndVerifyDetached(ctx, sigURL, dest)
	}
	return nil
}

// headExists is a placeholder hook; the orchestrator wires the real
// fetch.Client.HeadExists in before Download stages run.
func (l *Line) headExists(ctx context.Context, url string) (bool, error) {
	if l.HeadProbe == nil {
		return false, fmt.Errorf("watchline: no HEAD probe configured")
	}
	return l.HeadProbe(ctx, url)
}

func (l *Line) downloadAndVerifyDetached(ctx context.Context, sigURL, dest string) error {
	sigDest := dest + ".sig"
	req := download.Request{Mode: modeFor(l.Mode), URL: sigURL, Dest: sigDest}
	if err := l.Downloader.Download(ctx, req); err != nil {
		return fmt.Errorf("fetch signature %s: %w", sigURL, err)
	}
	l.Result.SigDownloaded = sigDest
	return l.PGP.VerifyDetached(ctx, sigDest, dest)
}

func modeFor(m Mode) download.Mode {
	switch m {
	case ModeHTTP:
		return download.ModeHTTP
	case ModeFTP:
		return download.ModeFTP
	case ModeGit:
		return download.ModeGit
	case ModeSVN:
		return download.ModeSVN
	}
	return download.ModeHTTP
}

// Repack delegates to the external mk-origtargz collaborator, per
// spec.md §4.7 "Repack".
func (l *Line) Repack(ctx context.Context, pkg string) error {
	if l.Result.Status != 0 || l.Result.Skipped || l.Result.DownloadedPath == "" {
		return nil
	}

	opts := origtargz.Options{
		Package:      pkg,
		Version:      l.Result.Search.Selected.Version,
		Compression:  l.Opts.Compression,
		Signature:    l.Result.SigDownloaded,
		Repack:       l.Opts.Repack,
		RepackSuffix: l.Opts.RepackSuffix,
		Component:    l.Opts.Component,
		UnzipOpt:     l.Opts.UnzipOpt,
	}
	res, err := origtargz.Run(ctx, l.Result.DownloadedPath, opts)
	if err != nil {
		l.Result.fail(fmt.Sprintf("external-failure: mk-origtargz: %v", err))
		return nil
	}
	l.Result.RepackedPath = res.FinalPath
	l.Result.MangledUpstream = res.MangledUpstream
	return nil
}

// Clean releases resources the line's searcher and downloader acquired.
func (l *Line) Clean(ctx context.Context) error {
	if err := l.Searcher.Clean(ctx); err != nil {
		return err
	}
	if l.Downloader != nil && l.PackageDir != "" {
		return l.Downloader.Clean(ctx, l.PackageDir)
	}
	return nil
}
