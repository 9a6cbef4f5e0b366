// Package download presents the single Downloader surface spec.md §4.6
// describes: one Download operation dispatched over http/ftp/git/svn,
// including the Git shallow/full clone state machine, git archive export,
// and optional tarball recompression.
package download

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sofmeright/watchscan/internal/fetch"
)

// Mode identifies the transport for one line.
type Mode string

const (
	ModeHTTP Mode = "http"
	ModeFTP  Mode = "ftp"
	ModeGit  Mode = "git"
	ModeSVN  Mode = "svn"
)

// RepoState is the Git clone-state machine of spec.md §4.6: transitions
// forward only, NONE -> SHALLOW -> FULL.
type RepoState int

const (
	RepoNone RepoState = iota
	RepoShallow
	RepoFull
)

// Request describes one download operation.
type Request struct {
	Mode         Mode
	URL          string // http/ftp URL, or git/svn ref expression
	Dest         string // destination file path (tarball for git/svn)
	PackageDir   string // scratch directory for git clones, keyed per package
	Package      string // package name, used for git archive --prefix
	Version      string // upstream version, used for git archive --prefix
	GitRef       string // resolved ref for git (e.g. "refs/tags/v1.0" or "HEAD")
	GitShallow   bool   // gitmode=shallow requested
	GitExportAll bool   // gitexport=all: neutralize export-subst/export-ignore
	Recompress   string // target archive suffix ("gz","xz","bz2","zip",""=none)
}

// gitRepo tracks one cloned repository's state and which ref it holds.
type gitRepo struct {
	dir   string
	state RepoState
	ref   string // ref the current clone/worktree was fetched for
}

// Downloader dispatches over the four protocols and tracks state that must
// persist across lines within one watch-file run: already-claimed output
// names (duplicate detection) and per-package git clone state.
type Downloader struct {
	client *fetch.Client

	mu          sync.Mutex
	claimed     map[string]bool
	gitRepos    map[string]*gitRepo // keyed by PackageDir
	keepGitRepo bool                // keep clones for inspection (verbosity>1) or in-tree mode
}

// New constructs a Downloader using client for HTTP/FTP transfers.
func New(client *fetch.Client, keepGitRepo bool) *Downloader {
	return &Downloader{
		client:      client,
		claimed:     make(map[string]bool),
		gitRepos:    make(map[string]*gitRepo),
		keepGitRepo: keepGitRepo,
	}
}

// Claim registers dest as the output of this download, returning an error
// if a prior line in this run already claimed the same name (spec.md §3
// invariant: at most one downloaded artifact per newfile_base).
func (d *Downloader) Claim(dest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	base := filepath.Base(dest)
	if d.claimed[base] {
		return fmt.Errorf("download: duplicate target %q already claimed by an earlier watch line", base)
	}
	d.claimed[base] = true
	return nil
}

// Download dispatches req to the appropriate transport.
func (d *Downloader) Download(ctx context.Context, req Request) error {
	switch req.Mode {
	case ModeHTTP, ModeFTP:
		return d.downloadHTTPLike(ctx, req)
	case ModeGit:
		return d.downloadGit(ctx, req)
	case ModeSVN:
		return d.downloadSVN(ctx, req)
	default:
		return fmt.Errorf("download: unknown mode %q", req.Mode)
	}
}

// downloadHTTPLike streams an HTTP or FTP URL to Dest. HTTPS is required
// for any https:// URL (net/http enforces real TLS verification by
// default; no insecure fallback exists).
func (d *Downloader) downloadHTTPLike(ctx context.Context, req Request) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("download: parse URL %q: %w", req.URL, err)
	}
	if u.Scheme == "ftp" {
		return downloadFTP(ctx, req.URL, req.Dest)
	}

	resp, err := d.client.Get(ctx, req.URL)
	if err != nil {
		return fmt.Errorf("download: network-error: GET %s: %w", req.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download: network-error: GET %s: status %s", req.URL, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return fmt.Errorf("download: filesystem-error: mkdir %s: %w", filepath.Dir(req.Dest), err)
	}
	f, err := os.Create(req.Dest)
	if err != nil {
		return fmt.Errorf("download: filesystem-error: create %s: %w", req.Dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("download: filesystem-error: write %s: %w", req.Dest, err)
	}

	if req.Recompress != "" {
		return recompress(req.Dest, req.Recompress)
	}
	return nil
}

// downloadFTP fetches url via the net/textproto FTP control connection
// and RETR, respecting the FTP_PASSIVE environment convention set by
// SetPassive.
func downloadFTP(ctx context.Context, rawURL, dest string) error {
	return ftpRetrieve(ctx, rawURL, dest)
}

// downloadSVN exports the working copy at req.URL into req.Dest via
// "svn export", the closest svn equivalent to git archive.
func (d *Downloader) downloadSVN(ctx context.Context, req Request) error {
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return fmt.Errorf("download: filesystem-error: mkdir %s: %w", filepath.Dir(req.Dest), err)
	}
	scratch, err := os.MkdirTemp("", "watchscan-svn-*")
	if err != nil {
		return fmt.Errorf("download: filesystem-error: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	exportDir := filepath.Join(scratch, "export")
	cmd := exec.CommandContext(ctx, "svn", "export", "--force", req.URL, exportDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("download: external-failure: svn export %s: %w: %s", req.URL, err, out)
	}

	if err := tarDirectory(exportDir, req.Dest, req.Package, req.Version); err != nil {
		return err
	}
	if req.Recompress != "" {
		return recompress(req.Dest, req.Recompress)
	}
	return nil
}

// SetPassive implements spec.md §4.6's passive-FTP handling: "pasv" sets
// FTP_PASSIVE for child processes, "default" leaves it untouched, and
// unsetting removes the variable.
func SetPassive(mode string) {
	switch mode {
	case "yes", "pasv":
		os.Setenv("FTP_PASSIVE", "1")
	case "no", "active":
		os.Unsetenv("FTP_PASSIVE")
	case "default":
		// leave environment untouched
	}
}

func trimArchiveExt(name string) string {
	for _, ext := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst", ".tgz", ".tbz", ".txz", ".zip"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
