// Package watchline implements the per-line pipeline of spec.md §4.7: a
// state machine threading Parse -> Search -> URL -> Base Name -> Compare
// -> Download -> Repack -> Clean, mirroring the staged-mutation style of
// the teacher's dependency.Update (src/dependency/update.go), which
// threads a single *UpdateResult through its own seven numbered steps.
package watchline

import (
	"context"
	"regexp"

	"github.com/sofmeright/watchscan/internal/download"
	"github.com/sofmeright/watchscan/internal/mangle"
	"github.com/sofmeright/watchscan/internal/pgp"
	"github.com/sofmeright/watchscan/internal/search"
)

// Mode is the transport axis a line is dispatched on.
type Mode string

const (
	ModeHTTP Mode = "http"
	ModeFTP  Mode = "ftp"
	ModeGit  Mode = "git"
	ModeSVN  Mode = "svn"
)

// Type is the cross-line composition role a line plays, per spec.md §3.
type Type int

const (
	TypePlain Type = iota
	TypeComponent
	TypeGroup
	TypeChecksum
)

// PGPMode enumerates pgpmode values.
type PGPMode string

const (
	PGPDefault  PGPMode = "default"
	PGPAuto     PGPMode = "auto"
	PGPMangle   PGPMode = "mangle"
	PGPSelf     PGPMode = "self"
	PGPPrevious PGPMode = "previous"
	PGPNext     PGPMode = "next"
	PGPGitTag   PGPMode = "gittag"
	PGPNone     PGPMode = "none"
)

// Options is the fully parsed opts="..." block of one watch line, per
// spec.md §3 "Options (enumerated)".
type Options struct {
	Pasv          string // "pasv"/"active"/"" (default)
	Compression   string
	SearchMode    string // "html" (default) or "plain"
	PGPMode       PGPMode
	GitMode       string // "full" (default) or "shallow"
	GitExport     string // "default" or "all"
	Pretty        string
	DateFormat    string
	Decompress    bool
	Bare          bool
	Repack        bool
	RepackSuffix  string
	Component     string
	CType         string
	UnzipOpt      string
	HrefDecode    string
	Versionless   bool

	UVersionMangle     mangle.Chain
	DVersionMangle     mangle.Chain
	OVersionMangle     mangle.Chain
	DirVersionMangle   mangle.Chain
	FilenameMangle     mangle.Chain
	PageMangle         mangle.Chain
	DownloadURLMangle  mangle.Chain
	PGPSigURLMangle    mangle.Chain
}

// Shared is the per-group state of spec.md §3 "Shared State (per group)".
// Plain lines each own a fresh instance; group/checksum lines of the same
// block share one instance, held by the orchestrator and passed by
// pointer into each Line at the appropriate stage (spec.md §9 "Shared
// mutable state between lines").
type Shared struct {
	Bare                       bool
	Components                 []string
	CommonNewVersion           string
	CommonMangledNewVersion    string
	Download                   int // 0 skip, 1 if-newer, 2 force, 3 overwrite
	DownloadVersion            string
	OrigTars                   []string
	PreviousDownloadAvailable  bool
	PreviousNewVersion         string
	PreviousNewFileBase        string
	PreviousSigFileBase        string
	Signature                  int // -1, 0, 1
	UscanLog                   string
}

// ParseResult is what the Parse stage produces, per spec.md §3.
type ParseResult struct {
	Base               string
	FilePattern        string
	Pattern            *regexp.Regexp
	Site               string
	BaseDir            string
	LastVersion        string
	MangledLastVersion string
	Action             string
}

// VersionMode is the outcome of the Compare stage.
type VersionMode string

const (
	VersionNewer  VersionMode = "newer"
	VersionSame   VersionMode = "same"
	VersionPrev   VersionMode = "prev"
	VersionIgnore VersionMode = "ignore"
)

// Result accumulates every stage's output for one line, in the same
// single-accumulator style as the teacher's *UpdateResult.
type Result struct {
	Status int // 0 == ok; non-zero short-circuits remaining stages (spec.md §3)

	Parse  ParseResult
	Search search.Result

	ResolvedURL string
	SigURL      string
	NewFileBase string

	VersionMode VersionMode
	StatusText  string // "newer package available", "up to date", ...

	DownloadedPath string
	SigDownloaded  string
	Skipped        bool // true when Download stage determined nothing to fetch

	RepackedPath    string
	MangledUpstream string

	Warnings []string
	Errors   []string
}

func (r *Result) warn(msg string)  { r.Warnings = append(r.Warnings, msg) }
func (r *Result) fail(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Status = 1
}

// Line is one watch-line's pipeline state.
type Line struct {
	Mode          Mode
	Type          Type
	ComponentName string

	RawBase        string
	RawFilePattern string
	RawLastVersion string
	RawAction      string
	FormatVersion  int

	Opts Options

	Searcher   search.Searcher
	Downloader *download.Downloader
	PGP        *pgp.Verifier
	Shared     *Shared

	Package    string
	PackageDir string // scratch dir for git clones, keyed per package

	// HeadProbe lets the orchestrator inject a HEAD-request hook (backed by
	// fetch.Client.HeadExists) for pgpmode=auto/default sibling signature
	// discovery, keeping this package free of direct transport concerns.
	HeadProbe func(ctx context.Context, url string) (bool, error)

	Result Result
}

// New constructs a Line ready for its Parse stage.
func New(mode Mode, opts Options, searcher search.Searcher, shared *Shared) *Line {
	return &Line{Mode: mode, Opts: opts, Searcher: searcher, Shared: shared}
}
