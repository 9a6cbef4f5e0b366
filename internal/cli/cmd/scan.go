package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/watchscan/internal/changelog"
	"github.com/sofmeright/watchscan/internal/cliexit"
	"github.com/sofmeright/watchscan/internal/dehs"
	"github.com/sofmeright/watchscan/internal/download"
	"github.com/sofmeright/watchscan/internal/fetch"
	"github.com/sofmeright/watchscan/internal/pgp"
	"github.com/sofmeright/watchscan/internal/repowalk"
	"github.com/sofmeright/watchscan/internal/watchfile"
)

// referrerStripSet mirrors uscan's historical special-casing of
// SourceForge's mirror redirect chain, whose Referer header has been known
// to confuse the mirror-selection front end.
var referrerStripSet = []string{"sourceforge.net"}

var (
	scanDownload        int
	scanDownloadVersion  string
	scanDestDir          string
	scanPackage          string
	scanWatchFile        string
	scanDEHS             bool
	scanKeyringPath      string
	scanVerifySignatures bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan one or more debian/watch files for upstream updates",
	Long: `Walks path (default: current directory) for debian/watch files, evaluates
each against its declared upstream location, and reports whether a newer
release is available — optionally downloading, verifying, and repacking it.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanDownload, "download", -1, "download level 0-3 (default: config value, or 1)")
	scanCmd.Flags().StringVar(&scanDownloadVersion, "download-version", "", "restrict matching to this upstream version")
	scanCmd.Flags().StringVar(&scanDestDir, "destdir", "", "directory to place downloaded/repacked files in")
	scanCmd.Flags().StringVar(&scanPackage, "package", "", "override the source package name")
	scanCmd.Flags().StringVar(&scanWatchFile, "watchfile", "", "scan exactly this watch file instead of walking path")
	scanCmd.Flags().BoolVar(&scanDEHS, "dehs", false, "emit DEHS XML status on stdout instead of plain text")
	scanCmd.Flags().StringVar(&scanKeyringPath, "keyring", "", "OpenPGP keyring for signature verification (default: debian/upstream/signing-key.asc)")
	scanCmd.Flags().BoolVar(&scanVerifySignatures, "no-verify-signatures", false, "skip OpenPGP verification even when a line requests it")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return &cliexit.ExitError{Code: cliexit.CodeFatal, Err: fmt.Errorf("filesystem-error: getwd: %w", err)}
	}
	if len(args) > 0 {
		root = args[0]
	}

	trees, err := discoverTrees(root)
	if err != nil {
		return &cliexit.ExitError{Code: cliexit.CodeFatal, Err: err}
	}
	if len(trees) == 0 {
		return &cliexit.ExitError{Code: cliexit.CodeFatal, Err: fmt.Errorf("filesystem-error: no debian/watch file found under %s", root)}
	}

	client := fetch.New(fetch.Options{
		Timeout:          time.Duration(cfg.Timeout) * time.Second,
		UserAgent:        cfg.UserAgent,
		ReferrerStripSet: referrerStripSet,
		Headers:          parseHeaders(cfg.HTTPHeader),
	})
	downloader := download.New(client, verbose)

	overallCode := cliexit.CodeOK
	for _, tree := range trees {
		code, err := scanOne(cmd.Context(), tree, client, downloader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", tree.Root, err)
		}
		if code > overallCode {
			overallCode = code
		}
	}

	if overallCode != cliexit.CodeOK {
		return &cliexit.ExitError{Code: overallCode, Err: fmt.Errorf("one or more watch lines failed")}
	}
	return nil
}

func discoverTrees(root string) ([]repowalk.Tree, error) {
	if scanWatchFile != "" {
		return []repowalk.Tree{{Root: filepath.Dir(filepath.Dir(scanWatchFile)), WatchFile: scanWatchFile}}, nil
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("filesystem-error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config-error: %s is not a directory", root)
	}
	direct := filepath.Join(root, "debian", "watch")
	if _, err := os.Stat(direct); err == nil {
		return []repowalk.Tree{{Root: root, WatchFile: direct}}, nil
	}
	return repowalk.Find(root)
}

func scanOne(ctx context.Context, tree repowalk.Tree, client *fetch.Client, downloader *download.Downloader) (int, error) {
	entry, err := changelog.Read(filepath.Join(tree.Root, "debian", "changelog"))
	if err != nil {
		return cliexit.CodeFatal, err
	}

	pkg := scanPackage
	if pkg == "" {
		pkg = cfg.Package
	}
	if pkg == "" {
		pkg = entry.SourceName
	}

	destDir := scanDestDir
	if destDir == "" {
		destDir = cfg.DestDir
	}
	if destDir == "" {
		destDir = filepath.Dir(tree.Root)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return cliexit.CodeFatal, fmt.Errorf("filesystem-error: creating destdir: %w", err)
	}

	downloadLevel := cfg.Download
	if scanDownload >= 0 {
		downloadLevel = scanDownload
	}
	downloadVersion := scanDownloadVersion
	if downloadVersion == "" {
		downloadVersion = cfg.DownloadVersion
	}

	f, err := watchfile.Parse(tree.WatchFile)
	if err != nil {
		return cliexit.CodeFatal, err
	}

	verifier, err := loadVerifier(ctx, tree.Root)
	if err != nil {
		return cliexit.CodeFatal, err
	}
	if verifier != nil {
		defer verifier.Close()
	}

	orch := &watchfile.Orchestrator{
		File:            f,
		Package:         pkg,
		LocalVersion:    entry.UpstreamVersion,
		DestDir:         destDir,
		Client:          client,
		Downloader:      downloader,
		PGP:             verifier,
		DownloadLevel:   downloadLevel,
		DownloadVersion: downloadVersion,
	}

	result, err := orch.Run(ctx)
	if err != nil {
		return cliexit.CodeFatal, err
	}

	if scanDEHS {
		writeDEHS(pkg, result)
	} else {
		writeReport(pkg, result)
	}

	return result.ExitCode, nil
}

// loadVerifier probes for gpgv/gpg and loads the package's conventional
// signing keyring (debian/upstream/signing-key.asc), the path real-world
// uscan installations use, when --no-verify-signatures was not passed and
// the keyring file exists. A missing keyring is not an error: lines with
// pgpmode=none (the default posture most watch files use) never need one.
func loadVerifier(ctx context.Context, treeRoot string) (*pgp.Verifier, error) {
	if scanVerifySignatures {
		return nil, nil
	}
	keyringPath := scanKeyringPath
	if keyringPath == "" {
		keyringPath = filepath.Join(treeRoot, "debian", "upstream", "signing-key.asc")
	}
	if _, err := os.Stat(keyringPath); err != nil {
		return nil, nil
	}
	v, err := pgp.Probe()
	if err != nil {
		return nil, fmt.Errorf("tool-missing: %w", err)
	}
	if _, err := v.LoadKeyring(ctx, keyringPath); err != nil {
		return nil, fmt.Errorf("verify-error: %w", err)
	}
	return v, nil
}

func writeReport(pkg string, result *watchfile.RunResult) {
	for _, o := range result.Outcomes {
		label := pkg
		if o.ComponentID != "" {
			label = pkg + "/" + o.ComponentID
		}
		status := o.Result.StatusText
		if status == "" && len(o.Result.Errors) > 0 {
			status = "error"
		}
		fmt.Printf("%s: %s", label, status)
		if o.Result.ResolvedURL != "" {
			fmt.Printf(" (%s)", o.Result.ResolvedURL)
		}
		fmt.Println()
		for _, w := range o.Result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		for _, e := range o.Result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	if result.CompositeVersion != "" {
		fmt.Printf("%s: composite %s: %s\n", pkg, result.CompositeVersion, result.Status)
	}
}

func writeDEHS(pkg string, result *watchfile.RunResult) {
	status := dehs.Status{Package: pkg}
	for _, o := range result.Outcomes {
		comp := dehs.Component{
			ID:              o.ComponentID,
			UpstreamVersion: o.Result.Search.Selected.Version,
			UpstreamURL:     o.Result.ResolvedURL,
			Status:          o.Result.StatusText,
		}
		comp.Status = firstNonEmpty(comp.Status, statusFromErrors(o.Result.Errors))
		if o.ComponentID == "" && len(result.Outcomes) == 1 {
			status.UpstreamVersion = comp.UpstreamVersion
			status.UpstreamURL = comp.UpstreamURL
			status.Status = comp.Status
		} else {
			status.Components = append(status.Components, comp)
		}
		status.Warnings = append(status.Warnings, o.Result.Warnings...)
		status.Errors = append(status.Errors, o.Result.Errors...)
	}
	if result.CompositeVersion != "" {
		status.UpstreamVersion = result.CompositeVersion
		status.Status = result.Status
	}
	if err := dehs.Write(os.Stdout, status); err != nil {
		fmt.Fprintf(os.Stderr, "dehs: %v\n", err)
	}
}

func statusFromErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return "error"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseHeaders(raw map[string]string) []fetch.HeaderSpec {
	var out []fetch.HeaderSpec
	for key, value := range raw {
		prefix, name, ok := strings.Cut(key, "@")
		if !ok {
			continue
		}
		out = append(out, fetch.HeaderSpec{URLPrefix: prefix, HeaderName: name, Value: value})
	}
	return out
}
