// Package origtargz wraps the external mk-origtargz tool, which finalizes
// a downloaded tarball into the canonical "<pkg>_<ver>.orig.tar.<ext>"
// (or "...orig-<component>...") name. Out of core scope per spec.md §1;
// this is the thin, clearly-bounded collaborator boundary described there.
package origtargz

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Options mirrors the mk-origtargz flags spec.md §4.7 "Repack" propagates.
type Options struct {
	Package       string
	Version       string
	Compression   string
	Signature     string // path to signature file, for --signature-file
	Repack        bool
	RepackSuffix  string
	RenameOrCopy  string // "rename" or "copy"
	ForceRepack   bool
	Component     string
	CopyrightFile string
	UnzipOpt      string
	Directory     string
}

// finalTarballRe extracts the mangled upstream version from mk-origtargz's
// stdout path, per spec.md §4.7: "^[^_]+_(.+)\.orig(?:-.+)?\.tar\.(gz|bz2|lzma|xz)$".
var finalTarballRe = regexp.MustCompile(`^[^_]+_(.+)\.orig(?:-.+)?\.tar\.(gz|bz2|lzma|xz)$`)

// Result is what the watchline pipeline learns back from a repack.
type Result struct {
	FinalPath        string
	MangledUpstream  string
	Archive          string // ext: gz, bz2, lzma, xz
}

// Run invokes mk-origtargz on downloadedFile and parses its stdout for the
// final tarball path and mangled upstream version.
func Run(ctx context.Context, downloadedFile string, opts Options) (Result, error) {
	args := buildArgs(downloadedFile, opts)
	cmd := exec.CommandContext(ctx, "mk-origtargz", args...)
	out, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("origtargz: external-failure: mk-origtargz %s: %w", downloadedFile, err)
	}

	finalPath := lastNonEmptyLine(string(out))
	base := finalPath
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	m := finalTarballRe.FindStringSubmatch(base)
	if m == nil {
		return Result{FinalPath: finalPath}, fmt.Errorf("origtargz: parse-error: could not extract version from %q", base)
	}
	return Result{FinalPath: finalPath, MangledUpstream: m[1], Archive: m[2]}, nil
}

func buildArgs(downloadedFile string, opts Options) []string {
	args := []string{}
	if opts.Package != "" {
		args = append(args, "--package", opts.Package)
	}
	if opts.Version != "" {
		args = append(args, "--version", opts.Version)
	}
	if opts.Compression != "" {
		args = append(args, "--compression", opts.Compression)
	}
	if opts.Signature != "" {
		args = append(args, "--signature", opts.Signature)
	}
	if opts.Repack {
		args = append(args, "--repack")
	}
	if opts.RepackSuffix != "" {
		args = append(args, "--repack-suffix", opts.RepackSuffix)
	}
	switch opts.RenameOrCopy {
	case "rename":
		args = append(args, "--rename")
	case "copy":
		args = append(args, "--copy")
	}
	if opts.ForceRepack {
		args = append(args, "--force-repack")
	}
	if opts.Component != "" {
		args = append(args, "--component", opts.Component)
	}
	if opts.CopyrightFile != "" {
		args = append(args, "--copyright-file", opts.CopyrightFile)
	}
	if opts.UnzipOpt != "" {
		args = append(args, "--unzipopt", opts.UnzipOpt)
	}
	if opts.Directory != "" {
		args = append(args, "--directory", opts.Directory)
	}
	args = append(args, downloadedFile)
	return args
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
