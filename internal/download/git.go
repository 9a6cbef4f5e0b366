package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// downloadGit implements the Git repo state machine and archive export of
// spec.md §4.6: a shallow clone suffices for a single archive of the exact
// ref fetched; any subsequent line needing a different ref forces re-clone
// into FULL.
func (d *Downloader) downloadGit(ctx context.Context, req Request) error {
	d.mu.Lock()
	repo, ok := d.gitRepos[req.PackageDir]
	if !ok {
		repo = &gitRepo{dir: req.PackageDir}
		d.gitRepos[req.PackageDir] = repo
	}
	d.mu.Unlock()

	if err := d.ensureCloned(ctx, req, repo); err != nil {
		return err
	}

	if req.GitExportAll {
		restore, err := neutralizeExportAttributes(repo.dir)
		if err != nil {
			return err
		}
		defer restore()
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return fmt.Errorf("download: filesystem-error: mkdir %s: %w", filepath.Dir(req.Dest), err)
	}

	tarPath := req.Dest
	if req.Recompress != "" {
		tarPath = trimArchiveExt(req.Dest) + ".tar"
	}
	prefix := fmt.Sprintf("%s-%s/", req.Package, req.Version)
	cmd := exec.CommandContext(ctx, "git", "-C", repo.dir, "archive", "--format=tar", "--prefix="+prefix, "-o", tarPath, req.GitRef)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("download: external-failure: git archive %s: %w: %s", req.GitRef, err, out)
	}

	if req.Recompress != "" {
		if err := recompress(tarPath, req.Recompress); err != nil {
			return err
		}
		if tarPath != req.Dest {
			return os.Rename(tarPath, req.Dest)
		}
	}
	return nil
}

// ensureCloned performs the SHALLOW/FULL transition: a shallow clone is
// reused for a second archive of the same ref; a different ref forces a
// full re-clone.
func (d *Downloader) ensureCloned(ctx context.Context, req Request, repo *gitRepo) error {
	wantShallow := req.GitShallow && (req.GitRef == "HEAD" || isBranchRef(req.GitRef))

	switch repo.state {
	case RepoNone:
		return d.clone(ctx, req, repo, wantShallow)
	case RepoShallow:
		if repo.ref == req.GitRef {
			return nil // reuse: same ref as the shallow clone was made for
		}
		return d.clone(ctx, req, repo, false) // re-clone into FULL
	case RepoFull:
		return nil // full clone already has every ref
	}
	return nil
}

func (d *Downloader) clone(ctx context.Context, req Request, repo *gitRepo, shallow bool) error {
	if repo.dir == "" {
		dir, err := os.MkdirTemp("", "watchscan-gitclone-*")
		if err != nil {
			return fmt.Errorf("download: filesystem-error: scratch dir: %w", err)
		}
		repo.dir = dir
	} else if repo.state != RepoNone {
		os.RemoveAll(repo.dir)
		if err := os.MkdirAll(repo.dir, 0o755); err != nil {
			return fmt.Errorf("download: filesystem-error: recreate %s: %w", repo.dir, err)
		}
	}

	args := []string{"clone"}
	if shallow {
		args = append(args, "--depth=1")
		if branch := branchName(req.GitRef); branch != "" {
			args = append(args, "-b", branch)
		}
	} else {
		args = append(args, "--bare")
	}
	args = append(args, req.URL, repo.dir)

	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("download: external-failure: git clone %s: %w: %s", req.URL, err, out)
	}

	if shallow {
		repo.state = RepoShallow
		repo.ref = req.GitRef
	} else {
		repo.state = RepoFull
		repo.ref = ""
	}
	return nil
}

func isBranchRef(ref string) bool {
	return ref == "HEAD" || hasPrefixFold(ref, "refs/heads/") || hasPrefixFold(ref, "heads/")
}

func branchName(ref string) string {
	for _, p := range []string{"refs/heads/", "heads/"} {
		if hasPrefixFold(ref, p) {
			return ref[len(p):]
		}
	}
	return ""
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// neutralizeExportAttributes backs up info/attributes and overwrites it
// with an empty file so that export-subst/export-ignore rules in the
// repository's own .gitattributes don't strip content gitexport=all wants
// kept; the backup is restored by the returned func.
func neutralizeExportAttributes(repoDir string) (restore func(), err error) {
	path := filepath.Join(repoDir, "info", "attributes")
	var original []byte
	if data, readErr := os.ReadFile(path); readErr == nil {
		original = data
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("download: filesystem-error: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		return nil, fmt.Errorf("download: filesystem-error: write %s: %w", path, err)
	}
	return func() {
		if len(original) == 0 {
			os.Remove(path)
			return
		}
		os.WriteFile(path, original, 0o644)
	}, nil
}

// Clean removes a package's cloned repository unless keepGitRepo is set
// (in-tree mode, or verbosity > 1 per spec.md §4.6).
func (d *Downloader) Clean(ctx context.Context, packageDir string) error {
	d.mu.Lock()
	repo, ok := d.gitRepos[packageDir]
	d.mu.Unlock()
	if !ok || d.keepGitRepo {
		return nil
	}
	return os.RemoveAll(repo.dir)
}
