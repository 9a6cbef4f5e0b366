package download

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sofmeright/watchscan/internal/fetch"
)

func TestClaim_DuplicateRejected(t *testing.T) {
	d := New(fetch.New(fetch.Options{}), false)
	if err := d.Claim("/tmp/pkg_1.0.orig.tar.xz"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := d.Claim("/other/dir/pkg_1.0.orig.tar.xz"); err == nil {
		t.Fatalf("expected duplicate target to be rejected")
	}
}

func TestTrimArchiveExt(t *testing.T) {
	cases := map[string]string{
		"foo-1.0.tar.gz":  "foo-1.0",
		"foo-1.0.tar.xz":  "foo-1.0",
		"foo-1.0.tar.bz2": "foo-1.0",
		"foo-1.0.zip":     "foo-1.0",
	}
	for in, want := range cases {
		if got := trimArchiveExt(in); got != want {
			t.Errorf("trimArchiveExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsBranchRef(t *testing.T) {
	cases := map[string]bool{
		"HEAD":             true,
		"refs/heads/main":  true,
		"heads/main":       true,
		"refs/tags/v1.0":   false,
	}
	for ref, want := range cases {
		if got := isBranchRef(ref); got != want {
			t.Errorf("isBranchRef(%q) = %v, want %v", ref, got, want)
		}
	}
}

func TestSetPassive(t *testing.T) {
	os.Unsetenv("FTP_PASSIVE")
	SetPassive("yes")
	if os.Getenv("FTP_PASSIVE") != "1" {
		t.Fatalf("expected FTP_PASSIVE=1 after SetPassive(yes)")
	}
	SetPassive("no")
	if _, ok := os.LookupEnv("FTP_PASSIVE"); ok {
		t.Fatalf("expected FTP_PASSIVE unset after SetPassive(no)")
	}
}

// gitCommand runs git in dir, failing the test on any non-zero exit.
func gitCommand(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.org",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.org",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

// TestGitStateTransitions drives ensureCloned against a real local repo
// fixture, exercising the NONE->SHALLOW->FULL transitions of spec.md §4.6:
// a shallow clone is reused for a second archive of the same ref, and a
// subsequent archive of a different ref forces a full re-clone.
func TestGitStateTransitions(t *testing.T) {
	src := t.TempDir()
	gitCommand(t, src, "init", "-q")
	if err := os.WriteFile(filepath.Join(src, "f.txt"), []byte("one"), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}
	gitCommand(t, src, "add", "f.txt")
	gitCommand(t, src, "commit", "-q", "-m", "one")
	gitCommand(t, src, "tag", "v1")
	if err := os.WriteFile(filepath.Join(src, "f.txt"), []byte("two"), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}
	gitCommand(t, src, "add", "f.txt")
	gitCommand(t, src, "commit", "-q", "-m", "two")
	gitCommand(t, src, "tag", "v2")

	d := New(fetch.New(fetch.Options{}), false)
	repo := &gitRepo{dir: filepath.Join(t.TempDir(), "clone")}

	reqHEAD := Request{URL: src, GitRef: "HEAD", GitShallow: true}
	if err := d.ensureCloned(context.Background(), reqHEAD, repo); err != nil {
		t.Fatalf("first ensureCloned: %v", err)
	}
	if repo.state != RepoShallow {
		t.Fatalf("expected shallow state after first clone of HEAD, got %v", repo.state)
	}

	marker := filepath.Join(repo.dir, ".marker")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	if err := d.ensureCloned(context.Background(), reqHEAD, repo); err != nil {
		t.Fatalf("second ensureCloned (same ref): %v", err)
	}
	if repo.state != RepoShallow {
		t.Fatalf("expected shallow clone reused for same ref, got %v", repo.state)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected shallow clone to be reused (marker survived), got: %v", err)
	}

	reqTag := Request{URL: src, GitRef: "refs/tags/v1", GitShallow: true}
	if err := d.ensureCloned(context.Background(), reqTag, repo); err != nil {
		t.Fatalf("third ensureCloned (different ref): %v", err)
	}
	if repo.state != RepoFull {
		t.Fatalf("expected full re-clone for a different ref, got %v", repo.state)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("expected re-clone to wipe the previous clone directory")
	}
}
