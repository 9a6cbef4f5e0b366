package watchline

import (
	"testing"

	"github.com/sofmeright/watchscan/internal/search"
)

func TestGlobToRegex(t *testing.T) {
	got := globToRegex("foo-(1).tar.gz")
	want := `^foo-\(1\)\.tar\.gz$`
	if got != want {
		t.Fatalf("globToRegex(%q) = %q, want %q", "foo-(1).tar.gz", got, want)
	}
}

func TestParse_DerivesSiteAndBaseDir(t *testing.T) {
	l := &Line{RawBase: "https://example.org/dl/sub/", RawFilePattern: `foo-(.+)\.tar\.gz`}
	if err := l.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if l.Result.Parse.Site != "https://example.org" {
		t.Fatalf("site: got %q", l.Result.Parse.Site)
	}
	if l.Result.Parse.BaseDir != "/dl/sub/" {
		t.Fatalf("basedir: got %q", l.Result.Parse.BaseDir)
	}
}

func TestCompare_NewerSetsSharedDownload(t *testing.T) {
	l := &Line{Shared: &Shared{}}
	l.Result.Search = search.Result{Selected: search.Candidate{Version: "2.0"}, Found: true}
	if err := l.Compare("1.0"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if l.Result.VersionMode != VersionNewer {
		t.Fatalf("expected VersionNewer, got %v", l.Result.VersionMode)
	}
	if l.Shared.Download != 1 {
		t.Fatalf("expected shared.Download=1, got %d", l.Shared.Download)
	}
}

func TestCompare_SameVersionUpToDate(t *testing.T) {
	l := &Line{Shared: &Shared{}}
	l.Result.Search = search.Result{Selected: search.Candidate{Version: "1.0"}, Found: true}
	if err := l.Compare("1.0"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if l.Result.VersionMode != VersionSame {
		t.Fatalf("expected VersionSame, got %v", l.Result.VersionMode)
	}
	if l.Shared.Download != 0 {
		t.Fatalf("expected shared.Download to stay 0, got %d", l.Shared.Download)
	}
}
