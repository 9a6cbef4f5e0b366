package git

import (
	"testing"

	"github.com/sofmeright/watchscan/internal/search"
)

func TestNormalizeGitURL(t *testing.T) {
	got := normalizeGitURL("git+https://example.org/repo.git")
	if got != "https://example.org/repo.git" {
		t.Fatalf("got %q", got)
	}
}

func TestJoinCaptures(t *testing.T) {
	if got := joinCaptures([]string{"1", "", "2"}); got != "1.2" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateDate_Default(t *testing.T) {
	if got := translateDate(""); got != "%Y%m%d" {
		t.Fatalf("got %q", got)
	}
}

func TestUpstreamURL_RequiresSearchFirst(t *testing.T) {
	s := New(Options{})
	if _, err := s.UpstreamURL(search.Candidate{}); err == nil {
		t.Fatalf("expected an error before Search has run")
	}
}

func TestNewFileBase_TagRef(t *testing.T) {
	s := New(Options{})
	base, err := s.NewFileBase(search.Candidate{Href: "refs/tags/v1.2.3"}, "https://example.org/foo.git")
	if err != nil {
		t.Fatalf("NewFileBase: %v", err)
	}
	if base != "foo-v1.2.3.tar" {
		t.Fatalf("got %q", base)
	}
}

func TestNewFileBase_HEAD(t *testing.T) {
	s := New(Options{})
	base, err := s.NewFileBase(search.Candidate{Href: "HEAD"}, "https://example.org/foo.git")
	if err != nil {
		t.Fatalf("NewFileBase: %v", err)
	}
	if base != "foo.tar" {
		t.Fatalf("got %q", base)
	}
}
