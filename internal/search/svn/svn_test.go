package svn

import (
	"testing"

	"github.com/sofmeright/watchscan/internal/search"
)

func TestJoinCaptures(t *testing.T) {
	got := joinCaptures([]string{"1", "", "2"})
	if got != "1.2" {
		t.Fatalf("joinCaptures: got %q, want %q", got, "1.2")
	}
}

func TestUpstreamURL_Tagged(t *testing.T) {
	s := New(Options{})
	s.base = "svn://example.org/proj/tags"
	got, err := s.UpstreamURL(search.Candidate{Href: "proj-1.2/"})
	if err != nil {
		t.Fatalf("UpstreamURL: %v", err)
	}
	if want := "svn://example.org/proj/tags/proj-1.2/"; got != want {
		t.Fatalf("UpstreamURL: got %q, want %q", got, want)
	}
}

func TestNewFileBase_Versionless(t *testing.T) {
	s := New(Options{Versionless: true})
	s.base = "svn://example.org/proj/trunk/"
	got, err := s.NewFileBase(search.Candidate{}, "")
	if err != nil {
		t.Fatalf("NewFileBase: %v", err)
	}
	if got != "trunk" {
		t.Fatalf("NewFileBase: got %q, want %q", got, "trunk")
	}
}
