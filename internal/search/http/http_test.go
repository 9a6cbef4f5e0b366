package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sofmeright/watchscan/internal/fetch"
	"github.com/sofmeright/watchscan/internal/search"
)

func TestSearch_ArchiveTypePriorityOnTie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`
			<html><body>
			<a href="foo-1.0.tar.gz">foo-1.0.tar.gz</a>
			<a href="foo-2.0.tar.gz">foo-2.0.tar.gz</a>
			<a href="foo-2.0.tar.xz">foo-2.0.tar.xz</a>
			</body></html>
		`))
	}))
	defer srv.Close()

	s := New(fetch.New(fetch.Options{}), Options{})
	res, err := s.Search(context.Background(), srv.URL, `foo-(.+)\.tar\.(gz|xz)`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found {
		t.Fatalf("expected a candidate to be found")
	}
	if res.Selected.Version != "2.0.xz" {
		t.Fatalf("expected version 2.0.xz (2.0 + xz capture), got %q", res.Selected.Version)
	}
	if got := lastPathSegment(res.Selected.Href); got != "foo-2.0.tar.xz" {
		t.Fatalf("expected foo-2.0.tar.xz to win the archive-type tie, got %q", got)
	}
}

func TestSearch_DownloadVersionFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`
			<html><body>
			<a href="foo-1.0.tar.gz">foo-1.0.tar.gz</a>
			<a href="foo-2.0.tar.gz">foo-2.0.tar.gz</a>
			</body></html>
		`))
	}))
	defer srv.Close()

	s := New(fetch.New(fetch.Options{}), Options{DownloadVer: "1.0"})
	res, err := s.Search(context.Background(), srv.URL, `foo-([\d.]+)\.tar\.gz`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found {
		t.Fatalf("expected a candidate")
	}
	if got := lastPathSegment(res.Selected.Href); got != "foo-1.0.tar.gz" {
		t.Fatalf("expected foo-1.0.tar.gz with download_version=1.0, got %q", got)
	}
}

func TestFilterByDownloadVersion_PartialMatch(t *testing.T) {
	cands := []struct {
		version string
		want    bool
	}{
		{"2", true},
		{"2.3", true},
		{"2.3.4", true},
		{"2.3.5", false},
		{"2.4", false},
	}
	for _, c := range cands {
		got := filterByDownloadVersion([]search.Candidate{{Version: c.version}}, "2.3.4")
		if (len(got) == 1) != c.want {
			t.Errorf("version %q: got match=%v, want %v", c.version, len(got) == 1, c.want)
		}
	}
}
