package ftp

import (
	"testing"

	"github.com/sofmeright/watchscan/internal/mangle"
	"github.com/sofmeright/watchscan/internal/search"
)

func TestParseClassicListing_SkipsDirsAndSymlinks(t *testing.T) {
	lines := []string{
		"drwxr-xr-x 2 ftp ftp 4096 Jan 1 00:00 subdir",
		"-rw-r--r-- 1 ftp ftp 1234 Jan 1 00:00 foo-1.0.tar.gz",
		"lrwxrwxrwx 1 ftp ftp 10 Jan 1 00:00 latest -> foo-1.0.tar.gz",
	}
	got := parseClassicListing(lines)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries (file + symlink name), got %v", got)
	}
	if got[0] != "foo-1.0.tar.gz" {
		t.Fatalf("got %q", got[0])
	}
	if got[1] != "latest" {
		t.Fatalf("expected symlink target stripped, got %q", got[1])
	}
}

func TestParseHTMLizedListing(t *testing.T) {
	body := `<html><body>
	<a href="foo-1.0.tar.gz">foo-1.0.tar.gz</a>
	<a href="foo-2.0.tar.gz">foo-2.0.tar.gz</a>
	</body></html>`
	got := parseHTMLizedListing(body)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
}

func TestSelectBest_DirVersionMangleRanking(t *testing.T) {
	candidates := []search.Candidate{
		{Version: "1.0", Href: "a"},
		{Version: "2.0", Href: "b"},
	}
	selected, ok := selectBest(candidates, "", false)
	if !ok || selected.Href != "b" {
		t.Fatalf("expected highest version to win, got %+v ok=%v", selected, ok)
	}
}

func TestOptions_DirVersionMangleApplies(t *testing.T) {
	chain, err := mangle.ParseChain("s/_/./g")
	if err != nil {
		t.Fatalf("ParseChain: %v", err)
	}
	got := chain.Apply("1_2_3")
	if got != "1.2.3" {
		t.Fatalf("got %q", got)
	}
}
