package watchfile

import (
	"testing"

	"github.com/sofmeright/watchscan/internal/search"
	"github.com/sofmeright/watchscan/internal/watchline"
)

func checksumLine(version string) *watchline.Line {
	l := &watchline.Line{Type: watchline.TypeChecksum}
	l.Result.Search = search.Result{Selected: search.Candidate{Version: version}}
	return l
}

func TestSumChecksumComponents(t *testing.T) {
	lines := []*watchline.Line{
		checksumLine("1.2.3"),
		checksumLine("4.5.6"),
	}
	sum, err := sumChecksumComponents(lines)
	if err != nil {
		t.Fatalf("sumChecksumComponents: %v", err)
	}
	if sum != "5.7.9" {
		t.Fatalf("expected 5.7.9, got %q", sum)
	}
}

func TestSumChecksumComponents_MismatchedWidth(t *testing.T) {
	lines := []*watchline.Line{
		checksumLine("1.2.3"),
		checksumLine("4.5"),
	}
	if _, err := sumChecksumComponents(lines); err == nil {
		t.Fatalf("expected a mismatched-width error")
	}
}

func TestSumChecksumComponents_NonDigit(t *testing.T) {
	lines := []*watchline.Line{checksumLine("1.2.x")}
	if _, err := sumChecksumComponents(lines); err == nil {
		t.Fatalf("expected a non-digit error")
	}
}

func TestSplitPackagedVersion(t *testing.T) {
	components, checksum := splitPackagedVersion("1.0+~2.0+~cs42")
	if len(components) != 2 || components[0] != "1.0" || components[1] != "2.0" {
		t.Fatalf("components: got %v", components)
	}
	if checksum != "42" {
		t.Fatalf("checksum: got %q", checksum)
	}
}

func TestDetectMode(t *testing.T) {
	cases := map[string]watchline.Mode{
		"https://example.org/x":     watchline.ModeHTTP,
		"ftp://example.org/x":       watchline.ModeFTP,
		"git://example.org/x.git":   watchline.ModeGit,
		"svn://example.org/repo":    watchline.ModeSVN,
	}
	for base, want := range cases {
		if got := detectMode(base); got != want {
			t.Errorf("detectMode(%q) = %v, want %v", base, got, want)
		}
	}
}
