package watchfile

import (
	"strings"
	"testing"
)

func TestParseBytes_Format4SingleLine(t *testing.T) {
	data := []byte(`version=4
opts="pgpmode=none" https://example.org/dl/ foo-(\d[\d.]*)\.tar\.gz debian
`)
	f, err := ParseBytes(data)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if f.FormatVersion != 4 {
		t.Fatalf("expected format 4, got %d", f.FormatVersion)
	}
	if len(f.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(f.Lines))
	}
	l := f.Lines[0]
	if l.Base != "https://example.org/dl/" {
		t.Fatalf("base: got %q", l.Base)
	}
	if l.Action != "debian" {
		t.Fatalf("action: got %q", l.Action)
	}
}

func TestParseBytes_Format1Implied(t *testing.T) {
	data := []byte(`ftp.example.org /pub/foo foo-(.*)\.tar\.gz debian
`)
	f, err := ParseBytes(data)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if f.FormatVersion != 1 {
		t.Fatalf("expected format 1, got %d", f.FormatVersion)
	}
	if len(f.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(f.Lines))
	}
}

func TestJoinContinuations(t *testing.T) {
	data := []byte("version=4\nopts=\"pgpmode=none\" \\\n  https://example.org/ foo-(\\d+)\\.tar\\.gz\n")
	lines, err := joinContinuations(data)
	if err != nil {
		t.Fatalf("joinContinuations: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 joined lines (header + content), got %d: %v", len(lines), lines)
	}
}

func TestJoinContinuations_InsertsSeparatorWithNoTrailingSpace(t *testing.T) {
	data := []byte("version=4\nhttps://example.org/dl/\\\nfoo-(\\d+)\\.tar\\.gz\n")
	lines, err := joinContinuations(data)
	if err != nil {
		t.Fatalf("joinContinuations: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 joined lines (header + content), got %d: %v", len(lines), lines)
	}
	want := "https://example.org/dl/ foo-(\\d+)\\.tar\\.gz"
	if lines[1] != want {
		t.Fatalf("joined line = %q, want %q", lines[1], want)
	}
	fields := strings.Fields(lines[1])
	if len(fields) != 2 {
		t.Fatalf("expected 2 whitespace-separated fields after join, got %d: %v", len(fields), fields)
	}
}

func TestExpandPlaceholders(t *testing.T) {
	got := expandPlaceholders(`foo-@ANY_VERSION@@ARCHIVE_EXT@`)
	if got == `foo-@ANY_VERSION@@ARCHIVE_EXT@` {
		t.Fatalf("placeholders were not expanded: %q", got)
	}
}

func TestParseOpts_VersionmangleShorthand(t *testing.T) {
	opts, err := ParseOpts(`versionmangle=s/-/./`)
	if err != nil {
		t.Fatalf("ParseOpts: %v", err)
	}
	if len(opts.UVersionMangle.Rules) == 0 || len(opts.DVersionMangle.Rules) == 0 {
		t.Fatalf("expected versionmangle to populate both uversionmangle and dversionmangle")
	}
}

func TestParseOpts_UnrecognizedOption(t *testing.T) {
	if _, err := ParseOpts(`bogus=1`); err == nil {
		t.Fatalf("expected an error for an unrecognized option")
	}
}

func TestSplitOptsRespectingQuotes(t *testing.T) {
	parts := splitOptsRespectingQuotes(`pgpmode=mangle,pgpsigurlmangle=s/$/.asc/`)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d: %v", len(parts), parts)
	}
}
