package origtargz

import "testing"

func TestFinalTarballRe(t *testing.T) {
	cases := map[string]struct {
		version string
		archive string
		ok      bool
	}{
		"foo_1.2.orig.tar.xz":          {"1.2", "xz", true},
		"foo_1.2.orig-doc.tar.gz":      {"1.2", "gz", true},
		"foo_1.2.tar.xz":               {"", "", false},
		"foo_1.2+~3.4.orig.tar.bz2":    {"1.2+~3.4", "bz2", true},
	}
	for name, c := range cases {
		m := finalTarballRe.FindStringSubmatch(name)
		if !c.ok {
			if m != nil {
				t.Errorf("%q: expected no match, got %v", name, m)
			}
			continue
		}
		if m == nil {
			t.Fatalf("%q: expected a match", name)
		}
		if m[1] != c.version || m[2] != c.archive {
			t.Errorf("%q: got version=%q archive=%q, want %q/%q", name, m[1], m[2], c.version, c.archive)
		}
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	if got := lastNonEmptyLine("foo\nbar\n\n"); got != "bar" {
		t.Fatalf("got %q, want %q", got, "bar")
	}
}
