package debver

import (
	"testing"
)

func TestCompare_Ordering(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"1.1", "1.0", 1},
		{"1.0~rc1", "1.0", -1},
		{"1.0", "1.0~rc1", 1},
		{"1.0~rc1", "1.0~rc2", -1},
		{"1:1.0", "2.0", 1},
		{"1.0-1", "1.0-2", -1},
		{"1.0-2", "1.0-1", 1},
		{"1.0a", "1.0", 1},
		{"1.0", "1.0a", -1},
		{"1.09", "1.9", 0},
		{"1.9", "1.010", -1},
		{"1.0", "1.0", 0},
	}
	for _, c := range cases {
		va, err := Parse(c.a)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.a, err)
		}
		vb, err := Parse(c.b)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.b, err)
		}
		got := Compare(va, vb)
		if sign(got) != sign(c.want) {
			t.Errorf("Compare(%q, %q) = %d, want sign %d", c.a, c.b, got, c.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestCompare_Antisymmetric(t *testing.T) {
	pairs := [][2]string{
		{"1.0", "2.0"},
		{"1.0~rc1", "1.0"},
		{"1:1.0", "5.0"},
		{"1.0-1", "1.0-10"},
	}
	for _, p := range pairs {
		va, _ := Parse(p[0])
		vb, _ := Parse(p[1])
		fwd := Compare(va, vb)
		rev := Compare(vb, va)
		if sign(fwd) != -sign(rev) {
			t.Errorf("Compare(%q,%q)=%d and Compare(%q,%q)=%d are not antisymmetric", p[0], p[1], fwd, p[1], p[0], rev)
		}
	}
}

func TestCompare_Reflexive(t *testing.T) {
	for _, s := range []string{"1.0", "1:2.3-4", "1.0~beta1"} {
		v, _ := Parse(s)
		if Compare(v, v) != 0 {
			t.Errorf("Compare(%q, %q) != 0", s, s)
		}
	}
}

func TestParse_RejectsNonDigitStart(t *testing.T) {
	if _, err := Parse("a1.0"); err == nil {
		t.Fatalf("expected error for version not starting with a digit")
	}
}

func TestParse_RejectsBadEpoch(t *testing.T) {
	if _, err := Parse("x:1.0"); err == nil {
		t.Fatalf("expected error for non-numeric epoch")
	}
	if _, err := Parse("-1:1.0"); err == nil {
		t.Fatalf("expected error for negative epoch")
	}
}

func TestParse_SplitsEpochUpstreamRevision(t *testing.T) {
	v, err := Parse("2:3.4.5-6")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v.Epoch != 2 || v.Upstream != "3.4.5" || v.Revision != "6" {
		t.Fatalf("got %+v", v)
	}
}

func TestSort_StableOnTies(t *testing.T) {
	pairs := []Pair[string]{
		{Version: "1.0", Data: "first"},
		{Version: "1.0", Data: "second"},
		{Version: "2.0", Data: "newest"},
	}
	got := Sort(pairs)
	if got[0].Data != "newest" {
		t.Fatalf("expected newest first, got %+v", got)
	}
	if got[1].Data != "first" || got[2].Data != "second" {
		t.Fatalf("expected tie order preserved, got %+v", got)
	}
}

func TestSort_UnparseableTreatedAsMinimum(t *testing.T) {
	pairs := []Pair[string]{
		{Version: "not-a-version", Data: "garbage"},
		{Version: "1.0", Data: "good"},
	}
	got := Sort(pairs)
	if got[0].Data != "good" {
		t.Fatalf("expected parseable version to sort above garbage, got %+v", got)
	}
}

func TestDebSort_ErrorsOnUnparseable(t *testing.T) {
	pairs := []Pair[string]{
		{Version: "not-a-version", Data: "garbage"},
	}
	if _, err := DebSort(pairs); err == nil {
		t.Fatalf("expected error from DebSort on unparseable version")
	}
}

func TestDebSort_EpochDominates(t *testing.T) {
	pairs := []Pair[string]{
		{Version: "0.9", Data: "no-epoch"},
		{Version: "1:0.1", Data: "epoch-one"},
	}
	got, err := DebSort(pairs)
	if err != nil {
		t.Fatalf("DebSort: %v", err)
	}
	if got[0].Data != "epoch-one" {
		t.Fatalf("expected epoch:0.1 to beat 0.9, got %+v", got)
	}
}

func TestUpstreamSort_IgnoresRevision(t *testing.T) {
	pairs := []Pair[string]{
		{Version: "1.0-9", Data: "low-rev"},
		{Version: "1.0-1", Data: "also-low-rev"},
	}
	got := UpstreamSort(pairs)
	// Both have upstream "1.0"; revision differences must not affect ordering
	// since UpstreamSort compares as "1:1.0-0" for both.
	va, _ := WithImpliedRevision("1.0")
	vb, _ := WithImpliedRevision("1.0")
	if Compare(va, vb) != 0 {
		t.Fatalf("sanity: implied-revision versions should compare equal")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
}
