package mangle

import "testing"

func apply(t *testing.T, rule, input string) string {
	t.Helper()
	r, err := Parse(rule)
	if err != nil {
		t.Fatalf("Parse(%q): %v", rule, err)
	}
	return r.Apply(input)
}

func TestSubst_IdentityRoundTrip(t *testing.T) {
	got := apply(t, "s/X/X/", "hello-X-world")
	if got != "hello-X-world" {
		t.Fatalf("got %q", got)
	}
}

func TestSubst_Backreference(t *testing.T) {
	got := apply(t, "s/v(\\d+)\\.(\\d+)/$1-$2/", "v1.2")
	if got != "1-2" {
		t.Fatalf("got %q", got)
	}
}

func TestSubst_GlobalFlag(t *testing.T) {
	got := apply(t, "s/_/./g", "1_2_3")
	if got != "1.2.3" {
		t.Fatalf("got %q", got)
	}
}

func TestSubst_NonGlobalOnlyFirst(t *testing.T) {
	got := apply(t, "s/_/./", "1_2_3")
	if got != "1.2_3" {
		t.Fatalf("got %q", got)
	}
}

func TestSubst_BalancedBracketForm(t *testing.T) {
	got := apply(t, "s{v(\\d+)}{$1}", "v42")
	if got != "42" {
		t.Fatalf("got %q", got)
	}
}

func TestSubst_RejectsUnknownFlag(t *testing.T) {
	if _, err := Parse("s/a/b/z"); err == nil {
		t.Fatalf("expected error for unknown flag z")
	}
}

func TestSubst_RejectsUnbalancedBrackets(t *testing.T) {
	if _, err := Parse("s{a}{b"); err == nil {
		t.Fatalf("expected error for unbalanced brackets")
	}
}

func TestSubst_RejectsEmptyReplacementInBalancedForm(t *testing.T) {
	if _, err := Parse("s{v(\\d+)}{}"); err == nil {
		t.Fatalf("expected error for empty replacement in balanced form")
	}
}

func TestSubst_RejectsWrongSeparatorCount(t *testing.T) {
	if _, err := Parse("s/a/b"); err == nil {
		t.Fatalf("expected error for missing trailing separator")
	}
}

func TestTrans_Identity(t *testing.T) {
	got := apply(t, "tr/abc/abc/", "cabbage")
	if got != "cabbage" {
		t.Fatalf("got %q", got)
	}
}

func TestTrans_RangeMapping(t *testing.T) {
	got := apply(t, "tr/a-c/x-z/", "abc")
	if got != "xyz" {
		t.Fatalf("got %q, want xyz", got)
	}
}

func TestTrans_YAlias(t *testing.T) {
	got := apply(t, "y/a-c/x-z/", "cba")
	if got != "zyx" {
		t.Fatalf("got %q, want zyx", got)
	}
}

func TestTrans_RejectsUnknownFlag(t *testing.T) {
	if _, err := Parse("tr/a/b/q"); err == nil {
		t.Fatalf("expected error for unknown tr flag q")
	}
}

func TestChain_AppliesInOrder(t *testing.T) {
	c, err := ParseChain("s/_/./g;s/v//")
	if err != nil {
		t.Fatalf("ParseChain: %v", err)
	}
	got := c.Apply("v1_2_3")
	if got != "1.2.3" {
		t.Fatalf("got %q", got)
	}
}

func TestChain_EmptyIsNoop(t *testing.T) {
	c, err := ParseChain("")
	if err != nil {
		t.Fatalf("ParseChain: %v", err)
	}
	if got := c.Apply("unchanged"); got != "unchanged" {
		t.Fatalf("got %q", got)
	}
}

func TestParseChain_PropagatesRuleError(t *testing.T) {
	if _, err := ParseChain("s/a/b/z"); err == nil {
		t.Fatalf("expected ParseChain to surface the invalid-flag error")
	}
}
