// Package mangle implements the watch-file mangling mini-language: a
// sandboxed subset of Perl's s/// and tr///(y///) operators used to rewrite
// versions, URLs, and filenames pulled out of a watch line.
//
// A rule list is a sequence of individual rules separated by ";". Each rule
// is applied in order to a copy of the input; the original is always left
// intact for the caller to fall back to.
package mangle

import (
	"fmt"
	"regexp"
	"strings"
)

// kind distinguishes the two rule forms.
type kind int

const (
	kindSubst kind = iota // s///
	kindTrans             // tr/// or y///
)

// Rule is one parsed and validated mangling rule.
type Rule struct {
	kind kind

	// kindSubst fields.
	re      *regexp.Regexp
	repl    string
	global  bool // g flag

	// kindTrans fields.
	fromSet []rune
	toSet   []rune
	complement bool // c flag
	deleteUnmapped bool // d flag
	squeeze bool // s flag
}

var bracketPairs = map[byte]byte{
	'{': '}',
	'[': ']',
	'(': ')',
	'<': '>',
}

// Parse validates and compiles a single mangling rule of the form
// "s<sep>REGEX<sep>REPL<sep>FLAGS" or "tr<sep>SRC<sep>DST<sep>FLAGS" (y is an
// alias for tr). It returns an error describing why the rule was rejected;
// callers must leave the input unchanged when that happens.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimSpace(rule)
	switch {
	case strings.HasPrefix(rule, "s"):
		return parseSubst(rule[1:])
	case strings.HasPrefix(rule, "tr"):
		return parseTrans(rule[2:])
	case strings.HasPrefix(rule, "y"):
		return parseTrans(rule[1:])
	default:
		return Rule{}, fmt.Errorf("mangle: rule %q does not start with s, tr, or y", rule)
	}
}

// parseSubst parses the body following "s": either "<sep>A<sep>B<sep>FLAGS"
// with a single repeated non-alphanumeric separator, or a balanced-bracket
// form "{A}{B}FLAGS" using one of the four bracket pairs.
func parseSubst(body string) (Rule, error) {
	parts, flags, err := splitPartsOpt(body, 2, true)
	if err != nil {
		return Rule{}, fmt.Errorf("mangle: s///: %w", err)
	}
	g, i, x, err := parseFlags(flags, "gix")
	if err != nil {
		return Rule{}, fmt.Errorf("mangle: s///: %w", err)
	}
	pattern := parts[0]
	if x["x"] {
		pattern = "(?x)" + pattern
	}
	if i["i"] {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("mangle: s///: invalid regex %q: %w", parts[0], err)
	}
	return Rule{kind: kindSubst, re: re, repl: perlReplToGo(parts[1]), global: g["g"]}, nil
}

// parseTrans parses the body following "tr"/"y": "<sep>SRC<sep>DST<sep>FLAGS"
// or the balanced-bracket equivalent.
func parseTrans(body string) (Rule, error) {
	parts, flags, err := splitParts(body, 2)
	if err != nil {
		return Rule{}, fmt.Errorf("mangle: tr///: %w", err)
	}
	_, flagSet, err := parseFlagSet(flags, "cds")
	if err != nil {
		return Rule{}, fmt.Errorf("mangle: tr///: %w", err)
	}
	from := expandTransSet(parts[0])
	to := expandTransSet(parts[1])
	return Rule{
		kind:           kindTrans,
		fromSet:        from,
		toSet:          to,
		complement:     flagSet["c"],
		deleteUnmapped: flagSet["d"],
		squeeze:        flagSet["s"],
	}, nil
}

// splitParts splits body into n parts plus a trailing flags string, honoring
// either the repeated-separator form or the balanced-bracket form. n is the
// number of separators expected before flags (2 for both s and tr: this
// yields 2 content parts).
func splitParts(body string, n int) ([]string, string, error) {
	return splitPartsOpt(body, n, false)
}

// splitPartsOpt is splitParts with rejectEmptyLast controlling whether an
// empty final content part (REPL for s///) is rejected when the rule uses
// the balanced-bracket form, per spec.md §4.2's "an empty replacement in
// balanced form" rejection condition. Only s/// passes true here; tr///'s
// empty DST ("tr/abc//", delete mode) is valid and not in that list.
func splitPartsOpt(body string, n int, rejectEmptyLast bool) ([]string, string, error) {
	if body == "" {
		return nil, "", fmt.Errorf("empty rule body")
	}
	if close, ok := bracketPairs[body[0]]; ok {
		parts, flags, err := splitBracketed(body, close, n)
		if err != nil {
			return nil, "", err
		}
		if rejectEmptyLast && n > 0 && parts[n-1] == "" {
			return nil, "", fmt.Errorf("empty replacement in balanced form")
		}
		return parts, flags, nil
	}
	return splitSeparated(body, n)
}

// splitSeparated handles "<sep>A<sep>B<sep>FLAGS" where <sep> is any single
// non-alphanumeric character repeated literally between each part.
func splitSeparated(body string, n int) ([]string, string, error) {
	sep := rune(body[0])
	if isAlnum(sep) {
		return nil, "", fmt.Errorf("separator %q must not be alphanumeric", string(sep))
	}
	fields := strings.Split(body[1:], string(sep))
	if len(fields) != n+1 {
		return nil, "", fmt.Errorf("expected %d separators, found %d", n, len(fields)-1)
	}
	return fields[:n], fields[n], nil
}

// splitBracketed handles the four balanced-bracket forms, e.g.
// "{REGEX}{REPL}flags", where REGEX and REPL may each contain the opening
// bracket character as long as it is balanced by a matching close.
func splitBracketed(body string, close byte, n int) ([]string, string, error) {
	open := body[0]
	parts := make([]string, 0, n)
	rest := body
	for i := 0; i < n; i++ {
		if len(rest) == 0 || rest[0] != open {
			return nil, "", fmt.Errorf("malformed bracketed rule: missing opening %q", string(open))
		}
		content, tail, err := readBalanced(rest, open, close)
		if err != nil {
			return nil, "", err
		}
		parts = append(parts, content)
		rest = tail
	}
	return parts, rest, nil
}

// readBalanced consumes a leading open/close-balanced group from s (which
// must start with open) and returns its inner content and the remainder.
func readBalanced(s string, open, close byte) (string, string, error) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced brackets (depth %d at end of input)", depth)
}

// parseFlags validates flags against an allowed set and returns presence
// maps for "g", "i", "x" (unused entries are always false).
func parseFlags(flags, allowed string) (map[string]bool, map[string]bool, map[string]bool, error) {
	_, set, err := parseFlagSet(flags, allowed)
	if err != nil {
		return nil, nil, nil, err
	}
	return set, set, set, nil
}

// parseFlagSet checks every character in flags is in allowed (no duplicates
// required to reject; repeats are harmless) and returns a presence set.
func parseFlagSet(flags, allowed string) (string, map[string]bool, error) {
	set := map[string]bool{}
	for _, r := range flags {
		if !strings.ContainsRune(allowed, r) {
			return "", nil, fmt.Errorf("flag %q not allowed (allowed: %s)", string(r), allowed)
		}
		set[string(r)] = true
	}
	return flags, set, nil
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// perlReplToGo rewrites Perl-style backreferences ($1, \1) in a replacement
// string into Go's regexp ${1} form; literal $ and \ not followed by a digit
// pass through unchanged.
func perlReplToGo(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if (c == '$' || c == '\\') && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			j := i + 1
			for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${")
			b.WriteString(repl[i+1 : j])
			b.WriteString("}")
			i = j - 1
			continue
		}
		if c == '$' {
			b.WriteString("$$")
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// expandTransSet expands tr/y character-class ranges like "a-z0-9" into an
// explicit rune slice.
func expandTransSet(s string) []rune {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		if i+2 < len(runes) && runes[i+1] == '-' && runes[i] <= runes[i+2] {
			for r := runes[i]; r <= runes[i+2]; r++ {
				out = append(out, r)
			}
			i += 2
			continue
		}
		out = append(out, runes[i])
	}
	return out
}

// Apply runs the rule against input and returns the result. Substitution
// rules apply regexp.ReplaceAll (first match only unless the g flag was
// set); transliteration rules remap characters per the fromSet/toSet pairing
// with optional complement, delete-unmapped, and squeeze-repeats semantics.
func (r Rule) Apply(input string) string {
	switch r.kind {
	case kindSubst:
		if r.global {
			return r.re.ReplaceAllString(input, r.repl)
		}
		return replaceFirst(r.re, input, r.repl)
	case kindTrans:
		return r.applyTrans(input)
	default:
		return input
	}
}

func replaceFirst(re *regexp.Regexp, input, repl string) string {
	loc := re.FindStringIndex(input)
	if loc == nil {
		return input
	}
	matched := re.ReplaceAllString(input[loc[0]:loc[1]], repl)
	return input[:loc[0]] + matched + input[loc[1]:]
}

func (r Rule) applyTrans(input string) string {
	in := map[rune]bool{}
	for _, c := range r.fromSet {
		in[c] = true
	}
	mapTo := func(c rune) (rune, bool) {
		if !r.complement {
			for i, f := range r.fromSet {
				if f == c {
					if i < len(r.toSet) {
						return r.toSet[i], true
					}
					if len(r.toSet) > 0 {
						return r.toSet[len(r.toSet)-1], true
					}
					return c, r.deleteUnmapped
				}
			}
			return c, false
		}
		if in[c] {
			return c, false
		}
		if len(r.toSet) > 0 {
			return r.toSet[len(r.toSet)-1], true
		}
		return c, r.deleteUnmapped
	}

	var out []rune
	var lastMapped rune
	haveLast := false
	for _, c := range input {
		mapped, did := mapTo(c)
		if did && r.deleteUnmapped && len(r.toSet) == 0 {
			continue
		}
		if r.squeeze && did && haveLast && lastMapped == mapped {
			continue
		}
		out = append(out, mapped)
		if did {
			lastMapped = mapped
			haveLast = true
		} else {
			haveLast = false
		}
	}
	return string(out)
}

// Chain is a validated, ordered list of rules (one watch-line mangle list,
// e.g. the value of uversionmangle, split on ";").
type Chain struct {
	Rules []Rule
}

// ParseChain splits spec on ";" and parses each non-empty piece. On any
// rule's rejection, ParseChain returns the error from that rule and the
// caller must treat the whole chain as a no-op (the input is returned
// unchanged by Chain.Apply's caller contract — see watchline for the
// parse-error short-circuit).
func ParseChain(spec string) (Chain, error) {
	if strings.TrimSpace(spec) == "" {
		return Chain{}, nil
	}
	var rules []Rule
	for _, piece := range strings.Split(spec, ";") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		r, err := Parse(piece)
		if err != nil {
			return Chain{}, err
		}
		rules = append(rules, r)
	}
	return Chain{Rules: rules}, nil
}

// Apply runs every rule in the chain in order against input.
func (c Chain) Apply(input string) string {
	out := input
	for _, r := range c.Rules {
		out = r.Apply(out)
	}
	return out
}
