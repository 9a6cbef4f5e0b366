// Package debver implements dpkg-policy version comparison: the
// epoch:upstream-revision ordering used throughout Debian tooling.
//
// The comparator is the sole authority on "newer" for the watch-file
// engine; every other package compares versions by calling Compare or one
// of the Sort helpers here, never by comparing strings directly.
package debver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed epoch:upstream-revision triple.
type Version struct {
	Epoch    int
	Upstream string
	Revision string
	raw      string
}

// String returns the canonical epoch:upstream-revision form.
func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d:", v.Epoch)
	}
	b.WriteString(v.Upstream)
	if v.Revision != "" {
		b.WriteByte('-')
		b.WriteString(v.Revision)
	}
	return b.String()
}

// sentinelMin is substituted for unparseable strings in non-strict mode.
var sentinelMin = Version{Epoch: -1, Upstream: ""}

// Parse splits s into epoch/upstream/revision per dpkg's grammar:
// "[epoch:]upstream[-revision]". Epoch must be a non-negative integer;
// upstream must start with a digit once any epoch prefix is removed.
func Parse(s string) (Version, error) {
	rest := s
	epoch := 0
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		epochStr := rest[:idx]
		n, err := strconv.Atoi(epochStr)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("debver: invalid epoch %q in %q", epochStr, s)
		}
		epoch = n
		rest = rest[idx+1:]
	}
	if rest == "" {
		return Version{}, fmt.Errorf("debver: empty upstream version in %q", s)
	}
	if !isDigit(rune(rest[0])) {
		return Version{}, fmt.Errorf("debver: upstream version %q must start with a digit", rest)
	}

	upstream := rest
	revision := ""
	if idx := strings.LastIndexByte(rest, '-'); idx >= 0 {
		upstream = rest[:idx]
		revision = rest[idx+1:]
	}
	for _, r := range s {
		if r > 127 {
			return Version{}, fmt.Errorf("debver: version %q is not pure ASCII", s)
		}
	}
	return Version{Epoch: epoch, Upstream: upstream, Revision: revision, raw: s}, nil
}

// ParseLoose parses s, falling back to a sentinel minimum when strict
// parsing fails. Used by the non-strict sort entry points.
func ParseLoose(s string) Version {
	v, err := Parse(s)
	if err != nil {
		return sentinelMin
	}
	return v
}

// WithImpliedRevision returns a version equivalent to "1:V-0", used when a
// line has an upstream version but no known packaged revision.
func WithImpliedRevision(upstreamVersion string) (Version, error) {
	v, err := Parse(upstreamVersion)
	if err != nil {
		return Version{}, err
	}
	return Version{Epoch: 1, Upstream: v.Upstream, Revision: "0"}, nil
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b, following dpkg policy: epoch dominates, then upstream, then revision.
func Compare(a, b Version) int {
	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}
	if c := compareVersionPart(a.Upstream, b.Upstream); c != 0 {
		return c
	}
	return compareVersionPart(a.Revision, b.Revision)
}

// compareVersionPart implements dpkg's comparison of a single
// upstream-or-revision string: alternating runs of non-digits (compared
// lexically, with '~' sorting before everything including the empty
// string) and digits (compared numerically).
func compareVersionPart(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// Compare the non-digit run.
		aStart := i
		for i < len(a) && !isDigit(rune(a[i])) {
			i++
		}
		bStart := j
		for j < len(b) && !isDigit(rune(b[j])) {
			j++
		}
		if c := compareNonDigitRun(a[aStart:i], b[bStart:j]); c != 0 {
			return c
		}

		// Compare the digit run numerically (ignoring leading zeros).
		dStart := i
		for i < len(a) && isDigit(rune(a[i])) {
			i++
		}
		eStart := j
		for j < len(b) && isDigit(rune(b[j])) {
			j++
		}
		if c := compareDigitRun(a[dStart:i], b[eStart:j]); c != 0 {
			return c
		}
	}
	return 0
}

// compareNonDigitRun compares two non-digit runs character by character.
// '~' sorts before anything, including the end of string; letters sort
// before non-letters of the same length class per dpkg's modified ASCII
// order: '~' < end-of-run < all other chars in plain byte order, except
// that letters sort before non-letter, non-'~' characters.
func compareNonDigitRun(a, b string) int {
	la, lb := len(a), len(b)
	n := la
	if lb > n {
		n = lb
	}
	for k := 0; k < n; k++ {
		var ca, cb int
		if k < la {
			ca = order(rune(a[k]))
		} else {
			ca = order(0) // end of string
		}
		if k < lb {
			cb = order(rune(b[k]))
		} else {
			cb = order(0)
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// order returns the dpkg sort weight of a single rune within a non-digit
// run: '~' is lowest, then end-of-string (0), then letters, then all other
// characters by their ASCII value.
func order(r rune) int {
	switch {
	case r == '~':
		return -1
	case r == 0:
		return 0
	case isLetter(r):
		return int(r)
	default:
		return int(r) + 256
	}
}

// compareDigitRun compares two digit runs numerically, treating an empty
// run as zero.
func compareDigitRun(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
func isLetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }

// Pair is a (version string, payload) tuple sorted by its version.
type Pair[T any] struct {
	Version string
	Data    T
}

// Sort sorts pairs by version, descending, non-strict: unparseable
// versions are treated as the minimum possible value rather than erroring.
// The sort is stable, so equal versions preserve their original order.
func Sort[T any](pairs []Pair[T]) []Pair[T] {
	return sortBy(pairs, ParseLoose)
}

// DebSort sorts pairs by version, descending, strict: an unparseable
// version is a programming error in the caller and panics via the
// returned error from Parse being surfaced. Callers that need a recoverable
// path should validate with Parse before calling DebSort.
func DebSort[T any](pairs []Pair[T]) ([]Pair[T], error) {
	parsed := make([]Version, len(pairs))
	for i, p := range pairs {
		v, err := Parse(p.Version)
		if err != nil {
			return nil, fmt.Errorf("debver: deb_sort: %w", err)
		}
		parsed[i] = v
	}
	return stableSortParsed(pairs, parsed), nil
}

// UpstreamSort sorts pairs by version, descending, non-strict, comparing
// each version as though it were "1:V-0" (i.e. ignoring epoch/revision
// noise and comparing pure upstream strings).
func UpstreamSort[T any](pairs []Pair[T]) []Pair[T] {
	return sortBy(pairs, func(s string) Version {
		v, err := WithImpliedRevision(s)
		if err != nil {
			return sentinelMin
		}
		return v
	})
}

func sortBy[T any](pairs []Pair[T], parse func(string) Version) []Pair[T] {
	parsed := make([]Version, len(pairs))
	for i, p := range pairs {
		parsed[i] = parse(p.Version)
	}
	return stableSortParsed(pairs, parsed)
}

// stableSortParsed performs a stable descending insertion sort keyed by the
// pre-parsed versions; the data sets here are small (watch-file candidate
// lists), so an O(n^2) stable sort keeps the tie-break logic obvious.
func stableSortParsed[T any](pairs []Pair[T], parsed []Version) []Pair[T] {
	out := make([]Pair[T], len(pairs))
	copy(out, pairs)
	outParsed := make([]Version, len(parsed))
	copy(outParsed, parsed)

	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && Compare(outParsed[j], outParsed[j-1]) > 0 {
			outParsed[j], outParsed[j-1] = outParsed[j-1], outParsed[j]
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}
