package watchline

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Parse implements the Parse transition of spec.md §4.7: derives
// (site, basedir) from the base URL, and for format-1 lines converts the
// shell-glob file pattern into a regex (the v1 "implicit ftp:// prefix and
// shell-glob to regex conversion" spec.md §4.1/§9 describes).
func (l *Line) Parse() error {
	base := l.RawBase
	filePattern := l.RawFilePattern

	if l.FormatVersion == 1 {
		if !strings.Contains(base, "://") {
			base = "ftp://" + base
		}
		filePattern = globToRegex(filePattern)
	}

	u, err := url.Parse(base)
	if err != nil {
		l.Result.fail(fmt.Sprintf("parse-error: invalid base URL %q: %v", base, err))
		return fmt.Errorf("watchline: parse-error: %w", err)
	}

	site := u.Scheme + "://" + u.Host
	baseDir := u.Path
	if idx := strings.LastIndexByte(baseDir, '/'); idx >= 0 {
		baseDir = baseDir[:idx+1]
	}

	pattern, err := regexp.Compile(filePattern)
	if err != nil {
		l.Result.fail(fmt.Sprintf("parse-error: invalid file pattern %q: %v", filePattern, err))
		return fmt.Errorf("watchline: parse-error: %w", err)
	}

	l.Result.Parse = ParseResult{
		Base:        base,
		FilePattern: filePattern,
		Pattern:     pattern,
		Site:        site,
		BaseDir:     baseDir,
		LastVersion: l.RawLastVersion,
		Action:      l.RawAction,
	}
	return nil
}

// globToRegex converts a shell glob (format-1 file patterns) into an
// equivalent regex: "*" -> ".*", "?" -> ".", "." escaped, and the whole
// thing anchored.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('$')
	return b.String()
}
