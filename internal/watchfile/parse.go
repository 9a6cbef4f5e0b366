// Package watchfile implements the WatchFile Orchestrator of spec.md §2/§4.8:
// reading the watch file, expanding placeholders, instantiating lines, and
// running them either independently or as a group/checksum composition.
// Grounded on the teacher's freshnessModule.Check dispatch-per-file pattern
// and dependency.FilterUpdateCandidates's classify-then-batch shape
// (src/lint/modules/freshness/module.go, src/dependency/filter.go).
package watchfile

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sofmeright/watchscan/internal/mangle"
	"github.com/sofmeright/watchscan/internal/watchline"
)

// placeholders are expanded verbatim before parsing, per spec.md §3/§6.
var placeholders = map[string]string{
	"@PACKAGE@":      `[\w\-+.]+`,
	"@ANY_VERSION@":  `(?:[-_]?[Vv]?(\d[-+.:~\da-zA-Z]*))`,
	"@ARCHIVE_EXT@":  `(?i)(?:\.(tar\.(xz|bz2|gz|zstd?)|zip|tgz|tbz|txz))`,
	"@SIGNATURE_EXT@": `(?i)(?:\.(tar\.(xz|bz2|gz|zstd?)|zip|tgz|tbz|txz))(?:\.(asc|pgp|gpg|sig|sign))`,
	"@DEB_EXT@":      `(?:[+~](debian|dfsg|ds|deb)(\.)?(\d+)?$)`,
}

// RawLine is one watch line after continuation-joining, placeholder
// expansion, and opts="..." extraction, but before field interpretation.
type RawLine struct {
	OptsSpec    string
	Base        string
	FilePattern string
	LastVersion string
	Action      string
}

// File is a parsed watch file: a format version plus an ordered sequence
// of raw lines, ready for instantiation into watchline.Line values.
type File struct {
	FormatVersion int
	Lines         []RawLine
}

var versionHeaderRe = regexp.MustCompile(`^version\s*=\s*(\d+)\s*$`)
var optsBlockRe = regexp.MustCompile(`^opts\s*=\s*"([^"]*)"\s*(.*)$`)

// Parse reads and parses a debian/watch file.
func Parse(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watchfile: read %s: %w", path, err)
	}
	return ParseBytes(data)
}

// ParseBytes parses watch-file content already read into memory.
func ParseBytes(data []byte) (*File, error) {
	lines, err := joinContinuations(data)
	if err != nil {
		return nil, err
	}

	f := &File{FormatVersion: 4}
	startIdx := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if m := versionHeaderRe.FindStringSubmatch(trimmed); m != nil {
			v, _ := strconv.Atoi(m[1])
			if v < 1 || v > 4 {
				return nil, fmt.Errorf("watchfile: config-error: unsupported format version %d", v)
			}
			f.FormatVersion = v
			startIdx = i + 1
			break
		}
		// No version header found before the first content line: legacy
		// format-1 watch files have no "version=" line at all.
		f.FormatVersion = 1
		startIdx = i
		break
	}

	for _, line := range lines[startIdx:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		raw, err := parseLine(expandPlaceholders(trimmed), f.FormatVersion)
		if err != nil {
			return nil, err
		}
		f.Lines = append(f.Lines, raw)
	}
	return f, nil
}

// joinContinuations splits data into lines and joins any ending in a
// single trailing backslash with the next line. In format >= 4 the
// continuation is left-trimmed (spec.md §3); since format isn't known
// until the header line is seen, joining is done textually first and the
// format-4 left-trim is applied uniformly — it is a no-op for format < 4
// lines that don't rely on leading whitespace.
func joinContinuations(data []byte) ([]string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []string
	var pending strings.Builder
	joining := false

	for scanner.Scan() {
		line := scanner.Text()
		if joining {
			line = strings.TrimLeft(line, " \t")
		}
		if strings.HasSuffix(line, `\`) && !strings.HasSuffix(line, `\\`) {
			pending.WriteString(strings.TrimRight(strings.TrimSuffix(line, `\`), " \t"))
			pending.WriteByte(' ')
			joining = true
			continue
		}
		pending.WriteString(line)
		out = append(out, pending.String())
		pending.Reset()
		joining = false
	}
	if pending.Len() > 0 {
		out = append(out, pending.String())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("watchfile: scan: %w", err)
	}
	return out, nil
}

func expandPlaceholders(line string) string {
	for ph, expansion := range placeholders {
		line = strings.ReplaceAll(line, ph, expansion)
	}
	return line
}

// parseLine splits one (already continuation-joined, placeholder-expanded)
// line into its opts block and fields, per spec.md §4.7 "Parse": format-1
// lines are five whitespace-separated fields with an implicit ftp://
// prefix; format 2-4 lines have a leading opts="..." block then
// base, file-pattern, last-version, action.
func parseLine(line string, formatVersion int) (RawLine, error) {
	optsSpec := ""
	rest := line
	if m := optsBlockRe.FindStringSubmatch(line); m != nil {
		optsSpec = m[1]
		rest = strings.TrimSpace(m[2])
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return RawLine{}, fmt.Errorf("watchfile: parse-error: empty watch line %q", line)
	}

	if formatVersion == 1 {
		if len(fields) < 3 {
			return RawLine{}, fmt.Errorf("watchfile: parse-error: format-1 line needs at least site, dir, pattern: %q", line)
		}
		raw := RawLine{Base: fields[0] + "/" + strings.TrimPrefix(fields[1], "/"), FilePattern: fields[2]}
		if len(fields) > 3 {
			raw.LastVersion = fields[3]
		}
		if len(fields) > 4 {
			raw.Action = fields[4]
		}
		return raw, nil
	}

	raw := RawLine{OptsSpec: optsSpec, Base: fields[0]}
	if len(fields) > 1 {
		raw.FilePattern = fields[1]
	}
	if len(fields) > 2 {
		raw.LastVersion = fields[2]
	}
	if len(fields) > 3 {
		raw.Action = fields[3]
	}
	return raw, nil
}

// ParseOpts parses one line's opts="k1=v1,k2=v2,..." block into
// watchline.Options, per spec.md §3 "Options (enumerated)". Quoted values
// may contain commas (the comma inside the quotes does not split the
// option list), following _examples/original_source's WatchLine.py option
// tokenizer.
func ParseOpts(spec string) (watchline.Options, error) {
	opts := watchline.Options{SearchMode: "html", GitMode: "full", GitExport: "default", PGPMode: watchline.PGPDefault}

	for _, kv := range splitOptsRespectingQuotes(spec) {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		key, val, _ := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"`)

		var err error
		switch key {
		case "pasv":
			opts.Pasv = "yes"
		case "active":
			opts.Pasv = "no"
		case "compression":
			opts.Compression = val
		case "searchmode":
			opts.SearchMode = val
		case "pgpmode":
			opts.PGPMode = watchline.PGPMode(val)
		case "gitmode":
			opts.GitMode = val
		case "gitexport":
			opts.GitExport = val
		case "pretty":
			opts.Pretty = val
		case "date":
			opts.DateFormat = val
		case "decompress":
			opts.Decompress = true
		case "bare":
			opts.Bare = true
		case "repack":
			opts.Repack = true
		case "repacksuffix":
			opts.RepackSuffix = val
		case "component":
			opts.Component = val
		case "ctype":
			opts.CType = val
		case "unzipopt":
			opts.UnzipOpt = val
		case "hrefdecode":
			opts.HrefDecode = val
		case "versionless":
			opts.Versionless = true
		case "uversionmangle":
			opts.UVersionMangle, err = mangle.ParseChain(val)
		case "dversionmangle":
			opts.DVersionMangle, err = mangle.ParseChain(val)
		case "oversionmangle":
			opts.OVersionMangle, err = mangle.ParseChain(val)
		case "dirversionmangle":
			opts.DirVersionMangle, err = mangle.ParseChain(val)
		case "filenamemangle":
			opts.FilenameMangle, err = mangle.ParseChain(val)
		case "pagemangle":
			opts.PageMangle, err = mangle.ParseChain(val)
		case "downloadurlmangle":
			opts.DownloadURLMangle, err = mangle.ParseChain(val)
		case "pgpsigurlmangle":
			opts.PGPSigURLMangle, err = mangle.ParseChain(val)
		case "versionmangle":
			// shorthand: sets both uversionmangle and dversionmangle
			opts.UVersionMangle, err = mangle.ParseChain(val)
			if err == nil {
				opts.DVersionMangle, err = mangle.ParseChain(val)
			}
		default:
			return opts, fmt.Errorf("watchfile: config-error: unrecognized option %q", key)
		}
		if err != nil {
			return opts, fmt.Errorf("watchfile: parse-error: option %s: %w", key, err)
		}
	}
	return opts, nil
}

// splitOptsRespectingQuotes splits spec on top-level commas, ignoring
// commas that fall inside a double-quoted value.
func splitOptsRespectingQuotes(spec string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range spec {
		switch r {
		case '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case ',':
			if inQuotes {
				cur.WriteRune(r)
			} else {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
