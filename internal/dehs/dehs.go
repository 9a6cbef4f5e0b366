// Package dehs emits the DEHS XML status format spec.md §6 describes,
// consumed by release-tracking dashboards. Structurally mirrors the
// teacher's resolveJSON/writeResolveJSON pattern (dependency/artifact.go):
// a frozen field shape marshaled to a file, here via encoding/xml instead
// of encoding/json.
package dehs

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Status is one watch line or component's DEHS status document.
type Status struct {
	XMLName                xml.Name    `xml:"dehs"`
	Package                string      `xml:"package,omitempty"`
	DebianUVersion         string      `xml:"debian-uversion,omitempty"`
	DebianMangledUVersion  string      `xml:"debian-mangled-uversion,omitempty"`
	UpstreamVersion        string      `xml:"upstream-version,omitempty"`
	UpstreamURL            string      `xml:"upstream-url,omitempty"`
	DecodedChecksum        string      `xml:"decoded-checksum,omitempty"`
	Status                 string      `xml:"status,omitempty"`
	Target                 string      `xml:"target,omitempty"`
	TargetPath             string      `xml:"target-path,omitempty"`
	Messages               []string    `xml:"messages,omitempty"`
	Warnings               []string    `xml:"warnings,omitempty"`
	Errors                 []string    `xml:"errors,omitempty"`
	Components             []Component `xml:"component,omitempty"`
}

// Component is one "<component id=\"NAME\">" block for group/checksum
// watch files.
type Component struct {
	ID              string `xml:"id,attr"`
	UpstreamVersion string `xml:"upstream-version,omitempty"`
	UpstreamURL     string `xml:"upstream-url,omitempty"`
	Status          string `xml:"status,omitempty"`
}

// Write marshals s as indented XML with the standard header, matching the
// field set and escaping rules of spec.md §6 (&, <, > escaped — the
// default behavior of encoding/xml, so no custom escaping is written).
func Write(w io.Writer, s Status) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("dehs: write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("dehs: encode: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
