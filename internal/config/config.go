// Package config loads watchscan's configuration file (devscript.yml by
// default), following the teacher's strict-decode Load/LoadWithWarnings
// split (src/config/config.go).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".watchscan.yml"

// Config holds every config key spec.md §6 enumerates.
type Config struct {
	Bare                  bool              `yaml:"bare"`
	CheckDirnameLevel     int               `yaml:"check-dirname-level"` // 0,1,2
	CheckDirnameRegex     string            `yaml:"check-dirname-regex"` // "PACKAGE"-substituting
	Compression           string            `yaml:"compression"`        // gzip,bzip2,lzma,xz,zip,zst,default
	CopyrightFile         string            `yaml:"copyright-file"`
	DestDir               string            `yaml:"destdir"`
	Download              int               `yaml:"download"` // 0,1,2,3
	DownloadCurrentVer    bool              `yaml:"download-current-version"`
	DownloadDebVersion    bool              `yaml:"download-debversion"`
	DownloadVersion       string            `yaml:"download-version"`
	Exclusion             bool              `yaml:"exclusion"`
	HTTPHeader            map[string]string `yaml:"http-header"`
	Log                   bool              `yaml:"log"`
	Package               string            `yaml:"package"`
	Pasv                  string            `yaml:"pasv"` // yes,no,default
	Repack                bool              `yaml:"repack"`
	Safe                  bool              `yaml:"safe"`
	Signature             int               `yaml:"signature"` // -1,0,1
	Symlink               string            `yaml:"symlink"`   // yes,no,symlink,rename,copy
	Timeout               int               `yaml:"timeout"`   // default 20
	UserAgent             string            `yaml:"user-agent"`
	UVersion              string            `yaml:"uversion"`
	VCSExportUncompressed bool              `yaml:"vcs-export-uncompressed"`
	WatchFile             string            `yaml:"watchfile"`
}

// Load reads configuration from a YAML file. If path is empty, it tries
// the default file. Returns sensible defaults if the file doesn't exist.
// Discards validation warnings; use LoadWithWarnings for full diagnostics.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithWarnings(path)
	return cfg, err
}

// LoadWithWarnings reads configuration from a YAML file and returns
// validation warnings alongside the config.
func LoadWithWarnings(path string) (*Config, []string, error) {
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults(), nil, nil
		}
		return nil, nil, err
	}

	cfg := defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	warnings := validate(cfg)
	return cfg, warnings, nil
}

func defaults() *Config {
	return &Config{
		CheckDirnameLevel: 1,
		Compression:       "default",
		Download:          1,
		Pasv:              "default",
		Signature:         0,
		Symlink:           "no",
		Timeout:           20,
	}
}

// validate checks enumerated fields and returns warnings for values the
// spec names as recognized but this build treats permissively (e.g. an
// out-of-range level falls back to 1 rather than failing the whole load).
func validate(cfg *Config) []string {
	var warnings []string
	if cfg.CheckDirnameLevel < 0 || cfg.CheckDirnameLevel > 2 {
		warnings = append(warnings, fmt.Sprintf("check-dirname-level %d out of range 0-2, using 1", cfg.CheckDirnameLevel))
		cfg.CheckDirnameLevel = 1
	}
	if cfg.Download < 0 || cfg.Download > 3 {
		warnings = append(warnings, fmt.Sprintf("download %d out of range 0-3, using 1", cfg.Download))
		cfg.Download = 1
	}
	if cfg.Signature < -1 || cfg.Signature > 1 {
		warnings = append(warnings, fmt.Sprintf("signature %d out of range -1-1, using 0", cfg.Signature))
		cfg.Signature = 0
	}
	switch cfg.Pasv {
	case "yes", "no", "default":
	default:
		warnings = append(warnings, fmt.Sprintf("unrecognized pasv value %q, using default", cfg.Pasv))
		cfg.Pasv = "default"
	}
	return warnings
}
