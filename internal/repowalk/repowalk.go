// Package repowalk locates candidate source trees (directories containing
// a debian/watch file) under a root, excluding VCS and patch-queue
// directories, per spec.md §1 "Out of scope (external collaborators)".
package repowalk

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// excludedDirs mirrors the teacher's glob-matcher style (src/lint/glob.go)
// applied to a fixed exclusion set rather than user-configurable globs,
// since the spec names the exclusion set explicitly (".git", ".pc",
// "debian/patches") rather than leaving it open-ended.
var excludedDirs = []string{".git", ".pc", "debian/patches", ".svn"}

// Tree is one discovered candidate source tree.
type Tree struct {
	Root      string // directory containing debian/watch
	WatchFile string // full path to debian/watch
}

// Find walks root looking for debian/watch files, skipping excluded
// directories as it descends.
func Find(root string) ([]Tree, error) {
	var trees []Tree
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			if isExcluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if filepath.ToSlash(rel) == "debian/watch" {
			trees = append(trees, Tree{
				Root:      filepath.Dir(filepath.Dir(path)),
				WatchFile: path,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trees, nil
}

func isExcluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, ex := range excludedDirs {
		if rel == ex || strings.HasSuffix(rel, "/"+ex) {
			return true
		}
	}
	return false
}
