package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
)

// tarDirectory archives srcDir into destTar as an uncompressed tarball
// with every entry prefixed "pkg-ver/", mirroring what "git archive
// --prefix=pkg-ver/" produces for the git transport so downstream repack
// handling is uniform across protocols.
func tarDirectory(srcDir, destTar, pkg, ver string) error {
	ctx := context.Background()
	prefix := fmt.Sprintf("%s-%s", pkg, ver)

	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{srcDir: prefix})
	if err != nil {
		return fmt.Errorf("download: filesystem-error: walk %s: %w", srcDir, err)
	}

	if err := os.MkdirAll(filepath.Dir(destTar), 0o755); err != nil {
		return fmt.Errorf("download: filesystem-error: mkdir %s: %w", filepath.Dir(destTar), err)
	}
	out, err := os.Create(destTar)
	if err != nil {
		return fmt.Errorf("download: filesystem-error: create %s: %w", destTar, err)
	}
	defer out.Close()

	format := archives.Tar{}
	if err := format.Archive(ctx, out, files); err != nil {
		return fmt.Errorf("download: filesystem-error: tar %s: %w", srcDir, err)
	}
	return nil
}
