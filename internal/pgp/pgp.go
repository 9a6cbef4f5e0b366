// Package pgp wraps the external gpgv/gpg binaries to verify detached,
// self-contained (clearsigned), and Git-tag signatures, per spec.md §4.5.
// It never synthesizes or checks signatures itself; every verification
// decision is made by the external tool, and a non-zero exit is fatal.
package pgp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Verifier locates gpgv/gpg and verifies signatures against a keyring.
type Verifier struct {
	GPGVPath string // resolved path to gpgv (v2 preferred)
	GPGPath  string // resolved path to gpg, used only for enarmor/dearmor

	keyringDir  string // ephemeral GNUPGHOME holding the dearmored keyring
	keyringFile string // dearmored keyring file gpgv reads with --keyring
}

// Probe locates gpgv and gpg on PATH. Per spec.md §9 the core probes for
// required external binaries at startup rather than failing mid-pipeline.
func Probe() (*Verifier, error) {
	gpgv, err := exec.LookPath("gpgv")
	if err != nil {
		return nil, fmt.Errorf("pgp: tool-missing: gpgv not found on PATH: %w", err)
	}
	gpg, err := exec.LookPath("gpg")
	if err != nil {
		return nil, fmt.Errorf("pgp: tool-missing: gpg not found on PATH: %w", err)
	}
	return &Verifier{GPGVPath: gpgv, GPGPath: gpg}, nil
}

// LoadKeyring prepares keyringPath for use with gpgv. If keyringPath is
// already armored ("-----BEGIN PGP PUBLIC KEY BLOCK-----"), it is used
// as-is. If it is a legacy binary keyring, it is enarmored in place (the
// binary original preserved as "<name>.backup") and a warning is implied
// by the returned bool. Either way the armored keyring is dearmored into
// a fresh ephemeral GNUPGHOME for gpgv invocations.
func (v *Verifier) LoadKeyring(ctx context.Context, keyringPath string) (enarmored bool, err error) {
	data, err := os.ReadFile(keyringPath)
	if err != nil {
		return false, fmt.Errorf("pgp: read keyring %s: %w", keyringPath, err)
	}

	armoredPath := keyringPath
	if !bytes.Contains(data[:min(len(data), 64)], []byte("-----BEGIN PGP")) {
		backup := keyringPath + ".backup"
		if err := os.Rename(keyringPath, backup); err != nil {
			return false, fmt.Errorf("pgp: backup legacy keyring: %w", err)
		}
		cmd := exec.CommandContext(ctx, v.GPGPath, "--enarmor", "--output", keyringPath, backup)
		if out, err := cmd.CombinedOutput(); err != nil {
			return false, fmt.Errorf("pgp: enarmor keyring: %w: %s", err, out)
		}
		enarmored = true
	}

	dir, err := os.MkdirTemp("", "watchscan-gnupghome-*")
	if err != nil {
		return enarmored, fmt.Errorf("pgp: create ephemeral GNUPGHOME: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		os.RemoveAll(dir)
		return enarmored, err
	}

	binKeyring := filepath.Join(dir, "keyring.gpg")
	cmd := exec.CommandContext(ctx, v.GPGPath, "--homedir", dir, "--dearmor", "--output", binKeyring, armoredPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return enarmored, fmt.Errorf("pgp: dearmor keyring: %w: %s", err, out)
	}

	v.keyringDir = dir
	v.keyringFile = binKeyring
	return enarmored, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Close releases the ephemeral GNUPGHOME.
func (v *Verifier) Close() error {
	if v.keyringDir == "" {
		return nil
	}
	return os.RemoveAll(v.keyringDir)
}
