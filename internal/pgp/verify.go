package pgp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// VerifyDetached verifies sigFile as a detached signature over file,
// using "gpgv --keyring K SIG FILE" (spec.md §4.5 "Detached").
func (v *Verifier) VerifyDetached(ctx context.Context, sigFile, file string) error {
	cmd := exec.CommandContext(ctx, v.GPGVPath, "--keyring", v.keyringFile, sigFile, file)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pgp: verify-error: detached signature check failed: %w: %s", err, out)
	}
	return nil
}

// VerifySelf verifies file as a clear-signed document, extracting the
// payload to payloadOut via "gpgv -o PAYLOAD FILE" (spec.md §4.5 "Self").
func (v *Verifier) VerifySelf(ctx context.Context, file, payloadOut string) error {
	cmd := exec.CommandContext(ctx, v.GPGVPath, "--keyring", v.keyringFile, "-o", payloadOut, file)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pgp: verify-error: self-signed check failed: %w: %s", err, out)
	}
	return nil
}

// VerifyGitTag fetches the tag object via "git cat-file -p", splits it on
// the first "-----BEGIN PGP SIGNATURE-----" boundary into message and
// signature, writes both into an ephemeral directory, and verifies them
// with gpgv (spec.md §4.5 "Git tag").
func (v *Verifier) VerifyGitTag(ctx context.Context, repoDir, tagRef string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", repoDir, "cat-file", "-p", tagRef)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("pgp: git cat-file -p %s: %w", tagRef, err)
	}

	const marker = "-----BEGIN PGP SIGNATURE-----"
	idx := bytes.Index(out, []byte(marker))
	if idx < 0 {
		return fmt.Errorf("pgp: verify-error: tag object %s has no PGP signature", tagRef)
	}
	message := out[:idx]
	signature := out[idx:]

	dir, err := os.MkdirTemp("", "watchscan-gittag-*")
	if err != nil {
		return fmt.Errorf("pgp: create ephemeral dir: %w", err)
	}
	defer os.RemoveAll(dir)

	msgPath := filepath.Join(dir, "message")
	sigPath := filepath.Join(dir, "signature.asc")
	if err := os.WriteFile(msgPath, message, 0o600); err != nil {
		return fmt.Errorf("pgp: write tag message: %w", err)
	}
	if err := os.WriteFile(sigPath, signature, 0o600); err != nil {
		return fmt.Errorf("pgp: write tag signature: %w", err)
	}

	return v.VerifyDetached(ctx, sigPath, msgPath)
}

// ProbeSiblingSignature checks URL for a conventional sibling signature by
// trying each of the extensions in order with a HEAD request, returning
// the first that exists. head is injected by the caller (internal/fetch's
// Client.HeadExists) so this package stays free of transport concerns.
func ProbeSiblingSignature(ctx context.Context, url string, head func(ctx context.Context, url string) (bool, error)) (string, bool, error) {
	for _, ext := range []string{".asc", ".gpg", ".pgp", ".sig", ".sign"} {
		candidate := url + ext
		ok, err := head(ctx, candidate)
		if err != nil {
			continue
		}
		if ok {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

// DeriveSignatureURL strips a known archive extension from base's
// basename-worth of trailing extensions and appends ext, used when no
// sibling probe applies (pgpmode=mangle derives via pgpsigurlmangle
// instead, which is applied by the watchline pipeline, not here).
func DeriveSignatureURL(url, ext string) string {
	return strings.TrimRight(url, "/") + ext
}
