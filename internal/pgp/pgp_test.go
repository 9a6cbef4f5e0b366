package pgp

import (
	"bytes"
	"context"
	"testing"
)

func TestGitTagSignatureSplit(t *testing.T) {
	tag := []byte("object abcdef\ntype commit\ntag v1.0\ntagger Foo <foo@example.org>\n\nv1.0 release\n-----BEGIN PGP SIGNATURE-----\n\nAAAA\n-----END PGP SIGNATURE-----\n")
	const marker = "-----BEGIN PGP SIGNATURE-----"
	idx := bytes.Index(tag, []byte(marker))
	if idx < 0 {
		t.Fatalf("expected to find signature marker")
	}
	message := tag[:idx]
	if bytes.Contains(message, []byte(marker)) {
		t.Fatalf("message should not contain the signature marker")
	}
	if !bytes.HasPrefix(tag[idx:], []byte(marker)) {
		t.Fatalf("signature slice should start at the marker")
	}
}

func TestProbeSiblingSignature(t *testing.T) {
	calls := []string{}
	head := func(ctx context.Context, url string) (bool, error) {
		calls = append(calls, url)
		return url == "https://example.org/foo-1.0.tar.gz.sig", nil
	}
	got, found, err := ProbeSiblingSignature(context.Background(), "https://example.org/foo-1.0.tar.gz", head)
	if err != nil {
		t.Fatalf("ProbeSiblingSignature: %v", err)
	}
	if !found {
		t.Fatalf("expected a sibling signature to be found")
	}
	if got != "https://example.org/foo-1.0.tar.gz.sig" {
		t.Fatalf("unexpected signature URL: %q", got)
	}
	if len(calls) != 4 {
		t.Fatalf("expected probing to stop at .sig (4th extension), got %d calls", len(calls))
	}
}
