package download

import (
	"context"
	"fmt"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
)

// ftpRetrieve downloads rawURL (an ftp:// URL) to dest over a plain
// net/textproto control connection, issuing USER/PASS/TYPE I/PASV/RETR.
// No corpus library wraps an FTP client (spec.md §9's "external tool
// dependence" note covers git/svn/gpg, not FTP transport), so this is a
// justified direct use of net/textproto, matching the style already
// established in internal/search/ftp for listings.
func ftpRetrieve(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("download: parse URL %q: %w", rawURL, err)
	}

	host := u.Host
	if u.Port() == "" {
		host = u.Host + ":21"
	}
	conn, err := textproto.Dial("tcp", host)
	if err != nil {
		return fmt.Errorf("download: network-error: dial %s: %w", host, err)
	}
	defer conn.Close()

	if _, _, err := conn.ReadResponse(220); err != nil {
		return fmt.Errorf("download: network-error: ftp banner: %w", err)
	}

	user := "anonymous"
	pass := "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	if err := conn.PrintfLine("USER %s", user); err != nil {
		return err
	}
	code, _, err := conn.ReadResponse(0)
	if err != nil {
		return fmt.Errorf("download: network-error: ftp USER: %w", err)
	}
	if code == 331 {
		if err := conn.PrintfLine("PASS %s", pass); err != nil {
			return err
		}
		if _, _, err := conn.ReadResponse(230); err != nil {
			return fmt.Errorf("download: network-error: ftp PASS: %w", err)
		}
	}

	if err := conn.PrintfLine("TYPE I"); err != nil {
		return err
	}
	if _, _, err := conn.ReadResponse(200); err != nil {
		return fmt.Errorf("download: network-error: ftp TYPE I: %w", err)
	}

	dataConn, err := passiveDataConn(conn)
	if err != nil {
		return fmt.Errorf("download: network-error: ftp PASV: %w", err)
	}
	defer dataConn.Close()

	if err := conn.PrintfLine("RETR %s", u.Path); err != nil {
		return err
	}
	if _, _, err := conn.ReadResponse(150); err != nil {
		return fmt.Errorf("download: network-error: ftp RETR %s: %w", u.Path, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("download: filesystem-error: mkdir %s: %w", filepath.Dir(dest), err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("download: filesystem-error: create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := copyWithContext(ctx, out, dataConn); err != nil {
		return fmt.Errorf("download: network-error: ftp data transfer: %w", err)
	}
	dataConn.Close()

	if _, _, err := conn.ReadResponse(226); err != nil {
		return fmt.Errorf("download: network-error: ftp transfer complete: %w", err)
	}
	return nil
}
