package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
)

// passiveDataConn issues PASV and dials the (host, port) it returns,
// decoding the "h1,h2,h3,h4,p1,p2" reply format RFC 959 defines.
func passiveDataConn(conn *textproto.Conn) (net.Conn, error) {
	if err := conn.PrintfLine("PASV"); err != nil {
		return nil, err
	}
	_, msg, err := conn.ReadResponse(227)
	if err != nil {
		return nil, err
	}

	start := strings.IndexByte(msg, '(')
	end := strings.IndexByte(msg, ')')
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("ftp: malformed PASV reply %q", msg)
	}
	parts := strings.Split(msg[start+1:end], ",")
	if len(parts) != 6 {
		return nil, fmt.Errorf("ftp: malformed PASV reply %q", msg)
	}
	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("ftp: malformed PASV reply %q: %w", msg, err)
		}
		nums[i] = n
	}
	host := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	port := nums[4]*256 + nums[5]

	return net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
}

// copyWithContext copies src to dst, aborting early if ctx is canceled.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	done := make(chan struct{})
	var n int64
	var err error
	go func() {
		n, err = io.Copy(dst, src)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return n, ctx.Err()
	case <-done:
		return n, err
	}
}
