// Package fetch provides the redirect-tracking HTTP client shared by every
// protocol searcher: it records the full chain of URLs a request traversed,
// strips the Referer header when crossing into a configured set of
// referrer-sensitive host suffixes, and applies a global timeout, a custom
// User-Agent, and per-host-prefix custom headers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Client is a redirect-tracking HTTP client. The zero value is not usable;
// construct one with New.
type Client struct {
	http      *http.Client
	userAgent string
	headers   []headerRule // ordered longest-prefix-first
	stripRef  []string     // host suffixes that get Referer stripped

	chain []string // redirections() state, reset by clear_redirections
}

// headerRule is one "URL-PREFIX@HEADER-NAME: VALUE" custom header entry.
type headerRule struct {
	prefix string
	name   string
	value  string
}

// Options configures a new Client.
type Options struct {
	Timeout          time.Duration
	UserAgent        string
	ReferrerStripSet []string    // host suffixes, e.g. "github.com"
	Headers          []HeaderSpec
}

// HeaderSpec is one per-host custom header, as written in config under the
// key "URL-PREFIX@HEADER-NAME".
type HeaderSpec struct {
	URLPrefix  string
	HeaderName string
	Value      string
}

// New builds a Client from Options, defaulting Timeout to 20s per the
// config default and UserAgent to a watchscan identifier when unset.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "Debian watchscan"
	}
	c := &Client{
		userAgent: ua,
		stripRef:  append([]string(nil), opts.ReferrerStripSet...),
	}
	for _, h := range opts.Headers {
		c.headers = append(c.headers, headerRule{prefix: h.URLPrefix, name: h.HeaderName, value: h.Value})
	}
	c.http = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			c.chain = append(c.chain, req.URL.String())
			if c.shouldStripReferer(req.URL) {
				req.Header.Del("Referer")
			}
			c.applyHeaders(req)
			if len(via) >= 20 {
				return fmt.Errorf("fetch: stopped after 20 redirects")
			}
			return nil
		},
	}
	return c
}

// Redirections returns the chain of URLs visited during the most recent
// GET request, in order, starting with the initial request URL followed by
// each Location target encountered.
func (c *Client) Redirections() []string {
	out := make([]string, len(c.chain))
	copy(out, c.chain)
	return out
}

// ClearRedirections resets the recorded chain.
func (c *Client) ClearRedirections() {
	c.chain = nil
}

// shouldStripReferer reports whether req's Referer should be removed based
// on the configured suffix list, matching via the public suffix list so
// "codeload.github.com" matches a configured "github.com" entry.
func (c *Client) shouldStripReferer(u *url.URL) bool {
	host := u.Hostname()
	for _, suffix := range c.stripRef {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
		if etld, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			if sfxETLD, err2 := publicsuffix.EffectiveTLDPlusOne(suffix); err2 == nil && etld == sfxETLD {
				return true
			}
		}
	}
	return false
}

// applyHeaders applies every configured header whose URLPrefix is a prefix
// of req.URL.String(), longest prefix last so it wins.
func (c *Client) applyHeaders(req *http.Request) {
	full := req.URL.String()
	best := -1
	var bestRule headerRule
	for _, h := range c.headers {
		if strings.HasPrefix(full, h.prefix) && len(h.prefix) > best {
			best = len(h.prefix)
			bestRule = h
		}
	}
	if best >= 0 {
		req.Header.Set(bestRule.name, bestRule.value)
	}
}

// Get issues a GET request, applying the configured User-Agent and custom
// headers, and returns the response. Callers must close the body. Per
// spec.md §4.3, the initial URL is recorded as the start of the
// redirection chain before the request is issued.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	c.chain = append(c.chain, rawURL)
	return c.do(ctx, http.MethodGet, rawURL)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, rawURL)
}

func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, rawURL, err)
	}
	return resp, nil
}

// GetBody issues a GET and returns the body bytes, the final response URL
// (after any redirects), and an error for non-2xx statuses.
func (c *Client) GetBody(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch: GET %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: read %s: %w", rawURL, err)
	}
	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return data, final, nil
}

// HeadExists issues a HEAD and reports whether the response was a 2xx.
func (c *Client) HeadExists(ctx context.Context, rawURL string) (bool, error) {
	resp, err := c.Head(ctx, rawURL)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
