package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"golang.org/x/net/proxy"
)

// Client downloads .torrent files from http(s) URLs into a spool
// directory before they are handed to the session engine.
type Client struct {
	grab     *grab.Client
	spoolDir string
}

// New builds a fetch client. proxyURL may be empty or a
// socks5://host:port address used for all fetches.
func New(spoolDir, proxyURL string) (*Client, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: false},
		Proxy:           http.ProxyFromEnvironment,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		if u.Scheme != "socks5" {
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to build proxy dialer: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		}
		tr.Proxy = nil
	}

	return &Client{
		grab: &grab.Client{
			UserAgent: "bitflood",
			HTTPClient: &http.Client{
				Transport: tr,
				Timeout:   2 * time.Minute,
			},
		},
		spoolDir: spoolDir,
	}, nil
}

// Fetch downloads url into the spool directory and returns the local
// file path.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}

	req, err := grab.NewRequest(c.spoolDir, rawURL)
	if err != nil {
		return "", fmt.Errorf("error building request: %w", err)
	}
	req = req.WithContext(ctx)

	resp := c.grab.Do(req)
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("error fetching %s: %w", rawURL, err)
	}
	return resp.Filename, nil
}

// ValidateURL accepts only http(s) URLs that plausibly point at a
// .torrent file or a torrent endpoint.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", rawURL)
	}
	return nil
}

// Filename derives a spool file name from a URL, falling back when
// the path has none.
func Filename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download.torrent"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "download.torrent"
	}
	if !strings.HasSuffix(name, ".torrent") {
		name += ".torrent"
	}
	return name
}
