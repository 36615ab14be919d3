// Package fetch downloads remote documents so engines can open them as
// local files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultUserAgent = "folio/0.1"
	requestTimeout   = 60 * time.Second
	// maxDocumentSize bounds a single download.
	maxDocumentSize = 512 << 20
)

// ErrTooLarge reports a body over the size limit.
var ErrTooLarge = errors.New("document too large")

// Client downloads http and https documents.
type Client struct {
	http      *http.Client
	userAgent string
	dir       string
	maxBytes  int64
	logger    *slog.Logger
}

// Options configure a Client. Zero values use defaults.
type Options struct {
	HTTP      *http.Client
	UserAgent string
	// Dir holds downloaded files; empty means os.TempDir.
	Dir      string
	MaxBytes int64
	Logger   *slog.Logger
}

// NewClient builds a Client.
func NewClient(opts Options) *Client {
	c := &Client{
		http:      opts.HTTP,
		userAgent: opts.UserAgent,
		dir:       opts.Dir,
		maxBytes:  opts.MaxBytes,
		logger:    opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: requestTimeout}
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.maxBytes <= 0 {
		c.maxBytes = maxDocumentSize
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("component", "fetch")
	return c
}

// IsRemote reports whether arg names an http or https document.
func IsRemote(arg string) bool {
	u, err := url.Parse(strings.TrimSpace(arg))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Download fetches rawURL into a new file and returns its path. The caller
// owns the file and removes it when done.
func (c *Client) Download(ctx context.Context, rawURL string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	if !IsRemote(rawURL) {
		return "", fmt.Errorf("download %q: not an http(s) url", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("download %s returned status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > c.maxBytes {
		return "", fmt.Errorf("download %s: %w", rawURL, ErrTooLarge)
	}

	f, err := os.CreateTemp(c.dir, "folio-*"+extension(resp))
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	name := f.Name()
	n, err := io.Copy(f, io.LimitReader(resp.Body, c.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > c.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	c.logger.Info("document downloaded", "url", rawURL, "bytes", n, "path", name)
	return name, nil
}

// extension keeps the format hint engines rely on: the URL path's extension,
// or one derived from Content-Type.
func extension(resp *http.Response) string {
	if ext := path.Ext(resp.Request.URL.Path); ext != "" && len(ext) <= 6 {
		return filepath.Clean(ext)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mediaType {
	case "application/pdf":
		return ".pdf"
	case "text/markdown":
		return ".md"
	case "text/html":
		return ".html"
	case "text/plain":
		return ".txt"
	}
	return ""
}
