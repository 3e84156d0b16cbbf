// Package assets fetches interpreter scripts, dependency modules and
// bootstrap resources from a base location.
//
// The base is either an http(s) URL, a file:// URL or a plain directory.
// Every requested path is appended to the base verbatim, so "/texcount.pl"
// under "https://cdn.example.com/perl" resolves to
// "https://cdn.example.com/perl/texcount.pl".
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/caffeineduck/texbridge/vfs"
)

const (
	DefaultMaxSize        = 64 << 20 // 64MB
	DefaultRequestTimeout = 30 * time.Second
	DefaultConcurrency    = 4
)

var ErrFileLoad = errors.New("file load failed")

type Loader struct {
	base        string
	client      *http.Client
	maxSize     int64
	concurrency int
	log         zerolog.Logger
}

type Option func(*Loader)

// WithHTTPClient replaces the client used for http(s) bases.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		l.client = c
	}
}

// WithMaxSize caps the size of a single fetched file.
func WithMaxSize(n int64) Option {
	return func(l *Loader) {
		l.maxSize = n
	}
}

// WithConcurrency bounds parallel fetches in FetchAll.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		l.concurrency = n
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

func NewLoader(base string, opts ...Option) *Loader {
	l := &Loader{
		base:        strings.TrimSuffix(base, "/"),
		client:      &http.Client{Timeout: DefaultRequestTimeout},
		maxSize:     DefaultMaxSize,
		concurrency: DefaultConcurrency,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Base returns the location paths are resolved against.
func (l *Loader) Base() string {
	return l.base
}

// Fetch returns the text content of path under the base.
func (l *Loader) Fetch(ctx context.Context, path string) (string, error) {
	data, err := l.FetchBytes(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Loader) FetchBytes(ctx context.Context, path string) ([]byte, error) {
	location := l.base + "/" + strings.TrimPrefix(path, "/")
	l.log.Debug().Str("location", location).Msg("fetching file")

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		data, err = l.fetchHTTP(ctx, location)
	case strings.HasPrefix(location, "file://"):
		u, perr := url.Parse(location)
		if perr != nil {
			return nil, fmt.Errorf("%w: load file %s: %v", ErrFileLoad, path, perr)
		}
		data, err = l.readFile(u.Path)
	default:
		data, err = l.readFile(filepath.FromSlash(location))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load file %s: %v", ErrFileLoad, path, err)
	}
	return data, nil
}

// FetchAll fetches every path concurrently. The returned files keep the
// order of paths and use the requested path as their virtual path. Any
// single failure fails the whole call.
func (l *Loader) FetchAll(ctx context.Context, paths []string) ([]vfs.File, error) {
	files := make([]vfs.File, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if l.concurrency > 0 {
		g.SetLimit(l.concurrency)
	}
	for i, p := range paths {
		g.Go(func() error {
			content, err := l.Fetch(ctx, p)
			if err != nil {
				return err
			}
			files[i] = vfs.File{Path: p, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (l *Loader) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("exceeds max size of %d bytes", l.maxSize)
	}
	return data, nil
}

func (l *Loader) readFile(name string) ([]byte, error) {
	info, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", name)
	}
	if info.Size() > l.maxSize {
		return nil, fmt.Errorf("exceeds max size of %d bytes", l.maxSize)
	}
	return os.ReadFile(name)
}
