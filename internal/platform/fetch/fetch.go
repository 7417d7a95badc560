// Package fetch downloads discovered course documents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/ctxutil"
)

var ErrTooLarge = errors.New("document exceeds size limit")

type Fetched struct {
	Content     []byte
	ContentType string
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Fetched, error)
}

type Config struct {
	MaxBytes int64
	Timeout  time.Duration
	// Header is added to every request, e.g. an LMS session cookie forwarded by the crawler.
	Header http.Header
}

type httpFetcher struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) Fetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &httpFetcher{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (*Fetched, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range f.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrTooLarge)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrTooLarge)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", url)
	}

	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return &Fetched{Content: body, ContentType: ct}, nil
}
