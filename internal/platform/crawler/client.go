// Package crawler starts course crawls on the external crawler service. Results come
// back asynchronously through the internal callback routes.
package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/ctxutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

var (
	ErrUnreachable = errors.New("crawler unreachable")
	ErrRejected    = errors.New("crawler rejected request")
)

type Request struct {
	CourseID    string `json:"courseId"`
	SourceURL   string `json:"sourceUrl"`
	Rescan      bool   `json:"rescan"`
	RequestedBy string `json:"requestedBy,omitempty"`
	CallbackURL string `json:"callbackUrl"`
}

type Client interface {
	Start(ctx context.Context, req Request) error
}

type Config struct {
	URL         string
	Secret      string
	CallbackURL string
	Timeout     time.Duration
}

type httpClient struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" {
		return nil, fmt.Errorf("CRAWLER_URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &httpClient{
		log:  log.With("service", "CrawlerClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// CallbackBase is where the crawler reports progress for a course.
func CallbackBase(base, courseID string) string {
	return strings.TrimRight(base, "/") + "/internal/crawls/" + courseID
}

func (c *httpClient) Start(ctx context.Context, req Request) error {
	if req.CallbackURL == "" && c.cfg.CallbackURL != "" {
		req.CallbackURL = CallbackBase(c.cfg.CallbackURL, req.CourseID)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	hreq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.cfg.URL+"/crawls", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	hreq.Header.Set("Content-Type", "application/json")
	ctxutil.Propagate(ctx, hreq)
	if c.cfg.Secret != "" {
		hreq.Header.Set("X-Crawler-Secret", c.cfg.Secret)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.log.Debug("crawl started", "course_id", req.CourseID, "rescan", req.Rescan)
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=%d body=%q", ErrUnreachable, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("%w: status=%d body=%q", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
