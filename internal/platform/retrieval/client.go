// Package retrieval is the HTTP client for the external per-course retrieval store:
// store creation, document upload and grounded question answering.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/ctxutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

type Client interface {
	// CreateStore is idempotent per courseKey: a repeat call returns the existing
	// store with AlreadyExists set.
	CreateStore(ctx context.Context, courseKey, displayName string) (Store, error)
	UploadDocument(ctx context.Context, storeID string, doc Document) (Uploaded, error)
	Query(ctx context.Context, storeID string, q QueryRequest) (*Answer, error)
}

type Store struct {
	ID            string `json:"store_id"`
	DisplayName   string `json:"display_name"`
	AlreadyExists bool   `json:"already_exists"`
}

type Document struct {
	Name        string            `json:"name"`
	ContentType string            `json:"content_type"`
	SourceURL   string            `json:"source_url,omitempty"`
	Content     []byte            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Uploaded struct {
	DocumentID string `json:"document_id"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type QueryRequest struct {
	Question string `json:"question"`
	History  []Turn `json:"history,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

type Citation struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

type Answer struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("RETRIEVAL_URL is required")
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid RETRIEVAL_URL=%q; expected absolute URL", c.URL)
	}
	return nil
}

type httpClient struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := &httpClient{
		log:     log.With("service", "RetrievalClient"),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	log.Info("Retrieval client configured", "url", c.baseURL)
	return c, nil
}

func (c *httpClient) CreateStore(ctx context.Context, courseKey, displayName string) (Store, error) {
	const op = "create_store"
	courseKey = strings.TrimSpace(courseKey)
	if courseKey == "" {
		return Store{}, opErr(op, OperationErrorValidation, "course key required", nil)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Store{}, opErr(op, OperationErrorValidation, "display name required", nil)
	}
	body := map[string]any{"course_key": courseKey, "display_name": displayName}
	var out Store
	if err := c.doJSON(ctx, op, http.MethodPost, "/v1/stores", body, &out); err != nil {
		return Store{}, err
	}
	if out.ID == "" {
		return Store{}, opErr(op, OperationErrorDecodeFailed, "response missing store_id", nil)
	}
	if out.DisplayName == "" {
		out.DisplayName = displayName
	}
	return out, nil
}

func (c *httpClient) UploadDocument(ctx context.Context, storeID string, doc Document) (Uploaded, error) {
	const op = "upload_document"
	if storeID == "" {
		return Uploaded{}, opErr(op, OperationErrorValidation, "store id required", nil)
	}
	if len(doc.Content) == 0 {
		return Uploaded{}, opErr(op, OperationErrorValidation, fmt.Sprintf("document %q is empty", doc.Name), nil)
	}
	var out Uploaded
	path := "/v1/stores/" + url.PathEscape(storeID) + "/documents"
	if err := c.doJSON(ctx, op, http.MethodPost, path, doc, &out); err != nil {
		return Uploaded{}, err
	}
	if out.DocumentID == "" {
		return Uploaded{}, opErr(op, OperationErrorDecodeFailed, "response missing document_id", nil)
	}
	return out, nil
}

func (c *httpClient) Query(ctx context.Context, storeID string, q QueryRequest) (*Answer, error) {
	const op = "query"
	if storeID == "" {
		return nil, opErr(op, OperationErrorValidation, "store id required", nil)
	}
	if strings.TrimSpace(q.Question) == "" {
		return nil, opErr(op, OperationErrorValidation, "question required", nil)
	}
	if q.TopK <= 0 {
		q.TopK = 5
	}
	var out Answer
	path := "/v1/stores/" + url.PathEscape(storeID) + "/query"
	if err := c.doJSON(ctx, op, http.MethodPost, path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	ctxutil.Propagate(ctx, req)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "retrieval request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &OperationError{
			Code:       OperationErrorRejected,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("http status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode response failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}
