package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

func TestStart(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crawls" || r.Header.Get("X-Crawler-Secret") != "s3cret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(logger.NewNop(), Config{URL: srv.URL, Secret: "s3cret", CallbackURL: "http://svc"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Start(context.Background(), Request{CourseID: "42", SourceURL: "https://lms/courses/42"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got.CourseID != "42" || got.CallbackURL != "http://svc/internal/crawls/42" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestStartClassifiesFailures(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	c, _ := NewClient(logger.NewNop(), Config{URL: srv.URL})

	if err := c.Start(context.Background(), Request{CourseID: "1"}); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("5xx: expected ErrUnreachable, got %v", err)
	}
	status = http.StatusBadRequest
	if err := c.Start(context.Background(), Request{CourseID: "1"}); !errors.Is(err, ErrRejected) {
		t.Fatalf("4xx: expected ErrRejected, got %v", err)
	}
}
