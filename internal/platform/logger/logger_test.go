package logger

import (
	"strings"
	"testing"
)

func TestScrubberMasksSecrets(t *testing.T) {
	s := &scrubber{salt: "pepper"}
	out := s.kvs([]interface{}{
		"crawler_secret", "abc",
		"Cookie", "session=1",
		"course_id", "c-1",
		"user_id", "u-1",
		"dangling",
	})
	if len(out) != 9 {
		t.Fatalf("len=%d", len(out))
	}
	if out[1] != redacted || out[3] != redacted {
		t.Fatalf("secrets not masked: %v", out)
	}
	if out[5] != "c-1" {
		t.Fatalf("course id changed: %v", out[5])
	}
	h, _ := out[7].(string)
	if !strings.HasPrefix(h, "hash:") || h == s.hash("u-2") {
		t.Fatalf("user id hash=%q", h)
	}
	if out[8] != "dangling" {
		t.Fatalf("odd key dropped: %v", out)
	}
}

func TestScrubberNestedAndJWT(t *testing.T) {
	s := &scrubber{}
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1LTEifQ.sig"
	out := s.kvs([]interface{}{"detail", map[string]interface{}{"api_key": "k", "n": 2}, "raw", jwt})
	m := out[1].(map[string]interface{})
	if m["api_key"] != redacted || m["n"] != 2 {
		t.Fatalf("nested=%v", m)
	}
	if out[3] != redacted {
		t.Fatalf("jwt not masked")
	}
}

func TestNilScrubberPassesThrough(t *testing.T) {
	var s *scrubber
	kv := []interface{}{"password", "x"}
	if out := s.kvs(kv); out[1] != "x" {
		t.Fatalf("out=%v", out)
	}
	l := NewNop()
	l.With("secret", "x").Info("ok", "k", "v")
}
