package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/ctxutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCorrelateKeepsInboundRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Correlate())
	var seen *ctxutil.RequestInfo
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetRequestInfo(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(ctxutil.HeaderRequestID, "req-1")
	rec := serve(r, req)

	if rec.Header().Get(ctxutil.HeaderRequestID) != "req-1" {
		t.Fatalf("request id header=%q", rec.Header().Get(ctxutil.HeaderRequestID))
	}
	if seen == nil || seen.RequestID != "req-1" || seen.TraceID == "" {
		t.Fatalf("request info=%+v", seen)
	}

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get(ctxutil.HeaderRequestID) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestRequireCrawlerSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/cb", RequireCrawlerSecret("shh"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := map[string]int{"": http.StatusUnauthorized, "nope": http.StatusUnauthorized, "shh": http.StatusNoContent}
	for secret, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/cb", nil)
		if secret != "" {
			req.Header.Set(HeaderCrawlerSecret, secret)
		}
		if rec := serve(r, req); rec.Code != want {
			t.Fatalf("secret %q: status=%d want %d", secret, rec.Code, want)
		}
	}
}

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestAuthVerify(t *testing.T) {
	am := NewAuthMiddleware(logger.NewNop(), []byte("k"), "idp")
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	good := sign(t, "k", Claims{Email: "a@b.c", RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "idp", ExpiresAt: exp}})
	id, err := am.Verify(good)
	if err != nil || id.UserID != "u-1" || id.Email != "a@b.c" {
		t.Fatalf("verify good: id=%+v err=%v", id, err)
	}

	bad := map[string]string{
		"wrong key":     sign(t, "other", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "idp", ExpiresAt: exp}}),
		"wrong issuer":  sign(t, "k", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "evil", ExpiresAt: exp}}),
		"no expiry":     sign(t, "k", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "idp"}}),
		"no subject":    sign(t, "k", Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "idp", ExpiresAt: exp}}),
		"expired token": sign(t, "k", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "idp", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}),
	}
	for name, tok := range bad {
		if _, err := am.Verify(tok); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestRequireAuthReadsQueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.NewNop(), []byte("k"), "")
	r := gin.New()
	r.GET("/s", am.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.GetIdentity(c.Request.Context()).UserID)
	})

	tok := sign(t, "k", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-9", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/s?token="+tok, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "u-9" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := serve(r, httptest.NewRequest(http.MethodGet, "/s", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d", rec.Code)
	}
}
