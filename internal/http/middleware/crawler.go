package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/apierr"
)

const HeaderCrawlerSecret = "X-Crawler-Secret"

// RequireCrawlerSecret guards the crawler callback routes with a shared secret.
func RequireCrawlerSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderCrawlerSecret)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.RespondError(c, apierr.WithSummary(http.StatusUnauthorized, "unauthorized", "invalid crawler secret", nil))
			return
		}
		c.Next()
	}
}
