package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes err as an error envelope. The message is the short summary when
// one is set; the full chain goes into detail only for client errors.
func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	msg := ae.Summary
	if msg == "" {
		if status >= http.StatusInternalServerError {
			msg = "internal error"
		} else {
			msg = ae.Error()
		}
	}
	out := APIError{Message: msg, Code: ae.Code}
	if status < http.StatusInternalServerError && ae.Err != nil && ae.Err.Error() != msg {
		out.Detail = ae.Err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: out})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
