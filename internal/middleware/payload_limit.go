package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// payloadTooLargeResponse is the JSON body for oversized requests.
type payloadTooLargeResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	MaxBytes int64  `json:"maxBytes"`
}

// PayloadLimit caps request body size. Lock requests are a few dozen
// bytes of JSON, so anything near the limit is a misbehaving client.
// Oversized bodies are rejected with 413 before a handler sees them.
func PayloadLimit(maxBytes int64, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			rejectOversized(c, logger, c.Request.ContentLength, maxBytes)
			return
		}

		// Content-Length can lie or be absent with chunked encoding;
		// MaxBytesReader enforces the cap on the actual read.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()

		for _, ginErr := range c.Errors {
			var maxBytesErr *http.MaxBytesError
			if errors.As(ginErr.Err, &maxBytesErr) {
				c.Errors = c.Errors[:0]
				rejectOversized(c, logger, maxBytesErr.Limit, maxBytes)
				return
			}
		}
	}
}

func rejectOversized(c *gin.Context, logger zerolog.Logger, attempted, maxBytes int64) {
	logger.Warn().
		Str("clientIP", c.ClientIP()).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int64("attemptedSize", attempted).
		Int64("maxBytes", maxBytes).
		Msg("oversized request rejected")

	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, payloadTooLargeResponse{
		Error:    "payloadTooLarge",
		Message:  "request body exceeds the maximum allowed size",
		MaxBytes: maxBytes,
	})
}
