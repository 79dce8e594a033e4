// Package middleware provides HTTP middleware for the lock service.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HolderHeader carries the already-authenticated principal id. The
// surrounding application's auth layer validates the session and sets
// this header before requests reach the lock service; the lock
// subsystem treats the value as opaque.
const HolderHeader = "X-User-ID"

// holderContextKey is the gin context key the holder id is stored under.
const holderContextKey = "lockHolderID"

// identityErrorResponse is the JSON body for identity failures.
type identityErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RequireIdentity rejects requests that carry no principal id.
// Mutating lock operations need a holder; reads go through
// OptionalIdentity instead.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		holderID := c.GetHeader(HolderHeader)
		if holderID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, identityErrorResponse{
				Error:   "unauthorized",
				Message: "missing principal identity",
			})
			return
		}
		c.Set(holderContextKey, holderID)
		c.Next()
	}
}

// OptionalIdentity records the principal id when present but lets
// anonymous requests through. Lock status checks are pure reads and do
// not require identity; they only lose the isOwnLock signal without it.
func OptionalIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if holderID := c.GetHeader(HolderHeader); holderID != "" {
			c.Set(holderContextKey, holderID)
		}
		c.Next()
	}
}

// HolderID returns the principal id recorded by the identity
// middleware, or "" when the request is anonymous.
func HolderID(c *gin.Context) string {
	return c.GetString(holderContextKey)
}
