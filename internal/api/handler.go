// Package api provides the HTTP handlers for the resource-lock service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/meridian-org/casework-system/internal/directory"
	"github.com/meridian-org/casework-system/internal/lock"
	"github.com/meridian-org/casework-system/internal/metrics"
	"github.com/meridian-org/casework-system/internal/middleware"
)

// Handler handles lock acquire, release and check requests.
type Handler struct {
	manager  *lock.Manager
	resolver directory.Resolver
	logger   zerolog.Logger
}

// NewHandler creates a new lock handler with the provided dependencies.
func NewHandler(manager *lock.Manager, resolver directory.Resolver, logger zerolog.Logger) *Handler {
	return &Handler{
		manager:  manager,
		resolver: resolver,
		logger:   logger.With().Str("component", "lock-api").Logger(),
	}
}

// RegisterRoutes registers all lock routes on the provided router group.
// Mutating operations require an authenticated principal; check is a
// pure read and works anonymously.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/config", h.Config)

	locks := router.Group("/locks")

	locks.GET("/:resource_type/:resource_id", middleware.OptionalIdentity(), h.Check)

	authed := locks.Group("")
	authed.Use(middleware.RequireIdentity())
	authed.POST("/:resource_type/:resource_id", h.Acquire)
	authed.DELETE("/:resource_type/:resource_id", h.Release)

	// Beacon route for page-unload delivery: sendBeacon can only POST
	// and never reads the response, so release semantics are exposed
	// on a POST that always answers 204.
	authed.POST("/:resource_type/:resource_id/release", h.BeaconRelease)
}

// AcquireRequest is the optional acquire body.
type AcquireRequest struct {
	TTLMs int64 `json:"ttlMs"`
}

// LockResponse describes a granted lock.
type LockResponse struct {
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	HolderID     string    `json:"holderId"`
	AcquiredAt   time.Time `json:"acquiredAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// DeniedResponse describes a lock held by another principal.
type DeniedResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	HolderName string    `json:"holderName"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ReleaseResponse confirms a successful release.
type ReleaseResponse struct {
	Released bool `json:"released"`
}

// CheckResponse describes the current lock status of a resource.
type CheckResponse struct {
	Locked     bool       `json:"locked"`
	IsOwnLock  bool       `json:"isOwnLock"`
	HolderName string     `json:"holderName,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ConfigResponse advertises the server's lock tunables so clients can
// align their TTL and renewal cadence instead of hardcoding them.
type ConfigResponse struct {
	DefaultTTLMs      int64    `json:"defaultTtlMs"`
	MinTTLMs          int64    `json:"minTtlMs"`
	MaxTTLMs          int64    `json:"maxTtlMs"`
	HeartbeatFraction int      `json:"heartbeatFraction"`
	ResourceTypes     []string `json:"resourceTypes"`
}

// Config handles GET /config.
func (h *Handler) Config(c *gin.Context) {
	settings := h.manager.Settings()

	types := make([]string, 0, len(settings.ResourceTypes))
	for _, rt := range settings.ResourceTypes {
		types = append(types, string(rt))
	}

	c.JSON(http.StatusOK, ConfigResponse{
		DefaultTTLMs:      settings.DefaultTTL.Milliseconds(),
		MinTTLMs:          settings.MinTTL.Milliseconds(),
		MaxTTLMs:          settings.MaxTTL.Milliseconds(),
		HeartbeatFraction: settings.HeartbeatFraction,
		ResourceTypes:     types,
	})
}

// Acquire handles POST /locks/:resource_type/:resource_id.
// A holder re-issuing acquire on its own lock is a renewal; the handler
// does not distinguish the two cases.
func (h *Handler) Acquire(c *gin.Context) {
	key := keyFromPath(c)
	holderID := middleware.HolderID(c)

	var req AcquireRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "malformed request body",
			})
			return
		}
	}

	result, err := h.manager.Acquire(c.Request.Context(), key, holderID, time.Duration(req.TTLMs)*time.Millisecond)
	if err != nil {
		h.respondError(c, key, err)
		return
	}

	if !result.Acquired {
		denied := DeniedResponse{
			Error:   "lock_failed",
			Message: "resource is locked by another user",
		}
		if result.Record != nil {
			denied.HolderName = h.resolver.DisplayName(c.Request.Context(), result.Record.HolderID)
			denied.ExpiresAt = result.Record.ExpiresAt
		}
		c.JSON(http.StatusConflict, denied)
		return
	}

	rec := result.Record
	c.JSON(http.StatusOK, LockResponse{
		ResourceType: string(rec.Key.Type),
		ResourceID:   rec.Key.ID,
		HolderID:     rec.HolderID,
		AcquiredAt:   rec.AcquiredAt,
		ExpiresAt:    rec.ExpiresAt,
	})
}

// Release handles DELETE /locks/:resource_type/:resource_id.
func (h *Handler) Release(c *gin.Context) {
	key := keyFromPath(c)
	holderID := middleware.HolderID(c)

	err := h.manager.Release(c.Request.Context(), key, holderID)
	if err != nil {
		if errors.Is(err, lock.ErrNotHeld) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "release_failed",
				Message: "lock is not held by this user",
			})
			return
		}
		h.respondError(c, key, err)
		return
	}

	c.JSON(http.StatusOK, ReleaseResponse{Released: true})
}

// BeaconRelease handles POST /locks/:resource_type/:resource_id/release.
// The sender is being torn down and will never read the response, so
// every outcome maps to 204 and failures are only logged.
func (h *Handler) BeaconRelease(c *gin.Context) {
	key := keyFromPath(c)
	holderID := middleware.HolderID(c)

	if err := h.manager.Release(c.Request.Context(), key, holderID); err != nil && !errors.Is(err, lock.ErrNotHeld) {
		h.logger.Warn().
			Str("resource", key.String()).
			Str("holderId", holderID).
			Err(err).
			Msg("beacon release failed")
	}

	c.Status(http.StatusNoContent)
}

// Check handles GET /locks/:resource_type/:resource_id.
func (h *Handler) Check(c *gin.Context) {
	key := keyFromPath(c)

	result, err := h.manager.Check(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, key, err)
		return
	}

	resp := CheckResponse{Locked: result.Locked}
	if result.Locked {
		metrics.RecordLockCheck(string(key.Type), "locked")
		resp.HolderName = h.resolver.DisplayName(c.Request.Context(), result.HolderID)
		resp.ExpiresAt = &result.ExpiresAt
		resp.IsOwnLock = result.HolderID == middleware.HolderID(c)
	} else {
		metrics.RecordLockCheck(string(key.Type), "unlocked")
	}

	c.JSON(http.StatusOK, resp)
}

// respondError maps manager errors to HTTP responses.
func (h *Handler) respondError(c *gin.Context, key lock.ResourceKey, err error) {
	switch {
	case errors.Is(err, lock.ErrInvalidResourceType),
		errors.Is(err, lock.ErrEmptyResourceID),
		errors.Is(err, lock.ErrEmptyHolderID):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	default:
		h.logger.Error().
			Str("resource", key.String()).
			Err(err).
			Msg("lock operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "lock operation failed",
		})
	}
}

func keyFromPath(c *gin.Context) lock.ResourceKey {
	return lock.ResourceKey{
		Type: lock.ResourceType(c.Param("resource_type")),
		ID:   c.Param("resource_id"),
	}
}
