package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupIdentityRouter(required bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	identity := OptionalIdentity()
	if required {
		identity = RequireIdentity()
	}
	router.GET("/whoami", identity, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"holder": HolderID(c)})
	})
	return router
}

func TestRequireIdentity_MissingHeader(t *testing.T) {
	router := setupIdentityRouter(true)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	var body identityErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error != "unauthorized" {
		t.Errorf("expected error code unauthorized, got %q", body.Error)
	}
}

func TestRequireIdentity_PassesHolderThrough(t *testing.T) {
	router := setupIdentityRouter(true)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HolderHeader, "usr-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["holder"] != "usr-42" {
		t.Errorf("expected holder usr-42, got %q", body["holder"])
	}
}

func TestOptionalIdentity_AllowsAnonymous(t *testing.T) {
	router := setupIdentityRouter(false)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["holder"] != "" {
		t.Errorf("expected empty holder for anonymous request, got %q", body["holder"])
	}
}

func TestOptionalIdentity_RecordsHolderWhenPresent(t *testing.T) {
	router := setupIdentityRouter(false)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HolderHeader, "usr-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["holder"] != "usr-7" {
		t.Errorf("expected holder usr-7, got %q", body["holder"])
	}
}
