package lockclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/meridian-org/casework-system/internal/api"
	"github.com/meridian-org/casework-system/internal/directory"
	"github.com/meridian-org/casework-system/internal/lock"
)

// setupTestServer runs the real lock API over an in-memory store so
// client tests exercise the full wire protocol. The manager accepts
// very short TTLs to keep the tests fast.
func setupTestServer(t *testing.T) (*httptest.Server, *lock.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := lock.NewMemoryStore()
	manager := lock.NewManager(store, lock.ManagerConfig{
		DefaultTTL:    time.Minute,
		MinTTL:        10 * time.Millisecond,
		MaxTTL:        time.Hour,
		ResourceTypes: []lock.ResourceType{lock.ResourceFormSubmission, lock.ResourceClient},
	}, zerolog.Nop())

	resolver := directory.NewStaticResolver(map[string]string{"alice": "Alice Moreau"})
	handler := api.NewHandler(manager, resolver, zerolog.Nop())

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestClient_AcquireAndRelease(t *testing.T) {
	srv, _ := setupTestServer(t)
	client := NewClient(srv.URL+"/api/v1", "alice")
	ctx := context.Background()

	outcome, err := client.Acquire(ctx, "FORM_SUBMISSION", "42", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Acquired {
		t.Fatal("expected acquire to succeed")
	}
	if outcome.ExpiresAt.IsZero() {
		t.Error("expected expiry on granted lock")
	}

	if err := client.Release(ctx, "FORM_SUBMISSION", "42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_AcquireDenied(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	alice := NewClient(srv.URL+"/api/v1", "alice")
	bob := NewClient(srv.URL+"/api/v1", "bob")

	if _, err := alice.Acquire(ctx, "FORM_SUBMISSION", "42", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := bob.Acquire(ctx, "FORM_SUBMISSION", "42", time.Minute)
	if err != nil {
		t.Fatalf("denial must not be an error: %v", err)
	}
	if outcome.Acquired {
		t.Fatal("expected acquire to be denied")
	}
	if outcome.HolderName != "Alice Moreau" {
		t.Errorf("expected resolved holder name, got %q", outcome.HolderName)
	}
	if outcome.ExpiresAt.IsZero() {
		t.Error("expected denial to carry the blocking lock's expiry")
	}
}

func TestClient_ReleaseNotHeld(t *testing.T) {
	srv, _ := setupTestServer(t)
	client := NewClient(srv.URL+"/api/v1", "bob")

	err := client.Release(context.Background(), "FORM_SUBMISSION", "42")
	if !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}
}

func TestClient_Check(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	alice := NewClient(srv.URL+"/api/v1", "alice")
	bob := NewClient(srv.URL+"/api/v1", "bob")

	outcome, err := bob.Check(ctx, "FORM_SUBMISSION", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Locked {
		t.Error("expected unlocked before acquire")
	}

	if _, err := alice.Acquire(ctx, "FORM_SUBMISSION", "42", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err = bob.Check(ctx, "FORM_SUBMISSION", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Locked || outcome.IsOwnLock {
		t.Errorf("expected foreign lock, got %+v", outcome)
	}

	outcome, err = alice.Check(ctx, "FORM_SUBMISSION", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.IsOwnLock {
		t.Error("expected isOwnLock for the holder")
	}
}

func TestClient_ReleaseBeacon(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	alice := NewClient(srv.URL+"/api/v1", "alice")
	if _, err := alice.Acquire(ctx, "FORM_SUBMISSION", "42", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alice.ReleaseBeacon("FORM_SUBMISSION", "42")

	outcome, err := alice.Check(ctx, "FORM_SUBMISSION", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Locked {
		t.Error("expected beacon release to free the lock")
	}
}

func TestClient_ReleaseBeacon_SwallowsFailure(t *testing.T) {
	// A beacon against a dead server must not panic or block; the lock
	// would simply expire at TTL.
	client := NewClient("http://127.0.0.1:1", "alice")

	done := make(chan struct{})
	go func() {
		client.ReleaseBeacon("FORM_SUBMISSION", "42")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("beacon release did not return")
	}
}

func TestSessionHolderID(t *testing.T) {
	first := SessionHolderID("usr-1")
	second := SessionHolderID("usr-1")

	if first == second {
		t.Error("expected distinct ids for distinct sessions")
	}
	if !strings.HasPrefix(first, "usr-1:") {
		t.Errorf("expected id to carry the user id prefix, got %q", first)
	}
}

func TestClient_Config(t *testing.T) {
	srv, _ := setupTestServer(t)
	client := NewClient(srv.URL+"/api/v1", "alice")

	cfg, err := client.Config(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DefaultTTLMs != time.Minute.Milliseconds() {
		t.Errorf("expected advertised default TTL 1m, got %dms", cfg.DefaultTTLMs)
	}
	if cfg.HeartbeatFraction != 5 {
		t.Errorf("expected advertised heartbeat fraction 5, got %d", cfg.HeartbeatFraction)
	}
	if len(cfg.ResourceTypes) != 2 {
		t.Errorf("expected two advertised resource types, got %v", cfg.ResourceTypes)
	}
}
