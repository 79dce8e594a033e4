package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridian-org/casework-system/internal/metrics"
)

// TTL bounds. A TTL below the floor would force clients into a renewal
// stampede; one above the ceiling leaves an abandoned record blocking
// editors for too long.
const (
	DefaultTTL = 5 * time.Minute
	MinTTL     = 30 * time.Second
	MaxTTL     = 30 * time.Minute
)

// DefaultHeartbeatFraction is the renewal cadence denominator advertised
// to clients: renew every TTL/fraction.
const DefaultHeartbeatFraction = 5

// ManagerConfig holds the externally tunable parameters of the manager.
// All of them come from the host application.
type ManagerConfig struct {
	// DefaultTTL is applied when an acquire request carries no TTL.
	DefaultTTL time.Duration

	// MinTTL and MaxTTL bound requested TTLs; out-of-range values are
	// clamped rather than rejected.
	MinTTL time.Duration
	MaxTTL time.Duration

	// HeartbeatFraction is the renewal cadence denominator advertised
	// to clients. The manager does not enforce it; clients that renew
	// slower simply risk losing the lock at TTL.
	HeartbeatFraction int

	// ResourceTypes is the closed set of valid resource types.
	ResourceTypes []ResourceType
}

// DefaultManagerConfig returns a config with the standard TTL bounds
// and the case-management resource types.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultTTL:        DefaultTTL,
		MinTTL:            MinTTL,
		MaxTTL:            MaxTTL,
		HeartbeatFraction: DefaultHeartbeatFraction,
		ResourceTypes: []ResourceType{
			ResourceFormSubmission,
			ResourceClient,
			ResourceForm,
			ResourceCall,
		},
	}
}

// Manager is the only writer of the lock store. It validates input,
// bounds TTLs and delegates the atomic state transitions to the store.
// The server keeps no lock state of its own and runs no expiry timers;
// every decision compares wall-clock time against the stored expiry at
// the moment of the call.
type Manager struct {
	store      Store
	validTypes map[ResourceType]struct{}
	cfg        ManagerConfig
	logger     zerolog.Logger
}

// NewManager creates a lock manager over the given store.
func NewManager(store Store, cfg ManagerConfig, logger zerolog.Logger) *Manager {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MinTTL <= 0 {
		cfg.MinTTL = MinTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = MaxTTL
	}
	if cfg.HeartbeatFraction <= 0 {
		cfg.HeartbeatFraction = DefaultHeartbeatFraction
	}

	validTypes := make(map[ResourceType]struct{}, len(cfg.ResourceTypes))
	for _, rt := range cfg.ResourceTypes {
		validTypes[rt] = struct{}{}
	}

	return &Manager{
		store:      store,
		validTypes: validTypes,
		cfg:        cfg,
		logger:     logger.With().Str("component", "lock-manager").Logger(),
	}
}

// Settings returns the effective configuration after defaulting. The
// API layer advertises it so clients can align their TTL and renewal
// cadence with the server instead of hardcoding them.
func (m *Manager) Settings() ManagerConfig {
	return m.cfg
}

// AcquireResult is the outcome of an acquire attempt.
type AcquireResult struct {
	// Acquired is true when the caller now holds the lock.
	Acquired bool

	// Record is the winning record on success, or the blocking
	// holder's record when denied so the caller can render
	// "locked by X until ...". Nil only when a denial raced with a
	// release; retrying will succeed.
	Record *Record
}

// CheckResult is the outcome of a check.
type CheckResult struct {
	Locked    bool
	HolderID  string
	ExpiresAt time.Time
}

// Acquire grants, renews or denies the lock on key for holderID.
// A holder re-acquiring its own unexpired lock is a renewal: the expiry
// moves forward and the original acquisition time is preserved. A zero
// ttl selects the configured default; out-of-range values are clamped.
func (m *Manager) Acquire(ctx context.Context, key ResourceKey, holderID string, ttl time.Duration) (*AcquireResult, error) {
	if err := m.validateKey(key); err != nil {
		return nil, err
	}
	if holderID == "" {
		return nil, ErrEmptyHolderID
	}
	ttl = m.clampTTL(ttl)

	rec, acquired, err := m.store.Acquire(ctx, key, holderID, ttl)
	if err != nil {
		metrics.RecordLockAcquire(string(key.Type), "error")
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}

	if acquired {
		metrics.RecordLockAcquire(string(key.Type), "acquired")
		m.logger.Debug().
			Str("resource", key.String()).
			Str("holderId", holderID).
			Time("expiresAt", rec.ExpiresAt).
			Msg("lock acquired")
	} else {
		metrics.RecordLockAcquire(string(key.Type), "denied")
		event := m.logger.Debug().
			Str("resource", key.String()).
			Str("holderId", holderID)
		if rec != nil {
			event.Str("heldBy", rec.HolderID).Time("expiresAt", rec.ExpiresAt)
		}
		event.Msg("lock denied")
	}

	return &AcquireResult{Acquired: acquired, Record: rec}, nil
}

// Release removes holderID's lock on key. It returns ErrNotHeld when
// the caller does not currently hold the lock, including when the lock
// expired and was taken by someone else in the meantime.
func (m *Manager) Release(ctx context.Context, key ResourceKey, holderID string) error {
	if err := m.validateKey(key); err != nil {
		return err
	}
	if holderID == "" {
		return ErrEmptyHolderID
	}

	if err := m.store.Release(ctx, key, holderID); err != nil {
		if errors.Is(err, ErrNotHeld) {
			metrics.RecordLockRelease(string(key.Type), "not_held")
			return err
		}
		metrics.RecordLockRelease(string(key.Type), "error")
		return fmt.Errorf("release %s: %w", key, err)
	}

	metrics.RecordLockRelease(string(key.Type), "released")
	m.logger.Debug().
		Str("resource", key.String()).
		Str("holderId", holderID).
		Msg("lock released")
	return nil
}

// Check reports whether key is currently locked. It is a pure read:
// an absent or expired record reports unlocked regardless of what is
// physically stored.
func (m *Manager) Check(ctx context.Context, key ResourceKey) (*CheckResult, error) {
	if err := m.validateKey(key); err != nil {
		return nil, err
	}

	rec, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", key, err)
	}
	if rec == nil || rec.Expired(time.Now()) {
		return &CheckResult{Locked: false}, nil
	}
	return &CheckResult{
		Locked:    true,
		HolderID:  rec.HolderID,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Purge removes long-expired records. Storage hygiene only; the lock
// semantics never depend on it running.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	return m.store.Purge(ctx)
}

func (m *Manager) validateKey(key ResourceKey) error {
	if _, ok := m.validTypes[key.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidResourceType, key.Type)
	}
	if key.ID == "" {
		return ErrEmptyResourceID
	}
	return nil
}

func (m *Manager) clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return m.cfg.DefaultTTL
	case ttl < m.cfg.MinTTL:
		return m.cfg.MinTTL
	case ttl > m.cfg.MaxTTL:
		return m.cfg.MaxTTL
	default:
		return ttl
	}
}
