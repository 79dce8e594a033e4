// Package lock implements the advisory resource-lock subsystem: a
// server-held mutual-exclusion primitive with TTL expiry, heartbeat
// renewal via re-acquisition, and ownership-checked release.
//
// Locks are advisory. They coordinate cooperating editors of the same
// record; they do not prevent a lock-unaware caller from writing the
// underlying resource directly.
package lock

import (
	"context"
	"time"
)

// ResourceType identifies the class of record a lock protects.
// The set of valid types is supplied by the host application (see
// config.ResourceTypes); the manager rejects anything outside it.
type ResourceType string

// Resource types used by the case-management application.
const (
	ResourceFormSubmission ResourceType = "FORM_SUBMISSION"
	ResourceClient         ResourceType = "CLIENT"
	ResourceForm           ResourceType = "FORM"
	ResourceCall           ResourceType = "CALL"
)

// ResourceKey names a single lockable record.
type ResourceKey struct {
	Type ResourceType `json:"resourceType"`
	ID   string       `json:"resourceId"`
}

// String returns the canonical "type:id" form of the key, used as the
// storage key by the Redis store and in log fields.
func (k ResourceKey) String() string {
	return string(k.Type) + ":" + k.ID
}

// Record is the persistent lock state for one resource key.
//
// AcquiredAt is set when a holder first wins the lock and is preserved
// across renewals; ExpiresAt moves forward on every renewal. A record
// whose ExpiresAt is not after the current instant is logically absent
// and may be overwritten by any acquirer.
type Record struct {
	Key        ResourceKey `json:"key"`
	HolderID   string      `json:"holderId"`
	AcquiredAt time.Time   `json:"acquiredAt"`
	ExpiresAt  time.Time   `json:"expiresAt"`
}

// Expired reports whether the record is logically absent at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Store defines the persistence contract for lock records.
// Implementations must be safe for concurrent use.
//
// The correctness of the whole subsystem rests on Acquire executing its
// read-decide-write sequence as a single atomic step (a transaction, a
// conditional write, or a mutex over the backing map), never a separate
// read followed by a separate write.
type Store interface {
	// Acquire attempts to grant or renew the lock for holderID.
	// It succeeds when the key is absent, the stored record has
	// expired, or the stored record already belongs to holderID
	// (renewal: ExpiresAt is extended, AcquiredAt preserved).
	//
	// On success it returns the winning record and acquired=true.
	// When another holder's unexpired record exists it returns that
	// record and acquired=false, so the caller can report who holds
	// the lock and until when.
	Acquire(ctx context.Context, key ResourceKey, holderID string, ttl time.Duration) (record *Record, acquired bool, err error)

	// Release deletes the record only if it belongs to holderID and
	// has not expired. It returns ErrNotHeld otherwise, including
	// when the caller's lock already lapsed and was taken by someone
	// else. A caller can never release a lock it does not hold.
	Release(ctx context.Context, key ResourceKey, holderID string) error

	// Get returns the current record for the key, or nil when the key
	// is absent. Expired records may still be returned; callers decide
	// liveness with Record.Expired. Pure read, no side effects.
	Get(ctx context.Context, key ResourceKey) (*Record, error)

	// Purge removes long-expired records for storage hygiene and
	// returns how many were removed. Correctness never depends on it;
	// expiry is evaluated lazily on every Acquire/Release/Get.
	Purge(ctx context.Context) (int64, error)
}
