package lockclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the controller's position in its lifecycle.
type State string

// Controller states. The normal path is Idle → Acquiring → Held with a
// heartbeat self-loop, then back to Idle on teardown. Acquiring lands
// in Denied when another principal holds the lock.
const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateHeld      State = "held"
	StateDenied    State = "denied"
	StateReleasing State = "releasing"
)

// Snapshot is the controller's externally visible status, delivered to
// the state-change callback so a host UI can render an editing
// indicator or a "locked by X until ..." banner.
type Snapshot struct {
	State State

	// HolderName names the blocking principal while Denied.
	HolderName string

	// ExpiresAt is our lock expiry while Held, or the blocking
	// holder's expiry while Denied.
	ExpiresAt time.Time
}

// Default lock lifetime and renewal cadence. The heartbeat runs at
// TTL/5 so at least four renewals land inside every TTL window even if
// some are dropped.
const (
	DefaultTTL               = 5 * time.Minute
	DefaultHeartbeatFraction = 5
)

// Controller is a per-resource lock lifecycle driver. One controller
// serves one (resourceType, resourceID) pair for as long as a view is
// editing that record; when the edited record changes, the old
// controller is closed and a new one started.
//
// All asynchronous paths (heartbeat ticks, foreground notifications)
// consult the held flag at fire time, never a value captured when the
// timer was installed, so a tick that lands after release is a no-op.
type Controller struct {
	client            *Client
	resourceType      string
	resourceID        string
	ttl               time.Duration
	heartbeatFraction int
	heartbeat         time.Duration
	logger            zerolog.Logger
	onChange          func(Snapshot)

	held atomic.Bool

	mu   sync.Mutex
	snap Snapshot

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithTTL sets the requested lock TTL.
func WithTTL(ttl time.Duration) ControllerOption {
	return func(c *Controller) {
		c.ttl = ttl
	}
}

// WithHeartbeatFraction sets the renewal cadence as a fraction of the
// TTL: a fraction of 5 renews every TTL/5. The interval is derived once
// all options are applied, so it does not matter whether this option
// comes before or after WithTTL.
func WithHeartbeatFraction(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.heartbeatFraction = n
		}
	}
}

// WithOnChange sets a callback invoked on every state transition.
// It is called from the controller's goroutines and must not block.
func WithOnChange(fn func(Snapshot)) ControllerOption {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a controller for one resource instance.
func NewController(client *Client, resourceType, resourceID string, opts ...ControllerOption) *Controller {
	c := &Controller{
		client:       client,
		resourceType: resourceType,
		resourceID:   resourceID,
		ttl:          DefaultTTL,
		logger:       zerolog.Nop(),
		snap:         Snapshot{State: StateIdle},
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.heartbeatFraction <= 0 {
		c.heartbeatFraction = DefaultHeartbeatFraction
	}
	c.heartbeat = c.ttl / time.Duration(c.heartbeatFraction)
	c.logger = c.logger.With().
		Str("component", "lock-controller").
		Str("resource", resourceType+":"+resourceID).
		Logger()
	return c
}

// Start performs the initial acquisition and begins the heartbeat loop.
func (c *Controller) Start(ctx context.Context) {
	c.tryAcquire(ctx)

	c.wg.Add(1)
	go c.run(ctx)
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Held reports whether the controller currently holds the lock.
func (c *Controller) Held() bool {
	return c.held.Load()
}

// Retry re-issues acquire after a denial. This is also the "take over"
// action: there is no privileged steal operation, the attempt simply
// succeeds once the other holder's lock has lapsed or been released.
func (c *Controller) Retry(ctx context.Context) {
	if c.held.Load() {
		return
	}
	c.tryAcquire(ctx)
}

// NotifyForeground renews immediately when the host regains foreground
// attention. Backgrounded runtimes throttle timers, so the heartbeat
// may not have fired for longer than one interval; renewing now closes
// that gap instead of waiting for the next tick.
func (c *Controller) NotifyForeground(ctx context.Context) {
	if !c.held.Load() {
		return
	}
	c.renew(ctx)
}

// Close releases the lock and stops the heartbeat. This is the normal
// teardown path (navigation within the app, or the edited record
// changed). The release is fire-and-forget: teardown never blocks on
// the server's response, and at worst the lock expires at TTL.
func (c *Controller) Close() {
	c.stopOnce.Do(func() {
		wasHeld := c.held.Swap(false)
		close(c.stopCh)
		c.wg.Wait()

		if wasHeld {
			c.setState(Snapshot{State: StateReleasing})
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
				defer cancel()
				if err := c.client.Release(ctx, c.resourceType, c.resourceID); err != nil {
					c.logger.Debug().Err(err).Msg("teardown release not delivered")
				}
			}()
		}
		c.setState(Snapshot{State: StateIdle})
	})
}

// Shutdown releases the lock on abrupt process teardown. Unlike Close
// it delivers the release synchronously through the beacon transport,
// bounded by a short timeout, because the process will not live long
// enough for a background goroutine to finish.
func (c *Controller) Shutdown() {
	c.stopOnce.Do(func() {
		wasHeld := c.held.Swap(false)
		close(c.stopCh)
		c.wg.Wait()

		if wasHeld {
			c.client.ReleaseBeacon(c.resourceType, c.resourceID)
		}
		c.setState(Snapshot{State: StateIdle})
	})
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			// Consult the held flag now, not when the ticker was
			// installed: a tick landing after release is a no-op.
			if !c.held.Load() {
				continue
			}
			c.renew(ctx)
		}
	}
}

// tryAcquire drives the Acquiring transition from Idle or Denied.
func (c *Controller) tryAcquire(ctx context.Context) {
	c.setState(Snapshot{State: StateAcquiring})

	outcome, err := c.client.Acquire(ctx, c.resourceType, c.resourceID, c.ttl)
	if err != nil {
		c.logger.Warn().Err(err).Msg("acquire failed")
		c.setState(Snapshot{State: StateDenied})
		return
	}

	if outcome.Acquired {
		c.held.Store(true)
		c.setState(Snapshot{State: StateHeld, ExpiresAt: outcome.ExpiresAt})
		c.logger.Debug().Time("expiresAt", outcome.ExpiresAt).Msg("lock acquired")
		return
	}

	c.setState(Snapshot{
		State:      StateDenied,
		HolderName: outcome.HolderName,
		ExpiresAt:  outcome.ExpiresAt,
	})
	c.logger.Debug().
		Str("holderName", outcome.HolderName).
		Time("expiresAt", outcome.ExpiresAt).
		Msg("lock held by another user")
}

// renew re-issues acquire for a lock we believe we hold. Transport
// failures are swallowed: a missed renewal self-heals on the next tick
// or, at worst, the lock expires naturally. A denial is different; it
// means the lock lapsed and another principal took it, so the
// controller transitions to Denied rather than keep claiming Held.
func (c *Controller) renew(ctx context.Context) {
	outcome, err := c.client.Acquire(ctx, c.resourceType, c.resourceID, c.ttl)
	if err != nil {
		c.logger.Debug().Err(err).Msg("heartbeat renewal failed")
		return
	}

	if !outcome.Acquired {
		c.held.Store(false)
		c.setState(Snapshot{
			State:      StateDenied,
			HolderName: outcome.HolderName,
			ExpiresAt:  outcome.ExpiresAt,
		})
		c.logger.Warn().
			Str("holderName", outcome.HolderName).
			Msg("lock lost to another user")
		return
	}

	c.setState(Snapshot{State: StateHeld, ExpiresAt: outcome.ExpiresAt})
}

func (c *Controller) setState(snap Snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snap)
	}
}
