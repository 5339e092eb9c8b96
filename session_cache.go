package checkout

import (
	"context"
	"sync"
)

// SessionCache provides idempotency for card-session creation by caching
// issued sessions per fingerprint and tracking in-flight requests. The
// provider charges for duplicate session creation, so for a given
// fingerprint at most one creation request may be in flight or have
// succeeded: reuse, never recreate.
//
// Entries live for the browsing session only. The cache is in-memory,
// never persisted, and is cleared on checkout teardown.
type SessionCache struct {
	mu       sync.Mutex
	sessions map[string]*Session
	inFlight map[string]chan struct{}
}

// NewSessionCache creates an empty session cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{
		sessions: make(map[string]*Session),
		inFlight: make(map[string]chan struct{}),
	}
}

// CacheStatus represents the result of checking the cache.
type CacheStatus int

const (
	// StatusNotFound means no cached session and no in-flight request.
	StatusNotFound CacheStatus = iota
	// StatusCached means a session for this fingerprint already exists.
	StatusCached
	// StatusInFlight means another request is creating this session.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and marks the fingerprint as
// in-flight if needed. Returns:
//   - StatusCached + session if one already exists
//   - StatusInFlight + wait channel if another request is creating it
//   - StatusNotFound + done channel if this request should proceed
//     (now marked in-flight)
func (c *SessionCache) CheckAndMark(fingerprint string) (CacheStatus, *Session, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ses, ok := c.sessions[fingerprint]; ok {
		return StatusCached, ses, nil
	}

	if done, ok := c.inFlight[fingerprint]; ok {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[fingerprint] = done
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight creation to complete, respecting
// context cancellation. Returns the cached session if the creation
// succeeded, or nil if it failed (no session was cached).
func (c *SessionCache) WaitForResult(ctx context.Context, fingerprint string, done chan struct{}) (*Session, error) {
	select {
	case <-done:
		return c.Get(fingerprint), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get retrieves the cached session for a fingerprint, or nil.
func (c *SessionCache) Get(fingerprint string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[fingerprint]
}

// Complete caches a freshly created session under its fingerprint and
// signals any waiting goroutines. The session records the fingerprint it
// was created for, so a later mismatch is detectable.
func (c *SessionCache) Complete(fingerprint string, ses *Session, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ses.Fingerprint = fingerprint
	c.sessions[fingerprint] = ses

	delete(c.inFlight, fingerprint)
	close(done)
}

// Fail removes the in-flight marker without caching a session, allowing
// the creation to be retried. Waiters are signaled and will retry.
func (c *SessionCache) Fail(fingerprint string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, fingerprint)
	close(done)
}

// Invalidate drops the cached session for a fingerprint. Used when the
// provider reports the token expired: the retry path clears the stale
// entry and restarts creation.
func (c *SessionCache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, fingerprint)
}

// Clear drops all cached sessions. In-flight markers are left to resolve
// through Complete or Fail; their results will be discarded by the
// owning manager's liveness checks.
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = make(map[string]*Session)
}
