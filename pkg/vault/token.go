package vault

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// renewalMargin is the fraction of a token's lease after which the tracker
// treats it as expired. Renewing at 4/5 of the lease avoids a race between
// checking the token and using it.
const renewalMargin = 0.8

// TokenTracker owns the current authentication token and decides when
// re-login or renewal is required. All state transitions happen under a
// single mutex, so concurrent refresh loops never trigger duplicate logins
// or observe a half-installed token.
type TokenTracker struct {
	api API
	now func() time.Time

	mu           sync.Mutex
	token        string
	issuedAt     time.Time
	leaseSeconds int
}

// NewTokenTracker creates a tracker with no token held.
func NewTokenTracker(api API) *TokenTracker {
	return &TokenTracker{api: api, now: time.Now}
}

// Login authenticates with the configured AppRole credentials. On success the
// new token is installed atomically; on failure any prior token is left in place.
func (t *TokenTracker) Login(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loginLocked(ctx)
}

func (t *TokenTracker) loginLocked(ctx context.Context) error {
	grant, err := t.api.Login(ctx)
	if err != nil {
		return err
	}

	t.token = grant.Token
	t.issuedAt = t.now()
	t.leaseSeconds = grant.LeaseSeconds
	t.api.SetToken(grant.Token)
	return nil
}

// Renew renews the current token, keeping the same token value with a fresh
// lease. On failure the held token is untouched.
func (t *TokenTracker) Renew(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renewLocked(ctx)
}

func (t *TokenTracker) renewLocked(ctx context.Context) error {
	if t.token == "" {
		return fmt.Errorf("no token to renew")
	}

	lease, err := t.api.RenewSelf(ctx)
	if err != nil {
		return err
	}

	t.issuedAt = t.now()
	t.leaseSeconds = lease
	return nil
}

// IsExpired reports whether the held token needs refreshing: no token, a
// non-positive lease, or elapsed time at or past the renewal margin.
func (t *TokenTracker) IsExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isExpiredLocked()
}

func (t *TokenTracker) isExpiredLocked() bool {
	if t.token == "" || t.leaseSeconds <= 0 {
		return true
	}
	elapsed := t.now().Sub(t.issuedAt).Seconds()
	return elapsed >= renewalMargin*float64(t.leaseSeconds)
}

// EnsureValid guarantees a usable token is held on return. With no token it
// logs in; with an expired token it renews, falling back to a full login when
// renewal fails (renewal is commonly rejected once a token reaches its max
// TTL, so treating that as fatal would stall every refresh loop). The whole
// check-and-refresh sequence runs under the tracker mutex.
func (t *TokenTracker) EnsureValid(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token == "" {
		return t.loginLocked(ctx)
	}
	if !t.isExpiredLocked() {
		return nil
	}
	if err := t.renewLocked(ctx); err != nil {
		return t.loginLocked(ctx)
	}
	return nil
}

// Status reports whether a token is held and its remaining lease in seconds,
// for the status endpoint.
func (t *TokenTracker) Status() (held bool, remainingSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token == "" || t.leaseSeconds <= 0 {
		return false, 0
	}
	remaining := float64(t.leaseSeconds) - t.now().Sub(t.issuedAt).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return true, int(remaining)
}
