// Package manager layers the secret caches over the Vault client. It is the
// only surface consumers and the refresh loops talk to: every getter checks
// token validity, serves from cache when fresh, and otherwise fetches and
// restocks. Remote failures surface as ErrUnavailable rather than as raw
// transport errors.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vault-refresh-agent/pkg/cache"
	"vault-refresh-agent/pkg/logger"
	"vault-refresh-agent/pkg/telemetry"
	"vault-refresh-agent/pkg/vault"
)

// ErrUnavailable indicates the secret could not be served: Vault was
// unreachable, authentication failed, or the response was unusable. Callers
// should keep using previously obtained secrets and retry later.
var ErrUnavailable = errors.New("secret source unavailable")

const (
	kvWindow         = 300 * time.Second
	staticWindow     = 300 * time.Second
	dynamicThreshold = 10 * time.Second

	// Applied when the static-creds endpoint omits a TTL.
	staticTTLFallback = 3600
)

// Manager coordinates token lifecycle and the three secret caches.
type Manager struct {
	api     vault.API
	tracker *vault.TokenTracker

	kvCache      *cache.Cache[*vault.KVSecret]
	dynamicCache *cache.Cache[*vault.Credentials]
	staticCache  *cache.Cache[*vault.Credentials]

	cacheHits   telemetry.Int64Counter
	cacheMisses telemetry.Int64Counter
	fetchErrors telemetry.Int64Counter
}

// New creates a Manager around the given Vault API and token tracker.
func New(api vault.API, tracker *vault.TokenTracker) *Manager {
	meter := telemetry.GetMeter("")
	hits, _ := telemetry.NewInt64Counter(meter, "secret_cache_hits_total", "Secret reads served from cache")
	misses, _ := telemetry.NewInt64Counter(meter, "secret_cache_misses_total", "Secret reads that required a Vault fetch")
	fetchErrs, _ := telemetry.NewInt64Counter(meter, "secret_fetch_errors_total", "Vault fetches that failed")

	return &Manager{
		api:          api,
		tracker:      tracker,
		kvCache:      cache.New[*vault.KVSecret](cache.WindowPolicy{Window: kvWindow}),
		dynamicCache: cache.New[*vault.Credentials](cache.LeasePolicy{Threshold: dynamicThreshold}),
		staticCache:  cache.New[*vault.Credentials](cache.WindowPolicy{Window: staticWindow}),
		cacheHits:    hits,
		cacheMisses:  misses,
		fetchErrors:  fetchErrs,
	}
}

// GetKVSecret returns the KV secret at path, served from cache while within
// the freshness window.
func (m *Manager) GetKVSecret(ctx context.Context, path string) (*vault.KVSecret, error) {
	if err := m.ensureToken(ctx); err != nil {
		return nil, err
	}

	if entry, _, ok := m.kvCache.Lookup(path); ok {
		m.countHit(ctx, "kv")
		return entry.Payload, nil
	}
	m.countMiss(ctx, "kv")

	secret, err := m.api.ReadKVSecret(ctx, path)
	if err != nil {
		return nil, m.unavailable(ctx, "kv", path, err)
	}

	m.kvCache.Put(path, secret, 0)
	logger.Info("kv secret refreshed", "path", path, "version", secret.Version)
	return secret, nil
}

// GetDynamicCredentials returns database credentials for role. Cached
// credentials are served while their remaining lease exceeds the minimum
// threshold; the returned LeaseSeconds is the decayed remaining lease, so
// consumers see how long the credentials are actually good for.
func (m *Manager) GetDynamicCredentials(ctx context.Context, role string) (*vault.Credentials, error) {
	if err := m.ensureToken(ctx); err != nil {
		return nil, err
	}

	if entry, remaining, ok := m.dynamicCache.Lookup(role); ok {
		m.countHit(ctx, "dynamic")
		creds := *entry.Payload
		creds.LeaseSeconds = remaining
		return &creds, nil
	}
	m.countMiss(ctx, "dynamic")

	creds, err := m.api.GenerateDynamicCredentials(ctx, role)
	if err != nil {
		return nil, m.unavailable(ctx, "dynamic", role, err)
	}

	m.dynamicCache.Put(role, creds, creds.LeaseSeconds)
	logger.Info("dynamic credentials generated",
		"role", role, "username", creds.Username, "lease_seconds", creds.LeaseSeconds)

	// Callers get their own copy so mutating it cannot corrupt the cached entry.
	out := *creds
	return &out, nil
}

// GetStaticCredentials returns rotated static database credentials for role,
// served from cache while within the freshness window. A response without a
// TTL gets a one-hour fallback.
func (m *Manager) GetStaticCredentials(ctx context.Context, role string) (*vault.Credentials, error) {
	if err := m.ensureToken(ctx); err != nil {
		return nil, err
	}

	if entry, _, ok := m.staticCache.Lookup(role); ok {
		m.countHit(ctx, "static")
		return entry.Payload, nil
	}
	m.countMiss(ctx, "static")

	creds, err := m.api.ReadStaticCredentials(ctx, role)
	if err != nil {
		return nil, m.unavailable(ctx, "static", role, err)
	}
	if creds.LeaseSeconds <= 0 {
		creds.LeaseSeconds = staticTTLFallback
	}

	m.staticCache.Put(role, creds, creds.LeaseSeconds)
	logger.Info("static credentials refreshed",
		"role", role, "username", creds.Username, "ttl_seconds", creds.LeaseSeconds)
	return creds, nil
}

func (m *Manager) ensureToken(ctx context.Context) error {
	if err := m.tracker.EnsureValid(ctx); err != nil {
		telemetry.AddInt64Counter(ctx, m.fetchErrors, 1, telemetry.StringAttribute("category", "token"))
		logger.Warn("token refresh failed", "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (m *Manager) unavailable(ctx context.Context, category, key string, err error) error {
	telemetry.AddInt64Counter(ctx, m.fetchErrors, 1, telemetry.StringAttribute("category", category))
	logger.Warn("secret fetch failed", "category", category, "key", key, "error", err)
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (m *Manager) countHit(ctx context.Context, category string) {
	telemetry.AddInt64Counter(ctx, m.cacheHits, 1, telemetry.StringAttribute("category", category))
}

func (m *Manager) countMiss(ctx context.Context, category string) {
	telemetry.AddInt64Counter(ctx, m.cacheMisses, 1, telemetry.StringAttribute("category", category))
}

// Status is a point-in-time snapshot of the manager for the status endpoint.
type Status struct {
	TokenHeld             bool `json:"token_held"`
	TokenRemainingSeconds int  `json:"token_remaining_seconds"`
	KVEntries             int  `json:"kv_entries"`
	DynamicEntries        int  `json:"dynamic_entries"`
	StaticEntries         int  `json:"static_entries"`
}

// Status reports token state and cache sizes.
func (m *Manager) Status() Status {
	held, remaining := m.tracker.Status()
	return Status{
		TokenHeld:             held,
		TokenRemainingSeconds: remaining,
		KVEntries:             m.kvCache.Len(),
		DynamicEntries:        m.dynamicCache.Len(),
		StaticEntries:         m.staticCache.Len(),
	}
}

// SecretSummary describes a cached secret without exposing its value.
type SecretSummary struct {
	Category         string `json:"category"`
	Key              string `json:"key"`
	Fresh            bool   `json:"fresh"`
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
	Username         string `json:"username,omitempty"`
}

// Secrets lists the cached secrets in redacted form: keys, freshness, and for
// database credentials the username, never values or passwords.
func (m *Manager) Secrets() []SecretSummary {
	summaries := []SecretSummary{}
	for _, key := range m.kvCache.Keys() {
		entry, ok := m.kvCache.Get(key)
		if !ok {
			continue
		}
		fresh, _ := m.kvCache.Fresh(entry)
		summaries = append(summaries, SecretSummary{Category: "kv", Key: key, Fresh: fresh})
	}
	for _, key := range m.dynamicCache.Keys() {
		entry, ok := m.dynamicCache.Get(key)
		if !ok {
			continue
		}
		fresh, remaining := m.dynamicCache.Fresh(entry)
		summaries = append(summaries, SecretSummary{
			Category:         "dynamic",
			Key:              key,
			Fresh:            fresh,
			RemainingSeconds: remaining,
			Username:         entry.Payload.Username,
		})
	}
	for _, key := range m.staticCache.Keys() {
		entry, ok := m.staticCache.Get(key)
		if !ok {
			continue
		}
		fresh, _ := m.staticCache.Fresh(entry)
		summaries = append(summaries, SecretSummary{
			Category: "static",
			Key:      key,
			Fresh:    fresh,
			Username: entry.Payload.Username,
		})
	}
	return summaries
}
