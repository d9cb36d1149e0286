package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lms/internal/application/models"
	"lms/pkg/platform/circuit"
	"lms/pkg/platform/sentinel"
)

// BoundingBox is a latitude/longitude rectangle.
type BoundingBox struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// MalawiBounds covers the national territory with a small margin.
var MalawiBounds = BoundingBox{
	MinLatitude:  -17.2,
	MaxLatitude:  -9.3,
	MinLongitude: 32.6,
	MaxLongitude: 36.0,
}

func (b BoundingBox) Contains(p models.GeoPoint) bool {
	return p.Latitude >= b.MinLatitude && p.Latitude <= b.MaxLatitude &&
		p.Longitude >= b.MinLongitude && p.Longitude <= b.MaxLongitude
}

const (
	geofenceMaxConfidence  = 0.95
	geofenceMinConfidence  = 0.5
	geofencePreciseMetres  = 50.0
	geofenceDecayPerMetre  = 0.001
	locationVerifiedMsg    = "Location verified successfully"
	locationOutsideAreaMsg = "Location is outside the service area"
)

// GeofencePolicy verifies that coordinates fall inside a service area.
// Confidence is 0.95 for fixes reported within 50 m and decays linearly with
// reported accuracy down to 0.5.
type GeofencePolicy struct {
	bounds BoundingBox
}

func NewGeofencePolicy(bounds BoundingBox) *GeofencePolicy {
	return &GeofencePolicy{bounds: bounds}
}

func (g *GeofencePolicy) Check(_ context.Context, p models.GeoPoint) (LocationResult, error) {
	if !g.bounds.Contains(p) {
		return LocationResult{Verified: false, Confidence: 0, Message: locationOutsideAreaMsg}, nil
	}
	confidence := geofenceMaxConfidence
	if p.Accuracy > geofencePreciseMetres {
		confidence -= (p.Accuracy - geofencePreciseMetres) * geofenceDecayPerMetre
	}
	confidence = max(confidence, geofenceMinConfidence)
	return LocationResult{Verified: true, Confidence: confidence, Message: locationVerifiedMsg}, nil
}

// DirectoryLookup resolves accounts from a fixed directory keyed by
// "provider:phoneNumber". Listed accounts are active.
type DirectoryLookup struct {
	accounts map[string]Account
}

// NewDirectoryLookup builds a lookup from "provider:phone" -> holder name.
func NewDirectoryLookup(entries map[string]string) *DirectoryLookup {
	accounts := make(map[string]Account, len(entries))
	for key, name := range entries {
		provider, phone, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		accounts[directoryKey(provider, phone)] = Account{HolderName: strings.TrimSpace(name), Active: true}
	}
	return &DirectoryLookup{accounts: accounts}
}

func (d *DirectoryLookup) Lookup(_ context.Context, provider, phoneNumber string) (Account, error) {
	account, ok := d.accounts[directoryKey(provider, phoneNumber)]
	if !ok {
		return Account{}, sentinel.ErrNotFound
	}
	return account, nil
}

func directoryKey(provider, phone string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + ":" + strings.TrimSpace(phone)
}

const accountCacheKeyPrefix = "lookup:account:"

// CachedAccountLookup memoizes another lookup in Redis, including misses.
// Redis failures fall through to the wrapped lookup.
type CachedAccountLookup struct {
	next   AccountLookup
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type cachedAccount struct {
	Found   bool    `json:"found"`
	Account Account `json:"account"`
}

// CachedLookupOption configures a CachedAccountLookup.
type CachedLookupOption func(*CachedAccountLookup)

func WithCacheLogger(logger *slog.Logger) CachedLookupOption {
	return func(c *CachedAccountLookup) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCachedAccountLookup(next AccountLookup, client *redis.Client, ttl time.Duration, opts ...CachedLookupOption) *CachedAccountLookup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := &CachedAccountLookup{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedAccountLookup) Lookup(ctx context.Context, provider, phoneNumber string) (Account, error) {
	key := accountCacheKeyPrefix + directoryKey(provider, phoneNumber)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedAccount
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			if !cached.Found {
				return Account{}, sentinel.ErrNotFound
			}
			return cached.Account, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "account cache read failed", "error", err)
	}

	account, err := c.next.Lookup(ctx, provider, phoneNumber)
	found := err == nil
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return Account{}, err
	}
	payload, jsonErr := json.Marshal(cachedAccount{Found: found, Account: account})
	if jsonErr == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "account cache write failed", "error", setErr)
		}
	}
	if !found {
		return Account{}, sentinel.ErrNotFound
	}
	return account, nil
}

// GuardedAccountLookup fails fast while the provider circuit is open. An
// unknown account is a successful call.
type GuardedAccountLookup struct {
	next    AccountLookup
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuardedAccountLookup(next AccountLookup, breaker *circuit.Breaker, logger *slog.Logger) *GuardedAccountLookup {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GuardedAccountLookup{next: next, breaker: breaker, logger: logger}
}

func (g *GuardedAccountLookup) Lookup(ctx context.Context, provider, phoneNumber string) (Account, error) {
	if !g.breaker.Allow() {
		return Account{}, fmt.Errorf("%s circuit open: %w", g.breaker.Name(), sentinel.ErrUnavailable)
	}
	account, err := g.next.Lookup(ctx, provider, phoneNumber)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "account lookup circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
		return Account{}, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "account lookup circuit closed", "breaker", g.breaker.Name())
	}
	return account, err
}
