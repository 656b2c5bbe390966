// Package jwksfetcher owns the JSON Web Key Set this service verifies
// bearer tokens against: its initial configuration (set once, like the
// backend principal), its periodic refresh from the upstream identity
// provider, and the in-memory jwk.Set handed to the JWT decoder.
package jwksfetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
	"sspbackend/internal/sspshared/store"
)

const configJWKSKey = "jwks_json"

// HTTPDoer is the subset of *http.Client this package needs, narrowed
// so tests can substitute a fake transport without a real listener.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Service fetches, caches, and serves the upstream JWKS.
type Service struct {
	store    store.Store
	client   HTTPDoer
	jwksURI  string
	ticker   *time.Ticker
	stopOnce sync.Once
	stopCh   chan struct{}

	mu     sync.RWMutex
	cached jwk.Set
}

// NewService wires a Service to its store, HTTP client, and the
// upstream JWKS endpoint it refreshes from.
func NewService(s store.Store, client HTTPDoer, jwksURI string) *Service {
	return &Service{store: s, client: client, jwksURI: jwksURI, stopCh: make(chan struct{})}
}

// SetJWKS records the initial key set. It traps (returns a Conflict
// error) if one is already configured: like the backend principal, the
// very first JWKS is pinned deliberately rather than ever silently
// replaced by a later PUT. Background refresh — SyncJWKS — is the only
// sanctioned way to rotate keys afterward.
func (svc *Service) SetJWKS(ctx context.Context, keySet sspdomain.Auth0JWKSet) error {
	_, found, err := svc.GetJWKS(ctx)
	if err != nil {
		return err
	}

	if found {
		return apperr.New(apperr.KindConflict, "jwks is already configured; use sync to rotate keys")
	}

	return svc.persist(ctx, keySet)
}

// SyncJWKS fetches the current key set from the configured upstream
// endpoint and overwrites the cached and persisted copies.
func (svc *Service) SyncJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.jwksURI, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to build jwks fetch request", err)
	}

	resp, err := svc.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to reach jwks endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.KindTransient, "jwks endpoint did not return 200 OK")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to read jwks response body", err)
	}

	var keySet sspdomain.Auth0JWKSet
	if err := json.Unmarshal(body, &keySet); err != nil {
		return apperr.Wrap(apperr.KindValidationError, "jwks response is not valid json", err)
	}

	return svc.persist(ctx, keySet)
}

// GetJWKS returns the currently configured key set, if any.
func (svc *Service) GetJWKS(ctx context.Context) (sspdomain.Auth0JWKSet, bool, error) {
	raw, found, err := svc.store.Get(ctx, magic.MemoryConfig, []byte(configJWKSKey))
	if err != nil || !found {
		return sspdomain.Auth0JWKSet{}, found, err
	}

	var keySet sspdomain.Auth0JWKSet
	if err := json.Unmarshal(raw, &keySet); err != nil {
		return sspdomain.Auth0JWKSet{}, false, apperr.Wrap(apperr.KindValidationError, "stored jwks is corrupt", err)
	}

	return keySet, true, nil
}

// KeySet implements jwtdecoder.KeySetProvider, returning the in-memory
// parsed key set built on the most recent Set or Sync.
func (svc *Service) KeySet() (jwk.Set, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	if svc.cached == nil {
		return nil, apperr.New(apperr.KindNoWorkingKey, "jwks has not been configured yet")
	}

	return svc.cached, nil
}

func (svc *Service) persist(ctx context.Context, keySet sspdomain.Auth0JWKSet) error {
	parsed, err := toJWKSet(keySet)
	if err != nil {
		return err
	}

	blob, err := json.Marshal(keySet)
	if err != nil {
		return apperr.Wrap(apperr.KindValidationError, "failed to encode jwks for storage", err)
	}

	if err := svc.store.Put(ctx, magic.MemoryConfig, []byte(configJWKSKey), blob); err != nil {
		return err
	}

	svc.mu.Lock()
	svc.cached = parsed
	svc.mu.Unlock()

	return nil
}

func toJWKSet(keySet sspdomain.Auth0JWKSet) (jwk.Set, error) {
	raw, err := json.Marshal(keySet)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidationError, "failed to encode jwks", err)
	}

	set, err := jwk.Parse(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidationError, "jwks does not contain valid json web keys", err)
	}

	return set, nil
}

// StartBackgroundRefresh launches a goroutine that calls SyncJWKS on
// every tick of interval until Stop is called. Sync failures are
// reported to onError rather than aborting the loop: a transient
// outage at the identity provider should not stop serving the
// last-known-good key set.
func (svc *Service) StartBackgroundRefresh(ctx context.Context, interval time.Duration, onError func(error)) {
	svc.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-svc.ticker.C:
				if err := svc.SyncJWKS(ctx); err != nil && onError != nil {
					onError(err)
				}
			case <-svc.stopCh:
				return
			}
		}
	}()
}

// Stop halts the background refresh loop started by
// StartBackgroundRefresh. Safe to call more than once.
func (svc *Service) Stop() {
	svc.stopOnce.Do(func() {
		if svc.ticker != nil {
			svc.ticker.Stop()
		}

		close(svc.stopCh)
	})
}
