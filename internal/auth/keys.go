package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

var (
	ErrUnknownKey      = errors.New("signing key not published")
	ErrKeysUnavailable = errors.New("signing keys unavailable")
)

// KeyProvider resolves the public key for a token's kid.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (any, error)
}

// KeySet caches the platform's published JWKS process-wide. It is fetched on first use and
// refreshed after RefreshInterval, or earlier when a token names a kid we have not seen.
type KeySet struct {
	URL             string
	Client          *http.Client
	RefreshInterval time.Duration
	// MinRefetch bounds how often an unknown kid may force a fetch.
	MinRefetch time.Duration
	Now        func() time.Time

	mu        sync.RWMutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time

	fetchMu sync.Mutex
}

func NewKeySet(url string, refresh time.Duration) *KeySet {
	if refresh <= 0 {
		refresh = 24 * time.Hour
	}
	return &KeySet{
		URL:             url,
		Client:          &http.Client{Timeout: 10 * time.Second},
		RefreshInterval: refresh,
		MinRefetch:      time.Minute,
		Now:             time.Now,
	}
}

var _ KeyProvider = (*KeySet)(nil)

func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	key, fetchedAt, ok := k.lookup(kid)
	if ok && k.Now().Sub(fetchedAt) < k.RefreshInterval {
		return key, nil
	}

	k.fetchMu.Lock()
	defer k.fetchMu.Unlock()

	// another caller may have refreshed while we waited
	key2, fetchedAt2, ok2 := k.lookup(kid)
	if !fetchedAt2.Equal(fetchedAt) && ok2 {
		return key2, nil
	}
	if !ok && !fetchedAt2.IsZero() && k.Now().Sub(fetchedAt2) < k.MinRefetch {
		if ok2 {
			return key2, nil
		}
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}

	if err := k.fetch(ctx); err != nil {
		if ok2 {
			// stale but usable
			return key2, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}

	key3, _, ok3 := k.lookup(kid)
	if !ok3 {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	return key3, nil
}

func (k *KeySet) lookup(kid string) (any, time.Time, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, jwk := range k.keys.Key(kid) {
		if jwk.Key != nil {
			return jwk.Key, k.fetchedAt, true
		}
	}
	return nil, k.fetchedAt, false
}

func (k *KeySet) fetch(ctx context.Context) error {
	if k.URL == "" {
		return errors.New("no jwks url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.URL, nil)
	if err != nil {
		return err
	}
	res, err := k.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("jwks url=%s status=%d", k.URL, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	k.mu.Lock()
	k.keys = set
	k.fetchedAt = k.Now()
	k.mu.Unlock()
	return nil
}
