package auth

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

const (
	defaultKeyTTL       = time.Hour
	defaultFetchTimeout = 10 * time.Second
	maxKeySetBytes      = 1 << 20

	// A single active signing key is assumed, so one fixed cache slot suffices.
	signingKeySlot = "signing-key"
)

var (
	errEmptyKeySet = errors.New("key set is empty")
	errUnusableKey = errors.New("first key is not a usable public key")
	errBadStatus   = errors.New("unexpected status from key set endpoint")
)

// JWKSConfig configures a JWKSKeySource.
type JWKSConfig struct {
	URL        string
	TTL        time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
}

// JWKSKeySource fetches the issuer's published key set and keeps its first
// key for TTL. A cached key is always preferred over a fetch, and a key is
// never served past its TTL: an expired slot forces a fetch, and a failed
// fetch is an error rather than a stale key.
//
// The TTL bounds how long a rotated-out key keeps verifying tokens. Dropping
// the cache would be equally correct but costs a round-trip per request.
type JWKSKeySource struct {
	url     string
	timeout time.Duration
	client  *http.Client
	cache   *expirable.LRU[string, crypto.PublicKey]
	group   singleflight.Group
	log     zerolog.Logger
}

func NewJWKSKeySource(cfg JWKSConfig, log zerolog.Logger) *JWKSKeySource {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultKeyTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &JWKSKeySource{
		url:     cfg.URL,
		timeout: timeout,
		client:  client,
		cache:   expirable.NewLRU[string, crypto.PublicKey](1, nil, ttl),
		log:     log.With().Str("component", "jwks").Logger(),
	}
}

// SigningKey returns the cached key or fetches it. Concurrent misses share
// one fetch; a caller whose context ends stops waiting for it.
func (s *JWKSKeySource) SigningKey(ctx context.Context) (crypto.PublicKey, error) {
	if key, ok := s.cache.Get(signingKeySlot); ok {
		return key, nil
	}

	ch := s.group.DoChan(signingKeySlot, func() (any, error) {
		// Shared by every waiter, so it must not die with the first caller.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		key, err := s.fetch(fetchCtx)
		if err != nil {
			metrics.KeyFetchesTotal.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Str("url", s.url).Msg("signing key fetch failed")
			return nil, err
		}
		metrics.KeyFetchesTotal.WithLabelValues("ok").Inc()
		s.cache.Add(signingKeySlot, key)
		return key, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrKeyUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrKeyUnavailable, res.Err)
		}
		return res.Val.(crypto.PublicKey), nil
	}
}

func (s *JWKSKeySource) fetch(ctx context.Context) (crypto.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build key set request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errBadStatus, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode key set: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, errEmptyKeySet
	}

	pub := set.Keys[0].Public()
	if !pub.Valid() {
		return nil, errUnusableKey
	}

	s.log.Debug().Str("kid", set.Keys[0].KeyID).Str("alg", set.Keys[0].Algorithm).Msg("signing key loaded")
	return pub.Key, nil
}

// StaticKeySource serves a fixed key, typically a shared HMAC secret for
// issuers that sign with HS256.
type StaticKeySource struct {
	key crypto.PublicKey
}

func NewStaticKeySource(key crypto.PublicKey) *StaticKeySource {
	return &StaticKeySource{key: key}
}

func (s *StaticKeySource) SigningKey(context.Context) (crypto.PublicKey, error) {
	if s.key == nil {
		return nil, domain.ErrKeyUnavailable
	}
	return s.key, nil
}
