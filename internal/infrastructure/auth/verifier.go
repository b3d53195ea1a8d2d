// Package auth verifies bearer tokens issued by the hosted auth provider.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

const defaultLeeway = 30 * time.Second

var errMissingSubject = errors.New("token has no subject")

// VerifierConfig holds the claim expectations applied to every token.
type VerifierConfig struct {
	Audience   string
	Issuer     string
	Algorithms []string
	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
}

// tokenClaims mirrors the provider's access token payload.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email"`
	AppMetadata struct {
		Role  string   `json:"role"`
		Roles []string `json:"roles"`
	} `json:"app_metadata"`
}

// JWTVerifier checks signature, expiry, audience and subject.
type JWTVerifier struct {
	keys   ports.KeySource
	parser *jwt.Parser
	log    zerolog.Logger
}

func NewJWTVerifier(keys ports.KeySource, cfg VerifierConfig, log zerolog.Logger) *JWTVerifier {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTVerifier{
		keys:   keys,
		parser: jwt.NewParser(opts...),
		log:    log.With().Str("component", "token_verifier").Logger(),
	}
}

// Verify returns the token's claims or a *domain.AuthError.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*domain.Claims, error) {
	claims := &tokenClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.keys.SigningKey(ctx)
	})
	if err != nil {
		return nil, v.reject(classify(err), err)
	}
	if claims.Subject == "" {
		return nil, v.reject(domain.AuthMalformedClaims, errMissingSubject)
	}

	metrics.TokenVerificationsTotal.WithLabelValues("ok").Inc()

	out := &domain.Claims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		RoleHints: claims.AppMetadata.Roles,
	}
	if claims.AppMetadata.Role != "" {
		out.RoleHints = append(out.RoleHints, claims.AppMetadata.Role)
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (v *JWTVerifier) reject(kind domain.AuthErrorKind, err error) error {
	metrics.TokenVerificationsTotal.WithLabelValues(string(kind)).Inc()
	v.log.Debug().Err(err).Str("kind", string(kind)).Msg("token rejected")
	return domain.NewAuthError(kind, err)
}

// classify maps parser errors to rejection kinds. Order matters: an expired
// token also carries the generic invalid-claims error.
func classify(err error) domain.AuthErrorKind {
	switch {
	case errors.Is(err, domain.ErrKeyUnavailable):
		return domain.AuthKeyUnavailable
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.AuthExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.AuthInvalidSignature
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return domain.AuthMalformedClaims
	default:
		return domain.AuthInvalidToken
	}
}
