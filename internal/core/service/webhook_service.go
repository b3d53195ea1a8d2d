package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

// Fixed identifiers of the auth provider's user table.
const (
	webhookEventInsert = "INSERT"
	webhookEventUpdate = "UPDATE"
	webhookEventDelete = "DELETE"
	webhookTable       = "users"
	webhookSchema      = "auth"
)

type userCreatedPayload struct {
	Type   string `json:"type"`
	Table  string `json:"table"`
	Schema string `json:"schema"`
	Record struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		UserMetadata struct {
			FullName string `json:"full_name"`
		} `json:"raw_user_meta_data"`
	} `json:"record"`
}

type webhookService struct {
	secret []byte
	prov   *provisioner
	audit  ports.AuditRepository
	cache  ports.AuthzCache
	guard  ports.ReplayGuard
	log    zerolog.Logger
}

// NewWebhookService returns the signup webhook handler. An empty secret
// rejects every delivery.
func NewWebhookService(
	secret string,
	roles ports.RoleRepository,
	profiles ports.ProfileRepository,
	audit ports.AuditRepository,
	cache ports.AuthzCache,
	guard ports.ReplayGuard,
	log zerolog.Logger,
) ports.WebhookService {
	return &webhookService{
		secret: []byte(secret),
		prov:   &provisioner{roles: roles, profiles: profiles, audit: audit, log: log},
		audit:  audit,
		cache:  cache,
		guard:  guard,
		log:    log,
	}
}

// VerifySignature checks a hex HMAC-SHA256 of body in constant time.
// A "sha256=" prefix on the signature is accepted.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// HandleUserCreated authenticates the raw body, then provisions the announced
// user: profile, default primary role and a user.registered audit event.
func (s *webhookService) HandleUserCreated(ctx context.Context, body []byte, signature string, meta domain.RequestMeta) (ports.WebhookResult, error) {
	res, err := s.handleUserCreated(ctx, body, signature, meta)
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		metrics.WebhookDeliveriesTotal.WithLabelValues("signature_invalid").Inc()
	case err != nil:
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
	default:
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(res.Status)).Inc()
	}
	return res, err
}

func (s *webhookService) handleUserCreated(ctx context.Context, body []byte, signature string, meta domain.RequestMeta) (ports.WebhookResult, error) {
	// 1. Authenticate before parsing anything.
	if !VerifySignature(s.secret, body, signature) {
		return ports.WebhookResult{}, domain.ErrSignatureInvalid
	}

	// 2. Validate payload shape.
	var p userCreatedPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ports.WebhookResult{}, fmt.Errorf("%w: malformed webhook payload", domain.ErrInvalidInput)
	}
	if p.Table != webhookTable || p.Schema != webhookSchema {
		return ports.WebhookResult{}, fmt.Errorf("%w: unexpected source %s.%s", domain.ErrInvalidInput, p.Schema, p.Table)
	}
	switch p.Type {
	case webhookEventInsert:
	case webhookEventUpdate, webhookEventDelete:
		return ports.WebhookResult{Status: ports.WebhookIgnored, Message: "event type " + p.Type + " ignored"}, nil
	default:
		return ports.WebhookResult{}, fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidInput, p.Type)
	}
	userID, email := p.Record.ID, p.Record.Email
	if userID == "" || email == "" {
		return ports.WebhookResult{}, fmt.Errorf("%w: record requires id and email", domain.ErrInvalidInput)
	}

	// 3. Replay guard. Provisioning is idempotent, so a guard failure only
	// costs a redundant pass.
	key := "user-created:" + userID
	first, err := s.guard.FirstSeen(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("replay check failed, processing anyway")
	} else if !first {
		s.log.Debug().Str("user_id", userID).Msg("duplicate webhook delivery skipped")
		return ports.WebhookResult{Status: ports.WebhookDuplicate, UserID: userID, Message: "already processed"}, nil
	}

	// 4. Provision.
	if err := s.provision(ctx, userID, email, p.Record.UserMetadata.FullName, meta); err != nil {
		// Let the provider's retry through.
		if ferr := s.guard.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			s.log.Warn().Err(ferr).Str("user_id", userID).Msg("failed to clear replay key")
		}
		return ports.WebhookResult{}, fmt.Errorf("user created webhook: %w", err)
	}

	s.log.Info().Str("user_id", userID).Msg("user provisioned from webhook")

	return ports.WebhookResult{Status: ports.WebhookProcessed, UserID: userID, Message: "user provisioned"}, nil
}

func (s *webhookService) provision(ctx context.Context, userID, email, fullName string, meta domain.RequestMeta) error {
	prov, err := s.prov.provision(ctx, userID, domain.DefaultFullName(fullName, email), sourceWebhook, meta)
	if err != nil {
		return err
	}

	if prov.profileCreated || prov.roleCreated {
		actor := userID
		ev := domain.NewAuditEvent(domain.EventUserRegistered, &actor, map[string]any{
			"email":        email,
			"default_role": string(domain.DefaultRole),
		}, meta)
		if _, err := s.audit.Record(ctx, ev); err != nil {
			return fmt.Errorf("record registration: %w", err)
		}
		invalidate(ctx, s.cache, s.log, userID)
	}
	return nil
}
