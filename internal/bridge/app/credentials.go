package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaysms/twilio-bridge/internal/bridge/domain"
)

// CredentialProvider resolves the Twilio credentials responsible for a
// phone number owned by this deployment. The single-tenant variant is a
// constant function; the multi-tenant variant looks the number up per call.
type CredentialProvider interface {
	Resolve(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error)
}

// StaticCredentials is the single-tenant provider: one account configured
// at startup, every number resolves to it.
type StaticCredentials struct {
	AccountSID string
	AuthToken  string
}

func (s StaticCredentials) Resolve(_ context.Context, _ string) (*domain.TenantCredentials, error) {
	return &domain.TenantCredentials{AccountSID: s.AccountSID, AuthToken: s.AuthToken}, nil
}

// TenantResolver is the multi-tenant provider backed by the tenant_numbers
// table. An unrecognized number fails with domain.ErrUnknownTenant so
// misrouted webhooks fail loudly instead of running with wrong credentials.
type TenantResolver struct {
	repo   domain.TenantRepository
	logger *slog.Logger
}

func NewTenantResolver(repo domain.TenantRepository, logger *slog.Logger) *TenantResolver {
	return &TenantResolver{repo: repo, logger: logger}
}

func (r *TenantResolver) Resolve(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error) {
	creds, err := r.repo.FindByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		r.logger.WarnContext(ctx, "No tenant for destination number", "number", RedactNumber(phoneNumber))
		return nil, domain.ErrUnknownTenant
	}
	return creds, nil
}

// CachedCredentialProvider wraps another provider with a Redis TTL cache.
// Only positive resolutions are cached; ErrUnknownTenant is re-resolved
// every time so newly provisioned numbers take effect immediately.
type CachedCredentialProvider struct {
	next   CredentialProvider
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCredentialProvider(next CredentialProvider, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCredentialProvider {
	return &CachedCredentialProvider{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedCredentialProvider) Resolve(ctx context.Context, phoneNumber string) (*domain.TenantCredentials, error) {
	key := credentialCacheKey(phoneNumber)

	cached, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var creds cachedCredentials
		if err := json.Unmarshal(cached, &creds); err == nil {
			return &domain.TenantCredentials{
				AccountSID: creds.AccountSID,
				AuthToken:  creds.AuthToken,
				TenantID:   creds.TenantID,
			}, nil
		}
		c.logger.WarnContext(ctx, "Dropping corrupt credential cache entry", "key", key)
		c.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		// cache outage degrades to direct resolution
		c.logger.WarnContext(ctx, "Credential cache read failed", "error", err)
	}

	creds, err := c.next.Resolve(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedCredentials{
		AccountSID: creds.AccountSID,
		AuthToken:  creds.AuthToken,
		TenantID:   creds.TenantID,
	})
	if err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "Credential cache write failed", "error", err)
		}
	}
	return creds, nil
}

// cachedCredentials exists because domain.TenantCredentials deliberately
// excludes AuthToken from JSON.
type cachedCredentials struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	TenantID   string `json:"tenant_id,omitempty"`
}

func credentialCacheKey(phoneNumber string) string {
	return fmt.Sprintf("tenant:number:%s", phoneNumber)
}

// RedactNumber keeps only the last four digits of a phone number for
// logging.
func RedactNumber(number string) string {
	if len(number) <= 4 {
		return "****"
	}
	return "****" + number[len(number)-4:]
}
