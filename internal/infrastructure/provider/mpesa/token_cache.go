package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/config"
	"github.com/farunova-art/farunova-sub001/internal/domain/dto"
	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/metrics"
)

const tokenPath = "/oauth/v1/generate?grant_type=client_credentials"

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresIn   *dto.FlexInt `json:"expires_in"`
}

// TokenCache hands out gateway bearer tokens, exchanging credentials only when the
// cached token is within the safety margin of expiry.
//
// Reads take no lock. Concurrent refreshes may each perform an exchange; the last
// write wins and every issued token is valid.
type TokenCache struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	lifetime       time.Duration
	margin         time.Duration

	store   TokenStore
	current atomic.Pointer[CachedToken]

	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewTokenCache(cfg config.MpesaConfig, store TokenStore, client *http.Client, logger *zap.Logger, m *metrics.Metrics) *TokenCache {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &TokenCache{
		baseURL:        cfg.GatewayURL(),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		lifetime:       cfg.TokenLifetime,
		margin:         cfg.TokenSafetyMargin,
		store:          store,
		client:         client,
		logger:         logger,
		metrics:        m,
		now:            time.Now,
	}
}

// Token returns a usable bearer token.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	now := c.now()
	if tok := c.current.Load(); tok.Usable(now, c.margin) {
		return tok.AccessToken, nil
	}

	stored, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("Failed to read shared token store", zap.Error(err))
	} else if stored.Usable(now, c.margin) {
		c.current.Store(stored)
		return stored.AccessToken, nil
	}

	tok, err := c.exchange(ctx)
	if err != nil {
		c.metrics.TokenExchange("failure")
		return "", err
	}
	c.metrics.TokenExchange("success")

	c.current.Store(tok)
	if err := c.store.Save(ctx, tok); err != nil {
		c.logger.Warn("Failed to persist gateway token", zap.Error(err))
	}
	return tok.AccessToken, nil
}

// Clear drops the cached token so the next call re-authenticates.
func (c *TokenCache) Clear(ctx context.Context) error {
	c.current.Store(nil)
	if err := c.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	c.logger.Info("Gateway token cache cleared")
	return nil
}

func (c *TokenCache) exchange(ctx context.Context) (*CachedToken, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return nil, paymentErrors.NewAuthError("failed to create credential request", err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.consumerKey + ":" + c.consumerSecret))
	httpReq.Header.Set("Authorization", "Basic "+auth)

	issuedAt := c.now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("Credential exchange request failed", zap.Error(err))
		return nil, paymentErrors.NewAuthError("credential endpoint unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, paymentErrors.NewAuthError("failed to read credential response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Credential exchange rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)))
		return nil, paymentErrors.NewAuthError(fmt.Sprintf("credential exchange returned HTTP %d", resp.StatusCode), nil)
	}

	var result tokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, paymentErrors.NewAuthError("malformed credential response", err)
	}
	if result.AccessToken == "" {
		return nil, paymentErrors.NewAuthError("credential response has no access_token", nil)
	}

	lifetime := c.lifetime
	if result.ExpiresIn != nil && *result.ExpiresIn > 0 {
		lifetime = time.Duration(*result.ExpiresIn) * time.Second
	}

	c.logger.Info("Gateway token issued", zap.Duration("lifetime", lifetime))
	return &CachedToken{
		AccessToken: result.AccessToken,
		IssuedAt:    issuedAt,
		Lifetime:    lifetime,
	}, nil
}
