// Package tokenmgr implements the client-credentials access-token
// lifecycle: an in-memory cache backed by a durable KV record, early
// refresh, and singleflight collapse of concurrent refreshes.
package tokenmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/clock"
	"github.com/wisbric/pdpsync/internal/kvstore"
)

const (
	kvKey = "adobe_io_access_token"

	defaultExpiresIn    = 86400 * time.Second
	defaultRefreshBuffer = 5 * time.Minute
	defaultScope         = "adobeio_api,openid,read_organizations"
)

// Token is the cached access-token record.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (t Token) staleAt(now time.Time, buffer time.Duration) bool {
	return t.AccessToken == "" || !t.ExpiresAt.After(now.Add(buffer))
}

// Config holds the identity-service credentials and endpoint.
type Config struct {
	ClientID      string
	ClientSecret  string
	IMSOrgID      string
	TokenEndpoint string
	Scope         string
	RefreshBuffer time.Duration
}

// Manager issues and caches access tokens.
type Manager struct {
	cfg   Config
	kv    kvstore.Store
	clk   clock.Clock
	group singleflight.Group

	mu    sync.Mutex
	cache Token

	exchange func(ctx context.Context) (Token, error) // overridable for tests
}

// New creates a Manager. It fails fast with CredentialsMissing if any of
// client_id, client_secret, ims_org_id is empty.
func New(cfg Config, kv kvstore.Store, clk clock.Clock) (*Manager, error) {
	if cfg.ClientID == "" {
		return nil, &apperr.CredentialsMissing{Field: "client_id"}
	}
	if cfg.ClientSecret == "" {
		return nil, &apperr.CredentialsMissing{Field: "client_secret"}
	}
	if cfg.IMSOrgID == "" {
		return nil, &apperr.CredentialsMissing{Field: "ims_org_id"}
	}
	if cfg.Scope == "" {
		cfg.Scope = defaultScope
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = defaultRefreshBuffer
	}

	m := &Manager{cfg: cfg, kv: kv, clk: clk}
	m.exchange = m.doExchange
	return m, nil
}

// GetAccessToken returns a valid token, refreshing early when within
// RefreshBuffer of expiry. Concurrent calls collapse into one upstream
// request via singleflight.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	now := m.clk.Now()

	m.mu.Lock()
	cached := m.cache
	m.mu.Unlock()

	if !cached.staleAt(now, m.cfg.RefreshBuffer) {
		return cached.AccessToken, nil
	}

	if kvTok, ok, err := m.readKV(ctx); err == nil && ok && !kvTok.staleAt(now, m.cfg.RefreshBuffer) {
		m.mu.Lock()
		m.cache = kvTok
		m.mu.Unlock()
		return kvTok.AccessToken, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		tok, err := m.exchange(ctx)
		if err != nil {
			return Token{}, err
		}
		m.mu.Lock()
		m.cache = tok
		m.mu.Unlock()
		if putErr := m.writeKV(ctx, tok); putErr != nil {
			return tok, putErr
		}
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(Token).AccessToken, nil
}

func (m *Manager) readKV(ctx context.Context) (Token, bool, error) {
	raw, ok, err := m.kv.Get(ctx, kvKey)
	if err != nil || !ok {
		return Token{}, false, err
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, false, fmt.Errorf("decoding cached token: %w", err)
	}
	return tok, true, nil
}

func (m *Manager) writeKV(ctx context.Context, tok Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token for cache: %w", err)
	}
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		ttl = defaultExpiresIn
	}
	return m.kv.Put(ctx, kvKey, raw, ttl)
}

// doExchange performs the client_credentials grant against the identity
// endpoint via golang.org/x/oauth2/clientcredentials.
func (m *Manager) doExchange(ctx context.Context) (Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		TokenURL:     m.cfg.TokenEndpoint,
		Scopes:       strings.Split(m.cfg.Scope, ","),
		EndpointParams: url.Values{
			"client_id": {m.cfg.ClientID},
		},
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return Token{}, &apperr.IssuerRejected{
				Status: retrieveErr.Response.StatusCode,
				Body:   string(retrieveErr.Body),
			}
		}
		return Token{}, &apperr.IssuerRejected{Status: 0, Body: err.Error()}
	}

	now := m.clk.Now()
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultExpiresIn)
	}

	return Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}, nil
}
