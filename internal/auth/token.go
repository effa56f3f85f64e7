package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type TokenConfig struct {
	AppID     string
	AppSecret string
	TenantID  string
	// TokenURL defaults to the tenant's v2.0 token endpoint.
	TokenURL string
	Scopes   []string
}

func (c TokenConfig) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	tenant := c.TenantID
	if tenant == "" {
		tenant = "botframework.com"
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenant)
}

// NewTokenSource exchanges the app id/secret for platform tokens. The returned source caches the
// token process-wide, refreshes it on expiry and is safe for concurrent use.
func NewTokenSource(ctx context.Context, cfg TokenConfig) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppSecret,
		TokenURL:     cfg.tokenURL(),
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx)
}

// NewHTTPClient returns a client that attaches the bearer token from ts to every request.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	c := oauth2.NewClient(ctx, ts)
	c.Timeout = timeout
	return c
}
