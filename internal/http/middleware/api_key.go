package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/scrum-callbot/internal/config"
)

const (
	ctxClient    = "api_client"
	ctxClientRPS = "api_client_rps"
)

// ClientFromCtx returns the API client name set by APIKeyMiddleware.
func ClientFromCtx(c echo.Context) (string, bool) {
	name, ok := c.Get(ctxClient).(string)
	return name, ok && name != ""
}

// APIKeyMiddleware authenticates /v1 callers by X-API-Key against the configured keys.
func APIKeyMiddleware(keys []config.APIKeyConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}

			client, ok := lookup(keys, key)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(ctxClient, client.Name)
			if client.RPS > 0 {
				c.Set(ctxClientRPS, client.RPS)
			}
			return next(c)
		}
	}
}

func lookup(keys []config.APIKeyConfig, key string) (config.APIKeyConfig, bool) {
	var found config.APIKeyConfig
	match := 0
	// every entry is compared so timing does not depend on which key matched
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(key)) == 1 {
			found = k
			match = 1
		}
	}
	return found, match == 1
}
