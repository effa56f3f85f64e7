package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Reason classifies why an inbound notification was not trusted.
type Reason string

const (
	ReasonMissing         Reason = "missing"
	ReasonMalformed       Reason = "malformed"
	ReasonUnknownKey      Reason = "unknown_key"
	ReasonSignature       Reason = "signature"
	ReasonExpired         Reason = "expired"
	ReasonNotYetValid     Reason = "not_yet_valid"
	ReasonIssuer          Reason = "issuer"
	ReasonAudience        Reason = "audience"
	ReasonKeysUnavailable Reason = "keys_unavailable"
)

// Result is a classification, not a fault: invalid credentials are an expected outcome.
type Result struct {
	Valid  bool
	Reason Reason
	Claims *jwt.RegisteredClaims
}

type Config struct {
	AppID     string
	AppSecret string
	Issuers   []string
	// ClockSkew is tolerated on exp and nbf.
	ClockSkew time.Duration
	// AllowSharedSecret accepts HS256 tokens signed with AppSecret (emulator and local runs).
	AllowSharedSecret bool
	Now               func() time.Time
}

// Authenticator validates the bearer token the platform attaches to every webhook delivery.
type Authenticator struct {
	cfg  Config
	keys KeyProvider
}

func NewAuthenticator(cfg Config, keys KeyProvider) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{cfg: cfg, keys: keys}
}

// Validate inspects the Authorization header of r. The body is not read.
func (a *Authenticator) Validate(r *http.Request) Result {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return Result{Reason: ReasonMissing}
	}

	methods := []string{jwt.SigningMethodRS256.Alg()}
	if a.cfg.AllowSharedSecret && a.cfg.AppSecret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithAudience(a.cfg.AppID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.cfg.Now),
	)

	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(raw, claims, a.keyFunc(r.Context()))
	if err != nil {
		return Result{Reason: classify(err)}
	}

	if len(a.cfg.Issuers) > 0 && !slices.Contains(a.cfg.Issuers, claims.Issuer) {
		return Result{Reason: ReasonIssuer}
	}
	return Result{Valid: true, Claims: claims}
}

func (a *Authenticator) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return []byte(a.cfg.AppSecret), nil
		case *jwt.SigningMethodRSA:
			if a.keys == nil {
				return nil, ErrKeysUnavailable
			}
			kid, _ := t.Header["kid"].(string)
			return a.keys.Key(ctx, kid)
		default:
			return nil, jwt.ErrTokenSignatureInvalid
		}
	}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, ErrUnknownKey):
		return ReasonUnknownKey
	case errors.Is(err, ErrKeysUnavailable):
		return ReasonKeysUnavailable
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonAudience
	default:
		return ReasonSignature
	}
}

func bearerToken(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
