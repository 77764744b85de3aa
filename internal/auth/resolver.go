package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenHeader carries the bearer token issued at the OAuth callback.
const TokenHeader = "X-Auth-Token"

var (
	ErrMissingResolverCodec      = errors.New("auth: resolver requires a token codec")
	ErrMissingResolverCookieName = errors.New("auth: resolver requires a cookie name")
)

// ResolverConfig describes how request credentials are resolved.
type ResolverConfig struct {
	Codec      *Codec
	CookieName string
	Logger     *zap.Logger
}

// Resolver turns request credentials into a Principal. Bearer tokens take
// precedence over the session cookie so stateless deployments never depend
// on cookies at all.
type Resolver struct {
	codec      *Codec
	cookieName string
	logger     *zap.Logger
}

// NewResolver constructs a Resolver with validated configuration.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Codec == nil {
		return nil, ErrMissingResolverCodec
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingResolverCookieName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		codec:      cfg.Codec,
		cookieName: cookieName,
		logger:     logger,
	}, nil
}

// CookieName returns the session cookie consulted when no bearer token is set.
func (r *Resolver) CookieName() string {
	return r.cookieName
}

// Resolve returns the authenticated Principal for the request, or false when
// the request carries no usable credential. Signature and expiry failures
// downgrade silently to unauthenticated; callers cannot tell them apart.
// Resolve never performs network calls.
func (r *Resolver) Resolve(request *http.Request) (Principal, bool) {
	if request == nil {
		return Principal{}, false
	}

	if header := strings.TrimSpace(request.Header.Get(TokenHeader)); header != "" {
		principal, err := r.codec.Parse(header)
		if err != nil {
			r.logger.Warn("bearer token rejected", zap.Error(err))
			return Principal{}, false
		}
		return principal, true
	}

	cookie, err := request.Cookie(r.cookieName)
	if err != nil || cookie.Value == "" {
		return Principal{}, false
	}
	principal, err := r.codec.Parse(cookie.Value)
	if err != nil {
		r.logger.Warn("session cookie rejected", zap.Error(err))
		return Principal{}, false
	}
	return principal, true
}
