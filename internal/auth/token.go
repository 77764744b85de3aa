package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTokenMaxAge = 7 * 24 * time.Hour
	envelopeVersion    = 1
)

var (
	ErrMissingCodecSecret  = errors.New("auth: signing secret required")
	ErrIncompletePrincipal = errors.New("auth: principal incomplete, nothing to issue")
	ErrMalformedToken      = errors.New("auth: malformed token")
	ErrSignatureMismatch   = errors.New("auth: token signature mismatch")
	ErrExpiredToken        = errors.New("auth: token expired")
)

// Principal is the authenticated identity resolved for a single request.
// It is never persisted server-side; a Principal either carries every field
// needed to act on the user's behalf or it does not exist.
type Principal struct {
	ID          string
	Handle      string
	DisplayName string
	AvatarURL   string
	// AccessToken is the upstream credential used for gist API calls.
	AccessToken string
}

// Complete reports whether the principal can be acted on.
func (p Principal) Complete() bool {
	return p.ID != "" && p.Handle != "" && p.AccessToken != ""
}

// tokenPayload is the signed snapshot of a Principal. Field order is the
// serialization order and must stay stable: the tag covers the exact bytes.
type tokenPayload struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	AccessToken string `json:"access_token"`
	IssuedAtMS  int64  `json:"issued_at_ms"`
	Nonce       string `json:"nonce"`
}

// tokenEnvelope is the opaque wire form: version, payload bytes, tag.
type tokenEnvelope struct {
	Version int    `json:"v"`
	Payload []byte `json:"payload"`
	Tag     []byte `json:"tag"`
}

// CodecConfig configures token issuance and verification.
type CodecConfig struct {
	SigningSecret []byte
	MaxAge        time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Codec issues and parses self-contained signed tokens. Tokens are validated
// purely by recomputation; there is no server-side token state.
type Codec struct {
	secret []byte
	maxAge time.Duration
	clock  func() time.Time
	logger *zap.Logger
}

// NewCodec constructs a Codec with sane defaults.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingCodecSecret
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultTokenMaxAge
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{
		secret: append([]byte(nil), cfg.SigningSecret...),
		maxAge: maxAge,
		clock:  clock,
		logger: logger,
	}, nil
}

// Issue serializes the principal with issuance metadata, signs the payload
// bytes and returns the encoded envelope. An incomplete principal yields
// ErrIncompletePrincipal rather than a token.
func (c *Codec) Issue(principal Principal) (string, error) {
	if !principal.Complete() {
		return "", ErrIncompletePrincipal
	}

	payload := tokenPayload{
		ID:          principal.ID,
		Handle:      principal.Handle,
		DisplayName: principal.DisplayName,
		AvatarURL:   principal.AvatarURL,
		AccessToken: principal.AccessToken,
		IssuedAtMS:  c.clock().UnixMilli(),
		Nonce:       uuid.NewString(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	envelope := tokenEnvelope{
		Version: envelopeVersion,
		Payload: payloadBytes,
		Tag:     Sign(c.secret, payloadBytes),
	}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(envelopeBytes), nil
}

// Parse decodes, verifies and freshness-checks a token string, returning the
// embedded Principal. It performs no network or storage I/O.
func (c *Codec) Parse(tokenString string) (Principal, error) {
	envelopeBytes, err := base64.RawURLEncoding.DecodeString(tokenString)
	if err != nil {
		return Principal{}, ErrMalformedToken
	}

	var envelope tokenEnvelope
	if err := json.Unmarshal(envelopeBytes, &envelope); err != nil {
		return Principal{}, ErrMalformedToken
	}
	if envelope.Version != envelopeVersion || len(envelope.Payload) == 0 || len(envelope.Tag) == 0 {
		return Principal{}, ErrMalformedToken
	}

	if !Verify(c.secret, envelope.Payload, envelope.Tag) {
		c.logger.Warn("token signature mismatch")
		return Principal{}, ErrSignatureMismatch
	}

	var payload tokenPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return Principal{}, ErrMalformedToken
	}

	issuedAt := time.UnixMilli(payload.IssuedAtMS)
	if c.clock().Sub(issuedAt) > c.maxAge {
		c.logger.Info("token expired", zap.Time("issued_at", issuedAt))
		return Principal{}, ErrExpiredToken
	}

	principal := Principal{
		ID:          payload.ID,
		Handle:      payload.Handle,
		DisplayName: payload.DisplayName,
		AvatarURL:   payload.AvatarURL,
		AccessToken: payload.AccessToken,
	}
	if !principal.Complete() {
		return Principal{}, ErrMalformedToken
	}
	return principal, nil
}
