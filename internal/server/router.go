package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vega/editor-backend/internal/auth"
	"github.com/vega/editor-backend/internal/gists"
	"github.com/vega/editor-backend/internal/github"
	"go.uber.org/zap"
)

const (
	oauthStateCookie = "vega_oauth_state"
	oauthStateMaxAge = 5 * time.Minute
	sessionMaxAge    = 7 * 24 * time.Hour
)

var (
	errMissingResolver    = errors.New("identity resolver dependency required")
	errMissingTokenIssuer = errors.New("token issuer dependency required")
	errMissingEngine      = errors.New("gist engine dependency required")
	errMissingOAuth       = errors.New("oauth gateway dependency required")
	errMissingWriter      = errors.New("gist writer dependency required")
	errMissingHomepage    = errors.New("homepage url required")
	errMissingCookieName  = errors.New("session cookie name required")
	errMissingOrigins     = errors.New("at least one allowed origin required")
)

// popupCloseHTML notifies the opener window and closes the popup; a direct
// navigation (no opener) falls back to the homepage redirect.
const popupCloseHTML = `<html>
  <script>
    if (window.opener === null) {
      window.location = %q
    }
    else {
      window.opener.postMessage({type: 'auth', token: %q}, '*')
      window.close()
    }
  </script>
</html>`

// IdentityResolver resolves request credentials into a Principal.
type IdentityResolver interface {
	Resolve(request *http.Request) (auth.Principal, bool)
}

// TokenIssuer mints the self-contained bearer token for a Principal.
type TokenIssuer interface {
	Issue(principal auth.Principal) (string, error)
}

// GistEngine drives paginated gist reads.
type GistEngine interface {
	Initial(ctx context.Context, principal auth.Principal, privacy gists.Privacy) (gists.InitialPage, error)
	Continuation(ctx context.Context, principal auth.Principal, privacy gists.Privacy, cursor string) ([]gists.Summary, error)
}

// OAuthGateway covers the identity-provider half of the upstream boundary.
type OAuthGateway interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, credential string) (github.Profile, error)
}

// GistWriter covers the create/update passthrough half.
type GistWriter interface {
	CreateGist(ctx context.Context, credential string, payload json.RawMessage) (json.RawMessage, error)
	UpdateGist(ctx context.Context, credential, gistID string, payload json.RawMessage) (json.RawMessage, error)
}

// UserRecorder books successful logins. Optional.
type UserRecorder interface {
	RecordLogin(principal auth.Principal) error
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Resolver       IdentityResolver
	Tokens         TokenIssuer
	Engine         GistEngine
	OAuth          OAuthGateway
	Writer         GistWriter
	Users          UserRecorder
	Logger         *zap.Logger
	CookieName     string
	HomepageURL    string
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin router for the backend.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.OAuth == nil {
		return nil, errMissingOAuth
	}
	if deps.Writer == nil {
		return nil, errMissingWriter
	}
	if deps.HomepageURL == "" {
		return nil, errMissingHomepage
	}
	if deps.CookieName == "" {
		return nil, errMissingCookieName
	}
	if len(deps.AllowedOrigins) == 0 {
		return nil, errMissingOrigins
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{auth.TokenHeader, "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		resolver:    deps.Resolver,
		tokens:      deps.Tokens,
		engine:      deps.Engine,
		oauth:       deps.OAuth,
		writer:      deps.Writer,
		users:       deps.Users,
		logger:      logger,
		cookieName:  deps.CookieName,
		homepageURL: deps.HomepageURL,
	}

	router.GET("/", handler.handleHome)
	router.GET("/auth/github", handler.handleAuthRedirect)
	router.GET("/auth/github/callback", handler.handleAuthCallback)
	router.GET("/auth/github/check", handler.handleAuthCheck)
	router.GET("/auth/github/logout", handler.handleLogout)
	router.GET("/gists/user", handler.handleUserGists)
	router.POST("/gists/create", handler.handleGistCreate)
	router.POST("/gists/update", handler.handleGistUpdate)

	return router, nil
}

type httpHandler struct {
	resolver    IdentityResolver
	tokens      TokenIssuer
	engine      GistEngine
	oauth       OAuthGateway
	writer      GistWriter
	users       UserRecorder
	logger      *zap.Logger
	cookieName  string
	homepageURL string
}

func (h *httpHandler) handleHome(c *gin.Context) {
	c.String(http.StatusOK, "Vega editor backend")
}

func (h *httpHandler) handleAuthRedirect(c *gin.Context) {
	state := uuid.NewString()
	c.SetCookie(oauthStateCookie, state, int(oauthStateMaxAge.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

func (h *httpHandler) handleAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, h.homepageURL)
		return
	}

	expectedState, err := c.Cookie(oauthStateCookie)
	if err != nil || expectedState == "" || c.Query("state") != expectedState {
		h.logger.Warn("oauth state mismatch")
		c.Redirect(http.StatusFound, h.homepageURL)
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", false, true)

	credential, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", zap.Error(err))
		c.Redirect(http.StatusFound, h.homepageURL)
		return
	}

	profile, err := h.oauth.FetchProfile(c.Request.Context(), credential)
	if err != nil {
		h.logger.Warn("profile fetch failed", zap.Error(err))
		c.Redirect(http.StatusFound, h.homepageURL)
		return
	}

	principal := auth.Principal{
		ID:          fmt.Sprintf("%d", profile.ID),
		Handle:      profile.Login,
		DisplayName: profile.Name,
		AvatarURL:   profile.AvatarURL,
		AccessToken: credential,
	}

	if h.users != nil {
		if err := h.users.RecordLogin(principal); err != nil {
			h.logger.Warn("failed to record login", zap.String("handle", principal.Handle), zap.Error(err))
		}
	}

	token, err := h.tokens.Issue(principal)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.Redirect(http.StatusFound, h.homepageURL)
		return
	}

	c.SetCookie(h.cookieName, token, int(sessionMaxAge.Seconds()), "/", "", false, true)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(popupCloseHTML, h.homepageURL, token)))
}

type checkResponsePayload struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	Handle          string `json:"handle"`
	Name            string `json:"name"`
	ProfilePicURL   string `json:"profilePicUrl"`
	AuthToken       string `json:"authToken"`
}

func (h *httpHandler) handleAuthCheck(c *gin.Context) {
	principal, ok := h.resolver.Resolve(c.Request)
	if !ok {
		c.JSON(http.StatusOK, checkResponsePayload{})
		return
	}

	token, err := h.tokens.Issue(principal)
	if err != nil {
		h.logger.Error("failed to reissue token", zap.Error(err))
		c.JSON(http.StatusOK, checkResponsePayload{})
		return
	}

	c.JSON(http.StatusOK, checkResponsePayload{
		IsAuthenticated: true,
		Handle:          principal.Handle,
		Name:            principal.DisplayName,
		ProfilePicURL:   principal.AvatarURL,
		AuthToken:       token,
	})
}

// handleLogout clears the session cookie. Tokens are self-contained, so
// logout is client-side deletion, not server-side revocation.
func (h *httpHandler) handleLogout(c *gin.Context) {
	if _, ok := h.resolver.Resolve(c.Request); !ok {
		c.Redirect(http.StatusFound, h.homepageURL)
		return
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(popupCloseHTML, h.homepageURL, "")))
}

func (h *httpHandler) handleUserGists(c *gin.Context) {
	principal, ok := h.resolver.Resolve(c.Request)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
		return
	}

	cursor := c.Query("cursor")
	rawPrivacy := c.Query("privacy")
	if cursor == "" || rawPrivacy == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_query_parameter"})
		return
	}
	privacy, err := gists.ParsePrivacy(rawPrivacy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_privacy"})
		return
	}

	if cursor == gists.CursorInit {
		page, err := h.engine.Initial(c.Request.Context(), principal, privacy)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, page)
		return
	}

	data, err := h.engine.Continuation(c.Request.Context(), principal, privacy, cursor)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *httpHandler) handleGistCreate(c *gin.Context) {
	principal, ok := h.resolver.Resolve(c.Request)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	raw, err := h.writer.CreateGist(c.Request.Context(), principal.AccessToken, payload)
	if err != nil {
		h.logger.Error("gist create failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "gist_create_failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (h *httpHandler) handleGistUpdate(c *gin.Context) {
	principal, ok := h.resolver.Resolve(c.Request)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_gist_id"})
		return
	}

	raw, err := h.writer.UpdateGist(c.Request.Context(), principal.AccessToken, envelope.ID, payload)
	if err != nil {
		h.logger.Error("gist update failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "gist_update_failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
