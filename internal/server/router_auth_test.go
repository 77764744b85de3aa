package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/vega/editor-backend/internal/auth"
	"github.com/vega/editor-backend/internal/github"
)

func serveRequest(t *testing.T, deps Dependencies, request *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestAuthRedirectSetsStateAndRedirects(t *testing.T) {
	deps := newTestDependencies(&stubEngine{})

	request := httptest.NewRequest(http.MethodGet, "/auth/github", http.NoBody)
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}
	location := recorder.Header().Get("Location")
	if !strings.HasPrefix(location, "https://github.test/authorize?state=") {
		t.Fatalf("unexpected authorize location %q", location)
	}

	var stateCookie *http.Cookie
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == oauthStateCookie {
			stateCookie = cookie
		}
	}
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatalf("expected oauth state cookie to be set")
	}
	if !strings.HasSuffix(location, stateCookie.Value) {
		t.Fatalf("state cookie %q does not match redirect state", stateCookie.Value)
	}
}

func TestAuthCallbackIssuesTokenAndSetsSession(t *testing.T) {
	recorderStub := &stubRecorder{}
	deps := newTestDependencies(&stubEngine{})
	deps.OAuth = stubOAuth{
		authURL:    "https://github.test/authorize",
		credential: "upstream-token",
		profile: github.Profile{
			ID:        1,
			Login:     "alice",
			Name:      "Alice Doe",
			AvatarURL: "https://avatars.example.com/u/1",
		},
	}
	deps.Users = recorderStub

	request := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=abc&state=state-1", http.NoBody)
	request.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected popup HTML, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "postMessage") || !strings.Contains(body, "issued-token") {
		t.Fatalf("expected popup script carrying the token, got %q", body)
	}

	var sessionSet bool
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == "vega_session" && cookie.Value == "issued-token" {
			sessionSet = true
		}
	}
	if !sessionSet {
		t.Fatalf("expected session cookie with issued token")
	}

	if recorderStub.calls != 1 {
		t.Fatalf("expected one recorded login, got %d", recorderStub.calls)
	}
	if recorderStub.last.Handle != "alice" || recorderStub.last.AccessToken != "upstream-token" {
		t.Fatalf("unexpected recorded principal %#v", recorderStub.last)
	}
}

func TestAuthCallbackRedirectsOnStateMismatch(t *testing.T) {
	deps := newTestDependencies(&stubEngine{})

	request := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=abc&state=evil", http.NoBody)
	request.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect on state mismatch, got %d", recorder.Code)
	}
	if recorder.Header().Get("Location") != "https://vega.github.io/editor" {
		t.Fatalf("unexpected redirect target %q", recorder.Header().Get("Location"))
	}
}

func TestAuthCallbackRedirectsOnExchangeFailure(t *testing.T) {
	deps := newTestDependencies(&stubEngine{})
	deps.OAuth = stubOAuth{
		authURL:     "https://github.test/authorize",
		exchangeErr: errUpstreamDown,
	}

	request := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=abc&state=state-1", http.NoBody)
	request.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect on exchange failure, got %d", recorder.Code)
	}
}

func TestAuthCheckReturnsAuthenticatedPayload(t *testing.T) {
	deps := newTestDependencies(&stubEngine{})
	deps.Resolver = stubResolver{
		principal: auth.Principal{
			ID:          "1",
			Handle:      "alice",
			DisplayName: "Alice Doe",
			AvatarURL:   "https://avatars.example.com/u/1",
			AccessToken: "tok",
		},
		ok: true,
	}

	request := httptest.NewRequest(http.MethodGet, "/auth/github/check", http.NoBody)
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	var payload checkResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if !payload.IsAuthenticated || payload.Handle != "alice" || payload.AuthToken != "issued-token" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.Name != "Alice Doe" || payload.ProfilePicURL != "https://avatars.example.com/u/1" {
		t.Fatalf("unexpected profile fields %#v", payload)
	}
}

func TestAuthCheckReturnsUnauthenticatedPayloadWithOKStatus(t *testing.T) {
	deps := newTestDependencies(&stubEngine{})

	request := httptest.NewRequest(http.MethodGet, "/auth/github/check", http.NoBody)
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("auth failures must not surface as errors, got %d", recorder.Code)
	}
	var payload checkResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.IsAuthenticated || payload.Handle != "" || payload.AuthToken != "" {
		t.Fatalf("expected empty unauthenticated payload, got %#v", payload)
	}
}

func TestLogoutClearsSessionCookie(t *testing.T) {
	deps := newTestDependencies(&stubEngine{})
	deps.Resolver = stubResolver{principal: auth.Principal{ID: "1", Handle: "alice", AccessToken: "tok"}, ok: true}

	request := httptest.NewRequest(http.MethodGet, "/auth/github/logout", http.NoBody)
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}

	var cleared bool
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == "vega_session" && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie to be cleared")
	}
}

func TestLogoutWithoutSessionRedirects(t *testing.T) {
	deps := newTestDependencies(&stubEngine{})

	request := httptest.NewRequest(http.MethodGet, "/auth/github/logout", http.NoBody)
	recorder := serveRequest(t, deps, request)

	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect for anonymous logout, got %d", recorder.Code)
	}
}
