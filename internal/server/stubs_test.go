package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vega/editor-backend/internal/auth"
	"github.com/vega/editor-backend/internal/gists"
	"github.com/vega/editor-backend/internal/github"
)

var errUpstreamDown = errors.New("upstream down")

type stubResolver struct {
	principal auth.Principal
	ok        bool
}

func (s stubResolver) Resolve(*http.Request) (auth.Principal, bool) {
	return s.principal, s.ok
}

type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) Issue(auth.Principal) (string, error) {
	return s.token, s.err
}

type stubEngine struct {
	initial          gists.InitialPage
	initialErr       error
	continuation     []gists.Summary
	continuationErr  error
	initialCalls     int
	continuationCall int
	lastCursor       string
	lastPrivacy      gists.Privacy
}

func (s *stubEngine) Initial(_ context.Context, _ auth.Principal, privacy gists.Privacy) (gists.InitialPage, error) {
	s.initialCalls++
	s.lastPrivacy = privacy
	return s.initial, s.initialErr
}

func (s *stubEngine) Continuation(_ context.Context, _ auth.Principal, privacy gists.Privacy, cursor string) ([]gists.Summary, error) {
	s.continuationCall++
	s.lastPrivacy = privacy
	s.lastCursor = cursor
	return s.continuation, s.continuationErr
}

type stubOAuth struct {
	authURL     string
	credential  string
	exchangeErr error
	profile     github.Profile
	profileErr  error
}

func (s stubOAuth) AuthCodeURL(state string) string {
	return s.authURL + "?state=" + state
}

func (s stubOAuth) Exchange(context.Context, string) (string, error) {
	return s.credential, s.exchangeErr
}

func (s stubOAuth) FetchProfile(context.Context, string) (github.Profile, error) {
	return s.profile, s.profileErr
}

type stubWriter struct {
	raw        json.RawMessage
	err        error
	lastGistID string
	lastBody   json.RawMessage
}

func (s *stubWriter) CreateGist(_ context.Context, _ string, payload json.RawMessage) (json.RawMessage, error) {
	s.lastBody = payload
	return s.raw, s.err
}

func (s *stubWriter) UpdateGist(_ context.Context, _ string, gistID string, payload json.RawMessage) (json.RawMessage, error) {
	s.lastGistID = gistID
	s.lastBody = payload
	return s.raw, s.err
}

type stubRecorder struct {
	calls     int
	last      auth.Principal
	recordErr error
}

func (s *stubRecorder) RecordLogin(principal auth.Principal) error {
	s.calls++
	s.last = principal
	return s.recordErr
}

func newTestDependencies(engine *stubEngine) Dependencies {
	return Dependencies{
		Resolver:       stubResolver{},
		Tokens:         stubTokens{token: "issued-token"},
		Engine:         engine,
		OAuth:          stubOAuth{authURL: "https://github.test/authorize"},
		Writer:         &stubWriter{raw: json.RawMessage(`{"id":"abc123"}`)},
		CookieName:     "vega_session",
		HomepageURL:    "https://vega.github.io/editor",
		AllowedOrigins: []string{"https://vega.github.io"},
	}
}
