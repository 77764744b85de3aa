package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vega/editor-backend/internal/gists"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
)

const (
	defaultAPIBaseURL      = "https://api.github.com"
	defaultGraphQLURL      = "https://api.github.com/graphql"
	defaultUpstreamTimeout = 10 * time.Second

	oauthScopeGist = "gist"

	// gistEdgeBatchSize is the upstream bulk fetch size at scroll init; the
	// cursor index is sampled from this one batch.
	gistEdgeBatchSize = 100
)

var (
	ErrMissingClientCredentials = errors.New("github: oauth client id and secret required")
	ErrUpstreamStatus           = errors.New("github: unexpected upstream status")
)

const gistsQuery = `query($login: String!, $privacy: GistPrivacy!, $first: Int!, $after: String) {
  user(login: $login) {
    gists(privacy: $privacy, first: $first, orderBy: {field: CREATED_AT, direction: DESC}, after: $after) {
      edges {
        cursor
        node {
          name
          description
          isPublic
          files { name extension isImage }
        }
      }
      nodes {
        name
        description
        isPublic
        files { name extension isImage }
      }
    }
  }
}`

// Profile is the provider-visible identity returned by GET /user.
type Profile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// GatewayConfig bundles everything needed to talk to GitHub.
type GatewayConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	APIBaseURL   string
	GraphQLURL   string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Gateway executes the network calls against the identity provider and the
// gist API. Every call runs under a bounded timeout so a stalled upstream
// cannot hang a request indefinitely.
type Gateway struct {
	oauth      *oauth2.Config
	apiBaseURL string
	graphqlURL string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGateway constructs a Gateway with validated configuration.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, ErrMissingClientCredentials
	}
	apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	graphqlURL := cfg.GraphQLURL
	if graphqlURL == "" {
		graphqlURL = defaultGraphQLURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{oauthScopeGist},
			Endpoint:     oauthgithub.Endpoint,
		},
		apiBaseURL: apiBaseURL,
		graphqlURL: graphqlURL,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// AuthCodeURL returns the provider authorize URL for the given state.
func (g *Gateway) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange swaps an authorization code for the user's access token.
func (g *Gateway) Exchange(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("github: code exchange: %w", err)
	}
	return token.AccessToken, nil
}

// FetchProfile retrieves the authenticated user's profile.
func (g *Gateway) FetchProfile(ctx context.Context, credential string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+"/user", nil)
	if err != nil {
		return Profile{}, err
	}
	request.Header.Set("Authorization", "token "+credential)
	request.Header.Set("Accept", "application/json")

	response, err := g.httpClient.Do(request)
	if err != nil {
		return Profile{}, fmt.Errorf("github: profile fetch: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: %d", ErrUpstreamStatus, response.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(response.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("github: profile decode: %w", err)
	}
	return profile, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gistNode struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
	Files       []struct {
		Name      string `json:"name"`
		Extension string `json:"extension"`
		IsImage   bool   `json:"isImage"`
	} `json:"files"`
}

type gistsResponse struct {
	Data struct {
		User struct {
			Gists struct {
				Edges []struct {
					Cursor string   `json:"cursor"`
					Node   gistNode `json:"node"`
				} `json:"edges"`
				Nodes []gistNode `json:"nodes"`
			} `json:"gists"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func toGist(node gistNode) gists.Gist {
	gist := gists.Gist{
		Name:        node.Name,
		Description: node.Description,
		IsPublic:    node.IsPublic,
		Files:       make([]gists.File, 0, len(node.Files)),
	}
	for _, file := range node.Files {
		gist.Files = append(gist.Files, gists.File{
			Name:      file.Name,
			Extension: file.Extension,
			IsImage:   file.IsImage,
		})
	}
	return gist
}

// FetchEdgesPage runs the gists query for one page of edges and nodes,
// ordered newest first. An empty afterCursor fetches from the start.
func (g *Gateway) FetchEdgesPage(ctx context.Context, credential, handle string, privacy gists.Privacy, afterCursor string) (gists.EdgePage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	variables := map[string]any{
		"login":   handle,
		"privacy": graphqlPrivacy(privacy),
		"first":   gistEdgeBatchSize,
		"after":   nil,
	}
	if afterCursor != "" {
		variables["after"] = afterCursor
	}

	body, err := json.Marshal(graphqlRequest{Query: gistsQuery, Variables: variables})
	if err != nil {
		return gists.EdgePage{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return gists.EdgePage{}, err
	}
	request.Header.Set("Authorization", "token "+credential)
	request.Header.Set("Content-Type", "application/json")

	response, err := g.httpClient.Do(request)
	if err != nil {
		return gists.EdgePage{}, fmt.Errorf("github: gists query: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return gists.EdgePage{}, fmt.Errorf("%w: %d", ErrUpstreamStatus, response.StatusCode)
	}

	var decoded gistsResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return gists.EdgePage{}, fmt.Errorf("github: gists decode: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return gists.EdgePage{}, fmt.Errorf("github: gists query rejected: %s", decoded.Errors[0].Message)
	}

	page := gists.EdgePage{
		Edges: make([]gists.Edge, 0, len(decoded.Data.User.Gists.Edges)),
		Nodes: make([]gists.Gist, 0, len(decoded.Data.User.Gists.Nodes)),
	}
	for _, edge := range decoded.Data.User.Gists.Edges {
		page.Edges = append(page.Edges, gists.Edge{Cursor: edge.Cursor, Node: toGist(edge.Node)})
	}
	for _, node := range decoded.Data.User.Gists.Nodes {
		page.Nodes = append(page.Nodes, toGist(node))
	}
	return page, nil
}

// CreateGist forwards a create payload to POST /gists.
func (g *Gateway) CreateGist(ctx context.Context, credential string, payload json.RawMessage) (json.RawMessage, error) {
	return g.passthrough(ctx, http.MethodPost, g.apiBaseURL+"/gists", credential, payload)
}

// UpdateGist forwards an update payload to PATCH /gists/{id}.
func (g *Gateway) UpdateGist(ctx context.Context, credential, gistID string, payload json.RawMessage) (json.RawMessage, error) {
	return g.passthrough(ctx, http.MethodPatch, g.apiBaseURL+"/gists/"+gistID, credential, payload)
}

func (g *Gateway) passthrough(ctx context.Context, method, url, credential string, payload json.RawMessage) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "token "+credential)
	request.Header.Set("Content-Type", "application/json")

	response, err := g.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: gist %s: %w", strings.ToLower(method), err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, response.StatusCode)
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func graphqlPrivacy(privacy gists.Privacy) string {
	switch privacy {
	case gists.PrivacyPublic:
		return "PUBLIC"
	case gists.PrivacyPrivate:
		return "SECRET"
	default:
		return "ALL"
	}
}
