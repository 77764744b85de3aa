package gists

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vega/editor-backend/internal/auth"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 5

	rawContentBase = "https://gist.githubusercontent.com"
)

var (
	ErrMissingGateway = errors.New("gists: upstream gateway required")
	ErrPageNotFound   = errors.New("gists: page not found")
)

// Gateway is the narrow upstream contract the engine drives. An empty
// afterCursor requests the initial bulk page of up to 100 edges.
type Gateway interface {
	FetchEdgesPage(ctx context.Context, credential, handle string, privacy Privacy, afterCursor string) (EdgePage, error)
}

// EngineConfig describes the dependencies of the paginated query engine.
type EngineConfig struct {
	Gateway  Gateway
	PageSize int
	Logger   *zap.Logger
}

// Engine drives cursor-based retrieval of a user's gists. It holds no
// per-scroll state: the cursor index computed at init travels to the client,
// and every later page request carries its own upstream cursor.
type Engine struct {
	gateway  Gateway
	pageSize int
	logger   *zap.Logger
}

// InitialPage is the result of starting a scroll: the first sanitized page
// plus the cursor index for arbitrary later page jumps.
type InitialPage struct {
	Cursors map[string]string `json:"cursors"`
	Data    []Summary         `json:"data"`
}

// NewEngine constructs an Engine with sane defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Gateway == nil {
		return nil, ErrMissingGateway
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gateway:  cfg.Gateway,
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// Initial bulk-fetches the newest gists, derives the cursor index from the
// JSON-bearing edges and returns the sanitized first page alongside it.
func (e *Engine) Initial(ctx context.Context, principal auth.Principal, privacy Privacy) (InitialPage, error) {
	page, err := e.gateway.FetchEdgesPage(ctx, principal.AccessToken, principal.Handle, privacy, "")
	if err != nil {
		e.logger.Error("initial gist fetch failed", zap.String("handle", principal.Handle), zap.Error(err))
		return InitialPage{}, fmt.Errorf("gists: initial fetch: %w", err)
	}

	return InitialPage{
		Cursors: e.buildCursorIndex(page.Edges),
		Data:    e.sanitize(page.Nodes, principal.Handle),
	}, nil
}

// Continuation fetches the single page that begins after cursor. No cursor
// index is rebuilt here; index derivation only happens at init. An upstream
// failure and an unknown cursor are deliberately indistinguishable.
func (e *Engine) Continuation(ctx context.Context, principal auth.Principal, privacy Privacy, cursor string) ([]Summary, error) {
	page, err := e.gateway.FetchEdgesPage(ctx, principal.AccessToken, principal.Handle, privacy, cursor)
	if err != nil {
		e.logger.Warn("continuation gist fetch failed", zap.String("handle", principal.Handle), zap.Error(err))
		return nil, ErrPageNotFound
	}
	return e.sanitize(page.Nodes, principal.Handle), nil
}

// buildCursorIndex walks the JSON-bearing edges in pageSize strides and
// records, per stride boundary, the cursor immediately preceding it. Page k
// therefore maps to the cursor of filtered edge k*pageSize-1, and "init"
// always maps back to the start of the scroll.
func (e *Engine) buildCursorIndex(edges []Edge) map[string]string {
	filtered := make([]Edge, 0, len(edges))
	for _, edge := range edges {
		if edge.Node.HasSpecFiles() {
			filtered = append(filtered, edge)
		}
	}

	index := map[string]string{CursorInit: CursorInit}
	for page := 1; page*e.pageSize < len(filtered); page++ {
		index[strconv.Itoa(page)] = filtered[page*e.pageSize-1].Cursor
	}
	return index
}

// sanitize filters to JSON-bearing gists, truncates to one page and reshapes
// each survivor into the client-facing summary.
func (e *Engine) sanitize(nodes []Gist, handle string) []Summary {
	summaries := make([]Summary, 0, e.pageSize)
	for _, gist := range nodes {
		if len(summaries) == e.pageSize {
			break
		}
		if !gist.HasSpecFiles() {
			continue
		}
		summaries = append(summaries, summarize(gist, handle))
	}
	return summaries
}

func summarize(gist Gist, handle string) Summary {
	specs := make([]SpecFile, 0, len(gist.Files))
	for _, file := range gist.Files {
		if !strings.EqualFold(file.Extension, specExtension) {
			continue
		}
		specs = append(specs, SpecFile{
			Name:       file.Name,
			PreviewURL: previewURL(gist, file, handle),
		})
	}
	return Summary{
		Name:     gist.Name,
		Title:    strings.TrimSpace(gist.Description),
		IsPublic: gist.IsPublic,
		Spec:     specs,
	}
}

// previewURL pairs a spec file with the raw-content URL of an image file
// sharing its stem, e.g. bar.json -> bar.png.
func previewURL(gist Gist, spec File, handle string) string {
	stem := strings.TrimSuffix(spec.Name, spec.Extension)
	for _, file := range gist.Files {
		if !file.IsImage {
			continue
		}
		if strings.TrimSuffix(file.Name, file.Extension) == stem {
			return fmt.Sprintf("%s/%s/%s/raw/%s", rawContentBase, handle, gist.Name, file.Name)
		}
	}
	return ""
}
