package gists

import (
	"errors"
	"strings"
)

const (
	// CursorInit is the sentinel clients send to start a new scroll.
	CursorInit = "init"

	specExtension = ".json"
)

var ErrInvalidPrivacy = errors.New("gists: invalid privacy filter")

// Privacy selects which gists a scroll covers.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
	PrivacyAll     Privacy = "all"
)

// ParsePrivacy validates a client-supplied privacy filter.
func ParsePrivacy(value string) (Privacy, error) {
	switch Privacy(strings.ToLower(strings.TrimSpace(value))) {
	case PrivacyPublic:
		return PrivacyPublic, nil
	case PrivacyPrivate:
		return PrivacyPrivate, nil
	case PrivacyAll:
		return PrivacyAll, nil
	default:
		return "", ErrInvalidPrivacy
	}
}

// File is one file inside an upstream gist.
type File struct {
	Name      string
	Extension string
	IsImage   bool
}

// Gist is the upstream document shape returned by the gateway.
type Gist struct {
	Name        string
	Description string
	IsPublic    bool
	Files       []File
}

// HasSpecFiles reports whether the gist contains at least one JSON file.
// Gists without one are dropped entirely, never partially represented.
func (g Gist) HasSpecFiles() bool {
	for _, file := range g.Files {
		if strings.EqualFold(file.Extension, specExtension) {
			return true
		}
	}
	return false
}

// Edge pairs an upstream pagination cursor with its gist.
type Edge struct {
	Cursor string
	Node   Gist
}

// EdgePage is one upstream fetch result: the cursor-bearing edge list plus
// the node list for the page itself.
type EdgePage struct {
	Edges []Edge
	Nodes []Gist
}

// SpecFile pairs a JSON content file with the raw-content URL of a same-stem
// image file, when one exists.
type SpecFile struct {
	Name       string `json:"name"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

// Summary is the sanitized client-facing representation of one gist.
type Summary struct {
	Name     string     `json:"name"`
	Title    string     `json:"title"`
	IsPublic bool       `json:"isPublic"`
	Spec     []SpecFile `json:"spec"`
}
