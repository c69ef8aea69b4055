// Package models holds the document types shared by retrieval tools and
// task handlers.
package models

import (
	"errors"
	"strings"
)

// ErrDocumentNotFound is returned when a source has nothing for a query.
var ErrDocumentNotFound = errors.New("document not found")

// Document is one retrieved source text.
type Document struct {
	URL    string         `json:"url"`
	Text   string         `json:"text"`
	Title  string         `json:"title,omitempty"`
	Kind   string         `json:"kind,omitempty"`
	Place  string         `json:"place,omitempty"`
	Source DocumentSource `json:"source,omitempty"`
}

// DocumentSource names the tool a document came from.
type DocumentSource string

const (
	SourceGeorisques DocumentSource = "georisques"
	SourceWebSearch  DocumentSource = "web_search"
	SourceCache      DocumentSource = "cache"
)

// WordCount counts whitespace separated words.
func (d Document) WordCount() int { return len(strings.Fields(d.Text)) }

// Skipped records a document left out of the analysis.
type Skipped struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}
