package domain

import (
	"context"
	"iter"
)

// Archive is one raw narrative document read from the corpus directory.
type Archive struct {
	Name    string
	Path    string
	Content string
}

// Chunk is a bounded span of an archive prepared for indexing.
// Source always holds the bare archive filename.
type Chunk struct {
	Content  string
	Source   string
	Category string
}

// RoutingEntry is the one-line description of an archive used for scope routing.
type RoutingEntry struct {
	Filename string
	Summary  string
}

// Line renders the entry the way it is persisted in the routing table.
func (e RoutingEntry) Line() string {
	return "- " + e.Filename + ": " + e.Summary
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the speaker of a dialogue turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is a single entry of a completion request.
type Message struct {
	Role    string
	Content string
}

// Segmenter splits a document into chunk texts. The returned sequence is
// lazy and meant to be consumed once.
type Segmenter interface {
	Segment(content string) iter.Seq[string]
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Completer issues one chat completion request and returns the model text.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// ArchiveSummarizer produces the routing summary for an archive.
type ArchiveSummarizer interface {
	Summarize(path string) string
}
