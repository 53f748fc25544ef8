// Package retrieval defines the context-provider contract the generation
// pipeline consumes. Retrieval is scoped to at most the chapter being
// written so drafts never see content from chapters not yet reached.
package retrieval

import "context"

// Passage is one retrieved context snippet.
type Passage struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Query scopes one retrieval call. MaxChapter of zero means unbounded;
// callers writing chapter N must pass N.
type Query struct {
	StoryID    int64
	Text       string
	MaxChapter int
	TopK       int
}

// Provider looks up story context by query. Implementations are external
// collaborators (a RAG index, a database); Memory below serves tests and
// the bundled CLI.
type Provider interface {
	Retrieve(ctx context.Context, q Query) ([]Passage, error)
}
