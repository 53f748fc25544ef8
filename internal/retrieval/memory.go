package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Document is one indexed snippet with its chapter provenance.
type Document struct {
	Chapter  int
	Text     string
	Metadata map[string]string
}

// Memory is a keyword-overlap provider over documents indexed per story.
// It stands in for a real vector index in tests and the bundled CLI.
type Memory struct {
	mu   sync.RWMutex
	docs map[int64][]Document
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[int64][]Document)}
}

// Index adds a document to a story's corpus.
func (m *Memory) Index(storyID int64, doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[storyID] = append(m.docs[storyID], doc)
}

// Retrieve scores documents by term overlap with the query, honoring the
// MaxChapter bound and TopK cut.
func (m *Memory) Retrieve(_ context.Context, q Query) ([]Passage, error) {
	m.mu.RLock()
	docs := m.docs[q.StoryID]
	m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(q.Text))
	var passages []Passage
	for _, doc := range docs {
		if q.MaxChapter > 0 && doc.Chapter > q.MaxChapter {
			continue
		}
		score := overlapScore(strings.ToLower(doc.Text), terms)
		if score <= 0 {
			continue
		}
		passages = append(passages, Passage{
			Text:     doc.Text,
			Score:    score,
			Metadata: doc.Metadata,
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if q.TopK > 0 && len(passages) > q.TopK {
		passages = passages[:q.TopK]
	}
	return passages, nil
}

func overlapScore(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
