package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Kind is a canonical character relationship kind.
type Kind string

const (
	KindFriend   Kind = "friend"
	KindAlly     Kind = "ally"
	KindEnemy    Kind = "enemy"
	KindMentor   Kind = "mentor"
	KindDisciple Kind = "disciple"
	KindLover    Kind = "lover"
)

// relationSynonyms normalizes surface relation words to canonical kinds.
// Unknown words are dropped during extraction, never treated as errors.
var relationSynonyms = map[string]Kind{
	"朋友": KindFriend,
	"好友": KindFriend,
	"挚友": KindFriend,
	"盟友": KindAlly,
	"同盟": KindAlly,
	"敌人": KindEnemy,
	"仇人": KindEnemy,
	"宿敌": KindEnemy,
	"老师": KindMentor,
	"师父": KindMentor,
	"导师": KindMentor,
	"徒弟": KindDisciple,
	"学生": KindDisciple,
	"恋人": KindLover,
	"爱人": KindLover,
	"伴侣": KindLover,

	"friend":     KindFriend,
	"friends":    KindFriend,
	"ally":       KindAlly,
	"allies":     KindAlly,
	"enemy":      KindEnemy,
	"enemies":    KindEnemy,
	"rival":      KindEnemy,
	"rivals":     KindEnemy,
	"mentor":     KindMentor,
	"teacher":    KindMentor,
	"master":     KindMentor,
	"disciple":   KindDisciple,
	"student":    KindDisciple,
	"apprentice": KindDisciple,
	"lover":      KindLover,
	"lovers":     KindLover,
	"partner":    KindLover,
}

// relationInverse gives the kind recorded for the reverse direction.
// Symmetric kinds map to themselves.
var relationInverse = map[Kind]Kind{
	KindMentor:   KindDisciple,
	KindDisciple: KindMentor,
	KindLover:    KindLover,
	KindFriend:   KindFriend,
	KindAlly:     KindAlly,
	KindEnemy:    KindEnemy,
}

// relationConflicts lists mutually exclusive kind pairs for one ordered
// character pair within a story.
var relationConflicts = [][2]Kind{
	{KindFriend, KindEnemy},
	{KindAlly, KindEnemy},
	{KindLover, KindEnemy},
	{KindMentor, KindEnemy},
	{KindDisciple, KindEnemy},
}

// Sentence patterns for relation extraction. Names are 2+ CJK/ASCII
// characters. Two shapes each for CJK and English prose: possessive
// ("A是B的X" / "A is B's X") and paired ("A与B是X" / "A and B are X").
var (
	patternPossessiveCJK = regexp.MustCompile(`([\p{Han}A-Za-z]{2,})是([\p{Han}A-Za-z]{2,})的([\p{Han}A-Za-z]{1,4})`)
	patternPairCJK       = regexp.MustCompile(`([\p{Han}A-Za-z]{2,})与([\p{Han}A-Za-z]{2,})是([\p{Han}A-Za-z]{1,4})`)
	patternPossessiveEN  = regexp.MustCompile(`([A-Za-z]{2,}) is ([A-Za-z]{2,})'s ([a-z]+)`)
	patternPairEN        = regexp.MustCompile(`([A-Za-z]{2,}) and ([A-Za-z]{2,}) are ([a-z]+)`)
)

// Relation is one extracted character-relationship assertion.
type Relation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   Kind   `json:"kind"`
}

// RelationResult reports the validity of one candidate relation.
type RelationResult struct {
	IsValid    bool   `json:"is_valid"`
	Reason     string `json:"reason,omitempty"`
	Normalized Kind   `json:"normalized,omitempty"`
}

// GraphResult aggregates one analyzeContent pass: conflicts found plus the
// relations that were recorded.
type GraphResult struct {
	Violations []string   `json:"violations"`
	Extracted  []Relation `json:"extracted"`
}

// RelationStore persists directed relationship assertions per story.
// Available reports whether the backing store is reachable; when it is not,
// the graph degrades to a no-op instead of failing the whole check.
type RelationStore interface {
	Available() bool
	Kinds(ctx context.Context, storyID int64, from, to string) ([]Kind, error)
	Put(ctx context.Context, storyID int64, from, to string, kind Kind) error
}

// Graph extracts character relationships from prose and validates them
// against the story's recorded relationship set.
type Graph struct {
	store  RelationStore
	logger *slog.Logger
}

func NewGraph(store RelationStore, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{store: store, logger: logger}
}

// NormalizeKind maps a surface relation word to its canonical kind.
func NormalizeKind(word string) (Kind, bool) {
	kind, ok := relationSynonyms[strings.TrimSpace(word)]
	return kind, ok
}

// InverseKind returns the kind recorded for the reverse direction.
func InverseKind(kind Kind) Kind {
	if inverse, ok := relationInverse[kind]; ok {
		return inverse
	}
	return kind
}

func kindsConflict(a, b Kind) bool {
	if a == b {
		return false
	}
	for _, pair := range relationConflicts {
		if (a == pair[0] && b == pair[1]) || (a == pair[1] && b == pair[0]) {
			return true
		}
	}
	return false
}

// ExtractRelations pulls relation assertions out of prose. Relation words
// that do not normalize to a canonical kind are silently skipped.
func ExtractRelations(content string) []Relation {
	if content == "" {
		return nil
	}

	var relations []Relation
	patterns := []*regexp.Regexp{
		patternPossessiveCJK, patternPairCJK,
		patternPossessiveEN, patternPairEN,
	}
	for _, pattern := range patterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			kind, ok := NormalizeKind(match[3])
			if !ok {
				continue
			}
			relations = append(relations, Relation{
				Source: match[1],
				Target: match[2],
				Kind:   kind,
			})
		}
	}
	return relations
}

// ValidateRelation checks a candidate kind for the ordered pair (from, to)
// against the recorded kinds. An unreachable store validates trivially.
func (g *Graph) ValidateRelation(ctx context.Context, storyID int64, from, to string, kind Kind) (RelationResult, error) {
	if !g.store.Available() {
		return RelationResult{IsValid: true}, nil
	}

	existing, err := g.store.Kinds(ctx, storyID, from, to)
	if err != nil {
		return RelationResult{}, fmt.Errorf("reading relations for story %d: %w", storyID, err)
	}

	for _, recorded := range existing {
		if kindsConflict(recorded, kind) {
			return RelationResult{
				IsValid: false,
				Reason: fmt.Sprintf("%s and %s already have relationship %q, which contradicts the new relationship %q",
					from, to, recorded, kind),
			}, nil
		}
	}

	return RelationResult{IsValid: true, Normalized: kind}, nil
}

// AddRelation records the forward kind and its derived inverse for the
// reverse direction.
func (g *Graph) AddRelation(ctx context.Context, storyID int64, from, to string, kind Kind) error {
	if !g.store.Available() {
		return nil
	}
	if err := g.store.Put(ctx, storyID, from, to, kind); err != nil {
		return fmt.Errorf("recording relation %s->%s: %w", from, to, err)
	}
	if err := g.store.Put(ctx, storyID, to, from, InverseKind(kind)); err != nil {
		return fmt.Errorf("recording inverse relation %s->%s: %w", to, from, err)
	}
	return nil
}

// Kinds returns the recorded kinds for the ordered pair (from, to).
func (g *Graph) Kinds(ctx context.Context, storyID int64, from, to string) ([]Kind, error) {
	if !g.store.Available() {
		return nil, nil
	}
	return g.store.Kinds(ctx, storyID, from, to)
}

// AnalyzeContent extracts relations from content, validates each against the
// recorded set, records the valid ones and reports the conflicting ones.
// Conflicting relations are never recorded. With an unreachable store the
// whole pass is a no-op returning empty results.
func (g *Graph) AnalyzeContent(ctx context.Context, storyID int64, content string) (GraphResult, error) {
	result := GraphResult{Violations: []string{}, Extracted: []Relation{}}
	if !g.store.Available() {
		return result, nil
	}

	relations := ExtractRelations(content)
	for _, rel := range relations {
		check, err := g.ValidateRelation(ctx, storyID, rel.Source, rel.Target, rel.Kind)
		if err != nil {
			return result, err
		}
		if !check.IsValid {
			result.Violations = append(result.Violations, check.Reason)
			continue
		}
		if err := g.AddRelation(ctx, storyID, rel.Source, rel.Target, rel.Kind); err != nil {
			return result, err
		}
		result.Extracted = append(result.Extracted, rel)
	}

	if len(result.Violations) > 0 {
		g.logger.Warn("relationship conflicts detected",
			"story_id", storyID,
			"conflicts", len(result.Violations),
		)
	}
	return result, nil
}
