package consistency_test

import (
	"context"
	"strings"
	"testing"

	"github.com/vampirenirmal/storyforge/internal/consistency"
	"github.com/vampirenirmal/storyforge/internal/store"
)

func newGraph(t *testing.T) *consistency.Graph {
	t.Helper()
	return consistency.NewGraph(store.NewMemory(), nil)
}

func TestExtractRelations(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []consistency.Relation
	}{
		{
			name:    "english possessive",
			content: "Everyone knew Li is Wang's mentor in those days.",
			want:    []consistency.Relation{{Source: "Li", Target: "Wang", Kind: consistency.KindMentor}},
		},
		{
			name:    "english paired",
			content: "Li and Wang are enemies now.",
			want:    []consistency.Relation{{Source: "Li", Target: "Wang", Kind: consistency.KindEnemy}},
		},
		{
			name:    "cjk possessive",
			content: "李青山是苏言的老师。",
			want:    []consistency.Relation{{Source: "李青山", Target: "苏言", Kind: consistency.KindMentor}},
		},
		{
			name:    "cjk paired",
			content: "李青山与苏言是朋友。",
			want:    []consistency.Relation{{Source: "李青山", Target: "苏言", Kind: consistency.KindFriend}},
		},
		{
			name:    "unknown relation word is dropped",
			content: "Mira and Tomas are neighbours.",
			want:    nil,
		},
		{
			name:    "empty content",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := consistency.ExtractRelations(tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d relations %v, want %d", len(got), got, len(tt.want))
			}
			for i, rel := range got {
				if rel != tt.want[i] {
					t.Errorf("relation[%d] = %+v, want %+v", i, rel, tt.want[i])
				}
			}
		})
	}
}

func TestInverseKind(t *testing.T) {
	tests := []struct {
		kind, inverse consistency.Kind
	}{
		{consistency.KindMentor, consistency.KindDisciple},
		{consistency.KindDisciple, consistency.KindMentor},
		{consistency.KindFriend, consistency.KindFriend},
		{consistency.KindAlly, consistency.KindAlly},
		{consistency.KindEnemy, consistency.KindEnemy},
		{consistency.KindLover, consistency.KindLover},
	}
	for _, tt := range tests {
		if got := consistency.InverseKind(tt.kind); got != tt.inverse {
			t.Errorf("InverseKind(%s) = %s, want %s", tt.kind, got, tt.inverse)
		}
	}
}

func TestAddRelationRecordsInverse(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)

	if err := graph.AddRelation(ctx, 1, "Li", "Wang", consistency.KindMentor); err != nil {
		t.Fatal(err)
	}

	reverse, err := graph.Kinds(ctx, 1, "Wang", "Li")
	if err != nil {
		t.Fatal(err)
	}
	if len(reverse) != 1 || reverse[0] != consistency.KindDisciple {
		t.Errorf("reverse kinds = %v, want [disciple]", reverse)
	}
}

func TestValidateRelationConflicts(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)

	if err := graph.AddRelation(ctx, 1, "Li", "Wang", consistency.KindFriend); err != nil {
		t.Fatal(err)
	}

	result, err := graph.ValidateRelation(ctx, 1, "Li", "Wang", consistency.KindEnemy)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Error("friend vs enemy should conflict")
	}
	if !strings.Contains(result.Reason, "friend") {
		t.Errorf("reason %q should reference the existing friend relationship", result.Reason)
	}

	// Non-conflicting kind on the same pair is fine.
	result, err = graph.ValidateRelation(ctx, 1, "Li", "Wang", consistency.KindMentor)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Errorf("friend plus mentor should not conflict: %s", result.Reason)
	}
}

func TestValidateRelationScopedByStory(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)

	if err := graph.AddRelation(ctx, 1, "Li", "Wang", consistency.KindFriend); err != nil {
		t.Fatal(err)
	}
	result, err := graph.ValidateRelation(ctx, 2, "Li", "Wang", consistency.KindEnemy)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Error("relations from story 1 must not leak into story 2")
	}
}

func TestAnalyzeContentPersistsValidAndReportsInvalid(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)

	first, err := graph.AnalyzeContent(ctx, 1, "Li is Wang's mentor.")
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Violations) != 0 || len(first.Extracted) != 1 {
		t.Fatalf("first pass = %+v, want one extracted relation and no violations", first)
	}

	second, err := graph.AnalyzeContent(ctx, 1, "Li and Wang are enemies.")
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(second.Violations), second.Violations)
	}
	if !strings.Contains(second.Violations[0], "mentor") {
		t.Errorf("violation %q should reference the existing mentor relationship", second.Violations[0])
	}
	// The conflicting relation must not have been recorded.
	kinds, err := graph.Kinds(ctx, 1, "Li", "Wang")
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range kinds {
		if kind == consistency.KindEnemy {
			t.Error("conflicting enemy relation must not be persisted")
		}
	}
}

type unavailableStore struct{}

func (unavailableStore) Available() bool { return false }
func (unavailableStore) Kinds(context.Context, int64, string, string) ([]consistency.Kind, error) {
	return nil, nil
}
func (unavailableStore) Put(context.Context, int64, string, string, consistency.Kind) error {
	return nil
}

func TestGraphDegradesWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	graph := consistency.NewGraph(unavailableStore{}, nil)

	result, err := graph.AnalyzeContent(ctx, 1, "Li and Wang are enemies.")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Violations) != 0 || len(result.Extracted) != 0 {
		t.Errorf("unavailable store should yield empty results, got %+v", result)
	}
}
