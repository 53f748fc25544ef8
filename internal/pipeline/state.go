package pipeline

import (
	"time"

	"github.com/vampirenirmal/storyforge/internal/consistency"
	"github.com/vampirenirmal/storyforge/internal/retrieval"
)

// stage enumerates the fixed workflow stages. The only back-edge is
// stageCheck -> stagePlot on a consistency conflict with retries left.
type stage int

const (
	stageRetrieve stage = iota
	stageSetting
	stageCharacter
	stagePlot
	stageCheck
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageRetrieve:
		return "retrieve_context"
	case stageSetting:
		return "draft_setting"
	case stageCharacter:
		return "draft_character_beats"
	case stagePlot:
		return "draft_plot_text"
	case stageCheck:
		return "consistency_check"
	case stageDone:
		return "done"
	}
	return "unknown"
}

// Request describes one chapter-generation run.
type Request struct {
	StoryID      int64
	Prompt       string
	Chapter      int
	CurrentDay   int
	TargetLength int
}

// Result is the terminal output of one run: the final text, each staged
// draft, the retry count actually used, the last verdict and all retrieved
// context, so callers can trace exactly what the drafts were conditioned on.
type Result struct {
	RunID            string               `json:"run_id"`
	StoryID          int64                `json:"story_id"`
	Chapter          int                  `json:"chapter"`
	FinalText        string               `json:"final_text"`
	SettingDraft     string               `json:"setting_draft"`
	CharacterDraft   string               `json:"character_draft"`
	RetryCount       int                  `json:"retry_count"`
	Unresolved       bool                 `json:"unresolved_conflict"`
	Verdict          *consistency.Verdict `json:"verdict,omitempty"`
	SettingContext   []retrieval.Passage  `json:"setting_context"`
	CharacterContext []retrieval.Passage  `json:"character_context"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

// runState is the workflow-scoped mutable state. It lives for exactly one
// run and is never shared across runs.
type runState struct {
	req              Request
	settingDraft     string
	characterDraft   string
	plotDraft        string
	settingContext   []retrieval.Passage
	characterContext []retrieval.Passage
	verdict          *consistency.Verdict
	retries          int
}
