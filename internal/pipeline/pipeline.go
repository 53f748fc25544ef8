// Package pipeline runs the staged chapter-generation workflow: retrieve
// context, draft setting, draft character beats, draft the integrated plot
// text, then consistency-check the result, re-drafting the plot text up to
// a bounded number of times while conflicts remain.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vampirenirmal/storyforge/internal/agent"
	"github.com/vampirenirmal/storyforge/internal/consistency"
	"github.com/vampirenirmal/storyforge/internal/retrieval"
)

// Checker is the consistency collaborator. consistency.Checker satisfies it.
type Checker interface {
	CheckContent(ctx context.Context, storyID int64, content string, chapter, day int) (*consistency.Verdict, error)
}

// ResultStore optionally persists finished results for traceability.
type ResultStore interface {
	Save(ctx context.Context, path string, data []byte) error
}

const (
	defaultMaxRetries      = 3
	defaultMaxRunsPerStory = 5
	defaultTimeout         = 300 * time.Second
	defaultTopK            = 5
	defaultTargetLength    = 800
)

// Pipeline orchestrates one run per call. Safe for concurrent use; runs for
// the same story are capped by the per-story limiter.
type Pipeline struct {
	client     agent.AIClient
	checker    Checker
	provider   retrieval.Provider
	limiter    *storyLimiter
	results    ResultStore
	maxRetries int
	timeout    time.Duration
	topK       int
	logger     *slog.Logger
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMaxRetries(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

func WithMaxRunsPerStory(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.limiter = newStoryLimiter(n)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

func WithResultStore(store ResultStore) Option {
	return func(p *Pipeline) {
		p.results = store
	}
}

func New(client agent.AIClient, checker Checker, provider retrieval.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:     client,
		checker:    checker,
		provider:   provider,
		limiter:    newStoryLimiter(defaultMaxRunsPerStory),
		maxRetries: defaultMaxRetries,
		timeout:    defaultTimeout,
		topK:       defaultTopK,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate runs the full workflow for one request. Consistency conflicts
// re-enter plot drafting up to the retry bound; drafting failures, capacity
// rejections and timeouts propagate as distinct error kinds.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("generation request needs a prompt")
	}
	if req.Chapter < 1 {
		req.Chapter = 1
	}
	if req.TargetLength <= 0 {
		req.TargetLength = defaultTargetLength
	}

	if !p.limiter.acquire(req.StoryID) {
		return nil, &CapacityError{StoryID: req.StoryID, Limit: int(p.limiter.limit)}
	}
	defer p.limiter.release(req.StoryID)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	runID := uuid.New().String()
	logger := p.logger.With("run_id", runID, "story_id", req.StoryID, "chapter", req.Chapter)
	logger.Info("generation run started", "prompt_length", len(req.Prompt))

	state := &runState{req: req}
	current := stageRetrieve
	for current != stageDone {
		if err := ctx.Err(); err != nil {
			logger.Error("generation run abandoned", "stage", current.String(), "error", err)
			return nil, fmt.Errorf("workflow abandoned at %s: %w", current.String(), err)
		}

		logger.Debug("entering stage", "stage", current.String(), "retries", state.retries)

		var err error
		switch current {
		case stageRetrieve:
			err = p.retrieveContext(ctx, state)
			current = stageSetting
		case stageSetting:
			err = p.draftSetting(ctx, state)
			current = stageCharacter
		case stageCharacter:
			err = p.draftCharacterBeats(ctx, state)
			current = stagePlot
		case stagePlot:
			err = p.draftPlotText(ctx, state)
			current = stageCheck
		case stageCheck:
			current, err = p.checkConsistency(ctx, state, logger)
		}
		if err != nil {
			return nil, err
		}
	}

	unresolved := state.verdict != nil && state.verdict.HasConflict
	if unresolved {
		logger.Warn("retries exhausted with unresolved conflicts",
			"retries", state.retries,
			"violations", len(state.verdict.Violations),
		)
	} else {
		logger.Info("generation run finished", "retries", state.retries)
	}

	result := &Result{
		RunID:            runID,
		StoryID:          req.StoryID,
		Chapter:          req.Chapter,
		FinalText:        state.plotDraft,
		SettingDraft:     state.settingDraft,
		CharacterDraft:   state.characterDraft,
		RetryCount:       state.retries,
		Unresolved:       unresolved,
		Verdict:          state.verdict,
		SettingContext:   state.settingContext,
		CharacterContext: state.characterContext,
		GeneratedAt:      time.Now(),
	}

	if p.results != nil {
		p.saveResult(ctx, result, logger)
	}
	return result, nil
}

// retrieveContext fetches setting- and character-relevant passages in
// parallel, both capped at the current chapter so drafts cannot spoil
// chapters not yet reached.
func (p *Pipeline) retrieveContext(ctx context.Context, state *runState) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		passages, err := p.provider.Retrieve(groupCtx, retrieval.Query{
			StoryID:    state.req.StoryID,
			Text:       state.req.Prompt,
			MaxChapter: state.req.Chapter,
			TopK:       p.topK,
		})
		if err != nil {
			return fmt.Errorf("retrieving setting context: %w", err)
		}
		state.settingContext = passages
		return nil
	})

	group.Go(func() error {
		passages, err := p.provider.Retrieve(groupCtx, retrieval.Query{
			StoryID:    state.req.StoryID,
			Text:       "characters " + state.req.Prompt,
			MaxChapter: state.req.Chapter,
			TopK:       p.topK,
		})
		if err != nil {
			return fmt.Errorf("retrieving character context: %w", err)
		}
		state.characterContext = passages
		return nil
	})

	return group.Wait()
}

func (p *Pipeline) draftSetting(ctx context.Context, state *runState) error {
	system, user := settingPrompts(state.req.Prompt, state.settingContext)
	draft, err := p.draft(ctx, stageSetting, system, user)
	if err != nil {
		return err
	}
	state.settingDraft = draft
	return nil
}

func (p *Pipeline) draftCharacterBeats(ctx context.Context, state *runState) error {
	system, user := characterPrompts(state.req.Prompt, state.characterContext, state.settingDraft)
	draft, err := p.draft(ctx, stageCharacter, system, user)
	if err != nil {
		return err
	}
	state.characterDraft = draft
	return nil
}

func (p *Pipeline) draftPlotText(ctx context.Context, state *runState) error {
	system, user := plotPrompts(state.req.Prompt, state.req.TargetLength, state.settingDraft, state.characterDraft)
	draft, err := p.draft(ctx, stagePlot, system, user)
	if err != nil {
		return err
	}
	state.plotDraft = draft
	return nil
}

func (p *Pipeline) draft(ctx context.Context, s stage, systemPrompt, userPrompt string) (string, error) {
	output, err := p.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", &DraftError{Stage: s.String(), Cause: err}
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return "", &DraftError{Stage: s.String(), Cause: ErrEmptyDraft}
	}
	return output, nil
}

// checkConsistency runs the composite checker over the plot draft and
// decides the next stage: re-enter plot drafting while conflicts remain and
// retries are left, otherwise terminate. Setting and character drafts are
// reused across retries, never regenerated.
func (p *Pipeline) checkConsistency(ctx context.Context, state *runState, logger *slog.Logger) (stage, error) {
	verdict, err := p.checker.CheckContent(ctx, state.req.StoryID, state.plotDraft, state.req.Chapter, state.req.CurrentDay)
	if err != nil {
		return stageDone, fmt.Errorf("consistency check: %w", err)
	}
	state.verdict = verdict

	if verdict.HasConflict && state.retries < p.maxRetries {
		state.retries++
		logger.Warn("consistency conflict, re-drafting plot text",
			"retry", state.retries,
			"violations", len(verdict.Violations),
		)
		return stagePlot, nil
	}
	return stageDone, nil
}

func (p *Pipeline) saveResult(ctx context.Context, result *Result, logger *slog.Logger) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("marshaling result", "error", err)
		return
	}
	path := fmt.Sprintf("story-%d/chapter-%d-%s.json", result.StoryID, result.Chapter, result.RunID)
	if err := p.results.Save(ctx, path, data); err != nil {
		logger.Error("saving result", "path", path, "error", err)
	}
}
