package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vampirenirmal/storyforge/internal/agent"
	"github.com/vampirenirmal/storyforge/internal/consistency"
	"github.com/vampirenirmal/storyforge/internal/pipeline"
	"github.com/vampirenirmal/storyforge/internal/retrieval"
)

// stubChecker returns a fixed verdict for every check.
type stubChecker struct {
	mu       sync.Mutex
	conflict bool
	err      error
	calls    int
}

func (c *stubChecker) CheckContent(_ context.Context, _ int64, _ string, _, _ int) (*consistency.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	verdict := &consistency.Verdict{HasConflict: c.conflict}
	if c.conflict {
		verdict.Violations = []string{"scripted violation"}
	}
	return verdict, nil
}

func (c *stubChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// blockingChecker holds every check open until release is closed, or until
// the caller's context expires.
type blockingChecker struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingChecker) CheckContent(ctx context.Context, _ int64, _ string, _, _ int) (*consistency.Verdict, error) {
	c.entered <- struct{}{}
	select {
	case <-c.release:
		return &consistency.Verdict{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stageCountingClient records one counter per drafting stage, keyed by the
// same system-prompt keywords the mock client matches on.
type stageCountingClient struct {
	mu        sync.Mutex
	setting   int
	character int
	plot      int
}

func (c *stageCountingClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *stageCountingClient) CompleteWithSystem(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	combined := strings.ToLower(systemPrompt + " " + userPrompt)
	switch {
	case strings.Contains(combined, "atmosphere"):
		c.setting++
		return "setting draft", nil
	case strings.Contains(combined, "dialogue"):
		c.character++
		return "character draft", nil
	case strings.Contains(combined, "integrate"):
		c.plot++
		return "plot draft", nil
	}
	return "", errors.New("unrecognized stage prompt")
}

func newPipeline(client agent.AIClient, checker pipeline.Checker, opts ...pipeline.Option) *pipeline.Pipeline {
	return pipeline.New(client, checker, retrieval.NewMemory(), opts...)
}

func TestGenerateCleanRun(t *testing.T) {
	checker := &stubChecker{}
	result, err := newPipeline(agent.NewMockClient(), checker).Generate(context.Background(), pipeline.Request{
		StoryID: 1,
		Prompt:  "Mira leaves the city",
		Chapter: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Unresolved {
		t.Error("clean run flagged unresolved")
	}
	if result.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", result.RetryCount)
	}
	if result.FinalText == "" || result.SettingDraft == "" || result.CharacterDraft == "" {
		t.Error("all three drafts should be present")
	}
	if result.RunID == "" {
		t.Error("result should carry a run id")
	}
	if checker.callCount() != 1 {
		t.Errorf("checker invoked %d times, want 1", checker.callCount())
	}
}

func TestGenerateRetriesPlotOnlyUntilBound(t *testing.T) {
	client := &stageCountingClient{}
	checker := &stubChecker{conflict: true}

	result, err := newPipeline(client, checker).Generate(context.Background(), pipeline.Request{
		StoryID: 1,
		Prompt:  "the siege begins",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !result.Unresolved {
		t.Error("exhausted retries must flag the result unresolved")
	}
	if result.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", result.RetryCount)
	}
	if checker.callCount() != 4 {
		t.Errorf("checker invoked %d times, want 4 (initial + 3 retries)", checker.callCount())
	}
	if client.plot != 4 {
		t.Errorf("plot drafted %d times, want 4", client.plot)
	}
	if client.setting != 1 || client.character != 1 {
		t.Errorf("setting drafted %d times and character %d times, want 1 each",
			client.setting, client.character)
	}
	if result.Verdict == nil || !result.Verdict.HasConflict {
		t.Error("result should carry the final conflicting verdict")
	}
}

func TestGenerateDraftFailurePropagates(t *testing.T) {
	client := agent.NewMockClient()
	client.FailAfter = 2
	client.Err = errors.New("provider down")

	_, err := newPipeline(client, &stubChecker{}).Generate(context.Background(), pipeline.Request{
		StoryID: 1,
		Prompt:  "a storm rolls in",
	})
	if err == nil {
		t.Fatal("expected a drafting error")
	}
	if !pipeline.IsDraftFailure(err) {
		t.Fatalf("error %v is not a draft failure", err)
	}
	var draftErr *pipeline.DraftError
	errors.As(err, &draftErr)
	if draftErr.Stage != "draft_plot_text" {
		t.Errorf("failing stage = %s, want draft_plot_text", draftErr.Stage)
	}
}

func TestGenerateEmptyDraftIsFailure(t *testing.T) {
	client := &agent.MockClient{Default: "   "}

	_, err := newPipeline(client, &stubChecker{}).Generate(context.Background(), pipeline.Request{
		StoryID: 1,
		Prompt:  "a storm rolls in",
	})
	if !pipeline.IsDraftFailure(err) {
		t.Fatalf("error %v is not a draft failure", err)
	}
	if !errors.Is(err, pipeline.ErrEmptyDraft) {
		t.Errorf("error %v should wrap ErrEmptyDraft", err)
	}
}

func TestGenerateEmptyPromptRejected(t *testing.T) {
	_, err := newPipeline(agent.NewMockClient(), &stubChecker{}).Generate(context.Background(), pipeline.Request{StoryID: 1})
	if err == nil {
		t.Fatal("empty prompt must be rejected")
	}
}

func TestGenerateRejectsRunsPastStoryCap(t *testing.T) {
	checker := &blockingChecker{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := newPipeline(agent.NewMockClient(), checker, pipeline.WithMaxRunsPerStory(1))

	done := make(chan error, 1)
	go func() {
		_, err := p.Generate(context.Background(), pipeline.Request{StoryID: 7, Prompt: "first run"})
		done <- err
	}()
	<-checker.entered

	_, err := p.Generate(context.Background(), pipeline.Request{StoryID: 7, Prompt: "second run"})
	if !pipeline.IsCapacity(err) {
		t.Errorf("same-story run past the cap got %v, want a capacity error", err)
	}

	// Runs for other stories are not affected by story 7 being at its cap.
	otherDone := make(chan error, 1)
	go func() {
		_, err := p.Generate(context.Background(), pipeline.Request{StoryID: 8, Prompt: "other story"})
		otherDone <- err
	}()
	<-checker.entered
	close(checker.release)

	if err := <-done; err != nil {
		t.Errorf("first run failed: %v", err)
	}
	if err := <-otherDone; err != nil {
		t.Errorf("other-story run failed: %v", err)
	}

	// The released slot is reusable.
	if _, err := p.Generate(context.Background(), pipeline.Request{StoryID: 7, Prompt: "third run"}); err != nil {
		t.Errorf("run after release failed: %v", err)
	}
}

func TestGenerateTimesOut(t *testing.T) {
	checker := &blockingChecker{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := newPipeline(agent.NewMockClient(), checker, pipeline.WithTimeout(50*time.Millisecond))

	_, err := p.Generate(context.Background(), pipeline.Request{StoryID: 1, Prompt: "never finishes"})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v should wrap context.DeadlineExceeded", err)
	}
}

// captureStore records the last saved result.
type captureStore struct {
	mu   sync.Mutex
	path string
	data []byte
}

func (s *captureStore) Save(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.data = data
	return nil
}

func TestGeneratePersistsResult(t *testing.T) {
	capture := &captureStore{}
	p := newPipeline(agent.NewMockClient(), &stubChecker{}, pipeline.WithResultStore(capture))

	result, err := p.Generate(context.Background(), pipeline.Request{
		StoryID: 3,
		Prompt:  "the archive burns",
		Chapter: 9,
	})
	if err != nil {
		t.Fatal(err)
	}

	wantPath := "story-3/chapter-9-" + result.RunID + ".json"
	if capture.path != wantPath {
		t.Errorf("saved path = %q, want %q", capture.path, wantPath)
	}

	var saved pipeline.Result
	if err := json.Unmarshal(capture.data, &saved); err != nil {
		t.Fatalf("saved payload is not valid JSON: %v", err)
	}
	if saved.RunID != result.RunID || saved.FinalText != result.FinalText {
		t.Error("saved result does not match the returned result")
	}
}
