package consistency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Layer names in fixed execution order.
const (
	LayerRuleEngine = "rule_engine"
	LayerGraph      = "knowledge_graph"
	LayerTimeline   = "timeline"
	LayerEmotion    = "emotion_state"
)

// Step statuses used in the workflow trace and stream events.
const (
	StatusOK        = "ok"
	StatusViolation = "violation"
	StatusSkipped   = "skipped"
)

// Step is one layer execution record within a check trace.
type Step struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Agent      string    `json:"agent"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// Trace records one full check run for caller-side visualization.
type Trace struct {
	RunID   string `json:"run_id"`
	Trigger string `json:"trigger"`
	StoryID int64  `json:"story_id"`
	Chapter int    `json:"chapter"`
	Summary string `json:"summary"`
	Steps   []Step `json:"steps"`
}

// LayerResults carries the raw per-layer payloads of one check.
type LayerResults struct {
	Rules    RuleResult     `json:"rule_engine"`
	Graph    GraphResult    `json:"knowledge_graph"`
	Timeline TimelineResult `json:"timeline"`
}

// Verdict is the aggregated, immutable outcome of one consistency check.
type Verdict struct {
	HasConflict     bool         `json:"has_conflict"`
	Violations      []string     `json:"violations"`
	ChecksPerformed []string     `json:"checks_performed"`
	Extracted       []Relation   `json:"extracted"`
	Layers          LayerResults `json:"layer_results"`
	Trace           Trace        `json:"trace"`
}

// CheckEvent is one incremental event from the streamed check variant:
// one per layer followed by a terminal summary carrying the full verdict.
type CheckEvent struct {
	Type       string     `json:"type"` // "layer" or "summary"
	Layer      string     `json:"layer,omitempty"`
	Status     string     `json:"status,omitempty"`
	Violations []string   `json:"violations,omitempty"`
	Extracted  []Relation `json:"extracted,omitempty"`
	Verdict    *Verdict   `json:"verdict,omitempty"`
}

// Checker composes the four consistency layers. All layers always run so a
// single call surfaces every category of violation; layer mutations
// (relationship set, timeline, emotions) are permanent ledger writes, not an
// undoable simulation.
type Checker struct {
	rules    *RuleEngine
	graph    *Graph
	timeline *Tracker
	emotions *Machine
	logger   *slog.Logger

	// Per-story serialization keeps timeline monotonicity and the
	// no-conflicting-relationship invariant under concurrent runs.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

type CheckerOption func(*Checker)

func WithLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

func NewChecker(rules *RuleEngine, graph *Graph, timeline *Tracker, emotions *Machine, opts ...CheckerOption) *Checker {
	c := &Checker{
		rules:    rules,
		graph:    graph,
		timeline: timeline,
		emotions: emotions,
		logger:   slog.Default(),
		locks:    make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules exposes the rule engine for story setup.
func (c *Checker) Rules() *RuleEngine { return c.rules }

// Emotions exposes the emotion machine for story setup.
func (c *Checker) Emotions() *Machine { return c.emotions }

func (c *Checker) storyLock(storyID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[storyID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[storyID] = lock
	}
	return lock
}

// CheckContent runs all four layers over content in fixed order and returns
// the aggregated verdict. Layer violations never halt later layers.
func (c *Checker) CheckContent(ctx context.Context, storyID int64, content string, chapter, day int) (*Verdict, error) {
	lock := c.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	verdict := &Verdict{
		Violations:      []string{},
		ChecksPerformed: []string{},
		Extracted:       []Relation{},
		Trace: Trace{
			RunID:   uuid.New().String(),
			Trigger: "consistency.check_content",
			StoryID: storyID,
			Chapter: chapter,
			Summary: "four-layer consistency check",
		},
	}

	// Layer 1: rule engine.
	start := time.Now()
	ruleResult := c.rules.Validate(storyID, content)
	verdict.Layers.Rules = ruleResult
	verdict.ChecksPerformed = append(verdict.ChecksPerformed, LayerRuleEngine)
	verdict.Violations = append(verdict.Violations, ruleResult.Violations...)
	verdict.Trace.Steps = append(verdict.Trace.Steps, tracedStep(
		LayerRuleEngine, "", "RuleEngine", "world rule validation",
		layerStatus(len(ruleResult.Violations)), start))
	if !ruleResult.IsValid {
		c.logger.Warn("rule engine violations",
			"story_id", storyID, "count", len(ruleResult.Violations))
	}

	// Layer 2: relationship graph.
	start = time.Now()
	graphResult, err := c.graph.AnalyzeContent(ctx, storyID, content)
	if err != nil {
		return nil, err
	}
	verdict.Layers.Graph = graphResult
	verdict.ChecksPerformed = append(verdict.ChecksPerformed, LayerGraph)
	verdict.Violations = append(verdict.Violations, graphResult.Violations...)
	verdict.Extracted = graphResult.Extracted
	verdict.Trace.Steps = append(verdict.Trace.Steps, tracedStep(
		LayerGraph, LayerRuleEngine, "RelationGraph", "character relationship analysis",
		layerStatus(len(graphResult.Violations)), start))

	// Layer 3: timeline. The event is appended only when it validates.
	start = time.Now()
	timelineResult, err := c.timeline.ValidateNewEvent(ctx, storyID, day, content)
	if err != nil {
		return nil, err
	}
	verdict.Layers.Timeline = timelineResult
	verdict.ChecksPerformed = append(verdict.ChecksPerformed, LayerTimeline)
	if timelineResult.IsValid {
		if err := c.timeline.AddEvent(ctx, storyID, day, content); err != nil {
			return nil, err
		}
	} else {
		verdict.Violations = append(verdict.Violations, timelineResult.Reason)
		c.logger.Warn("timeline violation",
			"story_id", storyID, "reason", timelineResult.Reason)
	}
	timelineStatus := StatusOK
	if !timelineResult.IsValid {
		timelineStatus = StatusViolation
	}
	verdict.Trace.Steps = append(verdict.Trace.Steps, tracedStep(
		LayerTimeline, LayerGraph, "TimelineTracker", "event chronology validation",
		timelineStatus, start))

	// Layer 4: emotion state. A placeholder until generated content carries
	// emotion tags; kept in the trace so callers see the full layer flow.
	verdict.ChecksPerformed = append(verdict.ChecksPerformed, LayerEmotion)
	verdict.Trace.Steps = append(verdict.Trace.Steps, Step{
		ID:       LayerEmotion,
		ParentID: LayerTimeline,
		Agent:    "EmotionMachine",
		Title:    "emotion transition validation (reserved)",
		Status:   StatusSkipped,
	})

	verdict.HasConflict = len(verdict.Violations) > 0
	return verdict, nil
}

// CheckContentStream runs the same check as CheckContent and delivers one
// event per layer followed by a terminal summary event. Both variants agree
// on the final violations for identical input.
func (c *Checker) CheckContentStream(ctx context.Context, storyID int64, content string, chapter, day int) (<-chan CheckEvent, error) {
	verdict, err := c.CheckContent(ctx, storyID, content, chapter, day)
	if err != nil {
		return nil, err
	}

	events := make(chan CheckEvent, 5)
	go func() {
		defer close(events)

		emit := func(ev CheckEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(CheckEvent{
			Type:       "layer",
			Layer:      LayerRuleEngine,
			Status:     layerStatus(len(verdict.Layers.Rules.Violations)),
			Violations: verdict.Layers.Rules.Violations,
		}) {
			return
		}
		if !emit(CheckEvent{
			Type:       "layer",
			Layer:      LayerGraph,
			Status:     layerStatus(len(verdict.Layers.Graph.Violations)),
			Violations: verdict.Layers.Graph.Violations,
			Extracted:  verdict.Layers.Graph.Extracted,
		}) {
			return
		}
		timelineViolations := []string{}
		if !verdict.Layers.Timeline.IsValid {
			timelineViolations = []string{verdict.Layers.Timeline.Reason}
		}
		if !emit(CheckEvent{
			Type:       "layer",
			Layer:      LayerTimeline,
			Status:     layerStatus(len(timelineViolations)),
			Violations: timelineViolations,
		}) {
			return
		}
		if !emit(CheckEvent{Type: "layer", Layer: LayerEmotion, Status: StatusSkipped, Violations: []string{}}) {
			return
		}
		emit(CheckEvent{
			Type:       "summary",
			Violations: verdict.Violations,
			Verdict:    verdict,
		})
	}()

	return events, nil
}

func layerStatus(violations int) string {
	if violations > 0 {
		return StatusViolation
	}
	return StatusOK
}

func tracedStep(id, parent, agent, title, status string, start time.Time) Step {
	end := time.Now()
	return Step{
		ID:         id,
		ParentID:   parent,
		Agent:      agent,
		Title:      title,
		Status:     status,
		StartedAt:  start,
		FinishedAt: end,
		DurationMS: end.Sub(start).Milliseconds(),
	}
}
