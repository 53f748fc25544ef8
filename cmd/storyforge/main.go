package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/vampirenirmal/storyforge/internal/agent"
	"github.com/vampirenirmal/storyforge/internal/config"
	"github.com/vampirenirmal/storyforge/internal/consistency"
	"github.com/vampirenirmal/storyforge/internal/pipeline"
	"github.com/vampirenirmal/storyforge/internal/retrieval"
	"github.com/vampirenirmal/storyforge/internal/storage"
	"github.com/vampirenirmal/storyforge/internal/store"
)

func main() {
	var (
		storyID      = flag.Int64("story", 1, "story ID scoping consistency state")
		prompt       = flag.String("prompt", "", "story beat to generate from")
		chapter      = flag.Int("chapter", 1, "chapter being written")
		day          = flag.Int("day", 1, "in-fiction day of the new content")
		targetLength = flag.Int("length", 800, "target passage length in words")
		useMock      = flag.Bool("mock", false, "use the scripted mock client instead of a live model")
		magicCap     = flag.Int("max-magic-level", 0, "world rule: magic level cap (0 disables)")
		speedCap     = flag.Int("max-flight-speed", 0, "world rule: flight speed cap in km/h (0 disables)")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: storyforge -prompt \"story beat\" [-story N] [-chapter N] [-day N]")
		os.Exit(1)
	}

	worldRules := map[string]int{}
	if *magicCap > 0 {
		worldRules[consistency.RuleMaxMagicLevel] = *magicCap
	}
	if *speedCap > 0 {
		worldRules[consistency.RuleMaxFlightSpeed] = *speedCap
	}

	if err := run(logger, *storyID, *prompt, *chapter, *day, *targetLength, *useMock, worldRules); err != nil {
		logger.Error("generation failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, storyID int64, prompt string, chapter, day, targetLength int, useMock bool, worldRules map[string]int) error {
	cfg, err := config.Load()
	if err != nil {
		if !useMock {
			return err
		}
		defaults := config.DefaultLimits()
		cfg = &config.Config{Limits: defaults}
	}

	var client agent.AIClient
	switch {
	case useMock:
		client = agent.NewMockClient()
	case cfg.AI.Client == "sdk":
		client = agent.NewSDKClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model)
	default:
		client = agent.NewClient(cfg.AI.APIKey,
			agent.WithAPIConfig(cfg.AI.BaseURL, cfg.AI.Model),
			agent.WithRateLimit(cfg.Limits.RateLimit.RequestsPerMinute, cfg.Limits.RateLimit.BurstSize),
			agent.WithClientLogger(logger),
		)
	}

	checker, closeStore, err := buildChecker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	checker.Rules().InitRules(storyID, worldRules)

	provider := retrieval.NewMemory()

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMaxRetries(cfg.Limits.MaxRetries),
		pipeline.WithMaxRunsPerStory(cfg.Limits.MaxRunsPerStory),
		pipeline.WithTimeout(cfg.Limits.WorkflowTimeout),
		pipeline.WithTopK(cfg.Limits.RetrievalTopK),
	}
	if cfg.Output.Dir != "" {
		opts = append(opts, pipeline.WithResultStore(storage.NewFileSystem(cfg.Output.Dir)))
	}
	pipe := pipeline.New(client, checker, provider, opts...)

	result, err := pipe.Generate(context.Background(), pipeline.Request{
		StoryID:      storyID,
		Prompt:       prompt,
		Chapter:      chapter,
		CurrentDay:   day,
		TargetLength: targetLength,
	})
	if err != nil {
		return err
	}

	fmt.Println(result.FinalText)
	if result.Unresolved {
		fmt.Fprintf(os.Stderr, "\nunresolved consistency conflicts after %d retries:\n", result.RetryCount)
		for _, violation := range result.Verdict.Violations {
			fmt.Fprintf(os.Stderr, "  - %s\n", violation)
		}
	}
	return nil
}

func buildChecker(cfg *config.Config, logger *slog.Logger) (*consistency.Checker, func(), error) {
	closeStore := func() {}

	var (
		relations consistency.RelationStore
		events    consistency.EventStore
		emotions  consistency.EmotionStore
	)
	if cfg.Store.Driver == "sqlite" {
		sqliteStore, err := store.NewSQLite(cfg.Store.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		closeStore = func() { _ = sqliteStore.Close() }
		relations, events, emotions = sqliteStore, sqliteStore, sqliteStore
	} else {
		memoryStore := store.NewMemory()
		relations, events, emotions = memoryStore, memoryStore, memoryStore
	}

	checker := consistency.NewChecker(
		consistency.NewRuleEngine(),
		consistency.NewGraph(relations, logger),
		consistency.NewTracker(events),
		consistency.NewMachine(emotions),
		consistency.WithLogger(logger),
	)
	return checker, closeStore, nil
}
