package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

// Event is one entry in a story's in-fiction timeline. Day is elapsed
// narrative time, independent of chapter numbering.
type Event struct {
	Day  int    `json:"day"`
	Text string `json:"text"`
}

// TimelineResult reports whether a candidate event fits the timeline.
type TimelineResult struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

// EventStore persists the per-story event log, ordered by day ascending and
// stable by insertion order on ties.
type EventStore interface {
	Events(ctx context.Context, storyID int64) ([]Event, error)
	Append(ctx context.Context, storyID int64, event Event) error
}

// placePattern matches place-name tokens by their suffix, used for the
// geographic plausibility look.
var placePattern = regexp.MustCompile(`([A-Za-z\p{Han}]{2,}(?:城|镇|村|国|City|Town|Village))`)

// Tracker maintains per-story event timelines and rejects chronologically
// regressive events.
type Tracker struct {
	store  EventStore
	logger *slog.Logger
}

func NewTracker(store EventStore) *Tracker {
	return &Tracker{store: store, logger: slog.Default()}
}

// AddEvent appends an event to the story's timeline. The store keeps the
// sequence sorted by day.
func (t *Tracker) AddEvent(ctx context.Context, storyID int64, day int, text string) error {
	return t.store.Append(ctx, storyID, Event{Day: day, Text: text})
}

// ValidateNewEvent checks a candidate event against the timeline. It is
// trivially valid when the timeline is empty, and invalid with a time
// regression reason when the day precedes the latest recorded day.
//
// Same-day location changes are looked at but deliberately never rejected:
// a single day can span several places within one scene, so the place check
// stays permissive.
func (t *Tracker) ValidateNewEvent(ctx context.Context, storyID int64, day int, text string) (TimelineResult, error) {
	events, err := t.store.Events(ctx, storyID)
	if err != nil {
		return TimelineResult{}, fmt.Errorf("reading timeline for story %d: %w", storyID, err)
	}
	if len(events) == 0 {
		return TimelineResult{IsValid: true}, nil
	}

	last := events[len(events)-1]
	if day < last.Day {
		return TimelineResult{
			IsValid: false,
			Reason: fmt.Sprintf("time regression: new event on day %d, but the latest event is on day %d",
				day, last.Day),
		}, nil
	}

	places := placePattern.FindAllString(text, -1)
	lastPlaces := placePattern.FindAllString(last.Text, -1)
	if day == last.Day && len(places) > 0 && len(lastPlaces) > 0 && places[0] != lastPlaces[0] {
		t.logger.Debug("same-day location change",
			"story_id", storyID, "day", day,
			"from", lastPlaces[0], "to", places[0],
		)
	}

	return TimelineResult{IsValid: true}, nil
}

// Timeline returns the story's event sequence, ordered by day.
func (t *Tracker) Timeline(ctx context.Context, storyID int64) ([]Event, error) {
	return t.store.Events(ctx, storyID)
}
