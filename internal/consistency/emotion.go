package consistency

import (
	"context"
	"fmt"
)

// Label is a character emotional state.
type Label string

const (
	EmotionCalm      Label = "calm"
	EmotionHappy     Label = "happy"
	EmotionSad       Label = "sad"
	EmotionAngry     Label = "angry"
	EmotionRage      Label = "rage"
	EmotionExcited   Label = "excited"
	EmotionDespair   Label = "despair"
	EmotionSurprised Label = "surprised"
	EmotionFear      Label = "fear"
)

// emotionTransitions is the directed, asymmetric transition table. Rage
// cannot drop straight to calm; it has to pass through anger or sadness.
var emotionTransitions = map[Label][]Label{
	EmotionCalm:      {EmotionHappy, EmotionSad, EmotionAngry, EmotionSurprised},
	EmotionHappy:     {EmotionCalm, EmotionExcited, EmotionSurprised},
	EmotionSad:       {EmotionCalm, EmotionDespair, EmotionAngry},
	EmotionAngry:     {EmotionCalm, EmotionRage, EmotionSad},
	EmotionRage:      {EmotionAngry, EmotionSad},
	EmotionExcited:   {EmotionHappy, EmotionCalm},
	EmotionDespair:   {EmotionSad, EmotionCalm},
	EmotionSurprised: {EmotionCalm, EmotionHappy, EmotionFear},
	EmotionFear:      {EmotionCalm, EmotionSurprised, EmotionDespair},
}

// EmotionResult reports the validity of one transition attempt.
type EmotionResult struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

// EmotionStore persists the current emotional label per (story, character).
type EmotionStore interface {
	Emotion(ctx context.Context, storyID int64, character string) (Label, bool, error)
	SetEmotion(ctx context.Context, storyID int64, character string, label Label) error
}

// Machine restricts which emotional-state transitions are legal per
// character. Characters default to calm when first referenced.
type Machine struct {
	store EmotionStore
}

func NewMachine(store EmotionStore) *Machine {
	return &Machine{store: store}
}

// SetEmotion force-sets the current state, bypassing the transition table.
// Used for initialization and tests.
func (m *Machine) SetEmotion(ctx context.Context, storyID int64, character string, label Label) error {
	return m.store.SetEmotion(ctx, storyID, character, label)
}

// Emotion returns the character's current label, defaulting to calm.
func (m *Machine) Emotion(ctx context.Context, storyID int64, character string) (Label, error) {
	label, ok, err := m.store.Emotion(ctx, storyID, character)
	if err != nil {
		return "", err
	}
	if !ok {
		return EmotionCalm, nil
	}
	return label, nil
}

// ValidateTransition checks the candidate label against the transition table
// for the character's current state. A legal transition mutates the stored
// state; a rejected one leaves it untouched.
func (m *Machine) ValidateTransition(ctx context.Context, storyID int64, character string, next Label) (EmotionResult, error) {
	current, err := m.Emotion(ctx, storyID, character)
	if err != nil {
		return EmotionResult{}, fmt.Errorf("reading emotion for %s: %w", character, err)
	}

	for _, allowed := range emotionTransitions[current] {
		if allowed == next {
			if err := m.store.SetEmotion(ctx, storyID, character, next); err != nil {
				return EmotionResult{}, fmt.Errorf("updating emotion for %s: %w", character, err)
			}
			return EmotionResult{IsValid: true}, nil
		}
	}

	return EmotionResult{
		IsValid: false,
		Reason: fmt.Sprintf("%s cannot shift from %q directly to %q",
			character, current, next),
	}, nil
}
