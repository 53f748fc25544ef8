package store

import (
	"context"
	"sort"
	"sync"

	"github.com/vampirenirmal/storyforge/internal/consistency"
)

// Memory is an in-memory consistency store. It satisfies the relation,
// event and emotion store contracts, guarded per story so different stories
// never contend.
type Memory struct {
	mu      sync.Mutex
	stories map[int64]*storyState
}

type storyState struct {
	mu        sync.RWMutex
	relations map[pairKey][]consistency.Kind
	events    []consistency.Event
	emotions  map[string]consistency.Label
}

type pairKey struct {
	from, to string
}

func NewMemory() *Memory {
	return &Memory{stories: make(map[int64]*storyState)}
}

// Available always reports true: memory never degrades.
func (m *Memory) Available() bool { return true }

func (m *Memory) story(storyID int64) *storyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.stories[storyID]
	if !ok {
		state = &storyState{
			relations: make(map[pairKey][]consistency.Kind),
			emotions:  make(map[string]consistency.Label),
		}
		m.stories[storyID] = state
	}
	return state
}

func (m *Memory) Kinds(_ context.Context, storyID int64, from, to string) ([]consistency.Kind, error) {
	state := m.story(storyID)
	state.mu.RLock()
	defer state.mu.RUnlock()
	kinds := state.relations[pairKey{from, to}]
	out := make([]consistency.Kind, len(kinds))
	copy(out, kinds)
	return out, nil
}

func (m *Memory) Put(_ context.Context, storyID int64, from, to string, kind consistency.Kind) error {
	state := m.story(storyID)
	state.mu.Lock()
	defer state.mu.Unlock()
	key := pairKey{from, to}
	for _, existing := range state.relations[key] {
		if existing == kind {
			return nil
		}
	}
	state.relations[key] = append(state.relations[key], kind)
	return nil
}

func (m *Memory) Events(_ context.Context, storyID int64) ([]consistency.Event, error) {
	state := m.story(storyID)
	state.mu.RLock()
	defer state.mu.RUnlock()
	out := make([]consistency.Event, len(state.events))
	copy(out, state.events)
	return out, nil
}

func (m *Memory) Append(_ context.Context, storyID int64, event consistency.Event) error {
	state := m.story(storyID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.events = append(state.events, event)
	// Stable keeps insertion order on same-day ties.
	sort.SliceStable(state.events, func(i, j int) bool {
		return state.events[i].Day < state.events[j].Day
	})
	return nil
}

func (m *Memory) Emotion(_ context.Context, storyID int64, character string) (consistency.Label, bool, error) {
	state := m.story(storyID)
	state.mu.RLock()
	defer state.mu.RUnlock()
	label, ok := state.emotions[character]
	return label, ok, nil
}

func (m *Memory) SetEmotion(_ context.Context, storyID int64, character string, label consistency.Label) error {
	state := m.story(storyID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.emotions[character] = label
	return nil
}
