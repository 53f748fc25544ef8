package pipeline

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// storyLimiter caps in-flight workflow runs per story. Different stories
// are fully independent; a story at its cap rejects new runs immediately.
type storyLimiter struct {
	limit int64
	mu    sync.Mutex
	slots map[int64]*semaphore.Weighted
}

func newStoryLimiter(limit int) *storyLimiter {
	return &storyLimiter{
		limit: int64(limit),
		slots: make(map[int64]*semaphore.Weighted),
	}
}

func (l *storyLimiter) acquire(storyID int64) bool {
	l.mu.Lock()
	slot, ok := l.slots[storyID]
	if !ok {
		slot = semaphore.NewWeighted(l.limit)
		l.slots[storyID] = slot
	}
	l.mu.Unlock()

	return slot.TryAcquire(1)
}

func (l *storyLimiter) release(storyID int64) {
	l.mu.Lock()
	slot := l.slots[storyID]
	l.mu.Unlock()
	if slot != nil {
		slot.Release(1)
	}
}
