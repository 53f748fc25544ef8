package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyDraft marks a drafting stage that produced no usable text.
var ErrEmptyDraft = errors.New("empty draft")

// DraftError is a generation-provider failure in one drafting stage. It
// halts the workflow and propagates to the caller; only consistency-driven
// retries are handled inside the pipeline.
type DraftError struct {
	Stage string
	Cause error
}

func (e *DraftError) Error() string {
	return fmt.Sprintf("drafting failed at %s: %v", e.Stage, e.Cause)
}

func (e *DraftError) Unwrap() error {
	return e.Cause
}

// CapacityError reports a rejected run: the story already has the maximum
// number of workflow runs in flight. Runs are rejected, never queued.
type CapacityError struct {
	StoryID int64
	Limit   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("story %d already has %d runs in flight", e.StoryID, e.Limit)
}

// IsDraftFailure reports whether err is a drafting-stage failure.
func IsDraftFailure(err error) bool {
	var draftErr *DraftError
	return errors.As(err, &draftErr)
}

// IsCapacity reports whether err is a per-story capacity rejection.
func IsCapacity(err error) bool {
	var capErr *CapacityError
	return errors.As(err, &capErr)
}
