package flow

import (
	"errors"
	"time"

	"github.com/MrEthical07/agentAuth/activity"
)

// Tag is the discrete state of a flow.
type Tag string

const (
	TagNotStarted Tag = "not_started"
	TagBegin      Tag = "begin"
	TagContinue   Tag = "continue"
	TagComplete   Tag = "complete"
	TagFailure    Tag = "failure"
)

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	switch t {
	case TagNotStarted, TagBegin, TagContinue, TagComplete, TagFailure:
		return true
	}
	return false
}

// ErrCorruptState marks a record that violates a FlowState invariant.
var ErrCorruptState = errors.New("corrupt flow state")

// FlowState is the persisted state of one sign-in flow.
type FlowState struct {
	Tag                  Tag
	Expiration           int64 // unix seconds
	AttemptsRemaining    int
	ContinuationActivity *activity.Activity
	UserToken            string
}

// New returns a fresh not-started state with the given attempt budget.
func New(maxAttempts int) *FlowState {
	return &FlowState{
		Tag:               TagNotStarted,
		AttemptsRemaining: maxAttempts,
	}
}

// IsExpired reports now >= Expiration. The boundary is inclusive.
func (s *FlowState) IsExpired(now time.Time) bool {
	return now.Unix() >= s.Expiration
}

// ReachedMaxAttempts reports whether the retry budget is exhausted.
func (s *FlowState) ReachedMaxAttempts() bool {
	return s.AttemptsRemaining <= 0
}

// IsActive reports whether a continuation activity may still be applied.
func (s *FlowState) IsActive(now time.Time) bool {
	return s.Tag == TagContinue && s.AttemptsRemaining >= 1 && !s.IsExpired(now)
}

// Refresh resets a stale or exhausted flow to not_started so a new attempt
// can begin. Failure is left untouched. Expiration and the attempt budget are
// not reset here; Begin owns that. Returns true when the tag changed.
func (s *FlowState) Refresh(now time.Time) bool {
	if s.Tag == TagFailure {
		return false
	}
	if s.IsExpired(now) || s.ReachedMaxAttempts() {
		if s.Tag == TagNotStarted {
			return false
		}
		s.Tag = TagNotStarted
		return true
	}
	return false
}

// Validate checks the record invariants.
func (s *FlowState) Validate() error {
	if !s.Tag.Valid() {
		return ErrCorruptState
	}
	if s.Tag == TagComplete && s.UserToken == "" {
		return ErrCorruptState
	}
	return nil
}

// Clone returns a deep copy.
func (s *FlowState) Clone() *FlowState {
	if s == nil {
		return nil
	}
	out := *s
	out.ContinuationActivity = s.ContinuationActivity.Clone()
	return &out
}

// Equal reports field-wise equality including the continuation activity.
func (s *FlowState) Equal(other *FlowState) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Tag == other.Tag &&
		s.Expiration == other.Expiration &&
		s.AttemptsRemaining == other.AttemptsRemaining &&
		s.UserToken == other.UserToken &&
		s.ContinuationActivity.Equal(other.ContinuationActivity)
}
