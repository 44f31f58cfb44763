package timeline

import (
	"errors"
	"time"
)

// Config is the immutable timing contract of one exam session. StartTime is
// set by the server when the session is created and is identical for every
// joining student; SecondsPerQuestion is fixed at creation. Every derived
// value (active question, remaining seconds, completion) is a pure function
// of these fields plus the current time, which is what lets disconnected or
// late-joining clients land on the same question as everyone else without
// any push coordination.
type Config struct {
	StartTime          time.Time
	SecondsPerQuestion int
	QuestionCount      int
}

// ErrInvalidConfig is returned by Validate for non-positive durations or
// question counts.
var ErrInvalidConfig = errors.New("timeline: seconds per question and question count must be positive")

// Validate checks the config invariants.
func (c Config) Validate() error {
	if c.SecondsPerQuestion <= 0 || c.QuestionCount <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// EndTime returns the instant the exam timeline closes.
func (c Config) EndTime() time.Time {
	total := time.Duration(c.SecondsPerQuestion*c.QuestionCount) * time.Second
	return c.StartTime.Add(total)
}

// Position is the authoritative answer to "where is this exam right now".
type Position struct {
	// Index is the active question index, capped at QuestionCount-1 so that
	// a finished exam still reports its last question.
	Index int `json:"index"`
	// Remaining is the number of whole seconds left in the active question's
	// window. Always in [1, SecondsPerQuestion] while the exam runs.
	Remaining int `json:"remaining_seconds"`
	// Elapsed is whole seconds since StartTime, clamped at zero.
	Elapsed int64 `json:"elapsed_seconds"`
	// Over reports that every question window has closed.
	Over bool `json:"over"`
}

// Compute derives the current position from the config and the given time.
// It is deliberately stateless: two callers with synchronized clocks get
// identical results regardless of when either of them started polling.
//
// If now precedes StartTime (clock skew, early arrival) elapsed clamps to
// zero and the caller is held at question 0 with the full window remaining;
// the index and remaining time are never negative.
//
// Counting down locally from the moment of joining is NOT an acceptable
// substitute: it drifts from the shared origin and diverges across clients.
// Recomputing from the absolute StartTime on every tick self-corrects
// instead of accumulating error.
func Compute(cfg Config, now time.Time) Position {
	elapsed := int64(now.Sub(cfg.StartTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	spq := int64(cfg.SecondsPerQuestion)
	rawIndex := elapsed / spq

	pos := Position{Elapsed: elapsed}
	pos.Over = rawIndex >= int64(cfg.QuestionCount)

	if pos.Over {
		pos.Index = cfg.QuestionCount - 1
		pos.Remaining = 0
		return pos
	}

	pos.Index = int(rawIndex)
	pos.Remaining = int(spq - elapsed%spq)
	return pos
}
