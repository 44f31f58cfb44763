package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states as persisted.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt is one student's instance of taking an exam session. Once
// completed it is terminal and immutable.
type Attempt struct {
	ID         uuid.UUID     `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	StudentID  int           `json:"student_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     AttemptStatus `json:"status"`
	Score      *float64      `json:"score,omitempty"`
	Correct    *int          `json:"correct_answers,omitempty"`
}

// AttemptResult is a graded attempt joined with the student identity,
// as shown on the professor's results board.
type AttemptResult struct {
	AttemptID   uuid.UUID     `json:"attempt_id"`
	StudentID   int           `json:"student_id"`
	StudentName string        `json:"student_name"`
	Status      AttemptStatus `json:"status"`
	Score       *float64      `json:"score,omitempty"`
	Correct     *int          `json:"correct_answers,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// StudentAnswer is one persisted ledger record for an attempt.
type StudentAnswer struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	QuestionID  uuid.UUID `json:"question_id"`
	ChoiceIndex *int      `json:"choice_index,omitempty"`
	State       string    `json:"state"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SelectAnswerRequest is the payload for a tentative choice. ChoiceIndex is
// a pointer so index 0 survives required-field validation.
type SelectAnswerRequest struct {
	QuestionID  uuid.UUID `json:"question_id" binding:"required"`
	ChoiceIndex *int      `json:"choice_index" binding:"required,min=0"`
}

// SaveAnswerRequest confirms the current selection for a question.
type SaveAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
}
