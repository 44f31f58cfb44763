package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/qcmdesk/qcmdesk-backend/internal/timeline"
)

// ExamSession is one scheduled delivery of a QCM. StartTime and
// SecondsPerQuestion are fixed at creation and never change afterwards:
// every timing decision for every student derives from these two values
// plus the clock, which is what keeps independently polling clients on the
// same question without any push coordination.
type ExamSession struct {
	ID                 uuid.UUID `json:"id"`
	Code               string    `json:"code"`
	QCMID              uuid.UUID `json:"qcm_id"`
	ProfessorID        int       `json:"professor_id"`
	BranchID           *int      `json:"branch_id,omitempty"`
	Description        string    `json:"description,omitempty"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	DurationMinutes    int       `json:"duration_minutes"`
	SecondsPerQuestion int       `json:"seconds_per_question"`
	QuestionCount      int       `json:"question_count"`
	TotalGrade         float64   `json:"total_grade"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// TimelineConfig is the session's immutable timing contract.
func (s *ExamSession) TimelineConfig() timeline.Config {
	return timeline.Config{
		StartTime:          s.StartTime,
		SecondsPerQuestion: s.SecondsPerQuestion,
		QuestionCount:      s.QuestionCount,
	}
}

// IsOpen reports whether students may join at the given time.
func (s *ExamSession) IsOpen(now time.Time) bool {
	return s.IsActive && !now.Before(s.StartTime) && !now.After(s.EndTime)
}

// CreateSessionRequest is the payload for scheduling an exam session.
// End time is derived server-side from start + duration.
type CreateSessionRequest struct {
	QCMID           uuid.UUID `json:"qcm_id" binding:"required"`
	Description     string    `json:"description" binding:"omitempty,max=255"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,min=1,max=480"`
	TotalGrade      float64   `json:"total_grade" binding:"omitempty,gt=0"`
}

// JoinExamRequest is the payload for a student joining by code.
type JoinExamRequest struct {
	Code string `json:"code" binding:"required,min=4,max=20"`
}

// ExamConfig is the timing contract handed to clients at join time. Clients
// reimplement the same pure position computation from these three values;
// they must never count down from the moment they joined.
type ExamConfig struct {
	ExamStartTime      time.Time `json:"exam_start_time"`
	SecondsPerQuestion int       `json:"seconds_per_question"`
	QuestionCount      int       `json:"question_count"`
}

// JoinExamResponse is returned when a student joins (or re-joins) a
// session. SavedAnswers seeds the client so a reload or second device shows
// previously confirmed answers.
type JoinExamResponse struct {
	AttemptID    uuid.UUID         `json:"attempt_id"`
	QCM          QCMForStudent     `json:"qcm"`
	ExamConfig   ExamConfig        `json:"exam_config"`
	SavedAnswers map[uuid.UUID]int `json:"saved_answers"`
}
