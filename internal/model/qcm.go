package model

import (
	"time"

	"github.com/google/uuid"
)

// Choice is one option of a multiple-choice question. The correct flag is
// stored with the question and stripped from every student-facing payload.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is a single QCM question with its ordered choices. Immutable
// once an exam session references the QCM.
type Question struct {
	ID       uuid.UUID `json:"id"`
	QCMID    uuid.UUID `json:"qcm_id"`
	Text     string    `json:"text"`
	Choices  []Choice  `json:"choices"`
	OrderNum int       `json:"order_num"`
}

// CorrectChoiceIndex returns the index of the correct choice, or -1 when
// none is flagged.
func (q *Question) CorrectChoiceIndex() int {
	for i, c := range q.Choices {
		if c.IsCorrect {
			return i
		}
	}
	return -1
}

// QCM is a multiple-choice question set, the exam content unit.
type QCM struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Module    string     `json:"module"`
	OwnerID   int        `json:"owner_id"`
	Questions []Question `json:"questions,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ─── Student-facing delivery shapes (no correct flags) ───────────────

// ChoiceForStudent is a choice as delivered to a student.
type ChoiceForStudent struct {
	Text string `json:"text"`
}

// QuestionForStudent is a question as delivered to a student.
type QuestionForStudent struct {
	ID      uuid.UUID          `json:"id"`
	Text    string             `json:"text"`
	Choices []ChoiceForStudent `json:"choices"`
}

// QCMForStudent is the exam paper cached in Redis and handed out at join.
type QCMForStudent struct {
	ID        uuid.UUID            `json:"id"`
	Title     string               `json:"title"`
	Questions []QuestionForStudent `json:"questions"`
}

// ForStudent strips correct flags from the QCM.
func (q *QCM) ForStudent() QCMForStudent {
	out := QCMForStudent{ID: q.ID, Title: q.Title, Questions: make([]QuestionForStudent, 0, len(q.Questions))}
	for _, question := range q.Questions {
		qs := QuestionForStudent{ID: question.ID, Text: question.Text, Choices: make([]ChoiceForStudent, 0, len(question.Choices))}
		for _, c := range question.Choices {
			qs.Choices = append(qs.Choices, ChoiceForStudent{Text: c.Text})
		}
		out.Questions = append(out.Questions, qs)
	}
	return out
}

// AnswerKey maps question ID to the correct choice index.
func (q *QCM) AnswerKey() map[uuid.UUID]int {
	key := make(map[uuid.UUID]int, len(q.Questions))
	for i := range q.Questions {
		key[q.Questions[i].ID] = q.Questions[i].CorrectChoiceIndex()
	}
	return key
}

// ─── Requests ────────────────────────────────────────────────────────

// ChoiceInput is a choice in a QCM creation payload.
type ChoiceInput struct {
	Text      string `json:"text" binding:"required,min=1,max=500"`
	IsCorrect bool   `json:"is_correct"`
}

// QuestionInput is a question in a QCM creation payload.
type QuestionInput struct {
	Text    string        `json:"text" binding:"required,min=1,max=2000"`
	Choices []ChoiceInput `json:"choices" binding:"required,min=2,max=8,dive"`
}

// CreateQCMRequest is the payload for creating a QCM with its questions.
type CreateQCMRequest struct {
	Title     string          `json:"title" binding:"required,min=3,max=255"`
	Module    string          `json:"module" binding:"omitempty,max=100"`
	Questions []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}
