package service

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
)

func idx(i int) *int { return &i }

func TestCountCorrect(t *testing.T) {
	q1, q2, q3, q4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	key := map[uuid.UUID]int{q1: 2, q2: 0, q3: 1, q4: 3}

	answers := []ledger.EffectiveAnswer{
		{QuestionID: q1, State: ledger.StateAnswered, SelectedIndex: idx(2)}, // correct
		{QuestionID: q2, State: ledger.StateAnswered, SelectedIndex: idx(1)}, // wrong
		{QuestionID: q3, State: ledger.StateMissed},                          // never scores
		{QuestionID: q4, State: ledger.StateNotReached},                      // never scores
	}

	if got := CountCorrect(key, answers); got != 1 {
		t.Errorf("CountCorrect = %d, want 1", got)
	}
}

func TestCountCorrectIgnoresUnknownQuestions(t *testing.T) {
	known := uuid.New()
	key := map[uuid.UUID]int{known: 0}

	answers := []ledger.EffectiveAnswer{
		{QuestionID: known, State: ledger.StateAnswered, SelectedIndex: idx(0)},
		{QuestionID: uuid.New(), State: ledger.StateAnswered, SelectedIndex: idx(0)},
	}

	if got := CountCorrect(key, answers); got != 1 {
		t.Errorf("CountCorrect = %d, want 1", got)
	}
}

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name          string
		correct       int
		questionCount int
		totalGrade    float64
		want          float64
	}{
		{"all correct", 10, 10, 20, 20},
		{"none correct", 0, 10, 20, 0},
		{"half correct", 5, 10, 20, 10},
		{"uneven split", 2, 3, 20, 2 * (20.0 / 3.0)},
		{"missed questions still divide", 3, 12, 20, 5},
		{"zero questions", 3, 0, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(tt.correct, tt.questionCount, tt.totalGrade)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ComputeScore(%d, %d, %v) = %v, want %v",
					tt.correct, tt.questionCount, tt.totalGrade, got, tt.want)
			}
		})
	}
}
