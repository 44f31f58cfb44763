package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qcmdesk/qcmdesk-backend/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetOrCreate returns the student's attempt for a session, creating one on
// first join. The unique constraint on (session_id, student_id) makes
// concurrent joins collapse to a single row.
func (r *AttemptRepository) GetOrCreate(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{SessionID: sessionID, StudentID: studentID, Status: model.AttemptStatusInProgress}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (session_id, student_id)
		 VALUES ($1, $2)
		 ON CONFLICT (session_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		sessionID, studentID,
	).Scan(&a.ID, &a.StartedAt)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Lost the race (or rejoining): fetch the existing row.
	return r.GetBySessionAndStudent(ctx, sessionID, studentID)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, student_id, started_at, finished_at, status, score, correct_answers
		 FROM exam_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.SessionID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.Score, &a.Correct)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetBySessionAndStudent retrieves the student's attempt for a session.
func (r *AttemptRepository) GetBySessionAndStudent(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, student_id, started_at, finished_at, status, score, correct_answers
		 FROM exam_attempts WHERE session_id = $1 AND student_id = $2`,
		sessionID, studentID,
	).Scan(&a.ID, &a.SessionID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.Score, &a.Correct)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Complete marks an attempt as graded. It only transitions from
// IN_PROGRESS, so a duplicate grade write is a no-op.
func (r *AttemptRepository) Complete(ctx context.Context, id uuid.UUID, score float64, correct int, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'COMPLETED', score = $2, correct_answers = $3, finished_at = $4
		 WHERE id = $1 AND status = 'IN_PROGRESS'`,
		id, score, correct, finishedAt,
	)
	return err
}

// ListResults retrieves all attempts for a session joined with the
// student identity, best score first.
func (r *AttemptRepository) ListResults(ctx context.Context, sessionID uuid.UUID) ([]model.AttemptResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, u.first_name || ' ' || u.last_name,
		        a.status, a.score, a.correct_answers, a.started_at, a.finished_at
		 FROM exam_attempts a
		 JOIN users u ON u.id = a.student_id
		 WHERE a.session_id = $1
		 ORDER BY a.score DESC NULLS LAST, u.last_name ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.AttemptResult
	for rows.Next() {
		var res model.AttemptResult
		if err := rows.Scan(&res.AttemptID, &res.StudentID, &res.StudentName,
			&res.Status, &res.Score, &res.Correct, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListInProgress retrieves attempts still running for a session, for the
// live tracking board.
func (r *AttemptRepository) ListInProgress(ctx context.Context, sessionID uuid.UUID) ([]model.AttemptResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, u.first_name || ' ' || u.last_name,
		        a.status, a.score, a.correct_answers, a.started_at, a.finished_at
		 FROM exam_attempts a
		 JOIN users u ON u.id = a.student_id
		 WHERE a.session_id = $1 AND a.status = 'IN_PROGRESS'
		 ORDER BY a.started_at ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.AttemptResult
	for rows.Next() {
		var res model.AttemptResult
		if err := rows.Scan(&res.AttemptID, &res.StudentID, &res.StudentName,
			&res.Status, &res.Score, &res.Correct, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// SavedAnswers retrieves the persisted ledger records for an attempt.
func (r *AttemptRepository) SavedAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.StudentAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, choice_index, answer_state, updated_at
		 FROM student_answers WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.StudentAnswer
	for rows.Next() {
		var sa model.StudentAnswer
		if err := rows.Scan(&sa.AttemptID, &sa.QuestionID, &sa.ChoiceIndex, &sa.State, &sa.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, sa)
	}
	return answers, rows.Err()
}

// UpsertAnswer writes one ledger record, replacing any earlier save for
// the same question.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, sa *model.StudentAnswer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_answers (attempt_id, question_id, choice_index, answer_state, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (attempt_id, question_id)
		 DO UPDATE SET choice_index = EXCLUDED.choice_index,
		               answer_state = EXCLUDED.answer_state,
		               updated_at = NOW()`,
		sa.AttemptID, sa.QuestionID, sa.ChoiceIndex, sa.State,
	)
	return err
}
