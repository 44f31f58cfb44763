package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qcmdesk/qcmdesk-backend/internal/model"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, code, qcm_id, professor_id, branch_id, description,
	start_time, end_time, duration_minutes, seconds_per_question, question_count,
	total_grade, is_active, created_at`

func scanSession(row interface{ Scan(...any) error }) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.Code, &s.QCMID, &s.ProfessorID, &s.BranchID, &s.Description,
		&s.StartTime, &s.EndTime, &s.DurationMinutes, &s.SecondsPerQuestion, &s.QuestionCount,
		&s.TotalGrade, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new exam session.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions
		 (code, qcm_id, professor_id, branch_id, description, start_time, end_time,
		  duration_minutes, seconds_per_question, question_count, total_grade, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`,
		s.Code, s.QCMID, s.ProfessorID, s.BranchID, s.Description, s.StartTime, s.EndTime,
		s.DurationMinutes, s.SecondsPerQuestion, s.QuestionCount, s.TotalGrade, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt)
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetByCode retrieves an active session by join code.
func (r *ExamSessionRepository) GetByCode(ctx context.Context, code string) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE code = $1 AND is_active = TRUE`, code))
}

// ListByProfessor retrieves all sessions created by a professor.
func (r *ExamSessionRepository) ListByProfessor(ctx context.Context, professorID int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE professor_id = $1
		 ORDER BY start_time DESC`, professorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListOpen retrieves sessions whose window contains now, optionally scoped
// to a branch (sessions without a branch are visible to everyone).
func (r *ExamSessionRepository) ListOpen(ctx context.Context, now time.Time, branchID *int) ([]model.ExamSession, error) {
	query := `SELECT ` + sessionColumns + `
		 FROM exam_sessions
		 WHERE is_active = TRUE AND start_time <= $1 AND end_time >= $1`
	args := []any{now}

	if branchID != nil {
		query += ` AND (branch_id IS NULL OR branch_id = $2)`
		args = append(args, *branchID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Delete removes a session and its attempts.
func (r *ExamSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exam_sessions WHERE id = $1`, id)
	return err
}
