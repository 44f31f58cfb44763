package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qcmdesk/qcmdesk-backend/internal/model"
)

// QCMRepository handles QCM and question data access. Choices are stored as
// a jsonb column on the question row.
type QCMRepository struct {
	pool *pgxpool.Pool
}

// NewQCMRepository creates a new QCMRepository.
func NewQCMRepository(pool *pgxpool.Pool) *QCMRepository {
	return &QCMRepository{pool: pool}
}

// Create inserts a QCM and its questions in one transaction.
func (r *QCMRepository) Create(ctx context.Context, qcm *model.QCM) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO qcms (title, module, owner_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		qcm.Title, qcm.Module, qcm.OwnerID,
	).Scan(&qcm.ID, &qcm.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert qcm: %w", err)
	}

	for i := range qcm.Questions {
		q := &qcm.Questions[i]
		q.QCMID = qcm.ID
		q.OrderNum = i

		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return fmt.Errorf("marshal choices: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO questions (qcm_id, text, choices, order_num)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			q.QCMID, q.Text, choices, q.OrderNum,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a QCM with its questions in delivery order.
func (r *QCMRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QCM, error) {
	qcm := &model.QCM{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, module, owner_id, created_at
		 FROM qcms
		 WHERE id = $1`, id,
	).Scan(&qcm.ID, &qcm.Title, &qcm.Module, &qcm.OwnerID, &qcm.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, qcm_id, text, choices, order_num
		 FROM questions
		 WHERE qcm_id = $1
		 ORDER BY order_num ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		var choices []byte
		if err := rows.Scan(&q.ID, &q.QCMID, &q.Text, &choices, &q.OrderNum); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(choices, &q.Choices); err != nil {
			return nil, fmt.Errorf("unmarshal choices: %w", err)
		}
		qcm.Questions = append(qcm.Questions, q)
	}
	return qcm, rows.Err()
}

// ListByOwner retrieves a professor's QCMs (without questions), paginated.
func (r *QCMRepository) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]model.QCM, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM qcms WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.title, q.module, q.owner_id, q.created_at
		 FROM qcms q
		 WHERE q.owner_id = $1
		 ORDER BY q.created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var qcms []model.QCM
	for rows.Next() {
		var q model.QCM
		if err := rows.Scan(&q.ID, &q.Title, &q.Module, &q.OwnerID, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		qcms = append(qcms, q)
	}
	return qcms, total, rows.Err()
}

// CountSessions reports how many exam sessions reference a QCM. A QCM with
// sessions is frozen and cannot be deleted.
func (r *QCMRepository) CountSessions(ctx context.Context, qcmID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE qcm_id = $1`, qcmID,
	).Scan(&n)
	return n, err
}

// Delete removes a QCM and its questions.
func (r *QCMRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM qcms WHERE id = $1`, id)
	return err
}
