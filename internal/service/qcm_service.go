package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/repository"
)

// QCM lifecycle errors.
var (
	ErrQCMInUse      = errors.New("qcm is referenced by exam sessions")
	ErrNotOwner      = errors.New("not the owner of this resource")
	ErrNoCorrectFlag = errors.New("every question needs exactly one correct choice")
)

// QCMService handles question set business logic.
type QCMService struct {
	qcmRepo *repository.QCMRepository
}

// NewQCMService creates a new QCMService.
func NewQCMService(qcmRepo *repository.QCMRepository) *QCMService {
	return &QCMService{qcmRepo: qcmRepo}
}

// Create validates and persists a QCM with its questions. Question order
// is the payload order and never changes afterwards.
func (s *QCMService) Create(ctx context.Context, ownerID int, req *model.CreateQCMRequest) (*model.QCM, error) {
	qcm := &model.QCM{
		Title:     req.Title,
		Module:    req.Module,
		OwnerID:   ownerID,
		Questions: make([]model.Question, 0, len(req.Questions)),
	}

	for _, qi := range req.Questions {
		q := model.Question{Text: qi.Text, Choices: make([]model.Choice, 0, len(qi.Choices))}
		correct := 0
		for _, ci := range qi.Choices {
			if ci.IsCorrect {
				correct++
			}
			q.Choices = append(q.Choices, model.Choice{Text: ci.Text, IsCorrect: ci.IsCorrect})
		}
		if correct != 1 {
			return nil, ErrNoCorrectFlag
		}
		qcm.Questions = append(qcm.Questions, q)
	}

	if err := s.qcmRepo.Create(ctx, qcm); err != nil {
		return nil, fmt.Errorf("create qcm: %w", err)
	}
	return qcm, nil
}

// GetByID retrieves a QCM with its questions, enforcing ownership.
func (s *QCMService) GetByID(ctx context.Context, id uuid.UUID, ownerID int) (*model.QCM, error) {
	qcm, err := s.qcmRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get qcm: %w", err)
	}
	if qcm.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return qcm, nil
}

// List retrieves the owner's QCMs, paginated.
func (s *QCMService) List(ctx context.Context, ownerID, page, perPage int) ([]model.QCM, int, error) {
	return s.qcmRepo.ListByOwner(ctx, ownerID, perPage, (page-1)*perPage)
}

// Delete removes a QCM. A QCM referenced by any exam session is frozen
// and cannot be deleted, since past results must stay interpretable.
func (s *QCMService) Delete(ctx context.Context, id uuid.UUID, ownerID int) error {
	qcm, err := s.qcmRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get qcm: %w", err)
	}
	if qcm.OwnerID != ownerID {
		return ErrNotOwner
	}

	count, err := s.qcmRepo.CountSessions(ctx, id)
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	if count > 0 {
		return ErrQCMInUse
	}

	return s.qcmRepo.Delete(ctx, id)
}
