package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/attempt"
	"github.com/qcmdesk/qcmdesk-backend/internal/config"
	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/repository"
)

// GradingService scores finished attempts. It implements the controller's
// Grader contract: a returned error leaves the attempt awaiting a manual
// retry, so every step here is safe to run twice.
type GradingService struct {
	attemptRepo *repository.AttemptRepository
	sessionRepo *repository.ExamSessionRepository
	qcmRepo     *repository.QCMRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(
	attemptRepo *repository.AttemptRepository,
	sessionRepo *repository.ExamSessionRepository,
	qcmRepo *repository.QCMRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		attemptRepo: attemptRepo,
		sessionRepo: sessionRepo,
		qcmRepo:     qcmRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "grading_service").Logger(),
	}
}

// CountCorrect tallies answers matching the key. Only confirmed answers
// can score; a missed or unreached question is simply not correct, it
// still counts in the divisor through the question total.
func CountCorrect(key map[uuid.UUID]int, answers []ledger.EffectiveAnswer) int {
	correct := 0
	for _, a := range answers {
		if a.State != ledger.StateAnswered || a.SelectedIndex == nil {
			continue
		}
		if want, ok := key[a.QuestionID]; ok && want == *a.SelectedIndex {
			correct++
		}
	}
	return correct
}

// ComputeScore converts a correct count into a grade. Every question is
// worth totalGrade/questionCount regardless of whether it was reached.
func ComputeScore(correct, questionCount int, totalGrade float64) float64 {
	if questionCount <= 0 {
		return 0
	}
	return float64(correct) * (totalGrade / float64(questionCount))
}

// Grade scores an attempt and queues the result for persistence. A second
// call for an already-completed attempt returns the stored result.
func (s *GradingService) Grade(ctx context.Context, attemptID uuid.UUID, answers []ledger.EffectiveAnswer) (*attempt.Result, error) {
	att, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	session, err := s.sessionRepo.GetByID(ctx, att.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if att.Status == model.AttemptStatusCompleted {
		// Duplicate submission: the first grade stands.
		res := &attempt.Result{TotalGrade: session.TotalGrade, Status: string(att.Status)}
		if att.Score != nil {
			res.Score = *att.Score
		}
		if att.Correct != nil {
			res.CorrectAnswers = *att.Correct
		}
		return res, nil
	}

	key, err := s.answerKey(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	correct := CountCorrect(key, answers)
	score := ComputeScore(correct, session.QuestionCount, session.TotalGrade)

	job, err := json.Marshal(map[string]any{
		"attempt_id":  attemptID.String(),
		"score":       score,
		"correct":     correct,
		"finished_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal score job: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, job).Err(); err != nil {
		return nil, fmt.Errorf("queue score: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("correct", correct).
		Float64("score", score).
		Msg("Attempt graded")

	return &attempt.Result{
		Score:          score,
		TotalGrade:     session.TotalGrade,
		CorrectAnswers: correct,
		Status:         string(model.AttemptStatusCompleted),
	}, nil
}

// answerKey loads the session's answer key from Redis, falling back to
// PostgreSQL on a cache miss and healing the cache.
func (s *GradingService) answerKey(ctx context.Context, session *model.ExamSession) (map[uuid.UUID]int, error) {
	cacheKey := config.CacheKey.SessionAnswerKeyKey(session.ID.String())

	raw, err := s.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		key := make(map[uuid.UUID]int)
		if err := json.Unmarshal([]byte(raw), &key); err == nil {
			return key, nil
		}
		// Corrupt cache entry: fall through to the database.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis error getting answer key: %w", err)
	}

	qcm, err := s.qcmRepo.GetByID(ctx, session.QCMID)
	if err != nil {
		return nil, fmt.Errorf("get qcm: %w", err)
	}
	key := qcm.AnswerKey()

	if encoded, err := json.Marshal(key); err == nil {
		_ = s.rdb.Set(ctx, cacheKey, encoded, 0)
	}
	return key, nil
}
