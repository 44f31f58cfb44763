package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/qcmdesk/qcmdesk-backend/internal/config"
)

// AnswerPersister is the write-through target for confirmed answers. A save
// lands in the attempt's Redis hash first (so rejoins see it immediately)
// and is queued for the answer worker to flush to PostgreSQL. Either step
// failing fails the save, which surfaces to the student as a retryable
// persistence error.
type AnswerPersister struct {
	rdb *redis.Client
}

// NewAnswerPersister creates a new AnswerPersister.
func NewAnswerPersister(rdb *redis.Client) *AnswerPersister {
	return &AnswerPersister{rdb: rdb}
}

// SaveAnswer implements ledger.Persister.
func (p *AnswerPersister) SaveAnswer(ctx context.Context, attemptID, questionID uuid.UUID, choiceIndex int) error {
	hashKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	if err := p.rdb.HSet(ctx, hashKey, questionID.String(), strconv.Itoa(choiceIndex)).Err(); err != nil {
		return fmt.Errorf("cache answer: %w", err)
	}

	job, err := json.Marshal(map[string]any{
		"attempt_id":   attemptID.String(),
		"question_id":  questionID.String(),
		"choice_index": choiceIndex,
	})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := p.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job).Err(); err != nil {
		return fmt.Errorf("queue answer: %w", err)
	}
	return nil
}

// DiscardAnswer implements ledger.Persister. It retracts a write whose
// question locked mid-flight: the hash entry goes away so rejoins do not
// re-seed it, and the Postgres row is downgraded to missed.
func (p *AnswerPersister) DiscardAnswer(ctx context.Context, attemptID, questionID uuid.UUID) error {
	hashKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	if err := p.rdb.HDel(ctx, hashKey, questionID.String()).Err(); err != nil {
		return fmt.Errorf("uncache answer: %w", err)
	}

	job, err := json.Marshal(map[string]any{
		"attempt_id":   attemptID.String(),
		"question_id":  questionID.String(),
		"answer_state": "missed",
	})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := p.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job).Err(); err != nil {
		return fmt.Errorf("queue discard: %w", err)
	}
	return nil
}
