package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/config"
)

// AnswerWorker consumes persist_answers_queue and UPSERTs confirmed
// answers to PostgreSQL. The student's save already landed in Redis, so
// this path only has to win eventually.
type AnswerWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
}

type answerJob struct {
	AttemptID   string `json:"attempt_id"`
	QuestionID  string `json:"question_id"`
	ChoiceIndex *int   `json:"choice_index"`
	AnswerState string `json:"answer_state"`
}

// Start begins the worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job answerJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistAnswer(ctx, &job); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", job.AttemptID).
			Str("question_id", job.QuestionID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AnswerWorker) persistAnswer(ctx context.Context, job *answerJob) error {
	attemptID, err := uuid.Parse(job.AttemptID)
	if err != nil {
		return err
	}

	questionID, err := uuid.Parse(job.QuestionID)
	if err != nil {
		return err
	}

	state := job.AnswerState
	if state == "" {
		state = "answered"
	}

	// UPSERT the answer. Re-saving a question before its window closes
	// replaces the earlier confirmation; a missed job retracts a write
	// that landed after its question locked.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO student_answers (attempt_id, question_id, choice_index, answer_state)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET choice_index = EXCLUDED.choice_index,
		     answer_state = EXCLUDED.answer_state,
		     updated_at = NOW()`,
		attemptID, questionID, job.ChoiceIndex, state,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var job answerJob
		if err := json.Unmarshal([]byte(result), &job); err != nil {
			continue
		}
		if err := w.persistAnswer(ctx, &job); err != nil {
			w.log.Error().Err(err).Str("attempt_id", job.AttemptID).Msg("Drain persist error")
			continue
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained pending answers")
	}
}
