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

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// ScoringWorker consumes persist_scores_queue and marks attempts
// COMPLETED in batches. Whole classes finish within the same second when
// the shared timeline runs out, hence the batching.
type ScoringWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewScoringWorker creates a new ScoringWorker.
func NewScoringWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "scoring_worker").Logger(),
	}
}

type scoreJob struct {
	AttemptID  string    `json:"attempt_id"`
	Score      float64   `json:"score"`
	Correct    int       `json:"correct"`
	FinishedAt time.Time `json:"finished_at"`
}

// Start begins the batching worker loop. Call in a goroutine.
func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]*scoreJob, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var job scoreJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &job)
		}
	}
}

func (w *ScoringWorker) flushSafe(ctx context.Context, batch []*scoreJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkCompleteAttempts(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk score update failed, using fallback")

		for _, job := range batch {
			if err := w.persistSingle(ctx, job); err != nil {
				w.log.Error().Err(err).Str("attempt_id", job.AttemptID).Msg("Single update failed, requeueing")
				raw, _ := json.Marshal(job)
				w.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw)
			}
		}
		return
	}

	// Completed attempts no longer need their Redis answer buffers.
	w.bulkClearAnswerBuffers(ctx, batch)
}

// bulkCompleteAttempts runs one UPDATE for the whole batch via UNNEST.
// The status guard keeps a duplicate job from rewriting a stored grade.
func (w *ScoringWorker) bulkCompleteAttempts(ctx context.Context, batch []*scoreJob) error {
	n := len(batch)

	attemptIDs := make([]uuid.UUID, 0, n)
	scores := make([]float64, 0, n)
	corrects := make([]int, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, job := range batch {
		id, err := uuid.Parse(job.AttemptID)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, id)
		scores = append(scores, job.Score)
		corrects = append(corrects, job.Correct)
		finishedAts = append(finishedAts, job.FinishedAt)
	}

	query := `
		UPDATE exam_attempts AS a
		SET status = 'COMPLETED',
		    score = t.score,
		    correct_answers = t.correct,
		    finished_at = t.finished_at
		FROM (
			SELECT u.attempt_id, u.score, u.correct, u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::float8[],
				$3::int[],
				$4::timestamptz[]
			) AS u (attempt_id, score, correct, finished_at)
		) AS t
		WHERE a.id = t.attempt_id
		  AND a.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, scores, corrects, finishedAts)
	return err
}

func (w *ScoringWorker) bulkClearAnswerBuffers(ctx context.Context, batch []*scoreJob) {
	pipe := w.rdb.Pipeline()
	for _, job := range batch {
		pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(job.AttemptID))
	}
	_, _ = pipe.Exec(ctx)
}

func (w *ScoringWorker) persistSingle(ctx context.Context, job *scoreJob) error {
	id, err := uuid.Parse(job.AttemptID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'COMPLETED',
		     score = $1,
		     correct_answers = $2,
		     finished_at = $3
		 WHERE id = $4 AND status = 'IN_PROGRESS'`,
		job.Score, job.Correct, job.FinishedAt, id,
	)
	return err
}
