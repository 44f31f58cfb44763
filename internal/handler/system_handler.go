package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/attempt"
	"github.com/qcmdesk/qcmdesk-backend/internal/config"
	"github.com/qcmdesk/qcmdesk-backend/internal/response"
)

// SystemHandler exposes process and queue stats for operators.
type SystemHandler struct {
	rdb       *redis.Client
	registry  *attempt.Registry
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(rdb *redis.Client, registry *attempt.Registry, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		registry:  registry,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Stats godoc
// GET /api/v1/professor/system/stats
// Queue depths tell an invigilator whether saves are flowing to disk;
// live_attempts is how many controllers are ticking right now.
func (h *SystemHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	queueAnswers, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistAnswersQueue).Result()
	queueScores, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistScoresQueue).Result()
	queueProctor, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistProctorQueue).Result()

	response.Success(c, http.StatusOK, gin.H{
		"uptime":        time.Since(h.startTime).Truncate(time.Second).String(),
		"go_version":    runtime.Version(),
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc":    mem.HeapAlloc,
		"num_gc":        mem.NumGC,
		"live_attempts": h.registry.Count(),
		"queue_answers": queueAnswers,
		"queue_scores":  queueScores,
		"queue_proctor": queueProctor,
	})
}
