package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qcmdesk/qcmdesk-backend/internal/attempt"
	"github.com/qcmdesk/qcmdesk-backend/internal/config"
	"github.com/qcmdesk/qcmdesk-backend/internal/database"
	"github.com/qcmdesk/qcmdesk-backend/internal/handler"
	"github.com/qcmdesk/qcmdesk-backend/internal/logger"
	"github.com/qcmdesk/qcmdesk-backend/internal/repository"
	"github.com/qcmdesk/qcmdesk-backend/internal/router"
	"github.com/qcmdesk/qcmdesk-backend/internal/service"
	"github.com/qcmdesk/qcmdesk-backend/internal/timeline"
	"github.com/qcmdesk/qcmdesk-backend/internal/validator"
	"github.com/qcmdesk/qcmdesk-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting QCMDesk Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	qcmRepo := repository.NewQCMRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	qcmService := service.NewQCMService(qcmRepo)
	persister := service.NewAnswerPersister(rdb)
	grader := service.NewGradingService(attemptRepo, sessionRepo, qcmRepo, rdb, log)

	// The registry owns every live attempt controller; graded results flow
	// back to it through the grading service.
	registry := attempt.NewRegistry(timeline.SystemClock{}, grader, log)

	sessionService := service.NewExamSessionService(
		sessionRepo, attemptRepo, qcmRepo, rdb, registry, persister, cfg, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, userRepo),
		QCM:         handler.NewQCMHandler(qcmService),
		Exam:        handler.NewExamHandler(sessionService, log),
		StudentExam: handler.NewStudentExamHandler(sessionService, log),
		Branch:      handler.NewBranchHandler(userRepo),
		WS:          handler.NewWSHandler(rdb, sessionService, log, cfg.AllowedOrigins),
		System:      handler.NewSystemHandler(rdb, registry, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	scoringWorker := worker.NewScoringWorker(pool, rdb, log)
	proctorWorker := worker.NewProctorWorker(pool, rdb, log)

	go answerWorker.Start(workerCtx)
	go scoringWorker.Start(workerCtx)
	go proctorWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop live attempt controllers so no new work reaches the queues.
	registry.Close()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
