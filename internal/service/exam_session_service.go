package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/attempt"
	"github.com/qcmdesk/qcmdesk-backend/internal/config"
	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/repository"
	"github.com/qcmdesk/qcmdesk-backend/internal/timeline"
)

// Exam delivery errors.
var (
	ErrInvalidJoinCode  = errors.New("no open exam with this code")
	ErrExamNotOpen      = errors.New("exam is not open")
	ErrExamOver         = errors.New("exam timeline is over")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrConfigMissing    = errors.New("exam configuration missing")
	ErrNoQuestions      = errors.New("qcm has no questions")
	ErrDurationTooShort = errors.New("duration gives less than one second per question")
	ErrNoAttempt        = errors.New("no attempt for this exam")
)

// ExamSessionService handles session scheduling and the student join flow.
type ExamSessionService struct {
	sessionRepo *repository.ExamSessionRepository
	attemptRepo *repository.AttemptRepository
	qcmRepo     *repository.QCMRepository
	rdb         *redis.Client
	registry    *attempt.Registry
	persister   ledger.Persister
	cfg         *config.Config
	log         zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	sessionRepo *repository.ExamSessionRepository,
	attemptRepo *repository.AttemptRepository,
	qcmRepo *repository.QCMRepository,
	rdb *redis.Client,
	registry *attempt.Registry,
	persister ledger.Persister,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessionRepo: sessionRepo,
		attemptRepo: attemptRepo,
		qcmRepo:     qcmRepo,
		rdb:         rdb,
		registry:    registry,
		persister:   persister,
		cfg:         cfg,
		log:         log.With().Str("component", "exam_session_service").Logger(),
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateCode returns a short join code. Ambiguous glyphs (0/O, 1/I) are
// excluded because students type these by hand.
func generateCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Create schedules a session for a QCM. Seconds per question is derived
// once from duration and question count and frozen on the row: changing
// either afterwards would silently shift every student's timeline.
func (s *ExamSessionService) Create(ctx context.Context, professorID int, branchID *int, req *model.CreateSessionRequest) (*model.ExamSession, error) {
	qcm, err := s.qcmRepo.GetByID(ctx, req.QCMID)
	if err != nil {
		return nil, fmt.Errorf("get qcm: %w", err)
	}
	if qcm.OwnerID != professorID {
		return nil, ErrNotOwner
	}
	if len(qcm.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	secondsPerQuestion := req.DurationMinutes * 60 / len(qcm.Questions)
	if secondsPerQuestion < 1 {
		return nil, ErrDurationTooShort
	}

	code, err := generateCode(6)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	totalGrade := req.TotalGrade
	if totalGrade <= 0 {
		totalGrade = s.cfg.DefaultTotalGrade
	}

	session := &model.ExamSession{
		Code:               code,
		QCMID:              qcm.ID,
		ProfessorID:        professorID,
		BranchID:           branchID,
		Description:        req.Description,
		StartTime:          req.StartTime.UTC().Truncate(time.Second),
		EndTime:            req.StartTime.UTC().Truncate(time.Second).Add(time.Duration(req.DurationMinutes) * time.Minute),
		DurationMinutes:    req.DurationMinutes,
		SecondsPerQuestion: secondsPerQuestion,
		QuestionCount:      len(qcm.Questions),
		TotalGrade:         totalGrade,
		IsActive:           true,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Prewarm delivery caches so the first join at start time does not
	// fan out to PostgreSQL for every student at once.
	if err := s.cacheSessionContent(ctx, session, qcm); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Failed to prewarm session cache")
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("code", session.Code).
		Int("questions", session.QuestionCount).
		Int("seconds_per_question", session.SecondsPerQuestion).
		Msg("Exam session created")

	return session, nil
}

// cacheSessionContent stores the student payload and answer key in Redis.
func (s *ExamSessionService) cacheSessionContent(ctx context.Context, session *model.ExamSession, qcm *model.QCM) error {
	payload, err := json.Marshal(qcm.ForStudent())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.SessionPayloadKey(session.ID.String()), payload, 0).Err(); err != nil {
		return fmt.Errorf("cache payload: %w", err)
	}

	key, err := json.Marshal(qcm.AnswerKey())
	if err != nil {
		return fmt.Errorf("marshal answer key: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.SessionAnswerKeyKey(session.ID.String()), key, 0).Err(); err != nil {
		return fmt.Errorf("cache answer key: %w", err)
	}
	return nil
}

// studentPayload loads the delivery payload from Redis, falling back to
// PostgreSQL on a cache miss and healing the cache.
func (s *ExamSessionService) studentPayload(ctx context.Context, session *model.ExamSession) (*model.QCMForStudent, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.SessionPayloadKey(session.ID.String())).Result()
	if err == nil {
		var payload model.QCMForStudent
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return &payload, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis error getting payload: %w", err)
	}

	qcm, err := s.qcmRepo.GetByID(ctx, session.QCMID)
	if err != nil {
		return nil, fmt.Errorf("get qcm: %w", err)
	}
	if err := s.cacheSessionContent(ctx, session, qcm); err != nil {
		s.log.Warn().Err(err).Msg("Failed to heal session cache")
	}
	payload := qcm.ForStudent()
	return &payload, nil
}

// savedAnswers loads an attempt's confirmed answers from Redis, falling
// back to PostgreSQL after a restart or cache eviction.
func (s *ExamSessionService) savedAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	saved := make(map[uuid.UUID]int)

	cached, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get cached answers: %w", err)
	}
	if len(cached) > 0 {
		for qid, idx := range cached {
			questionID, err := uuid.Parse(qid)
			if err != nil {
				continue
			}
			choice, err := strconv.Atoi(idx)
			if err != nil {
				continue
			}
			saved[questionID] = choice
		}
		return saved, nil
	}

	rows, err := s.attemptRepo.SavedAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get persisted answers: %w", err)
	}
	hashKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	for _, row := range rows {
		if row.State != string(ledger.StateAnswered) || row.ChoiceIndex == nil {
			continue
		}
		saved[row.QuestionID] = *row.ChoiceIndex
		_ = s.rdb.HSet(ctx, hashKey, row.QuestionID.String(), strconv.Itoa(*row.ChoiceIndex))
	}
	return saved, nil
}

// resumeController rebuilds the live controller for an attempt from
// persisted state and attaches it to the registry. Attaching past the
// end of the timeline is fine: the controller's first tick locks every
// question and submits whatever was saved, and grading guards on the
// attempt still being in progress.
func (s *ExamSessionService) resumeController(ctx context.Context, session *model.ExamSession, attemptID uuid.UUID) (*attempt.Controller, *model.QCMForStudent, map[uuid.UUID]int, error) {
	payload, err := s.studentPayload(ctx, session)
	if err != nil {
		return nil, nil, nil, err
	}

	saved, err := s.savedAnswers(ctx, attemptID)
	if err != nil {
		return nil, nil, nil, err
	}

	questions := make([]ledger.QuestionRef, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		questions = append(questions, ledger.QuestionRef{ID: q.ID, ChoiceCount: len(q.Choices)})
	}

	ctl, err := s.registry.Attach(attemptID, session.TimelineConfig(), questions, saved, s.persister)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("attach controller: %w", err)
	}
	return ctl, payload, saved, nil
}

// Join lets a student enter an exam by code. Joining is idempotent: a
// rejoin returns the same attempt, its saved answers, and the same
// timeline, so the student lands on whatever question the clock says.
func (s *ExamSessionService) Join(ctx context.Context, studentID int, branchID *int, code string) (*model.JoinExamResponse, error) {
	session, err := s.sessionRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidJoinCode
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.BranchID != nil && (branchID == nil || *branchID != *session.BranchID) {
		return nil, ErrInvalidJoinCode
	}

	now := time.Now()
	if now.Before(session.StartTime) || !session.IsActive {
		return nil, ErrExamNotOpen
	}

	tlCfg := session.TimelineConfig()
	if err := tlCfg.Validate(); err != nil {
		return nil, ErrConfigMissing
	}
	if timeline.Compute(tlCfg, now).Over {
		// A server restart may have stranded an unsubmitted attempt past
		// the end of its timeline. Bring it back up so it gets graded;
		// the join itself is still refused.
		if att, aerr := s.attemptRepo.GetBySessionAndStudent(ctx, session.ID, studentID); aerr == nil &&
			att.Status == model.AttemptStatusInProgress {
			if _, _, _, rerr := s.resumeController(ctx, session, att.ID); rerr != nil {
				s.log.Error().Err(rerr).Str("attempt_id", att.ID.String()).Msg("Failed to resume expired attempt")
			}
		}
		return nil, ErrExamOver
	}

	att, err := s.attemptRepo.GetOrCreate(ctx, session.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get or create attempt: %w", err)
	}
	if att.Status == model.AttemptStatusCompleted {
		return nil, ErrAlreadySubmitted
	}

	_, payload, saved, err := s.resumeController(ctx, session, att.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("attempt_id", att.ID.String()).
		Int("student_id", studentID).
		Msg("Student joined exam")

	return &model.JoinExamResponse{
		AttemptID: att.ID,
		QCM:       *payload,
		ExamConfig: model.ExamConfig{
			ExamStartTime:      session.StartTime,
			SecondsPerQuestion: session.SecondsPerQuestion,
			QuestionCount:      session.QuestionCount,
		},
		SavedAnswers: saved,
	}, nil
}

// Controller returns the live controller for a student's attempt,
// verifying ownership.
func (s *ExamSessionService) Controller(ctx context.Context, attemptID uuid.UUID, studentID int) (*attempt.Controller, error) {
	att, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, ErrNoAttempt
	}
	if att.StudentID != studentID {
		return nil, ErrNoAttempt
	}
	if att.Status == model.AttemptStatusCompleted {
		return nil, ErrAlreadySubmitted
	}

	ctl, ok := s.registry.Get(attemptID)
	if !ok {
		return nil, ErrNoAttempt
	}
	return ctl, nil
}

// State returns the point-in-time view for an attempt. For a completed
// attempt it reports the stored result instead of a live controller.
func (s *ExamSessionService) State(ctx context.Context, attemptID uuid.UUID, studentID int) (*attempt.StatusView, error) {
	att, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, ErrNoAttempt
	}
	if att.StudentID != studentID {
		return nil, ErrNoAttempt
	}

	if ctl, ok := s.registry.Get(attemptID); ok {
		view := ctl.Status()
		return &view, nil
	}

	// No live controller but the attempt never finished: the server
	// restarted mid-exam. Resume it; if the timeline is already over the
	// controller's first tick locks everything and submits for grading.
	if att.Status == model.AttemptStatusInProgress {
		session, err := s.sessionRepo.GetByID(ctx, att.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		ctl, _, _, err := s.resumeController(ctx, session, attemptID)
		if err != nil {
			return nil, err
		}
		view := ctl.Status()
		return &view, nil
	}

	if att.Status == model.AttemptStatusCompleted {
		session, err := s.sessionRepo.GetByID(ctx, att.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		view := &attempt.StatusView{
			AttemptID: attemptID,
			State:     attempt.StateSubmitted,
			Result:    &attempt.Result{TotalGrade: session.TotalGrade, Status: string(att.Status)},
		}
		if att.Score != nil {
			view.Result.Score = *att.Score
		}
		if att.Correct != nil {
			view.Result.CorrectAnswers = *att.Correct
		}
		return view, nil
	}

	return nil, ErrNoAttempt
}

// ListOpenForStudent returns sessions a student may join right now.
func (s *ExamSessionService) ListOpenForStudent(ctx context.Context, branchID *int) ([]model.ExamSession, error) {
	return s.sessionRepo.ListOpen(ctx, time.Now(), branchID)
}

// ListByProfessor returns a professor's sessions.
func (s *ExamSessionService) ListByProfessor(ctx context.Context, professorID int) ([]model.ExamSession, error) {
	return s.sessionRepo.ListByProfessor(ctx, professorID)
}

// GetForProfessor returns a session, enforcing ownership.
func (s *ExamSessionService) GetForProfessor(ctx context.Context, sessionID uuid.UUID, professorID int) (*model.ExamSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.ProfessorID != professorID {
		return nil, ErrNotOwner
	}
	return session, nil
}

// Results returns the graded board for a session.
func (s *ExamSessionService) Results(ctx context.Context, sessionID uuid.UUID, professorID int) ([]model.AttemptResult, error) {
	if _, err := s.GetForProfessor(ctx, sessionID, professorID); err != nil {
		return nil, err
	}
	return s.attemptRepo.ListResults(ctx, sessionID)
}

// LiveBoard is the professor's real-time view of a running session.
type LiveBoard struct {
	Session    *model.ExamSession    `json:"session"`
	Position   timeline.Position     `json:"position"`
	InProgress []model.AttemptResult `json:"in_progress"`
	Completed  int                   `json:"completed"`
}

// Live returns who is taking the exam right now and where the shared
// timeline stands.
func (s *ExamSessionService) Live(ctx context.Context, sessionID uuid.UUID, professorID int) (*LiveBoard, error) {
	session, err := s.GetForProfessor(ctx, sessionID, professorID)
	if err != nil {
		return nil, err
	}

	inProgress, err := s.attemptRepo.ListInProgress(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list in progress: %w", err)
	}

	results, err := s.attemptRepo.ListResults(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	completed := 0
	for _, res := range results {
		if res.Status == model.AttemptStatusCompleted {
			completed++
		}
	}

	return &LiveBoard{
		Session:    session,
		Position:   timeline.Compute(session.TimelineConfig(), time.Now()),
		InProgress: inProgress,
		Completed:  completed,
	}, nil
}

// Delete removes a session and its delivery caches.
func (s *ExamSessionService) Delete(ctx context.Context, sessionID uuid.UUID, professorID int) error {
	if _, err := s.GetForProfessor(ctx, sessionID, professorID); err != nil {
		return err
	}
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	_ = s.rdb.Del(ctx,
		config.CacheKey.SessionPayloadKey(sessionID.String()),
		config.CacheKey.SessionAnswerKeyKey(sessionID.String()),
	)
	return nil
}
