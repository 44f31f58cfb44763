package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/attempt"
	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
	"github.com/qcmdesk/qcmdesk-backend/internal/middleware"
	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/response"
	"github.com/qcmdesk/qcmdesk-backend/internal/service"
	"github.com/qcmdesk/qcmdesk-backend/internal/validator"
)

// StudentExamHandler handles the student side of exam delivery.
type StudentExamHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewStudentExamHandler creates a new StudentExamHandler.
func NewStudentExamHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *StudentExamHandler {
	return &StudentExamHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "student_exam_handler").Logger(),
	}
}

// ListOpen godoc
// GET /api/v1/student/exams
// Sessions the student could join right now.
func (h *StudentExamHandler) ListOpen(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessions, err := h.sessionService.ListOpenForStudent(c.Request.Context(), claims.BranchID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// Join godoc
// POST /api/v1/student/exams/join
// Enters an exam by code. Idempotent: rejoining returns the same attempt
// and its saved answers; the timeline decides which question is current.
func (h *StudentExamHandler) Join(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Join(c.Request.Context(), claims.UserID, claims.BranchID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidJoinCode):
			response.Fail(c, http.StatusNotFound, response.ErrInvalidJoinCode)
		case errors.Is(err, service.ErrExamNotOpen):
			response.Fail(c, http.StatusConflict, response.ErrExamNotOpen)
		case errors.Is(err, service.ErrExamOver):
			response.Fail(c, http.StatusConflict, response.ErrExamOver)
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		case errors.Is(err, service.ErrConfigMissing):
			response.Fail(c, http.StatusNotFound, response.ErrExamConfigMissing)
		default:
			h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Join failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// State godoc
// GET /api/v1/student/attempts/:attempt_id/state
// Point-in-time view: position, state, result if graded. Clients poll this
// after reconnecting; the position always comes from the shared clock.
func (h *StudentExamHandler) State(c *gin.Context) {
	claims := middleware.GetClaims(c)

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.sessionService.State(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// Select godoc
// POST /api/v1/student/attempts/:attempt_id/select
// Records a tentative choice. Selection is not persistence: an unselected
// save and an unsaved selection both end as missed when the window closes.
func (h *StudentExamHandler) Select(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctl.Select(req.QuestionID, *req.ChoiceIndex); err != nil {
		h.failLedger(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "selected"})
}

// Save godoc
// POST /api/v1/student/attempts/:attempt_id/save
// Confirms the current selection for a question, write-through.
func (h *StudentExamHandler) Save(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctl.Save(c.Request.Context(), req.QuestionID); err != nil {
		h.failLedger(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Finish godoc
// POST /api/v1/student/attempts/:attempt_id/finish
// Ends the attempt early. Remaining questions become not_reached; a second
// finish on a submitted attempt is a no-op.
func (h *StudentExamHandler) Finish(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctl.Finish(); err != nil {
		h.failSubmit(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": ctl.Status()})
}

// RetrySubmit godoc
// POST /api/v1/student/attempts/:attempt_id/retry
// Re-runs a failed final submission. Nothing retries automatically; the
// student (or invigilator) decides when the network is back.
func (h *StudentExamHandler) RetrySubmit(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctl.RetrySubmit(); err != nil {
		h.failSubmit(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": ctl.Status()})
}

// controller resolves the live controller for the :attempt_id path param,
// enforcing attempt ownership.
func (h *StudentExamHandler) controller(c *gin.Context) (*attempt.Controller, bool) {
	claims := middleware.GetClaims(c)

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctl, err := h.sessionService.Controller(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
			return nil, false
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}
	return ctl, true
}

func (h *StudentExamHandler) failLedger(c *gin.Context, err error) {
	var perr *ledger.PersistenceError
	switch {
	case errors.Is(err, ledger.ErrLocked):
		response.Fail(c, http.StatusConflict, response.ErrQuestionLocked)
	case errors.Is(err, ledger.ErrNoSelection):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoSelection)
	case errors.Is(err, ledger.ErrChoiceRange):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrChoiceOutOfRange)
	case errors.Is(err, ledger.ErrUnknownQuestion):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.As(err, &perr):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrPersistenceFailed)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func (h *StudentExamHandler) failSubmit(c *gin.Context, err error) {
	var serr *attempt.SubmissionError
	switch {
	case errors.As(err, &serr):
		response.Fail(c, http.StatusBadGateway, response.ErrSubmissionFailed)
	case errors.Is(err, attempt.ErrAlreadySubmitting):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
