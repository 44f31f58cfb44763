package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/middleware"
	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/response"
	"github.com/qcmdesk/qcmdesk-backend/internal/service"
	"github.com/qcmdesk/qcmdesk-backend/internal/validator"
)

const (
	liveRefreshInterval = 5 * time.Second
	keepAliveInterval   = 30 * time.Second
)

// ExamHandler handles the professor side of exam sessions: scheduling,
// results, and the live board.
type ExamHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// CreateSession godoc
// POST /api/v1/professor/sessions
func (h *ExamHandler) CreateSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Create(c.Request.Context(), claims.UserID, claims.BranchID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
		case errors.Is(err, service.ErrDurationTooShort):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrValidation)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// ListSessions godoc
// GET /api/v1/professor/sessions
func (h *ExamHandler) ListSessions(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessions, err := h.sessionService.ListByProfessor(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession godoc
// GET /api/v1/professor/sessions/:session_id
func (h *ExamHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.sessionService.GetForProfessor(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
			return
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// DeleteSession godoc
// DELETE /api/v1/professor/sessions/:session_id
func (h *ExamHandler) DeleteSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.sessionService.Delete(c.Request.Context(), sessionID, claims.UserID); err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
			return
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Results godoc
// GET /api/v1/professor/sessions/:session_id/results
func (h *ExamHandler) Results(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.sessionService.Results(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
			return
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// LiveSSE godoc
// GET /api/v1/professor/sessions/:session_id/live
// Streams the live board over SSE: who is in, where the shared timeline
// stands, how many have finished. All students sit on the same position,
// so one refresh covers the whole room.
func (h *ExamHandler) LiveSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	board, err := h.sessionService.Live(reqCtx, sessionID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
			return
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.writeEvent(c, board)

	refreshTicker := time.NewTicker(liveRefreshInterval)
	defer refreshTicker.Stop()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("session_id", sessionID.String()).Msg("Professor attached to live SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("session_id", sessionID.String()).Msg("Professor disconnected from live SSE")
			return

		case <-refreshTicker.C:
			board, err := h.sessionService.Live(reqCtx, sessionID, claims.UserID)
			if err != nil {
				h.log.Warn().Err(err).Msg("Live board refresh failed")
				continue
			}
			h.writeEvent(c, board)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *ExamHandler) writeEvent(c *gin.Context, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
