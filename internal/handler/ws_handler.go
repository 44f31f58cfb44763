package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/attempt"
	"github.com/qcmdesk/qcmdesk-backend/internal/config"
	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
	"github.com/qcmdesk/qcmdesk-backend/internal/middleware"
	"github.com/qcmdesk/qcmdesk-backend/internal/response"
	"github.com/qcmdesk/qcmdesk-backend/internal/service"
	ws "github.com/qcmdesk/qcmdesk-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams attempt state over WebSocket: the server pushes window
// locks, advances, and the graded result as they happen, and accepts the
// same select/save/finish actions as the REST endpoints.
type WSHandler struct {
	rdb            *redis.Client
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctl, err := h.sessionService.Controller(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	// All outbound frames go through the wrapper: the event forwarder and
	// the read loop's replies would otherwise race on the conn.
	sock := ws.Wrap(conn)

	// Greeting: current view so a reconnecting client resyncs instantly.
	sock.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctl.Status()})

	// Each connection gets its own event feed so a second tab sees the
	// same locks and advances as the first.
	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	// Writer: forward controller events until the attempt ends or the
	// client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := sock.WriteTyped(ev); err != nil {
					return
				}
			case <-ctl.Done():
				// Final state (graded result or abort) was already
				// emitted as an event; deliver anything still queued.
				for {
					select {
					case ev := <-events:
						_ = sock.WriteTyped(ev)
					default:
						return
					}
				}
			}
		}
	}()

	h.readLoop(sock, wsLog, ctl, attemptID)
	<-done
}

func (h *WSHandler) readLoop(conn *ws.Conn, wsLog zerolog.Logger, ctl *attempt.Controller, attemptID uuid.UUID) {
	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSelect:
			h.handleSelect(conn, ctl, &msg)
		case ws.ActionSave:
			h.handleSave(conn, ctl, &msg)
		case ws.ActionFinish:
			if err := ctl.Finish(); err != nil {
				h.writeActionError(conn, err)
			}
		case ws.ActionRetry:
			if err := ctl.RetrySubmit(); err != nil {
				h.writeActionError(conn, err)
			}
		case ws.ActionFlag:
			h.handleFlag(conn, attemptID, &msg)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("", "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleSelect(conn *ws.Conn, ctl *attempt.Controller, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil || msg.ChoiceIndex == nil {
		conn.WriteError(string(response.ErrInvalidPayload), "question_id and choice_index are required")
		return
	}

	if err := ctl.Select(questionID, *msg.ChoiceIndex); err != nil {
		h.writeActionError(conn, err)
		return
	}
	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSelected, QuestionID: msg.QuestionID})
}

func (h *WSHandler) handleSave(conn *ws.Conn, ctl *attempt.Controller, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		conn.WriteError(string(response.ErrInvalidPayload), "question_id is required")
		return
	}

	// Saves get a background context: the write-through must not die with
	// the socket.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctl.Save(saveCtx, questionID); err != nil {
		h.writeActionError(conn, err)
		return
	}
	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID})
}

// handleFlag queues a proctoring event (tab switch, fullscreen exit).
func (h *WSHandler) handleFlag(conn *ws.Conn, attemptID uuid.UUID, msg *ws.RequestPayload) {
	if msg.Event == "" {
		conn.WriteError(string(response.ErrInvalidPayload), "event is required")
		return
	}

	job, _ := json.Marshal(map[string]any{
		"attempt_id": attemptID.String(),
		"event":      msg.Event,
		"detail":     msg.Detail,
		"timestamp":  time.Now().Unix(),
	})

	flagCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.rdb.RPush(flagCtx, config.WorkerKey.PersistProctorQueue, job).Err(); err != nil {
		h.log.Error().Err(err).Msg("Failed to queue proctor flag")
		conn.WriteError(string(response.ErrInternal), "flag not recorded")
		return
	}
	conn.WriteTyped(ws.AckResponse{Event: ws.EventFlagOK})
}

func (h *WSHandler) writeActionError(conn *ws.Conn, err error) {
	var perr *ledger.PersistenceError
	var serr *attempt.SubmissionError
	switch {
	case errors.Is(err, ledger.ErrLocked):
		conn.WriteError(string(response.ErrQuestionLocked), "question window has closed")
	case errors.Is(err, ledger.ErrNoSelection):
		conn.WriteError(string(response.ErrNoSelection), "select a choice before saving")
	case errors.Is(err, ledger.ErrChoiceRange):
		conn.WriteError(string(response.ErrChoiceOutOfRange), "choice index out of range")
	case errors.Is(err, ledger.ErrUnknownQuestion):
		conn.WriteError(string(response.ErrNotFound), "unknown question")
	case errors.As(err, &perr):
		conn.WriteError(string(response.ErrPersistenceFailed), "answer not persisted, retry the save")
	case errors.As(err, &serr):
		conn.WriteError(string(response.ErrSubmissionFailed), "submission failed, retry when online")
	case errors.Is(err, attempt.ErrAlreadySubmitting):
		conn.WriteError(string(response.ErrConflict), "submission already in flight")
	default:
		conn.WriteError(string(response.ErrInternal), "internal error")
	}
}
