package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect Action = "select"
	ActionSave   Action = "save"
	ActionFinish Action = "finish"
	ActionRetry  Action = "retry"
	ActionFlag   Action = "flag"
	ActionPing   Action = "ping"
)

// RequestPayload is the single client message shape; unused fields stay
// empty for actions that do not need them.
type RequestPayload struct {
	Action Action `json:"action"`
	// select / save
	QuestionID  string `json:"question_id,omitempty"`
	ChoiceIndex *int   `json:"choice_index,omitempty"`
	// flag
	Event  string `json:"event,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState    Event = "state"
	EventSelected Event = "selected"
	EventSaved    Event = "saved"
	EventError    Event = "error"
	EventPong     Event = "pong"
	EventFlagOK   Event = "flag_recorded"
)

// StateResponse pushes the controller's current view; also sent as the
// greeting right after the upgrade.
type StateResponse struct {
	Event Event `json:"event"`
	State any   `json:"state"`
}

type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

type AckResponse struct {
	Event Event `json:"event"`
}
