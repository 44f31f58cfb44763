package attempt

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
	"github.com/qcmdesk/qcmdesk-backend/internal/timeline"
)

// Registry owns the live controller per in-progress attempt. There is a
// single logical timeline per attempt: attaching is idempotent, so a page
// reload, second device, or server restart re-joins the existing controller
// (or rebuilds it from persisted answers) instead of forking a second one.
type Registry struct {
	clock  timeline.Clock
	grader Grader
	log    zerolog.Logger

	mu     sync.Mutex
	live   map[uuid.UUID]*Controller
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates a registry whose controllers run until Close.
func NewRegistry(clock timeline.Clock, grader Grader, log zerolog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		clock:  clock,
		grader: grader,
		log:    log.With().Str("component", "attempt_registry").Logger(),
		live:   make(map[uuid.UUID]*Controller),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Attach returns the live controller for an attempt, creating and starting
// one when absent. savedAnswers seeds the ledger so previously confirmed
// answers survive reloads; the first tick locks every window the timeline
// has already closed.
func (r *Registry) Attach(
	attemptID uuid.UUID,
	cfg timeline.Config,
	questions []ledger.QuestionRef,
	savedAnswers map[uuid.UUID]int,
	persist ledger.Persister,
) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctl, ok := r.live[attemptID]; ok {
		return ctl, nil
	}

	led := ledger.New(attemptID, questions, persist)
	led.Seed(savedAnswers)

	ctl, err := New(attemptID, cfg, led, r.clock, r.grader, r.log, r.detach)
	if err != nil {
		return nil, err
	}

	r.live[attemptID] = ctl
	go ctl.Run(r.ctx)

	r.log.Debug().Str("attempt_id", attemptID.String()).Int("live", len(r.live)).Msg("Controller attached")
	return ctl, nil
}

// Get returns the live controller for an attempt, if any.
func (r *Registry) Get(attemptID uuid.UUID) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctl, ok := r.live[attemptID]
	return ctl, ok
}

// Count reports the number of live attempts (monitoring).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) detach(attemptID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, attemptID)
}

// Close cancels every live controller. In-flight grading calls finish on
// their own; the server-side timeline remains enforceable after restart
// because it derives from the session's absolute start time.
func (r *Registry) Close() {
	r.cancel()
}
