package session

import (
	"context"
	"fmt"
	"time"

	"tabula/internal/agent"
	"tabula/internal/observability"
	"tabula/internal/utils"
	"tabula/internal/utils/id"
	"tabula/pkg/types/message"
)

// Runner drives one agent turn per call: load the session, stamp the turn
// metadata, invoke the routing graph, persist the extended state.
type Runner struct {
	agent          *agent.Agent
	store          Store
	metrics        *observability.MetricsCollector
	contextMetrics *observability.ContextMetrics
	tracer         *observability.TracerProvider
	logger         *utils.Logger
}

// NewRunner wires the agent to a session store.
func NewRunner(a *agent.Agent, store Store, metrics *observability.MetricsCollector) *Runner {
	return &Runner{
		agent:          a,
		store:          store,
		metrics:        metrics,
		contextMetrics: observability.NewContextMetrics(),
		logger:         utils.NewComponentLogger("session-runner"),
	}
}

// WithTracer attaches a tracer so each turn runs under its own span.
func (r *Runner) WithTracer(tracer *observability.TracerProvider) *Runner {
	r.tracer = tracer
	return r
}

// Turn serves one user message against a session. An empty sessionID starts
// a fresh session. It returns the session and the messages this turn
// produced. A failed invocation leaves the stored history untouched; a
// failed save is reported but does not discard the produced messages.
func (r *Runner) Turn(ctx context.Context, sessionID string, msg *message.Message) (*Session, []*message.Message, error) {
	if msg == nil {
		return nil, nil, fmt.Errorf("turn requires a message")
	}

	r.metrics.IncrementActiveSessions(ctx)
	defer r.metrics.DecrementActiveSessions(ctx)

	var (
		sess *Session
		err  error
	)
	if sessionID == "" {
		sess, err = r.store.Create(ctx)
	} else {
		sess, err = r.store.Get(ctx, sessionID)
	}
	if err != nil {
		return nil, nil, err
	}

	state := sess.State
	if state == nil {
		state = &agent.AgentState{}
	}
	state.ParentID = id.NewRunID()
	state.Date = time.Now().Format(time.DateOnly)
	state.EntryMessage = msg
	state.Append(msg)
	before := len(state.Messages)

	ctx = id.WithSessionID(ctx, sess.ID)
	ctx = id.WithRunID(ctx, state.ParentID)
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanSessionTurn)
	defer span.End()

	newState, err := r.agent.Invoke(ctx, state)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("turn on session %s: %w", sess.ID, err)
	}

	sess.State = newState
	if err := r.store.Save(ctx, sess); err != nil {
		// The turn already happened; losing the snapshot must not lose
		// the reply. The failure stays visible through the metric.
		r.contextMetrics.RecordSnapshotError()
		span.RecordError(err)
		r.logger.Error("Saving session %s failed: %v", sess.ID, err)
	}

	produced := newState.Messages[before:]
	r.logger.Info("Session %s: turn produced %d messages (stage %s)",
		sess.ID, len(produced), newState.Stage)
	return sess, produced, nil
}
