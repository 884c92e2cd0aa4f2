// Package session persists conversation state between turns and drives the
// agent one turn at a time.
package session

import (
	"context"
	"time"

	"tabula/internal/agent"
)

// Session is one persisted conversation.
type Session struct {
	ID        string            `json:"id"`
	State     *agent.AgentState `json:"state,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store persists sessions. Implementations: filestore (JSON files) and
// postgresstore (JSONB rows).
type Store interface {
	// Create allocates a new empty session.
	Create(ctx context.Context) (*Session, error)
	// Get loads a session by id.
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Save upserts the session.
	Save(ctx context.Context, session *Session) error
	// List returns known session ids.
	List(ctx context.Context) ([]string, error)
	// Delete removes a session; deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
