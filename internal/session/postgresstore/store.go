// Package postgresstore keeps sessions as JSONB rows so several agent
// processes can share one conversation history.
package postgresstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tabula/internal/agent"
	"tabula/internal/session"
	"tabula/internal/utils"
	"tabula/internal/utils/id"
)

const sessionTable = "agent_sessions"

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func isSafeSessionID(sessionID string) bool {
	return sessionID != "" && sessionIDPattern.MatchString(sessionID)
}

// Store implements a Postgres-backed session store.
type Store struct {
	pool   *pgxpool.Pool
	logger *utils.Logger
}

// New constructs a Postgres-backed session store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: utils.NewComponentLogger("SessionPostgresStore"),
	}
}

// Connect opens a pool from a DSN and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the session table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("session store not initialized")
	}

	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    state JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_sessions_updated_at ON %s (updated_at DESC);
`, sessionTable, sessionTable)

	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *Store) Create(ctx context.Context) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("session store not initialized")
	}

	for attempt := 0; attempt < 3; attempt++ {
		now := time.Now()
		sess := &session.Session{
			ID:        id.NewSessionID(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if !isSafeSessionID(sess.ID) {
			return nil, fmt.Errorf("invalid session ID")
		}

		if err := s.insert(ctx, sess, false); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				s.logger.Warn("Session id collision on %s, retrying", sess.ID)
				continue
			}
			return nil, err
		}
		return sess, nil
	}
	return nil, fmt.Errorf("failed to allocate unique session ID")
}

func (s *Store) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !isSafeSessionID(sessionID) {
		return nil, fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("session store not initialized")
	}

	query := fmt.Sprintf(`
SELECT id, state, created_at, updated_at
FROM %s
WHERE id = $1
`, sessionTable)

	var (
		stateJSON []byte
		sess      session.Session
	)
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&sess.ID,
		&stateJSON,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, err
	}

	if len(stateJSON) > 0 {
		var state agent.AgentState
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		sess.State = &state
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if !isSafeSessionID(sess.ID) {
		return fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return fmt.Errorf("session store not initialized")
	}

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	return s.insert(ctx, sess, true)
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("session store not initialized")
	}

	query := fmt.Sprintf(`
SELECT id
FROM %s
ORDER BY updated_at DESC
`, sessionTable)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, err
		}
		ids = append(ids, sessionID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !isSafeSessionID(sessionID) {
		return fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return fmt.Errorf("session store not initialized")
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, sessionTable)
	_, err := s.pool.Exec(ctx, query, sessionID)
	return err
}

func (s *Store) insert(ctx context.Context, sess *session.Session, upsert bool) error {
	stateJSON, err := encodeState(sess.State)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, state, created_at, updated_at)
VALUES ($1, $2, $3, $4)
`, sessionTable)
	if upsert {
		query += `
ON CONFLICT (id) DO UPDATE SET
    state = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at
`
	}

	_, err = s.pool.Exec(ctx, query, sess.ID, stateJSON, sess.CreatedAt, sess.UpdatedAt)
	return err
}

func encodeState(state *agent.AgentState) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}
