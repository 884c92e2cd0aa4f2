package postgresstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/agent"
	"tabula/pkg/types/message"
)

const testDatabaseEnv = "TABULA_TEST_DATABASE_URL"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(testDatabaseEnv))
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestPostgresStoreLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Delete(ctx, sess.ID) })

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.State)

	loaded.State = &agent.AgentState{
		Messages: []*message.Message{message.NewUserMessage("how many rows?")},
		ParentID: "run-9",
		Stage:    agent.StageInfoRead,
	}
	require.NoError(t, store.Save(ctx, loaded))

	reloaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.State)
	assert.Equal(t, "run-9", reloaded.State.ParentID)
	assert.Equal(t, agent.StageInfoRead, reloaded.State.Stage)
	require.Len(t, reloaded.State.Messages, 1)
	assert.Equal(t, "how many rows?", reloaded.State.Messages[0].Text())

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, sess.ID)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestPostgresStoreRejectsUnsafeIDs(t *testing.T) {
	store := &Store{}
	_, err := store.Get(context.Background(), "id; DROP TABLE agent_sessions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session ID")

	err = store.Delete(context.Background(), "../escape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session ID")
}
