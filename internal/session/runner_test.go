package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/agent"
	"tabula/internal/llm"
	"tabula/internal/session"
	"tabula/internal/session/filestore"
	"tabula/pkg/types/message"
)

func newTestRunner(t *testing.T, replies ...string) (*session.Runner, session.Store) {
	t.Helper()
	ctx := context.Background()
	a, err := agent.New(ctx, agent.Config{}, agent.Deps{Model: llm.NewMockClient(replies...)})
	require.NoError(t, err)
	store := filestore.New(t.TempDir())
	return session.NewRunner(a, store, nil), store
}

func TestRunnerTurnCreatesAndPersistsSession(t *testing.T) {
	runner, store := newTestRunner(t, "The dataset has 8 rows.")
	ctx := context.Background()

	sess, produced, err := runner.Turn(ctx, "", message.NewUserMessage("how many rows?"))
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	require.Len(t, produced, 1)
	assert.Equal(t, message.RoleAssistant, produced[0].Role)
	assert.Equal(t, "The dataset has 8 rows.", produced[0].Text())

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.State)
	require.Len(t, loaded.State.Messages, 2)
	assert.Equal(t, "how many rows?", loaded.State.Messages[0].Text())
	assert.Equal(t, time.Now().Format(time.DateOnly), loaded.State.Date)
	assert.NotEmpty(t, loaded.State.ParentID)
	assert.Equal(t, loaded.State.ParentID, loaded.State.Messages[0].Meta.ParentID,
		"entry message joins the turn's group")
	assert.Equal(t, loaded.State.ParentID, loaded.State.Messages[1].Meta.ParentID)
}

func TestRunnerTurnExtendsExistingSession(t *testing.T) {
	runner, store := newTestRunner(t, "first answer", "second answer")
	ctx := context.Background()

	sess, _, err := runner.Turn(ctx, "", message.NewUserMessage("one"))
	require.NoError(t, err)
	firstParent := sess.State.ParentID

	sess2, produced, err := runner.Turn(ctx, sess.ID, message.NewUserMessage("two"))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, sess2.ID)
	require.Len(t, produced, 1)
	assert.Equal(t, "second answer", produced[0].Text())

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.State.Messages, 4)
	assert.NotEqual(t, firstParent, loaded.State.ParentID, "each turn gets its own group id")
}

func TestRunnerTurnRequiresMessage(t *testing.T) {
	runner, _ := newTestRunner(t)
	_, _, err := runner.Turn(context.Background(), "", nil)
	require.Error(t, err)
}

func TestRunnerTurnFailsOnUnknownSession(t *testing.T) {
	runner, _ := newTestRunner(t)
	_, _, err := runner.Turn(context.Background(), "missing-session", message.NewUserMessage("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

type failingSaveStore struct {
	session.Store
}

func (s failingSaveStore) Save(ctx context.Context, sess *session.Session) error {
	return fmt.Errorf("disk full")
}

func TestRunnerTurnKeepsReplyWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	a, err := agent.New(ctx, agent.Config{}, agent.Deps{Model: llm.NewMockClient("the answer")})
	require.NoError(t, err)
	runner := session.NewRunner(a, failingSaveStore{filestore.New(t.TempDir())}, nil)

	sess, produced, err := runner.Turn(ctx, "", message.NewUserMessage("q"))
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, produced, 1)
	assert.Equal(t, "the answer", produced[0].Text())
}
