package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/model/chat"
	"github.com/skynetai/skynet/backend/internal/service/history"
	"github.com/skynetai/skynet/backend/internal/store"
)

func newHistory(t *testing.T) *history.History {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, _, err = s.CreateSession(ctx, "u1", "s1", "chat")
	require.NoError(t, err)
	return history.New(s, "u1", "s1")
}

func TestHistoryAppendReadClear(t *testing.T) {
	h := newHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, chat.NewMessage(chat.RoleSystem, "be brief")))
	require.NoError(t, h.Append(ctx,
		chat.NewMessage(chat.RoleHuman, "Hello"),
		chat.NewMessage(chat.RoleAI, "Hi"),
	))

	msgs, err := h.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, chat.RoleSystem, msgs[0].Role)
	require.Equal(t, "Hi", msgs[2].Content)

	require.NoError(t, h.Clear(ctx))
	msgs, err = h.ReadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestPromptAppliesLimit(t *testing.T) {
	h := newHistory(t)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c", "d"} {
		require.NoError(t, h.Append(ctx, chat.NewMessage(chat.RoleHuman, text)))
	}

	all, err := h.Prompt(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	last, err := h.Prompt(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	require.Equal(t, "c", last[0].Content)
	require.Equal(t, schema.User, last[0].Role)
}
