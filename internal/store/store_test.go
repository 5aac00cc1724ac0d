package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/model/chat"
	"github.com/skynetai/skynet/backend/internal/model/user"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.StoreConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "store.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.CreateSession(ctx, "u1", "s1", "first")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "s1", first.ID)
	require.False(t, first.CreatedAt.After(first.UpdatedAt))

	second, created, err := s.CreateSession(ctx, "u1", "s1", "second")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "first", second.Name)

	sessions, err := s.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestSessionIDsAreScopedPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, created, err := s.CreateSession(ctx, "u1", "same", "a")
	require.NoError(t, err)
	require.True(t, created)
	_, created, err = s.CreateSession(ctx, "u2", "same", "b")
	require.NoError(t, err)
	require.True(t, created)

	ok, err := s.SessionExists(ctx, "u3", "same")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppendAndReadPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.CreateSession(ctx, "u1", "s1", "chat")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessages(ctx, "u1", "s1",
		chat.NewMessage(chat.RoleHuman, "Hello"),
		chat.NewMessage(chat.RoleAI, "Hi there"),
	))
	require.NoError(t, s.AppendMessages(ctx, "u1", "s1", chat.NewMessage(chat.RoleHuman, "How are you?")))

	msgs, err := s.ReadMessages(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []chat.Role{chat.RoleHuman, chat.RoleAI, chat.RoleHuman}, []chat.Role{msgs[0].Role, msgs[1].Role, msgs[2].Role})
	require.Equal(t, "How are you?", msgs[2].Content)

	session, err := s.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	require.True(t, session.UpdatedAt.After(session.CreatedAt) || session.UpdatedAt.Equal(session.CreatedAt))
}

func TestReadMissingSessionIsEmpty(t *testing.T) {
	s := newTestStore(t)
	msgs, err := s.ReadMessages(context.Background(), "u1", "nope")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestAppendToMissingSession(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendMessages(context.Background(), "u1", "nope", chat.NewMessage(chat.RoleHuman, "x"))
	require.ErrorIs(t, err, apperr.ErrSessionNotFound)
}

func TestConcurrentAppendsAllSurvive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.CreateSession(ctx, "u1", "s1", "chat")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AppendMessages(ctx, "u1", "s1", chat.NewMessage(chat.RoleHuman, fmt.Sprintf("msg-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := s.ReadMessages(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, msgs, writers)
}

func TestCorruptedRoleFailsRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.CreateSession(ctx, "u1", "s1", "chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, "u1", "s1", chat.NewMessage(chat.RoleHuman, "ok")))
	require.NoError(t, s.db.Create(&MessageDocument{UserID: "u1", SessionID: "s1", Type: "robot", Content: "??", Timestamp: "x"}).Error)

	_, err = s.ReadMessages(ctx, "u1", "s1")
	require.ErrorIs(t, err, apperr.ErrDataCorruption)

	err = s.AppendMessages(ctx, "u1", "s1", chat.Message{Role: "robot", Content: "x"})
	require.ErrorIs(t, err, apperr.ErrDataCorruption)
}

func TestClearMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.CreateSession(ctx, "u1", "s1", "chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, "u1", "s1", chat.NewMessage(chat.RoleHuman, "x")))

	require.NoError(t, s.ClearMessages(ctx, "u1", "s1"))
	msgs, err := s.ReadMessages(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.ErrorIs(t, s.ClearMessages(ctx, "u1", "missing"), apperr.ErrSessionNotFound)
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.CreateSession(ctx, "u1", "s1", "chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, "u1", "s1", chat.NewMessage(chat.RoleHuman, "x")))

	require.NoError(t, s.DeleteSession(ctx, "u1", "s1"))
	_, err = s.GetSession(ctx, "u1", "s1")
	require.ErrorIs(t, err, apperr.ErrSessionNotFound)

	var count int64
	require.NoError(t, s.db.Model(&MessageDocument{}).Where("session_id = ?", "s1").Count(&count).Error)
	require.Zero(t, count)

	require.ErrorIs(t, s.DeleteSession(ctx, "u1", "s1"), apperr.ErrSessionNotFound)
}

func TestListSessionsIncludesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.CreateSession(ctx, "u1", "old", "old")
	require.NoError(t, err)
	_, _, err = s.CreateSession(ctx, "u1", "new", "new")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, "u1", "new", chat.NewMessage(chat.RoleHuman, "bump")))

	sessions, err := s.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "new", sessions[0].ID)
	require.Len(t, sessions[0].Messages, 1)
	require.NotNil(t, sessions[1].Messages)
}

func TestProfileLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "u1")
	require.ErrorIs(t, err, ErrProfileNotFound)

	require.NoError(t, s.CreateProfile(ctx, "u1", "a@example.com", "Ada"))
	require.NoError(t, s.CreateProfile(ctx, "u1", "other@example.com", "Other"))

	bio := "mathematician"
	profile, err := s.UpdateProfile(ctx, "u1", user.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, "Ada", profile.DisplayName)
	require.Equal(t, "a@example.com", profile.Email)
	require.Equal(t, "mathematician", profile.Bio)
	require.Equal(t, "user", profile.Role)

	_, err = s.UpdateProfile(ctx, "u1", user.ProfileUpdate{})
	require.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = s.UpdateProfile(ctx, "ghost", user.ProfileUpdate{Bio: &bio})
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestMySQLDSNCountsMatchedRows(t *testing.T) {
	raw, err := mysqlDSN("skynet:pw@tcp(db:3306)/skynet?charset=utf8mb4")
	require.NoError(t, err)

	cfg, err := mysqldriver.ParseDSN(raw)
	require.NoError(t, err)
	require.True(t, cfg.ClientFoundRows)
	require.True(t, cfg.ParseTime)
	require.Equal(t, "skynet", cfg.DBName)

	_, err = mysqlDSN("not a dsn")
	require.Error(t, err)
}

func TestTouchWithUnchangedTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	_, _, err := s.CreateSession(ctx, "u1", "s1", "chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, "u1", "s1", chat.Message{Role: chat.RoleHuman, Content: "hi"}))
	require.NoError(t, s.ClearMessages(ctx, "u1", "s1"))
	require.NoError(t, s.AppendMessages(ctx, "u1", "s1", chat.Message{Role: chat.RoleHuman, Content: "again"}))
}
