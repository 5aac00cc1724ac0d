package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/chat"
	"github.com/skynetai/skynet/backend/internal/service/ai"
	"github.com/skynetai/skynet/backend/internal/service/history"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// Store is the document store surface the registry relies on.
type Store interface {
	history.Store
	CreateSession(ctx context.Context, userID, sessionID, name string) (chat.Session, bool, error)
	GetSession(ctx context.Context, userID, sessionID string) (chat.Session, error)
	SessionExists(ctx context.Context, userID, sessionID string) (bool, error)
	ListSessions(ctx context.Context, userID string) ([]chat.Session, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

type sessionKey struct {
	userID    string
	sessionID string
}

// Reply is the outcome of one chat turn.
type Reply struct {
	SessionID string
	Message   string
}

// Registry maps (user, session) pairs to their durable session documents
// and to the conversation pipelines bound to them in this process.
type Registry struct {
	store  Store
	ai     *ai.Service
	now    func() time.Time
	logger *slog.Logger

	mu        sync.RWMutex
	pipelines map[sessionKey]*ai.Pipeline
}

// NewRegistry wires a registry over store and the shared conversation service.
func NewRegistry(store Store, svc *ai.Service) *Registry {
	return &Registry{
		store:     store,
		ai:        svc,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    utils.GetLogger().With("component", "chat"),
		pipelines: make(map[sessionKey]*ai.Pipeline),
	}
}

// Create provisions a session. An empty sessionID gets a fresh UUID and an
// empty name gets a timestamped default. Creating an existing id returns the
// stored session unchanged.
func (r *Registry) Create(ctx context.Context, userID, sessionID, name string) (chat.Session, error) {
	if userID == "" {
		return chat.Session{}, apperr.New(apperr.ErrBadRequest, "user id is required")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" {
		name = chat.DefaultSessionName(r.now())
	}

	session, created, err := r.store.CreateSession(ctx, userID, sessionID, name)
	if err != nil {
		return chat.Session{}, err
	}
	if created {
		r.logger.Info("session created", "user", userID, "session", sessionID)
	}
	r.GetOrBind(userID, sessionID)
	return session, nil
}

// ExistsInCache reports whether a pipeline for the session is bound in this
// process. It never consults the store.
func (r *Registry) ExistsInCache(userID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pipelines[sessionKey{userID, sessionID}]
	return ok
}

// GetOrBind returns the cached pipeline of the session, binding one on first
// use. Callers must have confirmed the session exists.
func (r *Registry) GetOrBind(userID, sessionID string) *ai.Pipeline {
	key := sessionKey{userID, sessionID}

	r.mu.RLock()
	p, ok := r.pipelines[key]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[key]; ok {
		return p
	}
	p = r.ai.Bind(history.New(r.store, userID, sessionID))
	r.pipelines[key] = p
	return p
}

// Resolve returns the pipeline of a referenced session. A cache miss falls
// back to the store and warms the cache when the session is found there.
func (r *Registry) Resolve(ctx context.Context, userID, sessionID string) (*ai.Pipeline, error) {
	if r.ExistsInCache(userID, sessionID) {
		return r.GetOrBind(userID, sessionID), nil
	}

	ok, err := r.store.SessionExists(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.ErrSessionNotFound, "%s", sessionID)
	}
	return r.GetOrBind(userID, sessionID), nil
}

// List returns the user's sessions, newest first, and warms the pipeline
// cache for each of them.
func (r *Registry) List(ctx context.Context, userID string) ([]chat.Session, error) {
	sessions, err := r.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		r.GetOrBind(userID, s.ID)
	}
	return sessions, nil
}

// Messages returns the ordered history of one session.
func (r *Registry) Messages(ctx context.Context, userID, sessionID string) ([]chat.Message, error) {
	p, err := r.Resolve(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return p.History().ReadAll(ctx)
}

// Delete removes the session document with its messages and evicts the
// bound pipeline.
func (r *Registry) Delete(ctx context.Context, userID, sessionID string) error {
	err := r.store.DeleteSession(ctx, userID, sessionID)
	r.evict(userID, sessionID)
	if err != nil {
		return err
	}
	r.logger.Info("session deleted", "user", userID, "session", sessionID)
	return nil
}

func (r *Registry) evict(userID, sessionID string) {
	r.mu.Lock()
	delete(r.pipelines, sessionKey{userID, sessionID})
	r.mu.Unlock()
}

// Chat runs one turn. Without a session id a new session is created first.
// When the reply was produced but not stored, the returned Reply carries it
// alongside an ErrPersistence error.
func (r *Registry) Chat(ctx context.Context, userID, message, sessionID string) (Reply, error) {
	return r.turn(ctx, userID, message, sessionID, func(p *ai.Pipeline) (string, error) {
		return p.Invoke(ctx, message)
	})
}

// ChatStream is Chat with the reply delivered chunk by chunk to onChunk.
// onStart is called with the resolved session id before generation begins.
func (r *Registry) ChatStream(ctx context.Context, userID, message, sessionID string, onStart func(sessionID string) error, onChunk func(string) error) (Reply, error) {
	return r.turn(ctx, userID, message, sessionID, func(p *ai.Pipeline) (string, error) {
		if onStart != nil {
			if err := onStart(p.SessionID()); err != nil {
				return "", err
			}
		}
		return p.Stream(ctx, message, onChunk)
	})
}

func (r *Registry) turn(ctx context.Context, userID, message, sessionID string, run func(*ai.Pipeline) (string, error)) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, apperr.New(apperr.ErrBadRequest, "message is required")
	}

	var (
		p   *ai.Pipeline
		err error
	)
	if sessionID == "" {
		session, err := r.Create(ctx, userID, "", "")
		if err != nil {
			return Reply{}, err
		}
		p = r.GetOrBind(userID, session.ID)
	} else {
		p, err = r.Resolve(ctx, userID, sessionID)
		if err != nil {
			return Reply{}, err
		}
	}

	text, err := run(p)
	return Reply{SessionID: p.SessionID(), Message: text}, err
}

// Close drops every bound pipeline.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines = make(map[sessionKey]*ai.Pipeline)
}
