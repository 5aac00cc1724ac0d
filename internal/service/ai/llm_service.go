package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/model/chat"
	"github.com/skynetai/skynet/backend/internal/service/history"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// SystemPrompt opens every conversation.
const SystemPrompt = "You are a helpful AI assistant."

// persistTimeout bounds the history write that follows a generated reply.
const persistTimeout = 15 * time.Second

// Service owns the compiled conversation chain shared by every session.
type Service struct {
	chatModel    model.BaseChatModel
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	logger       *slog.Logger
}

// NewService compiles the system prompt + history + human input chain.
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg config.ChatConfig) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(SystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{input}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		chain:        runnable,
		historyLimit: cfg.HistoryLimit,
		logger:       utils.GetLogger().With("component", "ai"),
	}, nil
}

// ChatModel returns the underlying model so other components can share it.
func (s *Service) ChatModel() model.BaseChatModel {
	return s.chatModel
}

// Bind creates the pipeline of one session. Callers cache the result so a
// session keeps a single lane.
func (s *Service) Bind(h *history.History) *Pipeline {
	return &Pipeline{
		svc:     s,
		history: h,
		lane:    make(chan struct{}, 1),
	}
}

// Pipeline is the "ask and remember" handle of one (user, session).
type Pipeline struct {
	svc     *Service
	history *history.History
	// lane serializes turns of this session.
	lane chan struct{}
}

// SessionID returns the session the pipeline is bound to.
func (p *Pipeline) SessionID() string { return p.history.SessionID() }

// History exposes the bound message log.
func (p *Pipeline) History() *history.History { return p.history }

// Invoke runs one turn: load history, ask the model, then append the human
// message and the reply. When the reply was generated but could not be
// stored, both the reply and an ErrPersistence error are returned.
func (p *Pipeline) Invoke(ctx context.Context, userText string) (string, error) {
	return p.run(ctx, userText, func(ctx context.Context, input map[string]any) (string, error) {
		resp, err := p.svc.chain.Invoke(ctx, input)
		if err != nil {
			return "", err
		}
		if resp == nil {
			return "", errors.New("empty model response")
		}
		return resp.Content, nil
	})
}

// Stream is Invoke with the reply delivered incrementally to onChunk. The
// turn is persisted once the stream completes.
func (p *Pipeline) Stream(ctx context.Context, userText string, onChunk func(string) error) (string, error) {
	return p.run(ctx, userText, func(ctx context.Context, input map[string]any) (string, error) {
		stream, err := p.svc.chain.Stream(ctx, input)
		if err != nil {
			return "", err
		}
		defer stream.Close()

		var builder strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return "", err
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			builder.WriteString(chunk.Content)
			if err := onChunk(chunk.Content); err != nil {
				return "", fmt.Errorf("deliver chunk: %w", err)
			}
		}
		return builder.String(), nil
	})
}

type generateFunc func(ctx context.Context, input map[string]any) (string, error)

func (p *Pipeline) run(ctx context.Context, userText string, generate generateFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case p.lane <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.lane }()

	prior, err := p.history.Prompt(ctx, p.svc.historyLimit)
	if err != nil {
		return "", err
	}

	reply, err := generate(ctx, map[string]any{
		"history": prior,
		"input":   userText,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", apperr.Wrap(apperr.ErrLLMUnavailable, err, "generate reply")
	}

	// No new writes once the caller has gone away.
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Both messages go out in one write that is not cut short by a late cancellation.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	turn := []chat.Message{
		chat.NewMessage(chat.RoleHuman, userText),
		chat.NewMessage(chat.RoleAI, reply),
	}
	if err := p.history.Append(persistCtx, turn...); err != nil {
		p.svc.logger.Error("reply generated but not persisted",
			"user", p.history.UserID(), "session", p.history.SessionID(), "error", err)
		return reply, apperr.Wrap(apperr.ErrPersistence, err, "append turn")
	}

	p.svc.logger.Debug("turn completed",
		"user", p.history.UserID(), "session", p.history.SessionID(), "history", len(prior), "reply_len", len(reply))
	return reply, nil
}
