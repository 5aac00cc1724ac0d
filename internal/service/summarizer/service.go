// Package summarizer produces cached map-reduce summaries of text and
// uploaded documents.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/cache"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

const defaultComputeTimeout = 5 * time.Minute

const (
	systemPrompt = "You write faithful, concise summaries. Keep names, numbers and conclusions; drop filler."
	mapPrompt    = "Summarize this text below.\n\ntext: {text}"
	reducePrompt = "The following are summaries of consecutive parts of one document.\n" +
		"Combine them into a single consolidated summary of the main points.\n\nsummaries:\n{text}"
)

// Service summarizes input with a cache in front of the LLM.
type Service struct {
	cache    cache.Cache
	mapper   compose.Runnable[map[string]any, *schema.Message]
	reducer  compose.Runnable[map[string]any, *schema.Message]
	splitter textsplitter.TextSplitter
	cfg      config.SummarizerConfig
	group    singleflight.Group
	logger   *slog.Logger
}

// NewService compiles the map and reduce chains over chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, c cache.Cache, cfg config.SummarizerConfig) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if cfg.MapConcurrency <= 0 {
		cfg.MapConcurrency = 1
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = defaultComputeTimeout
	}

	mapper, err := compileChain(ctx, chatModel, mapPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile map chain: %w", err)
	}
	reducer, err := compileChain(ctx, chatModel, reducePrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reduce chain: %w", err)
	}

	return &Service{
		cache:   c,
		mapper:  mapper,
		reducer: reducer,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		cfg:    cfg,
		logger: utils.GetLogger().With("component", "summarizer"),
	}, nil
}

func compileChain(ctx context.Context, chatModel model.BaseChatModel, userTemplate string) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userTemplate),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

// SummarizeText summarizes a plain string.
func (s *Service) SummarizeText(ctx context.Context, userID, text string) (string, error) {
	return s.Summarize(ctx, userID, []byte(text), KindText)
}

// Summarize returns the summary of raw. A cached summary of identical
// input from the same user is returned without calling the LLM.
func (s *Service) Summarize(ctx context.Context, userID string, raw []byte, kind Kind) (string, error) {
	if !kind.Valid() {
		return "", apperr.New(apperr.ErrUnsupportedFormat, "unsupported content kind %q", kind)
	}

	key := CacheKey(Fingerprint(userID, kind, raw))
	if summary, ok := s.lookup(ctx, key); ok {
		s.logger.Debug("summary cache hit", "user", userID, "key", key)
		return summary, nil
	}

	// The shared computation outlives any single caller; each caller only
	// stops waiting when its own context ends.
	ch := s.group.DoChan(key, func() (any, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ComputeTimeout)
		defer cancel()

		// a concurrent caller may have filled the slot meanwhile
		if summary, ok := s.lookup(workCtx, key); ok {
			return summary, nil
		}
		summary, err := s.compute(workCtx, raw, kind)
		if err != nil {
			return "", err
		}
		if err := s.cache.Set(workCtx, key, []byte(summary), s.cfg.CacheTTL); err != nil {
			s.logger.Warn("summary cache write failed", "key", key, "error", err)
		}
		return summary, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			s.logger.Debug("summary shared with concurrent request", "key", key)
		}
		return res.Val.(string), nil
	}
}

func (s *Service) lookup(ctx context.Context, key string) (string, bool) {
	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("summary cache read failed, treating as miss", "key", key, "error", err)
		return "", false
	}
	if !found {
		return "", false
	}
	return string(cached), true
}

func (s *Service) compute(ctx context.Context, raw []byte, kind Kind) (string, error) {
	text, err := Extract(ctx, raw, kind)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", apperr.New(apperr.ErrBadRequest, "nothing to summarize")
	}

	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrBadRequest, err, "split text")
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}

	summaries, err := s.mapChunks(ctx, s.mapper, chunks)
	if err != nil {
		return "", err
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}
	return s.reduce(ctx, summaries)
}

// mapChunks runs one chain call per input with bounded parallelism and
// keeps results in input order.
func (s *Service) mapChunks(ctx context.Context, chain compose.Runnable[map[string]any, *schema.Message], inputs []string) ([]string, error) {
	out := make([]string, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MapConcurrency)
	for i, input := range inputs {
		g.Go(func() error {
			text, err := s.call(gctx, chain, input)
			if err != nil {
				return err
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// reduce collapses summaries in groups that fit one chunk until a single
// group remains, then writes the final summary from it.
func (s *Service) reduce(ctx context.Context, summaries []string) (string, error) {
	for {
		groups := packGroups(summaries, s.cfg.ChunkSize)
		if len(groups) == 1 || len(groups) == len(summaries) {
			return s.call(ctx, s.reducer, strings.Join(summaries, "\n\n"))
		}

		joined := make([]string, len(groups))
		for i, g := range groups {
			joined[i] = strings.Join(g, "\n\n")
		}
		collapsed, err := s.mapChunks(ctx, s.reducer, joined)
		if err != nil {
			return "", err
		}
		summaries = collapsed
	}
}

func packGroups(summaries []string, limit int) [][]string {
	var (
		groups  [][]string
		current []string
		size    int
	)
	for _, summary := range summaries {
		if len(current) > 0 && size+len(summary) > limit {
			groups = append(groups, current)
			current, size = nil, 0
		}
		current = append(current, summary)
		size += len(summary)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func (s *Service) call(ctx context.Context, chain compose.Runnable[map[string]any, *schema.Message], text string) (string, error) {
	resp, err := chain.Invoke(ctx, map[string]any{"text": text})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", apperr.Wrap(apperr.ErrLLMUnavailable, err, "summarize")
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", apperr.New(apperr.ErrLLMUnavailable, "empty summary from model")
	}
	return strings.TrimSpace(resp.Content), nil
}
