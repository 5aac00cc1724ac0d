// Command llmtester exercises the configured chat model without the HTTP
// layer: one chat turn against a stored session, or one summarization.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/skynetai/skynet/backend/internal/cache"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/service/ai"
	"github.com/skynetai/skynet/backend/internal/service/chat"
	"github.com/skynetai/skynet/backend/internal/service/summarizer"
	"github.com/skynetai/skynet/backend/internal/store"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

func main() {
	logger := utils.GetLogger()
	if err := godotenv.Load(); err != nil {
		logger.Warn("failed to load .env, using system environment variables", "error", err)
	}

	mode := flag.String("mode", "", "test mode: chat or summarize")
	text := flag.String("text", "", "chat message or text to summarize")
	filePath := flag.String("file", "", "file to summarize (pdf, txt, md)")
	userID := flag.String("user", "llmtester", "user id owning the session or summary")
	session := flag.String("session", "", "existing session id, empty creates a new session")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	flag.Parse()

	if *mode != "chat" && *mode != "summarize" {
		flag.Usage()
		fatal("choose a test mode with -mode=chat or -mode=summarize")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load configuration: %v", err)
	}
	utils.InitLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	chatModel, err := cfg.LLM.NewChatModel(ctx)
	if err != nil {
		fatal("failed to initialize chat model: %v", err)
	}

	switch *mode {
	case "chat":
		runChat(ctx, cfg, chatModel, *userID, *session, *text)
	case "summarize":
		runSummarize(ctx, cfg, chatModel, *userID, *text, *filePath)
	}
}

func runChat(ctx context.Context, cfg *config.Config, chatModel model.BaseChatModel, userID, sessionID, text string) {
	if strings.TrimSpace(text) == "" {
		fatal("chat mode needs a message via -text")
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		fatal("failed to open store: %v", err)
	}
	defer db.Close()

	svc, err := ai.NewService(ctx, chatModel, cfg.Chat)
	if err != nil {
		fatal("failed to build chat chain: %v", err)
	}
	registry := chat.NewRegistry(db, svc)
	defer registry.Close()

	start := time.Now()
	reply, err := registry.Chat(ctx, userID, text, sessionID)
	if err != nil {
		fatal("chat turn failed: %v", err)
	}
	utils.GetLogger().Info("chat turn completed", "session", reply.SessionID, "elapsed", time.Since(start))
	fmt.Println(reply.Message)
}

func runSummarize(ctx context.Context, cfg *config.Config, chatModel model.BaseChatModel, userID, text, filePath string) {
	raw, kind := []byte(text), summarizer.KindText
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			fatal("failed to read %s: %v", filePath, err)
		}
		k, err := summarizer.KindFromUpload(filePath, "")
		if err != nil {
			fatal("%v", err)
		}
		raw, kind = data, k
	}
	if len(raw) == 0 {
		fatal("summarize mode needs -text or -file")
	}

	summaryCache := cache.New(cfg.Cache)
	defer summaryCache.Close()

	svc, err := summarizer.NewService(ctx, chatModel, summaryCache, cfg.Summarizer)
	if err != nil {
		fatal("failed to build summarizer: %v", err)
	}

	start := time.Now()
	summary, err := svc.Summarize(ctx, userID, raw, kind)
	if err != nil {
		fatal("summarization failed: %v", err)
	}
	utils.GetLogger().Info("summary ready", "kind", kind, "bytes", len(raw), "elapsed", time.Since(start))
	fmt.Println(summary)
}

func fatal(format string, args ...any) {
	utils.GetLogger().Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
