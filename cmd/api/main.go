package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skynetai/skynet/backend/internal/cache"
	"github.com/skynetai/skynet/backend/internal/config"
	"github.com/skynetai/skynet/backend/internal/handler"
	"github.com/skynetai/skynet/backend/internal/service/ai"
	"github.com/skynetai/skynet/backend/internal/service/auth"
	"github.com/skynetai/skynet/backend/internal/service/chat"
	"github.com/skynetai/skynet/backend/internal/service/summarizer"
	"github.com/skynetai/skynet/backend/internal/store"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		envFile string
		addr    string
	)

	cmd := &cobra.Command{
		Use:           "skynet-api",
		Short:         "Chat and summarization backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, envFile, addr); err != nil {
				utils.GetLogger().Error("server exited", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides API_HOST/API_PORT")
	return cmd
}

func run(ctx context.Context, envFile, addr string) error {
	logger := utils.GetLogger()
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warn("failed to load env file, continuing with system environment variables only", "file", envFile, "error", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger = utils.InitLogger(cfg.Log.Level, cfg.Log.Format)
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if !cfg.Auth.Enabled() {
		return errors.New("FIREBASE_PROJECTID is required to verify ID tokens")
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()
	logger.Info("document store ready", "driver", cfg.Store.Driver)

	summaryCache := cache.New(cfg.Cache)
	defer summaryCache.Close()
	if err := summaryCache.Ping(ctx); err != nil {
		logger.Warn("summary cache unreachable, summaries will be recomputed", "error", err)
	}

	chatModel, err := cfg.LLM.NewChatModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize chat model: %w", err)
	}
	logger.Info("chat model initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	aiService, err := ai.NewService(ctx, chatModel, cfg.Chat)
	if err != nil {
		return err
	}
	registry := chat.NewRegistry(db, aiService)
	defer registry.Close()

	summarizerService, err := summarizer.NewService(ctx, aiService.ChatModel(), summaryCache, cfg.Summarizer)
	if err != nil {
		return err
	}

	var authService *auth.Service
	if cfg.Auth.APIKey != "" {
		authService = auth.NewService(auth.NewClient(cfg.Auth.APIKey, cfg.Auth.AuthDomain), db)
	} else {
		logger.Warn("FIREBASE_API_KEY not set, /auth routes disabled")
	}

	router := handler.NewRouter(handler.Deps{
		Registry:       registry,
		Summarizer:     summarizerService,
		Auth:           authService,
		Verifier:       auth.NewTokenVerifier(cfg.Auth.ProjectID),
		AllowOrigins:   cfg.CORS.AllowOrigins,
		MaxUploadBytes: cfg.Summarizer.MaxUploadBytes,
		Health: map[string]handler.Pinger{
			"store": db,
			"cache": summaryCache,
		},
	})

	return startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	utils.GetLogger().Info("backend listening", "addr", serverCfg.Addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
