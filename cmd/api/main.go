package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/config"
	"github.com/scaipass/ai-pass/backend/internal/handler"
	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	"github.com/scaipass/ai-pass/backend/internal/service/ai"
	"github.com/scaipass/ai-pass/backend/internal/service/application"
	"github.com/scaipass/ai-pass/backend/internal/service/chat"
	"github.com/scaipass/ai-pass/backend/internal/service/session"
	"github.com/scaipass/ai-pass/backend/internal/store"
	"github.com/scaipass/ai-pass/backend/internal/store/gormstore"
	"github.com/scaipass/ai-pass/backend/internal/store/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl := logger.NewZapLogger(cfg.Log.File, cfg.Log.Production)
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl.Zap())

	feed, err := openFeed(ctx, cfg.Feed)
	if err != nil {
		zl.Error("Main", "failed to open change feed", map[string]interface{}{"error": err, "driver": cfg.Feed.Driver})
		os.Exit(1)
	}
	defer feed.Close()

	backing, err := openStore(cfg.Store, zl)
	if err != nil {
		zl.Error("Main", "failed to open store", map[string]interface{}{"error": err, "driver": cfg.Store.Driver})
		os.Exit(1)
	}
	defer backing.Close()
	st := store.WithFeed(backing, feed, zl)

	// Initialize AI service
	var chatModel model.BaseChatModel
	chatModel, err = cfg.AI.NewChatModel(ctx)
	switch {
	case errors.Is(err, config.ErrAIDisabled):
		zl.Warn("Main", "AI credentials not configured, replies will use the configuration fallback", map[string]interface{}{"provider": cfg.AI.Provider})
		chatModel = nil
	case err != nil:
		zl.Warn("Main", "failed to initialize chat model, continuing without AI", map[string]interface{}{"error": err.Error(), "provider": cfg.AI.Provider})
		chatModel = nil
	default:
		zl.Info("Main", "chat model initialized", map[string]interface{}{"provider": cfg.AI.Provider})
	}

	aiService, err := ai.NewService(ctx, chatModel, cfg.AI.SystemPrompt, zl)
	if err != nil {
		zl.Error("Main", "failed to build generation chain", map[string]interface{}{"error": err})
		os.Exit(1)
	}

	sessionService := session.NewService(st, feed, zl)
	chatService := chat.NewService(st, sessionService, aiService, feed, zl)
	applicationService := application.NewService(st, feed, zl)
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	router := handler.NewRouter(handler.Dependencies{
		Auth:           authService,
		Sessions:       sessionService,
		Chat:           chatService,
		Applications:   applicationService,
		AI:             aiService,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            zl,
	})

	startServer(ctx, cfg.Server, router, zl)

	// exchanges outlive their requests; let them finish before the store closes
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := chatService.Drain(drainCtx); err != nil {
		zl.Warn("Main", "in-flight exchanges did not finish before shutdown", map[string]interface{}{"error": err.Error()})
	}
}

func openFeed(ctx context.Context, cfg config.FeedConfig) (live.Feed, error) {
	switch cfg.Driver {
	case config.FeedRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return live.NewRedisFeed(rdb, cfg.Prefix), nil
	case config.FeedNATS:
		return live.ConnectNATS(cfg.NATSURL, cfg.Prefix)
	default:
		return live.NewMemoryFeed(), nil
	}
}

func openStore(cfg config.StoreConfig, log logger.ILogger) (store.Store, error) {
	if cfg.Driver == config.StoreMemory {
		return memory.New(), nil
	}
	st, err := gormstore.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log logger.ILogger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("Main", "AI-Pass backend listening", map[string]interface{}{"addr": addr})
	if err := runServer(ctx, srv); err != nil {
		log.Error("Main", "server error", map[string]interface{}{"error": err})
	}
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
