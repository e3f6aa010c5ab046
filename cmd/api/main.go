package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/mindful/backend/internal/config"
	"github.com/zhouzirui/mindful/backend/internal/handler"
	"github.com/zhouzirui/mindful/backend/internal/handler/chat"
	"github.com/zhouzirui/mindful/backend/internal/service/ai"
	"github.com/zhouzirui/mindful/backend/internal/service/evaluation"
	"github.com/zhouzirui/mindful/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := session.NewStore(cfg.Storage.SessionsDir)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	log.Printf("session records stored in %s", store.Root())

	// replies/evaluator stay nil interfaces unless the provider initialises.
	var (
		replies   chat.ReplyGenerator
		evaluator chat.Evaluator
	)
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			replies = aiService
			log.Printf("AI service initialized successfully (timeout=%s)", aiService.Timeout())

			evaluationSvc, err := evaluation.NewService(ctx, aiService.GetChatModel(), evaluation.Config{Timeout: cfg.AI.Timeout})
			if err != nil {
				log.Printf("warning: failed to initialize evaluation service: %v", err)
			} else {
				evaluator = evaluationSvc
				log.Printf("evaluation enabled every %d messages", cfg.Chat.EvaluationInterval)
			}
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	router := handler.NewRouter(store, replies, evaluator, handler.Options{
		EvaluationInterval: cfg.Chat.EvaluationInterval,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Mindful backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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
