package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chartsense/backend-go/internal/auth"
	"chartsense/backend-go/internal/config"
	"chartsense/backend-go/internal/handlers"
	internalhttp "chartsense/backend-go/internal/http"
	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/recorder"
	"chartsense/backend-go/internal/services"
	"chartsense/backend-go/internal/workspace"
)

func main() {
	_ = godotenv.Load(
		".env",
		".env.local",
		"../.env",
		"../.env.local",
		"backend-go/.env",
		"backend-go/.env.local",
	)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	cache := services.NewCache(cfg)
	gemini := services.NewGemini(cfg)

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.RecorderDBPath != "" {
		sqlRec, err := recorder.NewSQLiteRecorder(cfg.RecorderDBPath)
		if err != nil {
			log.Fatalf("open recorder: %v", err)
		}
		rec = sqlRec
		log.Printf("[INFO] recording activity to %s", cfg.RecorderDBPath)
	}
	defer rec.Close()

	ingestor := ingest.NewIngestor(ingest.NewPreviews(), cfg.MaxUploadBytes)
	registry := workspace.NewRegistry(workspace.Deps{
		Model:         gemini,
		Verifier:      services.NewGate(gemini, cache, cfg.CacheTTLVerify, cfg.VerifyFailClosed),
		Analyzer:      services.NewAnalyzer(gemini),
		Ingestor:      ingestor,
		Recorder:      rec,
		MaxChatImages: cfg.MaxChatImages,
	})

	var purger workspace.Purger
	if mem, ok := cache.(*services.MemoryCache); ok {
		purger = mem
	}
	janitor := workspace.NewJanitor(registry, cfg.WorkspaceIdleTTL, purger)
	if err := janitor.Register(cfg.JanitorSchedule); err != nil {
		log.Fatalf("janitor: %v", err)
	}
	janitor.Start()
	defer janitor.Stop()

	api := handlers.New(cfg, handlers.Deps{
		Cache:     cache,
		Model:     gemini,
		Auth:      auth.NewMock(cfg.AuthMockDelay),
		Tokens:    auth.NewIssuer(cfg.AuthSecret, cfg.AuthTokenTTL),
		Registry:  registry,
		Ingestor:  ingestor,
		Recording: cfg.RecorderDBPath != "",
	})
	h := internalhttp.NewRouter(cfg, api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[INFO] chartsense backend listening on %s (model %s, cache %s)", srv.Addr, gemini.ModelName(), cache.Backend())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
