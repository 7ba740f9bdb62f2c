package main

import (
	"context"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"twindm/internal/ai"
	"twindm/internal/auth"
	"twindm/internal/config"
	"twindm/internal/database"
	"twindm/internal/handlers"
	"twindm/internal/lock"
	"twindm/internal/pipeline"
	"twindm/internal/watch"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := auth.Init(cfg.TokenExpire); err != nil {
		logger.Fatalf("auth init: %v", err)
	}

	ctx := context.Background()
	store, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer store.Close()
	logger.Info("connected to database")

	gateway := ai.New(ai.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBase,
		Timeout: cfg.GenerateTimeout,
	}, logger)

	hub := watch.NewHub()

	fast := ai.ModelConfig{Model: cfg.FastModel, ThinkingBudget: 0}
	deliberate := ai.ModelConfig{Model: cfg.DeliberateModel, ThinkingBudget: cfg.ThinkingBudget}
	p := pipeline.New(store, gateway, fast, deliberate, hub, logger)

	var locker handlers.Locker
	if cfg.RedisAddr != "" {
		turnLock, err := lock.New(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.GenerateTimeout*2)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		locker = turnLock
		logger.Info("turn lock enabled")
	}

	srv := handlers.New(logger, store, p, gateway, cfg.FastModel, hub, locker)

	addr := ":" + cfg.Port
	logger.Infof("listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Routes()); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
