package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fiscal-note-service/internal/config"
	"fiscal-note-service/internal/emitter"
	"fiscal-note-service/internal/handlers"
	"fiscal-note-service/internal/interfaces"
	"fiscal-note-service/internal/logger"
	"fiscal-note-service/internal/qr"
	"fiscal-note-service/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	// Pick the storage backend for the configured mode.
	var (
		configs   interfaces.ConfigRepository
		notes     interfaces.NoteRepository
		sequences interfaces.SequenceAllocator
	)
	if cfg.StandaloneMode {
		zlog.Info("standalone mode: in-memory storage and mock authorization")
		store := storage.NewMemoryStore(cfg.Fiscal.FiscalConfig())
		configs, notes, sequences = store, store, store
	} else {
		store, err := storage.NewPostgresStore(ctx, cfg.Database.DSN, zlog)
		if err != nil {
			zlog.Fatal("failed to connect to database", zap.Error(err))
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			zlog.Fatal("failed to apply database schema", zap.Error(err))
		}
		configs, notes, sequences = store, store, store
	}

	em := emitter.New(emitter.Options{
		Config:    cfg,
		Configs:   configs,
		Notes:     notes,
		Sequences: sequences,
		QR:        qr.NewRenderer(),
		Logger:    zlog,
	})

	handler := handlers.New(em, zlog)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zlog.Info("starting fiscal note service",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("standalone", cfg.StandaloneMode))

	if err := router.Run(addr); err != nil {
		zlog.Fatal("server terminated", zap.Error(err))
	}
}
