package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pasteor/cfg"
	"pasteor/metrics"
	"pasteor/svc/api"
	"pasteor/svc/auth"
	"pasteor/svc/cache"
	"pasteor/svc/db"
	"pasteor/svc/svc"
	"pasteor/svc/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dbPath := os.Getenv("DATABASE_PATH")
		if dbPath == "" {
			dbPath = "pasteor.db"
		}

		sqlDB, err := db.NewSQLite(dbPath)
		if err != nil {
			os.Exit(1)
		}
		defer sqlDB.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 1*time.Second)
		defer pingCancel()
		if err := sqlDB.DB().PingContext(pingCtx); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Bootstrap logger so config load failures are visible; replaced
	// once the configured level is known.
	util.InitLog("info", false)
	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting pasteor API")
	metrics.Init()

	sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize database")
		os.Exit(1)
	}
	defer sqlDB.Close()
	util.Info().Str("path", c.DatabasePath).Msg("database initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("CRITICAL: Redis required in production")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	userCache, err := cache.NewUsers(c.UserCacheSize, c.UserCacheTTL)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create user cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.UserCacheSize).Msg("user cache initialized")

	tokens, err := auth.NewTokens([]byte(c.TokenSecret.Value()), c.TokenTTL)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize token signer")
		os.Exit(1)
	}
	authSvc := auth.NewService(sqlDB, tokens, userCache)

	services := api.Services{
		Paste:    svc.NewPaste(sqlDB, rdb, userCache, c),
		Comments: svc.NewComment(sqlDB, userCache),
		Stats:    svc.NewStats(sqlDB, rdb, userCache, c),
		Auth:     authSvc,
	}
	server := api.NewServer(c, services, sqlDB, rdb)

	quitWAL := make(chan struct{})
	go db.StartWALMaintenance(sqlDB.DB(), quitWAL)
	util.Info().Msg("WAL maintenance worker started")

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	close(quitWAL)
	util.Info().Msg("shutdown complete")
}
