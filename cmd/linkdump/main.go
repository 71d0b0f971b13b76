package main

import (
	"context"
	"linkdump/cfg"
	"linkdump/metrics"
	"linkdump/svc/api"
	"linkdump/svc/cache"
	"linkdump/svc/db"
	"linkdump/svc/ident"
	"linkdump/svc/lim"
	"linkdump/svc/svc"
	"linkdump/svc/util"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dbPath := os.Getenv("DATABASE_PATH")
		if dbPath == "" {
			dbPath = "linkdump.db"
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
	util.Info().Msg("starting linkdump API")
	metrics.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
			util.Warn().Err(err).Str("url", util.RedactSecret(c.RedisURL)).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	hasher, err := ident.NewHasher([]byte(c.Pepper.Value()), c.IdentRotationInterval)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize identity hasher")
		os.Exit(1)
	}
	defer hasher.Stop()
	util.Info().Dur("rotation_interval", c.IdentRotationInterval).Msg("identity hasher initialized")

	var resolver *ident.Resolver
	if c.IdentityURL != "" {
		resolver = ident.NewResolver(c.IdentityURL, c.IdentityTimeout)
		util.Info().Str("endpoint", c.IdentityURL).Msg("identity resolver enabled")
	}

	writes := lim.NewWriteWindow(c.RateLimit.WriteLimit, c.RateLimit.WriteWindow)
	util.Info().
		Int("limit", c.RateLimit.WriteLimit).
		Dur("window", c.RateLimit.WriteWindow).
		Msg("write rate window initialized")

	dumpSvc := svc.NewDumps(sqlDB, lruCache, rdb, writes, c)
	util.Info().Msg("dump service initialized")

	limiter := lim.New(c.RateLimit.ReadRPM, c.RateLimit.ReadLocalLimit, rdb, c.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("read_rpm", c.RateLimit.ReadRPM).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("read rate limiter initialized")

	server := api.NewServer(c, dumpSvc, limiter, hasher, resolver, sqlDB, rdb)

	quitWAL := make(chan struct{})
	go db.StartWALMaintenance(sqlDB.DB(), quitWAL)
	util.Info().Msg("WAL maintenance worker started")

	if err := svc.StartCleaner(ctx, sqlDB, c.CleanupInterval); err != nil {
		util.Error().Err(err).Msg("failed to start cleaner")
	} else {
		util.Info().Msg("expired dump cleanup worker started")
	}

	go func() {
		util.Info().Msg("starting pprof server on :6060")
		if err := http.ListenAndServe(":6060", nil); err != nil {
			util.Warn().Err(err).Msg("pprof server failed")
		}
	}()

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
	cancel()
	dumpSvc.Shutdown()
	util.Info().Msg("shutdown complete")
}
