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

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/teachme/backend/internal/auth"
	"github.com/teachme/backend/internal/config"
	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/gamification"
	"github.com/teachme/backend/internal/logger"
	"github.com/teachme/backend/internal/metrics"
	"github.com/teachme/backend/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(ctx, database.Options{
		Type: cfg.DatabaseType,
		URL:  cfg.DatabaseURL,
		Path: cfg.DatabasePath,
	})
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	catalog, err := gamification.LoadCatalog(cfg.AchievementCatalog)
	if err != nil {
		log.Fatal("failed to load achievement catalog", "path", cfg.AchievementCatalog, "error", err)
	}
	if err := gamification.SeedCatalog(ctx, db, catalog); err != nil {
		log.Fatal("failed to seed achievement catalog", "error", err)
	}

	// Leaderboards fall back to uncached projection without Redis.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = gamification.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, leaderboard cache disabled", "addr", cfg.RedisAddr, "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	m := metrics.New()
	svc := gamification.NewService(gamification.Deps{
		DB:      db,
		Log:     log,
		Cache:   rdb,
		Metrics: m,
	}, gamification.Config{
		TxMaxRetries:        cfg.TxMaxRetries,
		DailyLoginXP:        cfg.DailyLoginXP,
		LessonCompletionXP:  cfg.LessonCompletionXP,
		LeaderboardCacheTTL: cfg.LeaderboardCacheTTL,
	})

	boards := make([]gamification.LeaderboardQuery, 0, len(cfg.LeaderboardSnapshots))
	for _, spec := range cfg.LeaderboardSnapshots {
		q, err := gamification.ParseBoardSpec(spec)
		if err != nil {
			log.Fatal("invalid LEADERBOARD_SNAPSHOTS entry", "board", spec, "error", err)
		}
		boards = append(boards, q)
	}

	// Initialize handlers
	tokens := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(db, tokens, log)
	gamificationHandler := gamification.NewHandler(svc)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log, m))
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(tokens.Authenticate)
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	gamificationHandler.RegisterRoutes(protected)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		svc.StartSnapshotWorker(gctx, boards, cfg.SnapshotInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
