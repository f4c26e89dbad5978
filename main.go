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

	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mindagrowAPI/config"
	"mindagrowAPI/handlers"
	"mindagrowAPI/internal/cache"
	"mindagrowAPI/internal/schedule"
	"mindagrowAPI/middleware"
	"mindagrowAPI/pkg/logger"
	"mindagrowAPI/repository"
	"mindagrowAPI/services"
	"mindagrowAPI/storage/postgres"
	"mindagrowAPI/storage/redis"

	_ "net/http/pprof"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.Cfg

	zl := logger.Init(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		zl.Info("Closing database connection pool...")
		dbPool.Close()
	}()
	zl.Info("Successfully connected to Postgres")

	if cfg.DBAutoMigrate {
		if err := postgres.Migrate(ctx, dbPool, "up", zl); err != nil {
			zl.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// Redis backs the leaderboard cache and the job locks. The API still serves without it.
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redis.NewClient(ctx, cfg)
		if err != nil {
			zl.Warn("Redis unavailable, continuing without cache and job locks", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	repo := repository.NewEngagementRepository(dbPool)

	missionOpts := []services.MissionOption{
		services.WithRetryPolicy(services.RetryPolicy{
			MaxTries:        cfg.RetryMaxTries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
		}),
	}
	schedOpts := []schedule.Option{}
	var lbCache services.LeaderboardCache
	if rdb != nil {
		c := cache.NewLeaderboardCache(rdb, cfg.RedisPrefix, cache.DefaultLeaderboardTTL)
		lbCache = c
		missionOpts = append(missionOpts, services.WithLeaderboardInvalidator(c))
		schedOpts = append(schedOpts, schedule.WithLocker(cache.NewJobLock(rdb, cfg.RedisPrefix)))
	}
	if cfg.IsDevelopment() {
		schedOpts = append(schedOpts, schedule.WithFixedInterval(time.Minute))
	}

	missionService := services.NewMissionService(repo, zl.Named("missions"), missionOpts...)
	engagementService := services.NewEngagementService(repo, lbCache, zl.Named("engagement"), time.Now,
		services.WithMissionCompleter(missionService),
	)

	scheduler := schedule.New(zl.Named("scheduler"), cfg.JobTimeout, schedOpts...)
	if err := schedule.RegisterMaintenanceJobs(scheduler, missionService, cfg); err != nil {
		zl.Fatal("Failed to register maintenance jobs", zap.Error(err))
	}

	middleware.InitPrometheus(prometheus.DefaultRegisterer)
	services.RegisterMetrics(prometheus.DefaultRegisterer)
	schedule.RegisterMetrics(prometheus.DefaultRegisterer)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, middleware.WithTrustedProxy(cfg.TrustProxy))
	go limiter.CleanupVisitors(ctx)

	r := newRouter(cfg, routerDeps{
		health:     handlers.NewHealthHandler(dbPool, cfg.ServiceName),
		engagement: handlers.NewEngagementHandler(missionService, engagementService, zl.Named("http")),
		admin:      handlers.NewAdminHandler(scheduler, missionService, zl.Named("admin")),
		limiter:    limiter,
	})

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins(cfg.CORSOrigins),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.JobTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.SchedulerEnabled {
		scheduler.Start(ctx)
	} else {
		zl.Info("Scheduler disabled; jobs run only through the admin API")
	}

	go func() {
		zl.Info("Starting server", zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Error starting server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}
	scheduler.Wait()

	zl.Info("Server shutdown complete")
}

type routerDeps struct {
	health     *handlers.HealthHandler
	engagement *handlers.EngagementHandler
	admin      *handlers.AdminHandler
	limiter    *middleware.RateLimiter
}

func newRouter(cfg config.Config, d routerDeps) *mux.Router {
	r := mux.NewRouter()

	standardRouter := r.PathPrefix("/").Subrouter()
	if cfg.RateLimitEnabled && d.limiter != nil {
		standardRouter.Use(d.limiter.Middleware)
	}
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware("Metrics", cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))
	standardRouter.HandleFunc("/health", d.health.Health).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.BasicAuthMiddleware("Admin", cfg.AdminUser, cfg.AdminPass))

	admin.HandleFunc("/jobs", d.admin.ListJobs).Methods("GET")
	admin.HandleFunc("/jobs/{job}", d.admin.RunJob).Methods("POST")
	admin.HandleFunc("/users/{userID}/auto-complete", d.admin.AutoCompleteForUser).Methods("POST")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))

	protected.HandleFunc("/missions/daily", d.engagement.GetDailyMissions).Methods("GET")
	protected.HandleFunc("/missions/auto-complete", d.engagement.AutoCompleteMissions).Methods("POST")
	protected.HandleFunc("/missions/suggestions", d.engagement.GetSuggestions).Methods("GET")
	protected.HandleFunc("/streak", d.engagement.GetStreak).Methods("GET")
	protected.HandleFunc("/activity", d.engagement.RecordActivity).Methods("POST")
	protected.HandleFunc("/leaderboard", d.engagement.GetLeaderboard).Methods("GET")
	protected.HandleFunc("/level", d.engagement.GetLevel).Methods("GET")
	protected.HandleFunc("/games/progress", d.engagement.GetGameProgress).Methods("GET")
	protected.HandleFunc("/games/{gameKey}/sessions", d.engagement.SubmitGameSession).Methods("POST")

	return r
}
