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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mbti-story/internal/config"
	"mbti-story/internal/db"
	apihttp "mbti-story/internal/http"
	"mbti-story/internal/imagegen"
	"mbti-story/internal/llm"
	"mbti-story/internal/metrics"
	"mbti-story/internal/observability"
	"mbti-story/internal/repository"
	"mbti-story/internal/scoring"
	"mbti-story/internal/service"
)

const imageProgressTTL = 30 * time.Minute

type storage struct {
	mode     string
	sessions repository.SessionRepository
	results  repository.ResultRepository
	ping     apihttp.Pinger
	close    func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	shutdownTracing, err := observability.Init(ctx, logger, observability.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
	})
	if err != nil {
		logger.Warn("tracing init failed", zap.Error(err))
	}

	m := metrics.New(metrics.WithRuntimeCollectors())

	store := openStorage(ctx, cfg, logger)
	defer store.close()

	checks := map[string]apihttp.Pinger{}
	if store.ping != nil {
		checks["database"] = store.ping
	}

	var progress imagegen.ProgressStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, image progress stays in memory", zap.Error(err))
		} else {
			progress = imagegen.NewRedisProgressStore(redisClient, imageProgressTTL)
			checks["redis"] = apihttp.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
		}
		cancel()
	}
	if progress == nil {
		progress = imagegen.NewMemoryProgressStore(imageProgressTTL)
	}

	providers := llm.BuildProviders(llm.ChainConfig{
		PreferredProvider: cfg.WebLLMProvider,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		GeminiModel:       cfg.GeminiModel,
		GeminiBaseURL:     cfg.GeminiBaseURL,
		GroqAPIKey:        cfg.GroqAPIKey,
		GroqModel:         cfg.GroqModel,
		GroqBaseURL:       cfg.GroqBaseURL,
		LocalBaseURL:      cfg.LocalLLMBaseURL,
		LocalModel:        cfg.LLMModel,
		DisableLocal:      cfg.DisableLocalLLM,
	}, logger)
	chain := llm.NewChain(providers, logger, m)
	logger.Info("llm chain ready", zap.Any("providers", chain.Names()))

	var imageProvider service.ImageGenerator
	if cfg.HordeEnabled() {
		imageProvider = imagegen.NewHordeClient(imagegen.HordeConfig{
			BaseURL: cfg.StableHordeURL,
			APIKey:  cfg.StableHordeAPIKey,
			Models:  cfg.StableHordeModels,
			Timeout: cfg.ImageTimeout,
		}, progress, logger)
		logger.Info("image provider enabled", zap.String("provider", cfg.ImageProvider))
	}

	sessionSvc := service.NewSessionService(store.sessions, logger)
	chatSvc := service.NewChatService(sessionSvc, chain, m, logger)
	resultSvc := service.NewResultService(sessionSvc, store.results, chain, m, logger)
	detailSvc := service.NewDetailService(scoring.DefaultCatalog(), sessionSvc, store.results, chain, m, logger)
	imageSvc := service.NewImageService(store.results, imageProvider, progress, m, logger)

	serviceName := ""
	if cfg.OTelEnabled {
		serviceName = cfg.OTelServiceName
	}
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Logger:      logger,
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
		ServiceName: serviceName,
		Chat:        apihttp.NewChatHandler(logger, sessionSvc, chatSvc),
		Result:      apihttp.NewResultHandler(logger, resultSvc, detailSvc),
		Image:       apihttp.NewImageHandler(logger, imageSvc, progress),
		Health:      apihttp.NewHealthHandler(logger, store.mode, checks),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		if shutdownTracing != nil {
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown", zap.Error(err))
			}
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("storage", store.mode))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openStorage elige Postgres, luego SQLite y por ultimo memoria (modo degradado).
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage {
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err == nil {
			err = db.Ping(ctx, pool)
			if err == nil {
				err = db.EnsurePgSchema(ctx, pool)
			}
			if err == nil {
				return storage{
					mode:     "postgres",
					sessions: repository.NewPgSessionRepository(pool),
					results:  repository.NewPgResultRepository(pool),
					ping:     apihttp.PingFunc(pool.Ping),
					close:    pool.Close,
				}
			}
			pool.Close()
		}
		logger.Warn("postgres unavailable", zap.Error(err))
	}

	if cfg.SQLitePath != "" {
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err == nil {
			return storage{
				mode:     "sqlite",
				sessions: repository.NewSQLiteSessionRepository(conn),
				results:  repository.NewSQLiteResultRepository(conn),
				ping:     apihttp.PingFunc(conn.PingContext),
				close:    func() { _ = conn.Close() },
			}
		}
		logger.Warn("sqlite unavailable", zap.String("path", cfg.SQLitePath), zap.Error(err))
	}

	logger.Warn("no database reachable, running in degraded in-memory mode")
	return storage{
		mode:     "memory",
		sessions: repository.NewMemorySessionRepository(),
		results:  repository.NewMemoryResultRepository(),
		close:    func() {},
	}
}
