package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"mbti-story/internal/metrics"
)

// RouterConfig agrupa los handlers y middlewares del API.
type RouterConfig struct {
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string
	// ServiceName activa otelgin cuando no esta vacio.
	ServiceName string

	Chat   *ChatHandler
	Result *ResultHandler
	Image  *ImageHandler
	Health *HealthHandler
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), zapLoggerMiddleware(logger), metricsMiddleware(cfg.Metrics), corsMiddleware(cfg.CORSOrigins))
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}

	r.GET("/healthz", cfg.Health.Healthz)
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	r.POST("/session", cfg.Chat.CreateSession)
	r.POST("/chat", cfg.Chat.PostMessage)

	r.GET("/result", cfg.Result.GetResult)
	r.GET("/result/:id", cfg.Result.GetResultByID)
	r.GET("/questions/detail", cfg.Result.Questions)
	r.POST("/diagnose/detail", cfg.Result.DiagnoseDetail)
	r.GET("/detail/:id", cfg.Result.GetDetailByID)

	history := r.Group("/history")
	history.GET("/mbti", cfg.Result.HistoryMBTI)
	history.GET("/detail", cfg.Result.HistoryDetail)

	image := r.Group("/image")
	image.GET("/avatar", cfg.Image.Avatar)
	image.GET("/scene", cfg.Image.Scene)
	image.GET("/progress", cfg.Image.Progress)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware registra cada respuesta usando la ruta del router como label.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveHTTP(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cors.New(cfg)
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}
