package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getkayan/accounts/internal/health"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ServerConfig struct {
	Host string
	Port int

	// RatePerSecond and RateBurst bound the requests of one client IP on
	// the API routes.
	RatePerSecond float64
	RateBurst     int

	Logger  *zap.Logger
	Health  *health.Manager
	Metrics http.Handler
}

// NewServer builds the echo instance serving the API under /api/v1, the
// health endpoints and, when set, the metrics handler.
func NewServer(cfg ServerConfig, h *Handler) *echo.Echo {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(requestLogger(cfg.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{fmt.Sprintf("https://%s:%d", cfg.Host, cfg.Port)},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderAccept, echo.HeaderContentType},
		MaxAge:       3600,
	}))

	if cfg.Health != nil {
		e.GET("/healthz", cfg.Health.LiveHandler())
		e.GET("/ready", cfg.Health.ReadyHandler())
		e.GET("/health", cfg.Health.FullHandler())
	}
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	g := e.Group("/api/v1")
	if cfg.RatePerSecond > 0 {
		g.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RatePerSecond),
				Burst:     cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			},
		)))
	}
	h.RegisterRoutes(g)

	return e
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
