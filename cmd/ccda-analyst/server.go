package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/openclinical/ccda-analyst/internal/config"
	"github.com/openclinical/ccda-analyst/internal/domain/record"
	"github.com/openclinical/ccda-analyst/internal/platform/assistant"
	"github.com/openclinical/ccda-analyst/internal/platform/auth"
	"github.com/openclinical/ccda-analyst/internal/platform/ccda"
	"github.com/openclinical/ccda-analyst/internal/platform/db"
	"github.com/openclinical/ccda-analyst/internal/platform/hipaa"
	"github.com/openclinical/ccda-analyst/internal/platform/middleware"
)

const version = "0.1.0"

const jsonBodyLimit = 1 << 20

// accessLog stores and lists PHI access entries.
type accessLog interface {
	hipaa.Recorder
	hipaa.Lister
}

// newServer builds the echo instance with all middleware and routes. The
// pool is only dereferenced when a request reaches the database.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, access accessLog) (*echo.Echo, error) {
	uploadLimit, err := config.ParseSize(cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(jsonBodyLimit, uploadLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Auth runs inside the access audit so rejected requests are logged too.
	jwtCfg := auth.JWTConfig{
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(hipaa.AccessAudit(access, logger))
	apiV1.Use(authMW)

	flattener := ccda.NewFlattener()
	ccda.NewHandler(flattener).RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleReader, auth.RoleClinician)))

	withTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	recordSvc := record.NewService(record.NewRepo(pool), flattener, withTx)

	ollama, err := assistant.NewOllamaClient(assistant.OllamaConfig{
		BaseURL:     cfg.OllamaURL,
		Model:       cfg.ModelName,
		NumCtx:      cfg.ModelNumCtx,
		Temperature: cfg.ModelTemperature,
		Timeout:     cfg.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}
	chat := assistant.New(ollama, assistant.NewStore(), logger.With().Str("component", "assistant").Logger())

	askLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.AskRateLimit,
		BurstSize:         cfg.AskRateBurst,
		KeyFunc:           askRateKey,
	})
	record.NewHandler(recordSvc, chat).RegisterRoutes(apiV1, askLimit)
	hipaa.NewHandler(access).RegisterRoutes(apiV1)

	return e, nil
}

// askRateKey throttles authenticated callers per user and anonymous ones
// per client address.
func askRateKey(c echo.Context) string {
	if id := auth.UserIDFromContext(c.Request().Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + c.RealIP()
}
