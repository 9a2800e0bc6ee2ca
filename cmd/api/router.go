package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-pricing/internal/catalog"
	"github.com/noah-isme/checkout-pricing/internal/checkout"
	"github.com/noah-isme/checkout-pricing/internal/common"
	"github.com/noah-isme/checkout-pricing/internal/config"
	"github.com/noah-isme/checkout-pricing/internal/health"
	"github.com/noah-isme/checkout-pricing/internal/obs"
	"github.com/noah-isme/checkout-pricing/internal/ratelimit"
	"github.com/noah-isme/checkout-pricing/internal/security"
)

type routerDeps struct {
	cfg         *config.Config
	logger      zerolog.Logger
	catalog     *catalog.Service
	checkout    *checkout.Service
	redis       *redis.Client
	httpMetrics *obs.HTTPMetrics
	metrics     http.Handler
	tracing     bool
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(security.Headers{Enable: d.cfg.SecurityHeaders, EnableHSTS: d.cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders:   []string{"Location", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if d.metrics != nil {
		r.Handle("/metrics", d.metrics)
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{Redis: d.redis, Loaded: d.catalog.Loaded},
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: d.catalog})
	checkoutHandler := checkout.NewHandler(d.checkout)

	var scanGuards []func(http.Handler) http.Handler
	if d.redis != nil {
		idem := common.Idem{R: d.redis, TTL: d.cfg.IdempotencyTTL}
		scanGuards = append(scanGuards, idem.Middleware)
		if d.cfg.ScanRateLimitMax > 0 {
			limiter := ratelimit.Handler{
				Limiter: ratelimit.Limiter{Client: d.redis, Prefix: "rl:"},
				Config: ratelimit.Config{
					Key:    ratelimit.SessionKey(obs.SessionParam),
					Window: d.cfg.ScanRateLimitWindow,
					Max:    d.cfg.ScanRateLimitMax,
				},
				OnError: func(err error) { d.logger.Warn().Err(err).Msg("scan rate limiter unavailable") },
			}
			scanGuards = append([]func(http.Handler) http.Handler{limiter.Middleware}, scanGuards...)
		}
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/catalog", func(c chi.Router) {
			c.Get("/items", catalogHandler.List)
			c.Group(func(admin chi.Router) {
				admin.Use(security.AdminToken{Token: d.cfg.AdminToken}.Middleware)
				admin.Use(security.BodyLimit{Max: d.cfg.MaxBodyBytes}.Middleware)
				admin.Put("/items/{id}", catalogHandler.Put)
				admin.Post("/", catalogHandler.Replace)
			})
		})
		v.Route("/checkouts", func(c chi.Router) {
			c.Use(security.BodyLimit{Max: d.cfg.MaxBodyBytes}.Middleware)
			checkoutHandler.Routes(c, scanGuards...)
		})
	})
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
