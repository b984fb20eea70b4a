package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"store-gateway/internal/account"
	"store-gateway/internal/db"
	"store-gateway/internal/gate"
	"store-gateway/internal/maintenance"
	"store-gateway/internal/observability"
	"store-gateway/internal/session"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	redisURL, err := mustEnv("REDIS_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOptions)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		_ = database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	sessions := session.NewStore(redisClient, envHoursOrDefault("SESSION_TTL_HOURS", 168))

	accountRepo := account.NewRepository(database)
	accountService := account.NewService(accountRepo, sessions, logger)
	accountService.WithSecurityConfig(
		envIntOrDefault("SIGNIN_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("SIGNIN_LOCK_MINUTES", 15),
	)
	accountHandler := account.NewHandler(accountService, sessions)

	if err := bootstrapAdmin(accountRepo, os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		_ = database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	cleanupHandler := maintenance.NewCleanupHandler(
		accountRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("SIGNIN_ATTEMPT_RETENTION_DAYS", 30),
		envIntOrDefault("MAINTENANCE_BATCH_SIZE", 500),
	)

	signInLimiter := account.NewSignInRateLimiter(
		envIntOrDefault("SIGNIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("SIGNIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	routeGate := gate.New(sessions, accountRepo, logger, metrics)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, next))
	})

	router.Get("/health", healthHandler(database, redisClient))
	router.Method(http.MethodGet, "/metrics", observability.MetricsHandler(registry))
	router.Get("/internal/maintenance/cleanup", cleanupHandler.Handle)
	router.Post("/internal/maintenance/cleanup", cleanupHandler.Handle)

	router.Route("/api", func(r chi.Router) {
		r.Use(account.ServiceTokenMiddleware(jwtSecret))
		r.Post("/users/{id}/ban", accountHandler.Ban)
		r.Delete("/users/{id}/ban", accountHandler.Unban)
	})

	router.Group(func(r chi.Router) {
		r.Use(routeGate.Middleware)
		r.Get("/", pageHandler("home"))
		r.Get("/sign-in", accountHandler.SignInPage)
		r.Get("/sign-up", accountHandler.SignUpPage)
		r.With(signInLimiter.Middleware).Post("/sign-in", accountHandler.SignIn)
		r.Post("/sign-out", accountHandler.SignOut)
		r.Get("/dashboard", pageHandler("dashboard"))
		r.Get("/dashboard/*", pageHandler("dashboard"))
	})

	return &Runtime{
		Handler: router,
		Close: func() error {
			observability.FlushSentry()
			_ = redisClient.Close()
			return database.Close()
		},
	}, nil
}

func bootstrapAdmin(repo *account.Repository, adminEmail, adminPassword string) error {
	adminEmail = strings.TrimSpace(strings.ToLower(adminEmail))
	adminPassword = strings.TrimSpace(adminPassword)

	if adminEmail == "" && adminPassword == "" {
		return nil
	}
	if adminEmail == "" || adminPassword == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	return repo.UpsertAdminUser(context.Background(), adminEmail, adminPassword)
}

// pageHandler stands in for the admin UI routes the gate fronts. The real
// screens are rendered by the storefront; the gateway only decides access.
func pageHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"page": name})
	}
}

func healthHandler(database *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		} else if err := redisClient.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
