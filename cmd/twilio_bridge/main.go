package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/relaysms/twilio-bridge/internal/bridge/app"
	"github.com/relaysms/twilio-bridge/internal/bridge/middleware"
	pgrepo "github.com/relaysms/twilio-bridge/internal/bridge/repository/postgres"
	httptransport "github.com/relaysms/twilio-bridge/internal/bridge/transport/http"
	"github.com/relaysms/twilio-bridge/internal/platform/cache"
	"github.com/relaysms/twilio-bridge/internal/platform/config"
	"github.com/relaysms/twilio-bridge/internal/platform/database"
	"github.com/relaysms/twilio-bridge/internal/platform/logger"
	"github.com/relaysms/twilio-bridge/internal/platform/messagebroker"
	"github.com/relaysms/twilio-bridge/internal/twilio"
)

const serviceName = "twilio_bridge"

const credentialCacheTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Twilio bridge starting...", "port", cfg.ServerPort, "multi_tenant", cfg.MultiTenant)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(rootCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	// Repositories
	messageRepo := pgrepo.NewPgMessageRepository(dbPool, appLogger)
	phoneNumberRepo := pgrepo.NewPgPhoneNumberRepository(dbPool, appLogger)

	// Credential resolution: static account in single-tenant mode, per-number
	// lookup (optionally redis-cached) in multi-tenant mode.
	var credProvider app.CredentialProvider
	if cfg.MultiTenant {
		tenantRepo := pgrepo.NewPgTenantRepository(dbPool, appLogger)
		credProvider = app.NewTenantResolver(tenantRepo, appLogger)
		if cfg.RedisAddr != "" {
			redisClient, err := cache.NewRedisClient(rootCtx, cfg.RedisAddr)
			if err != nil {
				appLogger.Error("Failed to connect to Redis", "error", err)
				os.Exit(1)
			}
			defer redisClient.Close()
			credProvider = app.NewCachedCredentialProvider(credProvider, redisClient, credentialCacheTTL, appLogger)
			appLogger.Info("Credential cache enabled", "addr", cfg.RedisAddr)
		}
	} else {
		credProvider = app.StaticCredentials{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
		}
	}

	// NATS is optional: without it message events stay in-process only.
	var messageOpts []app.MessageServiceOption
	if cfg.NATSURL != "" {
		natsClient, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		appLogger.Info("Connected to NATS", "url", cfg.NATSURL)

		messageOpts = append(messageOpts,
			app.WithIncomingCallback(app.NewNATSCallback(natsClient, app.SubjectIncomingMessage, appLogger)),
			app.WithOutgoingCallback(app.NewNATSCallback(natsClient, app.SubjectOutgoingMessage, appLogger)),
			app.WithEventPublisher(natsClient),
		)
	}

	twilioClient := twilio.NewClient(appLogger, &http.Client{Timeout: 30 * time.Second})

	statusCallbackURL := cfg.WebhookURL("/message-status")
	incomingMessageURL := cfg.WebhookURL("/incoming-message")

	messageService := app.NewMessageService(
		messageRepo,
		twilioClient,
		credProvider,
		cfg.TwilioDefaultFrom,
		statusCallbackURL,
		appLogger,
		messageOpts...,
	)
	phoneNumberService := app.NewPhoneNumberService(
		phoneNumberRepo,
		twilioClient,
		credProvider,
		incomingMessageURL,
		appLogger,
	)

	validate := validator.New()
	webhookHandler := httptransport.NewWebhookHandler(
		messageService,
		credProvider,
		cfg.ValidateSignatures,
		statusCallbackURL,
		incomingMessageURL,
		appLogger,
	)
	apiHandler := httptransport.NewAPIHandler(messageService, phoneNumberService, cfg.TwilioAccountSID, validate, appLogger)
	authMW := middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(httptransport.PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "twilio bridge is healthy"})
	})

	// Twilio webhook callbacks, authenticated by request signature rather
	// than by JWT.
	r.Route(cfg.HTTPPrefix, func(hookRouter chi.Router) {
		hookRouter.Post("/message-status", webhookHandler.HandleMessageStatus)
		hookRouter.Post("/incoming-message", webhookHandler.HandleIncomingMessage)
	})

	r.Route("/api/v1", func(v1Router chi.Router) {
		v1Router.Use(authMW)
		apiHandler.RegisterRoutes(v1Router)
	})

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ServerPort), Handler: r}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: metricsMux}

	g, gCtx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("HTTP server listening on port %d", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("Metrics server listening on port %d", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, shutting down HTTP servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Twilio bridge shut down gracefully.")
}
