package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/memberhq/be-board-approvals/internal/client"
	"github.com/memberhq/be-board-approvals/internal/config"
	"github.com/memberhq/be-board-approvals/internal/docstore"
	"github.com/memberhq/be-board-approvals/internal/handler"
	"github.com/memberhq/be-board-approvals/internal/middleware"
	"github.com/memberhq/be-board-approvals/internal/repository"
	"github.com/memberhq/be-board-approvals/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	log.Info().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("store_driver", cfg.StoreDriver).
		Msg("Starting board approvals service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize document store")
	}
	defer closeStore()
	log.Info().Msg("Document store ready")

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsConn.Drain()
		log.Info().Str("url", cfg.NATSURL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set, notifications will be dropped")
	}
	notifier := client.NewNotificationPublisher(natsConn, log)

	applicationRepo := repository.NewApplicationRepository(store)
	approvalRepo := repository.NewApprovalRepository(store)
	memberRepo := repository.NewMemberRepository(store)

	applicationService := service.NewApplicationService(applicationRepo, memberRepo, notifier, log)
	boardService := service.NewBoardReviewService(applicationRepo, approvalRepo, notifier, log)

	httpHandler := handler.NewHTTPHandler(applicationService, boardService, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, log))
		httpHandler.Register(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// newStore builds the configured document store backend.
func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (docstore.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRest:
		store := docstore.NewRESTStore(cfg.StoreURL, cfg.StoreAPIKey, log)
		if err := store.Ping(ctx); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.StoreDriverPostgres:
		store, err := docstore.NewPostgresStore(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureCollections(ctx,
			repository.CollectionApplications,
			repository.CollectionApprovals,
			repository.CollectionMembers,
		); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory document store, data will not survive restarts")
		return docstore.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()

	if cfg.Environment == "development" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return log
}
