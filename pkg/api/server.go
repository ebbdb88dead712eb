package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Options configures the query server
type Options struct {
	Address         string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the options used by "mmsb serve"
func DefaultOptions() Options {
	return Options{
		Address:         ":8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// SetupRoutes registers the read-only run endpoints under /api/v1
func SetupRoutes(router *mux.Router, handlers *Handlers) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	runs := api.PathPrefix("/runs").Subrouter()
	runs.HandleFunc("", handlers.ListRuns).Methods("GET")
	runs.HandleFunc("/latest", handlers.GetLatestRun).Methods("GET")
	runs.HandleFunc("/{runId}", handlers.GetRun).Methods("GET")
	runs.HandleFunc("/{runId}/nodes/{node:[0-9]+}", handlers.GetMembership).Methods("GET")
	runs.HandleFunc("/{runId}/communities/{community:[0-9]+}/members", handlers.GetCommunityMembers).Methods("GET")
}

// NewHandler builds the complete HTTP handler: routes, request logging,
// panic recovery and CORS
func NewHandler(store Snapshots, opts Options, logger zerolog.Logger) http.Handler {
	router := mux.NewRouter()
	SetupRoutes(router, NewHandlers(store, logger))
	router.Use(loggingMiddleware(logger))
	router.Use(recoveryMiddleware(logger))

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

// Serve answers requests on opts.Address until ctx is done, then shuts down
// gracefully
func Serve(ctx context.Context, store Snapshots, opts Options, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:         opts.Address,
		Handler:      NewHandler(store, opts, logger),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", opts.Address).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	return nil
}
