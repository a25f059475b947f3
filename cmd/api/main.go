// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"librecords/internal/catalog"
	"librecords/internal/circulation"
	"librecords/internal/config"
	"librecords/internal/httpx"
	"librecords/internal/membership"
	"librecords/internal/store"
	"librecords/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    cfg.AppName,
		ServiceVersion: cfg.AppVersion,
		Endpoint:       cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}()

	st, err := store.Open(ctx, store.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}, logger.Named("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.ApplySchema {
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	limiter := httpx.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      routes(cfg, st, logger, limiter),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("driver", cfg.DBDriver),
			zap.Int("max_books_per_reader", cfg.MaxBooksPerReader),
			zap.Int("loan_period_days", cfg.LoanPeriodDays),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func routes(cfg config.Config, st *store.Store, logger *zap.Logger, limiter *httpx.RateLimiter) http.Handler {
	catalogSvc := catalog.NewService(st, logger, nil)
	membershipSvc := membership.NewService(st, logger, nil)
	circulationSvc := circulation.NewService(st, circulation.Policy{
		MaxLoansPerReader: cfg.MaxBooksPerReader,
		LoanDays:          cfg.LoanPeriodDays,
	}, logger, nil)

	catalogHandler := catalog.NewHandler(catalogSvc)
	membershipHandler := membership.NewHandler(membershipSvc)
	circulationHandler := circulation.NewHandler(circulationSvc, circulation.NewProjector(catalogSvc, membershipSvc, nil))

	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(logger.Named("http")))
	r.Use(httpx.Recover)
	r.Use(httpx.Trace)
	r.Use(httpx.CORS())
	r.Use(limiter.Middleware)
	r.Use(middleware.StripSlashes)
	r.NotFound(httpx.NotFound)
	r.MethodNotAllowed(httpx.MethodNotAllowed)

	r.Route("/api", func(r chi.Router) {
		// mounted routers inherit these only from their direct parent
		r.NotFound(httpx.NotFound)
		r.MethodNotAllowed(httpx.MethodNotAllowed)

		r.Get("/health", healthHandler(cfg))
		r.Mount("/books", catalogHandler.BookRoutes())
		r.Mount("/copies", catalogHandler.CopyRoutes())
		r.Mount("/readers", membershipHandler.ReaderRoutes())
		r.Mount("/librarians", membershipHandler.LibrarianRoutes())
		r.Mount("/loans", circulationHandler.LoanRoutes())
	})
	return r
}

func healthHandler(cfg config.Config) http.HandlerFunc {
	body := map[string]any{
		"status":  "healthy",
		"app":     cfg.AppName,
		"version": cfg.AppVersion,
		"endpoints": map[string]string{
			"books":      "/api/books",
			"copies":     "/api/copies",
			"readers":    "/api/readers",
			"librarians": "/api/librarians",
			"loans":      "/api/loans",
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, body)
	}
}
