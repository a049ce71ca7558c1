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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quotecompare/backend/config"
	httpDelivery "github.com/quotecompare/backend/internal/delivery/http"
	"github.com/quotecompare/backend/internal/infrastructure/cache"
	"github.com/quotecompare/backend/internal/infrastructure/gemini"
	"github.com/quotecompare/backend/internal/infrastructure/heuristic"
	"github.com/quotecompare/backend/internal/infrastructure/logging"
	"github.com/quotecompare/backend/internal/infrastructure/metrics"
	"github.com/quotecompare/backend/internal/infrastructure/pdftext"
	"github.com/quotecompare/backend/internal/infrastructure/sqlite"
	"github.com/quotecompare/backend/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		ServiceName: "quotecompare-backend",
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	// numbers go over the wire as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	logger.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("database", cfg.Database.Path).
		Msg("starting quotecompare backend")

	// Initialize infrastructure dependencies
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	memoryCache := cache.NewMemoryCache(10 * time.Minute)
	defer memoryCache.Close()

	geminiClient := gemini.NewClient(gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		BaseURL:           cfg.Gemini.BaseURL,
		Model:             cfg.Gemini.Model,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
	}, logger)
	if geminiClient.HasDefaultKey() {
		logger.Info().Str("model", cfg.Gemini.Model).Msg("gemini extraction configured")
	} else {
		logger.Warn().Msg("no gemini API key configured, uploads without a key use the heuristic extractor")
	}

	reg := metrics.NewRegistry()

	// Initialize usecase layer
	quotations := usecase.NewQuotationService(
		store,
		pdftext.NewReader(),
		geminiClient,
		heuristic.NewExtractor(),
		memoryCache,
		reg,
		usecase.QuotationServiceConfig{
			ExtractionTimeout:    cfg.Extraction.Timeout,
			HeuristicFallback:    cfg.Extraction.HeuristicFallback,
			CacheTTL:             cfg.Cache.TTL,
			DefaultKeyConfigured: geminiClient.HasDefaultKey(),
		},
	)

	handler := httpDelivery.NewHandler(
		quotations,
		usecase.NewComparisonService(store),
		usecase.NewExportService(store),
		store,
		cfg.Extraction.MaxUploadBytes,
	)
	router := httpDelivery.SetupRouter(cfg, handler, logger, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// uploads wait on the extraction service
		WriteTimeout: cfg.Extraction.Timeout + 30*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
