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

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/config"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/embed"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/jobs"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/logging"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/ocr"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/pipeline"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/raster"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "quizproc:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fb, err := buildOCR(cfg, log)
	if err != nil {
		return err
	}
	ix, err := buildIndexer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ix.Close()

	store, err := buildJobStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	s := newServer(cfg, pipeline.New(cfg, fb, ix, log), ix, store, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go s.housekeeping(ctx)

	errc := make(chan error, 1)
	go func() {
		log.Info("quizproc listening",
			zap.String("addr", srv.Addr),
			zap.Int64("max_concurrent", cfg.MaxConcurrentRequests),
			zap.Int64("max_ocr", cfg.MaxOCRConcurrent),
			zap.String("ocr_engine", cfg.OCREngine),
			zap.String("embed_provider", cfg.EmbedProvider),
			zap.Bool("auth", cfg.AuthEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	s.drain(cfg.ShutdownTimeout)
	return nil
}

// buildOCR returns nil when OCR is disabled or the rasterizer is missing.
func buildOCR(cfg config.Config, log *zap.Logger) (*ocr.Fallback, error) {
	engine, err := ocr.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		log.Info("ocr disabled")
		return nil, nil
	}
	pop := raster.NewPoppler(cfg.RasterTimeout)
	if !pop.Available() {
		log.Warn("pdftoppm not found, ocr disabled")
		return nil, nil
	}
	sem := semaphore.NewWeighted(max(cfg.MaxOCRConcurrent, 1))
	return ocr.NewFallback(engine, pop, sem, ocr.Options{
		DPI:           cfg.OCRDPI,
		RetryDPI:      cfg.OCRRetryDPI,
		MinChars:      cfg.OCRMinChars,
		MinConfidence: cfg.OCRMinConfidence,
		MaxPixels:     cfg.OCRMaxPixels,
	}, log.Named("ocr")), nil
}

// buildIndexer returns nil when embeddings are disabled. A configured but
// unreachable database leaves duplicate detection on and search off.
func buildIndexer(ctx context.Context, cfg config.Config, log *zap.Logger) (*embed.Indexer, error) {
	emb, err := embed.New(cfg)
	if err != nil {
		return nil, err
	}
	if emb == nil {
		return nil, nil
	}
	var store embed.Store
	if cfg.DatabaseURL != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := embed.NewPGStore(pctx, cfg.DatabaseURL, emb.Dimension())
		if err != nil {
			log.Warn("vector store unavailable, search disabled", zap.Error(err))
		} else {
			store = pg
		}
	}
	return embed.NewIndexer(emb, store, cfg.DuplicateScore, log.Named("embed")), nil
}

func buildJobStore(ctx context.Context, cfg config.Config, log *zap.Logger) (jobs.Store, error) {
	if cfg.RedisURL == "" {
		return jobs.NewMemory(cfg.JobTTL), nil
	}
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	r, err := jobs.NewRedis(rctx, cfg.RedisURL, cfg.JobTTL)
	if err != nil {
		return nil, err
	}
	log.Info("job status kept in redis")
	return r, nil
}
