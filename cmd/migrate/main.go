// Command migrate creates the pgvector schema used for question search.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/config"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/embed"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := embed.NewPGStore(ctx, cfg.DatabaseURL, cfg.EmbedDim)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	log.Info("schema ready", zap.Int("dim", cfg.EmbedDim), zap.Int("statements", len(embed.Schema(cfg.EmbedDim))))
	return nil
}
