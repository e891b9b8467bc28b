// Package main is the entry point for the scorecard bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scorecard-bot/internal/bot"
	"scorecard-bot/internal/config"
	"scorecard-bot/internal/engine/expr"
	"scorecard-bot/internal/engine/scoring"
	"scorecard-bot/internal/engine/validation"
	"scorecard-bot/internal/engine/wincheck"
	"scorecard-bot/internal/pkg/db"
	"scorecard-bot/internal/repository"
	"scorecard-bot/internal/session"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	gameRepo := repository.NewGameRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)

	// Initialize the formula evaluator and the engines on top of it
	evaluator := expr.NewEvaluator(expr.Limits{
		Timeout:  cfg.Engine.EvalTimeout,
		MaxSteps: cfg.Engine.MaxSteps,
	})
	scoringEngine := scoring.New(evaluator)
	validator := validation.New(evaluator)
	resolver := wincheck.New(evaluator)

	controller := session.NewController(
		gameRepo,
		sessionRepo,
		scoringEngine,
		validator,
		resolver,
		session.Config{MaxPlayers: cfg.Session.MaxPlayers},
	)

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:     cfg,
		Controller: controller,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create games table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS games (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			definition JSONB NOT NULL,
			created_by BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: games table created")

	// Migration 2: Create sessions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			game_id BIGINT NOT NULL REFERENCES games(id),
			status VARCHAR(20) NOT NULL,
			current_round INT NOT NULL DEFAULT 1,
			player_ids TEXT[] NOT NULL,
			totals JSONB NOT NULL,
			result JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_chat
			ON sessions(chat_id) WHERE status = 'in_progress';
		CREATE INDEX IF NOT EXISTS idx_sessions_chat_time ON sessions(chat_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: sessions table created")

	// Migration 3: Create session_rounds table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_rounds (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			round_number INT NOT NULL,
			data JSONB NOT NULL,
			scores JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (session_id, round_number)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: session_rounds table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
