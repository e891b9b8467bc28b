// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scorecard-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrGameNotFound    = errors.New("game not found")
	ErrSessionNotFound = errors.New("session not found")
)

// GameRepository handles game definition persistence.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

// Create stores a new game definition under a unique name.
func (r *GameRepository) Create(ctx context.Context, name string, definition []byte, createdBy int64) (*model.Game, error) {
	const query = `
		INSERT INTO games (name, definition, created_by, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, name, definition, created_by, created_at
	`

	var game model.Game
	err := r.pool.QueryRow(ctx, query, name, definition, createdBy).Scan(
		&game.ID,
		&game.Name,
		&game.Definition,
		&game.CreatedBy,
		&game.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	return &game, nil
}

// GetByID retrieves a game by its ID.
// Returns ErrGameNotFound if the game does not exist.
func (r *GameRepository) GetByID(ctx context.Context, id int64) (*model.Game, error) {
	const query = `
		SELECT id, name, definition, created_by, created_at
		FROM games
		WHERE id = $1
	`
	return r.scanGame(r.pool.QueryRow(ctx, query, id))
}

// GetByName retrieves a game by its unique name.
// Returns ErrGameNotFound if the game does not exist.
func (r *GameRepository) GetByName(ctx context.Context, name string) (*model.Game, error) {
	const query = `
		SELECT id, name, definition, created_by, created_at
		FROM games
		WHERE name = $1
	`
	return r.scanGame(r.pool.QueryRow(ctx, query, name))
}

// List retrieves up to limit games, newest first.
func (r *GameRepository) List(ctx context.Context, limit int) ([]*model.Game, error) {
	const query = `
		SELECT id, name, definition, created_by, created_at
		FROM games
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		var game model.Game
		err := rows.Scan(&game.ID, &game.Name, &game.Definition, &game.CreatedBy, &game.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, &game)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}

func (r *GameRepository) scanGame(row pgx.Row) (*model.Game, error) {
	var game model.Game
	err := row.Scan(&game.ID, &game.Name, &game.Definition, &game.CreatedBy, &game.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &game, nil
}
