package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scorecard-bot/internal/model"
)

// ErrActiveSessionExists is returned when a chat already has a session in
// progress.
var ErrActiveSessionExists = errors.New("chat already has an active session")

// SessionRepository handles play-session persistence.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create starts a new session for a chat. At most one session per chat may be
// in progress; the check and insert run in a single transaction.
func (r *SessionRepository) Create(ctx context.Context, chatID, gameID int64, playerIDs []string, totals map[string]float64) (*model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const existsQuery = `
		SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE chat_id = $1 AND status = $2
		)
	`

	var exists bool
	if err := tx.QueryRow(ctx, existsQuery, chatID, model.SessionInProgress).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if exists {
		return nil, ErrActiveSessionExists
	}

	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal totals: %w", err)
	}

	const insertQuery = `
		INSERT INTO sessions (chat_id, game_id, status, current_round, player_ids, totals, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, NOW(), NOW())
		RETURNING id, chat_id, game_id, status, current_round, player_ids, totals, result, created_at, updated_at
	`

	session, err := scanSession(tx.QueryRow(ctx, insertQuery, chatID, gameID, model.SessionInProgress, playerIDs, totalsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return session, nil
}

// GetByID retrieves a session by its ID.
// Returns ErrSessionNotFound if the session does not exist.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	const query = `
		SELECT id, chat_id, game_id, status, current_round, player_ids, totals, result, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetActiveByChat retrieves the in-progress session for a chat.
// Returns ErrSessionNotFound if the chat has no active session.
func (r *SessionRepository) GetActiveByChat(ctx context.Context, chatID int64) (*model.Session, error) {
	const query = `
		SELECT id, chat_id, game_id, status, current_round, player_ids, totals, result, created_at, updated_at
		FROM sessions
		WHERE chat_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	session, err := scanSession(r.pool.QueryRow(ctx, query, chatID, model.SessionInProgress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return session, nil
}

// UpdateProgress advances the session to the next round with updated totals.
func (r *SessionRepository) UpdateProgress(ctx context.Context, id int64, currentRound int, totals map[string]float64) error {
	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("failed to marshal totals: %w", err)
	}

	const query = `
		UPDATE sessions
		SET current_round = $2, totals = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`

	tag, err := r.pool.Exec(ctx, query, id, currentRound, totalsJSON, model.SessionInProgress)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Complete marks the session as finished with its final totals and win result.
func (r *SessionRepository) Complete(ctx context.Context, id int64, totals map[string]float64, result []byte) error {
	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("failed to marshal totals: %w", err)
	}

	const query = `
		UPDATE sessions
		SET status = $2, totals = $3, result = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	tag, err := r.pool.Exec(ctx, query, id, model.SessionComplete, totalsJSON, result, model.SessionInProgress)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Abandon marks an in-progress session as abandoned.
func (r *SessionRepository) Abandon(ctx context.Context, id int64) error {
	const query = `
		UPDATE sessions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`

	tag, err := r.pool.Exec(ctx, query, id, model.SessionAbandoned, model.SessionInProgress)
	if err != nil {
		return fmt.Errorf("failed to abandon session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendRound records a committed round for a session.
func (r *SessionRepository) AppendRound(ctx context.Context, sessionID int64, roundNumber int, data []byte, scores map[string]float64) (*model.SessionRound, error) {
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scores: %w", err)
	}

	const query = `
		INSERT INTO session_rounds (session_id, round_number, data, scores, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, session_id, round_number, data, scores, created_at
	`

	var (
		round     model.SessionRound
		rawScores []byte
	)
	err = r.pool.QueryRow(ctx, query, sessionID, roundNumber, data, scoresJSON).Scan(
		&round.ID,
		&round.SessionID,
		&round.RoundNumber,
		&round.Data,
		&rawScores,
		&round.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append round: %w", err)
	}
	if err := json.Unmarshal(rawScores, &round.Scores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round scores: %w", err)
	}

	return &round, nil
}

// ListRounds retrieves all committed rounds for a session in play order.
func (r *SessionRepository) ListRounds(ctx context.Context, sessionID int64) ([]*model.SessionRound, error) {
	const query = `
		SELECT id, session_id, round_number, data, scores, created_at
		FROM session_rounds
		WHERE session_id = $1
		ORDER BY round_number ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*model.SessionRound
	for rows.Next() {
		var (
			round     model.SessionRound
			rawScores []byte
		)
		err := rows.Scan(&round.ID, &round.SessionID, &round.RoundNumber, &round.Data, &rawScores, &round.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		if err := json.Unmarshal(rawScores, &round.Scores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal round scores: %w", err)
		}
		rounds = append(rounds, &round)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}

	return rounds, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		session   model.Session
		rawTotals []byte
	)
	err := row.Scan(
		&session.ID,
		&session.ChatID,
		&session.GameID,
		&session.Status,
		&session.CurrentRound,
		&session.PlayerIDs,
		&rawTotals,
		&session.Result,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawTotals, &session.Totals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal totals: %w", err)
	}
	return &session, nil
}
