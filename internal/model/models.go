// Package model defines the data models for the scorecard bot.
package model

import "time"

// Game is a stored game definition. Definition holds the raw JSON document as
// produced by the authoring pipeline; it is parsed on demand and never
// rewritten.
type Game struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	Definition []byte    `db:"definition"`
	CreatedBy  int64     `db:"created_by"`
	CreatedAt  time.Time `db:"created_at"`
}

// Session statuses. A session moves in_progress → complete exactly once;
// abandoned is a manual exit.
const (
	SessionInProgress = "in_progress"
	SessionComplete   = "complete"
	SessionAbandoned  = "abandoned"
)

// Session is one play-through of a game in a chat. Totals maps playerID to
// cumulative score and always carries an entry per player. Result holds the
// serialized win-check result once the session completes.
type Session struct {
	ID           int64              `db:"id"`
	ChatID       int64              `db:"chat_id"`
	GameID       int64              `db:"game_id"`
	Status       string             `db:"status"`
	CurrentRound int                `db:"current_round"`
	PlayerIDs    []string           `db:"player_ids"`
	Totals       map[string]float64 `db:"totals"`
	Result       []byte             `db:"result"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
}

// SessionRound is one committed round: the raw submitted data and the scores
// it produced.
type SessionRound struct {
	ID          int64              `db:"id"`
	SessionID   int64              `db:"session_id"`
	RoundNumber int                `db:"round_number"`
	Data        []byte             `db:"data"`
	Scores      map[string]float64 `db:"scores"`
	CreatedAt   time.Time          `db:"created_at"`
}
