// Package session orchestrates the play loop: starting sessions, committing
// rounds, and resolving completion.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"scorecard-bot/internal/engine/evalctx"
	"scorecard-bot/internal/engine/scoring"
	"scorecard-bot/internal/engine/validation"
	"scorecard-bot/internal/engine/wincheck"
	"scorecard-bot/internal/gamedef"
	"scorecard-bot/internal/model"
	"scorecard-bot/internal/pkg/lock"
)

// Common errors for session operations.
var (
	ErrNoActiveSession  = errors.New("no active session in this chat")
	ErrSessionBusy      = errors.New("a round submission is already in progress")
	ErrSessionFinished  = errors.New("all rounds have already been played")
	ErrTooFewPlayers    = errors.New("not enough players for this game")
	ErrTooManyPlayers   = errors.New("too many players for this game")
	ErrInvalidGame      = errors.New("game definition is invalid")
	ErrDuplicatePlayers = errors.New("player names must be unique")
)

// GameStore is the game persistence interface used by the controller.
type GameStore interface {
	Create(ctx context.Context, name string, definition []byte, createdBy int64) (*model.Game, error)
	GetByName(ctx context.Context, name string) (*model.Game, error)
	GetByID(ctx context.Context, id int64) (*model.Game, error)
	List(ctx context.Context, limit int) ([]*model.Game, error)
}

// SessionStore is the session persistence interface used by the controller.
type SessionStore interface {
	Create(ctx context.Context, chatID, gameID int64, playerIDs []string, totals map[string]float64) (*model.Session, error)
	GetActiveByChat(ctx context.Context, chatID int64) (*model.Session, error)
	UpdateProgress(ctx context.Context, id int64, currentRound int, totals map[string]float64) error
	Complete(ctx context.Context, id int64, totals map[string]float64, result []byte) error
	Abandon(ctx context.Context, id int64) error
	AppendRound(ctx context.Context, sessionID int64, roundNumber int, data []byte, scores map[string]float64) (*model.SessionRound, error)
	ListRounds(ctx context.Context, sessionID int64) ([]*model.SessionRound, error)
}

// Config holds controller limits.
type Config struct {
	// MaxPlayers caps the player count regardless of the game's own limit.
	MaxPlayers int
}

// Controller drives game sessions against the engine and the stores.
type Controller struct {
	games     GameStore
	sessions  SessionStore
	scoring   *scoring.Engine
	validator *validation.Engine
	resolver  *wincheck.Resolver
	locks     *lock.SessionLock
	cfg       Config
}

// NewController creates a session controller.
func NewController(games GameStore, sessions SessionStore, sc *scoring.Engine, val *validation.Engine, res *wincheck.Resolver, cfg Config) *Controller {
	return &Controller{
		games:     games,
		sessions:  sessions,
		scoring:   sc,
		validator: val,
		resolver:  res,
		locks:     lock.NewSessionLock(),
		cfg:       cfg,
	}
}

// RegisterGame validates a raw game definition and stores it under name.
// Definition errors are returned joined so the author sees all of them at
// once.
func (c *Controller) RegisterGame(ctx context.Context, name string, raw []byte, createdBy int64) (*model.Game, error) {
	def, err := gamedef.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGame, err)
	}

	if errs := gamedef.Validate(def); len(errs) > 0 {
		joined := make([]error, 0, len(errs)+1)
		joined = append(joined, ErrInvalidGame)
		for _, e := range errs {
			joined = append(joined, e)
		}
		return nil, errors.Join(joined...)
	}

	for _, f := range def.Scoring.Formulas {
		if err := c.scoring.ValidateFormula(f); err != nil {
			return nil, fmt.Errorf("%w: formula %q: %v", ErrInvalidGame, f.ID, err)
		}
	}

	game, err := c.games.Create(ctx, name, raw, createdBy)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("game_id", game.ID).
		Str("name", name).
		Int64("created_by", createdBy).
		Msg("Game registered")

	return game, nil
}

// ListGames returns up to limit stored games, newest first.
func (c *Controller) ListGames(ctx context.Context, limit int) ([]*model.Game, error) {
	return c.games.List(ctx, limit)
}

// StartSession begins a new session of the named game for the given players.
// The player count must satisfy both the game's limits and the controller cap.
func (c *Controller) StartSession(ctx context.Context, chatID int64, gameName string, playerIDs []string) (*model.Session, *gamedef.Definition, error) {
	game, err := c.games.GetByName(ctx, gameName)
	if err != nil {
		return nil, nil, err
	}

	def, err := gamedef.Parse(game.Definition)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidGame, err)
	}

	if err := c.checkPlayers(def, playerIDs); err != nil {
		return nil, nil, err
	}

	totals := make(map[string]float64, len(playerIDs))
	for _, id := range playerIDs {
		totals[id] = 0
	}

	session, err := c.sessions.Create(ctx, chatID, game.ID, playerIDs, totals)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Int64("session_id", session.ID).
		Int64("chat_id", chatID).
		Str("game", gameName).
		Int("players", len(playerIDs)).
		Msg("Session started")

	return session, def, nil
}

func (c *Controller) checkPlayers(def *gamedef.Definition, playerIDs []string) error {
	seen := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		if seen[id] {
			return ErrDuplicatePlayers
		}
		seen[id] = true
	}

	min := def.Metadata.MinPlayers
	if min < 1 {
		min = 1
	}
	if len(playerIDs) < min {
		return ErrTooFewPlayers
	}

	max := def.Metadata.MaxPlayers
	if c.cfg.MaxPlayers > 0 && (max == 0 || max > c.cfg.MaxPlayers) {
		max = c.cfg.MaxPlayers
	}
	if max > 0 && len(playerIDs) > max {
		return ErrTooManyPlayers
	}

	return nil
}

// RoundOutcome is the result of one round submission.
type RoundOutcome struct {
	Session     *model.Session
	Definition  *gamedef.Definition
	RoundNumber int
	// Validation holds the data check result. When invalid, nothing was
	// committed and the remaining fields are zero.
	Validation validation.Result
	// Scores is each player's score for this round.
	Scores map[string]float64
	// Totals is each player's cumulative score after the round.
	Totals map[string]float64
	// ScoringErrors collects formula diagnostics; affected formulas scored 0.
	ScoringErrors []string
	// Win is the completion check after the round was applied.
	Win wincheck.Result
}

// Committed reports whether the round was accepted and persisted.
func (o *RoundOutcome) Committed() bool { return o.Validation.IsValid }

// SubmitRound validates, scores, and commits one round of data for the chat's
// active session. raw is the round data as JSON: field ID to value, where
// per-player fields map player ID to value. Concurrent submissions for the
// same session are rejected rather than queued.
func (c *Controller) SubmitRound(ctx context.Context, chatID int64, raw []byte) (*RoundOutcome, error) {
	session, err := c.sessions.GetActiveByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if !c.locks.TryLock(session.ID) {
		return nil, ErrSessionBusy
	}
	defer c.locks.Unlock(session.ID)

	game, err := c.games.GetByID(ctx, session.GameID)
	if err != nil {
		return nil, err
	}
	def, err := gamedef.Parse(game.Definition)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGame, err)
	}

	if def.Rounds.Type == gamedef.RoundsFixed && session.CurrentRound > def.Rounds.Count {
		return nil, ErrSessionFinished
	}

	var data evalctx.RoundData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid round data: %w", err)
	}

	history, err := c.loadHistory(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	evalCtx := &evalctx.Context{
		CurrentRound: session.CurrentRound,
		TotalRounds:  totalRounds(def),
		RoundData:    data,
		AllRounds:    history,
		PlayerIDs:    session.PlayerIDs,
		TotalScores:  session.Totals,
	}

	outcome := &RoundOutcome{
		Session:     session,
		Definition:  def,
		RoundNumber: session.CurrentRound,
	}

	outcome.Validation = c.validator.ValidateRoundData(def, data, evalCtx)
	if !outcome.Validation.IsValid {
		return outcome, nil
	}

	scores := c.scoring.CalculateRoundScores(def, evalCtx)
	outcome.Scores = scores.Scores
	outcome.Totals = scores.UpdatedTotals
	outcome.ScoringErrors = scores.Errors

	if _, err := c.sessions.AppendRound(ctx, session.ID, session.CurrentRound, raw, scores.Scores); err != nil {
		return nil, err
	}

	nextRound := session.CurrentRound + 1
	afterCtx := &evalctx.Context{
		CurrentRound: nextRound,
		TotalRounds:  totalRounds(def),
		AllRounds:    append(history, data),
		PlayerIDs:    session.PlayerIDs,
		TotalScores:  scores.UpdatedTotals,
	}

	outcome.Win = c.resolver.Check(def, afterCtx)
	if !outcome.Win.IsComplete {
		if err := c.sessions.UpdateProgress(ctx, session.ID, nextRound, scores.UpdatedTotals); err != nil {
			return nil, err
		}
		session.CurrentRound = nextRound
		session.Totals = scores.UpdatedTotals
		return outcome, nil
	}

	// Final-scope formulas only apply once the game is decided; they can
	// change the standings, so the winner is resolved again afterwards.
	if len(def.FinalFormulas()) > 0 {
		final := c.scoring.CalculateFinalScores(def, afterCtx)
		outcome.Totals = final.UpdatedTotals
		outcome.ScoringErrors = append(outcome.ScoringErrors, final.Errors...)

		afterCtx.TotalScores = final.UpdatedTotals
		outcome.Win = c.resolver.Check(def, afterCtx)
	}

	resultJSON, err := json.Marshal(outcome.Win)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal win result: %w", err)
	}
	if err := c.sessions.Complete(ctx, session.ID, outcome.Totals, resultJSON); err != nil {
		return nil, err
	}

	session.Status = model.SessionComplete
	session.Totals = outcome.Totals

	log.Info().
		Int64("session_id", session.ID).
		Int("rounds", outcome.RoundNumber).
		Str("reason", outcome.Win.Reason).
		Msg("Session complete")

	return outcome, nil
}

// Standings is a snapshot of an in-progress session.
type Standings struct {
	Session      *model.Session
	Definition   *gamedef.Definition
	Leaders      []wincheck.PlayerScore
	RoundsPlayed int
	// Progress maps playerID to percent of the target score, only for
	// first-to-target games.
	Progress map[string]float64
}

// Standings returns the current leaderboard for the chat's active session.
func (c *Controller) Standings(ctx context.Context, chatID int64) (*Standings, error) {
	session, err := c.sessions.GetActiveByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	game, err := c.games.GetByID(ctx, session.GameID)
	if err != nil {
		return nil, err
	}
	def, err := gamedef.Parse(game.Definition)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGame, err)
	}

	st := &Standings{
		Session:      session,
		Definition:   def,
		Leaders:      wincheck.CurrentLeader(session.Totals, session.PlayerIDs),
		RoundsPlayed: session.CurrentRound - 1,
	}

	if def.WinCondition.Type == gamedef.WinFirstToTarget && def.WinCondition.TargetScore != nil {
		st.Progress = wincheck.TargetProgress(session.Totals, *def.WinCondition.TargetScore)
	}

	return st, nil
}

// Abandon ends the chat's active session without a winner.
func (c *Controller) Abandon(ctx context.Context, chatID int64) (*model.Session, error) {
	session, err := c.sessions.GetActiveByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if err := c.sessions.Abandon(ctx, session.ID); err != nil {
		return nil, err
	}
	session.Status = model.SessionAbandoned

	log.Info().
		Int64("session_id", session.ID).
		Int64("chat_id", chatID).
		Msg("Session abandoned")

	return session, nil
}

func (c *Controller) loadHistory(ctx context.Context, sessionID int64) ([]evalctx.RoundData, error) {
	rounds, err := c.sessions.ListRounds(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history := make([]evalctx.RoundData, 0, len(rounds))
	for _, r := range rounds {
		var data evalctx.RoundData
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, fmt.Errorf("corrupt round %d data: %w", r.RoundNumber, err)
		}
		history = append(history, data)
	}
	return history, nil
}

func totalRounds(def *gamedef.Definition) int {
	if def.Rounds.Type == gamedef.RoundsFixed {
		return def.Rounds.Count
	}
	return 0
}
