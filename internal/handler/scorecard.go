// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"scorecard-bot/internal/engine/validation"
	"scorecard-bot/internal/gamedef"
	"scorecard-bot/internal/repository"
	"scorecard-bot/internal/session"
)

// gameListLimit caps the /games listing.
const gameListLimit = 25

// ScorecardHandler handles the game and session commands.
type ScorecardHandler struct {
	controller *session.Controller
}

// NewScorecardHandler creates a new ScorecardHandler.
func NewScorecardHandler(controller *session.Controller) *ScorecardHandler {
	return &ScorecardHandler{controller: controller}
}

// HandleGames handles the /games command listing registered games.
func (h *ScorecardHandler) HandleGames(c tele.Context) error {
	ctx := context.Background()

	games, err := h.controller.ListGames(ctx, gameListLimit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list games")
		return c.Reply("❌ Failed to load games, please try again later")
	}

	if len(games) == 0 {
		return c.Reply("📋 No games registered yet. Admins can add one with /addgame")
	}

	var sb strings.Builder
	sb.WriteString("🎲 Available games:\n")
	for _, g := range games {
		def, err := gamedef.Parse(g.Definition)
		if err != nil {
			// Stored definitions are validated on registration; a parse
			// failure here means manual tampering.
			log.Warn().Err(err).Int64("game_id", g.ID).Msg("Stored game definition does not parse")
			continue
		}
		sb.WriteString(fmt.Sprintf("\n• %s", g.Name))
		if def.Metadata.Description != "" {
			sb.WriteString(" — " + def.Metadata.Description)
		}
		if def.Metadata.MinPlayers > 0 || def.Metadata.MaxPlayers > 0 {
			sb.WriteString(fmt.Sprintf(" (%s players)", playerRange(def)))
		}
	}
	sb.WriteString("\n\nStart one with /newgame <game> <player> <player> ...")

	return c.Reply(sb.String())
}

func playerRange(def *gamedef.Definition) string {
	min, max := def.Metadata.MinPlayers, def.Metadata.MaxPlayers
	switch {
	case min > 0 && max > 0 && min != max:
		return fmt.Sprintf("%d-%d", min, max)
	case max > 0:
		return strconv.Itoa(max)
	default:
		return fmt.Sprintf("%d+", min)
	}
}

// HandleAddGame handles the /addgame command registering a game definition.
// Usage: /addgame <name> <definition JSON>. Admin only; enforced by middleware.
func (h *ScorecardHandler) HandleAddGame(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name, payload := splitCommandPayload(c.Message().Text)
	if name == "" || payload == "" {
		return c.Reply("❌ Usage: /addgame <name> <definition JSON>")
	}

	game, err := h.controller.RegisterGame(ctx, name, []byte(payload), sender.ID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidGame) {
			return c.Reply(fmt.Sprintf("❌ Definition rejected:\n%s", err.Error()))
		}
		log.Error().Err(err).Str("name", name).Msg("Failed to register game")
		return c.Reply("❌ Failed to save game, please try again later")
	}

	return c.Reply(fmt.Sprintf("✅ Game %q registered (id %d)", game.Name, game.ID))
}

// splitCommandPayload splits "/cmd name {json...}" into the name argument and
// the remaining payload.
func splitCommandPayload(text string) (name, payload string) {
	rest := strings.TrimSpace(text)
	if i := strings.IndexAny(rest, " \n"); i >= 0 {
		rest = strings.TrimSpace(rest[i:]) // drop the command itself
	} else {
		return "", ""
	}
	if i := strings.IndexAny(rest, " \n"); i >= 0 {
		return rest[:i], strings.TrimSpace(rest[i:])
	}
	return rest, ""
}

// HandleNewGame handles the /newgame command starting a session.
// Usage: /newgame <game> <player> <player> ...
func (h *ScorecardHandler) HandleNewGame(c tele.Context) error {
	ctx := context.Background()
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ Usage: /newgame <game> <player> <player> ...")
	}

	gameName, players := args[0], args[1:]

	sess, def, err := h.controller.StartSession(ctx, chat.ID, gameName, players)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrGameNotFound):
			return c.Reply(fmt.Sprintf("❌ Unknown game %q, see /games", gameName))
		case errors.Is(err, repository.ErrActiveSessionExists):
			return c.Reply("❌ A game is already in progress here. Finish it or /abandon first")
		case errors.Is(err, session.ErrTooFewPlayers), errors.Is(err, session.ErrTooManyPlayers):
			return c.Reply(fmt.Sprintf("❌ %s needs %s players", gameName, playerRangeByErr(err)))
		case errors.Is(err, session.ErrDuplicatePlayers):
			return c.Reply("❌ Player names must be unique")
		default:
			log.Error().Err(err).Str("game", gameName).Msg("Failed to start session")
			return c.Reply("❌ Failed to start game, please try again later")
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎮 %s started with %s\n", def.Metadata.Name, strings.Join(sess.PlayerIDs, ", ")))
	if def.Rounds.Type == gamedef.RoundsFixed {
		sb.WriteString(fmt.Sprintf("Rounds: %d\n", def.Rounds.Count))
	}
	sb.WriteString("\nSubmit round 1 with /round ")
	sb.WriteString(roundDataHint(def))

	return c.Reply(sb.String())
}

func playerRangeByErr(err error) string {
	if errors.Is(err, session.ErrTooFewPlayers) {
		return "more"
	}
	return "fewer"
}

// roundDataHint builds a JSON skeleton from the game's round fields so players
// see the expected shape.
func roundDataHint(def *gamedef.Definition) string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, f := range def.Rounds.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%q: ", f.ID))
		if f.PerPlayer {
			sb.WriteString(`{"<player>": ...}`)
		} else {
			sb.WriteString("...")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// HandleRound handles the /round command submitting one round of data.
// Usage: /round <data JSON>
func (h *ScorecardHandler) HandleRound(c tele.Context) error {
	ctx := context.Background()
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	text := strings.TrimSpace(c.Message().Text)
	payload := ""
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		payload = strings.TrimSpace(text[i:])
	}
	if payload == "" {
		return c.Reply("❌ Usage: /round <data JSON>")
	}

	outcome, err := h.controller.SubmitRound(ctx, chat.ID, []byte(payload))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
			return c.Reply("❌ No game in progress, start one with /newgame")
		case errors.Is(err, session.ErrSessionBusy):
			return c.Reply("⏳ Another submission is being processed, try again in a moment")
		case errors.Is(err, session.ErrSessionFinished):
			return c.Reply("❌ All rounds have been played already")
		default:
			log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to submit round")
			return c.Reply("❌ Failed to submit round: " + err.Error())
		}
	}

	if !outcome.Committed() {
		return c.Reply(formatValidation(outcome.Validation))
	}

	return c.Reply(formatOutcome(outcome))
}

func formatValidation(res validation.Result) string {
	var sb strings.Builder
	sb.WriteString("❌ Round rejected:\n")
	for _, issue := range res.Errors {
		marker := "•"
		if issue.Severity == gamedef.SeverityWarning {
			marker = "⚠️"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", marker, issue.Message))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatOutcome(o *session.RoundOutcome) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📝 Round %d scored:\n", o.RoundNumber))
	for _, line := range scoreLines(o.Scores, o.Totals, o.Session.PlayerIDs) {
		sb.WriteString(line + "\n")
	}

	for _, w := range warningsOnly(o.Validation) {
		sb.WriteString("⚠️ " + w.Message + "\n")
	}
	for _, e := range o.ScoringErrors {
		sb.WriteString("⚠️ " + e + "\n")
	}

	if o.Win.IsComplete {
		sb.WriteString("\n" + formatWin(o))
	} else {
		sb.WriteString(fmt.Sprintf("\nNext up: round %d", o.RoundNumber+1))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func warningsOnly(res validation.Result) []validation.Issue {
	var out []validation.Issue
	for _, issue := range res.Errors {
		if issue.Severity == gamedef.SeverityWarning {
			out = append(out, issue)
		}
	}
	return out
}

func scoreLines(scores, totals map[string]float64, playerIDs []string) []string {
	lines := make([]string, 0, len(playerIDs))
	for _, id := range playerIDs {
		lines = append(lines, fmt.Sprintf("• %s: %s (total %s)", id, fmtScore(scores[id]), fmtScore(totals[id])))
	}
	return lines
}

func formatWin(o *session.RoundOutcome) string {
	win := o.Win
	switch {
	case win.Winner != nil:
		return fmt.Sprintf("🏆 %s wins with %s points! (%s)", win.Winner.PlayerID, fmtScore(win.Winner.Score), win.Winner.Reason)
	case len(win.Winners) > 0:
		names := make([]string, len(win.Winners))
		for i, w := range win.Winners {
			names[i] = w.PlayerID
		}
		return fmt.Sprintf("🏆 Tie between %s at %s points! (%s)", strings.Join(names, " and "), fmtScore(win.Winners[0].Score), win.Reason)
	default:
		return "🏁 Game over: " + win.Reason
	}
}

// HandleStandings handles the /standings command.
func (h *ScorecardHandler) HandleStandings(c tele.Context) error {
	ctx := context.Background()
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	st, err := h.controller.Standings(ctx, chat.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.Reply("❌ No game in progress, start one with /newgame")
		}
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to load standings")
		return c.Reply("❌ Failed to load standings, please try again later")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 %s — after %d round(s):\n", st.Definition.Metadata.Name, st.RoundsPlayed))

	ranked := rankedTotals(st.Session.Totals, st.Session.PlayerIDs)
	for i, p := range ranked {
		sb.WriteString(fmt.Sprintf("%d. %s: %s", i+1, p.id, fmtScore(p.score)))
		if st.Progress != nil {
			sb.WriteString(fmt.Sprintf(" (%.0f%%)", st.Progress[p.id]))
		}
		sb.WriteString("\n")
	}

	if len(st.Leaders) == 1 {
		sb.WriteString(fmt.Sprintf("\nLeader: %s", st.Leaders[0].PlayerID))
	} else if len(st.Leaders) > 1 {
		names := make([]string, len(st.Leaders))
		for i, l := range st.Leaders {
			names[i] = l.PlayerID
		}
		sb.WriteString(fmt.Sprintf("\nTied lead: %s", strings.Join(names, ", ")))
	}

	return c.Reply(strings.TrimRight(sb.String(), "\n"))
}

type rankedPlayer struct {
	id    string
	score float64
}

// rankedTotals sorts players by score descending; equal scores keep the
// session's player order.
func rankedTotals(totals map[string]float64, playerIDs []string) []rankedPlayer {
	out := make([]rankedPlayer, 0, len(playerIDs))
	for _, id := range playerIDs {
		out = append(out, rankedPlayer{id: id, score: totals[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// HandleAbandon handles the /abandon command.
func (h *ScorecardHandler) HandleAbandon(c tele.Context) error {
	ctx := context.Background()
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	sess, err := h.controller.Abandon(ctx, chat.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.Reply("❌ No game in progress")
		}
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to abandon session")
		return c.Reply("❌ Failed to abandon game, please try again later")
	}

	return c.Reply(fmt.Sprintf("🛑 Game abandoned after %d round(s)", sess.CurrentRound-1))
}

// HandleStart handles the /start command with a short usage summary.
func (h *ScorecardHandler) HandleStart(c tele.Context) error {
	return c.Reply(
		"👋 Scorecard bot keeps score for your table games.\n\n" +
			"/games — list available games\n" +
			"/newgame <game> <player> <player> ... — start a session\n" +
			"/round <data JSON> — submit a round\n" +
			"/standings — current totals\n" +
			"/abandon — end the session without a winner",
	)
}

func fmtScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
