// Package wincheck decides whether a game is complete and who won.
//
// Completion is a pure function of the definition and the current context,
// recomputed on every call; there is no persisted state machine. Malformed win
// condition configuration reports "not complete" with a diagnostic reason
// instead of an error, keeping a session visibly stuck rather than crashed.
package wincheck

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"scorecard-bot/internal/engine/evalctx"
	"scorecard-bot/internal/engine/expr"
	"scorecard-bot/internal/gamedef"
)

// PlayerScore pairs a player with a score, used for ties and leaderboards.
type PlayerScore struct {
	PlayerID string  `json:"playerId"`
	Score    float64 `json:"score"`
}

// Winner is a single decided winner.
type Winner struct {
	PlayerID string  `json:"playerId"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// Result is the outcome of a win-condition check. Exactly one of Winner /
// Winners is set when complete; neither is set for the degenerate
// complete-without-scorers case.
type Result struct {
	IsComplete bool          `json:"isComplete"`
	Reason     string        `json:"reason,omitempty"`
	Winner     *Winner       `json:"winner,omitempty"`
	Winners    []PlayerScore `json:"winners,omitempty"`
}

// Resolver evaluates win conditions.
type Resolver struct {
	eval *expr.Evaluator
}

// New creates a win-condition resolver using the given evaluator.
func New(eval *expr.Evaluator) *Resolver {
	return &Resolver{eval: eval}
}

// Check determines completion and winner(s) under the definition's policy.
func (r *Resolver) Check(def *gamedef.Definition, ctx *evalctx.Context) Result {
	wc := &def.WinCondition

	switch wc.Type {
	case gamedef.WinHighestScore:
		return r.checkByRounds(def, ctx, true, "Highest score")
	case gamedef.WinLowestScore:
		return r.checkByRounds(def, ctx, false, "Lowest score")
	case gamedef.WinFirstToTarget:
		return r.checkFirstToTarget(def, ctx)
	case gamedef.WinCustom:
		return r.checkCustom(def, ctx)
	}

	// Fail open: never declare a winner for a policy this resolver does not
	// recognize.
	log.Warn().Str("type", string(wc.Type)).Msg("Unknown win condition type")
	return Result{Reason: fmt.Sprintf("unknown win condition type %q", wc.Type)}
}

// roundsComplete holds only for fixed-round games past their last round.
// Variable-round games never complete by round count.
func roundsComplete(def *gamedef.Definition, ctx *evalctx.Context) bool {
	return def.Rounds.Type == gamedef.RoundsFixed &&
		def.Rounds.Count > 0 &&
		ctx.CurrentRound > def.Rounds.Count
}

func (r *Resolver) checkByRounds(def *gamedef.Definition, ctx *evalctx.Context, highest bool, reason string) Result {
	if !roundsComplete(def, ctx) {
		if def.Rounds.Type == gamedef.RoundsVariable {
			return Result{Reason: fmt.Sprintf("%s cannot complete a variable-round game", def.WinCondition.Type)}
		}
		return Result{Reason: fmt.Sprintf("round %d of %d", ctx.CurrentRound, def.Rounds.Count)}
	}
	return decideExtremal(ctx, highest, reason)
}

func (r *Resolver) checkFirstToTarget(def *gamedef.Definition, ctx *evalctx.Context) Result {
	wc := &def.WinCondition
	if wc.TargetScore == nil {
		return Result{Reason: "first-to-target win condition is missing targetScore"}
	}
	target := *wc.TargetScore

	totals := ctx.Totals()
	for _, id := range ctx.PlayerIDs {
		if totals[id] >= target {
			return Result{
				IsComplete: true,
				Winner: &Winner{
					PlayerID: id,
					Score:    totals[id],
					Reason:   fmt.Sprintf("First to reach %s points", formatScore(target)),
				},
			}
		}
	}

	if roundsComplete(def, ctx) {
		reason := fmt.Sprintf("Rounds complete without reaching %s points; highest score wins", formatScore(target))
		return decideExtremal(ctx, true, reason)
	}

	return Result{Reason: fmt.Sprintf("no player has reached %s points yet", formatScore(target))}
}

func (r *Resolver) checkCustom(def *gamedef.Definition, ctx *evalctx.Context) Result {
	wc := &def.WinCondition
	if wc.CustomExpression == "" {
		return Result{Reason: "custom win condition is missing customExpression"}
	}

	met, err := r.eval.Bool(wc.CustomExpression, ctx.BuildWin())
	if err != nil {
		log.Warn().Err(err).Str("expression", wc.CustomExpression).Msg("Custom win condition failed to evaluate")
		return Result{Reason: fmt.Sprintf("custom win condition failed: %v", err)}
	}
	if !met {
		return Result{Reason: "custom win condition not met"}
	}

	reason := wc.Description
	if reason == "" {
		reason = "Custom win condition met"
	}
	return decideExtremal(ctx, true, reason)
}

// decideExtremal finds the player(s) at the extremal total. Two or more tied
// players produce a Winners list; no scorers at all is the degenerate
// complete-without-winner case.
func decideExtremal(ctx *evalctx.Context, highest bool, reason string) Result {
	if len(ctx.PlayerIDs) == 0 {
		return Result{IsComplete: true, Reason: "No valid scores"}
	}

	totals := ctx.Totals()
	best := totals[ctx.PlayerIDs[0]]
	for _, id := range ctx.PlayerIDs[1:] {
		s := totals[id]
		if (highest && s > best) || (!highest && s < best) {
			best = s
		}
	}

	var tied []PlayerScore
	for _, id := range ctx.PlayerIDs {
		if totals[id] == best {
			tied = append(tied, PlayerScore{PlayerID: id, Score: totals[id]})
		}
	}

	if len(tied) == 1 {
		return Result{
			IsComplete: true,
			Winner:     &Winner{PlayerID: tied[0].PlayerID, Score: tied[0].Score, Reason: reason},
		}
	}
	return Result{IsComplete: true, Reason: reason, Winners: tied}
}

// HasPlayerWon reports whether the given player is among the winner(s) of a
// complete game. Display helper, not gating logic.
func (r *Resolver) HasPlayerWon(def *gamedef.Definition, ctx *evalctx.Context, playerID string) bool {
	res := r.Check(def, ctx)
	if !res.IsComplete {
		return false
	}
	if res.Winner != nil {
		return res.Winner.PlayerID == playerID
	}
	for _, w := range res.Winners {
		if w.PlayerID == playerID {
			return true
		}
	}
	return false
}

// CurrentLeader reports the player(s) with the highest total right now,
// regardless of win condition type or completion. Used for "who's ahead"
// displays.
func CurrentLeader(scores map[string]float64, playerIDs []string) []PlayerScore {
	if len(playerIDs) == 0 {
		return nil
	}

	best := scores[playerIDs[0]]
	for _, id := range playerIDs[1:] {
		if scores[id] > best {
			best = scores[id]
		}
	}

	var leaders []PlayerScore
	for _, id := range playerIDs {
		if scores[id] == best {
			leaders = append(leaders, PlayerScore{PlayerID: id, Score: scores[id]})
		}
	}
	return leaders
}

// TargetProgress returns each player's percentage of the target score,
// capped at 100.
func TargetProgress(scores map[string]float64, targetScore float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		if targetScore <= 0 {
			out[id] = 100
			continue
		}
		pct := s / targetScore * 100
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		out[id] = pct
	}
	return out
}

func formatScore(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
