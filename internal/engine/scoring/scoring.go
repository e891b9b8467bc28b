// Package scoring applies a game definition's formulas to produce per-player
// round scores and running totals.
//
// Formula failures never abort scoring: a broken formula contributes 0 for
// that player and is reported as a diagnostic string on the result.
package scoring

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"scorecard-bot/internal/engine/evalctx"
	"scorecard-bot/internal/engine/expr"
	"scorecard-bot/internal/gamedef"
)

// formulaCheckLimits bounds the zero-substitution sanity check used by
// authoring tooling; it is much tighter than the play-loop limits.
var formulaCheckLimits = expr.Limits{Timeout: 100 * time.Millisecond, MaxSteps: 10_000}

// Result holds the outcome of one scoring pass.
type Result struct {
	// Scores is each player's score contribution from this pass.
	Scores map[string]float64
	// UpdatedTotals is each player's cumulative total after the pass.
	UpdatedTotals map[string]float64
	// Errors collects formula diagnostics. A non-empty list does not mean the
	// pass failed; the affected formulas contributed 0.
	Errors []string
}

// Engine evaluates scoring formulas.
type Engine struct {
	eval *expr.Evaluator
}

// New creates a scoring engine using the given evaluator.
func New(eval *expr.Evaluator) *Engine {
	return &Engine{eval: eval}
}

// CalculateRoundScores evaluates every per-round and cumulative formula for
// every player and returns the round scores plus updated totals. Totals are
// strictly additive: updated = previous + round score.
func (e *Engine) CalculateRoundScores(def *gamedef.Definition, ctx *evalctx.Context) *Result {
	res := &Result{
		Scores:        make(map[string]float64, len(ctx.PlayerIDs)),
		UpdatedTotals: make(map[string]float64, len(ctx.PlayerIDs)),
	}

	formulas := def.RoundFormulas()
	for _, playerID := range ctx.PlayerIDs {
		env := ctx.Build(playerID)
		res.Scores[playerID] = e.sumFormulas(formulas, env, playerID, res)
		res.UpdatedTotals[playerID] = ctx.TotalScores[playerID] + res.Scores[playerID]
	}

	return res
}

// CalculateFinalScores applies final-scope formulas once, as an additive
// adjustment on top of the existing totals. With no final formulas it returns
// the current totals unchanged.
func (e *Engine) CalculateFinalScores(def *gamedef.Definition, ctx *evalctx.Context) *Result {
	totals := ctx.Totals()
	res := &Result{
		Scores:        totals,
		UpdatedTotals: make(map[string]float64, len(totals)),
	}

	formulas := def.FinalFormulas()
	for _, playerID := range ctx.PlayerIDs {
		adjusted := totals[playerID]
		if len(formulas) > 0 {
			env := ctx.Build(playerID)
			adjusted += e.sumFormulas(formulas, env, playerID, res)
		}
		res.Scores[playerID] = adjusted
		res.UpdatedTotals[playerID] = adjusted
	}

	return res
}

func (e *Engine) sumFormulas(formulas []gamedef.ScoringFormula, env map[string]any, playerID string, res *Result) float64 {
	total := 0.0
	for _, f := range formulas {
		v, err := e.eval.Number(f.Expression, env)
		if err != nil {
			diag := fmt.Sprintf("formula %q failed for player %s: %v", f.ID, playerID, err)
			res.Errors = append(res.Errors, diag)
			log.Warn().
				Str("formula", f.ID).
				Str("player", playerID).
				Err(err).
				Msg("Scoring formula failed, contributing 0")
			continue
		}
		total += v
	}
	return total
}

// ValidateFormula sanity-checks a formula by substituting 0 for every declared
// variable and evaluating with tight limits. Used by authoring and ops
// tooling, not the play loop.
func (e *Engine) ValidateFormula(f gamedef.ScoringFormula) error {
	if f.Expression == "" {
		return fmt.Errorf("formula %q has an empty expression", f.ID)
	}

	probe := &evalctx.Context{
		CurrentRound: 1,
		TotalRounds:  1,
		PlayerIDs:    []string{"p1"},
		TotalScores:  map[string]float64{"p1": 0},
	}
	env := probe.Build("p1")
	for _, name := range f.Variables {
		env[name] = float64(0)
		env[name+"_all"] = map[string]any{}
	}

	checker := expr.NewEvaluator(formulaCheckLimits)
	if _, err := checker.Number(f.Expression, env); err != nil {
		return fmt.Errorf("formula %q is invalid: %w", f.ID, err)
	}
	return nil
}
