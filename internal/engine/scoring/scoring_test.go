package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"scorecard-bot/internal/engine/evalctx"
	"scorecard-bot/internal/engine/expr"
	"scorecard-bot/internal/gamedef"
)

func newEngine() *Engine {
	return New(expr.NewEvaluator(expr.DefaultLimits()))
}

func bidGame() *gamedef.Definition {
	return &gamedef.Definition{
		Scoring: gamedef.Scoring{
			Formulas: []gamedef.ScoringFormula{
				{
					ID:         "trickScore",
					Expression: "bid === tricks ? bid * 20 : -Math.abs(bid - tricks) * 10",
					Variables:  []string{"bid", "tricks"},
					Scope:      gamedef.ScopePerRound,
				},
			},
		},
	}
}

func bidContext(bids, tricks map[string]any, totals map[string]float64) *evalctx.Context {
	players := make([]string, 0, len(bids))
	for _, id := range []string{"alice", "bob", "carol"} {
		if _, ok := bids[id]; ok {
			players = append(players, id)
		}
	}
	return &evalctx.Context{
		CurrentRound: 1,
		TotalRounds:  10,
		RoundData: evalctx.RoundData{
			"bid":    evalctx.PerPlayer(bids),
			"tricks": evalctx.PerPlayer(tricks),
		},
		PlayerIDs:   players,
		TotalScores: totals,
	}
}

func TestCalculateRoundScores(t *testing.T) {
	e := newEngine()

	t.Run("exact bid scores positive", func(t *testing.T) {
		ctx := bidContext(
			map[string]any{"alice": 3.0, "bob": 2.0},
			map[string]any{"alice": 3.0, "bob": 3.0},
			map[string]float64{"alice": 0, "bob": 0},
		)
		res := e.CalculateRoundScores(bidGame(), ctx)

		assert.Empty(t, res.Errors)
		assert.Equal(t, 60.0, res.Scores["alice"])
		assert.Equal(t, -10.0, res.Scores["bob"])
		assert.Equal(t, 60.0, res.UpdatedTotals["alice"])
		assert.Equal(t, -10.0, res.UpdatedTotals["bob"])
	})

	t.Run("large miss", func(t *testing.T) {
		ctx := bidContext(
			map[string]any{"alice": 5.0},
			map[string]any{"alice": 0.0},
			map[string]float64{"alice": 0},
		)
		res := e.CalculateRoundScores(bidGame(), ctx)
		assert.Equal(t, -50.0, res.Scores["alice"])
	})

	t.Run("totals are additive", func(t *testing.T) {
		ctx := bidContext(
			map[string]any{"alice": 3.0},
			map[string]any{"alice": 3.0},
			map[string]float64{"alice": 40},
		)
		res := e.CalculateRoundScores(bidGame(), ctx)
		assert.Equal(t, 60.0, res.Scores["alice"])
		assert.Equal(t, 100.0, res.UpdatedTotals["alice"])
	})
}

func TestMultipleFormulasSum(t *testing.T) {
	def := &gamedef.Definition{
		Scoring: gamedef.Scoring{
			Formulas: []gamedef.ScoringFormula{
				{ID: "base", Expression: "points", Scope: gamedef.ScopePerRound},
				{ID: "streak", Expression: "points > 10 ? 5 : 0", Scope: gamedef.ScopeCumulative},
				{ID: "endgame", Expression: "-100", Scope: gamedef.ScopeFinal},
			},
		},
	}
	ctx := &evalctx.Context{
		CurrentRound: 1,
		RoundData:    evalctx.RoundData{"points": evalctx.PerPlayer(map[string]any{"alice": 12.0})},
		PlayerIDs:    []string{"alice"},
		TotalScores:  map[string]float64{"alice": 0},
	}

	res := newEngine().CalculateRoundScores(def, ctx)

	// Per-round and cumulative formulas both contribute; final does not.
	assert.Equal(t, 17.0, res.Scores["alice"])
}

func TestCalculateFinalScores(t *testing.T) {
	e := newEngine()

	t.Run("applies final adjustment", func(t *testing.T) {
		def := &gamedef.Definition{
			Scoring: gamedef.Scoring{
				Formulas: []gamedef.ScoringFormula{
					{ID: "round", Expression: "10", Scope: gamedef.ScopePerRound},
					{ID: "penalty", Expression: "totalScore > 50 ? -20 : 0", Scope: gamedef.ScopeFinal},
				},
			},
		}
		ctx := &evalctx.Context{
			CurrentRound: 6,
			PlayerIDs:    []string{"alice", "bob"},
			TotalScores:  map[string]float64{"alice": 60, "bob": 40},
		}

		res := e.CalculateFinalScores(def, ctx)
		assert.Equal(t, 40.0, res.UpdatedTotals["alice"])
		assert.Equal(t, 40.0, res.UpdatedTotals["bob"])
	})

	t.Run("no final formulas is a no-op", func(t *testing.T) {
		ctx := &evalctx.Context{
			PlayerIDs:   []string{"alice"},
			TotalScores: map[string]float64{"alice": 33},
		}
		res := e.CalculateFinalScores(bidGame(), ctx)
		assert.Equal(t, 33.0, res.UpdatedTotals["alice"])
	})
}

// A formula that fails contributes 0 for that player and surfaces a
// diagnostic; scoring never aborts.
func TestBrokenFormulaFailsSoft(t *testing.T) {
	def := &gamedef.Definition{
		Scoring: gamedef.Scoring{
			Formulas: []gamedef.ScoringFormula{
				{ID: "good", Expression: "5", Scope: gamedef.ScopePerRound},
				{ID: "broken", Expression: "nonexistent * 2", Scope: gamedef.ScopePerRound},
			},
		},
	}
	ctx := &evalctx.Context{
		CurrentRound: 1,
		PlayerIDs:    []string{"alice"},
		TotalScores:  map[string]float64{"alice": 0},
	}

	res := newEngine().CalculateRoundScores(def, ctx)

	assert.Equal(t, 5.0, res.Scores["alice"])
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "broken")
	assert.Contains(t, res.Errors[0], "alice")
}

func TestValidateFormula(t *testing.T) {
	e := newEngine()

	valid := gamedef.ScoringFormula{
		ID:         "ok",
		Expression: "bid === tricks ? bid * 20 : -Math.abs(bid - tricks) * 10",
		Variables:  []string{"bid", "tricks"},
	}
	assert.NoError(t, e.ValidateFormula(valid))

	assert.Error(t, e.ValidateFormula(gamedef.ScoringFormula{ID: "empty"}))
	assert.Error(t, e.ValidateFormula(gamedef.ScoringFormula{ID: "syntax", Expression: "1 +"}))
	assert.Error(t, e.ValidateFormula(gamedef.ScoringFormula{ID: "unknown", Expression: "undeclared + 1"}))
}

// TestTotalsAdditiveProperty checks that for any totals and any constant
// formula, updated totals equal previous totals plus the round score.
func TestTotalsAdditiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prevAlice := rapid.Float64Range(-1e6, 1e6).Draw(t, "prevAlice")
		prevBob := rapid.Float64Range(-1e6, 1e6).Draw(t, "prevBob")
		points := rapid.Float64Range(-1e3, 1e3).Draw(t, "points")

		def := &gamedef.Definition{
			Scoring: gamedef.Scoring{
				Formulas: []gamedef.ScoringFormula{
					{ID: "pts", Expression: "points", Scope: gamedef.ScopePerRound},
				},
			},
		}
		ctx := &evalctx.Context{
			CurrentRound: 1,
			RoundData: evalctx.RoundData{
				"points": evalctx.PerPlayer(map[string]any{"alice": points, "bob": points}),
			},
			PlayerIDs:   []string{"alice", "bob"},
			TotalScores: map[string]float64{"alice": prevAlice, "bob": prevBob},
		}

		res := New(expr.NewEvaluator(expr.DefaultLimits())).CalculateRoundScores(def, ctx)

		if res.UpdatedTotals["alice"] != prevAlice+res.Scores["alice"] {
			t.Fatalf("alice total not additive: %v != %v + %v",
				res.UpdatedTotals["alice"], prevAlice, res.Scores["alice"])
		}
		if res.UpdatedTotals["bob"] != prevBob+res.Scores["bob"] {
			t.Fatalf("bob total not additive: %v != %v + %v",
				res.UpdatedTotals["bob"], prevBob, res.Scores["bob"])
		}
		if len(res.Errors) != 0 {
			t.Fatalf("unexpected scoring errors: %v", res.Errors)
		}
	})
}
