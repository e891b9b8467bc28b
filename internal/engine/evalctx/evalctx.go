// Package evalctx assembles the variable environments that formulas and
// validation rules are evaluated against. A Context is rebuilt for every
// engine call and never mutated by the engine.
package evalctx

import (
	"encoding/json"
	"fmt"

	"scorecard-bot/internal/engine/expr"
)

// FieldValue is a submitted round field value: either a single global value or
// a per-player mapping. The two shapes are an explicit tagged union rather
// than a duck-typed any.
type FieldValue struct {
	perPlayer bool
	global    any
	players   map[string]any
}

// Global wraps a single shared value.
func Global(v any) FieldValue {
	return FieldValue{global: v}
}

// PerPlayer wraps a playerID-keyed mapping.
func PerPlayer(m map[string]any) FieldValue {
	return FieldValue{perPlayer: true, players: m}
}

// IsPerPlayer reports which shape the value has.
func (v FieldValue) IsPerPlayer() bool { return v.perPlayer }

// Value returns the global value; nil for per-player values.
func (v FieldValue) Value() any { return v.global }

// Players returns the per-player mapping; nil for global values.
func (v FieldValue) Players() map[string]any { return v.players }

// ForPlayer returns the named player's value and whether it was present.
func (v FieldValue) ForPlayer(playerID string) (any, bool) {
	if !v.perPlayer {
		return nil, false
	}
	val, ok := v.players[playerID]
	return val, ok
}

// UnmarshalJSON decodes a JSON object as a per-player mapping and anything
// else (number, string, bool, array, null) as a global value.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if m, ok := probe.(map[string]any); ok {
		*v = PerPlayer(m)
		return nil
	}
	*v = Global(probe)
	return nil
}

// MarshalJSON restores the wire shape.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.perPlayer {
		return json.Marshal(v.players)
	}
	return json.Marshal(v.global)
}

// RoundData holds one round's submitted values, keyed by field id.
type RoundData map[string]FieldValue

// Context is the complete evaluation state for one engine call.
type Context struct {
	// CurrentRound is 1-indexed.
	CurrentRound int
	// TotalRounds is 0 for variable-round games.
	TotalRounds int
	// RoundData holds the current round's raw submitted values.
	RoundData RoundData
	// AllRounds is the completed-round history, oldest first.
	AllRounds []RoundData
	// PlayerIDs is the ordered set of active players.
	PlayerIDs []string
	// TotalScores maps playerID to cumulative score. Missing players count
	// as 0; use Totals for a fully-populated copy.
	TotalScores map[string]float64
}

// Totals returns a copy of TotalScores with an entry for every active player,
// defaulting to 0.
func (c *Context) Totals() map[string]float64 {
	out := make(map[string]float64, len(c.PlayerIDs))
	for _, id := range c.PlayerIDs {
		out[id] = c.TotalScores[id]
	}
	return out
}

// Build assembles the variable bindings for one evaluation. When playerID is
// non-empty, per-player field values are bound to that player's entry and
// playerId/currentPlayerId/totalScore are included. Every per-player field is
// additionally exposed in full under "<fieldId>_all" for cross-player
// formulas.
func (c *Context) Build(playerID string) map[string]any {
	env := map[string]any{
		"currentRound": float64(c.CurrentRound),
		"totalRounds":  float64(c.TotalRounds),
	}

	for id, v := range c.RoundData {
		if v.IsPerPlayer() {
			if pv, ok := v.ForPlayer(playerID); ok && pv != nil {
				env[id] = pv
			} else {
				env[id] = float64(0)
			}
			env[id+"_all"] = v.Players()
			continue
		}
		if gv := v.Value(); gv != nil {
			env[id] = gv
		} else {
			env[id] = float64(0)
		}
	}

	if playerID != "" {
		env["playerId"] = playerID
		env["currentPlayerId"] = playerID
		env["totalScore"] = c.TotalScores[playerID]
	}

	env["sum"] = sumFunc
	env["count"] = countFunc
	env["avg"] = avgFunc

	return env
}

// BuildWin assembles the bindings for win-condition evaluation: the regular
// round bindings plus the full totals map, the extremal scores, and 1-indexed
// player{N}_score aliases in PlayerIDs order.
func (c *Context) BuildWin() map[string]any {
	env := c.Build("")

	totals := c.Totals()
	scores := make(map[string]any, len(totals))
	for id, s := range totals {
		scores[id] = s
	}
	env["scores"] = scores

	maxScore, minScore := 0.0, 0.0
	for i, id := range c.PlayerIDs {
		s := totals[id]
		if i == 0 {
			maxScore, minScore = s, s
		} else {
			if s > maxScore {
				maxScore = s
			}
			if s < minScore {
				minScore = s
			}
		}
		env[fmt.Sprintf("player%d_score", i+1)] = s
	}
	env["maxScore"] = maxScore
	env["minScore"] = minScore

	return env
}

// Aggregate helpers operate over the numeric values of a map (typically a
// "<fieldId>_all" binding), treating non-numeric entries as 0.

var sumFunc = expr.Func(func(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sum: expected 1 argument, got %d", len(args))
	}
	vals, err := mapValues(args[0])
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	total := 0.0
	for _, v := range vals {
		total += numericOrZero(v)
	}
	return total, nil
})

var countFunc = expr.Func(func(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("count: expected 1 argument, got %d", len(args))
	}
	vals, err := mapValues(args[0])
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	return float64(len(vals)), nil
})

var avgFunc = expr.Func(func(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("avg: expected 1 argument, got %d", len(args))
	}
	vals, err := mapValues(args[0])
	if err != nil {
		return nil, fmt.Errorf("avg: %w", err)
	}
	if len(vals) == 0 {
		return 0.0, nil
	}
	total := 0.0
	for _, v := range vals {
		total += numericOrZero(v)
	}
	return total / float64(len(vals)), nil
})

func mapValues(v any) ([]any, error) {
	switch m := v.(type) {
	case map[string]any:
		out := make([]any, 0, len(m))
		for _, e := range m {
			out = append(out, e)
		}
		return out, nil
	case map[string]float64:
		out := make([]any, 0, len(m))
		for _, e := range m {
			out = append(out, e)
		}
		return out, nil
	case []any:
		return m, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("expected a map or array, got %T", v)
}

func numericOrZero(v any) float64 {
	switch v := v.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return 0
}
