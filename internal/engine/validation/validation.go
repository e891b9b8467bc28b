// Package validation checks submitted round data against a game definition's
// field constraints and custom rules.
//
// Constraint violations are the primary output, returned in-band as
// field-addressable issues rather than errors; the consuming layer maps them
// back to input widgets. Only issues with severity "error" block a round.
package validation

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"scorecard-bot/internal/engine/evalctx"
	"scorecard-bot/internal/engine/expr"
	"scorecard-bot/internal/gamedef"
)

// Issue is one field-level validation problem.
type Issue struct {
	Field    string           `json:"field"`
	Message  string           `json:"message"`
	Severity gamedef.Severity `json:"severity"`
}

// Result is the outcome of validating one round (or a whole session).
type Result struct {
	// IsValid is true iff there are no error-severity issues; warnings do
	// not block.
	IsValid bool
	Errors  []Issue
}

// Engine validates round data.
type Engine struct {
	eval *expr.Evaluator
}

// New creates a validation engine using the given evaluator.
func New(eval *expr.Evaluator) *Engine {
	return &Engine{eval: eval}
}

// ValidateRoundData checks the submitted data for one round: required fields,
// numeric bounds, per-player sum constraints, option membership, and the
// definition's custom rules, in that order.
func (e *Engine) ValidateRoundData(def *gamedef.Definition, data evalctx.RoundData, ctx *evalctx.Context) Result {
	var issues []Issue

	for i := range def.Rounds.Fields {
		issues = append(issues, e.validateField(&def.Rounds.Fields[i], data, ctx)...)
	}
	issues = append(issues, e.evalCustomRules(def, ctx)...)

	return finish(issues)
}

// ValidateGameSession re-validates every historical round, reconstructing a
// per-round context and prefixing messages with the round number. Used for
// retroactive consistency checks after corrections, not the live play loop.
func (e *Engine) ValidateGameSession(def *gamedef.Definition, allRounds []evalctx.RoundData, ctx *evalctx.Context) Result {
	var issues []Issue

	for i, data := range allRounds {
		roundCtx := &evalctx.Context{
			CurrentRound: i + 1,
			TotalRounds:  ctx.TotalRounds,
			RoundData:    data,
			AllRounds:    allRounds[:i],
			PlayerIDs:    ctx.PlayerIDs,
			TotalScores:  ctx.TotalScores,
		}
		res := e.ValidateRoundData(def, data, roundCtx)
		for _, iss := range res.Errors {
			iss.Message = fmt.Sprintf("Round %d: %s", i+1, iss.Message)
			issues = append(issues, iss)
		}
	}

	return finish(issues)
}

func finish(issues []Issue) Result {
	res := Result{IsValid: true, Errors: issues}
	for _, iss := range issues {
		if iss.Severity == gamedef.SeverityError {
			res.IsValid = false
			break
		}
	}
	return res
}

func (e *Engine) validateField(f *gamedef.RoundField, data evalctx.RoundData, ctx *evalctx.Context) []Issue {
	var issues []Issue

	value, present := data[f.ID]

	if f.Validation != nil && f.Validation.Required {
		if iss := checkRequired(f, value, present, ctx.PlayerIDs); iss != nil {
			// A missing required field makes the remaining checks noise.
			return []Issue{*iss}
		}
	}
	if !present {
		return nil
	}

	if f.Type == gamedef.FieldNumber {
		issues = append(issues, e.checkNumeric(f, value, ctx)...)
	}
	if f.Type == gamedef.FieldSelect || f.Type == gamedef.FieldMultiSelect {
		issues = append(issues, checkOptions(f, value)...)
	}

	return issues
}

func checkRequired(f *gamedef.RoundField, value evalctx.FieldValue, present bool, playerIDs []string) *Issue {
	if !present {
		return requiredIssue(f, nil)
	}

	if f.PerPlayer {
		if !value.IsPerPlayer() {
			return requiredIssue(f, playerIDs)
		}
		var missing []string
		for _, id := range playerIDs {
			v, ok := value.ForPlayer(id)
			if !ok || isEmpty(v) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return requiredIssue(f, missing)
		}
		return nil
	}

	if isEmpty(value.Value()) {
		return requiredIssue(f, nil)
	}
	return nil
}

func requiredIssue(f *gamedef.RoundField, missingPlayers []string) *Issue {
	msg := fmt.Sprintf("%s is required", label(f))
	if len(missingPlayers) > 0 {
		msg = fmt.Sprintf("%s is required for every player (missing: %s)", label(f), strings.Join(missingPlayers, ", "))
	}
	return &Issue{Field: f.ID, Message: msg, Severity: gamedef.SeverityError}
}

func (e *Engine) checkNumeric(f *gamedef.RoundField, value evalctx.FieldValue, ctx *evalctx.Context) []Issue {
	var issues []Issue

	if f.PerPlayer {
		perPlayerSum := 0.0
		numericCount := 0
		for _, id := range ctx.PlayerIDs {
			v, ok := value.ForPlayer(id)
			if !ok || v == nil {
				continue
			}
			n, isNum := asNumber(v)
			if !isNum {
				issues = append(issues, Issue{
					Field:    f.ID,
					Message:  fmt.Sprintf("%s must be a number for player %s", label(f), id),
					Severity: gamedef.SeverityError,
				})
				continue
			}
			issues = append(issues, e.checkBounds(f, n, id, ctx)...)
			perPlayerSum += n
			numericCount++
		}

		if expected, ok := e.expectedSum(f, ctx); ok && numericCount > 0 && perPlayerSum != expected {
			issues = append(issues, Issue{
				Field:    f.ID,
				Message:  fmt.Sprintf("%s must equal %s (currently %s)", label(f), formatNumber(expected), formatNumber(perPlayerSum)),
				Severity: gamedef.SeverityError,
			})
		}
		return issues
	}

	v := value.Value()
	if v == nil {
		return nil
	}
	n, isNum := asNumber(v)
	if !isNum {
		return []Issue{{
			Field:    f.ID,
			Message:  fmt.Sprintf("%s must be a number", label(f)),
			Severity: gamedef.SeverityError,
		}}
	}
	return e.checkBounds(f, n, "", ctx)
}

func (e *Engine) checkBounds(f *gamedef.RoundField, n float64, playerID string, ctx *evalctx.Context) []Issue {
	var issues []Issue
	v := f.Validation
	if v == nil {
		return nil
	}

	suffix := ""
	if playerID != "" {
		suffix = fmt.Sprintf(" for player %s", playerID)
	}

	if v.Min != nil && n < *v.Min {
		issues = append(issues, Issue{
			Field:    f.ID,
			Message:  fmt.Sprintf("%s must be at least %s%s", label(f), formatNumber(*v.Min), suffix),
			Severity: gamedef.SeverityError,
		})
	}
	if v.Max != nil && n > *v.Max {
		issues = append(issues, Issue{
			Field:    f.ID,
			Message:  fmt.Sprintf("%s must be at most %s%s", label(f), formatNumber(*v.Max), suffix),
			Severity: gamedef.SeverityError,
		})
	}
	if v.MaxExpression != "" {
		bound, err := e.eval.Number(v.MaxExpression, ctx.Build(playerID))
		if err != nil {
			log.Warn().
				Str("field", f.ID).
				Str("expression", v.MaxExpression).
				Err(err).
				Msg("maxExpression failed, skipping bound")
		} else if n > bound {
			issues = append(issues, Issue{
				Field:    f.ID,
				Message:  fmt.Sprintf("%s must be at most %s%s", label(f), formatNumber(bound), suffix),
				Severity: gamedef.SeverityError,
			})
		}
	}

	return issues
}

// expectedSum resolves the exact-sum constraint: a literal sum, or a
// sumExpression evaluated against the round context.
func (e *Engine) expectedSum(f *gamedef.RoundField, ctx *evalctx.Context) (float64, bool) {
	v := f.Validation
	if v == nil {
		return 0, false
	}
	if v.Sum != nil {
		return *v.Sum, true
	}
	if v.SumExpression != "" {
		expected, err := e.eval.Number(v.SumExpression, ctx.Build(""))
		if err != nil {
			log.Warn().
				Str("field", f.ID).
				Str("expression", v.SumExpression).
				Err(err).
				Msg("sumExpression failed, skipping sum constraint")
			return 0, false
		}
		return expected, true
	}
	return 0, false
}

func checkOptions(f *gamedef.RoundField, value evalctx.FieldValue) []Issue {
	var issues []Issue

	check := func(v any, playerID string) {
		invalid := invalidOptions(f, v)
		if len(invalid) == 0 {
			return
		}
		msg := fmt.Sprintf("%s has invalid value(s): %s", label(f), strings.Join(invalid, ", "))
		if playerID != "" {
			msg = fmt.Sprintf("%s has invalid value(s) for player %s: %s", label(f), playerID, strings.Join(invalid, ", "))
		}
		issues = append(issues, Issue{Field: f.ID, Message: msg, Severity: gamedef.SeverityError})
	}

	if value.IsPerPlayer() {
		for id, v := range value.Players() {
			if v != nil {
				check(v, id)
			}
		}
		return issues
	}
	if v := value.Value(); v != nil {
		check(v, "")
	}
	return issues
}

func invalidOptions(f *gamedef.RoundField, v any) []string {
	var invalid []string
	switch v := v.(type) {
	case []any:
		for _, el := range v {
			s := fmt.Sprintf("%v", el)
			if !f.HasOption(s) {
				invalid = append(invalid, s)
			}
		}
	default:
		s := fmt.Sprintf("%v", v)
		if !f.HasOption(s) {
			invalid = append(invalid, s)
		}
	}
	return invalid
}

// evalCustomRules runs the definition's cross-field rules once per round. A
// rule whose expression is falsy (or fails to evaluate) appends its issue.
func (e *Engine) evalCustomRules(def *gamedef.Definition, ctx *evalctx.Context) []Issue {
	if def.Validation == nil {
		return nil
	}

	var issues []Issue
	env := ctx.Build("")
	for _, rule := range def.Validation.Rules {
		if e.eval.EvalBool(rule.Rule, env) {
			continue
		}
		severity := rule.Severity
		if severity == "" {
			severity = gamedef.SeverityError
		}
		issues = append(issues, Issue{
			Field:    rule.Field,
			Message:  rule.ErrorMessage,
			Severity: severity,
		})
	}
	return issues
}

func label(f *gamedef.RoundField) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func asNumber(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
