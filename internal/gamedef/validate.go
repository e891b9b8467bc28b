package gamedef

import (
	"fmt"

	"scorecard-bot/internal/engine/expr"
)

// ValidationError is a definition-level configuration error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Validate checks a definition for configuration errors before it is accepted
// for play. It returns all problems found (empty = valid).
//
// Definitions that pass Validate can still produce formula evaluation errors at
// runtime; those fail soft during scoring and do not block play.
func Validate(def *Definition) []ValidationError {
	var errs []ValidationError

	if def.Metadata.Name == "" {
		errs = append(errs, ValidationError{"metadata.name", "game name is required"})
	}
	if def.Metadata.MinPlayers < 0 || def.Metadata.MaxPlayers < 0 {
		errs = append(errs, ValidationError{"metadata", "player counts cannot be negative"})
	}
	if def.Metadata.MinPlayers > 0 && def.Metadata.MaxPlayers > 0 &&
		def.Metadata.MaxPlayers < def.Metadata.MinPlayers {
		errs = append(errs, ValidationError{"metadata.maxPlayers", "maxPlayers is less than minPlayers"})
	}

	errs = append(errs, validateRounds(&def.Rounds)...)
	errs = append(errs, validateScoring(&def.Scoring)...)
	errs = append(errs, validateWinCondition(def)...)
	errs = append(errs, validateCustomRules(def)...)

	return errs
}

func validateRounds(r *Rounds) []ValidationError {
	var errs []ValidationError

	switch r.Type {
	case RoundsFixed:
		if r.Count < 1 {
			errs = append(errs, ValidationError{"rounds.count", "fixed round type requires a positive count"})
		}
	case RoundsVariable:
		// Count is ignored for variable games.
	default:
		errs = append(errs, ValidationError{"rounds.type", fmt.Sprintf("unknown round type %q", r.Type)})
	}

	if len(r.Fields) == 0 {
		errs = append(errs, ValidationError{"rounds.fields", "at least one round field is required"})
	}

	seen := make(map[string]bool)
	for i, f := range r.Fields {
		loc := fmt.Sprintf("rounds.fields[%d]", i)
		if f.ID == "" {
			errs = append(errs, ValidationError{loc + ".id", "field id is required"})
			continue
		}
		if seen[f.ID] {
			errs = append(errs, ValidationError{loc + ".id", fmt.Sprintf("duplicate field id %q", f.ID)})
		}
		seen[f.ID] = true

		switch f.Type {
		case FieldNumber, FieldBoolean, FieldText:
		case FieldSelect, FieldMultiSelect:
			if len(f.Options) == 0 {
				errs = append(errs, ValidationError{loc + ".options", fmt.Sprintf("field %q of type %s requires options", f.ID, f.Type)})
			}
		default:
			errs = append(errs, ValidationError{loc + ".type", fmt.Sprintf("unknown field type %q", f.Type)})
		}

		if v := f.Validation; v != nil {
			if v.Min != nil && v.Max != nil && *v.Max < *v.Min {
				errs = append(errs, ValidationError{loc + ".validation", fmt.Sprintf("field %q has max < min", f.ID)})
			}
			if v.MaxExpression != "" {
				if _, err := expr.Parse(v.MaxExpression); err != nil {
					errs = append(errs, ValidationError{loc + ".validation.maxExpression", err.Error()})
				}
			}
			if v.SumExpression != "" {
				if _, err := expr.Parse(v.SumExpression); err != nil {
					errs = append(errs, ValidationError{loc + ".validation.sumExpression", err.Error()})
				}
			}
			if (v.Sum != nil || v.SumExpression != "") && !f.PerPlayer {
				errs = append(errs, ValidationError{loc + ".validation.sum", fmt.Sprintf("field %q has a sum constraint but is not perPlayer", f.ID)})
			}
		}
	}

	return errs
}

func validateScoring(s *Scoring) []ValidationError {
	var errs []ValidationError

	if len(s.Formulas) == 0 {
		errs = append(errs, ValidationError{"scoring.formulas", "at least one scoring formula is required"})
	}

	seen := make(map[string]bool)
	for i, f := range s.Formulas {
		loc := fmt.Sprintf("scoring.formulas[%d]", i)
		if f.ID == "" {
			errs = append(errs, ValidationError{loc + ".id", "formula id is required"})
		} else if seen[f.ID] {
			errs = append(errs, ValidationError{loc + ".id", fmt.Sprintf("duplicate formula id %q", f.ID)})
		}
		seen[f.ID] = true

		switch f.Scope {
		case ScopePerRound, ScopeCumulative, ScopeFinal:
		default:
			errs = append(errs, ValidationError{loc + ".scope", fmt.Sprintf("unknown formula scope %q", f.Scope)})
		}

		if f.Expression == "" {
			errs = append(errs, ValidationError{loc + ".expression", "formula expression is required"})
		} else if _, err := expr.Parse(f.Expression); err != nil {
			errs = append(errs, ValidationError{loc + ".expression", err.Error()})
		}
	}

	return errs
}

func validateWinCondition(def *Definition) []ValidationError {
	var errs []ValidationError
	wc := &def.WinCondition

	switch wc.Type {
	case WinHighestScore, WinLowestScore:
		// Round-count completeness is the only terminator for these policies,
		// so a variable-round game would never end. Reject the combination.
		if def.Rounds.Type == RoundsVariable {
			errs = append(errs, ValidationError{
				"winCondition.type",
				fmt.Sprintf("%s cannot terminate a game with variable rounds; use first-to-target or custom", wc.Type),
			})
		}
	case WinFirstToTarget:
		if wc.TargetScore == nil {
			errs = append(errs, ValidationError{"winCondition.targetScore", "first-to-target requires targetScore"})
		}
	case WinCustom:
		if wc.CustomExpression == "" {
			errs = append(errs, ValidationError{"winCondition.customExpression", "custom win condition requires customExpression"})
		} else if _, err := expr.Parse(wc.CustomExpression); err != nil {
			errs = append(errs, ValidationError{"winCondition.customExpression", err.Error()})
		}
	default:
		errs = append(errs, ValidationError{"winCondition.type", fmt.Sprintf("unknown win condition type %q", wc.Type)})
	}

	return errs
}

func validateCustomRules(def *Definition) []ValidationError {
	if def.Validation == nil {
		return nil
	}

	var errs []ValidationError
	for i, r := range def.Validation.Rules {
		loc := fmt.Sprintf("validation.rules[%d]", i)
		if r.Rule == "" {
			errs = append(errs, ValidationError{loc + ".rule", "rule expression is required"})
		} else if _, err := expr.Parse(r.Rule); err != nil {
			errs = append(errs, ValidationError{loc + ".rule", err.Error()})
		}
		switch r.Severity {
		case "", SeverityError, SeverityWarning:
		default:
			errs = append(errs, ValidationError{loc + ".severity", fmt.Sprintf("unknown severity %q", r.Severity)})
		}
		if r.Field != "" && def.Field(r.Field) == nil {
			errs = append(errs, ValidationError{loc + ".field", fmt.Sprintf("rule references unknown field %q", r.Field)})
		}
	}
	return errs
}
