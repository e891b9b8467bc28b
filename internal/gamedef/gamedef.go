// Package gamedef defines the declarative game definition model.
// A definition is produced by an external authoring pipeline as JSON and is
// read-only to the engine; the JSON key names here are a wire contract shared
// with that tooling and must not change.
package gamedef

import (
	"encoding/json"
	"fmt"
)

// RoundType determines how many rounds a game has.
type RoundType string

const (
	// RoundsFixed means the game has a fixed number of rounds.
	RoundsFixed RoundType = "fixed"
	// RoundsVariable means completion is driven by the win condition alone.
	RoundsVariable RoundType = "variable"
)

// FieldType is the input type of a round field.
type FieldType string

const (
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multi-select"
	FieldText        FieldType = "text"
)

// FormulaScope determines when a scoring formula's contribution is applied.
type FormulaScope string

const (
	// ScopePerRound formulas contribute to every round's score.
	ScopePerRound FormulaScope = "per-round"
	// ScopeCumulative formulas also contribute every round; the distinction
	// from per-round is informational for the author.
	ScopeCumulative FormulaScope = "cumulative"
	// ScopeFinal formulas run once at game end as adjustments to the totals.
	ScopeFinal FormulaScope = "final"
)

// WinType is the win condition policy family.
type WinType string

const (
	WinHighestScore  WinType = "highest-score"
	WinLowestScore   WinType = "lowest-score"
	WinFirstToTarget WinType = "first-to-target"
	WinCustom        WinType = "custom"
)

// Severity of a validation issue. Warnings do not block round submission.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Definition is the complete declarative description of a scoring game.
type Definition struct {
	Metadata     Metadata         `json:"metadata"`
	Rounds       Rounds           `json:"rounds"`
	Scoring      Scoring          `json:"scoring"`
	WinCondition WinCondition     `json:"winCondition"`
	Validation   *ValidationRules `json:"validation,omitempty"`
}

// Metadata describes the game for listings and player-count limits.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MinPlayers  int    `json:"minPlayers,omitempty"`
	MaxPlayers  int    `json:"maxPlayers,omitempty"`
}

// Rounds describes round structure and the fields collected each round.
type Rounds struct {
	Type   RoundType    `json:"type"`
	Count  int          `json:"count,omitempty"`
	Fields []RoundField `json:"fields"`
}

// RoundField is one named datum collected per round, either a single global
// value or one value per player.
type RoundField struct {
	ID         string           `json:"id"`
	Label      string           `json:"label"`
	Type       FieldType        `json:"type"`
	PerPlayer  bool             `json:"perPlayer"`
	Validation *FieldValidation `json:"validation,omitempty"`
	Options    []string         `json:"options,omitempty"`
}

// FieldValidation holds the per-field constraints. Min/Max/Sum use pointers so
// an absent bound and a zero bound are distinguishable.
type FieldValidation struct {
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	MaxExpression string   `json:"maxExpression,omitempty"`
	Sum           *float64 `json:"sum,omitempty"`
	SumExpression string   `json:"sumExpression,omitempty"`
	Required      bool     `json:"required,omitempty"`
}

// Scoring holds the game's scoring formulas.
type Scoring struct {
	Formulas []ScoringFormula `json:"formulas"`
}

// ScoringFormula is one named expression evaluated against the round context.
// Variables lists the declared dependency names; it is informational and not
// used for resolution.
type ScoringFormula struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Expression  string       `json:"expression"`
	Variables   []string     `json:"variables,omitempty"`
	Scope       FormulaScope `json:"scope"`
	Description string       `json:"description,omitempty"`
}

// WinCondition describes how the game ends and who wins.
type WinCondition struct {
	Type             WinType  `json:"type"`
	TargetScore      *float64 `json:"targetScore,omitempty"`
	CustomExpression string   `json:"customExpression,omitempty"`
	Description      string   `json:"description,omitempty"`
}

// ValidationRules holds custom cross-field rules evaluated once per round.
type ValidationRules struct {
	Rules []ValidationRule `json:"rules"`
}

// ValidationRule is a custom boolean rule; the rule expression returning falsy
// appends an issue for the named field.
type ValidationRule struct {
	Field        string   `json:"field"`
	Rule         string   `json:"rule"`
	ErrorMessage string   `json:"errorMessage"`
	Severity     Severity `json:"severity,omitempty"`
}

// Parse decodes a game definition from JSON.
// It only decodes; call Validate to check the definition for consistency.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse game definition: %w", err)
	}
	return &def, nil
}

// Field returns the round field with the given id, or nil.
func (d *Definition) Field(id string) *RoundField {
	for i := range d.Rounds.Fields {
		if d.Rounds.Fields[i].ID == id {
			return &d.Rounds.Fields[i]
		}
	}
	return nil
}

// RoundFormulas returns the formulas that contribute to every round's score
// (per-round and cumulative scopes).
func (d *Definition) RoundFormulas() []ScoringFormula {
	var out []ScoringFormula
	for _, f := range d.Scoring.Formulas {
		if f.Scope == ScopePerRound || f.Scope == ScopeCumulative {
			out = append(out, f)
		}
	}
	return out
}

// FinalFormulas returns the formulas applied once at game end.
func (d *Definition) FinalFormulas() []ScoringFormula {
	var out []ScoringFormula
	for _, f := range d.Scoring.Formulas {
		if f.Scope == ScopeFinal {
			out = append(out, f)
		}
	}
	return out
}

// HasOption reports whether v is one of the field's declared options.
func (f *RoundField) HasOption(v string) bool {
	for _, o := range f.Options {
		if o == v {
			return true
		}
	}
	return false
}
