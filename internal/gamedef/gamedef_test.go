package gamedef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A representative bidding game definition as produced by the authoring
// tooling.
const whistJSON = `{
	"metadata": {
		"name": "Contract Whist",
		"description": "Bid then win exactly that many tricks",
		"minPlayers": 2,
		"maxPlayers": 6
	},
	"rounds": {
		"type": "fixed",
		"count": 10,
		"fields": [
			{
				"id": "bid",
				"label": "Bid",
				"type": "number",
				"perPlayer": true,
				"validation": {"min": 0, "maxExpression": "currentRound", "required": true}
			},
			{
				"id": "tricks",
				"label": "Tricks won",
				"type": "number",
				"perPlayer": true,
				"validation": {"min": 0, "sumExpression": "currentRound", "required": true}
			},
			{
				"id": "trump",
				"label": "Trump suit",
				"type": "select",
				"perPlayer": false,
				"options": ["hearts", "spades", "clubs", "diamonds"]
			}
		]
	},
	"scoring": {
		"formulas": [
			{
				"id": "trickScore",
				"name": "Trick score",
				"expression": "bid === tricks ? bid * 20 : -Math.abs(bid - tricks) * 10",
				"variables": ["bid", "tricks"],
				"scope": "per-round"
			}
		]
	},
	"winCondition": {
		"type": "highest-score"
	}
}`

func TestParseDefinition(t *testing.T) {
	def, err := Parse([]byte(whistJSON))
	require.NoError(t, err)

	assert.Equal(t, "Contract Whist", def.Metadata.Name)
	assert.Equal(t, 2, def.Metadata.MinPlayers)
	assert.Equal(t, RoundsFixed, def.Rounds.Type)
	assert.Equal(t, 10, def.Rounds.Count)
	require.Len(t, def.Rounds.Fields, 3)

	bid := def.Field("bid")
	require.NotNil(t, bid)
	assert.True(t, bid.PerPlayer)
	require.NotNil(t, bid.Validation)
	require.NotNil(t, bid.Validation.Min)
	assert.Equal(t, 0.0, *bid.Validation.Min)
	assert.Equal(t, "currentRound", bid.Validation.MaxExpression)
	assert.True(t, bid.Validation.Required)

	assert.Nil(t, def.Field("nope"))

	trump := def.Field("trump")
	require.NotNil(t, trump)
	assert.True(t, trump.HasOption("hearts"))
	assert.False(t, trump.HasOption("stars"))

	assert.Equal(t, WinHighestScore, def.WinCondition.Type)
	assert.Empty(t, Validate(def))
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"metadata": `))
	assert.Error(t, err)
}

func TestFormulaScopeSplit(t *testing.T) {
	def := &Definition{
		Scoring: Scoring{
			Formulas: []ScoringFormula{
				{ID: "a", Scope: ScopePerRound},
				{ID: "b", Scope: ScopeCumulative},
				{ID: "c", Scope: ScopeFinal},
			},
		},
	}

	round := def.RoundFormulas()
	require.Len(t, round, 2)
	assert.Equal(t, "a", round[0].ID)
	assert.Equal(t, "b", round[1].ID)

	final := def.FinalFormulas()
	require.Len(t, final, 1)
	assert.Equal(t, "c", final[0].ID)
}

func TestValidateCatchesConfigErrors(t *testing.T) {
	fptr := func(f float64) *float64 { return &f }

	base := func() *Definition {
		def, err := Parse([]byte(whistJSON))
		require.NoError(t, err)
		return def
	}

	tests := []struct {
		name      string
		mutate    func(*Definition)
		wantField string
	}{
		{
			"missing name",
			func(d *Definition) { d.Metadata.Name = "" },
			"metadata.name",
		},
		{
			"max below min players",
			func(d *Definition) { d.Metadata.MinPlayers = 5; d.Metadata.MaxPlayers = 2 },
			"metadata.maxPlayers",
		},
		{
			"fixed rounds without count",
			func(d *Definition) { d.Rounds.Count = 0 },
			"rounds.count",
		},
		{
			"unknown round type",
			func(d *Definition) { d.Rounds.Type = "endless" },
			"rounds.type",
		},
		{
			"duplicate field id",
			func(d *Definition) { d.Rounds.Fields[1].ID = "bid" },
			"rounds.fields[1].id",
		},
		{
			"select without options",
			func(d *Definition) { d.Rounds.Fields[2].Options = nil },
			"rounds.fields[2].options",
		},
		{
			"max below min bound",
			func(d *Definition) {
				d.Rounds.Fields[0].Validation.Min = fptr(5)
				d.Rounds.Fields[0].Validation.Max = fptr(1)
			},
			"rounds.fields[0].validation",
		},
		{
			"unparseable max expression",
			func(d *Definition) { d.Rounds.Fields[0].Validation.MaxExpression = "currentRound +" },
			"rounds.fields[0].validation.maxExpression",
		},
		{
			"sum constraint on global field",
			func(d *Definition) {
				d.Rounds.Fields[1].PerPlayer = false
			},
			"rounds.fields[1].validation.sum",
		},
		{
			"no scoring formulas",
			func(d *Definition) { d.Scoring.Formulas = nil },
			"scoring.formulas",
		},
		{
			"unparseable formula",
			func(d *Definition) { d.Scoring.Formulas[0].Expression = "bid *" },
			"scoring.formulas[0].expression",
		},
		{
			"unknown formula scope",
			func(d *Definition) { d.Scoring.Formulas[0].Scope = "hourly" },
			"scoring.formulas[0].scope",
		},
		{
			"unknown win type",
			func(d *Definition) { d.WinCondition.Type = "sudden-death" },
			"winCondition.type",
		},
		{
			"first-to-target without target",
			func(d *Definition) { d.WinCondition = WinCondition{Type: WinFirstToTarget} },
			"winCondition.targetScore",
		},
		{
			"custom without expression",
			func(d *Definition) { d.WinCondition = WinCondition{Type: WinCustom} },
			"winCondition.customExpression",
		},
		{
			"highest score with variable rounds",
			func(d *Definition) { d.Rounds.Type = RoundsVariable },
			"winCondition.type",
		},
		{
			"custom rule referencing unknown field",
			func(d *Definition) {
				d.Validation = &ValidationRules{Rules: []ValidationRule{
					{Field: "ghost", Rule: "1 > 0", ErrorMessage: "x"},
				}}
			},
			"validation.rules[0].field",
		},
		{
			"custom rule with bad severity",
			func(d *Definition) {
				d.Validation = &ValidationRules{Rules: []ValidationRule{
					{Field: "bid", Rule: "1 > 0", ErrorMessage: "x", Severity: "fatal"},
				}}
			},
			"validation.rules[0].severity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(def)

			errs := Validate(def)
			require.NotEmpty(t, errs)

			fields := make([]string, len(errs))
			for i, e := range errs {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	assert.Equal(t, "rounds.count: boom", ValidationError{Field: "rounds.count", Message: "boom"}.Error())
	assert.Equal(t, "boom", ValidationError{Message: "boom"}.Error())
}
