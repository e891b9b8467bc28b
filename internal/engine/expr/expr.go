// Package expr implements the formula expression language used by game
// definitions: a small, side-effect-free grammar with arithmetic, comparisons,
// boolean logic, a ternary operator and a fixed helper set, interpreted against
// a caller-supplied variable environment.
//
// Evaluation is bounded two ways: a step budget counted per AST node (the
// primary, deterministic bound) and a wall-clock timeout (a secondary cap). A
// runaway formula therefore cannot block the calling goroutine indefinitely.
//
// Formulas authored in JS style keep working: === and !== are accepted as
// equality aliases and Math.abs etc. resolve to the builtin helpers.
package expr

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Default evaluation bounds.
const (
	DefaultTimeout  = 1000 * time.Millisecond
	DefaultMaxSteps = 100_000
)

// Limits bounds a single evaluation.
type Limits struct {
	Timeout  time.Duration
	MaxSteps int
}

// DefaultLimits returns the standard evaluation bounds.
func DefaultLimits() Limits {
	return Limits{Timeout: DefaultTimeout, MaxSteps: DefaultMaxSteps}
}

func (l Limits) normalized() Limits {
	if l.Timeout <= 0 {
		l.Timeout = DefaultTimeout
	}
	if l.MaxSteps <= 0 {
		l.MaxSteps = DefaultMaxSteps
	}
	return l
}

// Expr is a parsed expression, reusable across evaluations.
type Expr struct {
	root node
	src  string
}

// Parse compiles an expression. The returned Expr is immutable and safe for
// concurrent use.
func Parse(src string) (*Expr, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{root: root, src: src}, nil
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Eval runs the expression against env and returns the raw result
// (float64, bool, string, nil, or a map/Func passed through from env).
func (e *Expr) Eval(env map[string]any, lim Limits) (any, error) {
	lim = lim.normalized()
	it := &interp{
		env:      env,
		maxSteps: lim.MaxSteps,
		deadline: time.Now().Add(lim.Timeout),
	}
	return it.eval(e.root)
}

// Evaluator evaluates expression strings with fixed limits. It carries the two
// coercion modes the engine needs: numeric (scoring, bound expressions) and
// boolean (custom rules, win conditions).
type Evaluator struct {
	limits Limits
}

// NewEvaluator creates an Evaluator with the given limits.
func NewEvaluator(lim Limits) *Evaluator {
	return &Evaluator{limits: lim.normalized()}
}

// Limits returns the evaluator's bounds.
func (ev *Evaluator) Limits() Limits { return ev.limits }

// Number parses and evaluates src in numeric mode. NaN and infinite results
// are errors; the caller decides whether to fail soft.
func (ev *Evaluator) Number(src string, env map[string]any) (float64, error) {
	e, err := Parse(src)
	if err != nil {
		return 0, err
	}
	v, err := e.Eval(env, ev.limits)
	if err != nil {
		return 0, err
	}
	f, err := toNumber(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// Bool parses and evaluates src in boolean mode, coercing the result to
// truthiness.
func (ev *Evaluator) Bool(src string, env map[string]any) (bool, error) {
	e, err := Parse(src)
	if err != nil {
		return false, err
	}
	v, err := e.Eval(env, ev.limits)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// EvalNumber is the fail-soft numeric mode: any error yields 0 and a warning
// log, so one broken formula cannot abort a game.
func (ev *Evaluator) EvalNumber(src string, env map[string]any) float64 {
	f, err := ev.Number(src, env)
	if err != nil {
		log.Warn().Err(err).Str("expression", src).Msg("Numeric expression failed, using 0")
		return 0
	}
	return f
}

// EvalBool is the fail-soft boolean mode: any error yields false.
func (ev *Evaluator) EvalBool(src string, env map[string]any) bool {
	b, err := ev.Bool(src, env)
	if err != nil {
		log.Warn().Err(err).Str("expression", src).Msg("Boolean expression failed, using false")
		return false
	}
	return b
}

var errNotFinite = errNonFinite{}

type errNonFinite struct{}

func (errNonFinite) Error() string { return "expression result is not a finite number" }
