package expr

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Evaluation bound errors.
var (
	// ErrBudgetExceeded means the expression evaluated more AST nodes than the
	// configured step budget allows.
	ErrBudgetExceeded = errors.New("expression step budget exceeded")
	// ErrTimeout means the wall-clock evaluation deadline passed.
	ErrTimeout = errors.New("expression evaluation timed out")
)

// Func is a callable value bound into the evaluation environment, such as the
// context builder's sum/count/avg helpers.
type Func func(args []any) (any, error)

// deadlineCheckInterval controls how often the wall clock is consulted. The
// step budget is the primary bound; the deadline is a secondary cap.
const deadlineCheckInterval = 64

type interp struct {
	env      map[string]any
	steps    int
	maxSteps int
	deadline time.Time
}

func (it *interp) step() error {
	it.steps++
	if it.steps > it.maxSteps {
		return ErrBudgetExceeded
	}
	if it.steps%deadlineCheckInterval == 0 && !it.deadline.IsZero() && time.Now().After(it.deadline) {
		return ErrTimeout
	}
	return nil
}

func (it *interp) eval(n node) (any, error) {
	if err := it.step(); err != nil {
		return nil, err
	}

	switch n := n.(type) {
	case *litNode:
		return n.val, nil

	case *identNode:
		if v, ok := it.env[n.name]; ok {
			return v, nil
		}
		if f, ok := builtins[n.name]; ok {
			return f, nil
		}
		return nil, fmt.Errorf("unknown variable %q", n.name)

	case *memberNode:
		// Math.abs and friends resolve to the builtin helpers unless the
		// environment shadows "Math".
		if id, ok := n.obj.(*identNode); ok && id.name == "Math" {
			if _, shadowed := it.env["Math"]; !shadowed {
				if f, ok := builtins[n.name]; ok {
					return f, nil
				}
				return nil, fmt.Errorf("unknown math helper %q", n.name)
			}
		}
		obj, err := it.eval(n.obj)
		if err != nil {
			return nil, err
		}
		switch m := obj.(type) {
		case map[string]any:
			return m[n.name], nil
		case map[string]float64:
			return m[n.name], nil
		}
		return nil, fmt.Errorf("cannot access property %q of %T", n.name, obj)

	case *callNode:
		callee, err := it.eval(n.callee)
		if err != nil {
			return nil, err
		}
		fn, ok := callee.(Func)
		if !ok {
			return nil, fmt.Errorf("value of type %T is not callable", callee)
		}
		args := make([]any, len(n.args))
		for i, a := range n.args {
			v, err := it.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn(args)

	case *unaryNode:
		v, err := it.eval(n.x)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "-":
			f, err := toNumber(v)
			if err != nil {
				return nil, err
			}
			return -f, nil
		case "!":
			return !truthy(v), nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", n.op)

	case *binaryNode:
		return it.evalBinary(n)

	case *ternaryNode:
		cond, err := it.eval(n.cond)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return it.eval(n.then)
		}
		return it.eval(n.els)
	}

	return nil, fmt.Errorf("unknown expression node %T", n)
}

func (it *interp) evalBinary(n *binaryNode) (any, error) {
	// Short-circuit boolean operators evaluate the right side lazily.
	switch n.op {
	case "&&":
		l, err := it.eval(n.l)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := it.eval(n.r)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case "||":
		l, err := it.eval(n.l)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := it.eval(n.r)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := it.eval(n.l)
	if err != nil {
		return nil, err
	}
	r, err := it.eval(n.r)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	}

	lf, err := toNumber(l)
	if err != nil {
		return nil, err
	}
	rf, err := toNumber(r)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, errors.New("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, errors.New("division by zero")
		}
		return math.Mod(lf, rf), nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

// toNumber coerces a value to float64. Booleans count as 0/1 so boolean round
// fields can feed numeric formulas; strings deliberately do not coerce.
func toNumber(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("value of type %T is not a number", v)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		if f, err := toNumber(v); err == nil {
			return f != 0 && !math.IsNaN(f)
		}
		// maps, slices and functions are truthy
		return true
	}
}

func looseEqual(l, r any) bool {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok || rok {
		return lok && rok && ls == rs
	}
	lf, lerr := toNumber(l)
	rf, rerr := toNumber(r)
	if lerr == nil && rerr == nil {
		return lf == rf
	}
	return false
}

func numArg(name string, args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%s: missing argument %d", name, i+1)
	}
	f, err := toNumber(args[i])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// builtins are the fixed math helpers, reachable bare or via a Math. prefix.
var builtins = map[string]Func{
	"abs": func(args []any) (any, error) {
		f, err := numArg("abs", args, 0)
		if err != nil {
			return nil, err
		}
		return math.Abs(f), nil
	},
	"floor": func(args []any) (any, error) {
		f, err := numArg("floor", args, 0)
		if err != nil {
			return nil, err
		}
		return math.Floor(f), nil
	},
	"ceil": func(args []any) (any, error) {
		f, err := numArg("ceil", args, 0)
		if err != nil {
			return nil, err
		}
		return math.Ceil(f), nil
	},
	"round": func(args []any) (any, error) {
		f, err := numArg("round", args, 0)
		if err != nil {
			return nil, err
		}
		return math.Round(f), nil
	},
	"min": func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("min: at least one argument required")
		}
		best, err := numArg("min", args, 0)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(args); i++ {
			f, err := numArg("min", args, i)
			if err != nil {
				return nil, err
			}
			best = math.Min(best, f)
		}
		return best, nil
	},
	"max": func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("max: at least one argument required")
		}
		best, err := numArg("max", args, 0)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(args); i++ {
			f, err := numArg("max", args, i)
			if err != nil {
				return nil, err
			}
			best = math.Max(best, f)
		}
		return best, nil
	},
}
