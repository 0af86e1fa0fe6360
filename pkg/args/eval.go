package args

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.starlark.net/starlark"
)

// Evaluator evaluates deferred argument expressions with Starlark.
type Evaluator struct {
	timeout time.Duration
}

// NewEvaluator creates an evaluator. A zero timeout means five seconds.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Evaluator{timeout: timeout}
}

// Eval evaluates a single expression against the data environment.
func (e *Evaluator) Eval(ctx context.Context, expr string, env Env) (interface{}, error) {
	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "args",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	type outcome struct {
		val interface{}
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		v, err := starlark.Eval(thread, "arg.star", expr, env.predeclared())
		if err != nil {
			done <- outcome{err: err}
			return
		}
		goVal, err := fromStarlarkValue(v)
		done <- outcome{val: goVal, err: err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("evaluation timeout")
		return nil, fmt.Errorf("expression %q timed out after %v", expr, e.timeout)
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("expression %q: %w", expr, out.err)
		}
		return out.val, nil
	}
}

func (env Env) predeclared() starlark.StringDict {
	preds := make([]starlark.Value, len(env.Predictors))
	for i, p := range env.Predictors {
		preds[i] = starlark.String(p)
	}

	return starlark.StringDict{
		"n_obs":        starlark.MakeInt(env.NObs),
		"n_events":     starlark.MakeInt(env.NEvents),
		"n_predictors": starlark.MakeInt(env.NPredictors),
		"predictors":   starlark.NewList(preds),
		"max_time":     starlark.Float(env.MaxTime),
		"log":          starlark.NewBuiltin("log", unaryMath(math.Log)),
		"exp":          starlark.NewBuiltin("exp", unaryMath(math.Exp)),
		"sqrt":         starlark.NewBuiltin("sqrt", unaryMath(math.Sqrt)),
		"seq":          starlark.NewBuiltin("seq", builtinSeq),
	}
}

func unaryMath(fn func(float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: want number, got %s", b.Name(), x.Type())
		}
		return starlark.Float(fn(f)), nil
	}
}

// builtinSeq implements seq(from, to, length): evenly spaced values.
func builtinSeq(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var from, to starlark.Value
	var n int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "from", &from, "to", &to, "length", &n); err != nil {
		return nil, err
	}
	lo, ok1 := starlark.AsFloat(from)
	hi, ok2 := starlark.AsFloat(to)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("seq: bounds must be numbers")
	}
	if n < 1 {
		return nil, fmt.Errorf("seq: length must be positive, got %d", n)
	}

	out := make([]starlark.Value, n)
	for i := range out {
		v := lo
		if n > 1 {
			v = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		out[i] = starlark.Float(v)
	}
	return starlark.NewList(out), nil
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Indexable:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
