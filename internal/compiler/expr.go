package compiler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/aretw0/weft/pkg/domain"
)

// Expressions in flow files (conditions, assignment values, send
// arguments) are ECMAScript, compiled once at flow-compile time and
// evaluated against a head's scope (locals + context + event args).

var vmPool = sync.Pool{
	New: func() any { return goja.New() },
}

type gojaExpr struct {
	prog *goja.Program
	src  string
}

// CompileExpr compiles an expression string. The expression is wrapped
// in a function taking the scope, so bare variable names resolve to
// scope entries and unknown names raise a ReferenceError at eval time.
func CompileExpr(src string) (domain.Expr, error) {
	wrapped := "(function(__scope){with(__scope){return (" + src + "\n);}})"
	prog, err := goja.Compile("expr", wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", src, err)
	}
	return &gojaExpr{prog: prog, src: src}, nil
}

func (e *gojaExpr) Source() string { return e.src }

func (e *gojaExpr) Eval(scope map[string]any) (any, error) {
	vm := vmPool.Get().(*goja.Runtime)
	defer vmPool.Put(vm)

	fnVal, err := vm.RunProgram(e.prog)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", e.src, err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("expression %q: not callable", e.src)
	}

	if scope == nil {
		scope = map[string]any{}
	}
	res, err := fn(goja.Undefined(), vm.ToValue(scope))
	if err != nil {
		if strings.Contains(err.Error(), "is not defined") {
			return nil, fmt.Errorf("expression %q: %w: %v", e.src, domain.ErrUndeclaredVariable, err)
		}
		return nil, fmt.Errorf("expression %q: %w", e.src, err)
	}
	return normalize(res.Export()), nil
}

// normalize widens goja's integer exports so numbers compare uniformly
// across expression results and JSON-decoded event arguments.
func normalize(v any) any {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	}
	return v
}

// literalExpr wraps a constant value as an Expr; used for parameter
// defaults and by tests.
type literalExpr struct{ v any }

// Literal returns an Expr that always evaluates to v.
func Literal(v any) domain.Expr { return literalExpr{v: v} }

func (e literalExpr) Eval(map[string]any) (any, error) { return e.v, nil }

func (e literalExpr) Source() string { return fmt.Sprintf("%v", e.v) }
