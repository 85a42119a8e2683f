package vrl

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/streamforge/pipeline/internal/event"
)

// Interpreter tree-walks a compiled Program against one event body at a
// time. It is the straightforward, always-correct evaluation path;
// CompileToBytecode (see vm.go) offers a faster stack-machine alternative
// with identical semantics for hot paths.
type Interpreter struct {
	prog *Program
}

func NewInterpreter(prog *Program) *Interpreter { return &Interpreter{prog: prog} }

// Outcome is the result of running a program against one event: either
// the event survives (possibly mutated) or it was dropped by an abort or
// another ExpressionError that no err target caught.
type Outcome struct {
	Dropped bool
	Abort   *ExpressionError
}

// Run evaluates the program's statements against root in order,
// mutating root in place via path assignments, and populating vars with
// any local variable bindings. Returns Outcome.Dropped=true (with Abort
// set) if an `abort` statement executes without being caught.
func (ip *Interpreter) Run(root *event.Value) (Outcome, error) {
	env := &evalEnv{root: root, vars: make(map[string]event.Value)}
	for _, stmt := range ip.prog.Stmts {
		if _, err := ip.evalStmt(stmt, env); err != nil {
			return Outcome{Dropped: true, Abort: err}, nil
		}
	}
	return Outcome{}, nil
}

type evalEnv struct {
	root *event.Value
	vars map[string]event.Value
}

func (ip *Interpreter) evalStmt(n Node, env *evalEnv) (event.Value, *ExpressionError) {
	switch s := n.(type) {
	case *Assignment:
		return ip.evalAssignment(s, env)
	case *AbortStmt:
		msg := "aborted"
		if s.Message != nil {
			v, err := ip.eval(s.Message, env)
			if err != nil {
				return event.Value{}, err
			}
			if b, ok := v.BytesVal(); ok {
				msg = string(b)
			}
		}
		return event.Value{}, &ExpressionError{Message: msg, Span: s.Span, Abort: true}
	default:
		return ip.eval(n, env)
	}
}

func (ip *Interpreter) evalAssignment(a *Assignment, env *evalEnv) (event.Value, *ExpressionError) {
	val, evalErr := ip.eval(a.Value, env)
	if evalErr != nil {
		if evalErr.Abort {
			return event.Value{}, evalErr
		}
		if a.ErrTarget == nil {
			// Unreachable given compile-time enforcement, but fail safe.
			return event.Value{}, evalErr
		}
		if err := ip.assignTo(a.Target, zeroValue(event.KindFloat), env); err != nil {
			return event.Value{}, err
		}
		if err := ip.assignTo(a.ErrTarget, event.Bytes([]byte(evalErr.Message)), env); err != nil {
			return event.Value{}, err
		}
		return event.Bool(true), nil
	}

	if err := ip.assignTo(a.Target, val, env); err != nil {
		return event.Value{}, err
	}
	if a.ErrTarget != nil {
		if err := ip.assignTo(a.ErrTarget, event.Null(), env); err != nil {
			return event.Value{}, err
		}
	}
	return event.Bool(true), nil
}

func zeroValue(k event.Kind) event.Value {
	switch k {
	case event.KindInteger:
		return event.Integer(0)
	case event.KindBytes:
		return event.Bytes(nil)
	case event.KindBool:
		return event.Bool(false)
	default:
		zero, _ := event.NewFloat(0)
		return event.FloatVal(zero)
	}
}

func (ip *Interpreter) assignTo(target Node, val event.Value, env *evalEnv) *ExpressionError {
	switch t := target.(type) {
	case *DiscardExpr:
		return nil
	case *VarExpr:
		env.vars[t.Name] = val
		return nil
	case *PathExpr:
		segs := toEventSegments(t.Segments)
		if err := event.Insert(env.root, segs, val); err != nil {
			return &ExpressionError{Message: fmt.Sprintf("cannot write path: %v", err), Span: t.Span}
		}
		return nil
	}
	return &ExpressionError{Message: "invalid assignment target", Span: target.span()}
}

func toEventSegments(segs []PathSegment) []event.Segment {
	out := make([]event.Segment, 0, len(segs))
	for _, s := range segs {
		if s.IsIdx {
			out = append(out, event.IndexSegment(uint64(s.Index)))
		} else {
			out = append(out, event.FieldSegment(s.Field))
		}
	}
	return out
}

func (ip *Interpreter) eval(n Node, env *evalEnv) (event.Value, *ExpressionError) {
	switch e := n.(type) {
	case *NullLit:
		return event.Null(), nil
	case *BoolLit:
		return event.Bool(e.Value), nil
	case *IntLit:
		return event.Integer(e.Value), nil
	case *FloatLit:
		f, _ := event.NewFloat(e.Value)
		return event.FloatVal(f), nil
	case *StringLit:
		return event.Bytes([]byte(e.Value)), nil
	case *DiscardExpr:
		return event.Null(), nil

	case *VarExpr:
		v, ok := env.vars[e.Name]
		if !ok {
			return event.Null(), nil
		}
		return v, nil

	case *PathExpr:
		segs := toEventSegments(e.Segments)
		v, ok := event.Get(*env.root, segs)
		if !ok {
			return event.Null(), nil
		}
		return v, nil

	case *ArrayLit:
		vals := make([]event.Value, 0, len(e.Elements))
		for _, el := range e.Elements {
			v, err := ip.eval(el, env)
			if err != nil {
				return event.Value{}, err
			}
			vals = append(vals, v)
		}
		return event.Array(vals), nil

	case *ObjectLit:
		obj := event.NewObject()
		for _, entry := range e.Entries {
			v, err := ip.eval(entry.Value, env)
			if err != nil {
				return event.Value{}, err
			}
			obj.Set(entry.Key, v)
		}
		return event.ObjectVal(obj), nil

	case *UnaryExpr:
		return ip.evalUnary(e, env)
	case *BinaryExpr:
		return ip.evalBinary(e, env)
	case *IfExpr:
		return ip.evalIf(e, env)
	case *FuncCall:
		return ip.evalFuncCall(e, env)
	}
	return event.Value{}, &ExpressionError{Message: "cannot evaluate expression", Span: n.span()}
}

func (ip *Interpreter) evalUnary(e *UnaryExpr, env *evalEnv) (event.Value, *ExpressionError) {
	v, err := ip.eval(e.Operand, env)
	if err != nil {
		return event.Value{}, err
	}
	switch e.Op {
	case "!":
		b, _ := v.Bool()
		return event.Bool(!b), nil
	case "-":
		if i, ok := v.Integer(); ok {
			return event.Integer(-i), nil
		}
		if f, ok := v.Float(); ok {
			nf, _ := event.NewFloat(-f.Value())
			return event.FloatVal(nf), nil
		}
	}
	return event.Value{}, &ExpressionError{Message: "invalid operand for unary " + e.Op, Span: e.Span}
}

func asFloat(v event.Value) (float64, bool) {
	if i, ok := v.Integer(); ok {
		return float64(i), true
	}
	if f, ok := v.Float(); ok {
		return f.Value(), true
	}
	return 0, false
}

func (ip *Interpreter) evalBinary(e *BinaryExpr, env *evalEnv) (event.Value, *ExpressionError) {
	if e.Op == "&&" {
		l, err := ip.eval(e.Left, env)
		if err != nil {
			return event.Value{}, err
		}
		lb, _ := l.Bool()
		if !lb {
			return event.Bool(false), nil
		}
		r, err := ip.eval(e.Right, env)
		if err != nil {
			return event.Value{}, err
		}
		rb, _ := r.Bool()
		return event.Bool(rb), nil
	}
	if e.Op == "||" {
		l, err := ip.eval(e.Left, env)
		if err != nil {
			return event.Value{}, err
		}
		if lb, isBool := l.Bool(); !l.IsNull() && (!isBool || lb) {
			return l, nil
		}
		return ip.eval(e.Right, env)
	}
	if e.Op == "??" {
		left, err := ip.eval(e.Left, env)
		if err != nil && err.Abort {
			return event.Value{}, err
		}
		if err == nil && !left.IsNull() {
			return left, nil
		}
		return ip.eval(e.Right, env)
	}

	left, err := ip.eval(e.Left, env)
	if err != nil {
		return event.Value{}, err
	}

	right, err := ip.eval(e.Right, env)
	if err != nil {
		return event.Value{}, err
	}

	switch e.Op {
	case "==":
		return event.Bool(valuesEqual(left, right)), nil
	case "!=":
		return event.Bool(!valuesEqual(left, right)), nil
	case "<", "<=", ">", ">=":
		lf, lok := asFloat(left)
		rf, rok := asFloat(right)
		if lb, ok := left.BytesVal(); ok {
			if rb, ok := right.BytesVal(); ok {
				// Strings order bytewise: bytes.Compare's sign against 0.
				lf, rf, lok, rok = float64(bytes.Compare(lb, rb)), 0, true, true
			}
		}
		if !lok || !rok {
			return event.Value{}, &ExpressionError{Message: "comparison requires two numeric or two string operands", Span: e.Span}
		}
		var b bool
		switch e.Op {
		case "<":
			b = lf < rf
		case "<=":
			b = lf <= rf
		case ">":
			b = lf > rf
		case ">=":
			b = lf >= rf
		}
		return event.Bool(b), nil
	case "+":
		if lb, lok := left.BytesVal(); lok {
			rb, _ := right.BytesVal()
			return event.Bytes(append(append([]byte(nil), lb...), rb...)), nil
		}
		return ip.arith(e, left, right)
	case "*":
		if lb, lok := left.BytesVal(); lok {
			n, _ := right.Integer()
			return event.Bytes(bytes.Repeat(lb, repeatCount(n))), nil
		}
		if rb, rok := right.BytesVal(); rok {
			n, _ := left.Integer()
			return event.Bytes(bytes.Repeat(rb, repeatCount(n))), nil
		}
		return ip.arith(e, left, right)
	case "-":
		return ip.arith(e, left, right)
	case "/":
		return ip.divide(e, left, right)
	case "|":
		lo, lok := left.ObjectRef()
		ro, rok := right.ObjectRef()
		if !lok || !rok {
			return event.Value{}, &ExpressionError{Message: "merge requires two objects", Span: e.Span}
		}
		merged := lo.Clone()
		for _, k := range ro.Keys() {
			v, _ := ro.Get(k)
			merged.Set(k, v)
		}
		return event.ObjectVal(merged), nil
	}
	return event.Value{}, &ExpressionError{Message: "unknown operator " + e.Op, Span: e.Span}
}

func repeatCount(n int64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}

func (ip *Interpreter) arith(e *BinaryExpr, left, right event.Value) (event.Value, *ExpressionError) {
	li, lIsInt := left.Integer()
	ri, rIsInt := right.Integer()
	if lIsInt && rIsInt {
		switch e.Op {
		case "+":
			return event.Integer(li + ri), nil
		case "-":
			return event.Integer(li - ri), nil
		case "*":
			return event.Integer(li * ri), nil
		}
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return event.Value{}, &ExpressionError{Message: "arithmetic requires numeric operands", Span: e.Span}
	}
	var result float64
	switch e.Op {
	case "+":
		result = lf + rf
	case "-":
		result = lf - rf
	case "*":
		result = lf * rf
	}
	f, _ := event.NewFloat(result)
	return event.FloatVal(f), nil
}

func (ip *Interpreter) divide(e *BinaryExpr, left, right event.Value) (event.Value, *ExpressionError) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return event.Value{}, &ExpressionError{Message: "division requires numeric operands", Span: e.Span}
	}
	if rf == 0 {
		return event.Value{}, newExprError(e.Span, "division by zero")
	}
	f, _ := event.NewFloat(lf / rf)
	return event.FloatVal(f), nil
}

func valuesEqual(a, b event.Value) bool {
	if a.Kind() != b.Kind() {
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if aok && bok {
			return af == bf
		}
		return false
	}
	switch a.Kind() {
	case event.KindNull:
		return true
	case event.KindBool:
		av, _ := a.Bool()
		bv, _ := b.Bool()
		return av == bv
	case event.KindInteger:
		av, _ := a.Integer()
		bv, _ := b.Integer()
		return av == bv
	case event.KindFloat:
		av, _ := a.Float()
		bv, _ := b.Float()
		return av.Value() == bv.Value()
	case event.KindBytes:
		av, _ := a.BytesVal()
		bv, _ := b.BytesVal()
		return string(av) == string(bv)
	default:
		return false
	}
}

func (ip *Interpreter) evalIf(e *IfExpr, env *evalEnv) (event.Value, *ExpressionError) {
	cond, err := ip.eval(e.Cond, env)
	if err != nil {
		return event.Value{}, err
	}
	b, _ := cond.Bool()
	if b {
		return ip.evalBlockValue(e.Conseq, env)
	}
	if e.Altern != nil {
		return ip.evalBlockValue(e.Altern, env)
	}
	return event.Null(), nil
}

func (ip *Interpreter) evalBlockValue(b *Block, env *evalEnv) (event.Value, *ExpressionError) {
	var last event.Value = event.Null()
	for _, stmt := range b.Stmts {
		v, err := ip.evalStmt(stmt, env)
		if err != nil {
			return event.Value{}, err
		}
		last = v
	}
	return last, nil
}

func (ip *Interpreter) evalFuncCall(e *FuncCall, env *evalEnv) (event.Value, *ExpressionError) {
	args := make([]event.Value, 0, len(e.Args))
	for _, a := range e.Args {
		v, err := ip.eval(a, env)
		if err != nil {
			return event.Value{}, err
		}
		args = append(args, v)
	}
	return callBuiltin(e, args)
}

func callBuiltin(e *FuncCall, args []event.Value) (event.Value, *ExpressionError) {
	switch e.Name {
	case "upcase":
		s, _ := args[0].BytesVal()
		return event.Bytes([]byte(strings.ToUpper(string(s)))), nil
	case "downcase":
		s, _ := args[0].BytesVal()
		return event.Bytes([]byte(strings.ToLower(string(s)))), nil
	case "trim":
		s, _ := args[0].BytesVal()
		return event.Bytes([]byte(strings.TrimSpace(string(s)))), nil
	case "length":
		switch {
		case args[0].Kind() == event.KindBytes:
			s, _ := args[0].BytesVal()
			return event.Integer(int64(len(s))), nil
		case args[0].Kind() == event.KindArray:
			a, _ := args[0].ArrayVal()
			return event.Integer(int64(len(a))), nil
		case args[0].Kind() == event.KindObject:
			o, _ := args[0].ObjectRef()
			return event.Integer(int64(o.Len())), nil
		}
		return event.Integer(0), nil
	case "contains":
		s, _ := args[0].BytesVal()
		sub, _ := args[1].BytesVal()
		return event.Bool(strings.Contains(string(s), string(sub))), nil
	case "starts_with":
		s, _ := args[0].BytesVal()
		pre, _ := args[1].BytesVal()
		return event.Bool(strings.HasPrefix(string(s), string(pre))), nil
	case "ends_with":
		s, _ := args[0].BytesVal()
		suf, _ := args[1].BytesVal()
		return event.Bool(strings.HasSuffix(string(s), string(suf))), nil
	case "to_string":
		return event.Bytes([]byte(args[0].String())), nil
	case "to_int":
		s, ok := args[0].BytesVal()
		if !ok {
			if i, ok := args[0].Integer(); ok {
				return event.Integer(i), nil
			}
			return event.Value{}, newExprError(e.Span, "to_int: value is not convertible")
		}
		n, perr := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
		if perr != nil {
			return event.Value{}, newExprError(e.Span, "to_int: %v", perr)
		}
		return event.Integer(n), nil
	case "to_float":
		s, ok := args[0].BytesVal()
		if !ok {
			if f, ok := args[0].Float(); ok {
				return event.FloatVal(f), nil
			}
			return event.Value{}, newExprError(e.Span, "to_float: value is not convertible")
		}
		n, perr := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if perr != nil {
			return event.Value{}, newExprError(e.Span, "to_float: %v", perr)
		}
		f, _ := event.NewFloat(n)
		return event.FloatVal(f), nil
	case "exists":
		return event.Bool(!args[0].IsNull()), nil
	case "is_null":
		return event.Bool(args[0].IsNull()), nil
	case "parse_json":
		return event.Value{}, newExprError(e.Span, "parse_json: not supported in this build")
	}
	return event.Value{}, &ExpressionError{Message: "unknown function " + e.Name, Span: e.Span}
}
