package vrl

import "fmt"

// inferExpr computes the TypeDef of node, type-checking it against the
// parser's current typeState and reporting a CompileError for any
// operator/operand mismatch or undefined variable. Division by a literal
// zero is not a CompileError: it stays fallible (see inferBinary).
func (p *parser) inferExpr(node Node) (TypeDef, error) {
	switch n := node.(type) {
	case *NullLit:
		return infallible(KindNull), nil
	case *BoolLit:
		return infallible(KindBool), nil
	case *IntLit:
		return infallible(KindInteger), nil
	case *FloatLit:
		return infallible(KindFloat), nil
	case *StringLit:
		return infallible(KindString), nil
	case *DiscardExpr:
		return infallible(kindAny), nil

	case *VarExpr:
		t, ok := p.ts.vars[n.Name]
		if !ok {
			return TypeDef{}, &CompileError{Message: fmt.Sprintf("undefined variable %q", n.Name), Span: n.Span}
		}
		return t, nil

	case *PathExpr:
		if t, ok := p.ts.paths[pathKey(n)]; ok {
			return t, nil
		}
		return infallible(kindAny), nil

	case *ArrayLit:
		fallibleAny := false
		for _, e := range n.Elements {
			t, err := p.inferExpr(e)
			if err != nil {
				return TypeDef{}, err
			}
			fallibleAny = fallibleAny || t.Fallible
		}
		return TypeDef{Kind: KindArray, Fallible: fallibleAny}, nil

	case *ObjectLit:
		fallibleAny := false
		for _, e := range n.Entries {
			t, err := p.inferExpr(e.Value)
			if err != nil {
				return TypeDef{}, err
			}
			fallibleAny = fallibleAny || t.Fallible
		}
		return TypeDef{Kind: KindObject, Fallible: fallibleAny}, nil

	case *UnaryExpr:
		operand, err := p.inferExpr(n.Operand)
		if err != nil {
			return TypeDef{}, err
		}
		t, ok := unaryResultOf(n.Op, operand)
		if !ok {
			return TypeDef{}, &CompileError{
				Message: fmt.Sprintf("operator %q is not defined for %s", n.Op, operand.Kind),
				Span:    n.Span,
			}
		}
		return t, nil

	case *BinaryExpr:
		return p.inferBinary(n)

	case *IfExpr:
		// Computed once at parse time in parseIfExpr, since its branches
		// may assign and thus mutate the type checker's state.
		return n.Type, nil

	case *FuncCall:
		return p.inferFuncCall(n)
	}
	return TypeDef{}, &CompileError{Message: "cannot infer type of expression", Span: node.span()}
}

func (p *parser) inferBinary(n *BinaryExpr) (TypeDef, error) {
	left, err := p.inferExpr(n.Left)
	if err != nil {
		return TypeDef{}, err
	}
	right, err := p.inferExpr(n.Right)
	if err != nil {
		return TypeDef{}, err
	}

	if n.Op == "??" && !left.Fallible {
		return TypeDef{}, &CompileError{
			Message: "left-hand side of ?? is already infallible; the coalesce is unreachable",
			Span:    n.Span,
		}
	}

	t, ok := resultOf(n.Op, left, right)
	if !ok {
		return TypeDef{}, &CompileError{
			Message: fmt.Sprintf("operator %q is not defined for %s and %s", n.Op, left.Kind, right.Kind),
			Span:    n.Span,
		}
	}

	// Division by a literal non-zero int/float is statically known safe
	// (spec.md §4.3's one exception to "/ is always fallible"). A literal
	// zero divisor stays fallible rather than being rejected at compile
	// time: per spec.md §9, that classification is deliberate and must be
	// preserved so other operators can rely on it.
	if n.Op == "/" && left.Kind.Intersects(numericKinds) && isNumericLiteral(n.Right) {
		if _, isZero := literalZero(n.Right); !isZero {
			t.Fallible = false
		}
	}
	return t, nil
}

func isNumericLiteral(n Node) bool {
	switch n.(type) {
	case *IntLit, *FloatLit:
		return true
	}
	return false
}

func literalZero(n Node) (Node, bool) {
	switch lit := n.(type) {
	case *IntLit:
		return lit, lit.Value == 0
	case *FloatLit:
		return lit, lit.Value == 0
	}
	return nil, false
}

