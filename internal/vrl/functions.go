package vrl

import "fmt"

// funcSig describes a built-in function's accepted argument kinds and
// its result TypeDef. Argument count is fixed per entry; variadic
// built-ins are not part of this language.
type funcSig struct {
	Args     []Kind
	Result   Kind
	Fallible bool
}

var builtins = map[string]funcSig{
	"upcase":      {Args: []Kind{KindString}, Result: KindString},
	"downcase":    {Args: []Kind{KindString}, Result: KindString},
	"trim":        {Args: []Kind{KindString}, Result: KindString},
	"length":      {Args: []Kind{KindString | KindArray | KindObject}, Result: KindInteger},
	"contains":    {Args: []Kind{KindString, KindString}, Result: KindBool},
	"starts_with": {Args: []Kind{KindString, KindString}, Result: KindBool},
	"ends_with":   {Args: []Kind{KindString, KindString}, Result: KindBool},
	"to_string":   {Args: []Kind{kindAny}, Result: KindString},
	"to_int":      {Args: []Kind{kindAny}, Result: KindInteger, Fallible: true},
	"to_float":    {Args: []Kind{kindAny}, Result: KindFloat, Fallible: true},
	"parse_json":  {Args: []Kind{KindString}, Result: kindAny, Fallible: true},
	"exists":      {Args: []Kind{kindAny}, Result: KindBool},
	"is_null":     {Args: []Kind{kindAny}, Result: KindBool},
}

func (p *parser) inferFuncCall(n *FuncCall) (TypeDef, error) {
	sig, ok := builtins[n.Name]
	if !ok {
		return TypeDef{}, &CompileError{Message: fmt.Sprintf("undefined function %q", n.Name), Span: n.Span}
	}
	if len(n.Args) != len(sig.Args) {
		return TypeDef{}, &CompileError{
			Message: fmt.Sprintf("%s() expects %d argument(s), got %d", n.Name, len(sig.Args), len(n.Args)),
			Span:    n.Span,
		}
	}
	fallibleAny := sig.Fallible
	for i, argNode := range n.Args {
		t, err := p.inferExpr(argNode)
		if err != nil {
			return TypeDef{}, err
		}
		if !t.Kind.Intersects(sig.Args[i]) {
			return TypeDef{}, &CompileError{
				Message: fmt.Sprintf("%s() argument %d expects %s, got %s", n.Name, i+1, sig.Args[i], t.Kind),
				Span:    argNode.span(),
			}
		}
		fallibleAny = fallibleAny || t.Fallible
	}
	return TypeDef{Kind: sig.Result, Fallible: fallibleAny}, nil
}
