package vrl

// opRule describes, for one binary operator, which operand kinds are
// accepted and what the resulting TypeDef is. Rules are tried in order;
// the first whose Left/Right masks both intersect the operands' inferred
// kinds applies. This table is the direct transcription of spec.md
// §4.3's operator type/fallibility table.
type opRule struct {
	Left, Right Kind
	Result      Kind
	Fallible    bool
}

var numericKinds = KindInteger | KindFloat

var arithmeticRules = map[string][]opRule{
	"*": {
		{Left: KindString, Right: KindInteger, Result: KindString},
		{Left: KindInteger, Right: KindString, Result: KindString},
		{Left: KindInteger, Right: KindInteger, Result: KindInteger},
		{Left: numericKinds, Right: numericKinds, Result: KindFloat},
	},
	"+": {
		{Left: KindString, Right: KindString | KindNull, Result: KindString},
		{Left: KindInteger, Right: KindInteger, Result: KindInteger},
		{Left: numericKinds, Right: numericKinds, Result: KindFloat},
	},
	"-": {
		{Left: KindInteger, Right: KindInteger, Result: KindInteger},
		{Left: numericKinds, Right: numericKinds, Result: KindFloat},
	},
	"|": {
		{Left: KindObject, Right: KindObject, Result: KindObject},
	},
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// resultOf looks up the rule for op given the operands' inferred kinds
// and returns the resulting TypeDef, or false if no rule matches (a type
// error the caller reports as a CompileError).
func resultOf(op string, left, right TypeDef) (TypeDef, bool) {
	switch op {
	case "??":
		// Error-coalesce: lhs must be fallible (checked by the caller using
		// the AST, not just the Kind); result is lhs∪rhs, infallible only
		// if rhs is infallible.
		return TypeDef{
			Kind:     left.Kind | right.Kind,
			Fallible: right.Fallible,
		}, true

	case "&&":
		// null/bool × null/bool -> bool, short-circuit on null/false lhs.
		allowed := KindBool | KindNull
		if !left.Kind.Intersects(allowed) || !right.Kind.Intersects(allowed) {
			return TypeDef{}, false
		}
		return TypeDef{Kind: KindBool, Fallible: left.Fallible || right.Fallible}, true

	case "||":
		// any × any -> rhs kind if lhs ⊆ null, else (lhs∪rhs) minus null;
		// short-circuits on non-null non-false lhs.
		var resultKind Kind
		if left.Kind != 0 && left.Kind&^KindNull == 0 {
			resultKind = right.Kind
		} else {
			resultKind = (left.Kind | right.Kind) &^ KindNull
		}
		return TypeDef{Kind: resultKind, Fallible: left.Fallible || right.Fallible}, true

	case "/":
		if !left.Kind.Intersects(numericKinds) || !right.Kind.Intersects(numericKinds) {
			return TypeDef{}, false
		}
		// Fallibility is refined by the caller (inferBinary) using the
		// literal-ness of the rhs AST node, per spec.md §4.3's rule that
		// division by a literal non-zero int/float is statically safe.
		return TypeDef{Kind: KindFloat, Fallible: true}, true
	}

	if comparisonOps[op] {
		comparable := numericKinds | KindString
		if op != "==" && op != "!=" {
			if !left.Kind.Intersects(comparable) || !right.Kind.Intersects(comparable) {
				return TypeDef{}, false
			}
		}
		return TypeDef{Kind: KindBool, Fallible: left.Fallible || right.Fallible}, true
	}

	rules, known := arithmeticRules[op]
	if !known {
		return TypeDef{}, false
	}
	for _, r := range rules {
		if left.Kind.Intersects(r.Left) && right.Kind.Intersects(r.Right) {
			return TypeDef{
				Kind:     r.Result,
				Fallible: r.Fallible || left.Fallible || right.Fallible,
			}, true
		}
	}
	return TypeDef{}, false
}

// unaryResultOf mirrors resultOf for the two unary operators.
func unaryResultOf(op string, operand TypeDef) (TypeDef, bool) {
	switch op {
	case "!":
		if !operand.Kind.Intersects(KindBool) {
			return TypeDef{}, false
		}
		return TypeDef{Kind: KindBool, Fallible: operand.Fallible}, true
	case "-":
		if !operand.Kind.Intersects(numericKinds) {
			return TypeDef{}, false
		}
		result := operand.Kind & numericKinds
		return TypeDef{Kind: result, Fallible: operand.Fallible}, true
	}
	return TypeDef{}, false
}
