package vrl

import "fmt"

// parser performs a single recursive-descent pass that builds the AST and
// type-checks it simultaneously, per spec.md §4.3: there is no untyped
// AST stage, a program that parses successfully is already known sound.
type parser struct {
	toks []token
	pos  int
	ts   *typeState
}

// Compile lexes, parses, and type-checks src, returning a Program ready
// for interpretation or VM compilation. readOnlyMounts lists path
// prefixes (e.g. ".metadata") that the program may read but not assign
// into.
func Compile(src string, readOnlyMounts []string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, ts: newTypeState(readOnlyMounts)}
	stmts, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	root := infallible(KindNull)
	if len(stmts) > 0 {
		root = p.typeOfLastStmt(stmts[len(stmts)-1])
	}
	return &Program{Stmts: stmts, Root: root}, nil
}

func (p *parser) typeOfLastStmt(n Node) TypeDef {
	switch s := n.(type) {
	case *Assignment:
		return infallible(KindBool)
	case *AbortStmt:
		return fallible(kindAny)
	default:
		t, _ := p.inferExpr(n)
		return t
	}
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) peek() token { return p.cur() }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) skipNewlines() {
	for p.cur().kind == tokNewline {
		p.advance()
	}
}

func (p *parser) expect(k tokenKind, desc string) (token, error) {
	if p.cur().kind != k {
		return token{}, &CompileError{
			Message: fmt.Sprintf("expected %s, found %q", desc, p.cur().text),
			Span:    p.cur().span,
		}
	}
	return p.advance(), nil
}

func (p *parser) parseProgram() ([]Node, error) {
	var stmts []Node
	p.skipNewlines()
	for p.cur().kind != tokEOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipNewlines()
	}
	return stmts, nil
}

func (p *parser) parseStmt() (Node, error) {
	if p.cur().kind == tokAbort {
		return p.parseAbort()
	}

	start := p.pos
	if assign, ok, err := p.tryParseAssignment(); ok || err != nil {
		return assign, err
	}
	p.pos = start

	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.inferExpr(expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// parseIfExpr parses `if cond { ... } [else { ... }]`. Its branches are
// type-checked as they're parsed, against cloned typeState, and merged
// back into the parser's real state once both are known; the resulting
// TypeDef is stored on the node so a later tree-walk (inferExpr) need
// not re-run branch side effects.
func (p *parser) parseIfExpr() (Node, error) {
	startTok := p.advance() // 'if'

	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	condType, err := p.inferExpr(cond)
	if err != nil {
		return nil, err
	}
	if !condType.Kind.Intersects(KindBool) {
		return nil, &CompileError{Message: "if condition must be boolean", Span: cond.span()}
	}

	saved := p.ts
	p.ts = saved.clone()
	conseq, err := p.parseBraceBlock()
	if err != nil {
		return nil, err
	}
	conseqType := p.blockType(conseq)
	conseqTS := p.ts

	var altern *Block
	alternType := infallible(KindNull)
	p.skipNewlines()
	if p.cur().kind == tokIdent && p.cur().text == "else" {
		p.advance()
		p.ts = saved.clone()
		altern, err = p.parseBraceBlock()
		if err != nil {
			return nil, err
		}
		alternType = p.blockType(altern)
		conseqTS.mergeBranch(p.ts)
	} else {
		conseqTS.mergeBranch(saved)
	}
	p.ts = conseqTS

	result := conseqType.union(alternType)
	result.Fallible = result.Fallible || condType.Fallible

	end := p.toks[p.pos-1].span
	return &IfExpr{
		baseNode: baseNode{Span{startTok.span.Start, end.End}},
		Cond:     cond,
		Conseq:   conseq,
		Altern:   altern,
		Type:     result,
	}, nil
}

func (p *parser) blockType(b *Block) TypeDef {
	if len(b.Stmts) == 0 {
		return infallible(KindNull)
	}
	return p.typeOfLastStmt(b.Stmts[len(b.Stmts)-1])
}

func (p *parser) parseBraceBlock() (*Block, error) {
	start, err := p.expect(tokLBrace, "{")
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	var stmts []Node
	for p.cur().kind != tokRBrace {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipNewlines()
	}
	end, err := p.expect(tokRBrace, "}")
	if err != nil {
		return nil, err
	}
	return &Block{baseNode{Span{start.span.Start, end.span.End}}, stmts}, nil
}

func (p *parser) parseAbort() (Node, error) {
	tok := p.advance() // consume 'abort'
	var msg Node
	if p.cur().kind == tokString {
		m, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		mt, err := p.inferExpr(m)
		if err != nil {
			return nil, err
		}
		if !mt.Kind.Intersects(KindString) {
			return nil, &CompileError{Message: "abort message must be a string", Span: m.span()}
		}
		msg = m
	}
	return &AbortStmt{baseNode: baseNode{Span{tok.span.Start, p.cur().span.Start}}, Message: msg}, nil
}

// tryParseAssignment speculatively parses `target[, errTarget] = expr`.
// If the lookahead doesn't match (no top-level '=' before a newline), it
// returns ok=false so the caller can backtrack and parse a bare
// expression instead.
func (p *parser) tryParseAssignment() (Node, bool, error) {
	startPos := p.pos
	target, err := p.parseAssignTarget()
	if err != nil {
		p.pos = startPos
		return nil, false, nil
	}

	var errTarget Node
	if p.cur().kind == tokComma {
		p.advance()
		errTarget, err = p.parseAssignTarget()
		if err != nil {
			p.pos = startPos
			return nil, false, nil
		}
	}

	if !(p.cur().kind == tokOp && p.cur().text == "=") {
		p.pos = startPos
		return nil, false, nil
	}
	eqTok := p.advance()

	value, err := p.parseExpr()
	if err != nil {
		return nil, true, err
	}

	valType, err := p.inferExpr(value)
	if err != nil {
		return nil, true, err
	}

	if errTarget == nil {
		if valType.Fallible {
			return nil, true, &CompileError{
				Message: "right-hand side is fallible and must be assigned with the two-target form `target, err = expr`",
				Span:    eqTok.span,
			}
		}
	} else {
		if !valType.Fallible {
			return nil, true, &CompileError{
				Message: "right-hand side is infallible; the two-target error form is unnecessary here",
				Span:    eqTok.span,
				Hint:    "use the single-target form `target = expr`",
			}
		}
	}

	if err := p.checkAssignTarget(target, TypeDef{Kind: valType.Kind}); err != nil {
		return nil, true, err
	}
	if errTarget != nil {
		if err := p.checkAssignTarget(errTarget, infallible(KindString|KindNull)); err != nil {
			return nil, true, err
		}
	}

	node := &Assignment{
		baseNode:  baseNode{Span{target.span().Start, p.toks[p.pos-1].span.End}},
		Target:    target,
		ErrTarget: errTarget,
		Value:     value,
	}
	return node, true, nil
}

func (p *parser) parseAssignTarget() (Node, error) {
	switch p.cur().kind {
	case tokUnderscore:
		t := p.advance()
		return &DiscardExpr{baseNode{t.span}}, nil
	case tokIdent:
		t := p.advance()
		return &VarExpr{baseNode{t.span}, t.text}, nil
	case tokPathField, tokDot:
		return p.parsePath()
	}
	return nil, &CompileError{Message: "expected assignment target", Span: p.cur().span}
}

// checkAssignTarget records the target's new type in typeState,
// rejecting read-only-mount writes and path-shape overwrites (S7).
func (p *parser) checkAssignTarget(target Node, t TypeDef) error {
	switch tgt := target.(type) {
	case *DiscardExpr:
		return nil
	case *VarExpr:
		p.ts.vars[tgt.Name] = t
		return nil
	case *PathExpr:
		if p.ts.isReadOnly(tgt) {
			return &CompileError{
				Message: fmt.Sprintf("cannot assign to read-only path %s", pathKey(tgt)),
				Span:    tgt.Span,
			}
		}
		if conflictKey, conflictType, bad := p.ts.overwrites(tgt); bad {
			return &CompileError{
				Message: fmt.Sprintf("cannot write %s because %s is already typed %s", pathKey(tgt), conflictKey, conflictType.Kind),
				Span:    tgt.Span,
				Hint:    fmt.Sprintf("delete %s first, or write to a path that does not conflict with its existing type", conflictKey),
			}
		}
		p.ts.paths[pathKey(tgt)] = t
		return nil
	}
	return &CompileError{Message: "invalid assignment target", Span: target.span()}
}

func (p *parser) parsePath() (*PathExpr, error) {
	start := p.cur().span
	var segs []PathSegment
	for {
		if p.cur().kind == tokPathField {
			t := p.advance()
			segs = append(segs, PathSegment{Field: t.text})
		} else if p.cur().kind == tokDot && len(segs) == 0 {
			p.advance()
			break
		} else {
			break
		}
		for p.cur().kind == tokLBracket {
			p.advance()
			idxTok, err := p.expect(tokInt, "array index")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket, "]"); err != nil {
				return nil, err
			}
			segs = append(segs, PathSegment{IsIdx: true, Index: int(idxTok.ival)})
		}
	}
	end := start
	if p.pos > 0 {
		end = p.toks[p.pos-1].span
	}
	return &PathExpr{baseNode{Span{start.Start, end.End}}, segs}, nil
}

// Expression parsing, lowest to highest precedence:
//   ??  ||  |  &&  == != < <= > >=  + -  * /  unary  primary

func (p *parser) parseExpr() (Node, error) { return p.parseCoalesce() }

func (p *parser) parseCoalesce() (Node, error) {
	return p.parseBinaryLevel([]string{"??"}, p.parseOr)
}
func (p *parser) parseOr() (Node, error) {
	return p.parseBinaryLevel([]string{"||"}, p.parseMerge)
}
func (p *parser) parseMerge() (Node, error) {
	return p.parseBinaryLevel([]string{"|"}, p.parseAnd)
}
func (p *parser) parseAnd() (Node, error) {
	return p.parseBinaryLevel([]string{"&&"}, p.parseComparison)
}
func (p *parser) parseComparison() (Node, error) {
	return p.parseBinaryLevel([]string{"==", "!=", "<", "<=", ">", ">="}, p.parseAdditive)
}
func (p *parser) parseAdditive() (Node, error) {
	return p.parseBinaryLevel([]string{"+", "-"}, p.parseMultiplicative)
}
func (p *parser) parseMultiplicative() (Node, error) {
	return p.parseBinaryLevel([]string{"*", "/"}, p.parseUnary)
}

func (p *parser) parseBinaryLevel(ops []string, next func() (Node, error)) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && containsStr(ops, p.cur().text) {
		opTok := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{baseNode{Span{left.span().Start, right.span().End}}, opTok.text, left, right}
	}
	return left, nil
}

func containsStr(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (p *parser) parseUnary() (Node, error) {
	if p.cur().kind == tokOp && (p.cur().text == "!" || p.cur().text == "-") {
		opTok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{baseNode{Span{opTok.span.Start, operand.span().End}}, opTok.text, operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.cur()
	switch t.kind {
	case tokInt:
		p.advance()
		return &IntLit{baseNode{t.span}, t.ival}, nil
	case tokFloat:
		p.advance()
		return &FloatLit{baseNode{t.span}, t.fval}, nil
	case tokString:
		p.advance()
		return &StringLit{baseNode{t.span}, t.text}, nil
	case tokBool:
		p.advance()
		return &BoolLit{baseNode{t.span}, t.text == "true"}, nil
	case tokNull:
		p.advance()
		return &NullLit{baseNode{t.span}}, nil
	case tokUnderscore:
		p.advance()
		return &DiscardExpr{baseNode{t.span}}, nil
	case tokPathField, tokDot:
		return p.parsePath()
	case tokLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		return p.parseArrayLit()
	case tokLBrace:
		return p.parseObjectLit()
	case tokIdent:
		if t.text == "if" {
			return p.parseIfExpr()
		}
		if p.toks[p.pos+1].kind == tokLParen {
			return p.parseFuncCall()
		}
		p.advance()
		return &VarExpr{baseNode{t.span}, t.text}, nil
	}
	return nil, &CompileError{Message: fmt.Sprintf("unexpected token %q", t.text), Span: t.span}
}

func (p *parser) parseArrayLit() (Node, error) {
	start := p.advance() // [
	var elems []Node
	for p.cur().kind != tokRBracket {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	end, err := p.expect(tokRBracket, "]")
	if err != nil {
		return nil, err
	}
	return &ArrayLit{baseNode{Span{start.span.Start, end.span.End}}, elems}, nil
}

func (p *parser) parseObjectLit() (Node, error) {
	start := p.advance() // {
	var entries []ObjectEntry
	for p.cur().kind != tokRBrace {
		keyTok, err := p.expect(tokString, "object key")
		if err != nil {
			return nil, err
		}
		if !(p.cur().kind == tokOp && p.cur().text == ":") {
			return nil, &CompileError{Message: "expected ':' after object key", Span: p.cur().span}
		}
		p.advance()
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ObjectEntry{Key: keyTok.text, Value: val})
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	end, err := p.expect(tokRBrace, "}")
	if err != nil {
		return nil, err
	}
	return &ObjectLit{baseNode{Span{start.span.Start, end.span.End}}, entries}, nil
}

func (p *parser) parseFuncCall() (Node, error) {
	nameTok := p.advance()
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	var args []Node
	for p.cur().kind != tokRParen {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	end, err := p.expect(tokRParen, ")")
	if err != nil {
		return nil, err
	}
	return &FuncCall{baseNode{Span{nameTok.span.Start, end.span.End}}, nameTok.text, args}, nil
}
