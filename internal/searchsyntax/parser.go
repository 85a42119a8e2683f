package searchsyntax

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse compiles a query string into a Node tree. An empty (or
// all-whitespace) query matches every event, per spec.md §4.3.
func Parse(query string) (Node, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Node{Kind: NodeMatchAllDocs}, nil
	}

	toks, err := tokenizeAll(trimmed)
	if err != nil {
		return Node{}, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return Node{}, err
	}
	if p.peek().kind != tEOF {
		return Node{}, fmt.Errorf("searchsyntax: unexpected trailing input %q", p.peek().text)
	}
	return root, nil
}

func tokenizeAll(src string) ([]tok, error) {
	l := newLexer(src)
	var toks []tok
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tEOF {
			return toks, nil
		}
	}
}

type parser struct {
	toks []tok
	pos  int
}

func (p *parser) peek() tok {
	if p.pos >= len(p.toks) {
		return tok{kind: tEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) tok {
	i := p.pos + offset
	if i >= len(p.toks) {
		return tok{kind: tEOF}
	}
	return p.toks[i]
}

func (p *parser) next() tok {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokKind, what string) (tok, error) {
	t := p.peek()
	if t.kind != k {
		return tok{}, fmt.Errorf("searchsyntax: expected %s, got %q", what, t.text)
	}
	p.pos++
	return t, nil
}

func isBoolKeyword(s string) bool {
	return s == "AND" || s == "OR" || s == "NOT"
}

// parseOr implements OR-looser-than-AND precedence: a run of AND-joined
// (explicit or implicit) clauses, separated by explicit OR keywords.
func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return Node{}, err
	}
	nodes := []Node{first}
	for p.peek().kind == tWord && p.peek().text == "OR" {
		p.next()
		n, err := p.parseAnd()
		if err != nil {
			return Node{}, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return Node{Kind: NodeBoolean, Oper: BoolOr, Nodes: nodes}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseNot()
	if err != nil {
		return Node{}, err
	}
	nodes := []Node{first}
	for {
		tk := p.peek()
		if tk.kind == tEOF || tk.kind == tRParen {
			break
		}
		if tk.kind == tWord && tk.text == "OR" {
			break
		}
		if tk.kind == tWord && tk.text == "AND" {
			p.next()
		}
		n, err := p.parseNot()
		if err != nil {
			return Node{}, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return Node{Kind: NodeBoolean, Oper: BoolAnd, Nodes: nodes}, nil
}

func negate(n Node) Node {
	if n.Kind == NodeMatchAllDocs {
		return Node{Kind: NodeMatchNoDocs}
	}
	return Node{Kind: NodeNegated, Negated: &n}
}

func (p *parser) parseNot() (Node, error) {
	tk := p.peek()
	if tk.kind == tWord && tk.text == "NOT" {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return Node{}, err
		}
		return negate(inner), nil
	}
	if tk.kind == tWord && tk.text == "-" {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return Node{}, err
		}
		return negate(inner), nil
	}
	if tk.kind == tWord && len(tk.text) > 1 && tk.text[0] == '-' {
		p.toks[p.pos].text = tk.text[1:]
		inner, err := p.parseNot()
		if err != nil {
			return Node{}, err
		}
		return negate(inner), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tk := p.peek()
	switch tk.kind {
	case tLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return Node{}, err
		}
		if _, err := p.expect(tRParen, "')'"); err != nil {
			return Node{}, err
		}
		return inner, nil
	case tQuoted:
		p.next()
		return Node{Kind: NodeQuotedAttribute, Attr: DefaultField, Phrase: tk.text}, nil
	case tWord:
		return p.parseTermOrAttr()
	default:
		return Node{}, fmt.Errorf("searchsyntax: unexpected token %q", tk.text)
	}
}

// peekIsAttrStart reports whether the token at offset is a bareword
// immediately followed by ':', i.e. the start of an "attr:value" clause.
func (p *parser) peekIsAttrStart(offset int) bool {
	return p.peekAt(offset).kind == tWord && p.peekAt(offset+1).kind == tColon
}

func (p *parser) parseTermOrAttr() (Node, error) {
	name := p.next().text

	if p.peek().kind == tColon {
		p.next()
		return p.parseAttrValue(name)
	}

	words := []string{name}
	for p.peek().kind == tWord && !isBoolKeyword(p.peek().text) && !p.peekIsAttrStart(0) {
		words = append(words, p.next().text)
	}
	if len(words) == 1 {
		return buildValueNode(DefaultField, words[0]), nil
	}
	return Node{Kind: NodeAttributeTerm, Attr: DefaultField, Value: strings.Join(words, " ")}, nil
}

func containsWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// buildValueNode classifies a single literal value as a wildcard pattern or
// a plain term, collapsing the two "match everything" spellings
// ("*:*" and "_default_:*", plus the bare "*" term) to MatchAllDocs.
func buildValueNode(attr, text string) Node {
	if containsWildcard(text) {
		if text == "*" && (attr == DefaultField || attr == "*") {
			return Node{Kind: NodeMatchAllDocs}
		}
		return Node{Kind: NodeAttributeWildcard, Attr: attr, Wildcard: text}
	}
	return Node{Kind: NodeAttributeTerm, Attr: attr, Value: text}
}

func (p *parser) parseAttrValue(attr string) (Node, error) {
	if attr == "_exists_" || attr == "_missing_" {
		tk := p.peek()
		var value string
		switch tk.kind {
		case tWord:
			p.next()
			value = tk.text
		case tQuoted:
			p.next()
			value = tk.text
		default:
			return Node{}, fmt.Errorf("searchsyntax: %s requires a field name", attr)
		}
		if attr == "_exists_" {
			return Node{Kind: NodeAttributeExists, Attr: value}, nil
		}
		return Node{Kind: NodeAttributeMissing, Attr: value}, nil
	}

	tk := p.peek()
	switch tk.kind {
	case tQuoted:
		p.next()
		return Node{Kind: NodeQuotedAttribute, Attr: attr, Phrase: tk.text}, nil
	case tLBracket, tLBrace:
		return p.parseRange(attr)
	case tLt, tLte, tGt, tGte:
		return p.parseComparison(attr)
	case tLParen:
		p.next()
		inner := p.peek()
		var text string
		switch inner.kind {
		case tWord:
			p.next()
			text = inner.text
		case tQuoted:
			p.next()
			if _, err := p.expect(tRParen, "')'"); err != nil {
				return Node{}, err
			}
			return Node{Kind: NodeQuotedAttribute, Attr: attr, Phrase: inner.text}, nil
		default:
			return Node{}, fmt.Errorf("searchsyntax: expected value inside parentheses for %q", attr)
		}
		if _, err := p.expect(tRParen, "')'"); err != nil {
			return Node{}, err
		}
		return buildValueNode(attr, text), nil
	case tWord:
		p.next()
		return buildValueNode(attr, tk.text), nil
	default:
		return Node{}, fmt.Errorf("searchsyntax: expected value for %q, got %q", attr, tk.text)
	}
}

func (p *parser) parseComparison(attr string) (Node, error) {
	var comp Comparison
	switch p.next().kind {
	case tLt:
		comp = CompLt
	case tLte:
		comp = CompLte
	case tGt:
		comp = CompGt
	case tGte:
		comp = CompGte
	}
	tk, err := p.expect(tWord, "comparison value")
	if err != nil {
		return Node{}, err
	}
	return Node{Kind: NodeAttributeComparison, Attr: attr, Comparator: comp, CompValue: parseComparisonValue(tk.text)}, nil
}

func parseComparisonValue(text string) ComparisonValue {
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return numberValue(f)
	}
	return stringValue(text)
}

func (p *parser) parseRange(attr string) (Node, error) {
	open := p.next() // tLBracket or tLBrace
	inclusive := open.kind == tLBracket

	lower, lowerUnbounded, err := p.parseRangeBound()
	if err != nil {
		return Node{}, err
	}
	to, err := p.expect(tWord, "'TO'")
	if err != nil {
		return Node{}, err
	}
	if to.text != "TO" {
		return Node{}, fmt.Errorf("searchsyntax: expected 'TO' in range, got %q", to.text)
	}
	upper, upperUnbounded, err := p.parseRangeBound()
	if err != nil {
		return Node{}, err
	}

	var closeErr error
	if inclusive {
		_, closeErr = p.expect(tRBracket, "']'")
	} else {
		_, closeErr = p.expect(tRBrace, "'}'")
	}
	if closeErr != nil {
		return Node{}, closeErr
	}

	return Node{
		Kind:           NodeAttributeRange,
		Attr:           attr,
		Lower:          lower,
		Upper:          upper,
		LowerInclusive: inclusive,
		UpperInclusive: inclusive,
		LowerUnbounded: lowerUnbounded,
		UpperUnbounded: upperUnbounded,
	}, nil
}

func (p *parser) parseRangeBound() (ComparisonValue, bool, error) {
	tk, err := p.expect(tWord, "range bound")
	if err != nil {
		return ComparisonValue{}, false, err
	}
	if tk.text == "*" {
		return ComparisonValue{}, true, nil
	}
	return parseComparisonValue(tk.text), false, nil
}
