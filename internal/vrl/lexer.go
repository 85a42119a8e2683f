package vrl

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokPathField  // .foo
	tokInt
	tokFloat
	tokString
	tokBool
	tokNull
	tokAbort
	tokUnderscore // `_`, the discard target
	tokOp
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
	tokDot
	tokNewline
)

type token struct {
	kind tokenKind
	text string
	span Span
	ival int64
	fval float64
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.toks = append(l.toks, tok)
		if tok.kind == tokEOF {
			break
		}
	}
	return l.toks, nil
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\r' {
			l.pos++
			continue
		}
		if c == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		break
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentCont(c byte) bool { return isIdentStart(c) || isDigit(c) }

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos

	if l.pos >= len(l.src) {
		return token{kind: tokEOF, span: Span{start, start}}, nil
	}

	c := l.src[l.pos]

	if c == '\n' {
		l.pos++
		return token{kind: tokNewline, span: Span{start, l.pos}}, nil
	}

	if c == '.' {
		l.pos++
		if isIdentStart(l.peekByte()) {
			fieldStart := l.pos
			for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
				l.pos++
			}
			return token{kind: tokPathField, text: l.src[fieldStart:l.pos], span: Span{start, l.pos}}, nil
		}
		return token{kind: tokDot, span: Span{start, l.pos}}, nil
	}

	if isDigit(c) {
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
		if l.peekByte() == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
			l.pos++
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
			var f float64
			fmt.Sscanf(l.src[start:l.pos], "%g", &f)
			return token{kind: tokFloat, text: l.src[start:l.pos], fval: f, span: Span{start, l.pos}}, nil
		}
		var i int64
		fmt.Sscanf(l.src[start:l.pos], "%d", &i)
		return token{kind: tokInt, text: l.src[start:l.pos], ival: i, span: Span{start, l.pos}}, nil
	}

	if c == '"' {
		l.pos++
		var sb strings.Builder
		for {
			if l.pos >= len(l.src) {
				return token{}, &CompileError{Message: "unterminated string literal", Span: Span{start, l.pos}}
			}
			ch := l.src[l.pos]
			if ch == '"' {
				l.pos++
				break
			}
			if ch == '\\' && l.pos+1 < len(l.src) {
				switch l.src[l.pos+1] {
				case '\\':
					sb.WriteByte('\\')
				case '"':
					sb.WriteByte('"')
				case 'n':
					sb.WriteByte('\n')
				default:
					return token{}, &CompileError{Message: "invalid escape sequence", Span: Span{l.pos, l.pos + 2}}
				}
				l.pos += 2
				continue
			}
			sb.WriteByte(ch)
			l.pos++
		}
		return token{kind: tokString, text: sb.String(), span: Span{start, l.pos}}, nil
	}

	if isIdentStart(c) {
		for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
			l.pos++
		}
		word := l.src[start:l.pos]
		switch word {
		case "true", "false":
			return token{kind: tokBool, text: word, span: Span{start, l.pos}}, nil
		case "null":
			return token{kind: tokNull, text: word, span: Span{start, l.pos}}, nil
		case "abort":
			return token{kind: tokAbort, text: word, span: Span{start, l.pos}}, nil
		case "_":
			return token{kind: tokUnderscore, text: word, span: Span{start, l.pos}}, nil
		default:
			return token{kind: tokIdent, text: word, span: Span{start, l.pos}}, nil
		}
	}

	switch c {
	case '(':
		l.pos++
		return token{kind: tokLParen, span: Span{start, l.pos}}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, span: Span{start, l.pos}}, nil
	case '{':
		l.pos++
		return token{kind: tokLBrace, span: Span{start, l.pos}}, nil
	case '}':
		l.pos++
		return token{kind: tokRBrace, span: Span{start, l.pos}}, nil
	case '[':
		l.pos++
		return token{kind: tokLBracket, span: Span{start, l.pos}}, nil
	case ']':
		l.pos++
		return token{kind: tokRBracket, span: Span{start, l.pos}}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, span: Span{start, l.pos}}, nil
	}

	// Operators, longest match first.
	for _, op := range []string{"??", "==", "!=", "<=", ">=", "&&", "||", "=", "+", "-", "*", "/", "<", ">", "|", "!", ":"} {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			return token{kind: tokOp, text: op, span: Span{start, l.pos}}, nil
		}
	}

	return token{}, &CompileError{Message: fmt.Sprintf("unexpected character %q", c), Span: Span{start, start + 1}}
}
