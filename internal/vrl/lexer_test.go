package vrl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenKinds(t *testing.T, src string) []tokenKind {
	t.Helper()
	toks, err := lex(src)
	require.NoError(t, err)
	var kinds []tokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.kind)
	}
	return kinds
}

func TestLex_PathSegmentsAndIndex(t *testing.T) {
	kinds := tokenKinds(t, `.a.b[0] = 1`)
	require.Equal(t, []tokenKind{
		tokPathField, tokPathField, tokLBracket, tokInt, tokRBracket,
		tokOp, tokInt, tokEOF,
	}, kinds)
}

func TestLex_StringEscapes(t *testing.T) {
	toks, err := lex(`"a\nb\"c"`)
	require.NoError(t, err)
	require.Equal(t, "a\nb\"c", toks[0].text)
}

func TestLex_CommentsAreSkipped(t *testing.T) {
	kinds := tokenKinds(t, "# a comment\n.x = 1")
	require.Equal(t, []tokenKind{tokNewline, tokPathField, tokOp, tokInt, tokEOF}, kinds)
}

func TestLex_UnterminatedStringIsError(t *testing.T) {
	_, err := lex(`"unterminated`)
	require.Error(t, err)
}

func TestLex_FloatLiteral(t *testing.T) {
	toks, err := lex("3.14")
	require.NoError(t, err)
	require.Equal(t, tokFloat, toks[0].kind)
	require.InDelta(t, 3.14, toks[0].fval, 1e-9)
}
