// Package searchsyntax implements the Datadog-compatible free-text query
// grammar from spec.md §4.3 ("Search-syntax filters"): term, quoted phrase,
// wildcard, attribute-scoped, range, existence, and boolean productions,
// compiled to a Matcher over Events via a source-agnostic resolve callback.
//
// Grounded on original_source/lib/vrl/datadog/search-syntax/src/parser.rs
// (a pest PEG grammar); this package is a hand-written recursive-descent
// parser in the idiom already established by internal/vrl's lexer/parser,
// not a transliteration of the PEG rules. A handful of the original's more
// obscure quirks (nested sub-query attribute values like `foo:(NOT *:*)`,
// and an inconsistent word-pairing rule for runs of three or more bare
// terms) are not reproduced; see DESIGN.md for what's simplified and why.
package searchsyntax

// DefaultField is the attribute name a bare term or quoted phrase binds to
// when no "attr:" prefix is given.
const DefaultField = "_default_"

// BooleanType distinguishes AND from OR grouping.
type BooleanType int

const (
	BoolAnd BooleanType = iota
	BoolOr
)

// Comparison is one of the four relational comparators a query may use
// against a single bound ("foo:<10").
type Comparison int

const (
	CompLt Comparison = iota
	CompLte
	CompGt
	CompGte
)

// ComparisonValue is the right-hand side of a Comparison or one bound of a
// Range: either a parsed number or an opaque string, decided at parse time
// by whether the token looks like a number.
type ComparisonValue struct {
	IsNumber bool
	Number   float64
	Str      string
}

func numberValue(f float64) ComparisonValue  { return ComparisonValue{IsNumber: true, Number: f} }
func stringValue(s string) ComparisonValue   { return ComparisonValue{Str: s} }

// Node is the query AST. Exactly one of the typed fields is meaningful,
// selected by Kind.
type Node struct {
	Kind NodeKind

	// AttributeTerm, QuotedAttribute, AttributeWildcard, AttributeExists,
	// AttributeMissing, AttributeComparison, AttributeRange
	Attr string

	// AttributeTerm
	Value string

	// QuotedAttribute
	Phrase string

	// AttributeWildcard
	Wildcard string

	// AttributeComparison
	Comparator Comparison
	CompValue  ComparisonValue

	// AttributeRange
	Lower, Upper                   ComparisonValue
	LowerInclusive, UpperInclusive bool
	LowerUnbounded, UpperUnbounded bool

	// NegatedNode
	Negated *Node

	// Boolean
	Oper  BooleanType
	Nodes []Node
}

// NodeKind discriminates the Node union.
type NodeKind int

const (
	NodeMatchAllDocs NodeKind = iota
	NodeMatchNoDocs
	NodeAttributeTerm
	NodeQuotedAttribute
	NodeAttributeWildcard
	NodeAttributeComparison
	NodeAttributeRange
	NodeAttributeExists
	NodeAttributeMissing
	NodeNegated
	NodeBoolean
)
