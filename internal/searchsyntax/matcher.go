package searchsyntax

import (
	"regexp"
	"strings"

	"github.com/streamforge/pipeline/internal/event"
)

// Matcher is a compiled search-syntax query: a pure function from a
// Resolver to a boolean, with no further parsing at match time.
type Matcher struct {
	root Node
}

// Compile parses query and returns a reusable Matcher.
func Compile(query string) (*Matcher, error) {
	root, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return &Matcher{root: root}, nil
}

// Match evaluates the compiled query against whatever resolve exposes.
func (m *Matcher) Match(resolve Resolver) bool {
	return evalNode(m.root, resolve)
}

// MatchEvent is a convenience wrapper that resolves directly against an
// Event via NewEventResolver.
func (m *Matcher) MatchEvent(ev event.Event) bool {
	return m.Match(NewEventResolver(ev))
}

func evalNode(n Node, resolve Resolver) bool {
	switch n.Kind {
	case NodeMatchAllDocs:
		return true
	case NodeMatchNoDocs:
		return false
	case NodeNegated:
		return !evalNode(*n.Negated, resolve)
	case NodeBoolean:
		if n.Oper == BoolAnd {
			for _, c := range n.Nodes {
				if !evalNode(c, resolve) {
					return false
				}
			}
			return true
		}
		for _, c := range n.Nodes {
			if evalNode(c, resolve) {
				return true
			}
		}
		return false
	case NodeAttributeExists:
		kind, _ := resolve(n.Attr)
		return kind != KindMissing
	case NodeAttributeMissing:
		kind, _ := resolve(n.Attr)
		return kind == KindMissing
	case NodeAttributeTerm:
		return matchTerm(n.Attr, n.Value, resolve)
	case NodeQuotedAttribute:
		return matchTerm(n.Attr, n.Phrase, resolve)
	case NodeAttributeWildcard:
		return matchWildcard(n.Attr, n.Wildcard, resolve)
	case NodeAttributeComparison:
		return matchComparison(n, resolve)
	case NodeAttributeRange:
		return matchRange(n, resolve)
	}
	return false
}

func matchTerm(attr, value string, resolve Resolver) bool {
	kind, reader := resolve(attr)
	switch kind {
	case KindMissing:
		return false
	case KindSet:
		_, ok := reader.Set[value]
		return ok
	default:
		if attr == DefaultField {
			for _, v := range reader.Values {
				if strings.Contains(strings.ToLower(v), strings.ToLower(value)) {
					return true
				}
			}
			return false
		}
		for _, v := range reader.Values {
			if v == value {
				return true
			}
		}
		return false
	}
}

func matchWildcard(attr, pattern string, resolve Resolver) bool {
	kind, reader := resolve(attr)
	if kind == KindMissing {
		return false
	}
	re := wildcardToRegexp(pattern)
	if kind == KindSet {
		for v := range reader.Set {
			if re.MatchString(v) {
				return true
			}
		}
		return false
	}
	for _, v := range reader.Values {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

func wildcardToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.MustCompile(b.String())
}

func matchComparison(n Node, resolve Resolver) bool {
	kind, reader := resolve(n.Attr)
	if kind == KindMissing {
		return false
	}
	if n.CompValue.IsNumber {
		val, ok := reader.firstNumeric()
		if !ok {
			return false
		}
		switch n.Comparator {
		case CompLt:
			return val < n.CompValue.Number
		case CompLte:
			return val <= n.CompValue.Number
		case CompGt:
			return val > n.CompValue.Number
		case CompGte:
			return val >= n.CompValue.Number
		}
		return false
	}
	if len(reader.Values) == 0 {
		return false
	}
	s := reader.Values[0]
	switch n.Comparator {
	case CompLt:
		return s < n.CompValue.Str
	case CompLte:
		return s <= n.CompValue.Str
	case CompGt:
		return s > n.CompValue.Str
	case CompGte:
		return s >= n.CompValue.Str
	}
	return false
}

// matchRange implements spec.md §8 S5: numeric coercion applies whenever
// both bounds that are present are integer/float literals, even if the
// underlying field is stored as a string.
func matchRange(n Node, resolve Resolver) bool {
	kind, reader := resolve(n.Attr)
	if kind == KindMissing {
		return false
	}

	lowerNumOK := n.LowerUnbounded || n.Lower.IsNumber
	upperNumOK := n.UpperUnbounded || n.Upper.IsNumber
	if lowerNumOK && upperNumOK {
		val, ok := reader.firstNumeric()
		if !ok {
			return false
		}
		if !n.LowerUnbounded {
			if n.LowerInclusive {
				if val < n.Lower.Number {
					return false
				}
			} else if val <= n.Lower.Number {
				return false
			}
		}
		if !n.UpperUnbounded {
			if n.UpperInclusive {
				if val > n.Upper.Number {
					return false
				}
			} else if val >= n.Upper.Number {
				return false
			}
		}
		return true
	}

	if len(reader.Values) == 0 {
		return false
	}
	s := reader.Values[0]
	if !n.LowerUnbounded {
		if n.LowerInclusive {
			if s < n.Lower.Str {
				return false
			}
		} else if s <= n.Lower.Str {
			return false
		}
	}
	if !n.UpperUnbounded {
		if n.UpperInclusive {
			if s > n.Upper.Str {
				return false
			}
		} else if s >= n.Upper.Str {
			return false
		}
	}
	return true
}
