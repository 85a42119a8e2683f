package promtext

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// MetricKind is the `# TYPE` annotation's declared metric kind.
type MetricKind int

const (
	KindUntyped MetricKind = iota
	KindCounter
	KindGauge
	KindSummary
	KindHistogram
)

func (k MetricKind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindSummary:
		return "summary"
	case KindHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Header is a parsed `# TYPE <metric_name> <kind>` line.
type Header struct {
	MetricName string
	Kind       MetricKind
}

// Metric is one parsed sample line: a name, its sorted label set, an f64
// value (which may be ±Inf or NaN), and an optional millisecond timestamp.
type Metric struct {
	Name      string
	Labels    map[string]string
	Value     float64
	Timestamp *int64
}

// SortedLabelNames returns the metric's label keys in sorted order, so
// callers that need deterministic iteration (hashing, display) don't
// re-sort a Go map themselves.
func (m Metric) SortedLabelNames() []string {
	names := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Line is the result of parsing one line of exposition text: either a
// Header or a Metric. A blank or ignorable-comment line parses to neither
// being set and no error.
type Line struct {
	Header *Header
	Metric *Metric
}

// ParseLine parses a single line of Prometheus exposition text. Blank
// lines and ordinary `#`-comments return a zero Line with no error; a
// malformed `# TYPE` line surfaces its header parse error instead of being
// silently dropped (spec.md §4.4), since the line has already committed to
// being a type declaration once `# TYPE` matched.
func ParseLine(input string) (Line, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Line{}, nil
	}

	if metric, _, err := parseMetric(trimmed); err == nil {
		return Line{Metric: &metric}, nil
	}

	if header, _, err := parseHeader(trimmed); err == nil {
		return Line{Header: &header}, nil
	}

	if looksLikeTypeHeader(trimmed) {
		_, _, err := parseHeader(trimmed)
		return Line{}, err
	}

	if strings.HasPrefix(trimmed, "#") {
		return Line{}, nil
	}

	_, _, err := parseMetric(trimmed)
	return Line{}, err
}

func looksLikeTypeHeader(input string) bool {
	rest := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(rest, "#") {
		return false
	}
	rest = strings.TrimLeft(rest[1:], " \t")
	return strings.HasPrefix(rest, "TYPE")
}

// parseHeader parses `# TYPE <metric_name> <kind>`.
func parseHeader(input string) (Header, string, error) {
	rest := trimLeadingSpace(input)
	rest, err := matchChar(rest, '#')
	if err != nil {
		return Header{}, input, err
	}
	rest = trimLeadingSpace(rest)
	rest, err = matchTag(rest, "TYPE")
	if err != nil {
		return Header{}, input, err
	}
	rest, err = requireSpace(rest)
	if err != nil {
		return Header{}, input, err
	}
	name, rest, err := parseName(rest)
	if err != nil {
		return Header{}, input, err
	}
	rest, err = requireSpace(rest)
	if err != nil {
		return Header{}, input, err
	}
	kind, rest, err := parseKind(rest)
	if err != nil {
		return Header{}, input, err
	}
	return Header{MetricName: name, Kind: kind}, rest, nil
}

func parseKind(input string) (MetricKind, string, error) {
	kinds := []struct {
		tag  string
		kind MetricKind
	}{
		{"counter", KindCounter},
		{"gauge", KindGauge},
		{"summary", KindSummary},
		{"histogram", KindHistogram},
		{"untyped", KindUntyped},
	}
	for _, k := range kinds {
		if strings.HasPrefix(input, k.tag) {
			return k.kind, input[len(k.tag):], nil
		}
	}
	return 0, input, parseErr(ErrInvalidKind, input, 0)
}

// parseMetric parses `metric_name ["{" label_name "=" '"' label_value '"' {"," ...} [","] "}"] value [timestamp]`.
func parseMetric(input string) (Metric, string, error) {
	rest := trimLeadingSpace(input)
	name, rest, err := parseName(rest)
	if err != nil {
		return Metric{}, input, err
	}
	labels, rest, err := parseLabels(rest)
	if err != nil {
		return Metric{}, input, err
	}
	value, rest, err := parseValue(rest)
	if err != nil {
		return Metric{}, input, err
	}
	ts, rest := parseTimestamp(rest)
	return Metric{Name: name, Labels: labels, Value: value, Timestamp: ts}, rest, nil
}

func parseName(input string) (string, string, error) {
	rest := trimLeadingSpace(input)
	i := 0
	for i < len(rest) && isNameStart(rune(rest[i])) {
		i++
	}
	if i == 0 {
		return "", input, parseErr(ErrInvalidName, rest, 0)
	}
	for i < len(rest) && isNameCont(rune(rest[i])) {
		i++
	}
	return rest[:i], rest[i:], nil
}

func isNameStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameCont(c rune) bool {
	return isNameStart(c) || (c >= '0' && c <= '9') || c == ':'
}

func parseLabels(input string) (map[string]string, string, error) {
	rest := trimLeadingSpace(input)
	if !strings.HasPrefix(rest, "{") {
		return map[string]string{}, rest, nil
	}
	rest = rest[1:]

	labels := map[string]string{}
	for {
		rest = trimLeadingSpace(rest)
		if strings.HasPrefix(rest, "}") {
			return labels, rest[1:], nil
		}

		name, afterName, err := parseName(rest)
		if err != nil {
			return nil, input, err
		}
		afterName = trimLeadingSpace(afterName)
		afterEq, err := matchChar(afterName, '=')
		if err != nil {
			return nil, input, err
		}
		value, afterValue, err := parseEscapedString(afterEq)
		if err != nil {
			return nil, input, err
		}
		labels[name] = value

		afterValue = trimLeadingSpace(afterValue)
		if strings.HasPrefix(afterValue, ",") {
			rest = afterValue[1:]
			continue
		}
		if strings.HasPrefix(afterValue, "}") {
			return labels, afterValue[1:], nil
		}
		return nil, input, parseErr(ErrExpectedChar, afterValue, 0)
	}
}

// parseEscapedString parses `'"' content '"'`, where content may escape
// `\\`, `\"`, and `\n`. An unterminated string is ErrUnterminated.
func parseEscapedString(input string) (string, string, error) {
	rest := trimLeadingSpace(input)
	rest, err := matchChar(rest, '"')
	if err != nil {
		return "", input, err
	}

	var sb strings.Builder
	i := 0
	for {
		if i >= len(rest) {
			return "", input, parseErr(ErrUnterminated, input, 0)
		}
		c := rest[i]
		if c == '"' {
			return sb.String(), rest[i+1:], nil
		}
		if c == '\\' {
			if i+1 >= len(rest) {
				return "", input, parseErr(ErrUnterminated, input, 0)
			}
			switch rest[i+1] {
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case 'n':
				sb.WriteByte('\n')
			default:
				return "", input, parseErr(ErrInvalidEscape, rest, i)
			}
			i += 2
			continue
		}
		sb.WriteByte(c)
		i++
	}
}

// parseValue parses an f64, or one of the special tokens +Inf, -Inf, Nan,
// NaN, preserving full f64 precision (per spec.md §4.4's ±Inf/NaN/2^53
// requirement).
func parseValue(input string) (float64, string, error) {
	rest := trimLeadingSpace(input)
	for _, special := range []struct {
		tag string
		val float64
	}{
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
		{"Nan", math.NaN()},
		{"NaN", math.NaN()},
	} {
		if strings.HasPrefix(rest, special.tag) {
			return special.val, rest[len(special.tag):], nil
		}
	}

	i := 0
	for i < len(rest) && isValueByte(rest[i]) {
		i++
	}
	if i == 0 {
		return 0, input, parseErr(ErrInvalidValue, rest, 0)
	}
	f, err := strconv.ParseFloat(rest[:i], 64)
	if err != nil {
		return 0, input, parseErr(ErrInvalidValue, rest, 0)
	}
	return f, rest[i:], nil
}

func isValueByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E'
}

// parseTimestamp parses an optional integer timestamp; absence is not an
// error, matching exposition format where the timestamp is always optional.
func parseTimestamp(input string) (*int64, string) {
	rest := trimLeadingSpace(input)
	i := 0
	if i < len(rest) && rest[i] == '-' {
		i++
	}
	start := i
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == start {
		return nil, input
	}
	ts, err := strconv.ParseInt(rest[:i], 10, 64)
	if err != nil {
		return nil, input
	}
	return &ts, rest[i:]
}

func trimLeadingSpace(s string) string {
	return strings.TrimLeft(s, " \t")
}

func matchChar(input string, c byte) (string, error) {
	rest := trimLeadingSpace(input)
	if len(rest) == 0 || rest[0] != c {
		return input, parseErr(ErrExpectedChar, input, 0)
	}
	return rest[1:], nil
}

func matchTag(input, tag string) (string, error) {
	if !strings.HasPrefix(input, tag) {
		return input, parseErr(ErrExpectedToken, input, 0)
	}
	return input[len(tag):], nil
}

func requireSpace(input string) (string, error) {
	i := 0
	for i < len(input) && (input[i] == ' ' || input[i] == '\t') {
		i++
	}
	if i == 0 {
		return input, parseErr(ErrExpectedSpace, input, 0)
	}
	return input[i:], nil
}
