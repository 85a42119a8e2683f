package searchsyntax

import (
	"strconv"
	"strings"

	"github.com/streamforge/pipeline/internal/event"
)

// Kind classifies what resolve(attr) found for a query attribute, so the
// Matcher knows which comparison semantics apply (spec.md §4.3: "the
// top-level resolver exposes resolve(path) -> (field_kind, reader)
// callbacks so the matcher is source-agnostic").
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindSet
)

// Reader is what a Resolver returns alongside a Kind: the string forms of
// the field's value(s) (for term/wildcard/comparison/range matching), an
// optional numeric form (set only when the underlying value is already
// numeric, so a range query doesn't need to reparse a float that was never
// a string), and, for KindSet fields, the membership set itself.
type Reader struct {
	Values []string
	Number *float64
	Set    map[string]struct{}
}

func (r Reader) firstNumeric() (float64, bool) {
	if r.Number != nil {
		return *r.Number, true
	}
	for _, v := range r.Values {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Resolver looks up the field named by a query attribute and reports how to
// read it. Returning KindMissing regardless of the second value signals
// "this event has no such field" for _exists_/_missing_ and for every other
// production (which then fails to match).
type Resolver func(attr string) (Kind, Reader)

// NewEventResolver builds a Resolver over a single Event: "tags" reads the
// reserved tag set (an array field for Log/Trace, the tag-value multimap
// for Metric); an "@"-prefixed attribute addresses the event's "custom"
// object; DefaultField reads every string leaf in the event (and, for
// Metric events, the metric name/namespace) as the free-text search corpus.
func NewEventResolver(ev event.Event) Resolver {
	return func(attr string) (Kind, Reader) {
		switch attr {
		case "tags":
			return resolveTags(ev)
		case DefaultField:
			return resolveDefaultField(ev)
		}

		path := attrPath(attr)
		v, ok := eventGet(ev, path)
		if !ok {
			return KindMissing, Reader{}
		}
		return valueReader(v)
	}
}

// attrPath converts a query attribute name into an event.Path: a leading
// "@" addresses spec.md's "facet" namespace, which this resolver maps to a
// "custom" object at the event root.
func attrPath(attr string) []event.Segment {
	if strings.HasPrefix(attr, "@") {
		attr = attr[1:]
		segs := []event.Segment{event.FieldSegment("custom")}
		for _, part := range strings.Split(attr, ".") {
			segs = append(segs, event.FieldSegment(part))
		}
		return segs
	}
	var segs []event.Segment
	for _, part := range strings.Split(attr, ".") {
		segs = append(segs, event.FieldSegment(part))
	}
	return segs
}

func eventGet(ev event.Event, path []event.Segment) (event.Value, bool) {
	switch ev.Kind() {
	case event.KindLog:
		return event.Get(event.ObjectVal(ev.AsLog().Fields), path)
	case event.KindTrace:
		return event.Get(event.ObjectVal(ev.AsTrace().Fields), path)
	case event.KindMetric:
		if len(path) == 1 {
			switch path[0].Field {
			case "name":
				return event.Str(ev.AsMetric().Name), true
			case "namespace":
				return event.Str(ev.AsMetric().Namespace), true
			}
		}
		return event.Value{}, false
	}
	return event.Value{}, false
}

func valueReader(v event.Value) (Kind, Reader) {
	if arr, ok := v.ArrayVal(); ok {
		set := make(map[string]struct{}, len(arr))
		var values []string
		for _, el := range arr {
			s := stringForm(el)
			set[s] = struct{}{}
			values = append(values, s)
		}
		return KindSet, Reader{Values: values, Set: set}
	}

	s := stringForm(v)
	r := Reader{Values: []string{s}}
	if i, ok := v.Integer(); ok {
		f := float64(i)
		r.Number = &f
	} else if f, ok := v.Float(); ok {
		fv := f.Value()
		r.Number = &fv
	}
	return KindString, r
}

func stringForm(v event.Value) string {
	if b, ok := v.BytesVal(); ok {
		return string(b)
	}
	return v.String()
}

func resolveTags(ev event.Event) (Kind, Reader) {
	switch ev.Kind() {
	case event.KindMetric:
		set := make(map[string]struct{})
		var values []string
		for _, vs := range ev.AsMetric().Tags {
			for _, v := range vs {
				set[v] = struct{}{}
				values = append(values, v)
			}
		}
		if len(set) == 0 {
			return KindMissing, Reader{}
		}
		return KindSet, Reader{Values: values, Set: set}
	case event.KindLog, event.KindTrace:
		v, ok := eventGet(ev, []event.Segment{event.FieldSegment("tags")})
		if !ok {
			return KindMissing, Reader{}
		}
		return valueReader(v)
	}
	return KindMissing, Reader{}
}

// resolveDefaultField gathers every string leaf value in the event (plus,
// for metrics, the name and namespace) as the corpus a bare term or phrase
// searches against. This free-text interpretation of DefaultField isn't
// pinned down by spec.md §4.3, which only specifies attribute-scoped and
// tag matching in detail; see DESIGN.md.
func resolveDefaultField(ev event.Event) (Kind, Reader) {
	var values []string
	switch ev.Kind() {
	case event.KindLog:
		values = collectStrings(event.ObjectVal(ev.AsLog().Fields), nil)
	case event.KindTrace:
		values = collectStrings(event.ObjectVal(ev.AsTrace().Fields), nil)
	case event.KindMetric:
		m := ev.AsMetric()
		if m.Name != "" {
			values = append(values, m.Name)
		}
		if m.Namespace != "" {
			values = append(values, m.Namespace)
		}
	}
	if len(values) == 0 {
		return KindMissing, Reader{}
	}
	return KindString, Reader{Values: values}
}

func collectStrings(v event.Value, out []string) []string {
	if b, ok := v.BytesVal(); ok {
		return append(out, string(b))
	}
	if arr, ok := v.ArrayVal(); ok {
		for _, el := range arr {
			out = collectStrings(el, out)
		}
		return out
	}
	if obj, ok := v.ObjectRef(); ok {
		for _, k := range obj.Keys() {
			child, _ := obj.Get(k)
			out = collectStrings(child, out)
		}
	}
	return out
}
