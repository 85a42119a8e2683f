package event

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Root distinguishes the two addressable roots a Path may start from.
type Root int

const (
	RootEvent Root = iota
	RootMetadata
)

// SegmentKind distinguishes the three shapes a Path segment may take.
type SegmentKind int

const (
	SegmentField SegmentKind = iota
	SegmentIndex
	SegmentCoalesce
)

// Segment is one step in a Path: a field name, an array index, or a
// coalesce group (first of several candidate field names that exists).
type Segment struct {
	Kind      SegmentKind
	Field     string
	Index     uint64
	Coalesce  []string
}

func FieldSegment(name string) Segment    { return Segment{Kind: SegmentField, Field: name} }
func IndexSegment(i uint64) Segment       { return Segment{Kind: SegmentIndex, Index: i} }
func CoalesceSegment(fs []string) Segment { return Segment{Kind: SegmentCoalesce, Coalesce: fs} }

func (s Segment) String() string {
	switch s.Kind {
	case SegmentField:
		return s.Field
	case SegmentIndex:
		return fmt.Sprintf("[%d]", s.Index)
	case SegmentCoalesce:
		return "(" + strings.Join(s.Coalesce, "|") + ")"
	default:
		return "?"
	}
}

// Path is an ordered sequence of segments addressing into a Log/Trace event,
// rooted at either the event body (".foo") or its Metadata ("%foo").
type Path struct {
	Root     Root
	Segments []Segment
}

func NewPath(root Root, segs ...Segment) Path {
	return Path{Root: root, Segments: segs}
}

// ParsePath parses the textual form used throughout VRL and config: a
// leading '.' for the event root, '%' for metadata, dotted field segments,
// and '[N]' index segments. It does not support coalesce groups, which only
// arise from the expression parser's own path-literal grammar.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, errors.New("event: empty path")
	}
	var root Root
	switch s[0] {
	case '.':
		root = RootEvent
	case '%':
		root = RootMetadata
	default:
		return Path{}, fmt.Errorf("event: path must start with '.' or '%%': %q", s)
	}
	rest := s[1:]
	var segs []Segment
	for len(rest) > 0 {
		switch {
		case rest[0] == '.':
			rest = rest[1:]
		case rest[0] == '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return Path{}, fmt.Errorf("event: unterminated index in path %q", s)
			}
			n, err := strconv.ParseUint(rest[1:end], 10, 64)
			if err != nil {
				return Path{}, fmt.Errorf("event: bad index in path %q: %w", s, err)
			}
			segs = append(segs, IndexSegment(n))
			rest = rest[end+1:]
			continue
		}
		end := len(rest)
		for i, r := range rest {
			if r == '.' || r == '[' {
				end = i
				break
			}
		}
		if end == 0 {
			return Path{}, fmt.Errorf("event: empty segment in path %q", s)
		}
		segs = append(segs, FieldSegment(rest[:end]))
		rest = rest[end:]
	}
	return Path{Root: root, Segments: segs}, nil
}

func (p Path) String() string {
	prefix := "."
	if p.Root == RootMetadata {
		prefix = "%"
	}
	var b strings.Builder
	b.WriteString(prefix)
	for i, s := range p.Segments {
		if s.Kind == SegmentIndex {
			b.WriteString(s.String())
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// ErrNotContainer is returned by Insert when a non-terminal segment resolves
// to a Value that is not an array or object: spec.md §3 requires this be an
// explicit typed error, never silent coercion.
var ErrNotContainer = errors.New("event: path segment is not addressable on a non-container value")

// Get resolves path against root, returning (value, found).
func Get(root Value, segs []Segment) (Value, bool) {
	cur := root
	for _, seg := range segs {
		switch seg.Kind {
		case SegmentField:
			obj, ok := cur.ObjectRef()
			if !ok {
				return Value{}, false
			}
			cur, ok = obj.Get(seg.Field)
			if !ok {
				return Value{}, false
			}
		case SegmentIndex:
			arr, ok := cur.ArrayVal()
			if !ok || seg.Index >= uint64(len(arr)) {
				return Value{}, false
			}
			cur = arr[seg.Index]
		case SegmentCoalesce:
			obj, ok := cur.ObjectRef()
			if !ok {
				return Value{}, false
			}
			found := false
			for _, name := range seg.Coalesce {
				if v, ok := obj.Get(name); ok {
					cur = v
					found = true
					break
				}
			}
			if !found {
				return Value{}, false
			}
		}
	}
	return cur, true
}

// Insert writes value at path within root, creating intermediate objects as
// needed but never silently coercing a non-container into one: if an
// intermediate segment addresses a Value that already exists and is not a
// container, ErrNotContainer is returned naming that segment's index.
func Insert(root *Value, segs []Segment, value Value) error {
	if len(segs) == 0 {
		*root = value
		return nil
	}
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch seg.Kind {
		case SegmentField:
			if cur.kind == KindNull {
				*cur = ObjectVal(NewObject())
			}
			obj, ok := cur.ObjectRef()
			if !ok {
				return fmt.Errorf("%w: segment %d (%s)", ErrNotContainer, i, seg)
			}
			if last {
				obj.Set(seg.Field, value)
				return nil
			}
			child, ok := obj.Get(seg.Field)
			if !ok {
				child = Null()
			}
			obj.Set(seg.Field, child)
			// re-fetch a pointer-stable slot by wrapping in a holder value
			holder := child
			if err := insertInto(obj, seg.Field, &holder, segs[i+1:], value); err != nil {
				return err
			}
			return nil
		case SegmentIndex:
			if cur.kind == KindNull {
				*cur = Array(nil)
			}
			arr, ok := cur.ArrayVal()
			if !ok {
				return fmt.Errorf("%w: segment %d (%s)", ErrNotContainer, i, seg)
			}
			for uint64(len(arr)) <= seg.Index {
				arr = append(arr, Null())
			}
			if last {
				arr[seg.Index] = value
				cur.arrV = arr
				*cur = Array(arr)
				return nil
			}
			child := arr[seg.Index]
			if err := Insert(&child, segs[i+1:], value); err != nil {
				return err
			}
			arr[seg.Index] = child
			*cur = Array(arr)
			return nil
		case SegmentCoalesce:
			return errors.New("event: cannot insert through a coalesce segment")
		}
	}
	return nil
}

func insertInto(obj *Object, key string, holder *Value, rest []Segment, value Value) error {
	if err := Insert(holder, rest, value); err != nil {
		return err
	}
	obj.Set(key, *holder)
	return nil
}
