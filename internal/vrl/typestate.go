package vrl

// typeState tracks the inferred TypeDef of every local variable and every
// known event path as the type checker walks a program, per spec.md
// §4.3's soundness requirement: a compiled program never raises a type
// error at runtime because every operation was checked against the
// narrowest type its operands could have had at that point in the
// program.
type typeState struct {
	vars  map[string]TypeDef
	paths map[string]TypeDef // keyed by pathKey(PathExpr)

	// readOnlyMounts lists path prefixes that are read-only for this program, e.g.
	// metadata mounted from an upstream stage. Assigning into one of these
	// is a CompileError.
	readOnlyMounts []string
}

func newTypeState(readOnlyMounts []string) *typeState {
	return &typeState{
		vars:           make(map[string]TypeDef),
		paths:          make(map[string]TypeDef),
		readOnlyMounts: readOnlyMounts,
	}
}

func (ts *typeState) clone() *typeState {
	n := &typeState{
		vars:           make(map[string]TypeDef, len(ts.vars)),
		paths:          make(map[string]TypeDef, len(ts.paths)),
		readOnlyMounts: ts.readOnlyMounts,
	}
	for k, v := range ts.vars {
		n.vars[k] = v
	}
	for k, v := range ts.paths {
		n.paths[k] = v
	}
	return n
}

// mergeBranch widens ts in place to account for a divergent branch o
// (e.g. the else of an if), per the union rule: a variable known in both
// branches keeps its union type; a variable known in only one branch
// becomes possibly-null from the other branch's perspective.
func (ts *typeState) mergeBranch(o *typeState) {
	for k, v := range o.vars {
		if cur, ok := ts.vars[k]; ok {
			ts.vars[k] = cur.union(v)
		} else {
			ts.vars[k] = v.union(infallible(KindNull))
		}
	}
	for k := range ts.vars {
		if _, ok := o.vars[k]; !ok {
			ts.vars[k] = ts.vars[k].union(infallible(KindNull))
		}
	}
	for k, v := range o.paths {
		if cur, ok := ts.paths[k]; ok {
			ts.paths[k] = cur.union(v)
		} else {
			ts.paths[k] = v.union(infallible(KindNull))
		}
	}
}

func pathKey(p *PathExpr) string {
	s := ""
	for _, seg := range p.Segments {
		if seg.IsIdx {
			s += "[" + itoa(seg.Index) + "]"
		} else {
			s += "." + seg.Field
		}
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// isReadOnly reports whether path p falls under one of ts's read-only
// mount prefixes.
func (ts *typeState) isReadOnly(p *PathExpr) bool {
	key := pathKey(p)
	for _, m := range ts.readOnlyMounts {
		if len(key) >= len(m) && key[:len(m)] == m {
			return true
		}
	}
	return false
}

// overwrites reports whether assigning kind newKind into path p would
// change the shape of an existing typed parent: e.g. if `.a.b` is known
// to be an integer and the program writes `.a.b.c = 1`, that treats `.a.b`
// as an object, which is a CompileError per spec.md §4.3's path
// overwritability rule (S7). Returns the offending parent path and its
// recorded type when a conflict exists.
func (ts *typeState) overwrites(p *PathExpr) (conflictKey string, conflictType TypeDef, ok bool) {
	prefix := ""
	for i, seg := range p.Segments {
		if i == len(p.Segments)-1 {
			break
		}
		if seg.IsIdx {
			prefix += "[" + itoa(seg.Index) + "]"
		} else {
			prefix += "." + seg.Field
		}
		next := p.Segments[i+1]
		needed := KindObject
		if next.IsIdx {
			needed = KindArray
		}
		if t, known := ts.paths[prefix]; known {
			if !t.Kind.Intersects(needed) {
				return prefix, t, true
			}
		}
	}
	return "", TypeDef{}, false
}
