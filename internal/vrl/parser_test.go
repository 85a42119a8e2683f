package vrl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/event"
)

func TestCompile_FuncCallAndStringOps(t *testing.T) {
	prog, err := Compile(`.out = upcase(.name)`, nil)
	require.NoError(t, err)

	root := newRootObject()
	require.NoError(t, event.Insert(&root, []event.Segment{event.FieldSegment("name")}, event.Bytes([]byte("alice"))))

	outcome, err := NewInterpreter(prog).Run(&root)
	require.NoError(t, err)
	require.False(t, outcome.Dropped)

	v, ok := event.Get(root, []event.Segment{event.FieldSegment("out")})
	require.True(t, ok)
	b, _ := v.BytesVal()
	require.Equal(t, "ALICE", string(b))
}

func TestCompile_CoalesceOperator(t *testing.T) {
	prog, err := Compile(`.out = to_int(.missing) ?? "fallback"`, nil)
	require.NoError(t, err)

	root := newRootObject()
	outcome, err := NewInterpreter(prog).Run(&root)
	require.NoError(t, err)
	require.False(t, outcome.Dropped)

	v, ok := event.Get(root, []event.Segment{event.FieldSegment("out")})
	require.True(t, ok)
	b, _ := v.BytesVal()
	require.Equal(t, "fallback", string(b))
}

func TestCompile_ArrayAndObjectLiterals(t *testing.T) {
	prog, err := Compile(`.items = [1, 2, 3]
.meta = {"k": "v"}`, nil)
	require.NoError(t, err)

	root := newRootObject()
	outcome, err := NewInterpreter(prog).Run(&root)
	require.NoError(t, err)
	require.False(t, outcome.Dropped)

	items, ok := event.Get(root, []event.Segment{event.FieldSegment("items")})
	require.True(t, ok)
	arr, ok := items.ArrayVal()
	require.True(t, ok)
	require.Len(t, arr, 3)

	meta, ok := event.Get(root, []event.Segment{event.FieldSegment("meta")})
	require.True(t, ok)
	obj, ok := meta.ObjectRef()
	require.True(t, ok)
	kv, ok := obj.Get("k")
	require.True(t, ok)
	b, _ := kv.BytesVal()
	require.Equal(t, "v", string(b))
}

func TestCompile_UndefinedVariableIsCompileError(t *testing.T) {
	_, err := Compile(`.x = undeclared_var`, nil)
	require.Error(t, err)
}

func TestCompile_UndefinedFunctionIsCompileError(t *testing.T) {
	_, err := Compile(`.x = not_a_real_fn(.y)`, nil)
	require.Error(t, err)
}

func TestCompile_DiscardTargetForErrIgnoresFailure(t *testing.T) {
	prog, err := Compile(`.x, _ = 1 / .amount`, nil)
	require.NoError(t, err)

	root := newRootObject()
	require.NoError(t, event.Insert(&root, []event.Segment{event.FieldSegment("amount")}, event.Integer(0)))

	outcome, err := NewInterpreter(prog).Run(&root)
	require.NoError(t, err)
	require.False(t, outcome.Dropped)

	v, ok := event.Get(root, []event.Segment{event.FieldSegment("x")})
	require.True(t, ok)
	f, ok := v.Float()
	require.True(t, ok)
	require.Equal(t, 0.0, f.Value())
}
