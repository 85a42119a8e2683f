package vrl

import (
	"bytes"
	"fmt"

	"github.com/streamforge/pipeline/internal/event"
)

// opcode is one instruction of the stack-machine bytecode form. The VM is
// a faster alternative to the Interpreter for hot paths with identical
// semantics; it is compiled once per Program and reused across events.
type opcode int

const (
	opPushConst opcode = iota
	opLoadVar
	opStoreVar
	opLoadPath
	opStorePath
	opDiscard
	opBinOp
	opUnaryOp
	opJump
	opJumpIfFalse
	opJumpIfErr    // jump if the error slot is set
	opClearErr     // clear the error slot, pushing its message (or "") as TOS
	opCall
	opAbort
	opDup
	opPop
)

type instruction struct {
	op     opcode
	operand any // const value, var name, path segments, jump target, etc.
}

// Bytecode is a compiled Program ready for repeated VM execution.
type Bytecode struct {
	instrs []instruction
}

// CompileToBytecode lowers prog to a linear instruction stream. Control
// flow (if/else, fallible assignment) becomes explicit jumps; the error
// slot (vm.errSlot) takes the place of Interpreter's *ExpressionError
// return value.
func CompileToBytecode(prog *Program) *Bytecode {
	c := &compiler{}
	for _, stmt := range prog.Stmts {
		c.compileStmt(stmt)
	}
	return &Bytecode{instrs: c.instrs}
}

type compiler struct {
	instrs []instruction
}

func (c *compiler) emit(op opcode, operand any) int {
	c.instrs = append(c.instrs, instruction{op: op, operand: operand})
	return len(c.instrs) - 1
}

func (c *compiler) patchJump(idx int) {
	c.instrs[idx].operand = len(c.instrs)
}

func (c *compiler) compileStmt(n Node) {
	switch s := n.(type) {
	case *Assignment:
		c.compileAssignment(s)
	case *AbortStmt:
		if s.Message != nil {
			c.compileExpr(s.Message)
		} else {
			c.emit(opPushConst, event.Bytes([]byte("aborted")))
		}
		c.emit(opAbort, s.Span)
	default:
		c.compileExpr(n)
		c.emit(opPop, nil)
	}
}

func (c *compiler) compileAssignment(a *Assignment) {
	c.compileExpr(a.Value)
	// Stack: [value]. If a fault occurred evaluating a.Value, the VM's
	// error slot is set instead and a placeholder zero is on the stack.
	if a.ErrTarget != nil {
		errJump := c.emit(opJumpIfErr, nil)
		// No-error path: store value, then null into errTarget.
		c.compileStore(a.Target)
		c.emit(opPushConst, event.Null())
		c.compileStore(a.ErrTarget)
		doneJump := c.emit(opJump, nil)

		c.patchJump(errJump)
		zero, _ := event.NewFloat(0)
		c.emit(opPushConst, event.FloatVal(zero))
		c.compileStore(a.Target)
		c.emit(opClearErr, nil)
		c.compileStore(a.ErrTarget)

		c.patchJump(doneJump)
		return
	}
	c.compileStore(a.Target)
}

func (c *compiler) compileStore(target Node) {
	switch t := target.(type) {
	case *DiscardExpr:
		c.emit(opPop, nil)
	case *VarExpr:
		c.emit(opStoreVar, t.Name)
	case *PathExpr:
		c.emit(opStorePath, toEventSegments(t.Segments))
	}
}

func (c *compiler) compileExpr(n Node) {
	switch e := n.(type) {
	case *NullLit:
		c.emit(opPushConst, event.Null())
	case *BoolLit:
		c.emit(opPushConst, event.Bool(e.Value))
	case *IntLit:
		c.emit(opPushConst, event.Integer(e.Value))
	case *FloatLit:
		f, _ := event.NewFloat(e.Value)
		c.emit(opPushConst, event.FloatVal(f))
	case *StringLit:
		c.emit(opPushConst, event.Bytes([]byte(e.Value)))
	case *DiscardExpr:
		c.emit(opPushConst, event.Null())

	case *VarExpr:
		c.emit(opLoadVar, e.Name)
	case *PathExpr:
		c.emit(opLoadPath, toEventSegments(e.Segments))

	case *ArrayLit:
		for _, el := range e.Elements {
			c.compileExpr(el)
		}
		c.emit(opCall, callSpec{name: "__array", argc: len(e.Elements)})

	case *ObjectLit:
		for _, entry := range e.Entries {
			c.emit(opPushConst, event.Bytes([]byte(entry.Key)))
			c.compileExpr(entry.Value)
		}
		c.emit(opCall, callSpec{name: "__object", argc: len(e.Entries) * 2})

	case *UnaryExpr:
		c.compileExpr(e.Operand)
		c.emit(opUnaryOp, unaryOpSpec{op: e.Op, span: e.Span})

	case *BinaryExpr:
		c.compileBinary(e)

	case *IfExpr:
		c.compileIf(e)

	case *FuncCall:
		for _, a := range e.Args {
			c.compileExpr(a)
		}
		c.emit(opCall, callSpec{name: e.Name, argc: len(e.Args), fnode: e})
	}
}

func (c *compiler) compileBinary(e *BinaryExpr) {
	if e.Op == "&&" || e.Op == "||" {
		c.compileExpr(e.Left)
		c.emit(opDup, nil)
		var jmp int
		if e.Op == "&&" {
			jmp = c.emit(opJumpIfFalse, nil)
		} else {
			jmp = c.emit(opJumpIfTrue(), nil)
		}
		c.emit(opPop, nil)
		c.compileExpr(e.Right)
		c.patchJump(jmp)
		if e.Op == "&&" {
			// Double negation turns a null or non-bool result into false.
			c.emit(opUnaryOp, unaryOpSpec{op: "!", span: e.Span})
			c.emit(opUnaryOp, unaryOpSpec{op: "!", span: e.Span})
		}
		return
	}
	if e.Op == "??" {
		// On a failed lhs, drop its placeholder and the cleared error
		// message, then evaluate the rhs in its place.
		c.compileExpr(e.Left)
		errJump := c.emit(opJumpIfErr, nil)
		c.compileExpr(e.Right)
		c.emit(opBinOp, binOpSpec{op: e.Op, span: e.Span})
		doneJump := c.emit(opJump, nil)
		c.patchJump(errJump)
		c.emit(opPop, nil)
		c.emit(opClearErr, nil)
		c.emit(opPop, nil)
		c.compileExpr(e.Right)
		c.patchJump(doneJump)
		return
	}
	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	c.emit(opBinOp, binOpSpec{op: e.Op, span: e.Span})
}

// opJumpIfTrue returns opJumpIfFalseNegated, the jump || short-circuits
// with: it is taken when the popped value is neither null nor false. It is
// numbered apart from the iota block above.
func opJumpIfTrue() opcode { return opJumpIfFalseNegated }

const opJumpIfFalseNegated opcode = 100

func (c *compiler) compileIf(e *IfExpr) {
	c.compileExpr(e.Cond)
	elseJump := c.emit(opJumpIfFalse, nil)
	c.compileBlock(e.Conseq)
	endJump := c.emit(opJump, nil)
	c.patchJump(elseJump)
	if e.Altern != nil {
		c.compileBlock(e.Altern)
	} else {
		c.emit(opPushConst, event.Null())
	}
	c.patchJump(endJump)
}

func (c *compiler) compileBlock(b *Block) {
	if len(b.Stmts) == 0 {
		c.emit(opPushConst, event.Null())
		return
	}
	for i, stmt := range b.Stmts {
		last := i == len(b.Stmts)-1
		if a, ok := stmt.(*Assignment); ok {
			c.compileAssignment(a)
			if last {
				c.emit(opPushConst, event.Bool(true))
			}
			continue
		}
		c.compileExpr(stmt)
		if !last {
			c.emit(opPop, nil)
		}
	}
}

type binOpSpec struct {
	op   string
	span Span
}
type unaryOpSpec struct {
	op   string
	span Span
}
type callSpec struct {
	name  string
	argc  int
	fnode *FuncCall
}

// VM executes compiled Bytecode against one event body at a time.
type VM struct {
	code *Bytecode
}

func NewVM(code *Bytecode) *VM { return &VM{code: code} }

// Run mirrors Interpreter.Run: evaluates the bytecode against root,
// reporting an unrecovered abort as a dropped Outcome.
func (vm *VM) Run(root *event.Value) (Outcome, error) {
	st := &vmState{
		root: root,
		vars: make(map[string]event.Value),
	}
	ip := 0
	for ip < len(vm.code.instrs) {
		instr := vm.code.instrs[ip]
		next, outcome, err := vm.step(st, instr, ip)
		if err != nil {
			if ee, ok := err.(*ExpressionError); ok && ee.Abort {
				return Outcome{Dropped: true, Abort: ee}, nil
			}
			return Outcome{}, err
		}
		if outcome != nil {
			return *outcome, nil
		}
		ip = next
	}
	return Outcome{}, nil
}

type vmState struct {
	root    *event.Value
	vars    map[string]event.Value
	stack   []event.Value
	errSlot *ExpressionError
}

func (st *vmState) push(v event.Value) { st.stack = append(st.stack, v) }
func (st *vmState) pop() event.Value {
	v := st.stack[len(st.stack)-1]
	st.stack = st.stack[:len(st.stack)-1]
	return v
}
func (st *vmState) top() event.Value { return st.stack[len(st.stack)-1] }

func (vm *VM) step(st *vmState, instr instruction, ip int) (next int, outcome *Outcome, err error) {
	switch instr.op {
	case opPushConst:
		st.push(instr.operand.(event.Value))
	case opPop:
		st.pop()
	case opDup:
		st.push(st.top())
	case opDiscard:
		// no-op placeholder
	case opLoadVar:
		name := instr.operand.(string)
		st.push(st.vars[name])
	case opStoreVar:
		name := instr.operand.(string)
		st.vars[name] = st.pop()
	case opLoadPath:
		segs := instr.operand.([]event.Segment)
		v, ok := event.Get(*st.root, segs)
		if !ok {
			v = event.Null()
		}
		st.push(v)
	case opStorePath:
		segs := instr.operand.([]event.Segment)
		v := st.pop()
		if ierr := event.Insert(st.root, segs, v); ierr != nil {
			return 0, nil, fmt.Errorf("vrl: %w", ierr)
		}
	case opUnaryOp:
		spec := instr.operand.(unaryOpSpec)
		v := st.pop()
		res, eerr := vm.unary(spec, v)
		if eerr != nil {
			st.errSlot = eerr
			st.push(zeroValue(event.KindFloat))
			break
		}
		st.push(res)
	case opBinOp:
		spec := instr.operand.(binOpSpec)
		right := st.pop()
		left := st.pop()
		res, eerr := vm.binary(spec, left, right)
		if eerr != nil {
			if eerr.Abort {
				return 0, nil, eerr
			}
			st.errSlot = eerr
			st.push(zeroValue(event.KindFloat))
			break
		}
		st.push(res)
	case opJumpIfErr:
		if st.errSlot != nil {
			return instr.operand.(int), nil, nil
		}
	case opJumpIfFalse:
		v := st.pop()
		b, _ := v.Bool()
		if !b {
			return instr.operand.(int), nil, nil
		}
	case opJumpIfFalseNegated:
		v := st.pop()
		if b, isBool := v.Bool(); !v.IsNull() && (!isBool || b) {
			return instr.operand.(int), nil, nil
		}
	case opJump:
		return instr.operand.(int), nil, nil
	case opClearErr:
		msg := ""
		if st.errSlot != nil {
			msg = st.errSlot.Message
		}
		st.errSlot = nil
		st.push(event.Bytes([]byte(msg)))
	case opAbort:
		msgV := st.pop()
		msg, _ := msgV.BytesVal()
		return 0, nil, &ExpressionError{Message: string(msg), Span: instr.operand.(Span), Abort: true}
	case opCall:
		spec := instr.operand.(callSpec)
		args := make([]event.Value, spec.argc)
		for i := spec.argc - 1; i >= 0; i-- {
			args[i] = st.pop()
		}
		res, eerr := vm.call(spec, args)
		if eerr != nil {
			st.errSlot = eerr
			st.push(zeroValue(event.KindFloat))
			break
		}
		st.push(res)
	}
	return ip + 1, nil, nil
}

func (vm *VM) unary(spec unaryOpSpec, v event.Value) (event.Value, *ExpressionError) {
	switch spec.op {
	case "!":
		b, _ := v.Bool()
		return event.Bool(!b), nil
	case "-":
		if i, ok := v.Integer(); ok {
			return event.Integer(-i), nil
		}
		if f, ok := v.Float(); ok {
			nf, _ := event.NewFloat(-f.Value())
			return event.FloatVal(nf), nil
		}
	}
	return event.Value{}, &ExpressionError{Message: "invalid operand for unary " + spec.op, Span: spec.span}
}

func (vm *VM) binary(spec binOpSpec, left, right event.Value) (event.Value, *ExpressionError) {
	e := &BinaryExpr{baseNode: baseNode{spec.span}, Op: spec.op}
	switch spec.op {
	case "==":
		return event.Bool(valuesEqual(left, right)), nil
	case "!=":
		return event.Bool(!valuesEqual(left, right)), nil
	case "<", "<=", ">", ">=":
		lf, lok := asFloat(left)
		rf, rok := asFloat(right)
		if lb, ok := left.BytesVal(); ok {
			if rb, ok := right.BytesVal(); ok {
				// Same bytewise string ordering as Interpreter.evalBinary.
				lf, rf, lok, rok = float64(bytes.Compare(lb, rb)), 0, true, true
			}
		}
		if !lok || !rok {
			return event.Value{}, &ExpressionError{Message: "comparison requires two numeric or two string operands", Span: spec.span}
		}
		var b bool
		switch spec.op {
		case "<":
			b = lf < rf
		case "<=":
			b = lf <= rf
		case ">":
			b = lf > rf
		case ">=":
			b = lf >= rf
		}
		return event.Bool(b), nil
	case "+":
		if lb, lok := left.BytesVal(); lok {
			rb, _ := right.BytesVal()
			return event.Bytes(append(append([]byte(nil), lb...), rb...)), nil
		}
		ip := &Interpreter{}
		return ip.arith(e, left, right)
	case "*":
		if lb, lok := left.BytesVal(); lok {
			n, _ := right.Integer()
			return event.Bytes(bytes.Repeat(lb, repeatCount(n))), nil
		}
		if rb, rok := right.BytesVal(); rok {
			n, _ := left.Integer()
			return event.Bytes(bytes.Repeat(rb, repeatCount(n))), nil
		}
		ip := &Interpreter{}
		return ip.arith(e, left, right)
	case "-":
		ip := &Interpreter{}
		return ip.arith(e, left, right)
	case "/":
		ip := &Interpreter{}
		return ip.divide(e, left, right)
	case "|":
		lo, lok := left.ObjectRef()
		ro, rok := right.ObjectRef()
		if !lok || !rok {
			return event.Value{}, &ExpressionError{Message: "merge requires two objects", Span: spec.span}
		}
		merged := lo.Clone()
		for _, k := range ro.Keys() {
			v, _ := ro.Get(k)
			merged.Set(k, v)
		}
		return event.ObjectVal(merged), nil
	case "??":
		if !left.IsNull() {
			return left, nil
		}
		return right, nil
	}
	return event.Value{}, &ExpressionError{Message: "unknown operator " + spec.op, Span: spec.span}
}

func (vm *VM) call(spec callSpec, args []event.Value) (event.Value, *ExpressionError) {
	switch spec.name {
	case "__array":
		return event.Array(append([]event.Value(nil), args...)), nil
	case "__object":
		obj := event.NewObject()
		for i := 0; i+1 < len(args); i += 2 {
			k, _ := args[i].BytesVal()
			obj.Set(string(k), args[i+1])
		}
		return event.ObjectVal(obj), nil
	default:
		return callBuiltin(spec.fnode, args)
	}
}
