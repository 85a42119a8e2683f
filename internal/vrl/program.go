package vrl

import "github.com/streamforge/pipeline/internal/event"

// Backend selects which evaluation strategy CompiledProgram.Run uses.
// Both are maintained in lockstep: the VM exists purely for throughput on
// hot paths, never for different semantics.
type Backend int

const (
	BackendInterpreter Backend = iota
	BackendVM
)

// CompiledProgram is a type-checked program ready to run against events,
// with its bytecode lowered eagerly so BackendVM has zero per-call
// compile cost.
type CompiledProgram struct {
	program *Program
	code    *Bytecode
}

// CompileProgram lexes, parses, type-checks, and lowers src in one step.
// readOnlyMounts names path prefixes (e.g. ".metadata") the program may
// read but never assign into.
func CompileProgram(src string, readOnlyMounts []string) (*CompiledProgram, error) {
	prog, err := Compile(src, readOnlyMounts)
	if err != nil {
		return nil, err
	}
	return &CompiledProgram{program: prog, code: CompileToBytecode(prog)}, nil
}

// RootType returns the TypeDef inferred for the program's final
// statement, useful for callers that want to confirm a program is used
// as e.g. a boolean predicate before running it per event.
func (cp *CompiledProgram) RootType() TypeDef { return cp.program.Root }

// Run evaluates the program against root using the given backend,
// mutating root in place for any path assignments it performs.
func (cp *CompiledProgram) Run(root *event.Value, backend Backend) (Outcome, error) {
	switch backend {
	case BackendVM:
		return NewVM(cp.code).Run(root)
	default:
		return NewInterpreter(cp.program).Run(root)
	}
}
