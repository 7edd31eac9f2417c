package vm

import (
	"bytes"
	"strings"
	"testing"
)

func TestAssembleForwardReferencedFunction(t *testing.T) {
	src := `
main:
	mov x1, 5
	call helper
	exit
helper:
	add x1, 1
	ret
`
	p, err := AssembleProgram(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	entry, err := p.EntryPoint()
	if err != nil {
		t.Fatal(err)
	}
	helperOffset, ok := p.functions["helper"]
	if !ok {
		t.Fatal("expected a function table entry for helper")
	}

	call := p.instructions[1]
	if call.Op != OpCall {
		t.Fatalf("instruction 1 = %v, want a call", call)
	}
	if call.Operands[0].Kind != OperandLiteral || call.Operands[0].Literal.Value != helperOffset {
		t.Fatalf("call operand = %+v, want literal %d", call.Operands[0], helperOffset)
	}
	if entry != 0 {
		t.Fatalf("main entry point = %d, want 0", entry)
	}
}

func TestAssembleUndefinedLabelFails(t *testing.T) {
	src := "main:\n\tjmp nowhere\n"
	if _, err := AssembleProgram(strings.NewReader(src)); err == nil {
		t.Fatal("expected an error for a reference to an undefined label")
	}
}

func TestAssembleRejectsDuplicateFunction(t *testing.T) {
	src := "main:\n\texit\nmain:\n\texit\n"
	if _, err := AssembleProgram(strings.NewReader(src)); err == nil {
		t.Fatal("expected an error for a redefined function")
	}
}

func TestAssembleLabelWithinFunction(t *testing.T) {
	src := `
main:
	mov x1, 0
.loop
	add x1, 1
	cmpl x1, 3
	jmp .loop
	exit
`
	p, err := AssembleProgram(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	loopOffset, ok := p.labels["loop"]
	if !ok {
		t.Fatal("expected a label table entry for loop")
	}
	var jmp Instruction
	for _, ins := range p.instructions {
		if ins.Op == OpJmp {
			jmp = ins
		}
	}
	if jmp.Operands[0].Literal.Value != loopOffset {
		t.Fatalf("jmp target = %d, want label offset %d", jmp.Operands[0].Literal.Value, loopOffset)
	}
}

func TestAssembleStripsComments(t *testing.T) {
	src := "; a whole comment line\nmain:\n\texit ; trailing comment\n"
	p, err := AssembleProgram(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.instructions) != 1 || p.instructions[0].Op != OpExit {
		t.Fatalf("instructions = %+v, want a single exit", p.instructions)
	}
}

func TestLineAtReportsSourceLine(t *testing.T) {
	src := "main:\n\tmov x1, 1\n\texit\n"
	p, err := AssembleProgram(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if got := p.LineAt(0); got != 2 {
		t.Fatalf("LineAt(0) = %d, want 2", got)
	}
}

// TestLoadBinaryRunsLibraryFunctionFromOffsetZero exercises the run
// subcommand's ".dat" path (§6.1): build writes a library, LoadBinary strips
// its function table and loads the concatenated bodies starting at pc 0 -
// exactly where this program's sole function lands, since it's the first
// (and only) entry in the table.
func TestLoadBinaryRunsLibraryFunctionFromOffsetZero(t *testing.T) {
	src := "compute:\n\tmov x1, 3\n\tadd x1, 4\n\texit\n"
	p, err := AssembleProgram(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := p.WriteLibrary(&buf); err != nil {
		t.Fatal(err)
	}

	m := NewMachine(4096)
	m.Stdout = &bytes.Buffer{}
	allocated, err := LoadBinary(m.RAM(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	if err := m.StartProgram(allocated.Start(), allocated.Size(), 0); err != nil {
		t.Fatal(err)
	}
	if got := m.CPU().ExitCode(); got != 7 {
		t.Fatalf("exit code = %d, want 7", got)
	}
}
