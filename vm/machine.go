package vm

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Machine wires a CPU to RAM and the syscall-visible world (stdout, the
// window driver, the breakpoint REPL), grounded on
// original_source/src/computer.rs's Computer. REGISTER_COUNT there is 12.
const RegisterCount = 12

type Machine struct {
	cpu *CPU
	ram *RAM

	allocations map[Word]*AllocatedRam

	window        WindowDriver
	windowCreated bool
	awaitingEvent bool
	redraw        bool

	Stdout io.Writer

	breakpoints   map[int]bool
	sourceLines   func(pc Word) int
	debugREPL     func(m *Machine) (continue_ bool)
}

// NewMachine builds a Machine with a RAM of the given size. Stdout defaults
// to os.Stdout; callers running tests typically replace it with a buffer.
func NewMachine(ramSize Word) *Machine {
	return &Machine{
		cpu:         NewCPU(RegisterCount),
		ram:         NewRAM(ramSize),
		allocations: make(map[Word]*AllocatedRam),
		Stdout:      os.Stdout,
	}
}

// RAM and CPU expose the underlying state for the breakpoint REPL and for
// tests; the rest of the package reaches into m.cpu/m.ram directly.
func (m *Machine) RAM() *RAM { return m.ram }
func (m *Machine) CPU() *CPU { return m.cpu }

// SetWindowDriver injects the windowing backend; nil (the default) makes
// CreateWindow/GetWindowEvent/Redraw fail with InstructionOther, matching a
// headless build.
func (m *Machine) SetWindowDriver(d WindowDriver) { m.window = d }

// SetBreakpoints installs the set of source line numbers (from Program's
// debug table) that should suspend execution, and the REPL callback invoked
// when one is hit. Breakpoint is a no-op if repl is nil.
func (m *Machine) SetBreakpoints(lines map[int]bool, lineOf func(pc Word) int, repl func(m *Machine) bool) {
	m.breakpoints = lines
	m.sourceLines = lineOf
	m.debugREPL = repl
}

func (m *Machine) triggerBreakpoint() {
	if m.debugREPL != nil {
		m.debugREPL(m)
	}
}

func (m *Machine) atBreakpoint() bool {
	if m.breakpoints == nil || m.sourceLines == nil {
		return false
	}
	return m.breakpoints[m.sourceLines(m.cpu.ProgramCounter())]
}

// StartProgram loads an already-allocated program image, initializes the
// CPU and runs it to completion via ExecuteNext, printing an exit report and
// releasing every allocation - mirroring computer.rs's start_program. If
// execution fails, the installed debug REPL (if any) is entered before the
// error is returned. base
// and length describe the image's span in RAM (AllocatedRam.Start()/Size());
// entry is the program-relative offset execution begins at (0 for an
// already-linked binary, Program.EntryPoint() otherwise). pc and every
// Call/Jmp target stay relative to base for the whole run - see CPU.
func (m *Machine) StartProgram(base, length, entry Word) error {
	if err := m.cpu.InitializeProgram(m.ram, base, length, entry); err != nil {
		return err
	}
	started := time.Now()
	for {
		exited, err := m.ExecuteNext()
		if err != nil {
			m.triggerBreakpoint()
			return err
		}
		if exited {
			break
		}
	}
	fmt.Fprintf(m.Stdout, "program exited with exit code: %d, time to run: %dms\n",
		m.cpu.ExitCode(), time.Since(started).Milliseconds())
	m.ram.DeallocateAll()
	m.allocations = make(map[Word]*AllocatedRam)
	return nil
}

// Resume runs ExecuteNext in a loop until the program exits or hits another
// Syscall(GetWindowEvent) (AwaitingEvent set again) - the core's half of the
// cooperative hand-off described in SPEC_FULL.md §5: the windowing
// collaborator calls this once per frame to let the program run until it
// next asks for input.
func (m *Machine) Resume() (exited bool, err error) {
	for !m.awaitingEvent {
		exited, err := m.ExecuteNext()
		if err != nil {
			return false, err
		}
		if exited {
			return true, nil
		}
	}
	return false, nil
}

// DeliverEvent writes an event into registers 1-3 (kind, then the cursor/
// button/key payload split across r2 and r3 per §6.3), clears AwaitingEvent
// and resumes execution. A no-op if the program isn't currently awaiting an
// event (e.g. a stray input callback arriving between frames).
func (m *Machine) DeliverEvent(kind EventKind, r2, r3 Word) (exited bool, err error) {
	if !m.awaitingEvent {
		return false, nil
	}
	m.awaitingEvent = false
	if err := m.cpu.SetRegister(1, wordSize, Word(kind)); err != nil {
		return false, err
	}
	if err := m.cpu.SetRegister(2, wordSize, r2); err != nil {
		return false, err
	}
	if err := m.cpu.SetRegister(3, wordSize, r3); err != nil {
		return false, err
	}
	return m.Resume()
}

// ConsumeRedraw reports whether Syscall(Redraw) has been called since the
// last ConsumeRedraw, clearing the flag. The window driver's Draw callback
// uses this as a hint; it is free to ignore it and blit every frame.
func (m *Machine) ConsumeRedraw() bool {
	r := m.redraw
	m.redraw = false
	return r
}

// ExecuteNext fetches and executes one instruction. A CpuEndOfProgram fetch
// error is translated into (true, nil) rather than propagated, matching
// execute_next_instruction's treatment of that condition as "done", not a
// failure.
func (m *Machine) ExecuteNext() (exited bool, err error) {
	ins, err := m.cpu.FetchInstruction(m.ram)
	if err != nil {
		if ce, ok := err.(*CpuError); ok && ce.Kind == CpuEndOfProgram {
			return true, nil
		}
		return false, err
	}
	if m.atBreakpoint() {
		m.triggerBreakpoint()
	}
	return ins.execute(m)
}

// Run drives the machine to completion; it is StartProgram under another
// name, so breakpoints installed with SetBreakpoints still apply.
func (m *Machine) Run(base, length, entry Word) error {
	return m.StartProgram(base, length, entry)
}

// PrintBytes writes a C-array-style dump of data to Stdout, matching
// computer.rs's print_bytes (used by Syscall(Print) and the breakpoint REPL's
// memory command).
func (m *Machine) PrintBytes(data []byte) {
	fmt.Fprint(m.Stdout, "{ ")
	for i, b := range data {
		if i > 0 {
			fmt.Fprint(m.Stdout, ", ")
		}
		fmt.Fprintf(m.Stdout, "0x%02X", b)
	}
	fmt.Fprintln(m.Stdout, " }")
}
