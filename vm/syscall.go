package vm

import "fmt"

// SyscallFunction enumerates the functions dispatched through register 0 by
// the Syscall instruction, grounded on
// original_source/src/instructions.rs SyscallFunction.
type SyscallFunction Word

const (
	SyscallAllocate SyscallFunction = iota
	SyscallDeallocate
	SyscallPrint
	SyscallCreateWindow
	SyscallGetWindowEvent
	SyscallRedraw
)

// EventKind is the closed set of window events GetWindowEvent can report.
type EventKind Word

const (
	EventClose EventKind = iota
	EventKeyDown
	EventKeyUp
	EventMouseMove
	EventMouseButton
)

// WindowDriver is implemented by the windowing backend (package window); the
// vm package depends only on this interface so it never imports a GUI
// toolkit directly. Run is called once, synchronously, from
// Syscall(CreateWindow) and blocks until the window closes or the program
// exits - it is not started on its own goroutine. Grounded on
// original_source/src/window.rs's cooperative event loop (which re-enters
// the core via execute_next_instruction from the same thread that owns the
// window), translated here to the driver calling back into Machine.Resume/
// Machine.DeliverEvent rather than the core calling out: ebiten demands its
// Game run on the thread that created it, so control has to flow the other
// way from window.rs's computer-owns-the-loop shape.
type WindowDriver interface {
	Run(width, height int, title string, framebufferAddr Word, m *Machine) error
}

// handleSyscall dispatches on the function number in register 0, mirroring
// instructions.rs's Syscall::execute. Registers 1-4 (size_of::<CpuArchitecture>()
// wide, i.e. full Words) carry the function's arguments/return value exactly
// as in the source.
func (m *Machine) handleSyscall() error {
	fn, err := m.cpu.GetRegister(0, wordSize)
	if err != nil {
		return err
	}
	switch SyscallFunction(fn) {
	case SyscallAllocate:
		size, err := m.cpu.GetRegister(1, wordSize)
		if err != nil {
			return err
		}
		allocated, err := m.ram.Alloc(size)
		if err != nil {
			return wrapInstructionError(InstructionOther, err)
		}
		m.allocations[allocated.Start()] = allocated
		return m.cpu.SetRegister(1, wordSize, allocated.Start())

	case SyscallDeallocate:
		addr, err := m.cpu.GetRegister(1, wordSize)
		if err != nil {
			return err
		}
		allocated, ok := m.allocations[addr]
		if !ok {
			return m.cpu.SetRegister(1, wordSize, 0)
		}
		freed := allocated.Size()
		allocated.Release()
		delete(m.allocations, addr)
		return m.cpu.SetRegister(1, wordSize, freed)

	case SyscallPrint:
		addr, err := m.cpu.GetRegister(1, wordSize)
		if err != nil {
			return err
		}
		length, err := m.cpu.GetRegister(2, wordSize)
		if err != nil {
			return err
		}
		data, err := m.ram.ReadChecked(addr, length)
		if err != nil {
			return wrapInstructionError(InstructionPrintError, err)
		}
		m.PrintBytes(data)
		return nil

	case SyscallCreateWindow:
		if m.window == nil {
			return newInstructionError(InstructionOther)
		}
		if m.windowCreated {
			return newInstructionError(InstructionWindowAlreadyCreated)
		}
		titleAddr, err := m.cpu.GetRegister(1, wordSize)
		if err != nil {
			return err
		}
		var title string
		var width, height Word
		if titleAddr != 0 {
			titleLen, err := m.cpu.GetRegister(2, wordSize)
			if err != nil {
				return err
			}
			if width, err = m.cpu.GetRegister(3, wordSize); err != nil {
				return err
			}
			if height, err = m.cpu.GetRegister(4, wordSize); err != nil {
				return err
			}
			raw, err := m.ram.ReadChecked(titleAddr, titleLen)
			if err != nil {
				return wrapInstructionError(InstructionOther, err)
			}
			title = string(raw)
		} else {
			if width, err = m.cpu.GetRegister(2, wordSize); err != nil {
				return err
			}
			if height, err = m.cpu.GetRegister(3, wordSize); err != nil {
				return err
			}
		}

		fbSize := Word(int(width) * int(height) * 4)
		fb, err := m.ram.Alloc(fbSize)
		if err != nil {
			return wrapInstructionError(InstructionOther, err)
		}
		if err := m.ram.WriteChecked(fb.Start(), make([]byte, fbSize)); err != nil {
			return err
		}
		m.allocations[fb.Start()] = fb
		if err := m.cpu.SetRegister(1, wordSize, fb.Start()); err != nil {
			return err
		}
		m.windowCreated = true

		if err := m.window.Run(int(width), int(height), title, fb.Start(), m); err != nil {
			return wrapInstructionError(InstructionOther, err)
		}
		return nil

	case SyscallGetWindowEvent:
		if m.window == nil {
			return newInstructionError(InstructionOther)
		}
		m.awaitingEvent = true
		return nil

	case SyscallRedraw:
		if m.window == nil {
			return newInstructionError(InstructionOther)
		}
		m.redraw = true
		return nil

	default:
		return newInstructionErrorf(InstructionSyscallFunctionNotFound, "syscall function %d", fn)
	}
}

func (k EventKind) String() string {
	switch k {
	case EventClose:
		return "close"
	case EventKeyDown:
		return "keydown"
	case EventKeyUp:
		return "keyup"
	case EventMouseMove:
		return "mousemove"
	case EventMouseButton:
		return "mousebutton"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}
