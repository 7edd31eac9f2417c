package vm

import (
	"fmt"
	"io"
	"strings"
)

// Instruction is one decoded opcode plus its operands, grounded on
// original_source/src/instructions.rs (one struct per opcode there; a single
// shape here since Go has no macro to generate 25 near-identical types).
// Execute bodies below are translated opcode by opcode from that file's
// Is::execute implementations.
type Instruction struct {
	Op       Opcode
	Operands []Operand
}

func (ins Instruction) String() string {
	if len(ins.Operands) == 0 {
		return ins.Op.String()
	}
	parts := make([]string, len(ins.Operands))
	for i, o := range ins.Operands {
		parts[i] = o.String()
	}
	return fmt.Sprintf("%s %s", ins.Op, strings.Join(parts, ", "))
}

// BinarySize is the encoded size of the opcode byte plus every operand.
func (ins Instruction) BinarySize() Word {
	size := Word(instructionSize)
	for _, o := range ins.Operands {
		size += o.BinarySize()
	}
	return size
}

// WriteTo encodes the instruction (opcode byte followed by its operands).
func (ins Instruction) WriteTo(w io.Writer) (Word, error) {
	if _, err := w.Write([]byte{byte(ins.Op)}); err != nil {
		return 0, err
	}
	total := Word(instructionSize)
	for _, o := range ins.Operands {
		n, err := o.WriteTo(w)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ParseInstruction parses a line's mnemonic and comma-separated operand list.
func ParseInstruction(mnemonic string, operandStrs []string) (Instruction, error) {
	op, ok := opcodeFromName(mnemonic)
	if !ok {
		return Instruction{}, newInstructionErrorf(InstructionStringInstructionNotFound, "%q", mnemonic)
	}
	if len(operandStrs) != op.operandCount() {
		return Instruction{}, newInstructionErrorf(InstructionInvalidOperandCount,
			"%s expects %d operand(s), got %d", op, op.operandCount(), len(operandStrs))
	}
	operands := make([]Operand, len(operandStrs))
	for i, s := range operandStrs {
		o, err := ParseOperand(s)
		if err != nil {
			return Instruction{}, err
		}
		operands[i] = o
	}
	if op.hasDestination() && len(operands) > 0 {
		if err := checkDestination(operands[0]); err != nil {
			return Instruction{}, err
		}
	}
	return Instruction{Op: op, Operands: operands}, nil
}

func checkDestination(o Operand) error {
	switch o.Kind {
	case OperandRegister, OperandRegisterPointer, OperandLiteralPointer:
		return nil
	default:
		return newInstructionError(InstructionDestinationInvalid)
	}
}

// readValue resolves an operand to its numeric value: a register's content,
// a literal's value, or the word stored at a pointer's target address.
func (m *Machine) readValue(o Operand) (Word, error) {
	switch o.Kind {
	case OperandRegister:
		return m.cpu.GetRegister(o.Register.Index(m.cpu.RegisterCount()), o.Register.Size())
	case OperandLiteral:
		return o.Literal.Value, nil
	case OperandRegisterPointer:
		addr, err := m.cpu.GetRegister(o.Register.Index(m.cpu.RegisterCount()), wordSize)
		if err != nil {
			return 0, err
		}
		return m.readPointedWord(addr, o.Pointer)
	case OperandLiteralPointer:
		return m.readPointedWord(o.Literal.Value, o.Pointer)
	default:
		return 0, newInstructionError(InstructionOperandNop)
	}
}

func (m *Machine) readPointedWord(addr Word, p Pointer) (Word, error) {
	size := byte(p.PointedToSize())
	data, err := m.ram.ReadChecked(addr, Word(size))
	if err != nil {
		return 0, err
	}
	var buf [wordSize]byte
	copy(buf[:], data)
	return bytesToWord(buf[:]) & registerMask(size), nil
}

// writeValue stores value to a legal destination operand (Register,
// RegisterPointer or LiteralPointer - never Nop or a bare Literal, enforced
// by checkDestination at parse time and re-checked here for binary-loaded
// instructions).
func (m *Machine) writeValue(o Operand, value Word) error {
	switch o.Kind {
	case OperandRegister:
		return m.cpu.SetRegister(o.Register.Index(m.cpu.RegisterCount()), o.Register.Size(), value)
	case OperandRegisterPointer:
		addr, err := m.cpu.GetRegister(o.Register.Index(m.cpu.RegisterCount()), wordSize)
		if err != nil {
			return err
		}
		return m.writePointedWord(addr, o.Pointer, value)
	case OperandLiteralPointer:
		return m.writePointedWord(o.Literal.Value, o.Pointer, value)
	default:
		return newInstructionError(InstructionDestinationInvalid)
	}
}

func (m *Machine) writePointedWord(addr Word, p Pointer, value Word) error {
	size := byte(p.PointedToSize())
	b := wordToBytes(value & registerMask(size))
	return m.ram.WriteChecked(addr, b[:size])
}

// execute runs one instruction against the machine. Returns exited=true once
// Exit has run. Opcode bodies below are a direct translation of
// instructions.rs's per-opcode execute() implementations.
func (ins Instruction) execute(m *Machine) (exited bool, err error) {
	switch ins.Op {
	case OpExit:
		code, err := m.cpu.GetRegister(0, wordSize)
		if err != nil {
			return false, err
		}
		m.cpu.ExitProgram(m.ram, code)
		return true, nil

	case OpMov:
		v, err := m.readValue(ins.Operands[1])
		if err != nil {
			return false, err
		}
		return false, m.writeValue(ins.Operands[0], v)

	case OpAdd, OpSub, OpMul, OpDiv, OpShl, OpShr, OpAnd, OpXor, OpOr:
		return false, m.executeArithmetic(ins)

	case OpPush:
		v, err := m.readValue(ins.Operands[0])
		if err != nil {
			return false, err
		}
		size := ins.Operands[0].Size()
		if size > wordSize {
			size = wordSize
		}
		b := wordToBytes(v)
		return false, m.cpu.Push(m.ram, b[:size])

	case OpPop:
		size := ins.Operands[0].Size()
		if size > wordSize {
			size = wordSize
		}
		data, err := m.cpu.Pop(m.ram, size)
		if err != nil {
			return false, err
		}
		var buf [wordSize]byte
		copy(buf[:], data)
		return false, m.writeValue(ins.Operands[0], bytesToWord(buf[:]))

	case OpCall:
		target, err := m.readValue(ins.Operands[0])
		if err != nil {
			return false, err
		}
		if err := m.cpu.PushWord(m.ram, m.cpu.ProgramCounter()); err != nil {
			return false, err
		}
		m.cpu.Jump(target)
		return false, nil

	case OpRet:
		ret, err := m.cpu.PopWord(m.ram)
		if err != nil {
			return false, err
		}
		m.cpu.Jump(ret)
		return false, nil

	case OpJmp:
		target, err := m.readValue(ins.Operands[0])
		if err != nil {
			return false, err
		}
		taken := m.cpu.TakeCompareFlag()
		if taken {
			m.cpu.Jump(target)
		}
		return false, nil

	case OpCmpe, OpCmpne, OpCmple, OpCmpl, OpCmpge, OpCmpg:
		a, err := m.readValue(ins.Operands[0])
		if err != nil {
			return false, err
		}
		b, err := m.readValue(ins.Operands[1])
		if err != nil {
			return false, err
		}
		var result bool
		switch ins.Op {
		case OpCmpe:
			result = a == b
		case OpCmpne:
			result = a != b
		case OpCmple:
			result = a <= b
		case OpCmpl:
			result = a < b
		case OpCmpge:
			result = a >= b
		case OpCmpg:
			result = a > b
		}
		m.cpu.SetCompareFlag(result)
		return false, nil

	case OpSet:
		taken := m.cpu.TakeCompareFlag()
		var v Word
		if taken {
			v = 1
		}
		return false, m.writeValue(ins.Operands[0], v)

	case OpBreak:
		m.triggerBreakpoint()
		return false, nil

	case OpSyscall:
		return false, m.handleSyscall()

	default:
		return false, newInstructionErrorf(InstructionStringInstructionNotFound, "opcode %d", ins.Op)
	}
}

// executeArithmetic covers Add/Sub/Mul/Div/Shl/Shr/Xor/And/Or - every
// operation_instruction! opcode in instructions.rs. Go's unsigned Word
// arithmetic already wraps modulo 2^16 on +, -, * exactly like
// wrapping_add/wrapping_sub/wrapping_mul, so no explicit wrapping is needed.
func (m *Machine) executeArithmetic(ins Instruction) error {
	dst, err := m.readValue(ins.Operands[0])
	if err != nil {
		return err
	}
	src, err := m.readValue(ins.Operands[1])
	if err != nil {
		return err
	}
	var result Word
	switch ins.Op {
	case OpAdd:
		result = dst + src
	case OpSub:
		result = dst - src
	case OpMul:
		result = dst * src
	case OpDiv:
		if src == 0 {
			return newInstructionErrorf(InstructionOther, "division by zero")
		}
		result = dst / src
	case OpShl:
		result = dst << (src & 0xF)
	case OpShr:
		result = dst >> (src & 0xF)
	case OpAnd:
		result = dst & src
	case OpXor:
		result = dst ^ src
	case OpOr:
		result = dst | src
	}
	return m.writeValue(ins.Operands[0], result)
}
