package vm

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
)

// Library file format (".dat"), grounded on original_source/src/program.rs
// (write_as_library) and src/dependency.rs (the matching reader):
//
//	u32 instructionOffset        -- byte offset where function bodies begin
//	function table, one entry each, sorted by body offset:
//	  u8     nameLength
//	  []byte name
//	  Word   bodyLength
//	[]byte   concatenated function bodies, in table order
//
// instructionOffset equals 4 + the encoded size of the table itself, so a
// reader can tell where the table ends without a sentinel.

type libraryFunction struct {
	name   string
	offset Word   // this function's binary offset in the assembled program, before relocation
	body   []byte // already-assembled instruction bytes, addresses relative to 0
}

// WriteAsLibrary serializes the program's functions (not its top-level
// instructions - a library exposes only named functions) as a .dat file.
// Functions are ordered by ascending code offset, not name, matching
// write_as_library's functions.sort_by(|a, b| a.1.cmp(&b.1)) - the reader
// (readLibraryTable) derives each function's body position purely from table
// order, so a name-sorted table would hand back the wrong bytes for every
// function but the alphabetically-first one.
func WriteAsLibrary(w io.Writer, funcs []libraryFunction) error {
	sorted := append([]libraryFunction(nil), funcs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })

	tableSize := 0
	for _, f := range sorted {
		tableSize += 1 + len(f.name) + wordSize
	}
	instructionOffset := uint32(4 + tableSize)

	var header [4]byte
	binary.NativeEndian.PutUint32(header[:], instructionOffset)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	for _, f := range sorted {
		if _, err := w.Write([]byte{byte(len(f.name))}); err != nil {
			return err
		}
		if _, err := io.WriteString(w, f.name); err != nil {
			return err
		}
		lenBytes := wordToBytes(Word(len(f.body)))
		if _, err := w.Write(lenBytes[:]); err != nil {
			return err
		}
	}
	for _, f := range sorted {
		if _, err := w.Write(f.body); err != nil {
			return err
		}
	}
	return nil
}

// libraryTableEntry is one decoded function-table row, with bodyOffset
// relative to instructionOffset.
type libraryTableEntry struct {
	name       string
	bodyOffset Word
	bodyLength Word
}

func readLibraryTable(data []byte) (instructionOffset uint32, entries []libraryTableEntry, err error) {
	if len(data) < 4 {
		return 0, nil, newProgramError(ProgramCannotReadDependency)
	}
	instructionOffset = binary.NativeEndian.Uint32(data[:4])
	cursor := uint32(4)
	bodyCursor := Word(0)
	for cursor < instructionOffset {
		if int(cursor) >= len(data) {
			return 0, nil, newProgramError(ProgramCannotReadDependency)
		}
		nameLen := int(data[cursor])
		cursor++
		if int(cursor)+nameLen+wordSize > len(data) {
			return 0, nil, newProgramError(ProgramCannotReadDependency)
		}
		name := string(data[cursor : cursor+uint32(nameLen)])
		cursor += uint32(nameLen)
		bodyLen := bytesToWord(data[cursor : cursor+wordSize])
		cursor += wordSize
		entries = append(entries, libraryTableEntry{name: name, bodyOffset: bodyCursor, bodyLength: bodyLen})
		bodyCursor += bodyLen
	}
	return instructionOffset, entries, nil
}

func findLibraryFunction(data []byte, name string) ([]byte, error) {
	instructionOffset, entries, err := readLibraryTable(data)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.name == name {
			start := instructionOffset + uint32(e.bodyOffset)
			end := start + uint32(e.bodyLength)
			if int(end) > len(data) {
				return nil, newProgramError(ProgramCannotReadDependency)
			}
			return data[start:end], nil
		}
	}
	return nil, newProgramErrorf(ProgramDependencyFunctionDoesntExist, "%q", name)
}

// relocateBody rewrites every Call/Jmp literal operand in a function body by
// adding base, since the body's addresses were assembled relative to 0 and
// must now point into wherever the body lands in the caller's RAM image.
// Grounded on dependency.rs's instructions()/BufferStream relocation pass.
func relocateBody(body []byte, base Word) ([]byte, error) {
	src := bytes.NewReader(body)
	var out bytes.Buffer
	for src.Len() > 0 {
		var opByte [1]byte
		if _, err := io.ReadFull(src, opByte[:]); err != nil {
			return nil, wrapProgramError(ProgramDependencyHasInvalidInstruction, err)
		}
		op := Opcode(opByte[0])
		if !op.valid() {
			return nil, newProgramErrorf(ProgramDependencyHasInvalidInstruction, "opcode byte %d", opByte[0])
		}
		operands := make([]Operand, op.operandCount())
		for i := range operands {
			o, err := ReadOperand(src)
			if err != nil {
				return nil, wrapProgramError(ProgramDependencyHasInvalidInstruction, err)
			}
			operands[i] = o
		}
		if (op == OpCall || op == OpJmp) && len(operands) == 1 && operands[0].Kind == OperandLiteral {
			operands[0] = LiteralOperand(operands[0].Literal.Value + base)
		}
		ins := Instruction{Op: op, Operands: operands}
		if _, err := ins.WriteTo(&out); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
