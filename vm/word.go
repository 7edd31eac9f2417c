// Package vm implements the register-based assembly VM: operand/instruction
// encoding, the CPU fetch/execute loop, the RAM allocator, the two-pass
// assembler/loader, dependency linking and the library file format.
//
// Grounded on TheSharkysNL/Emulator (original_source/), translated into the
// package layout and naming conventions KTStephano-GVM uses for its own
// single "vm" package.
package vm

import "encoding/binary"

// Word is the machine's fundamental unsigned integer: every address, literal,
// register value and program counter is one. Fixed at 16 bits, matching
// CpuArchitecture in the source this was distilled from.
type Word = uint16

const wordSize = 2 // bytes in a Word

// nativeOrder is the host's native byte order, used for every Word (and the
// other fixed-width fields: u8 name lengths, u32 instruction offsets) placed
// into or read out of a byte stream. Producers and consumers of a .dat file
// must agree on it; this implementation does not attempt to make the format
// portable across architectures (see SPEC_FULL.md §9).
var nativeOrder = binary.NativeEndian

func wordToBytes(w Word) [wordSize]byte {
	var b [wordSize]byte
	nativeOrder.PutUint16(b[:], w)
	return b
}

func bytesToWord(b []byte) Word {
	return nativeOrder.Uint16(b)
}
