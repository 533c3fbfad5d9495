package disasm

// controlOp describes one control-transfer opcode this decoder recognises:
// its mnemonic, total instruction length, and where its immediate operand
// (if any) sits within that length.
type controlOp struct {
	mnemonic string
	length   int
	immOff   int
	immLen   int
}

// control transfer opcodes recognised across the three supported decoder
// families. Only call/jcc/jmp need special treatment for BasicMasking, so
// this is the only part of the x86 encoding space this decoder cares about
// getting exactly right; everything else falls back to a conservative
// one-byte-at-a-time scan so Instructions() always terminates.
var control1Byte = map[byte]controlOp{
	0xE8: {"call", 5, 1, 4},  // call rel32
	0xE9: {"jmp", 5, 1, 4},   // jmp rel32
	0xEB: {"jmp", 2, 1, 1},   // jmp rel8
	0x70: {"jo", 2, 1, 1},
	0x71: {"jno", 2, 1, 1},
	0x72: {"jb", 2, 1, 1},
	0x73: {"jae", 2, 1, 1},
	0x74: {"je", 2, 1, 1},
	0x75: {"jne", 2, 1, 1},
	0x76: {"jbe", 2, 1, 1},
	0x77: {"ja", 2, 1, 1},
	0x78: {"js", 2, 1, 1},
	0x79: {"jns", 2, 1, 1},
	0x7A: {"jp", 2, 1, 1},
	0x7B: {"jnp", 2, 1, 1},
	0x7C: {"jl", 2, 1, 1},
	0x7D: {"jge", 2, 1, 1},
	0x7E: {"jle", 2, 1, 1},
	0x7F: {"jg", 2, 1, 1},
}

// plain single-byte opcodes with no operand, common enough in compiled
// x86 code that MnemonicHash gets a usable stream from ordinary functions.
var plain1Byte = map[byte]string{
	0x90: "nop",
	0xC3: "ret",
	0xC9: "leave",
	0xF4: "hlt",
	0xCC: "int3",
	0x50: "push", 0x51: "push", 0x52: "push", 0x53: "push",
	0x54: "push", 0x55: "push", 0x56: "push", 0x57: "push",
	0x58: "pop", 0x59: "pop", 0x5A: "pop", 0x5B: "pop",
	0x5C: "pop", 0x5D: "pop", 0x5E: "pop", 0x5F: "pop",
}

// immediate32 opcodes: one-byte opcode followed by a 4-byte immediate, e.g.
// mov reg, imm32 (0xB8-0xBF).
var imm32_1Byte = map[byte]string{
	0xB8: "mov", 0xB9: "mov", 0xBA: "mov", 0xBB: "mov",
	0xBC: "mov", 0xBD: "mov", 0xBE: "mov", 0xBF: "mov",
	0x05: "add", 0x2D: "sub", 0x3D: "cmp", 0x25: "and", 0x0D: "or",
}

// intelDecoder implements Disassembler for the intel16/intel32/intel64
// architecture tags. It is a length-disassembler, not a full one: unknown
// opcodes are emitted as invalid one-byte instructions so decoding always
// makes forward progress and MnemonicHash's valid-only filter still yields
// a sane stream.
type intelDecoder struct{}

// NewIntelDecoder returns the built-in Disassembler for the intel opcode
// families.
func NewIntelDecoder() Disassembler { return intelDecoder{} }

func (intelDecoder) Supports(architecture string) bool {
	switch architecture {
	case "intel16", "intel32", "intel64":
		return true
	default:
		return false
	}
}

func (d intelDecoder) Decode(architecture string, opcodes []byte) (Disassembly, error) {
	if !d.Supports(architecture) {
		return nil, &ErrUnsupportedArchitecture{Architecture: architecture}
	}

	var out []Instruction
	for i := 0; i < len(opcodes); {
		b := opcodes[i]

		if op, ok := control1Byte[b]; ok && i+op.length <= len(opcodes) {
			raw := opcodes[i : i+op.length]
			out = append(out, Instruction{
				Mnemonic: op.mnemonic, Raw: raw, Valid: true,
				ControlTransfer: true, HasImmediate: true,
				ImmOffset: op.immOff, ImmLen: op.immLen,
			})
			i += op.length
			continue
		}

		if mnem, ok := plain1Byte[b]; ok {
			out = append(out, Instruction{Mnemonic: mnem, Raw: opcodes[i : i+1], Valid: true})
			i++
			continue
		}

		if mnem, ok := imm32_1Byte[b]; ok && i+5 <= len(opcodes) {
			out = append(out, Instruction{Mnemonic: mnem, Raw: opcodes[i : i+5], Valid: true})
			i += 5
			continue
		}

		// Unrecognised byte: emit as an invalid single-byte placeholder so
		// MnemonicHash's valid-only filter drops it but decoding still
		// advances.
		out = append(out, Instruction{Mnemonic: "db", Raw: opcodes[i : i+1], Valid: false})
		i++
	}

	return &sliceDisassembly{instructions: out}, nil
}
