package ccall

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/simstate"
	"golang.org/x/arch/x86/x86asm"
)

// Cond is an x86 condition code, numbered as in the instruction encoding.
type Cond int

// Condition codes.
const (
	CondO Cond = iota
	CondNO
	CondB
	CondAE
	CondE
	CondNE
	CondBE
	CondA
	CondS
	CondNS
	CondP
	CondNP
	CondL
	CondGE
	CondLE
	CondG
)

var conds = [...]string{
	CondO:  "o",
	CondNO: "no",
	CondB:  "b",
	CondAE: "ae",
	CondE:  "e",
	CondNE: "ne",
	CondBE: "be",
	CondA:  "a",
	CondS:  "s",
	CondNS: "ns",
	CondP:  "p",
	CondNP: "np",
	CondL:  "l",
	CondGE: "ge",
	CondLE: "le",
	CondG:  "g",
}

// String returns the mnemonic suffix of the condition.
func (cc Cond) String() string {
	if cc >= 0 && int(cc) < len(conds) {
		return conds[cc]
	}
	return fmt.Sprintf("Cond<%d>", int(cc))
}

// Condition returns a boolean expression that is true if cc holds for
// the packed flags.
func Condition(cc Cond, packed simstate.Expr) simstate.Expr {
	f := unpack(simstate.NewCastExpr(packed, FlagsWidth, false))

	// Odd condition codes negate the preceding even code.
	var cond simstate.Expr
	switch cc &^ 1 {
	case CondO:
		cond = f.of
	case CondB:
		cond = f.cf
	case CondE:
		cond = f.zf
	case CondBE:
		cond = or(f.cf, f.zf)
	case CondS:
		cond = f.sf
	case CondP:
		cond = f.pf
	case CondL:
		cond = xor(f.sf, f.of)
	case CondLE:
		cond = or(xor(f.sf, f.of), f.zf)
	default:
		panic(fmt.Sprintf("ccall.Condition: invalid condition code: %s", cc))
	}

	if cc&1 == 1 {
		return simstate.NewNotExpr(cond)
	}
	return cond
}

// EFLAGS bit positions of each flag.
var rflagsBits = [FlagsWidth]uint{
	FlagCF: 0,
	FlagPF: 2,
	FlagAF: 4,
	FlagZF: 6,
	FlagSF: 7,
	FlagOF: 11,
}

// RFLAGS expands packed flags into a 64-bit value using the hardware bit
// positions. Reserved bits are clear.
func RFLAGS(packed simstate.Expr) simstate.Expr {
	packed = simstate.NewCastExpr(packed, FlagsWidth, false)

	var result simstate.Expr = constant(0, simstate.Width64)
	for flag := uint(0); flag < FlagsWidth; flag++ {
		v := simstate.NewCastExpr(Flag(packed, flag), simstate.Width64, false)
		v = simstate.NewBinaryExpr(simstate.SHL, v, constant(uint64(rflagsBits[flag]), simstate.Width64))
		result = or(result, v)
	}
	return result
}

// actions maps decoder opcodes to the action computing their flags.
var actions = map[x86asm.Op]Action{
	x86asm.ADD:  ActionADD,
	x86asm.ADC:  ActionADC,
	x86asm.SUB:  ActionSUB,
	x86asm.SBB:  ActionSBB,
	x86asm.CMP:  ActionSUB,
	x86asm.NEG:  ActionNEG,
	x86asm.AND:  ActionAND,
	x86asm.TEST: ActionAND,
	x86asm.OR:   ActionOR,
	x86asm.XOR:  ActionXOR,
	x86asm.INC:  ActionINC,
	x86asm.DEC:  ActionDEC,
	x86asm.SHL:  ActionSHL,
	x86asm.SHR:  ActionSHR,
	x86asm.SAR:  ActionSAR,
	x86asm.ROL:  ActionROL,
	x86asm.ROR:  ActionROR,
	x86asm.MUL:  ActionUMUL,
	x86asm.IMUL: ActionSMUL,
}

// ActionFor returns the action computing the flags written by op.
func ActionFor(op x86asm.Op) (Action, bool) {
	fn, ok := actions[op]
	return fn, ok
}

// condOps maps conditional opcodes to the condition they test.
var condOps = map[x86asm.Op]Cond{
	x86asm.JO: CondO, x86asm.JNO: CondNO, x86asm.JB: CondB, x86asm.JAE: CondAE,
	x86asm.JE: CondE, x86asm.JNE: CondNE, x86asm.JBE: CondBE, x86asm.JA: CondA,
	x86asm.JS: CondS, x86asm.JNS: CondNS, x86asm.JP: CondP, x86asm.JNP: CondNP,
	x86asm.JL: CondL, x86asm.JGE: CondGE, x86asm.JLE: CondLE, x86asm.JG: CondG,

	x86asm.SETO: CondO, x86asm.SETNO: CondNO, x86asm.SETB: CondB, x86asm.SETAE: CondAE,
	x86asm.SETE: CondE, x86asm.SETNE: CondNE, x86asm.SETBE: CondBE, x86asm.SETA: CondA,
	x86asm.SETS: CondS, x86asm.SETNS: CondNS, x86asm.SETP: CondP, x86asm.SETNP: CondNP,
	x86asm.SETL: CondL, x86asm.SETGE: CondGE, x86asm.SETLE: CondLE, x86asm.SETG: CondG,

	x86asm.CMOVO: CondO, x86asm.CMOVNO: CondNO, x86asm.CMOVB: CondB, x86asm.CMOVAE: CondAE,
	x86asm.CMOVE: CondE, x86asm.CMOVNE: CondNE, x86asm.CMOVBE: CondBE, x86asm.CMOVA: CondA,
	x86asm.CMOVS: CondS, x86asm.CMOVNS: CondNS, x86asm.CMOVP: CondP, x86asm.CMOVNP: CondNP,
	x86asm.CMOVL: CondL, x86asm.CMOVGE: CondGE, x86asm.CMOVLE: CondLE, x86asm.CMOVG: CondG,
}

// CondFor returns the condition tested by a conditional jump, set or move.
func CondFor(op x86asm.Op) (Cond, bool) {
	cc, ok := condOps[op]
	return cc, ok
}

// ActionByName returns the action computing the flags written by the
// instruction with the given mnemonic. Case is ignored.
func ActionByName(name string) (Action, bool) {
	for op, fn := range actions {
		if strings.EqualFold(op.String(), name) {
			return fn, true
		}
	}
	return nil, false
}
