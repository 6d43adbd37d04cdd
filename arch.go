package simstate

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Register describes a named slot in a register file.
type Register struct {
	Name  string
	Width uint
}

// Arch describes the machine a State models.
type Arch struct {
	Name      string
	Bits      uint    // pointer width
	Endness   Endness // default memory byte order
	Registers []Register

	IP    string   // instruction pointer
	SP    string   // stack pointer
	Ret   string   // integer return value
	Flags string   // flags register
	Args  []string // integer argument registers; empty if passed on the stack
}

// AMD64 is the x86-64 architecture using the System V calling convention.
var AMD64 = &Arch{
	Name:    "amd64",
	Bits:    64,
	Endness: LittleEndian,
	Registers: append(registers(Width64,
		x86asm.RAX, x86asm.RCX, x86asm.RDX, x86asm.RBX,
		x86asm.RSP, x86asm.RBP, x86asm.RSI, x86asm.RDI,
		x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11,
		x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15,
		x86asm.RIP,
	), Register{Name: "rflags", Width: Width64}),
	IP:    regName(x86asm.RIP),
	SP:    regName(x86asm.RSP),
	Ret:   regName(x86asm.RAX),
	Flags: "rflags",
	Args: []string{
		regName(x86asm.RDI), regName(x86asm.RSI), regName(x86asm.RDX),
		regName(x86asm.RCX), regName(x86asm.R8), regName(x86asm.R9),
	},
}

// X86 is the 32-bit x86 architecture using the cdecl calling convention.
var X86 = &Arch{
	Name:    "x86",
	Bits:    32,
	Endness: LittleEndian,
	Registers: append(registers(Width32,
		x86asm.EAX, x86asm.ECX, x86asm.EDX, x86asm.EBX,
		x86asm.ESP, x86asm.EBP, x86asm.ESI, x86asm.EDI,
		x86asm.EIP,
	), Register{Name: "eflags", Width: Width32}),
	IP:    regName(x86asm.EIP),
	SP:    regName(x86asm.ESP),
	Ret:   regName(x86asm.EAX),
	Flags: "eflags",
}

var arches = map[string]*Arch{
	AMD64.Name: AMD64,
	"x86_64":   AMD64,
	X86.Name:   X86,
	"i386":     X86,
}

// ArchByName returns the architecture with the given name.
func ArchByName(name string) (*Arch, error) {
	if a, ok := arches[strings.ToLower(name)]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("unknown architecture: %q", name)
}

// PtrSize returns the size of a pointer, in bytes.
func (a *Arch) PtrSize() uint {
	return a.Bits / 8
}

// Register returns the register with the given name.
func (a *Arch) Register(name string) (Register, bool) {
	for _, r := range a.Registers {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}

// String returns the name of the architecture.
func (a *Arch) String() string {
	return a.Name
}

func registers(width uint, regs ...x86asm.Reg) []Register {
	a := make([]Register, len(regs))
	for i, r := range regs {
		a[i] = Register{Name: regName(r), Width: width}
	}
	return a
}

func regName(r x86asm.Reg) string {
	return strings.ToLower(r.String())
}
