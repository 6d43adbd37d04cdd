package simstate

import (
	"fmt"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/benbjohnson/simstate/logflags"
)

// Endness is the byte order of a multi-byte memory access.
type Endness int

const (
	// DefaultEndness uses the byte order configured on the owner.
	DefaultEndness = Endness(iota)
	LittleEndian
	BigEndian
)

// String returns the string representation of the byte order.
func (e Endness) String() string {
	switch e {
	case DefaultEndness:
		return "default"
	case LittleEndian:
		return "le"
	case BigEndian:
		return "be"
	default:
		return fmt.Sprintf("Endness<%d>", int(e))
	}
}

// Cell is the content of a single byte of memory. It is either a concrete
// byte or an 8-bit symbolic expression.
type Cell struct {
	expr  Expr
	value byte
}

// ConcreteCell returns a cell holding a concrete byte.
func ConcreteCell(b byte) Cell {
	return Cell{value: b}
}

// SymbolicCell returns a cell holding expr. Constant expressions are
// stored as concrete cells.
func SymbolicCell(expr Expr) Cell {
	assert(ExprWidth(expr) == Width8, "SymbolicCell: invalid width: %d", ExprWidth(expr))
	if c, ok := expr.(*ConstantExpr); ok {
		return ConcreteCell(byte(c.Value))
	}
	return Cell{expr: expr}
}

// IsSymbolic returns true if the cell holds a symbolic expression.
func (c Cell) IsSymbolic() bool { return c.expr != nil }

// Byte returns the concrete byte held by the cell, if any.
func (c Cell) Byte() (byte, bool) {
	return c.value, c.expr == nil
}

// Expr returns the cell content as an 8-bit expression.
func (c Cell) Expr() Expr {
	if c.expr != nil {
		return c.expr
	}
	return NewConstantExpr8(uint64(c.value))
}

// String returns the string representation of the cell.
func (c Cell) String() string {
	return c.Expr().String()
}

// Backer supplies the initial content of memory addresses that have never
// been written.
type Backer interface {
	Byte(addr uint64) (byte, bool)
}

// MapBacker is a sparse Backer.
type MapBacker map[uint64]byte

// Byte returns the byte at addr, if present.
func (b MapBacker) Byte(addr uint64) (byte, bool) {
	v, ok := b[addr]
	return v, ok
}

// SegmentBacker backs a contiguous range of addresses starting at Base.
type SegmentBacker struct {
	Base uint64
	Data []byte
}

// Byte returns the byte at addr, if it falls within the segment.
func (b *SegmentBacker) Byte(addr uint64) (byte, bool) {
	if addr < b.Base || addr-b.Base >= uint64(len(b.Data)) {
		return 0, false
	}
	return b.Data[addr-b.Base], true
}

// MultiBacker consults each backer in order and returns the first match.
type MultiBacker []Backer

// Byte returns the byte at addr from the first backer that has it.
func (a MultiBacker) Byte(addr uint64) (byte, bool) {
	for _, b := range a {
		if v, ok := b.Byte(addr); ok {
			return v, true
		}
	}
	return 0, false
}

// Fragment is one possible result of a load from a symbolic address. Expr
// is the loaded value when Guard holds.
type Fragment struct {
	Addr  uint64
	Expr  Expr
	Guard Expr
}

// memoryOrigin is incremented for every memory not created by Copy.
var memoryOrigin uint64

// Memory represents a sparse byte-addressable store. Written bytes are held
// in a persistent sorted map so that copies share structure until written.
type Memory struct {
	origin  uint64
	backer  Backer
	endness Endness
	cells   *immutable.SortedMap[uint64, Cell]
}

// NewMemory returns a new, empty Memory. Unwritten addresses consult backer,
// which may be nil. Loads and stores that pass DefaultEndness use endness.
func NewMemory(backer Backer, endness Endness) *Memory {
	if endness == DefaultEndness {
		endness = BigEndian
	}
	return &Memory{
		origin:  atomic.AddUint64(&memoryOrigin, 1),
		backer:  backer,
		endness: endness,
		cells:   immutable.NewSortedMap[uint64, Cell](uint64Comparer{}),
	}
}

// Copy returns an independent copy of the memory. Both memories keep the
// same origin, so never-written addresses read the same symbols.
func (m *Memory) Copy() *Memory {
	other := *m
	return &other
}

// Origin returns the identifier shared by this memory and all its copies.
func (m *Memory) Origin() uint64 { return m.origin }

// Backer returns the backer consulted for unwritten addresses.
func (m *Memory) Backer() Backer { return m.backer }

// Endness returns the default byte order of the memory.
func (m *Memory) Endness() Endness { return m.endness }

// Len returns the number of written addresses.
func (m *Memory) Len() int { return m.cells.Len() }

// Addrs returns all written addresses in ascending order.
func (m *Memory) Addrs() []uint64 {
	a := make([]uint64, 0, m.cells.Len())
	itr := m.cells.Iterator()
	for !itr.Done() {
		addr, _, _ := itr.Next()
		a = append(a, addr)
	}
	return a
}

// Cell returns the content of the byte at addr. Unwritten addresses resolve
// to the backer's byte or, if unbacked, to a symbol unique to the address.
func (m *Memory) Cell(addr uint64) Cell {
	if cell, ok := m.cells.Get(addr); ok {
		return cell
	} else if m.backer != nil {
		if b, ok := m.backer.Byte(addr); ok {
			return ConcreteCell(b)
		}
	}
	return Cell{expr: m.unbacked(addr)}
}

// unbacked returns the symbol for a never-written, unbacked address.
func (m *Memory) unbacked(addr uint64) *SymbolExpr {
	return NewSymbolExpr(fmt.Sprintf("mem_%d_%x", m.origin, addr), Width8)
}

// written returns the explicitly written cell at addr.
func (m *Memory) written(addr uint64) (Cell, bool) {
	return m.cells.Get(addr)
}

// setCell writes a single cell.
func (m *Memory) setCell(addr uint64, cell Cell) {
	m.cells = m.cells.Set(addr, cell)
}

// Load reads size bytes starting at addr and composes them into a single
// expression of size*8 bits.
func (m *Memory) Load(addr uint64, size uint, endness Endness) Expr {
	assert(size > 0, "load: invalid size")
	if endness == DefaultEndness {
		endness = m.endness
	}

	// Handle read byte-by-byte, least significant byte first.
	var result Expr
	for i, n := uint64(0), uint64(size); i != n; i++ {
		byteOffset := i
		if endness == BigEndian {
			byteOffset = n - i - 1
		}

		value := m.Cell(addr + byteOffset).Expr()
		if i == 0 {
			result = value
		} else {
			result = NewConcatExpr(value, result)
		}
	}
	return result
}

// Store writes expr starting at addr. The expression width must be a
// whole number of bytes.
func (m *Memory) Store(addr uint64, expr Expr, endness Endness) error {
	width := ExprWidth(expr)
	if width == 0 || width%8 != 0 {
		return fmt.Errorf("store %d bits at %#x: %w", width, addr, ErrInvalidWidth)
	}
	if endness == DefaultEndness {
		endness = m.endness
	}

	for i, n := uint64(0), uint64(width/8); i != n; i++ {
		byteOffset := i
		if endness == BigEndian {
			byteOffset = n - i - 1
		}
		m.setCell(addr+byteOffset, SymbolicCell(NewExtractExpr(expr, uint(i*8), Width8)))
	}
	return nil
}

// LoadValue reads size bytes from a possibly symbolic address. One fragment
// is returned per feasible address, guarded by the address taking that
// value. A unique address yields a single fragment guarded by true.
// ErrSymbolicAddress is returned if more than limit addresses are feasible.
func (m *Memory) LoadValue(addr *Value, size uint, endness Endness, limit int) ([]Fragment, error) {
	if c, ok := addr.Expr().(*ConstantExpr); ok {
		return []Fragment{{Addr: c.Value, Expr: m.Load(c.Value, size, endness), Guard: NewBoolConstantExpr(true)}}, nil
	}

	addrs, err := addr.AnyN(limit + 1)
	if err != nil {
		return nil, err
	} else if len(addrs) > limit {
		return nil, &ConcretizationError{Expr: addr.Expr(), Op: "load", Err: ErrSymbolicAddress}
	}

	if len(addrs) == 1 {
		return []Fragment{{Addr: addrs[0], Expr: m.Load(addrs[0], size, endness), Guard: NewBoolConstantExpr(true)}}, nil
	}

	if logflags.Memory() {
		logflags.MemoryLogger().Debugf("load from symbolic address %s: %d candidates", addr, len(addrs))
	}

	fragments := make([]Fragment, len(addrs))
	for i, a := range addrs {
		fragments[i] = Fragment{
			Addr:  a,
			Expr:  m.Load(a, size, endness),
			Guard: NewEqConstExpr(addr.Expr(), a),
		}
	}
	return fragments, nil
}

// uint64Comparer compares two 64-bit unsigned integers. Implements immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b.
func (c uint64Comparer) Compare(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
