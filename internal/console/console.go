// Package console drives the 80x25 text-mode buffer spec.md §6 names: a
// fixed physical address holding 2 000 {attribute, char} cells. It is the
// diagnostic output device syscall 6 (write) and internal/diag's abort
// banner both write through.
//
// Grounded on the teacher's mem.Dmap/Dmaplen idiom (biscuit/src/mem/dmap.go):
// a raw physical address reinterpreted through unsafe.Pointer once the
// direct map is installed by the out-of-scope architecture glue (spec.md §1).
package console

import "unsafe"

const (
	Cols = 80
	Rows = 25

	// AttrNormal is plain light-grey-on-black, the default write(ch) attribute.
	AttrNormal uint8 = 0x07
	// AttrAbort is the distinctive colour spec.md §7 requires contract
	// violations to print in: bright white on red.
	AttrAbort uint8 = 0x4f
)

// Cell is one character cell, matching the VGA text-mode layout
// byte-for-byte: the character byte first, then the attribute byte (the
// high byte of the 16-bit {attribute, char} cell).
type Cell struct {
	Char byte
	Attr byte
}

// Console wraps the fixed-address text buffer. The zero value is not
// usable; construct with New once the architecture glue has mapped the
// physical console address into the kernel's address space.
type Console struct {
	buf  *[Rows][Cols]Cell
	row  int
	col  int
	attr uint8
}

// New wraps the console buffer at the given (already-mapped) address.
func New(addr uintptr) *Console {
	return &Console{
		buf:  (*[Rows][Cols]Cell)(unsafe.Pointer(addr)),
		attr: AttrNormal,
	}
}

// SetAttr changes the attribute byte used by subsequent Write calls. Abort
// calls this with AttrAbort before printing its banner.
func (c *Console) SetAttr(attr uint8) {
	c.attr = attr
}

// scroll shifts every row up by one and clears the last row, following the
// teacher's console scroll-on-overflow behaviour.
func (c *Console) scroll() {
	for r := 1; r < Rows; r++ {
		c.buf[r-1] = c.buf[r]
	}
	for col := 0; col < Cols; col++ {
		c.buf[Rows-1][col] = Cell{Char: ' ', Attr: c.attr}
	}
	c.row = Rows - 1
}

// Write emits one character (syscall 6). '\n' moves to the next line;
// anything else is placed at the cursor and advances it, scrolling the
// buffer when the cursor runs off the bottom.
func (c *Console) Write(ch byte) {
	if ch == '\n' {
		c.row++
		c.col = 0
	} else {
		c.buf[c.row][c.col] = Cell{Char: ch, Attr: c.attr}
		c.col++
		if c.col == Cols {
			c.col = 0
			c.row++
		}
	}
	if c.row >= Rows {
		c.scroll()
	}
}

// WriteString emits every byte of s through Write.
func (c *Console) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		c.Write(s[i])
	}
}
