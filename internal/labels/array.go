package labels

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShape is returned when input rows are ragged or dimensions do not
	// match the supplied buffer.
	ErrShape = errors.New("labels: invalid shape")
	// ErrNegativeLabel is returned when an input value is below zero.
	ErrNegativeLabel = errors.New("labels: negative label value")
	// ErrLabelOverflow is returned when an input value does not fit in 32 bits.
	ErrLabelOverflow = errors.New("labels: label value exceeds uint32")
	// ErrBounds is returned when a bounding box falls outside the array.
	ErrBounds = errors.New("labels: bounding box out of bounds")
)

// Array is a dense 2-D grid of instance ids. Zero is background.
//
// Pixel (r, c) lives at Pix[r*Stride+c]. Arrays returned by View share Pix
// with their parent, so writes through a view are visible in the parent.
type Array struct {
	Pix    []uint32
	Stride int
	Rows   int
	Cols   int
}

// New allocates a zeroed rows×cols array.
func New(rows, cols int) Array {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return Array{
		Pix:    make([]uint32, rows*cols),
		Stride: cols,
		Rows:   rows,
		Cols:   cols,
	}
}

// FromInts builds an array from a row-major slice of ints, rejecting
// negative values and values wider than 32 bits.
func FromInts(rows, cols int, values []int) (Array, error) {
	if rows < 0 || cols < 0 || len(values) != rows*cols {
		return Array{}, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(values), rows, cols)
	}
	a := New(rows, cols)
	for i, v := range values {
		if v < 0 {
			return Array{}, fmt.Errorf("%w: %d at (%d, %d)", ErrNegativeLabel, v, i/max(cols, 1), i%max(cols, 1))
		}
		if uint64(v) > math.MaxUint32 {
			return Array{}, fmt.Errorf("%w: %d", ErrLabelOverflow, v)
		}
		a.Pix[i] = uint32(v)
	}
	return a, nil
}

// FromRows builds an array from nested rows. All rows must share a length.
func FromRows(rows [][]int) (Array, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	cols := len(rows[0])
	flat := make([]int, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return Array{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), cols)
		}
		flat = append(flat, row...)
	}
	return FromInts(len(rows), cols, flat)
}

// At returns the id at (r, c).
func (a Array) At(r, c int) uint32 {
	return a.Pix[r*a.Stride+c]
}

// Set stores id at (r, c).
func (a Array) Set(r, c int, id uint32) {
	a.Pix[r*a.Stride+c] = id
}

// Row returns the r-th row as a slice aliasing Pix.
func (a Array) Row(r int) []uint32 {
	off := r * a.Stride
	return a.Pix[off : off+a.Cols]
}

// Bounds returns the box covering the whole array.
func (a Array) Bounds() BBox {
	return BBox{RowMax: a.Rows, ColMax: a.Cols}
}

// SameShape reports whether a and b have identical dimensions.
func (a Array) SameShape(b Array) bool {
	return a.Rows == b.Rows && a.Cols == b.Cols
}

// View returns the sub-array covered by b without copying.
func (a Array) View(b BBox) (Array, error) {
	if !b.Within(a.Rows, a.Cols) {
		return Array{}, fmt.Errorf("%w: %v in %dx%d", ErrBounds, b, a.Rows, a.Cols)
	}
	h, w := b.Height(), b.Width()
	if h == 0 || w == 0 {
		// Empty views carry no rows.
		return Array{}, nil
	}
	off := b.RowMin*a.Stride + b.ColMin
	end := off + (h-1)*a.Stride + w
	return Array{
		Pix:    a.Pix[off:end:end],
		Stride: a.Stride,
		Rows:   h,
		Cols:   w,
	}, nil
}

// Clone returns a compact deep copy of a.
func (a Array) Clone() Array {
	out := New(a.Rows, a.Cols)
	for r := 0; r < a.Rows; r++ {
		copy(out.Row(r), a.Row(r))
	}
	return out
}

// Equal reports whether a and b have the same shape and values.
func (a Array) Equal(b Array) bool {
	if !a.SameShape(b) {
		return false
	}
	for r := 0; r < a.Rows; r++ {
		ra, rb := a.Row(r), b.Row(r)
		for c := range ra {
			if ra[c] != rb[c] {
				return false
			}
		}
	}
	return true
}

// Max returns the largest id in a, or 0 for an empty array.
func (a Array) Max() uint32 {
	var m uint32
	for r := 0; r < a.Rows; r++ {
		for _, v := range a.Row(r) {
			if v > m {
				m = v
			}
		}
	}
	return m
}

// Count returns the number of nonzero pixels.
func (a Array) Count() int {
	n := 0
	for r := 0; r < a.Rows; r++ {
		for _, v := range a.Row(r) {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// Ints returns the array as nested int rows. Intended for tests and debug output.
func (a Array) Ints() [][]int {
	out := make([][]int, a.Rows)
	for r := range out {
		row := a.Row(r)
		out[r] = make([]int, len(row))
		for c, v := range row {
			out[r][c] = int(v)
		}
	}
	return out
}
