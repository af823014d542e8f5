package labels

import "fmt"

// BBox is a half-open rectangle [RowMin, RowMax) × [ColMin, ColMax).
type BBox struct {
	RowMin, ColMin int
	RowMax, ColMax int
}

// Height returns the number of rows covered, or 0 for an inverted box.
func (b BBox) Height() int { return max(b.RowMax-b.RowMin, 0) }

// Width returns the number of columns covered, or 0 for an inverted box.
func (b BBox) Width() int { return max(b.ColMax-b.ColMin, 0) }

// Empty reports whether the box covers no pixels.
func (b BBox) Empty() bool { return b.Height() == 0 || b.Width() == 0 }

// Within reports whether b is well formed and lies inside a rows×cols array.
func (b BBox) Within(rows, cols int) bool {
	return b.RowMin >= 0 && b.ColMin >= 0 &&
		b.RowMin <= b.RowMax && b.ColMin <= b.ColMax &&
		b.RowMax <= rows && b.ColMax <= cols
}

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return BBox{
		RowMin: min(b.RowMin, o.RowMin),
		ColMin: min(b.ColMin, o.ColMin),
		RowMax: max(b.RowMax, o.RowMax),
		ColMax: max(b.ColMax, o.ColMax),
	}
}

func (b BBox) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d]", b.RowMin, b.RowMax, b.ColMin, b.ColMax)
}
