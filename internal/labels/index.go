package labels

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// ErrUnknownLabel is returned by Index.Get for ids that were not observed.
var ErrUnknownLabel = errors.New("labels: unknown label")

// Region describes one instance: its id, bounding box and pixel count.
type Region struct {
	ID   uint32
	Box  BBox
	Area int
}

// Index maps every nonzero id of an array to its Region.
type Index struct {
	regions map[uint32]*Region
	ids     []uint32
}

// NewIndex scans a once and records the bounding box and area of every
// distinct nonzero id.
func NewIndex(a Array) *Index {
	idx := &Index{regions: make(map[uint32]*Region)}

	// Consecutive pixels usually share an id; cache the last lookup.
	var last *Region
	for r := 0; r < a.Rows; r++ {
		for c, id := range a.Row(r) {
			if id == 0 {
				continue
			}
			reg := last
			if reg == nil || reg.ID != id {
				reg = idx.regions[id]
				if reg == nil {
					reg = &Region{ID: id, Box: BBox{RowMin: r, ColMin: c, RowMax: r + 1, ColMax: c + 1}}
					idx.regions[id] = reg
					idx.ids = append(idx.ids, id)
				}
				last = reg
			}
			reg.Area++
			if c < reg.Box.ColMin {
				reg.Box.ColMin = c
			}
			if c+1 > reg.Box.ColMax {
				reg.Box.ColMax = c + 1
			}
			// Rows are scanned in order so RowMin never decreases.
			reg.Box.RowMax = r + 1
		}
	}
	slices.Sort(idx.ids)
	return idx
}

// Len returns the number of distinct nonzero ids.
func (idx *Index) Len() int { return len(idx.ids) }

// IDs returns the indexed ids in ascending order. The caller must not
// modify the returned slice.
func (idx *Index) IDs() []uint32 { return idx.ids }

// Get returns the region for id.
func (idx *Index) Get(id uint32) (Region, error) {
	reg, ok := idx.regions[id]
	if !ok {
		return Region{}, fmt.Errorf("%w: %d", ErrUnknownLabel, id)
	}
	return *reg, nil
}

// Regions yields every region in ascending id order.
func (idx *Index) Regions() iter.Seq[Region] {
	return func(yield func(Region) bool) {
		for _, id := range idx.ids {
			if !yield(*idx.regions[id]) {
				return
			}
		}
	}
}
